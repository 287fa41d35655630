// Package bootstrap registers the native messaging host with installed
// browsers so the extension can launch it.
package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	// HostName identifies the native messaging host to browsers.
	HostName        = "com.webrecall.capture"
	hostDescription = "Webrecall browser capture host"
)

var (
	userHomeDir = os.UserHomeDir
	runtimeGOOS = runtime.GOOS
)

// Options control host registration.
type Options struct {
	// HostPath is the absolute path of the webrecall-host binary.
	HostPath string
	// ChromeExtensionID is the extension allowed to launch the host in
	// Chromium-family browsers.
	ChromeExtensionID string
	// FirefoxExtensionID is the extension allowed in Firefox.
	FirefoxExtensionID string
	Chrome             bool
	Chromium           bool
	Firefox            bool
	All                bool
	DryRun             bool
}

// Manifest is the native messaging host descriptor browsers read.
type Manifest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Path              string   `json:"path"`
	Type              string   `json:"type"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}

// Target pairs one browser's manifest directory with the manifest to
// write there.
type Target struct {
	Browser  string
	Path     string
	Manifest Manifest
}

// Install writes a host manifest for each selected browser.
func Install(logger *log.Logger, opts Options) error {
	home, err := userHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	targets, err := BuildTargets(opts, home, runtimeGOOS)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no browsers selected for host registration")
	}

	for _, target := range targets {
		payload, err := json.MarshalIndent(target.Manifest, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s manifest: %w", target.Browser, err)
		}
		logger.Info("registering native host", "browser", target.Browser, "manifest", target.Path, "dry_run", opts.DryRun)
		if opts.DryRun {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target.Path), 0o755); err != nil {
			return fmt.Errorf("create manifest directory: %w", err)
		}
		if err := os.WriteFile(target.Path, payload, 0o644); err != nil {
			return fmt.Errorf("write %s manifest: %w", target.Browser, err)
		}
	}

	logger.Info("native host registration complete", "host", HostName, "browsers", len(targets))
	return nil
}

// BuildTargets builds the deterministic manifest list for one platform.
func BuildTargets(opts Options, home, goos string) ([]Target, error) {
	if strings.TrimSpace(opts.HostPath) == "" {
		return nil, errors.New("host binary path is required")
	}
	if !filepath.IsAbs(opts.HostPath) {
		return nil, fmt.Errorf("host binary path must be absolute: %q", opts.HostPath)
	}
	if !opts.All && !opts.Chrome && !opts.Chromium && !opts.Firefox {
		opts.All = true
	}

	chromium := Manifest{
		Name:        HostName,
		Description: hostDescription,
		Path:        opts.HostPath,
		Type:        "stdio",
	}
	if opts.ChromeExtensionID != "" {
		chromium.AllowedOrigins = []string{"chrome-extension://" + opts.ChromeExtensionID + "/"}
	}

	firefox := Manifest{
		Name:        HostName,
		Description: hostDescription,
		Path:        opts.HostPath,
		Type:        "stdio",
	}
	if opts.FirefoxExtensionID != "" {
		firefox.AllowedExtensions = []string{opts.FirefoxExtensionID}
	}

	manifestFile := HostName + ".json"
	targets := make([]Target, 0, 3)

	add := func(enabled bool, browser, dir string, m Manifest) {
		if !enabled {
			return
		}
		targets = append(targets, Target{
			Browser:  browser,
			Path:     filepath.Join(dir, manifestFile),
			Manifest: m,
		})
	}

	switch goos {
	case "linux":
		add(opts.All || opts.Chrome, "chrome",
			filepath.Join(home, ".config", "google-chrome", "NativeMessagingHosts"), chromium)
		add(opts.All || opts.Chromium, "chromium",
			filepath.Join(home, ".config", "chromium", "NativeMessagingHosts"), chromium)
		add(opts.All || opts.Firefox, "firefox",
			filepath.Join(home, ".mozilla", "native-messaging-hosts"), firefox)
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support")
		add(opts.All || opts.Chrome, "chrome",
			filepath.Join(support, "Google", "Chrome", "NativeMessagingHosts"), chromium)
		add(opts.All || opts.Chromium, "chromium",
			filepath.Join(support, "Chromium", "NativeMessagingHosts"), chromium)
		add(opts.All || opts.Firefox, "firefox",
			filepath.Join(support, "Mozilla", "NativeMessagingHosts"), firefox)
	default:
		return nil, fmt.Errorf("unsupported platform %q for host registration", goos)
	}

	return targets, nil
}
