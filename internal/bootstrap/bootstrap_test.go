package bootstrap

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

func TestBuildTargets_RequiresAbsoluteHostPath(t *testing.T) {
	t.Parallel()
	_, err := BuildTargets(Options{HostPath: "bin/webrecall-host", All: true}, "/home/u", "linux")
	if err == nil {
		t.Fatal("expected relative host path error")
	}
}

func TestBuildTargets_UnsupportedPlatform(t *testing.T) {
	t.Parallel()
	_, err := BuildTargets(Options{HostPath: "/opt/webrecall-host", All: true}, "/home/u", "plan9")
	if err == nil {
		t.Fatal("expected unsupported platform error")
	}
}

func TestBuildTargets_LinuxAllBrowsers(t *testing.T) {
	t.Parallel()

	targets, err := BuildTargets(Options{
		HostPath:           "/opt/webrecall-host",
		ChromeExtensionID:  "abcdefghijklmnop",
		FirefoxExtensionID: "capture@webrecall.dev",
	}, "/home/u", "linux")
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(targets))
	}

	chrome := targets[0]
	if chrome.Browser != "chrome" {
		t.Fatalf("expected chrome first, got %q", chrome.Browser)
	}
	wantPath := "/home/u/.config/google-chrome/NativeMessagingHosts/" + HostName + ".json"
	if chrome.Path != wantPath {
		t.Fatalf("chrome manifest path = %q, want %q", chrome.Path, wantPath)
	}
	if len(chrome.Manifest.AllowedOrigins) != 1 ||
		chrome.Manifest.AllowedOrigins[0] != "chrome-extension://abcdefghijklmnop/" {
		t.Fatalf("unexpected chrome allowed_origins: %v", chrome.Manifest.AllowedOrigins)
	}
	if len(chrome.Manifest.AllowedExtensions) != 0 {
		t.Fatal("chrome manifest must not list allowed_extensions")
	}

	firefox := targets[2]
	if firefox.Browser != "firefox" {
		t.Fatalf("expected firefox last, got %q", firefox.Browser)
	}
	if len(firefox.Manifest.AllowedExtensions) != 1 ||
		firefox.Manifest.AllowedExtensions[0] != "capture@webrecall.dev" {
		t.Fatalf("unexpected firefox allowed_extensions: %v", firefox.Manifest.AllowedExtensions)
	}
}

func TestBuildTargets_SingleBrowserSelection(t *testing.T) {
	t.Parallel()

	targets, err := BuildTargets(Options{HostPath: "/opt/webrecall-host", Firefox: true}, "/home/u", "darwin")
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 1 || targets[0].Browser != "firefox" {
		t.Fatalf("expected firefox only, got %v", targets)
	}
}

func TestInstall_WritesManifests(t *testing.T) {
	home := t.TempDir()
	origHome, origGOOS := userHomeDir, runtimeGOOS
	userHomeDir = func() (string, error) { return home, nil }
	runtimeGOOS = "linux"
	defer func() { userHomeDir, runtimeGOOS = origHome, origGOOS }()

	logger := log.NewWithOptions(io.Discard, log.Options{})
	err := Install(logger, Options{
		HostPath:          "/opt/webrecall-host",
		ChromeExtensionID: "abcdefghijklmnop",
		Chrome:            true,
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(home, ".config", "google-chrome", "NativeMessagingHosts", HostName+".json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if manifest.Name != HostName || manifest.Type != "stdio" || manifest.Path != "/opt/webrecall-host" {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}
}

func TestInstall_DryRunWritesNothing(t *testing.T) {
	home := t.TempDir()
	origHome, origGOOS := userHomeDir, runtimeGOOS
	userHomeDir = func() (string, error) { return home, nil }
	runtimeGOOS = "linux"
	defer func() { userHomeDir, runtimeGOOS = origHome, origGOOS }()

	logger := log.NewWithOptions(io.Discard, log.Options{})
	err := Install(logger, Options{HostPath: "/opt/webrecall-host", DryRun: true})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(home, ".config")); !os.IsNotExist(err) {
		t.Fatal("dry run must not create manifest directories")
	}
}
