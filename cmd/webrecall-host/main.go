// webrecall-host is the native messaging endpoint browsers launch to
// deliver capture requests. Stdout carries protocol frames only, so all
// diagnostics go to a side log file.
package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/bridge"
	"github.com/xiy/webrecall/internal/config"
)

func main() {
	// Browsers launch the host with their own arguments (extension
	// origin, parent window). Configuration comes from the environment.
	configPath := os.Getenv("WEBRECALL_CONFIG")
	if configPath == "" {
		configPath = "config/webrecall.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.Default()
	}

	logger := log.NewWithOptions(openLogFile(cfg.Bridge.HostLogPath), log.Options{Prefix: "webrecall-host"})

	host := bridge.NewHost(cfg.Bridge, logger)
	if err := host.Run(os.Stdin, os.Stdout); err != nil {
		logger.Error("host terminated", "err", err)
		os.Exit(1)
	}
}

func openLogFile(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return io.Discard
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return io.Discard
	}
	return f
}
