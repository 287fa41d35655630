package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/webrecall/internal/admin"
	"github.com/xiy/webrecall/internal/ai"
	"github.com/xiy/webrecall/internal/bootstrap"
	"github.com/xiy/webrecall/internal/bridge"
	"github.com/xiy/webrecall/internal/config"
	"github.com/xiy/webrecall/internal/extract"
	"github.com/xiy/webrecall/internal/fetch"
	"github.com/xiy/webrecall/internal/ingest"
	"github.com/xiy/webrecall/internal/janitor"
	"github.com/xiy/webrecall/internal/memory"
	"github.com/xiy/webrecall/internal/search"
	"github.com/xiy/webrecall/internal/store"
	"github.com/xiy/webrecall/pkg/types"
)

const defaultConfigPath = "config/webrecall.yaml"

const janitorInterval = 10 * time.Minute

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch sub := os.Args[1]; sub {
	case "serve":
		err = runServe(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "save":
		err = runSave(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "admin":
		err = runAdmin(os.Args[2:])
	case "register-host":
		err = runRegisterHost(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Println("webrecall v0.1.0")
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	logger *log.Logger
	store  *store.SQLiteStore
	ai     *ai.OpenAIClient
	svc    *memory.Service
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: cfg.ServerName})
	setLogLevel(logger, cfg.LogLevel)

	st, err := store.OpenSQLite(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	aiClient := ai.NewOpenAIClient(cfg.AI, cfg.Ingest, logger)
	svc := memory.NewService(st, aiClient, cfg.AI, logger)

	return &app{cfg: cfg, logger: logger, store: st, ai: aiClient, svc: svc}, nil
}

func (a *app) Close() error { return a.store.Close() }

func (a *app) online() func(ctx context.Context) bool {
	probeTimeout := time.Duration(a.cfg.Ingest.ProbeTimeoutSeconds) * time.Second
	client := &http.Client{}
	return func(ctx context.Context) bool {
		return fetch.CheckOnline(ctx, client, a.cfg.Ingest.ProbeURL, probeTimeout)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	go janitor.Start(ctx, a.logger, janitorInterval, a.cfg.ProfileID, a.store)

	handler := bridge.NewCaptureHandler(a.svc, a.store, a.store, a.cfg.Bridge, a.cfg.ProfileID, a.logger)
	server := bridge.NewServer(a.cfg.Bridge, handler, a.logger)
	a.logger.Info("starting capture server", "db", a.cfg.DBPath, "port", a.cfg.Bridge.Port)
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	filePath := fs.String("file", "", "Path to a browsing history export (JSON array)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filePath == "" {
		return errors.New("import: --file is required")
	}

	raw, err := os.ReadFile(*filePath)
	if err != nil {
		return fmt.Errorf("read history export: %w", err)
	}
	var entries []types.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse history export: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	pool := fetch.NewPool(nil,
		a.cfg.Ingest.FetchConcurrency,
		time.Duration(a.cfg.Ingest.FetchTimeoutSeconds)*time.Second,
		a.logger)
	pipeline := ingest.NewPipeline(a.cfg.Ingest, a.svc, a.ai, pool, a.logger, a.online())

	result, err := pipeline.Process(ctx, a.cfg.ProfileID, entries, func(p types.ProcessingProgress) {
		a.logger.Info("progress", "stage", p.Stage, "percent", int(p.Percent), "msg", p.Message)
	})
	if err != nil {
		return err
	}
	fmt.Println(result.Message)
	fmt.Printf("input=%d filtered=%d selected=%d fetched=%d saved=%d\n",
		result.Stats.TotalInput,
		result.Stats.AfterBlocklist,
		result.Stats.Selected,
		result.Stats.SuccessfullyFetched,
		result.Stats.FinalCount)
	return nil
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.New("ask: query is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	engine := search.NewEngine(a.store, a.ai, a.cfg.Search, a.logger, a.online())
	resp, err := engine.Search(ctx, a.cfg.ProfileID, query)
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	for i, src := range resp.Sources {
		fmt.Printf("  [%d] %s\n      %s\n", i+1, src.Title, src.URL)
	}
	return nil
}

func runSave(args []string) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	rawURL := fs.String("url", "", "URL to fetch and save")
	source := fs.String("source", "manual", "Source type: manual or bookmark-import")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawURL == "" {
		return errors.New("save: --url is required")
	}

	var sourceType types.SourceType
	switch *source {
	case "manual":
		sourceType = types.SourceManual
	case "bookmark-import":
		sourceType = types.SourceBookmarkImport
	default:
		return fmt.Errorf("save: unknown source %q", *source)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	// Manual saves get the longer timeout; the user is waiting on one page.
	timeoutSeconds := a.cfg.Ingest.SaveTimeoutSeconds
	if sourceType == types.SourceManual {
		timeoutSeconds = a.cfg.Ingest.AddTimeoutSeconds
	}
	fetchCtx, cancelFetch := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancelFetch()

	article, err := extract.FetchPage(fetchCtx, http.DefaultClient, *rawURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %s", *rawURL, fetch.HumanizeError(err))
	}

	saved, err := a.svc.Save(ctx, a.cfg.ProfileID, memory.SaveInput{
		URL:        *rawURL,
		Title:      article.Title,
		Content:    article.Content,
		SourceType: sourceType,
		SaveType:   types.SaveTypeAuto,
	})
	if err != nil {
		return err
	}
	fmt.Printf("saved %s (%s)\n", saved.ID, saved.Title)
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("delete: exactly one memory id is required")
	}

	ctx := context.Background()
	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.Delete(ctx, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Println("deleted", fs.Arg(0))
	return nil
}

func runAdmin(args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	return admin.Run(ctx, a.store, a.cfg.ProfileID)
}

func runRegisterHost(args []string) error {
	fs := flag.NewFlagSet("register-host", flag.ContinueOnError)
	hostPath := fs.String("host-path", "", "Absolute path to the webrecall-host binary (default: next to this binary)")
	chromeExt := fs.String("chrome-extension", "", "Chrome extension ID allowed to launch the host")
	firefoxExt := fs.String("firefox-extension", "", "Firefox extension ID allowed to launch the host")
	chrome := fs.Bool("chrome", false, "Register for Chrome")
	chromium := fs.Bool("chromium", false, "Register for Chromium")
	firefox := fs.Bool("firefox", false, "Register for Firefox")
	all := fs.Bool("all", false, "Register for all supported browsers")
	dryRun := fs.Bool("dry-run", false, "Print intended manifests without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *hostPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate host binary: %w", err)
		}
		*hostPath = filepath.Join(filepath.Dir(exe), "webrecall-host")
	}

	logger := log.New(os.Stderr)
	return bootstrap.Install(logger, bootstrap.Options{
		HostPath:           *hostPath,
		ChromeExtensionID:  *chromeExt,
		FirefoxExtensionID: *firefoxExt,
		Chrome:             *chrome,
		Chromium:           *chromium,
		Firefox:            *firefox,
		All:                *all,
		DryRun:             *dryRun,
	})
}

func setLogLevel(logger *log.Logger, level string) {
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

func usage() {
	fmt.Print(`webrecall

Usage:
  webrecall serve [--config path]
  webrecall import --file history.json [--config path]
  webrecall ask [--config path] <query...>
  webrecall save --url <url> [--source manual|bookmark-import] [--config path]
  webrecall delete <memory-id> [--config path]
  webrecall admin [--config path]
  webrecall register-host [--host-path path] [--all|--chrome --chromium --firefox]
  webrecall version
`)
}
