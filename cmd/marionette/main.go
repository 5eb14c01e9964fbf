package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/marionette/pkg/client"
	"github.com/odvcencio/marionette/pkg/config"
	"github.com/odvcencio/marionette/pkg/driver"
	"github.com/odvcencio/marionette/pkg/logging"
	"github.com/odvcencio/marionette/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	handled, code := dispatchSubcommand(os.Args[1:])
	if !handled {
		printHelp()
		code = 2
	}
	os.Exit(code)
}

func dispatchSubcommand(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return true, 0
	case "--help", "-h", "help":
		printHelp()
		return true, 0
	case "navigate":
		return true, runCommand(runNavigateCommand, args[1:])
	case "eval":
		return true, runCommand(runEvalCommand, args[1:])
	default:
		return false, 0
	}
}

func runCommand(fn func(ctx context.Context, args []string) error, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fn(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("marionette %s (%s, built %s)\n", version, commit, buildDate)
}

func printHelp() {
	fmt.Print(`marionette - browser driver protocol client

Usage:
  marionette navigate -url <url> [-config <path>] [-trace]
  marionette eval -url <url> -expr <js> [-config <path>]
  marionette version

Environment:
  MARIONETTE_DRIVER       driver executable (overrides config)
  MARIONETTE_WS_ENDPOINT  connect over websocket instead of launching
  MARIONETTE_LOG_DIR      session log directory
  MARIONETTE_LOG_LEVEL    debug | info | warn | error
  MARIONETTE_TRACE        enable span export
`)
}

type sessionFlags struct {
	configPath string
	url        string
	trace      bool
	timeout    time.Duration
}

func registerSessionFlags(fs *flag.FlagSet) *sessionFlags {
	f := &sessionFlags{}
	fs.StringVar(&f.configPath, "config", "", "path to config file")
	fs.StringVar(&f.url, "url", "", "target URL")
	fs.BoolVar(&f.trace, "trace", false, "export spans to stdout")
	fs.DurationVar(&f.timeout, "timeout", 0, "overall command timeout")
	return f
}

// withSession loads config, launches the driver and opens a page, then hands
// control to fn.
func withSession(ctx context.Context, f *sessionFlags, fn func(ctx context.Context, page *client.Page) error) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.trace {
		cfg.Tracing.Enabled = true
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	sessionID := logging.NewSessionID()
	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider(telemetry.Config{
			ServiceName: "marionette",
			SessionID:   sessionID,
			Pretty:      cfg.Tracing.Pretty,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	log, err := logging.NewLogger(cfg.Logging.Dir, sessionID)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer log.Close()
	log.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))

	dcfg := driver.Config{
		Command:        cfg.Driver.Command,
		Args:           cfg.Driver.Args,
		Env:            cfg.Driver.Env,
		ConnectTimeout: cfg.Driver.ConnectTimeout,
		Logger:         log,
	}
	var d *driver.Driver
	if cfg.Connect.WSEndpoint != "" {
		d, err = driver.Attach(ctx, cfg.Connect.WSEndpoint, dcfg)
	} else {
		d, err = driver.Launch(ctx, dcfg)
	}
	if err != nil {
		return err
	}
	defer d.Close()

	chromium, err := d.Client().Chromium(ctx)
	if err != nil {
		return fmt.Errorf("resolve browser type: %w", err)
	}
	headless := true
	browser, err := chromium.Launch(ctx, client.LaunchOptions{Headless: &headless})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer browser.Close(ctx)

	bctx, err := browser.NewContext(ctx, client.ContextOptions{})
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("new page: %w", err)
	}
	return fn(ctx, page)
}

func runNavigateCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("navigate", flag.ContinueOnError)
	f := registerSessionFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.url == "" {
		return fmt.Errorf("-url is required")
	}
	return withSession(ctx, f, func(ctx context.Context, page *client.Page) error {
		resp, err := page.Goto(ctx, f.url, client.GotoOptions{})
		if err != nil {
			return fmt.Errorf("goto %s: %w", f.url, err)
		}
		title, err := page.Title(ctx)
		if err != nil {
			return err
		}
		status := 0
		if resp != nil {
			status = resp.Status()
		}
		fmt.Printf("%d %s\n%s\n", status, page.URL(), title)
		return nil
	})
}

func runEvalCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	f := registerSessionFlags(fs)
	expr := fs.String("expr", "", "JavaScript expression to evaluate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if f.url == "" || *expr == "" {
		return fmt.Errorf("-url and -expr are required")
	}
	return withSession(ctx, f, func(ctx context.Context, page *client.Page) error {
		if _, err := page.Goto(ctx, f.url, client.GotoOptions{}); err != nil {
			return fmt.Errorf("goto %s: %w", f.url, err)
		}
		value, err := page.Evaluate(ctx, *expr)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", value)
		return nil
	})
}
