// Package driver launches the browser-automation driver subprocess and wires
// its stdio into a protocol connection.
package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/marionette/pkg/channel"
	"github.com/odvcencio/marionette/pkg/client"
	"github.com/odvcencio/marionette/pkg/logging"
	"github.com/odvcencio/marionette/pkg/transport"
)

// Config describes how to start the driver process.
type Config struct {
	// Command is the driver executable. Required.
	Command string

	// Args are passed to the driver, typically ["run-driver"].
	Args []string

	// Env entries are appended to the inherited environment.
	Env []string

	// ConnectTimeout bounds the initialize handshake.
	ConnectTimeout time.Duration

	// Logger receives structured events. Nil discards.
	Logger *logging.Logger
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	return c
}

// Validate checks the config for launch.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("driver command is required")
	}
	return nil
}

// Driver is one running driver subprocess with its connection.
type Driver struct {
	cfg  Config
	cmd  *exec.Cmd
	conn *channel.Connection
	pw   *client.Playwright

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Launch starts the driver, begins the dispatch loop and performs the
// initialize handshake. The returned Driver owns the subprocess.
func Launch(ctx context.Context, cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(runCtx, cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open driver stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open driver stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open driver stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start driver: %w", err)
	}
	cfg.Logger.Info(logging.CategoryDriver, "started", "", map[string]any{
		"command": cfg.Command,
		"pid":     cmd.Process.Pid,
	})

	pipe := transport.NewPipe(stdout, stdin)
	conn := channel.NewConnection(pipe, channel.Options{
		Factory: client.NewFactory(),
		Logger:  cfg.Logger,
	})

	d := &Driver{cfg: cfg, cmd: cmd, conn: conn, cancel: cancel}
	d.group, _ = errgroup.WithContext(runCtx)
	d.group.Go(func() error {
		return conn.Run(runCtx)
	})
	d.group.Go(func() error {
		d.drainStderr(stderr)
		return nil
	})

	handshakeCtx, done := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer done()
	pw, err := client.Connect(handshakeCtx, conn)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("driver handshake: %w", err)
	}
	d.pw = pw
	return d, nil
}

// Attach connects to an already-running driver over websocket instead of
// launching a subprocess.
func Attach(ctx context.Context, endpoint string, cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("websocket endpoint is required")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ws, err := transport.DialWebSocket(ctx, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial driver: %w", err)
	}
	conn := channel.NewConnection(ws, channel.Options{
		Factory: client.NewFactory(),
		Logger:  cfg.Logger,
	})

	d := &Driver{cfg: cfg, conn: conn, cancel: cancel}
	d.group, _ = errgroup.WithContext(runCtx)
	d.group.Go(func() error {
		return conn.Run(runCtx)
	})

	handshakeCtx, done := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer done()
	pw, err := client.Connect(handshakeCtx, conn)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("driver handshake: %w", err)
	}
	d.pw = pw
	return d, nil
}

// Connection returns the underlying protocol connection.
func (d *Driver) Connection() *channel.Connection {
	return d.conn
}

// Client returns the top-level Playwright object.
func (d *Driver) Client() *client.Playwright {
	return d.pw
}

// Close tears the connection down and stops the subprocess.
func (d *Driver) Close() error {
	if d == nil {
		return nil
	}
	_ = d.conn.Close()
	d.cancel()
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	err := d.group.Wait()
	if d.cmd != nil {
		_ = d.cmd.Wait()
	}
	d.cfg.Logger.Info(logging.CategoryDriver, "stopped", "", nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drainStderr forwards driver diagnostics into the structured log so a
// crashing driver leaves a trail.
func (d *Driver) drainStderr(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			d.cfg.Logger.Warn(logging.CategoryDriver, "stderr", line, nil)
		}
		if err != nil {
			return
		}
	}
}
