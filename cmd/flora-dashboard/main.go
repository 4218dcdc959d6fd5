// Flora Dashboard - terminal viewer for a Flora Core server.
//
// It follows the server's real-time channel, falls back to polling when the
// channel is unavailable, and shows devices, averages, alerts and a rolling
// log of readings. It can also send a single command and exit.
//
// Usage:
//
//	flora-dashboard [-config path] [-server url] [-mode auto|tui|log]
//	flora-dashboard -device ESP32_001 -command '{"action":"water"}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/nerrad567/flora-core/internal/dashboard"
	"github.com/nerrad567/flora-core/internal/dashboard/tui"
	"github.com/nerrad567/flora-core/internal/infrastructure/config"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
)

var version = "dev"

// Display modes.
const (
	modeAuto = "auto"
	modeTUI  = "tui"
	modeLog  = "log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	serverURL  string
	mode       string
	deviceID   string
	command    string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("flora-dashboard", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", os.Getenv("FLORA_CONFIG"), "path to config file")
	fs.StringVar(&o.serverURL, "server", "", "Flora Core base URL (overrides dashboard.server_url)")
	fs.StringVar(&o.mode, "mode", modeAuto, "display mode: auto, tui or log")
	fs.StringVar(&o.deviceID, "device", "", "device id for a one-shot command")
	fs.StringVar(&o.command, "command", "", "JSON command to send to -device, then exit")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.mode {
	case modeAuto, modeTUI, modeLog:
	default:
		return o, fmt.Errorf("unknown mode %q", o.mode)
	}
	if (o.deviceID == "") != (o.command == "") {
		return o, errors.New("-device and -command must be used together")
	}
	if o.command != "" && !json.Valid([]byte(o.command)) {
		return o, errors.New("-command must be valid JSON")
	}
	return o, nil
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.serverURL != "" {
		cfg.Dashboard.ServerURL = opts.serverURL
	}

	transport, err := dashboard.NewHTTPTransport(
		cfg.Dashboard.ServerURL,
		cfg.WebSocket.Path,
		cfg.Dashboard.RequestTimeoutDuration(),
	)
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}
	transport.SetReadTimeout(cfg.WebSocket.KeepaliveWindow())

	if opts.command != "" {
		return sendOnce(ctx, transport, cfg.Dashboard, opts.deviceID, json.RawMessage(opts.command), stdout)
	}

	mode := opts.mode
	if mode == modeAuto {
		mode = modeLog
		if f, ok := stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			mode = modeTUI
		}
	}

	sessionOpts := dashboard.OptionsFromConfig(cfg.Dashboard)
	if mode == modeTUI {
		return runTUI(ctx, transport, sessionOpts)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting Flora Dashboard",
		"version", version,
		"server", cfg.Dashboard.ServerURL,
		"websocket", transport.WebSocketURL(),
	)
	sessionOpts.Logger = log
	return runHeadless(ctx, transport, sessionOpts, log)
}

func sendOnce(ctx context.Context, transport dashboard.Transport, cfg config.DashboardConfig, deviceID string, command json.RawMessage, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeoutDuration())
	defer cancel()

	id, err := transport.SendCommand(ctx, deviceID, command)
	if err != nil {
		return fmt.Errorf("sending command: %w", err)
	}
	fmt.Fprintf(stdout, "command %s accepted for %s\n", id, deviceID)
	return nil
}

func runHeadless(ctx context.Context, transport dashboard.Transport, opts dashboard.Options, log *logging.Logger) error {
	session, err := dashboard.NewSession(transport, dashboard.NewLogRenderer(log), opts)
	if err != nil {
		return err
	}
	if err := session.Run(ctx); err != nil {
		return err
	}
	log.Info("Flora Dashboard stopped")
	return nil
}

// runTUI drives the session from a bubbletea program. Log output is
// discarded so it cannot tear the screen.
func runTUI(ctx context.Context, transport dashboard.Transport, opts dashboard.Options) error {
	renderer := &tui.ProgramRenderer{}
	session, err := dashboard.NewSession(transport, renderer, opts)
	if err != nil {
		return err
	}

	program := tea.NewProgram(tui.New(session), tea.WithAltScreen(), tea.WithContext(ctx))
	renderer.Program = program

	sessionCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = session.Run(sessionCtx)
	}()

	_, err = program.Run()
	cancel()
	<-done

	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
