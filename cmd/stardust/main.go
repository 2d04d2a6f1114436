// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/stardust/lib/admin"
	"github.com/bureau-foundation/stardust/lib/aspects"
	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/config"
	"github.com/bureau-foundation/stardust/lib/dispatch"
	"github.com/bureau-foundation/stardust/lib/metrics"
	"github.com/bureau-foundation/stardust/lib/process"
	"github.com/bureau-foundation/stardust/lib/server"
	"github.com/bureau-foundation/stardust/lib/session"
	"github.com/bureau-foundation/stardust/lib/version"
	"github.com/bureau-foundation/stardust/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// options are the command-line flags. Empty or zero values leave the
// configuration alone.
type options struct {
	configPath    string
	socket        string
	tickRate      float64
	websocket     string
	adminSocket   string
	metricsListen string
	logLevel      string
	restore       string
	startupScript bool
	showVersion   bool
	showHelp      bool

	flags *pflag.FlagSet
}

func parseFlags(args []string) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("stardust", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", "", "path to stardust.yaml (default: $STARDUST_CONFIG)")
	flagSet.StringVar(&opts.socket, "socket", "", "client socket path (default: first free $XDG_RUNTIME_DIR/stardust-N)")
	flagSet.Float64Var(&opts.tickRate, "tick-rate", 0, "frames per second")
	flagSet.StringVar(&opts.websocket, "websocket-listen", "", "host:port for WebSocket clients")
	flagSet.StringVar(&opts.adminSocket, "admin-socket", "", "admin socket path (default: <socket>.admin)")
	flagSet.StringVar(&opts.metricsListen, "metrics-listen", "", "host:port serving /metrics")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&opts.restore, "restore", "", "restore a saved session by ID, or \"latest\"")
	flagSet.BoolVar(&opts.startupScript, "execute-startup-script", true, "run the startup script when not restoring")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.showHelp, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return nil, process.Usagef("%v", err)
	}
	opts.flags = flagSet
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, process.Usagef("unexpected argument: %s", rest[0])
	}
	return &opts, nil
}

// loadConfig reads the configuration named by the flags or the
// environment and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.ConfigEnv) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandVariables()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if opts.socket != "" {
		cfg.Server.Socket = opts.socket
	}
	if opts.tickRate != 0 {
		cfg.Server.TickRate = opts.tickRate
	}
	if opts.websocket != "" {
		cfg.Server.WebSocketListen = opts.websocket
	}
	if opts.adminSocket != "" {
		cfg.Server.AdminSocket = opts.adminSocket
	}
	if opts.metricsListen != "" {
		cfg.Server.MetricsListen = opts.metricsListen
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	cfg.ExpandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger builds the server logger. Text output is used only when
// configured and stderr is a terminal.
func newLogger(cfg config.LoggingConfig, output *os.File) *slog.Logger {
	level, _ := cfg.SlogLevel()
	options := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" && term.IsTerminal(int(output.Fd())) {
		return slog.New(slog.NewTextHandler(output, options))
	}
	return slog.New(slog.NewJSONHandler(output, options))
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.showHelp {
		printHelp(opts.flags)
		return nil
	}
	if opts.showVersion {
		fmt.Printf("stardust %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, opts, logger)
}

func serve(ctx context.Context, cfg *config.Config, opts *options, logger *slog.Logger) error {
	clk := clock.Real()
	sessions := session.NewStore(cfg.Session.StateDir, clk, logger.With("component", "session"))

	builtins, err := aspects.New(aspects.Deps{States: sessions})
	if err != nil {
		return err
	}

	recorder := metrics.New()
	clients := client.NewRegistry(client.Limits{
		InboundQueue:  cfg.Limits.InboundQueue,
		OutboundQueue: cfg.Limits.OutboundQueue,
		InboundStall:  cfg.Limits.InboundStall.Std(),
	}, clk, logger.With("component", "clients"))

	engine, err := dispatch.New(dispatch.Config{
		InterfaceAspects: []string{aspects.Interface},
		CallTimeout:      cfg.Limits.CallTimeout.Std(),
	}, builtins.Registry, clients, clk, logger.With("component", "dispatch"), recorder)
	if err != nil {
		return err
	}

	socketPath := cfg.Server.Socket
	if socketPath == "" {
		socketPath, err = transport.FreeSocketPath(transport.DefaultSocketDir())
		if err != nil {
			return err
		}
	}
	unixListener, err := transport.ListenUnix(socketPath)
	if err != nil {
		return err
	}
	listeners := []transport.Listener{unixListener}
	if cfg.Server.WebSocketListen != "" {
		webSocketListener, err := transport.ListenWebSocket(cfg.Server.WebSocketListen, cfg.Server.WebSocketPath, logger.With("component", "websocket"))
		if err != nil {
			unixListener.Close()
			return err
		}
		listeners = append(listeners, webSocketListener)
	}

	serverConfig := server.Config{
		MaxPayload:        cfg.Limits.MaxPayload,
		CompressThreshold: cfg.Limits.CompressThreshold,
		HandshakeTimeout:  cfg.Limits.HandshakeTimeout.Std(),
		WriteTimeout:      cfg.Limits.WriteTimeout.Std(),
		CloseGrace:        cfg.Limits.CloseGrace.Std(),
	}

	adminServer := admin.NewSocketServer(cfg.AdminSocketPath(socketPath), logger.With("component", "admin"))
	admin.Register(adminServer, admin.Deps{
		Engine:      engine,
		Clients:     clients,
		Clock:       clk,
		Sessions:    sessions,
		SaveTimeout: cfg.Session.SaveTimeout.Std(),
		Instance:    socketPath,
	}, logger.With("component", "admin"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	errs := make(chan error, len(listeners)+3)
	start := func(name string, fn func() error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	for _, listener := range listeners {
		connections := server.New(clients, serverConfig, logger.With("component", "server", "listener", listener.Address()))
		start("server", func() error { return connections.Serve(ctx, listener) })
	}
	start("admin", func() error { return adminServer.Serve(ctx) })
	if cfg.Server.MetricsListen != "" {
		start("metrics", func() error { return serveMetrics(ctx, cfg.Server.MetricsListen, recorder) })
	}

	ticker := clock.NewFrameTicker(clk, clock.IntervalForRate(cfg.Server.TickRate))
	defer ticker.Stop()
	start("dispatch", func() error { return engine.Run(ctx, ticker.C) })

	logger.Info("stardust running",
		"version", version.Info(),
		"socket", socketPath,
		"admin", adminServer.Path(),
		"tick_rate", cfg.Server.TickRate,
	)

	launcher := session.Launcher{Instance: socketPath, Output: os.Stderr}
	if err := os.Setenv(session.InstanceEnv, socketPath); err != nil {
		logger.Warn("exporting instance", "error", err)
	}
	launchClients(launcher, sessions, cfg, opts, logger)

	<-ctx.Done()
	logger.Info("shutting down")
	cancel()
	workers.Wait()
	engine.Shutdown()

	close(errs)
	var runErrs []error
	for err := range errs {
		runErrs = append(runErrs, err)
	}
	return errors.Join(runErrs...)
}

// launchClients restores the requested session, or runs the startup
// script. Failures are logged and do not stop the server.
func launchClients(launcher session.Launcher, sessions *session.Store, cfg *config.Config, opts *options, logger *slog.Logger) {
	if opts.restore != "" {
		states, err := sessions.Load(opts.restore)
		if err != nil {
			logger.Error("restoring session", "session", opts.restore, "error", err)
			return
		}
		for _, state := range states {
			command, err := launcher.Restore(sessions, state)
			if err != nil {
				logger.Warn("restoring client", "client", state.Name, "error", err)
				continue
			}
			logger.Info("restored client", "client", state.Name, "pid", command.Process.Pid)
			go reap(command, logger)
		}
		return
	}
	if !opts.startupScript {
		return
	}
	command, err := launcher.RunScript(cfg.Session.StartupScript)
	if err != nil {
		logger.Warn("startup script", "error", err)
		return
	}
	if command != nil {
		logger.Info("started startup script", "path", cfg.Session.StartupScript, "pid", command.Process.Pid)
		go reap(command, logger)
	}
}

// reap waits for a launched child so it does not linger as a zombie.
func reap(command *exec.Cmd, logger *slog.Logger) {
	err := command.Wait()
	logger.Debug("child exited", "pid", command.Process.Pid, "error", err)
}

func serveMetrics(ctx context.Context, address string, recorder *metrics.Recorder) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	httpServer := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	})
	defer stop()
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `stardust: display server for spatial clients.

Usage:
  stardust [flags]

Examples:
  # Run with defaults on the first free $XDG_RUNTIME_DIR/stardust-N
  stardust

  # Restore the most recently saved session
  stardust --restore latest

  # Accept browser clients and expose metrics
  stardust --websocket-listen 127.0.0.1:7000 --metrics-listen 127.0.0.1:9090

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
