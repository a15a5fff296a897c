// Command ntbridge connects a local dashboard to a topic server.
//
// It keeps one client session to the server, forwards updates for
// subscribed topics to WebSocket clients, and accepts their commands
// (start_client, subscribe, unsubscribe, write). Writes made while
// disconnected are cached and replayed on the next connect.
//
// Usage:
//
//	ntbridge [flags]
//	ntbridge capture view|stats [flags] <file>
//
// Flags:
//
//	--config string           Configuration file path
//	--server string           Server to connect to at startup (host:port)
//	--listen string           Bridge HTTP address (default "127.0.0.1:8765")
//	--connect-timeout dur     Connect timeout (default 3s)
//	--log-level string        trace, debug, info, warn, error (default "info")
//	--capture-file string     Record protocol frames to this file
//	--discover                Browse for a server via mDNS when --server is empty
//	--max-attempts int        Router resubscribe attempts before giving up (0 = forever)
//	-i, --interactive         Enable interactive command mode
//
// Examples:
//
//	# Bridge to a robot and open the console
//	ntbridge --server 10.12.34.2:5810 -i
//
//	# Find the server on the local network and record the session
//	ntbridge --discover --capture-file session.ntcap
//
//	# Inspect a recorded session
//	ntbridge capture view --direction in session.ntcap
//
// Interactive Commands:
//
//	connect <host[:port]> - Connect to a server
//	sub <topic>           - Subscribe to a topic
//	unsub <topic>         - Unsubscribe from a topic
//	write <topic> <value> - Write a value
//	status                - Show session status
//	discover [seconds]    - Browse for servers
//	quit                  - Exit
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ntbridge/ntbridge-go/cmd/ntbridge/interactive"
	"github.com/ntbridge/ntbridge-go/pkg/bridge"
	"github.com/ntbridge/ntbridge-go/pkg/config"
	"github.com/ntbridge/ntbridge-go/pkg/discovery"
	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/metrics"
	"github.com/ntbridge/ntbridge-go/pkg/ntclient"
	"github.com/ntbridge/ntbridge-go/pkg/router"
	"github.com/ntbridge/ntbridge-go/pkg/session"
	"github.com/ntbridge/ntbridge-go/pkg/version"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "capture" {
		err = runCapture(os.Args[2:], os.Stdout)
	} else {
		err = run(os.Args[1:])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ntbridge: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration from defaults, the config file and
// any flags given on the command line.
func loadConfig(args []string) (config.Config, error) {
	flagSet := pflag.NewFlagSet("ntbridge", pflag.ContinueOnError)
	configFile := flagSet.String("config", "", "configuration file path")
	server := flagSet.String("server", "", "server to connect to at startup (host:port)")
	listen := flagSet.String("listen", "", "bridge HTTP address")
	connectTimeout := flagSet.Duration("connect-timeout", 0, "connect timeout")
	logLevel := flagSet.String("log-level", "", "log level: trace, debug, info, warn, error")
	captureFile := flagSet.String("capture-file", "", "record protocol frames to this file")
	discover := flagSet.Bool("discover", false, "browse for a server via mDNS when --server is empty")
	maxAttempts := flagSet.Int("max-attempts", 0, "router resubscribe attempts before giving up (0 = forever)")
	interactiveMode := flagSet.BoolP("interactive", "i", false, "enable interactive command mode")

	if err := flagSet.Parse(args); err != nil {
		return config.Config{}, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return config.Config{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return config.Config{}, err
	}

	if flagSet.Changed("server") {
		cfg.Server = *server
	}
	if flagSet.Changed("listen") {
		cfg.Listen = *listen
	}
	if flagSet.Changed("connect-timeout") {
		cfg.ConnectTimeout = *connectTimeout
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flagSet.Changed("capture-file") {
		cfg.CaptureFile = *captureFile
	}
	if flagSet.Changed("discover") {
		cfg.Discover = *discover
	}
	if flagSet.Changed("max-attempts") {
		cfg.Router.MaxAttempts = *maxAttempts
	}
	if flagSet.Changed("interactive") {
		cfg.Interactive = *interactiveMode
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)

	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{})

	var logOut io.Writer = os.Stderr
	var console *interactive.Console
	if cfg.Interactive {
		console, err = interactive.New(browser)
		if err != nil {
			return err
		}
		// Log through readline to avoid interfering with input
		logOut = console.Stdout()
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var capture log.Logger = log.NoopLogger{}
	if cfg.CaptureFile != "" {
		fl, err := log.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("capture events dropped", "count", n)
			}
			fl.Close()
		}()
		capture = fl
		if level <= session.LevelTrace {
			capture = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
		}
		logger.Info("recording protocol capture", "file", cfg.CaptureFile)
	} else if level <= session.LevelTrace {
		capture = log.NewSlogAdapter(logger)
	}

	mt := metrics.New()
	hub := bridge.NewHub(nil, bridge.WithLogger(logger), bridge.WithMetrics(mt))

	sinks := fanout{hub}
	if console != nil {
		sinks = append(sinks, console)
	}

	dialer := ntclient.NewDialer(
		ntclient.WithLogger(logger),
		ntclient.WithCapture(capture),
		ntclient.WithKeepAlive(cfg.KeepAlive),
	)
	mgr := session.NewManager(session.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		Router:         router.Config{Backoff: cfg.Router},
	}, dialer, sinks, session.WithLogger(logger), session.WithMetrics(mt))

	commands := bridge.NewCommands(mgr, mt)
	hub.SetCommands(commands)

	srv := bridge.NewServer(hub, mgr.Status, mt, logger)
	if err := srv.Start(cfg.Listen); err != nil {
		mgr.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case cfg.Server != "":
		go connect(ctx, logger, mgr, cfg.Server)
	case cfg.Discover:
		go discoverAndConnect(ctx, logger, mgr, browser)
	}

	if console != nil {
		console.Bind(commands, mgr.Status)
		go console.Run(ctx, cancel)
	}

	// Wait for shutdown signal or context cancellation
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
		// Context was cancelled (e.g., by interactive quit command)
	}

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("bridge shutdown", "error", err)
	}
	return mgr.Close()
}

func connect(ctx context.Context, logger *slog.Logger, mgr *session.Manager, address string) {
	if err := mgr.StartClient(ctx, address); err != nil {
		logger.Error("initial connect failed", "address", address, "error", err)
		return
	}
	logger.Info("connected", "address", address)
}

func discoverAndConnect(ctx context.Context, logger *slog.Logger, mgr *session.Manager, browser discovery.Browser) {
	logger.Info("browsing for servers", "service", discovery.ServiceType)
	services, err := discovery.Lookup(ctx, browser, discovery.BrowseTimeout)
	if err != nil {
		logger.Error("discovery failed", "error", err)
		return
	}
	for _, svc := range services {
		if !version.Supports(svc.Protocol) {
			logger.Debug("skipping server", "instance", svc.InstanceName, "protocol", svc.Protocol)
			continue
		}
		addr, err := svc.Address()
		if err != nil {
			logger.Debug("skipping server", "instance", svc.InstanceName, "error", err)
			continue
		}
		logger.Info("discovered server", "name", svc.Name, "address", addr)
		connect(ctx, logger, mgr, addr)
		return
	}
	logger.Warn("no servers found")
}

// fanout delivers session events to several sinks.
type fanout []session.EventSink

func (f fanout) Emit(event string, payload any) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Emit(event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
