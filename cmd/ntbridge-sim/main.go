// Command ntbridge-sim is a simulated topic server.
//
// It accepts ntbridge clients, keeps the last value of every topic, relays
// client writes to other subscribers and advertises itself via mDNS so
// "ntbridge --discover" can find it. A demo generator updates a few topics
// under /sim.
//
// Usage:
//
//	ntbridge-sim [flags]
//
// Flags:
//
//	--listen string          Listen address (default ":5810")
//	--name string            Advertised server name (default "ntbridge-sim")
//	--interface string       Advertise on this network interface only
//	--no-advertise           Disable mDNS advertisement
//	--demo-interval dur      Demo update interval, 0 disables (default 1s)
//	--capture-file string    Record protocol frames to this file
//	--log-level string       debug, info, warn, error (default "info")
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ntbridge/ntbridge-go/pkg/config"
	"github.com/ntbridge/ntbridge-go/pkg/discovery"
	"github.com/ntbridge/ntbridge-go/pkg/log"
	"github.com/ntbridge/ntbridge-go/pkg/ntserver"
	"github.com/ntbridge/ntbridge-go/pkg/version"
)

// Config holds the simulator configuration.
type Config struct {
	Listen       string
	Name         string
	Interface    string
	NoAdvertise  bool
	DemoInterval time.Duration
	CaptureFile  string
	LogLevel     string
}

func parseFlags(args []string) (Config, error) {
	cfg := Config{}
	flagSet := pflag.NewFlagSet("ntbridge-sim", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Listen, "listen", ":"+strconv.Itoa(discovery.DefaultPort), "listen address")
	flagSet.StringVar(&cfg.Name, "name", "ntbridge-sim", "advertised server name")
	flagSet.StringVar(&cfg.Interface, "interface", "", "advertise on this network interface only")
	flagSet.BoolVar(&cfg.NoAdvertise, "no-advertise", false, "disable mDNS advertisement")
	flagSet.DurationVar(&cfg.DemoInterval, "demo-interval", time.Second, "demo update interval, 0 disables")
	flagSet.StringVar(&cfg.CaptureFile, "capture-file", "", "record protocol frames to this file")
	flagSet.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}
	if flagSet.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if cfg.DemoInterval < 0 {
		return Config{}, errors.New("demo-interval must not be negative")
	}
	if _, err := config.ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "ntbridge-sim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var capture log.Logger = log.NoopLogger{}
	if cfg.CaptureFile != "" {
		fl, err := log.NewFileLogger(cfg.CaptureFile)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer fl.Close()
		capture = fl
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := ntserver.New(ntserver.Config{
		Address: cfg.Listen,
		Logger:  logger,
		Capture: capture,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	if !cfg.NoAdvertise {
		adv, err := advertise(ctx, cfg, srv.Addr())
		if err != nil {
			// Serving without advertisement is still useful.
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	if cfg.DemoInterval > 0 {
		go NewSimulator(srv, cfg.DemoInterval, logger).Run(ctx)
		logger.Info("demo generator started", "interval", cfg.DemoInterval)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String(), "clients", srv.ClientCount())
	return nil
}

func advertise(ctx context.Context, cfg Config, addr net.Addr) (discovery.Advertiser, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected listen address %v", addr)
	}

	advCfg := discovery.DefaultAdvertiserConfig()
	advCfg.Interface = cfg.Interface
	adv := discovery.NewMDNSAdvertiser(advCfg)

	info := &discovery.ServerInfo{
		Name:     cfg.Name,
		Version:  version.Current,
		Protocol: version.CurrentProtocol(),
		Port:     uint16(tcp.Port),
	}
	if err := adv.Advertise(ctx, info); err != nil {
		return nil, err
	}
	slog.Info("advertising", "service", discovery.ServiceType, "name", info.Name, "port", info.Port)
	return adv, nil
}
