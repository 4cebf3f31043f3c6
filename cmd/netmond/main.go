// Package main provides the entry point for the netmond daemon.
//
// netmond samples interface counters, follows network reachability and serves
// both to local clients over a UNIX socket using JSON messages. It is meant to
// run as a systemd service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/config"
	"github.com/shini4i/netmon/internal/daemon/handler"
	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/daemon/server"
	"github.com/shini4i/netmon/internal/logging"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

var (
	version = "dev"
)

func main() {
	configFile := flag.String("config", "", "Path to the configuration file")
	socketPath := flag.String("socket", "", "Path to the UNIX socket (overrides the configuration)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("netmond %s\n", version)
		os.Exit(0)
	}

	logging.Setup(logging.ResolveLevel(*debug), logging.FormatJSON)

	slog.Info("Starting netmond", "version", version)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}

	if err := run(cfg); err != nil {
		slog.Error("netmond failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(file string) (*config.Config, error) {
	mgr, err := config.Open(file)
	if err != nil {
		return nil, err
	}
	slog.Debug("Configuration loaded", "file", mgr.GetConfigFile())
	return mgr.GetConfig(), nil
}

func run(cfg *config.Config) error {
	overrides, err := cfg.ClassOverrides()
	if err != nil {
		return err
	}

	counters := traffic.NewSysfsSource(cfg.SysfsRoot, overrides)
	monitor := traffic.SharedWith(
		traffic.WithSource(counters),
		traffic.WithInterval(cfg.SampleInterval()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	deps := handler.Deps{
		Monitor:  monitor,
		Counters: counters,
	}

	var wg sync.WaitGroup
	if cfg.ReachabilityEnabled {
		publisher, closeSource := startReachability(ctx, &wg)
		defer closeSource()
		deps.Reachability = publisher
	}
	if cfg.CellularEnabled {
		reader, err := cellular.NewModemManagerReader()
		if err != nil {
			slog.Warn("Cellular details unavailable", "error", err)
		} else {
			defer reader.Close()
			deps.Cellular = reader
		}
	}

	// The handler subscribes to reachability changes before the server
	// exists, so events go through a broadcaster that is wired afterwards.
	broadcaster := &safeBroadcaster{}
	deps.Broadcaster = broadcaster.Broadcast

	h := handler.New(deps)
	defer h.Close()

	srv := server.NewServer(cfg.SocketPath, cfg.SocketGroup, h.HandleRequest)
	broadcaster.SetServer(srv)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	monitor.StartMonitoring()
	slog.Info("Monitoring started",
		"interval", traffic.FormatInterval(monitor.Interval()),
		"sysfs_root", cfg.SysfsRoot)

	notifySystemd("READY=1")

	wg.Add(1)
	go func() {
		defer wg.Done()
		watchdogLoop(ctx)
	}()

	<-ctx.Done()
	slog.Info("Received shutdown signal", "clients", srv.ClientCount())

	notifySystemd("STOPPING=1")

	monitor.StopMonitoring()
	if err := srv.Stop(); err != nil {
		slog.Warn("Failed to stop server", "error", err)
	}
	wg.Wait()

	slog.Info("Shutdown complete")
	return nil
}

// startReachability follows NetworkManager in the background. Without a
// system bus the publisher stays at unknown.
func startReachability(ctx context.Context, wg *sync.WaitGroup) (*reachability.Publisher, func()) {
	source, err := reachability.NewNetworkManagerSource()
	if err != nil {
		slog.Warn("Reachability unavailable", "error", err)
		return reachability.NewPublisher(nil), func() {}
	}

	publisher := reachability.NewPublisher(source)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Reachability monitoring stopped", "error", err)
			publisher.Set(reachability.StatusUnknown)
		}
	}()

	return publisher, func() {
		if err := source.Close(); err != nil {
			slog.Debug("Failed to close system bus connection", "error", err)
		}
	}
}

// safeBroadcaster provides thread-safe event broadcasting to clients.
// The server may not be set yet when the first events are broadcast.
type safeBroadcaster struct {
	mu  sync.RWMutex
	srv *server.Server
}

// SetServer sets the server for broadcasting.
func (b *safeBroadcaster) SetServer(srv *server.Server) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.srv = srv
}

// Broadcast sends an event to all connected clients.
func (b *safeBroadcaster) Broadcast(event *protocol.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.srv != nil {
		b.srv.Broadcast(event)
	}
}
