package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/godbus/dbus/v5"

	"github.com/shini4i/netmon/internal/cellular"
	"github.com/shini4i/netmon/internal/client"
	"github.com/shini4i/netmon/internal/config"
	"github.com/shini4i/netmon/internal/daemon/protocol"
	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
	"github.com/shini4i/netmon/internal/ui"
)

type command func(ctx context.Context, opts options, args []string, out io.Writer) error

var commands = map[string]command{
	"speed":  cmdSpeed,
	"bytes":  cmdBytes,
	"status": cmdStatus,
	"start":  cmdStart,
	"stop":   cmdStop,
	"top":    cmdTop,
	"tray":   cmdTray,
	"config": cmdConfig,
}

// errNeedsDaemon is returned by commands that only make sense against netmond.
var errNeedsDaemon = errors.New("this command requires netmond and cannot run with -local")

func dial(opts options) (*client.Client, error) {
	return client.Dial(opts.socketPath)
}

// localCounters builds the sysfs counter source used with -local. Interface
// class overrides come from the configuration file so that local readings
// match the daemon's.
func localCounters(opts options) (*traffic.SysfsSource, error) {
	mgr, err := config.Open(opts.configFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.GetConfig()
	overrides, err := cfg.ClassOverrides()
	if err != nil {
		return nil, err
	}
	root := cfg.SysfsRoot
	if opts.sysfsRoot != "" {
		root = opts.sysfsRoot
	}
	return traffic.NewSysfsSource(root, overrides), nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, client.DefaultTimeout)
}

func cmdSpeed(ctx context.Context, opts options, _ []string, out io.Writer) error {
	var result protocol.SpeedResult
	if opts.local {
		var err error
		if result, err = localSpeed(opts); err != nil {
			return err
		}
	} else {
		c, err := dial(opts)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := withTimeout(ctx)
		defer cancel()
		if result, err = c.Speed(ctx); err != nil {
			return err
		}
	}

	if opts.json {
		return printJSON(out, result)
	}
	if !result.Monitoring {
		fmt.Fprintln(out, "Monitoring is stopped; speeds are from the last run.")
	}
	s := traffic.NewSpeedState(result.WWAN, result.WiFi, result.AWDL)
	fmt.Fprintf(out, "WWAN:   %s\n", traffic.FormatRate(s.WWAN))
	fmt.Fprintf(out, "Wi-Fi:  %s\n", traffic.FormatRate(s.WiFi))
	fmt.Fprintf(out, "AWDL:   %s\n", traffic.FormatRate(s.AWDL))
	fmt.Fprintf(out, "Total:  %s\n", traffic.FormatRate(s.All))
	return nil
}

// localSpeed samples this machine over one interval.
func localSpeed(opts options) (protocol.SpeedResult, error) {
	counters, err := localCounters(opts)
	if err != nil {
		return protocol.SpeedResult{}, err
	}
	mon := traffic.NewMonitor(
		traffic.WithSource(counters),
		traffic.WithInterval(opts.interval),
	)
	mon.StartMonitoring()
	// The first tick only records a baseline.
	time.Sleep(mon.Interval()*2 + mon.Interval()/2)
	s := mon.Speeds()
	mon.StopMonitoring()

	return protocol.SpeedResult{
		WWAN: s.WWAN, WiFi: s.WiFi, AWDL: s.AWDL, All: s.All,
		IntervalMS: mon.Interval().Milliseconds(),
	}, nil
}

func cmdBytes(ctx context.Context, opts options, args []string, out io.Writer) error {
	if len(args) > 1 {
		return fmt.Errorf("bytes takes at most one argument, got %d", len(args))
	}
	expr := ""
	if len(args) == 1 {
		expr = args[0]
	}

	var result protocol.BytesResult
	if opts.local {
		types := traffic.All
		if expr != "" {
			var err error
			if types, err = traffic.ParseTrafficType(expr); err != nil {
				return err
			}
		}
		counters, err := localCounters(opts)
		if err != nil {
			return err
		}
		n, err := traffic.TrafficBytes(counters, types)
		if err != nil {
			return err
		}
		result = protocol.BytesResult{Types: types.String(), Bytes: n}
	} else {
		c, err := dial(opts)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := withTimeout(ctx)
		defer cancel()
		if result, err = c.Bytes(ctx, expr); err != nil {
			return err
		}
	}

	if opts.json {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "%s: %s (%d bytes)\n", result.Types, traffic.FormatBytes(result.Bytes), result.Bytes)
	return nil
}

func cmdStatus(ctx context.Context, opts options, _ []string, out io.Writer) error {
	var result protocol.StatusResult
	if opts.local {
		result = localStatus(ctx)
	} else {
		c, err := dial(opts)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := withTimeout(ctx)
		defer cancel()
		if result, err = c.Status(ctx); err != nil {
			return err
		}
	}

	if opts.json {
		return printJSON(out, result)
	}
	printStatus(out, result, !opts.local)
	return nil
}

func localStatus(ctx context.Context) protocol.StatusResult {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result := protocol.StatusResult{Reachability: reachability.StatusUnknown}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		slog.Debug("System bus unavailable", "error", err)
		return result
	}
	defer conn.Close()

	if status, err := reachability.NewNetworkManagerSourceWithConn(conn).Current(ctx); err != nil {
		slog.Debug("Failed to read reachability", "error", err)
	} else {
		result.Reachability = status
	}

	if info, err := cellular.NewModemManagerReaderWithConn(conn).Read(ctx); err == nil {
		result.Cellular = &info
	} else if !errors.Is(err, cellular.ErrNoModem) {
		slog.Debug("Failed to read cellular details", "error", err)
	}
	return result
}

func printStatus(out io.Writer, s protocol.StatusResult, showMonitoring bool) {
	fmt.Fprintf(out, "Reachability: %s\n", ui.ReachabilityText(s.Reachability))
	if showMonitoring {
		monitoring := "stopped"
		if s.Monitoring {
			monitoring = "running"
		}
		fmt.Fprintf(out, "Monitoring:   %s\n", monitoring)
	}
	if c := s.Cellular; c != nil {
		operator := c.Operator.String()
		if c.OperatorName != "" {
			operator = fmt.Sprintf("%s (%s)", c.OperatorName, c.OperatorCode)
		}
		tech := c.AccessTech.String()
		if gen := c.AccessTech.Generation(); gen != "" {
			tech = fmt.Sprintf("%s %s", gen, tech)
		}
		fmt.Fprintf(out, "Operator:     %s\n", operator)
		fmt.Fprintf(out, "Radio:        %s\n", tech)
		fmt.Fprintf(out, "Signal:       %d%%\n", c.SignalQuality)
	}
}

func cmdStart(ctx context.Context, opts options, _ []string, out io.Writer) error {
	return setMonitoring(ctx, opts, out, true)
}

func cmdStop(ctx context.Context, opts options, _ []string, out io.Writer) error {
	return setMonitoring(ctx, opts, out, false)
}

func setMonitoring(ctx context.Context, opts options, out io.Writer, on bool) error {
	if opts.local {
		return errNeedsDaemon
	}
	c, err := dial(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var running bool
	if on {
		running, err = c.Start(ctx)
	} else {
		running, err = c.Stop(ctx)
	}
	if err != nil {
		return err
	}

	if opts.json {
		return printJSON(out, protocol.MonitoringResult{Monitoring: running})
	}
	if running {
		fmt.Fprintln(out, "Monitoring is running")
	} else {
		fmt.Fprintln(out, "Monitoring is stopped")
	}
	return nil
}

// liveSource feeds top and tray. Exactly one of session and publisher is
// set, depending on whether the daemon or this machine is read.
type liveSource struct {
	ui.Source
	session   *client.Session
	publisher *reachability.Publisher
	release   func()
}

// openSource returns the snapshot source for top and tray. Callers must
// call release when done.
func openSource(ctx context.Context, opts options) (*liveSource, error) {
	if !opts.local {
		if !client.IsAvailable(opts.socketPath) {
			return nil, fmt.Errorf("%w at %s", client.ErrClientNotAvailable, opts.socketPath)
		}
		session := client.NewSession(opts.socketPath, client.DefaultRetryDelay)
		return &liveSource{
			Source:  ui.NewClientSource(session),
			session: session,
			release: func() { _ = session.Close() },
		}, nil
	}

	counters, err := localCounters(opts)
	if err != nil {
		return nil, err
	}
	mon := traffic.NewMonitor(
		traffic.WithSource(counters),
		traffic.WithInterval(opts.interval),
	)
	mon.StartMonitoring()

	ctx, cancel := context.WithCancel(ctx)
	publisher := reachability.NewPublisher(nil)
	var closeSource func() error
	if source, err := reachability.NewNetworkManagerSource(); err != nil {
		slog.Debug("NetworkManager unavailable", "error", err)
	} else {
		closeSource = source.Close
		publisher = reachability.NewPublisher(source)
		go func() {
			if err := publisher.Run(ctx); err != nil {
				slog.Debug("Reachability monitoring stopped", "error", err)
			}
		}()
	}

	release := func() {
		cancel()
		mon.StopMonitoring()
		if closeSource != nil {
			_ = closeSource()
		}
	}
	return &liveSource{
		Source:    ui.NewLocalSource(mon, publisher),
		publisher: publisher,
		release:   release,
	}, nil
}

func cmdTop(ctx context.Context, opts options, _ []string, _ io.Writer) error {
	live, err := openSource(ctx, opts)
	if err != nil {
		return err
	}
	defer live.release()

	p := tea.NewProgram(ui.NewTop(live.Source, opts.interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

func cmdTray(ctx context.Context, opts options, _ []string, _ io.Writer) error {
	live, err := openSource(ctx, opts)
	if err != nil {
		return err
	}
	defer live.release()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tray := ui.NewTrayIcon()
	setMonitoring := func(on bool) {
		ctrl, ok := live.Source.(ui.Controller)
		if !ok {
			return
		}
		reqCtx, cancel := withTimeout(ctx)
		defer cancel()
		if err := ctrl.SetMonitoring(reqCtx, on); err != nil {
			slog.Warn("Failed to change monitoring", "monitoring", on, "error", err)
		}
	}
	if err := tray.OnStart(func() { setMonitoring(true) }); err != nil {
		return err
	}
	if err := tray.OnStop(func() { setMonitoring(false) }); err != nil {
		return err
	}
	if err := tray.OnQuit(tray.Quit); err != nil {
		return err
	}

	bus := sessionBus()
	if bus != nil {
		defer bus.Close()
	}
	notifier := ui.NewNotifier(bus)
	if err := tray.SetNotifier(notifier); err != nil {
		return err
	}
	if live.session != nil {
		live.session.OnReachabilityChange(notifier.NotifyReachability)
	} else {
		go notifier.Watch(ctx, live.publisher)
	}

	go tray.Follow(ctx, live.Source, opts.interval)
	go func() {
		<-ctx.Done()
		tray.Quit()
	}()

	return tray.Run()
}

func cmdConfig(_ context.Context, opts options, args []string, out io.Writer) error {
	mgr, err := config.Open(opts.configFile)
	if err != nil {
		return err
	}

	switch {
	case len(args) == 0:
		if !opts.json {
			fmt.Fprintf(out, "File: %s\n", mgr.GetConfigFile())
		}
		return printJSON(out, mgr.GetConfig())
	case len(args) == 3 && args[0] == "class":
		iface := args[1]
		class, err := traffic.ParseClass(args[2])
		if err != nil {
			return err
		}
		err = mgr.UpdateField(func(cfg *config.Config) {
			if cfg.InterfaceClasses == nil {
				cfg.InterfaceClasses = make(map[string]string)
			}
			cfg.InterfaceClasses[iface] = string(class)
		})
		if err != nil {
			return fmt.Errorf("failed to update configuration: %w", err)
		}
		fmt.Fprintf(out, "%s is now classified as %s; restart netmond to apply\n", iface, class)
		return nil
	default:
		return fmt.Errorf("usage: config [class <interface> <wwan|wifi|awdl|none>]")
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// sessionBus connects to the session bus for desktop notifications. It
// returns nil when there is none.
func sessionBus() *dbus.Conn {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		slog.Debug("Session bus unavailable, notifications disabled", "error", err)
		return nil
	}
	return conn
}
