package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fyne.io/systray"

	"github.com/shini4i/netmon/internal/reachability"
	"github.com/shini4i/netmon/internal/traffic"
)

var (
	// ErrTrayAlreadyRunning is returned when attempting to modify callbacks after Run() has been called.
	ErrTrayAlreadyRunning = errors.New("cannot modify callbacks after TrayIcon.Run() is called")
	// ErrTrayRunTwice is returned when Run() is called more than once.
	ErrTrayRunTwice = errors.New("TrayIcon.Run() called twice")
	// ErrTrayMissingCallbacks is returned when Run() is called without all required callbacks set.
	ErrTrayMissingCallbacks = errors.New("all callbacks (OnStart, OnStop, OnQuit) must be set before calling Run()")
)

// TrayIcon shows the current speeds and reachability in the system tray.
type TrayIcon struct {
	mu sync.RWMutex

	// State
	snap      Snapshot
	available bool
	lastErr   string

	// Menu items
	menuStatus   *systray.MenuItem
	menuSpeeds   []*systray.MenuItem
	menuCellular *systray.MenuItem
	menuStart    *systray.MenuItem
	menuStop     *systray.MenuItem
	menuNotify   *systray.MenuItem
	menuQuit     *systray.MenuItem

	// Callbacks - must be set before Run() is called
	onStart func()
	onStop  func()
	onQuit  func()

	// Optional, toggled from the menu
	notifier *Notifier

	// Icons (set once in NewTrayIcon, read-only after initialization)
	iconOffline     []byte
	iconUnreachable []byte
	iconViaWWAN     []byte
	iconViaWiFi     []byte

	// Done channel to signal goroutine termination
	done chan struct{}

	// Lifecycle flags
	running   bool
	closeOnce sync.Once
}

// NewTrayIcon creates a new system tray icon manager.
func NewTrayIcon() *TrayIcon {
	return &TrayIcon{
		snap:            Snapshot{Reachability: reachability.StatusUnknown},
		iconOffline:     iconOfflinePNG,
		iconUnreachable: iconUnreachablePNG,
		iconViaWWAN:     iconViaWWANPNG,
		iconViaWiFi:     iconViaWiFiPNG,
		done:            make(chan struct{}),
	}
}

// OnStart registers a callback for when Start Monitoring is clicked in tray.
// Must be called before Run(). Returns ErrTrayAlreadyRunning if called after Run().
func (t *TrayIcon) OnStart(callback func()) error {
	return t.setCallback(&t.onStart, callback)
}

// OnStop registers a callback for when Stop Monitoring is clicked in tray.
// Must be called before Run(). Returns ErrTrayAlreadyRunning if called after Run().
func (t *TrayIcon) OnStop(callback func()) error {
	return t.setCallback(&t.onStop, callback)
}

// OnQuit registers a callback for when Quit is clicked in tray.
// Must be called before Run(). Returns ErrTrayAlreadyRunning if called after Run().
func (t *TrayIcon) OnQuit(callback func()) error {
	return t.setCallback(&t.onQuit, callback)
}

func (t *TrayIcon) setCallback(slot *func(), callback func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrTrayAlreadyRunning
	}
	*slot = callback
	return nil
}

// SetNotifier adds a menu checkbox that enables or disables n. Must be
// called before Run().
func (t *TrayIcon) SetNotifier(n *Notifier) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrTrayAlreadyRunning
	}
	t.notifier = n
	return nil
}

// SetSnapshot updates the icon and menu with a new reading.
func (t *TrayIcon) SetSnapshot(s Snapshot) {
	t.mu.Lock()
	t.snap = s
	t.available = true
	t.lastErr = ""
	t.mu.Unlock()
	t.refresh()
}

// SetUnavailable marks the data source as unreachable.
func (t *TrayIcon) SetUnavailable(err error) {
	t.mu.Lock()
	t.available = false
	t.lastErr = ""
	if err != nil {
		t.lastErr = err.Error()
	}
	t.mu.Unlock()
	t.refresh()
}

// Follow polls source every interval and updates the tray until ctx is
// done or Quit is called.
func (t *TrayIcon) Follow(ctx context.Context, source Source, interval time.Duration) {
	if interval <= 0 {
		interval = defaultRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		snap, err := source.Snapshot(reqCtx)
		cancel()
		if err != nil {
			slog.Debug("Failed to read snapshot", "error", err)
			t.SetUnavailable(err)
		} else {
			t.SetSnapshot(snap)
		}

		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
		}
	}
}

// Run starts the system tray icon. This should be called in a goroutine
// as it blocks until the tray is closed. All callbacks (OnStart, OnStop,
// OnQuit) must be registered before calling Run().
// Returns ErrTrayMissingCallbacks if any callback is not set.
// Returns ErrTrayRunTwice if called more than once.
func (t *TrayIcon) Run() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrTrayRunTwice
	}

	if t.onStart == nil || t.onStop == nil || t.onQuit == nil {
		t.mu.Unlock()
		return ErrTrayMissingCallbacks
	}

	t.running = true
	t.mu.Unlock()

	systray.Run(t.onReady, t.onExit)
	return nil
}

// Quit closes the system tray icon and terminates the click handler goroutine.
// Safe to call multiple times.
func (t *TrayIcon) Quit() {
	t.closeOnce.Do(func() {
		close(t.done)
		systray.Quit()
	})
}

// onReady is called when the tray is ready to be configured.
func (t *TrayIcon) onReady() {
	systray.SetIcon(t.iconOffline)
	systray.SetTitle("netmon")
	systray.SetTooltip("netmon - waiting for data")

	menuStatus := systray.AddMenuItem("Reachability: Unknown", "Current reachability")
	menuStatus.Disable()

	menuSpeeds := make([]*systray.MenuItem, 0, len(speedRows))
	for _, row := range speedRows {
		item := systray.AddMenuItem(row.label+": -", "Current "+row.label+" speed")
		item.Disable()
		menuSpeeds = append(menuSpeeds, item)
	}

	menuCellular := systray.AddMenuItem("", "Cellular details")
	menuCellular.Disable()
	menuCellular.Hide()

	systray.AddSeparator()

	menuStart := systray.AddMenuItem("Start Monitoring", "Start sampling traffic counters")
	menuStop := systray.AddMenuItem("Stop Monitoring", "Stop sampling traffic counters")

	t.mu.RLock()
	notifier := t.notifier
	t.mu.RUnlock()
	var menuNotify *systray.MenuItem
	if notifier != nil {
		menuNotify = systray.AddMenuItemCheckbox("Notifications",
			"Show a desktop notification when reachability changes", notifier.IsEnabled())
	}

	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit the tray indicator")

	t.mu.Lock()
	t.menuStatus = menuStatus
	t.menuSpeeds = menuSpeeds
	t.menuCellular = menuCellular
	t.menuStart = menuStart
	t.menuStop = menuStop
	t.menuNotify = menuNotify
	t.menuQuit = menuQuit
	t.mu.Unlock()

	t.refresh()

	go t.handleMenuClicks()

	slog.Info("System tray initialized")
}

// onExit is called when the tray is being closed.
func (t *TrayIcon) onExit() {
	slog.Info("System tray closed")
}

// handleMenuClicks processes menu item clicks.
func (t *TrayIcon) handleMenuClicks() {
	var notifyClicked chan struct{}
	if t.menuNotify != nil {
		notifyClicked = t.menuNotify.ClickedCh
	}

	for {
		select {
		case <-t.done:
			return
		case _, ok := <-t.menuStart.ClickedCh:
			if !ok {
				return
			}
			t.onStart()
		case _, ok := <-t.menuStop.ClickedCh:
			if !ok {
				return
			}
			t.onStop()
		case _, ok := <-notifyClicked:
			if !ok {
				return
			}
			t.toggleNotifications()
		case _, ok := <-t.menuQuit.ClickedCh:
			if !ok {
				return
			}
			t.onQuit()
		}
	}
}

// toggleNotifications flips the notifier and its checkbox, returning the new
// state.
func (t *TrayIcon) toggleNotifications() bool {
	t.mu.RLock()
	n, item := t.notifier, t.menuNotify
	t.mu.RUnlock()
	if n == nil {
		return false
	}

	enabled := !n.IsEnabled()
	n.SetEnabled(enabled)
	if item != nil {
		if enabled {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
	slog.Info("Notifications toggled", "enabled", enabled)
	return enabled
}

// refresh pushes the current state to the icon and menu.
func (t *TrayIcon) refresh() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus == nil {
		return // Not initialized yet
	}

	systray.SetIcon(t.iconFor())
	systray.SetTitle(trayTitle(t.snap, t.available))
	systray.SetTooltip(t.tooltip())

	t.menuStatus.SetTitle(t.statusText())

	for i, row := range speedRows {
		text := row.label + ": -"
		if t.available && t.snap.Monitoring {
			text = fmt.Sprintf("%s: %s", row.label, traffic.FormatRate(t.snap.Speeds.Class(row.class)))
		}
		t.menuSpeeds[i].SetTitle(text)
	}

	if text := cellularText(t.snap); t.available && text != "" {
		t.menuCellular.SetTitle(text)
		t.menuCellular.Show()
	} else {
		t.menuCellular.Hide()
	}

	switch {
	case !t.available:
		t.menuStart.Disable()
		t.menuStop.Disable()
	case t.snap.Monitoring:
		t.menuStart.Disable()
		t.menuStop.Enable()
	default:
		t.menuStart.Enable()
		t.menuStop.Disable()
	}
}

// iconFor picks the icon for the current state. Callers hold t.mu.
func (t *TrayIcon) iconFor() []byte {
	if !t.available {
		return t.iconOffline
	}
	switch t.snap.Reachability {
	case reachability.StatusViaWiFi:
		return t.iconViaWiFi
	case reachability.StatusViaWWAN:
		return t.iconViaWWAN
	case reachability.StatusNotReachable:
		return t.iconUnreachable
	default:
		return t.iconOffline
	}
}

// statusText returns the reachability menu title. Callers hold t.mu.
func (t *TrayIcon) statusText() string {
	if !t.available {
		if t.lastErr != "" {
			return "Unavailable: " + t.lastErr
		}
		return "Unavailable"
	}
	return "Reachability: " + ReachabilityText(t.snap.Reachability)
}

// tooltip returns the tray tooltip. Callers hold t.mu.
func (t *TrayIcon) tooltip() string {
	if !t.available {
		return "netmon - unavailable"
	}
	if !t.snap.Monitoring {
		return fmt.Sprintf("netmon - %s, monitoring stopped", ReachabilityText(t.snap.Reachability))
	}
	return fmt.Sprintf("netmon - %s, %s total", ReachabilityText(t.snap.Reachability),
		traffic.FormatRate(t.snap.Speeds.All))
}

// trayTitle is the short text shown next to the icon.
func trayTitle(s Snapshot, available bool) string {
	switch {
	case !available:
		return "netmon"
	case !s.Monitoring:
		return "paused"
	default:
		return fmt.Sprintf("%.1f KB/s", traffic.KiBPerSecond(s.Speeds.All))
	}
}

// cellularText describes the cellular link, or returns "" without a modem.
func cellularText(s Snapshot) string {
	c := s.Cellular
	if c == nil {
		return ""
	}
	operator := c.Operator.String()
	if c.OperatorName != "" {
		operator = c.OperatorName
	}
	if gen := c.AccessTech.Generation(); gen != "" {
		return fmt.Sprintf("%s %s, signal %d%%", operator, gen, c.SignalQuality)
	}
	return fmt.Sprintf("%s, signal %d%%", operator, c.SignalQuality)
}
