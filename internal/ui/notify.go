package ui

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/shini4i/netmon/internal/reachability"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify  = "org.freedesktop.Notifications.Notify"

	notifyTimeout = 2 * time.Second
)

// notification is one desktop notification.
type notification struct {
	title string
	body  string
	icon  string
}

// sendFunc delivers a notification and returns the server-side id, which the
// next notification replaces.
type sendFunc func(ctx context.Context, n notification, replaces uint32) (uint32, error)

// Notifier sends desktop notifications for reachability changes.
// All methods are safe for concurrent access.
type Notifier struct {
	send      sendFunc
	enabled   atomic.Bool
	replaceID atomic.Uint32
}

// NewNotifier creates a notifier that talks to the notification server on
// conn, normally the session bus. A nil conn disables delivery.
func NewNotifier(conn *dbus.Conn) *Notifier {
	var send sendFunc
	if conn != nil {
		send = busSender(conn)
	}
	return newNotifier(send)
}

func newNotifier(send sendFunc) *Notifier {
	n := &Notifier{send: send}
	n.enabled.Store(true)
	return n
}

func busSender(conn *dbus.Conn) sendFunc {
	return func(ctx context.Context, n notification, replaces uint32) (uint32, error) {
		var id uint32
		err := conn.Object(notificationsService, notificationsPath).CallWithContext(ctx,
			notificationsNotify, 0,
			"netmon", replaces, n.icon, n.title, n.body,
			[]string{}, map[string]dbus.Variant{}, int32(-1),
		).Store(&id)
		return id, err
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	return n.enabled.Load()
}

// Watch notifies about every change published by p until ctx ends. A slow
// desktop only hears about the latest status.
func (n *Notifier) Watch(ctx context.Context, p *reachability.Publisher) {
	changes := p.Changes(ctx)
	n.follow(p.Status(), changes)
}

func (n *Notifier) follow(from reachability.Status, changes <-chan reachability.Status) {
	for to := range changes {
		n.NotifyReachability(from, to)
		from = to
	}
}

// NotifyReachability announces a reachability change. Changes from or to
// unknown are not announced.
func (n *Notifier) NotifyReachability(from, to reachability.Status) {
	if !n.enabled.Load() || n.send == nil {
		return
	}
	msg, ok := reachabilityNotification(from, to)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	id, err := n.send(ctx, msg, n.replaceID.Load())
	if err != nil {
		slog.Warn("Failed to send notification", "title", msg.title, "error", err)
		return
	}
	n.replaceID.Store(id)
	slog.Debug("Notification sent", "title", msg.title, "body", msg.body)
}

func reachabilityNotification(from, to reachability.Status) (notification, bool) {
	if from == to || from == reachability.StatusUnknown || to == reachability.StatusUnknown {
		return notification{}, false
	}
	if !to.IsReachable() {
		return notification{
			title: "Network Lost",
			body:  "The network is no longer reachable",
			icon:  "network-offline-symbolic",
		}, true
	}

	icon := "network-wireless-symbolic"
	if to == reachability.StatusViaWWAN {
		icon = "network-cellular-symbolic"
	}
	return notification{
		title: "Network Available",
		body:  ReachabilityText(to),
		icon:  icon,
	}, true
}
