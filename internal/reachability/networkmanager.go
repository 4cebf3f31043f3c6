package reachability

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"

	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesGet       = propertiesInterface + ".Get"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
	nmStateChanged      = nmInterface + ".StateChanged"
)

// NetworkManager global states (NMState).
const (
	nmStateUnknown       uint32 = 0
	nmStateConnectedSite uint32 = 60
)

// NetworkManager connection types reported as cellular.
var wwanConnectionTypes = map[string]bool{
	"gsm":       true,
	"cdma":      true,
	"bluetooth": true,
}

// ErrSignalChannelClosed is returned by Watch when the bus connection closes.
var ErrSignalChannelClosed = errors.New("D-Bus signal channel closed")

// ClassifyNetworkManager maps a NetworkManager global state and primary
// connection type onto a Status.
func ClassifyNetworkManager(state uint32, connectionType string) Status {
	switch {
	case state == nmStateUnknown:
		return StatusUnknown
	case state < nmStateConnectedSite:
		return StatusNotReachable
	case wwanConnectionTypes[connectionType]:
		return StatusViaWWAN
	default:
		return StatusViaWiFi
	}
}

// NetworkManagerSource reads reachability from NetworkManager on the
// system bus.
type NetworkManagerSource struct {
	conn  *dbus.Conn
	owned bool
}

// NewNetworkManagerSource connects to the system bus.
func NewNetworkManagerSource() (*NetworkManagerSource, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &NetworkManagerSource{conn: conn, owned: true}, nil
}

// NewNetworkManagerSourceWithConn uses an existing bus connection, which the
// caller keeps ownership of.
func NewNetworkManagerSourceWithConn(conn *dbus.Conn) *NetworkManagerSource {
	return &NetworkManagerSource{conn: conn}
}

// Close closes the bus connection if the source opened it.
func (s *NetworkManagerSource) Close() error {
	if !s.owned {
		return nil
	}
	return s.conn.Close()
}

// Current implements Source.
func (s *NetworkManagerSource) Current(ctx context.Context) (Status, error) {
	obj := s.conn.Object(nmService, nmPath)

	stateVar, err := getProperty(ctx, obj, "State")
	if err != nil {
		return StatusUnknown, err
	}
	state, ok := stateVar.Value().(uint32)
	if !ok {
		return StatusUnknown, fmt.Errorf("unexpected NetworkManager State type %s", stateVar.Signature())
	}

	typeVar, err := getProperty(ctx, obj, "PrimaryConnectionType")
	if err != nil {
		return StatusUnknown, err
	}
	connType, _ := typeVar.Value().(string)

	return ClassifyNetworkManager(state, connType), nil
}

func getProperty(ctx context.Context, obj dbus.BusObject, name string) (dbus.Variant, error) {
	var v dbus.Variant
	if err := obj.CallWithContext(ctx, propertiesGet, 0, nmInterface, name).Store(&v); err != nil {
		return dbus.Variant{}, fmt.Errorf("failed to read NetworkManager %s: %w", name, err)
	}
	return v, nil
}

// Watch implements Source.
func (s *NetworkManagerSource) Watch(ctx context.Context, onChange func()) error {
	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(nmPath),
			dbus.WithMatchInterface(propertiesInterface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchObjectPath(nmPath),
			dbus.WithMatchInterface(nmInterface),
			dbus.WithMatchMember("StateChanged"),
		},
	}
	for _, opts := range matches {
		if err := s.conn.AddMatchSignalContext(ctx, opts...); err != nil {
			return fmt.Errorf("failed to subscribe to NetworkManager signals: %w", err)
		}
		defer func(opts []dbus.MatchOption) {
			_ = s.conn.RemoveMatchSignal(opts...)
		}(opts)
	}

	signals := make(chan *dbus.Signal, 16)
	s.conn.Signal(signals)
	defer s.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return ErrSignalChannelClosed
			}
			if isReachabilitySignal(sig) {
				onChange()
			}
		}
	}
}

// isReachabilitySignal reports whether sig may change the reachability
// status.
func isReachabilitySignal(sig *dbus.Signal) bool {
	if sig == nil || sig.Path != nmPath {
		return false
	}
	switch sig.Name {
	case nmStateChanged:
		return true
	case propertiesChanged:
		if len(sig.Body) < 2 {
			return false
		}
		iface, _ := sig.Body[0].(string)
		if iface != nmInterface {
			return false
		}
		changed, _ := sig.Body[1].(map[string]dbus.Variant)
		_, state := changed["State"]
		_, connType := changed["PrimaryConnectionType"]
		return state || connType
	default:
		return false
	}
}
