package cellular

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
)

const (
	mmService         = "org.freedesktop.ModemManager1"
	mmPath            = dbus.ObjectPath("/org/freedesktop/ModemManager1")
	mmModemInterface  = "org.freedesktop.ModemManager1.Modem"
	mm3gppInterface   = "org.freedesktop.ModemManager1.Modem.Modem3gpp"
	getManagedObjects = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

// ErrNoModem is returned when ModemManager reports no modem.
var ErrNoModem = errors.New("no cellular modem found")

// managedObjects is the reply of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// ModemManagerReader reads cellular details from ModemManager on the system
// bus.
type ModemManagerReader struct {
	conn  *dbus.Conn
	owned bool
}

// NewModemManagerReader connects to the system bus.
func NewModemManagerReader() (*ModemManagerReader, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return &ModemManagerReader{conn: conn, owned: true}, nil
}

// NewModemManagerReaderWithConn uses an existing bus connection, which the
// caller keeps ownership of.
func NewModemManagerReaderWithConn(conn *dbus.Conn) *ModemManagerReader {
	return &ModemManagerReader{conn: conn}
}

// Close closes the bus connection if the reader opened it.
func (r *ModemManagerReader) Close() error {
	if !r.owned {
		return nil
	}
	return r.conn.Close()
}

// Read returns details of the first modem. It returns ErrNoModem when
// ModemManager manages none.
func (r *ModemManagerReader) Read(ctx context.Context) (Info, error) {
	var objects managedObjects
	err := r.conn.Object(mmService, mmPath).
		CallWithContext(ctx, getManagedObjects, 0).
		Store(&objects)
	if err != nil {
		return Info{}, fmt.Errorf("failed to list modems: %w", err)
	}
	return infoFromObjects(objects)
}

// infoFromObjects extracts the modem with the lowest object path.
func infoFromObjects(objects managedObjects) (Info, error) {
	paths := make([]string, 0, len(objects))
	for path, ifaces := range objects {
		if _, ok := ifaces[mmModemInterface]; ok {
			paths = append(paths, string(path))
		}
	}
	if len(paths) == 0 {
		return Info{}, ErrNoModem
	}
	sort.Strings(paths)

	path := dbus.ObjectPath(paths[0])
	modem := objects[path][mmModemInterface]
	info := Info{Modem: string(path)}

	if v, ok := modem["AccessTechnologies"]; ok {
		if mask, ok := v.Value().(uint32); ok {
			info.AccessTech = AccessTechFromMask(mask)
		}
	}
	if v, ok := modem["SignalQuality"]; ok {
		info.SignalQuality = signalQuality(v)
	}

	if gpp, ok := objects[path][mm3gppInterface]; ok {
		if v, ok := gpp["OperatorCode"]; ok {
			info.OperatorCode, _ = v.Value().(string)
		}
		if v, ok := gpp["OperatorName"]; ok {
			info.OperatorName, _ = v.Value().(string)
		}
	}
	info.Operator = OperatorFromCode(info.OperatorCode)

	return info, nil
}

// signalQuality decodes the (ub) SignalQuality property: percent and whether
// the value is recent.
func signalQuality(v dbus.Variant) uint32 {
	fields, ok := v.Value().([]interface{})
	if !ok || len(fields) == 0 {
		return 0
	}
	q, _ := fields[0].(uint32)
	return q
}
