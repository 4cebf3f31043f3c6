package traffic

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIface describes an interface in a fake sysfs tree.
type fakeIface struct {
	name    string
	rx, tx  uint64
	devType string
	entries []string
}

func writeSysfs(t *testing.T, root string, ifaces ...fakeIface) {
	t.Helper()
	for _, iface := range ifaces {
		dir := filepath.Join(root, iface.name)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "statistics"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "statistics", "rx_bytes"),
			[]byte(strconv.FormatUint(iface.rx, 10)+"\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "statistics", "tx_bytes"),
			[]byte(strconv.FormatUint(iface.tx, 10)+"\n"), 0o644))

		uevent := "INTERFACE=" + iface.name + "\n"
		if iface.devType != "" {
			uevent += "DEVTYPE=" + iface.devType + "\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0o644))

		for _, e := range iface.entries {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, e), 0o755))
		}
	}
}

func TestCounters_Bytes(t *testing.T) {
	c := Counters{
		WWANSent: 1, WWANReceived: 2,
		WiFiSent: 4, WiFiReceived: 8,
		AWDLSent: 16, AWDLReceived: 32,
	}

	assert.Equal(t, uint64(12), c.Bytes(WiFi))
	assert.Equal(t, c.Bytes(WiFiSent)+c.Bytes(WiFiReceived), c.Bytes(WiFi))
	assert.Equal(t, uint64(63), c.Bytes(All))
	assert.Equal(t, uint64(18), c.Bytes(WWANReceived|AWDLSent))
	assert.Zero(t, c.Bytes(0))

	var sum uint64
	for _, d := range directions {
		sum += c.Bytes(d)
	}
	assert.Equal(t, sum, c.Bytes(All))
}

func TestSysfsSource_ReadCounters(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root,
		fakeIface{name: "lo", rx: 999, tx: 999},
		fakeIface{name: "eth0", rx: 5000, tx: 5000},
		fakeIface{name: "wlan0", rx: 2000, tx: 300, devType: "wlan"},
		fakeIface{name: "wwan0", rx: 1000, tx: 100, devType: "wwan"},
		fakeIface{name: "rmnet_data0", rx: 10, tx: 1},
		fakeIface{name: "p2p-wlan0-0", rx: 70, tx: 7, devType: "wlan"},
	)

	src := NewSysfsSource(root, nil)
	counters, err := src.ReadCounters()
	require.NoError(t, err)

	assert.Equal(t, uint64(101), counters[WWANSent])
	assert.Equal(t, uint64(1010), counters[WWANReceived])
	assert.Equal(t, uint64(300), counters[WiFiSent])
	assert.Equal(t, uint64(2000), counters[WiFiReceived])
	assert.Equal(t, uint64(7), counters[AWDLSent])
	assert.Equal(t, uint64(70), counters[AWDLReceived])
	assert.Len(t, counters, 6)
}

func TestSysfsSource_ReadCounters_Overrides(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root,
		fakeIface{name: "eth0", rx: 5000, tx: 500},
		fakeIface{name: "wlan0", rx: 2000, tx: 300, devType: "wlan"},
	)

	src := NewSysfsSource(root, map[string]Class{"eth0": ClassWiFi, "wlan0": ClassNone})
	counters, err := src.ReadCounters()
	require.NoError(t, err)

	assert.Equal(t, uint64(5500), counters.Bytes(WiFi))
}

func TestSysfsSource_ReadCounters_SkipsBrokenInterface(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root, fakeIface{name: "wlan0", rx: 2000, tx: 300, devType: "wlan"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "wlan1", "wireless"), 0o755))

	counters, err := NewSysfsSource(root, nil).ReadCounters()
	require.NoError(t, err)
	assert.Equal(t, uint64(2300), counters.Bytes(WiFi))
}

func TestSysfsSource_ReadCounters_MissingRoot(t *testing.T) {
	src := NewSysfsSource(filepath.Join(t.TempDir(), "missing"), nil)

	_, err := src.ReadCounters()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumerate interfaces")
}

func TestReadStatFile_PathTraversal(t *testing.T) {
	src := NewSysfsSource("/sys/class/net", nil)

	tests := []struct {
		name        string
		path        string
		expectError bool
	}{
		{
			name:        "valid sysfs path",
			path:        "/sys/class/net/eth0/statistics/rx_bytes",
			expectError: false, // may still fail to read, but not on validation
		},
		{"path traversal attempt", "/sys/class/net/../../../etc/passwd", true},
		{"absolute path outside sysfs", "/etc/passwd", true},
		{"relative path traversal", "/sys/class/net/eth0/../../shadow", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.readStatFile(tt.path)
			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid stats path")
			}
		})
	}
}

type staticSource struct {
	counters Counters
	err      error
}

func (s staticSource) ReadCounters() (Counters, error) {
	return s.counters, s.err
}

func TestTrafficBytes(t *testing.T) {
	src := staticSource{counters: Counters{WiFiSent: 40, WiFiReceived: 2, WWANSent: 100}}

	n, err := TrafficBytes(src, WiFi)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	sent, _ := TrafficBytes(src, WiFiSent)
	received, _ := TrafficBytes(src, WiFiReceived)
	assert.Equal(t, n, sent+received)

	all, err := TrafficBytes(src, All)
	require.NoError(t, err)
	assert.Equal(t, uint64(142), all)
}

func TestTrafficBytes_Error(t *testing.T) {
	_, err := TrafficBytes(staticSource{err: errors.New("boom")}, All)
	assert.EqualError(t, err, "boom")
}

func useDefaultSource(t *testing.T, src CounterSource) {
	t.Helper()
	orig := defaultSource
	defaultSource = func() CounterSource { return src }
	t.Cleanup(func() { defaultSource = orig })
}

func TestGetNetworkTrafficBytes_CompositeEqualsParts(t *testing.T) {
	useDefaultSource(t, staticSource{counters: Counters{
		WWANSent: 1, WWANReceived: 20,
		WiFiSent: 300, WiFiReceived: 4000,
		AWDLSent: 50000, AWDLReceived: 600000,
	}})

	assert.Equal(t, uint64(4300), GetNetworkTrafficBytes(WiFi))
	assert.Equal(t, GetNetworkTrafficBytes(WiFiSent)+GetNetworkTrafficBytes(WiFiReceived),
		GetNetworkTrafficBytes(WiFi))

	var sum uint64
	for _, d := range []TrafficType{WWANSent, WWANReceived, WiFiSent, WiFiReceived, AWDLSent, AWDLReceived} {
		sum += GetNetworkTrafficBytes(d)
	}
	assert.Equal(t, uint64(654321), sum)
	assert.Equal(t, sum, GetNetworkTrafficBytes(All))
}

func TestGetNetworkTrafficBytes_ReadError(t *testing.T) {
	useDefaultSource(t, staticSource{err: errors.New("boom")})

	assert.Zero(t, GetNetworkTrafficBytes(All))
}

func TestSysfsSource_ReadCounters_KeepsLastGoodOnReadFailure(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root,
		fakeIface{name: "wlan0", rx: 5_000_000_000, tx: 10, devType: "wlan"},
		fakeIface{name: "wlan1", rx: 100, tx: 20, devType: "wlan"},
	)
	src := NewSysfsSource(root, nil)

	var now time.Duration
	sampler := NewSampler(src, ClockFunc(func() time.Duration {
		now += time.Second
		return now
	}))

	first, _, err := sampler.Sample(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000_130), first.Counters[WiFi])

	rxPath := filepath.Join(root, "wlan0", "statistics", "rx_bytes")
	require.NoError(t, os.Remove(rxPath))

	second, speeds, err := sampler.Sample(&first)
	require.NoError(t, err)
	assert.Equal(t, first.Counters[WiFi], second.Counters[WiFi])
	assert.Equal(t, SpeedState{}, speeds)

	require.NoError(t, os.WriteFile(rxPath, []byte("5000000000\n"), 0o644))

	third, speeds, err := sampler.Sample(&second)
	require.NoError(t, err)
	assert.Equal(t, first.Counters[WiFi], third.Counters[WiFi])
	assert.Equal(t, SpeedState{}, speeds)
}

func TestSysfsSource_ReadCounters_ForgetsRemovedInterface(t *testing.T) {
	root := t.TempDir()
	writeSysfs(t, root,
		fakeIface{name: "wlan0", rx: 1000, tx: 0, devType: "wlan"},
		fakeIface{name: "wlan1", rx: 100, tx: 0, devType: "wlan"},
	)
	src := NewSysfsSource(root, nil)

	counters, err := src.ReadCounters()
	require.NoError(t, err)
	assert.Equal(t, uint64(1100), counters.Bytes(WiFi))

	require.NoError(t, os.RemoveAll(filepath.Join(root, "wlan0")))
	counters, err = src.ReadCounters()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), counters.Bytes(WiFi))

	// A new interface reusing the name is read fresh.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "wlan0", "wireless"), 0o755))
	counters, err = src.ReadCounters()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), counters.Bytes(WiFi))
}
