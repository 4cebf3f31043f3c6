package traffic

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultSysfsRoot is the base path for network interface statistics.
const DefaultSysfsRoot = "/sys/class/net"

// Counters holds cumulative byte counts since boot, keyed by directional flag.
type Counters map[TrafficType]uint64

// Bytes sums the counts of every directional flag set in types.
func (c Counters) Bytes(types TrafficType) uint64 {
	var total uint64
	for _, d := range types.Directions() {
		total += c[d]
	}
	return total
}

// CounterSource reads cumulative byte counters for every tracked direction.
type CounterSource interface {
	ReadCounters() (Counters, error)
}

// TrafficBytes returns the cumulative byte count for the directions set in
// types, as observed by src.
func TrafficBytes(src CounterSource, types TrafficType) (uint64, error) {
	counters, err := src.ReadCounters()
	if err != nil {
		return 0, err
	}
	return counters.Bytes(types), nil
}

// defaultSource backs GetNetworkTrafficBytes.
var defaultSource = sync.OnceValue(func() CounterSource {
	return NewSysfsSource(DefaultSysfsRoot, nil)
})

// GetNetworkTrafficBytes returns the number of bytes transferred since boot
// for the directions set in types. It does not require monitoring to be
// running. Read failures are logged and reported as 0.
//
// Usage:
//
//	bytes := traffic.GetNetworkTrafficBytes(traffic.All)
//	now := clock.Now()
//	bytesPerSecond := float64(bytes-lastBytes) / (now - lastTime).Seconds()
func GetNetworkTrafficBytes(types TrafficType) uint64 {
	n, err := TrafficBytes(defaultSource(), types)
	if err != nil {
		slog.Warn("Failed to read traffic counters", "types", types, "error", err)
		return 0
	}
	return n
}

// SysfsSource reads per-interface counters from sysfs and aggregates them by
// interface class.
type SysfsSource struct {
	root       string
	classifier *Classifier

	mu       sync.Mutex
	lastGood map[string]ifaceStats
}

// ifaceStats is the last successful reading of one interface.
type ifaceStats struct {
	rx, tx uint64
}

// NewSysfsSource creates a counter source rooted at root (normally
// DefaultSysfsRoot). overrides pins interface names to classes.
func NewSysfsSource(root string, overrides map[string]Class) *SysfsSource {
	if root == "" {
		root = DefaultSysfsRoot
	}
	root = filepath.Clean(root)
	return &SysfsSource{
		root:       root,
		classifier: NewClassifier(root, overrides),
		lastGood:   make(map[string]ifaceStats),
	}
}

// ReadCounters enumerates interfaces and sums their counters per direction.
// An interface whose statistics cannot be read contributes its last good
// reading, so class sums do not dip for one tick and then jump back.
// Interfaces never read successfully are skipped.
func (s *SysfsSource) ReadCounters() (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}

	counters := make(Counters, len(directions))
	for _, d := range directions {
		counters[d] = 0
	}

	seen := make(map[string]ifaceStats, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		class := s.classifier.Classify(name)
		if class == ClassNone {
			continue
		}

		stats, err := s.readInterfaceStats(name)
		if err != nil {
			last, ok := s.lastGood[name]
			if !ok {
				slog.Debug("Failed to read interface stats", "interface", name, "error", err)
				continue
			}
			slog.Debug("Using last interface stats", "interface", name, "error", err)
			stats = last
		}
		seen[name] = stats
		counters[class.Sent()] += stats.tx
		counters[class.Received()] += stats.rx
	}
	// Interfaces no longer listed are forgotten.
	s.lastGood = seen
	return counters, nil
}

// readInterfaceStats reads rx_bytes and tx_bytes for the given interface.
func (s *SysfsSource) readInterfaceStats(ifaceName string) (ifaceStats, error) {
	statsDir := filepath.Join(s.root, ifaceName, "statistics")

	rx, err := s.readStatFile(filepath.Join(statsDir, "rx_bytes"))
	if err != nil {
		return ifaceStats{}, err
	}
	tx, err := s.readStatFile(filepath.Join(statsDir, "tx_bytes"))
	if err != nil {
		return ifaceStats{}, err
	}
	return ifaceStats{rx: rx, tx: tx}, nil
}

// readStatFile reads a single counter file. The path must stay under the
// source root.
func (s *SysfsSource) readStatFile(path string) (uint64, error) {
	cleanPath := filepath.Clean(path)
	if !strings.HasPrefix(cleanPath, s.root+string(filepath.Separator)) {
		return 0, errors.New("invalid stats path: outside sysfs network directory")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path validated above
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
