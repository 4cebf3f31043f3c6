package traffic

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultInterval is the default time between samples.
	DefaultInterval = time.Second
	// MinInterval is the shortest accepted sampling interval.
	MinInterval = 100 * time.Millisecond
)

// tickerFunc starts a ticker and returns its channel and a stop function.
type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type options struct {
	source    CounterSource
	clock     Clock
	interval  time.Duration
	newTicker tickerFunc
}

// Option configures a Monitor.
type Option func(*options)

// WithSource sets the counter source. The default reads DefaultSysfsRoot.
func WithSource(src CounterSource) Option {
	return func(o *options) { o.source = src }
}

// WithClock sets the clock used to timestamp samples.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithInterval sets the sampling interval. Values below MinInterval are
// raised to MinInterval.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// Monitor periodically samples traffic counters and publishes per-class
// speeds. It is safe for concurrent use.
type Monitor struct {
	sampler   *Sampler
	interval  time.Duration
	newTicker tickerFunc

	// tickMu serializes sample computations across start/stop cycles.
	tickMu  sync.Mutex
	failing bool // guarded by tickMu

	mu         sync.RWMutex
	speeds     SpeedState
	running    bool
	generation uint64
	stopChan   chan struct{}
}

// NewMonitor creates a stopped monitor.
func NewMonitor(opts ...Option) *Monitor {
	o := options{
		interval:  DefaultInterval,
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.source == nil {
		o.source = NewSysfsSource(DefaultSysfsRoot, nil)
	}
	if o.interval < MinInterval {
		o.interval = MinInterval
	}
	return &Monitor{
		sampler:   NewSampler(o.source, o.clock),
		interval:  o.interval,
		newTicker: o.newTicker,
	}
}

var (
	sharedMu sync.Mutex
	shared   *Monitor
)

// Shared returns the process-wide monitor, creating it on first use.
func Shared() *Monitor {
	return SharedWith()
}

// SharedWith returns the process-wide monitor, creating it with opts if it
// does not exist yet. Options are ignored once the monitor exists.
func SharedWith(opts ...Option) *Monitor {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = NewMonitor(opts...)
	}
	return shared
}

// Interval returns the sampling interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// StartMonitoring begins sampling. The previous sample is discarded, so the
// first tick reports zero speeds. Calling it while running does nothing.
func (m *Monitor) StartMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	m.generation++
	m.stopChan = make(chan struct{})
	tick, stopTicker := m.newTicker(m.interval)

	go m.sampleLoop(m.generation, m.stopChan, tick, stopTicker)

	slog.Info("Traffic monitoring started", "interval", m.interval)
}

// StopMonitoring stops sampling without waiting for an in-flight tick; such
// a tick is discarded. The last speeds remain readable. Calling it while
// stopped does nothing.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.stopChan = nil
	m.mu.Unlock()

	slog.Info("Traffic monitoring stopped")
}

// IsMonitoring reports whether the monitor is sampling.
func (m *Monitor) IsMonitoring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Speeds returns a consistent snapshot of the latest speeds.
func (m *Monitor) Speeds() SpeedState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.speeds
}

// WWANSpeed returns the cellular throughput in bytes per second.
func (m *Monitor) WWANSpeed() uint64 { return m.Speeds().WWAN }

// WiFiSpeed returns the Wi-Fi throughput in bytes per second.
func (m *Monitor) WiFiSpeed() uint64 { return m.Speeds().WiFi }

// AWDLSpeed returns the peer-to-peer throughput in bytes per second.
func (m *Monitor) AWDLSpeed() uint64 { return m.Speeds().AWDL }

// AllSpeed returns the combined throughput in bytes per second.
func (m *Monitor) AllSpeed() uint64 { return m.Speeds().All }

func (m *Monitor) sampleLoop(gen uint64, stop <-chan struct{}, tick <-chan time.Time, stopTicker func()) {
	defer stopTicker()

	prev := m.tick(gen, nil)
	for {
		select {
		case <-stop:
			return
		case <-tick:
			prev = m.tick(gen, prev)
		}
	}
}

// tick takes one sample and publishes its speeds if gen is still the active
// run. It returns the sample to use as previous for the next tick.
func (m *Monitor) tick(gen uint64, prev *Sample) *Sample {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	next, speeds, err := m.sampler.Sample(prev)
	if err != nil {
		if !m.failing {
			slog.Warn("Failed to read traffic counters, keeping last speeds", "error", err)
		} else {
			slog.Debug("Traffic counters still unavailable", "error", err)
		}
		m.failing = true
		return prev
	}
	if m.failing {
		slog.Info("Traffic counters available again")
		m.failing = false
	}

	m.mu.Lock()
	if m.running && m.generation == gen {
		m.speeds = speeds
	}
	m.mu.Unlock()

	return &next
}
