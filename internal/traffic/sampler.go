package traffic

import (
	"math"
	"time"
)

// Sample is one reading of the per-class cumulative counters.
type Sample struct {
	// Timestamp is the clock reading taken right after the counters were read.
	Timestamp time.Duration
	// Counters maps each class flag (WWAN, WiFi, AWDL) to its cumulative
	// sent+received byte count.
	Counters map[TrafficType]uint64
}

// MaxSpeed caps a single class speed so that All, the sum of three classes,
// cannot overflow.
const MaxSpeed uint64 = math.MaxUint64 / 3

// SpeedState holds per-class throughput in bytes per second.
type SpeedState struct {
	WWAN uint64 `json:"wwan"`
	WiFi uint64 `json:"wifi"`
	AWDL uint64 `json:"awdl"`
	All  uint64 `json:"all"`
}

// NewSpeedState builds a SpeedState whose All field is the sum of the classes.
func NewSpeedState(wwan, wifi, awdl uint64) SpeedState {
	return SpeedState{
		WWAN: wwan,
		WiFi: wifi,
		AWDL: awdl,
		All:  wwan + wifi + awdl,
	}
}

// Class returns the speed of the given class flag. All is accepted.
func (s SpeedState) Class(class TrafficType) uint64 {
	switch class {
	case WWAN:
		return s.WWAN
	case WiFi:
		return s.WiFi
	case AWDL:
		return s.AWDL
	case All:
		return s.All
	default:
		return 0
	}
}

// Sampler converts cumulative counters into throughput.
type Sampler struct {
	source CounterSource
	clock  Clock
}

// NewSampler creates a sampler reading from source and timing with clock.
func NewSampler(source CounterSource, clock Clock) *Sampler {
	if clock == nil {
		clock = SystemClock()
	}
	return &Sampler{source: source, clock: clock}
}

// Sample reads the counters and computes speeds against prev, which is nil on
// a cold start. On a read error no sample is produced and the caller should
// keep prev and its last speeds.
func (s *Sampler) Sample(prev *Sample) (Sample, SpeedState, error) {
	counters, err := s.source.ReadCounters()
	if err != nil {
		return Sample{}, SpeedState{}, err
	}

	next := Sample{
		Timestamp: s.clock.Now(),
		Counters:  make(map[TrafficType]uint64, len(classes)),
	}
	for _, class := range classes {
		next.Counters[class] = counters.Bytes(class)
	}
	return next, Speeds(prev, next), nil
}

// Speeds computes the throughput between two samples. A missing previous
// sample or a non-positive elapsed time yields zero for every class, and a
// counter that went backwards yields zero for that class. Speeds saturate at
// MaxSpeed.
func Speeds(prev *Sample, next Sample) SpeedState {
	if prev == nil {
		return SpeedState{}
	}
	elapsed := next.Timestamp - prev.Timestamp
	if elapsed <= 0 {
		return SpeedState{}
	}

	rate := func(class TrafficType) uint64 {
		cur, last := next.Counters[class], prev.Counters[class]
		if cur <= last {
			return 0
		}
		r := float64(cur-last) / elapsed.Seconds()
		if r >= float64(MaxSpeed) {
			return MaxSpeed
		}
		return uint64(r)
	}
	return NewSpeedState(rate(WWAN), rate(WiFi), rate(AWDL))
}
