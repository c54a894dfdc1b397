package application

import (
	"sync"
	"time"
)

// Bounds for runtime-configurable intervals. Out-of-range requests are
// clamped, never rejected.
const (
	MinPublishInterval = 1000 * time.Millisecond
	MaxPublishInterval = 60000 * time.Millisecond
	MinPollInterval    = 1000 * time.Millisecond
	MaxPollInterval    = 300000 * time.Millisecond
)

// Sensor names accepted by set_poll_rate.
const (
	SensorBattery = "battery"
	SensorTemp    = "temp"
	SensorWifi    = "wifi"
)

// RuntimeConfig holds the intervals that the command channel may change
// while the agent runs.
type RuntimeConfig struct {
	PublishInterval time.Duration
	PollBattery     time.Duration
	PollTemp        time.Duration
	PollWifi        time.Duration
}

// Snapshot is a full copy of the shared state, taken under the lock and
// used unlocked.
type Snapshot struct {
	Battery          BatteryReading
	BatteryValid     bool
	Temperature      TemperatureReading
	TemperatureValid bool
	Wifi             WifiReading
	WifiValid        bool

	Config RuntimeConfig

	SessionState SessionState
	PublishCount uint32
	CmdCount     uint32
	LastCmd      string
}

// SharedState is the rendezvous point between the sampling goroutine and
// the network-owning control loop. One mutex guards the sensor snapshot,
// the runtime configuration, and the status counters together. Critical
// sections are copy-in/copy-out only; callers never do sensor, network,
// or JSON work while holding the lock.
type SharedState struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewSharedState(cfg RuntimeConfig) *SharedState {
	return &SharedState{snap: Snapshot{Config: cfg}}
}

// Snapshot returns a copy of the whole shared structure.
func (s *SharedState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *SharedState) Config() RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Config
}

// SetBattery stores the latest reading. The validity flag latches true
// on the first successful read and is never reset by later failures.
func (s *SharedState) SetBattery(r BatteryReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Battery = r
	s.snap.BatteryValid = true
}

func (s *SharedState) SetTemperature(r TemperatureReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Temperature = r
	s.snap.TemperatureValid = true
}

func (s *SharedState) SetWifi(r WifiReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Wifi = r
	s.snap.WifiValid = true
}

// SetPublishInterval clamps the requested interval into its bounds and
// applies it, returning the applied value.
func (s *SharedState) SetPublishInterval(d time.Duration) time.Duration {
	applied := clampDuration(d, MinPublishInterval, MaxPublishInterval)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Config.PublishInterval = applied
	return applied
}

// SetPollInterval clamps and applies the poll interval for the named
// sensor. An unrecognized sensor name is a no-op and reports false.
func (s *SharedState) SetPollInterval(sensor string, d time.Duration) (time.Duration, bool) {
	applied := clampDuration(d, MinPollInterval, MaxPollInterval)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch sensor {
	case SensorBattery:
		s.snap.Config.PollBattery = applied
	case SensorTemp:
		s.snap.Config.PollTemp = applied
	case SensorWifi:
		s.snap.Config.PollWifi = applied
	default:
		return 0, false
	}
	return applied, true
}

// RecordCommand counts any well-formed command envelope, recognized or
// not, and remembers its name for the status report.
func (s *SharedState) RecordCommand(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CmdCount++
	s.snap.LastCmd = name
}

func (s *SharedState) IncPublishCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.PublishCount++
}

func (s *SharedState) SetSessionState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.SessionState = state
}

func clampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
