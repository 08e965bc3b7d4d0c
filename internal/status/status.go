// Package status provides a thread-safe status tracker for the grow-controller
// daemon. It is written by the schedule engine and read by HTTP handlers and
// the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/grow-controller/internal/schedule"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Broker       string
	TopicPrefix  string
	HTTPAddr     string
	RulesBackend string
	Hardware     string
	TimeZone     string
}

// LightStatus is the last light state the engine commanded.
type LightStatus struct {
	// Known is false until the first successful command.
	Known         bool
	BrightnessPct int
	// Held is set while light rules are paused.
	Held   bool
	RuleID string
}

// PumpStatus is the last pump state the engine commanded.
type PumpStatus struct {
	Known  bool
	On     bool
	Held   bool
	Manual bool
}

// Counts are totals since start.
type Counts struct {
	Ticks         int
	LightCommands int
	PumpCommands  int
	Failures      int
}

// Tick is what the engine reports after each evaluation.
type Tick struct {
	At      time.Time
	Light   LightStatus
	Pump    PumpStatus
	Windows []schedule.ActivationWindow
	Rules   int
	Skipped int
	// Err is the first command failure of the tick, if any.
	Err error
	// Commanded counts per actuator, and failures, issued during the tick.
	LightCommands int
	PumpCommands  int
	Failures      int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Running   bool
	Light     LightStatus
	Pump      PumpStatus
	Windows   []schedule.ActivationWindow
	Rules     int
	Skipped   int
	LastTick  time.Time
	LastError string
	Counts    Counts

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordTick stores the outcome of one engine tick.
func (t *Tracker) RecordTick(tick Tick) {
	windows := append([]schedule.ActivationWindow(nil), tick.Windows...)

	t.mu.Lock()
	t.snap.Light = tick.Light
	t.snap.Pump = tick.Pump
	t.snap.Windows = windows
	t.snap.Rules = tick.Rules
	t.snap.Skipped = tick.Skipped
	t.snap.LastTick = tick.At
	t.snap.LastError = ""
	if tick.Err != nil {
		t.snap.LastError = tick.Err.Error()
	}
	t.snap.Counts.Ticks++
	t.snap.Counts.LightCommands += tick.LightCommands
	t.snap.Counts.PumpCommands += tick.PumpCommands
	t.snap.Counts.Failures += tick.Failures
	t.mu.Unlock()
}

// SetRunning sets whether the schedule engine loop is running.
func (t *Tracker) SetRunning(running bool) {
	t.mu.Lock()
	t.snap.Running = running
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Windows = append([]schedule.ActivationWindow(nil), t.snap.Windows...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
