package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/grow-controller/internal/schedule"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                      `json:"event,omitempty"`
	Reason        string                      `json:"reason,omitempty"`
	Engine        string                      `json:"engine"`
	Light         LightJSON                   `json:"light"`
	Pump          PumpJSON                    `json:"pump"`
	Windows       []schedule.ActivationWindow `json:"open_windows"`
	Rules         int                         `json:"rules"`
	Skipped       int                         `json:"skipped_rules"`
	LastTick      string                      `json:"last_tick,omitempty"`
	LastError     string                      `json:"last_error,omitempty"`
	UptimeSeconds int64                       `json:"uptime_seconds"`
	StartTime     string                      `json:"start_time"`
	Timestamp     string                      `json:"timestamp"`
	MQTT          MQTTStatus                  `json:"mqtt"`
	Counts        CountsJSON                  `json:"counts"`
	Network       *NetworkJSON                `json:"network,omitempty"`
	Config        ConfigJSON                  `json:"config"`
}

// LightJSON reports the light. BrightnessPct is null until first commanded.
type LightJSON struct {
	BrightnessPct *int   `json:"brightness_pct"`
	Held          bool   `json:"held"`
	RuleID        string `json:"rule_id,omitempty"`
}

// PumpJSON reports the pump.
type PumpJSON struct {
	State  string `json:"state"`
	Held   bool   `json:"held"`
	Manual bool   `json:"manual"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of counters.
type CountsJSON struct {
	Ticks         int `json:"ticks"`
	LightCommands int `json:"light_commands"`
	PumpCommands  int `json:"pump_commands"`
	Failures      int `json:"failures"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker       string `json:"broker"`
	TopicPrefix  string `json:"topic_prefix"`
	HTTPAddr     string `json:"http_addr"`
	RulesBackend string `json:"rules_backend"`
	Hardware     string `json:"hardware"`
	TimeZone     string `json:"time_zone"`
}

// PumpState returns "ON", "OFF" or "UNKNOWN".
func (p PumpStatus) PumpState() string {
	switch {
	case !p.Known:
		return "UNKNOWN"
	case p.On:
		return "ON"
	default:
		return "OFF"
	}
}

// EngineState returns "running" or "stopped".
func (s Snapshot) EngineState() string {
	if s.Running {
		return "running"
	}
	return "stopped"
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Engine: snap.EngineState(),
		Light: LightJSON{
			Held:   snap.Light.Held,
			RuleID: snap.Light.RuleID,
		},
		Pump: PumpJSON{
			State:  snap.Pump.PumpState(),
			Held:   snap.Pump.Held,
			Manual: snap.Pump.Manual,
		},
		Windows:       snap.Windows,
		Rules:         snap.Rules,
		Skipped:       snap.Skipped,
		LastError:     snap.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Ticks:         snap.Counts.Ticks,
			LightCommands: snap.Counts.LightCommands,
			PumpCommands:  snap.Counts.PumpCommands,
			Failures:      snap.Counts.Failures,
		},
		Config: ConfigJSON{
			Broker:       snap.Config.Broker,
			TopicPrefix:  snap.Config.TopicPrefix,
			HTTPAddr:     snap.Config.HTTPAddr,
			RulesBackend: snap.Config.RulesBackend,
			Hardware:     snap.Config.Hardware,
			TimeZone:     snap.Config.TimeZone,
		},
	}
	if inner.Windows == nil {
		inner.Windows = []schedule.ActivationWindow{}
	}
	if snap.Light.Known {
		pct := snap.Light.BrightnessPct
		inner.Light.BrightnessPct = &pct
	}
	if !snap.LastTick.IsZero() {
		inner.LastTick = snap.LastTick.Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
