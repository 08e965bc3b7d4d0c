// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/grow-controller/internal/actuator"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "home/grow/controller"

// Topics are the MQTT topics the controller publishes to.
type Topics struct {
	// Events carries one message per actuator command.
	Events string
	// System carries lifecycle events.
	System string
}

// TopicsFor derives the topics from a prefix.
func TopicsFor(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events: prefix + "/actuators/events",
		System: prefix + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishActuator sends an actuator command event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishActuator(event actuator.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Actuator ActuatorPayload `json:"actuator"`
}

// ActuatorPayload contains the command details. Exactly one of
// BrightnessPct and On is present, matching Name.
type ActuatorPayload struct {
	Timestamp     string `json:"timestamp"`
	Name          string `json:"name"`
	BrightnessPct *int   `json:"brightness_pct,omitempty"`
	On            *bool  `json:"on,omitempty"`
	Trigger       string `json:"trigger"`
	RuleID        string `json:"rule_id,omitempty"`
}

// FormatPayload creates the JSON payload for an actuator event.
func FormatPayload(event actuator.Event) ([]byte, error) {
	p := ActuatorPayload{
		Timestamp: event.Time.UTC().Format(time.RFC3339),
		Name:      string(event.Actuator),
		Trigger:   string(event.Trigger),
		RuleID:    event.RuleID,
	}
	if event.Actuator == actuator.Light {
		pct := event.BrightnessPct
		p.BrightnessPct = &pct
	} else {
		on := event.On
		p.On = &on
	}
	return json.Marshal(Payload{Actuator: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// willPayload is the retained last-will message the broker publishes if the
// controller disappears without a clean shutdown.
func willPayload() []byte {
	b, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection lost"}})
	return b
}
