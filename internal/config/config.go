// Package config loads the controller configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Rules backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Hardware modes.
const (
	HardwareGPIO = "gpio"
	HardwareFake = "fake"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the full controller configuration.
type Config struct {
	HTTP     HTTP     `yaml:"http"`
	MQTT     MQTT     `yaml:"mqtt"`
	Rules    Rules    `yaml:"rules"`
	History  History  `yaml:"history"`
	Hardware Hardware `yaml:"hardware"`
	// TimeZone is an IANA zone name or "Local".
	TimeZone string `yaml:"time_zone"`
	Log      Log    `yaml:"log"`
}

// HTTP configures the API and status server.
type HTTP struct {
	// Addr is the listen address; empty disables the server.
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// MQTT configures the event publisher.
type MQTT struct {
	// Broker is the broker URL; empty disables publishing.
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	BufferSize  int           `yaml:"buffer_size"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

// Rules selects where rules and overrides are persisted.
type Rules struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// History configures the command log.
type History struct {
	// Path of the SQLite database; empty disables history.
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Hardware configures the actuators.
type Hardware struct {
	Mode          string        `yaml:"mode"`
	GPIOChip      string        `yaml:"gpio_chip"`
	PumpLine      int           `yaml:"pump_line"`
	PumpActiveLow bool          `yaml:"pump_active_low"`
	PWMChip       int           `yaml:"pwm_chip"`
	PWMChannel    int           `yaml:"pwm_channel"`
	PWMPeriod     time.Duration `yaml:"pwm_period"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080"},
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "grow-controller",
			TopicPrefix: "home/grow/controller",
			BufferSize:  256,
			Heartbeat:   15 * time.Minute,
		},
		Rules:   Rules{Backend: BackendJSON, Path: "schedules.json"},
		History: History{Path: "history.db", RetentionDays: 30},
		Hardware: Hardware{
			Mode:        HardwareGPIO,
			GPIOChip:    "gpiochip0",
			PumpLine:    17,
			PWMChip:     0,
			PWMChannel:  0,
			PWMPeriod:   time.Millisecond,
			CallTimeout: 5 * time.Second,
		},
		TimeZone: "Local",
		Log:      Log{Level: "info", Format: FormatConsole},
	}
}

// Load reads path over the defaults. An empty path returns Default.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the controller cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Rules.Backend {
	case BackendJSON, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("rules.backend must be %q or %q, got %q", BackendJSON, BackendSQLite, c.Rules.Backend))
	}
	if c.Rules.Path == "" {
		errs = append(errs, errors.New("rules.path is required"))
	}

	switch c.Hardware.Mode {
	case HardwareGPIO:
		if c.Hardware.GPIOChip == "" {
			errs = append(errs, errors.New("hardware.gpio_chip is required"))
		}
		if c.Hardware.PumpLine < 0 {
			errs = append(errs, fmt.Errorf("hardware.pump_line must be >= 0, got %d", c.Hardware.PumpLine))
		}
		if c.Hardware.PWMChip < 0 || c.Hardware.PWMChannel < 0 {
			errs = append(errs, errors.New("hardware.pwm_chip and hardware.pwm_channel must be >= 0"))
		}
		if c.Hardware.PWMPeriod <= 0 {
			errs = append(errs, fmt.Errorf("hardware.pwm_period must be positive, got %v", c.Hardware.PWMPeriod))
		}
	case HardwareFake:
	default:
		errs = append(errs, fmt.Errorf("hardware.mode must be %q or %q, got %q", HardwareGPIO, HardwareFake, c.Hardware.Mode))
	}
	if c.Hardware.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("hardware.call_timeout must be positive, got %v", c.Hardware.CallTimeout))
	}

	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" {
			errs = append(errs, errors.New("mqtt.client_id is required when mqtt.broker is set"))
		}
		if c.MQTT.Heartbeat < 0 {
			errs = append(errs, fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat))
		}
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("history.retention_days must not be negative, got %d", c.History.RetentionDays))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %q or %q, got %q", FormatConsole, FormatJSON, c.Log.Format))
	}

	return errors.Join(errs...)
}

// Location resolves TimeZone. An empty zone means UTC.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time_zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}
