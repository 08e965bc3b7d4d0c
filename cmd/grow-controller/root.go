package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/grow-controller/internal/config"
	"github.com/sweeney/grow-controller/internal/logging"
)

// options holds the global flags. Flags that are set override the config
// file.
type options struct {
	configPath string

	httpAddr    string
	broker      string
	topicPrefix string
	rulesStore  string
	rulesPath   string
	historyPath string
	hardware    string
	pumpLine    int
	callTimeout time.Duration
	timeZone    string
	logLevel    string
	logFormat   string

	cfg config.Config
}

func newRootCommand() *cobra.Command {
	return newRootCommandWithOptions(&options{})
}

func newRootCommandWithOptions(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grow-controller",
		Short: "Run the grow light and pump schedule",
		Long: "grow-controller evaluates light and pump schedule rules once a minute " +
			"and drives the actuators to match. Rules are managed over HTTP.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts.cfg)
		},
	}

	d := config.Default()
	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	f.StringVar(&opts.httpAddr, "http", d.HTTP.Addr, "HTTP listen address (empty to disable)")
	f.StringVar(&opts.broker, "broker", d.MQTT.Broker, "MQTT broker address (empty to disable)")
	f.StringVar(&opts.topicPrefix, "topic-prefix", d.MQTT.TopicPrefix, "MQTT topic prefix")
	f.StringVar(&opts.rulesStore, "rules-backend", d.Rules.Backend, "rules backend (json|sqlite)")
	f.StringVar(&opts.rulesPath, "rules-path", d.Rules.Path, "rules file or database path")
	f.StringVar(&opts.historyPath, "history", d.History.Path, "history database path (empty to disable)")
	f.StringVar(&opts.hardware, "hardware", d.Hardware.Mode, "actuator hardware (gpio|fake)")
	f.IntVar(&opts.pumpLine, "pump-line", d.Hardware.PumpLine, "GPIO line offset of the pump relay")
	f.DurationVar(&opts.callTimeout, "call-timeout", d.Hardware.CallTimeout, "bound on each actuator command")
	f.StringVar(&opts.timeZone, "tz", d.TimeZone, "time zone rules are evaluated in")
	f.StringVar(&opts.logLevel, "log-level", d.Log.Level, "log level (debug|info|warn|error)")
	f.StringVar(&opts.logFormat, "log-format", d.Log.Format, "log format (console|json)")

	cmd.AddCommand(newPrintStateCommand(opts))
	return cmd
}

// resolve loads the config file and applies any flags that were set.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("http", func() { cfg.HTTP.Addr = o.httpAddr })
	set("broker", func() { cfg.MQTT.Broker = o.broker })
	set("topic-prefix", func() { cfg.MQTT.TopicPrefix = o.topicPrefix })
	set("rules-backend", func() { cfg.Rules.Backend = o.rulesStore })
	set("rules-path", func() { cfg.Rules.Path = o.rulesPath })
	set("history", func() { cfg.History.Path = o.historyPath })
	set("hardware", func() { cfg.Hardware.Mode = o.hardware })
	set("pump-line", func() { cfg.Hardware.PumpLine = o.pumpLine })
	set("call-timeout", func() { cfg.Hardware.CallTimeout = o.callTimeout })
	set("tz", func() { cfg.TimeZone = o.timeZone })
	set("log-level", func() { cfg.Log.Level = o.logLevel })
	set("log-format", func() { cfg.Log.Format = o.logFormat })

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
