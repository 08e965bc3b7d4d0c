// Command grow-controller drives a hydroponic grow light and pump from a
// persisted set of schedule rules.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/config"
	"github.com/sweeney/grow-controller/internal/engine"
	"github.com/sweeney/grow-controller/internal/history"
	"github.com/sweeney/grow-controller/internal/mqtt"
	"github.com/sweeney/grow-controller/internal/status"
	"github.com/sweeney/grow-controller/internal/store"
	"github.com/sweeney/grow-controller/internal/web"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := clock.NewSystem(loc)
	ctx := context.Background()

	backend, err := openBackend(cfg.Rules)
	if err != nil {
		return err
	}
	rules, err := store.Open(ctx, backend, store.Config{Now: clk.Now})
	if err != nil {
		backend.Close()
		return fmt.Errorf("open rules: %w", err)
	}
	defer rules.Close()

	var hist *history.Log
	if cfg.History.Path != "" {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer hist.Close()
		pruneHistory(ctx, hist, clk.Now(), cfg.History.RetentionDays)
	}

	gw, err := openGateway(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("init actuators: %w", err)
	}
	// Closing the hardware drives the pump off.
	defer gw.Close()

	var publisher *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(mqtt.RealConfig{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Topics:     mqtt.TopicsFor(cfg.MQTT.TopicPrefix),
			BufferSize: cfg.MQTT.BufferSize,
		})
		defer publisher.Close()
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:       cfg.MQTT.Broker,
		TopicPrefix:  cfg.MQTT.TopicPrefix,
		HTTPAddr:     cfg.HTTP.Addr,
		RulesBackend: cfg.Rules.Backend,
		Hardware:     cfg.Hardware.Mode,
		TimeZone:     loc.String(),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	engCfg := engine.Config{
		Rules:   rules,
		Gateway: actuator.WithTimeout(gw, cfg.Hardware.CallTimeout),
		Clock:   clk,
		Tracker: tracker,
	}
	lc := loopConfig{tracker: tracker, now: time.Now}
	if publisher != nil {
		engCfg.Notifier = publisher
		lc.publisher = publisher
		lc.mqttStatus = publisher
	}
	if hist != nil {
		engCfg.Recorder = hist
	}
	eng := engine.New(engCfg)

	if lc.publisher != nil {
		tracker.SetMQTTConnected(publisher.IsConnected())
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := lc.publisher.PublishSystem(startupEvent); err != nil {
			log.Warn().Err(err).Msg("failed to publish startup event")
		} else {
			log.Info().Msg("published startup event")
		}
	}

	if err := eng.Start(); err != nil {
		return err
	}
	defer eng.Stop()

	if cfg.HTTP.Addr != "" {
		webCfg := web.Config{
			Addr:        cfg.HTTP.Addr,
			CORSOrigins: cfg.HTTP.CORSOrigins,
			Store:       rules,
			Tracker:     tracker,
			Kicker:      eng,
			Now:         func() time.Time { return time.Now().In(loc) },
		}
		if hist != nil {
			webCfg.History = hist
		}
		srv := web.New(webCfg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
	}

	log.Info().
		Str("rules", cfg.Rules.Backend+":"+cfg.Rules.Path).
		Str("hardware", cfg.Hardware.Mode).
		Str("broker", cfg.MQTT.Broker).
		Str("time_zone", loc.String()).
		Msg("started")

	if cfg.MQTT.Heartbeat > 0 && lc.publisher != nil {
		hb := time.NewTicker(cfg.MQTT.Heartbeat)
		defer hb.Stop()
		lc.heartbeat = hb.C
	}
	if hist != nil && cfg.History.RetentionDays > 0 {
		daily := time.NewTicker(24 * time.Hour)
		defer daily.Stop()
		lc.prune = daily.C
		lc.pruneFn = func(t time.Time) { pruneHistory(ctx, hist, t, cfg.History.RetentionDays) }
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(lc, sigCh)
}

// loopConfig holds what the signal loop needs. publisher and mqttStatus may
// be nil when MQTT is disabled.
type loopConfig struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
	heartbeat  <-chan time.Time
	prune      <-chan time.Time
	pruneFn    func(time.Time)
}

func runLoop(lc loopConfig, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishStatus(lc, "SHUTDOWN", signalName, true)
			return nil

		case <-lc.heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				lc.tracker.SetNetwork(net)
			}
			publishStatus(lc, "HEARTBEAT", "", false)

		case t := <-lc.prune:
			if lc.pruneFn != nil {
				lc.pruneFn(t)
			}
		}
	}
}

func publishStatus(lc loopConfig, event, reason string, retained bool) {
	if lc.publisher == nil {
		return
	}
	if lc.mqttStatus != nil {
		lc.tracker.SetMQTTConnected(lc.mqttStatus.IsConnected())
	}
	snap := lc.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  lc.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := lc.publisher.PublishSystem(ev); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Debug().Str("event", event).Msg("published system event")
}

func openBackend(cfg config.Rules) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return store.OpenSQLite(cfg.Path)
	case config.BackendJSON:
		return store.NewJSONFile(cfg.Path), nil
	}
	return nil, fmt.Errorf("unknown rules backend %q", cfg.Backend)
}

func openGateway(cfg config.Hardware) (actuator.Gateway, error) {
	switch cfg.Mode {
	case config.HardwareFake:
		log.Warn().Msg("using fake actuators; no hardware will be driven")
		return actuator.NewFake(), nil
	case config.HardwareGPIO:
		return actuator.NewReal(actuator.RealConfig{
			GPIOChip:      cfg.GPIOChip,
			PumpLine:      cfg.PumpLine,
			PumpActiveLow: cfg.PumpActiveLow,
			PWMRoot:       actuator.SysfsPWMRoot,
			PWMChip:       cfg.PWMChip,
			PWMChannel:    cfg.PWMChannel,
			PWMPeriod:     cfg.PWMPeriod,
		})
	}
	return nil, fmt.Errorf("unknown hardware mode %q", cfg.Mode)
}

func pruneHistory(ctx context.Context, hist *history.Log, now time.Time, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	n, err := hist.Prune(ctx, now.AddDate(0, 0, -retentionDays))
	if err != nil {
		log.Warn().Err(err).Msg("history prune failed")
		return
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("pruned history")
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
