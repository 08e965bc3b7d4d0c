// Package engine runs the schedule loop: once per wall-clock minute it reads
// the rule set, evaluates the desired actuator state and commands the
// hardware only where that state differs from what it last commanded.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/schedule"
	"github.com/sweeney/grow-controller/internal/status"
	"github.com/sweeney/grow-controller/internal/store"
)

var (
	// ErrTickInProgress is returned by Tick when another tick is running.
	ErrTickInProgress = errors.New("engine: tick already in progress")
	// ErrRunning is returned by Start when the loop is already running.
	ErrRunning = errors.New("engine: already running")
)

// State is the lifecycle state of the engine loop.
type State int

// Engine states.
const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// RuleSource supplies a consistent copy of the rules and overrides.
type RuleSource interface {
	Snapshot() store.Snapshot
}

// Notifier receives every successful actuator command.
type Notifier interface {
	PublishActuator(event actuator.Event) error
}

// Recorder persists every successful actuator command.
type Recorder interface {
	Record(ctx context.Context, event actuator.Event) error
}

// Config wires the engine's collaborators. Notifier, Recorder and Tracker
// are optional.
type Config struct {
	Rules    RuleSource
	Gateway  actuator.Gateway
	Clock    clock.Clock
	Notifier Notifier
	Recorder Recorder
	Tracker  *status.Tracker
}

// TickResult describes one tick.
type TickResult struct {
	At      time.Time
	Desired schedule.Desired
	Windows []schedule.ActivationWindow
	Opened  []schedule.ActivationWindow
	Closed  []schedule.ActivationWindow
	Skipped []schedule.SkippedRule
	// Commands are the commands that succeeded.
	Commands []actuator.Event
	// Errors are the commands that failed; they are retried next tick.
	Errors []error
}

// Engine is the schedule loop.
type Engine struct {
	cfg Config

	// tickMu makes ticks mutually exclusive. Everything below it up to mu is
	// only touched while holding it.
	tickMu     sync.Mutex
	lastLight  *int
	lastPump   *bool
	pumpManual bool
	windows    []schedule.ActivationWindow

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// New creates a stopped engine.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:  cfg,
		kick: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start begins the loop: one tick immediately, then one at every minute
// boundary.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = Running
	if e.cfg.Tracker != nil {
		e.cfg.Tracker.SetRunning(true)
	}

	go e.loop(ctx, e.done)
	log.Info().Msg("schedule engine started")
	return nil
}

// Stop ends the loop and waits for an in-flight tick to finish. Stopping a
// stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return
	}
	e.cancel()
	done := e.done
	e.state = Stopped
	e.mu.Unlock()

	<-done
	if e.cfg.Tracker != nil {
		e.cfg.Tracker.SetRunning(false)
	}
	log.Info().Msg("schedule engine stopped")
}

// Kick requests a tick as soon as possible, typically after a rule or
// override change. Requests made while one is pending are coalesced.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	e.runTick(ctx)
	// The boundary wait is armed after each scheduled tick completes, so a
	// tick that overruns skips the boundaries it missed instead of queueing.
	next := e.cfg.Clock.NextMinute()
	for {
		select {
		case <-ctx.Done():
			return
		case <-next:
			e.runTick(ctx)
			next = e.cfg.Clock.NextMinute()
		case <-e.kick:
			e.runTick(ctx)
		}
	}
}

// runTick runs a tick from the loop. The tick itself is not cancelled by
// Stop: commands in flight are completed so no actuator is left in an
// unknown state.
func (e *Engine) runTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := e.Tick(context.WithoutCancel(ctx))
	if errors.Is(err, ErrTickInProgress) {
		log.Warn().Msg("previous tick still running, skipping")
	}
}

// Tick runs one evaluate-diff-command cycle. Failed commands are reported in
// the result and in the returned error, and are retried on the next tick.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	if !e.tickMu.TryLock() {
		return TickResult{}, ErrTickInProgress
	}
	defer e.tickMu.Unlock()

	now := e.cfg.Clock.Now()
	snap := e.cfg.Rules.Snapshot()
	res := schedule.Evaluate(snap.Rules, snap.Overrides, now, e.windows)
	e.windows = res.Windows

	out := TickResult{
		At:      now,
		Desired: res.Desired,
		Windows: res.Windows,
		Opened:  res.Opened,
		Closed:  res.Closed,
		Skipped: res.Skipped,
	}

	for _, s := range res.Skipped {
		log.Error().Err(s.Err).Str("rule_id", s.RuleID).Msg("skipping malformed rule")
	}
	for _, w := range res.Opened {
		log.Info().Str("rule_id", w.RuleID).Stringer("until", w.DeactivatesAt).Msg("pump window opened")
	}
	for _, w := range res.Closed {
		log.Info().Str("rule_id", w.RuleID).Msg("pump window closed")
	}

	e.applyLight(ctx, res, &out)
	e.applyPump(ctx, res, &out)

	e.report(snap, res, out)
	return out, errors.Join(out.Errors...)
}

func (e *Engine) applyLight(ctx context.Context, res schedule.Result, out *TickResult) {
	if res.Light.Hold {
		// Forget the last command so the schedule is re-asserted once the
		// pause ends, whatever happened to the light meanwhile.
		e.lastLight = nil
		return
	}
	pct := res.Light.BrightnessPct
	if e.lastLight != nil && *e.lastLight == pct {
		return
	}

	if err := e.cfg.Gateway.SetLightBrightness(ctx, pct); err != nil {
		log.Error().Err(err).Int("brightness_pct", pct).Msg("light command failed")
		out.Errors = append(out.Errors, err)
		// A failed or timed-out write may still land, so the hardware
		// state is unknown until a command succeeds.
		e.lastLight = nil
		return
	}
	e.lastLight = &pct

	ev := actuator.Event{
		Time:          out.At,
		Actuator:      actuator.Light,
		BrightnessPct: pct,
		Trigger:       actuator.TriggerSchedule,
		RuleID:        res.Light.RuleID,
	}
	log.Info().Int("brightness_pct", pct).Str("rule_id", ev.RuleID).Msg("light set")
	e.emit(ctx, ev, out)
}

func (e *Engine) applyPump(ctx context.Context, res schedule.Result, out *TickResult) {
	if res.Pump.Hold {
		e.lastPump = nil
		e.pumpManual = false
		return
	}
	on := res.Pump.On
	if e.lastPump != nil && *e.lastPump == on {
		e.pumpManual = res.Pump.Manual
		return
	}

	if err := e.cfg.Gateway.SetPumpOn(ctx, on); err != nil {
		log.Error().Err(err).Bool("on", on).Msg("pump command failed")
		out.Errors = append(out.Errors, err)
		e.lastPump = nil
		return
	}

	ev := actuator.Event{
		Time:     out.At,
		Actuator: actuator.Pump,
		On:       on,
		Trigger:  actuator.TriggerSchedule,
	}
	switch {
	case res.Pump.Manual || (!on && e.pumpManual):
		ev.Trigger = actuator.TriggerManual
	case on && len(res.Windows) > 0:
		ev.RuleID = res.Windows[0].RuleID
	case !on && len(res.Closed) > 0:
		ev.RuleID = res.Closed[0].RuleID
	}
	e.lastPump = &on
	e.pumpManual = res.Pump.Manual

	log.Info().Bool("on", on).Str("trigger", string(ev.Trigger)).Str("rule_id", ev.RuleID).Msg("pump set")
	e.emit(ctx, ev, out)
}

func (e *Engine) emit(ctx context.Context, ev actuator.Event, out *TickResult) {
	out.Commands = append(out.Commands, ev)
	if e.cfg.Notifier != nil {
		if err := e.cfg.Notifier.PublishActuator(ev); err != nil {
			log.Warn().Err(err).Str("actuator", string(ev.Actuator)).Msg("publish actuator event failed")
		}
	}
	if e.cfg.Recorder != nil {
		if err := e.cfg.Recorder.Record(ctx, ev); err != nil {
			log.Warn().Err(err).Str("actuator", string(ev.Actuator)).Msg("record actuator event failed")
		}
	}
}

func (e *Engine) report(snap store.Snapshot, res schedule.Result, out TickResult) {
	if e.cfg.Tracker == nil {
		return
	}
	tick := status.Tick{
		At:      out.At,
		Windows: res.Windows,
		Rules:   len(snap.Rules),
		Skipped: len(res.Skipped),
		Light: status.LightStatus{
			Held:   res.Light.Hold,
			RuleID: res.Light.RuleID,
		},
		Pump: status.PumpStatus{
			Held:   res.Pump.Hold,
			Manual: res.Pump.Manual,
		},
		Failures: len(out.Errors),
	}
	if e.lastLight != nil {
		tick.Light.Known = true
		tick.Light.BrightnessPct = *e.lastLight
	}
	if e.lastPump != nil {
		tick.Pump.Known = true
		tick.Pump.On = *e.lastPump
	}
	for _, c := range out.Commands {
		if c.Actuator == actuator.Light {
			tick.LightCommands++
		} else {
			tick.PumpCommands++
		}
	}
	if len(out.Errors) > 0 {
		tick.Err = out.Errors[0]
	}
	e.cfg.Tracker.RecordTick(tick)
}
