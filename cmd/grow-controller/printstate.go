package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/schedule"
	"github.com/sweeney/grow-controller/internal/store"
)

func newPrintStateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the desired actuator state for the current minute and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := opts.cfg.Location()
			if err != nil {
				return err
			}
			backend, err := openBackend(opts.cfg.Rules)
			if err != nil {
				return err
			}
			defer backend.Close()

			snap, err := backend.Load(context.Background())
			if err != nil {
				return fmt.Errorf("load rules: %w", err)
			}
			printState(cmd.OutOrStdout(), snap, clock.NewSystem(loc).Now())
			return nil
		},
	}
}

// printState writes the evaluation of snap at now without touching hardware.
func printState(w io.Writer, snap store.Snapshot, now time.Time) {
	res := schedule.Evaluate(snap.Rules, snap.Overrides, now, nil)

	fmt.Fprintf(w, "Time: %s\n", now.Format("2006-01-02 15:04 MST"))

	switch {
	case res.Light.Hold:
		fmt.Fprintf(w, "Light: HOLD (rules paused until %s)\n", snap.Overrides.LightPausedUntil.In(now.Location()).Format(time.RFC3339))
	case res.Light.RuleID != "":
		fmt.Fprintf(w, "Light: %d%% (rule %s)\n", res.Light.BrightnessPct, res.Light.RuleID)
	default:
		fmt.Fprintf(w, "Light: %d%%\n", res.Light.BrightnessPct)
	}

	switch {
	case res.Pump.Manual:
		fmt.Fprintf(w, "Pump: ON (manual until %s)\n", snap.Overrides.ManualPump.Until.In(now.Location()).Format(time.RFC3339))
	case res.Pump.Hold:
		fmt.Fprintf(w, "Pump: HOLD (rules paused until %s)\n", snap.Overrides.PumpPausedUntil.In(now.Location()).Format(time.RFC3339))
	case res.Pump.On:
		fmt.Fprintln(w, "Pump: ON")
	default:
		fmt.Fprintln(w, "Pump: OFF")
	}

	for _, win := range res.Windows {
		fmt.Fprintf(w, "Window: %s %s-%s\n", win.RuleID, win.ActivatesAt, win.DeactivatesAt)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "Skipped: %s: %v\n", s.RuleID, s.Err)
	}
}
