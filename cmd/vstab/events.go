package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vstab/pkg/events"
)

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Aliases: []string{"watch"},
		GroupID: gBasic,
		Short:   "Stream mode, tap and protection changes as they happen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.Events(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				cmd.Printf("%s %s\n", time.Now().Format(time.TimeOnly), describeEvent(ev))
			}
			return nil
		},
	}
}

func describeEvent(ev events.Event) string {
	name := bold("%-18s", ev.Name)

	switch ev.Name {
	case events.ModeChanged:
		if p, err := events.DecodeAs[events.ModeChangedEvent](ev); err == nil {
			return name + " " + p.From + " -> " + modeColor(p.To)
		}
	case events.ProtectionState:
		if p, err := events.DecodeAs[events.ProtectionStateEvent](ev); err == nil {
			return name + " " + p.From + " -> " + p.To + " " + bold("%.0f V", p.OPV) + " relay " + bool2Text(p.RelayClosed)
		}
	case events.TapStep:
		if p, err := events.DecodeAs[events.TapStepEvent](ev); err == nil {
			return name + " " + bold("%d -> %d", p.From, p.To) + " " + bold("%.0f V in", p.IPV)
		}
	case events.CalibrationPhase:
		if p, err := events.DecodeAs[events.CalibrationPhaseEvent](ev); err == nil {
			return name + " " + p.From + " -> " + p.To
		}
	}

	return name + " " + string(ev.Data)
}

func modeColor(mode string) string {
	switch mode {
	case "Normal":
		return color.GreenString(mode)
	case "Faulted":
		return color.RedString(mode)
	}
	return color.YellowString(mode)
}
