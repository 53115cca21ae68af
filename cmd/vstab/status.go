package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vstab/pkg/controller"
	"github.com/charlie0129/vstab/pkg/protection"
)

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of the regulator",
		Long:    `Get regulator status: measured voltages, tap step, protection state and stored settings.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			if asJSON {
				b, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, snap)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, snap *controller.Snapshot) {
	cmd.Println(bold("Regulator:"))
	cmd.Printf("  Mode: %s\n", modeText(snap.Mode))
	cmd.Printf("  Calibrated: %s\n", bool2Text(snap.Calibrated))
	if !snap.Calibrated && snap.Mode != controller.ModeCalibrating {
		cmd.Println("    The output stays off until the regulator is calibrated. Run 'vstab calibrate begin'.")
	}
	cmd.Printf("  Output: %s\n", bool2Text(snap.Control.OutputClosed))
	cmd.Printf("  Cycles: %s", bold("%s", humanize.Comma(int64(snap.Cycles))))
	if snap.Overruns > 0 {
		cmd.Printf(" (%s overrun)", color.YellowString(humanize.Comma(int64(snap.Overruns))))
	}
	cmd.Println()
	if snap.LastError != "" {
		cmd.Printf("  Last error: %s\n", color.RedString(snap.LastError))
	}

	cmd.Println()

	if snap.Calibrated {
		cmd.Println(bold("Measurements:"))
		cmd.Printf("  Output voltage: %s\n", bold("%.0f V", snap.Control.OPV))
		cmd.Printf("  Input voltage: %s\n", bold("%.0f V", snap.Control.IPV))
		cmd.Printf("  Filtered ADC: %s\n", bold("%d", snap.Control.FilteredADC))
		cmd.Printf("  Low-voltage cut-off: %s\n", bool2Text(snap.Control.LowCutEnabled))

		cmd.Println()

		cmd.Println(bold("Tap changer:"))
		cmd.Printf("  Step: %s\n", bold("%d/%d (ratio %.3f)", snap.Tap.Step, snap.Tap.TopStep, snap.Tap.TapRatio))
		if snap.Tap.Armed {
			cmd.Printf("  Pending: %s in %d ms\n", bold("%d", snap.Tap.Pending), snap.Tap.PendingInMs)
		}

		cmd.Println()

		printProtection(cmd, snap.Protection)

		cmd.Println()
	}

	cmd.Println(bold("Settings:"))
	cmd.Printf("  Reference ADC: %s\n", bold("%d", snap.Settings.ReferenceADC))
	cmd.Printf("  Re-engage delay: %s\n", bold("%s", time.Duration(snap.Settings.ReengageDelayMs)*time.Millisecond))

	if snap.Calibration != nil && snap.Calibration.Active {
		cmd.Println()
		cmd.Println(bold("Calibration:"))
		printCalibrationStatus(cmd, snap.Calibration)
	}
}

func printProtection(cmd *cobra.Command, st protection.Status) {
	cmd.Println(bold("Protection:"))

	state := string(st.State)
	switch {
	case st.State == protection.Normal:
		state = color.GreenString(state)
	case st.State.Tripped():
		state = color.RedString(state)
	default:
		state = color.YellowString(state)
	}
	cmd.Printf("  State: %s\n", bold("%s", state))
	cmd.Printf("  Relay closed: %s\n", bool2Text(st.RelayClosed))
	if st.State == protection.DelayActive && st.ReengageInMs > 0 {
		at := time.Now().Add(time.Duration(st.ReengageInMs) * time.Millisecond)
		cmd.Printf("  Re-engage: %s\n", bold("%s", humanize.RelTime(at, time.Now(), "ago", "from now")))
	}
	cmd.Printf("  Trips: %s high, %s low\n",
		bold("%s", humanize.Comma(int64(st.HiTrips))),
		bold("%s", humanize.Comma(int64(st.LoTrips))))
}

func modeText(m controller.SystemMode) string {
	switch m {
	case controller.ModeNormal:
		return color.New(color.Bold, color.FgGreen).Sprint(m)
	case controller.ModeFaulted:
		return color.New(color.Bold, color.FgRed).Sprint(m)
	}
	return color.New(color.Bold, color.FgYellow).Sprint(m)
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
