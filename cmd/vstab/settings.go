package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "settings",
		Short:   "Show or erase the stored calibration settings",
		GroupID: gCalibration,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.GetSettings()
			if err != nil {
				return err
			}
			cmd.Printf("Reference ADC: %s\n", bold("%d", s.ReferenceADC))
			cmd.Printf("Re-engage delay: %s\n", bold("%s", time.Duration(s.ReengageDelayMs)*time.Millisecond))
			cmd.Printf("Calibrated: %s\n", bool2Text(s.Calibrated()))
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase the stored settings and enter calibration",
		Long: `Erase the stored settings. The regulator opens the output relay and
enters the calibration wizard.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("this turns the output off until the regulator is recalibrated; pass --yes to confirm")
			}
			st, err := apiClient.ClearSettings()
			if err != nil {
				return err
			}
			cmd.Println("Settings erased.")
			printCalibrationStatus(cmd, st)
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm erasing the settings")

	cmd.AddCommand(showCmd, clearCmd)
	return cmd
}
