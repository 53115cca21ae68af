package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/settings"
)

func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibrate",
		Aliases: []string{"calibration", "cali"},
		Short:   "Run the calibration wizard",
		Long: `Run the two-step calibration wizard.

Beginning calibration erases the stored settings and opens the output relay.
First pick the re-engage delay, then apply the calibration voltage to the
input and capture it. The same steps are available on the board with the
setting button.`,
		GroupID: gCalibration,
	}

	beginCmd := &cobra.Command{
		Use:   "begin",
		Short: "Erase settings and start the wizard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.BeginCalibration()
			if err != nil {
				return fmt.Errorf("failed to begin calibration: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	delayCmd := &cobra.Command{
		Use:   "delay",
		Short: "Choose the re-engage delay",
	}

	delayNextCmd := &cobra.Command{
		Use:   "next",
		Short: "Cycle to the next delay preset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.NextDelay()
			if err != nil {
				return fmt.Errorf("failed to select next delay: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	delayConfirmCmd := &cobra.Command{
		Use:   "confirm",
		Short: "Accept the current preset and move on to the voltage capture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.ConfirmDelay()
			if err != nil {
				return fmt.Errorf("failed to confirm delay: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	delaySetCmd := &cobra.Command{
		Use:   "set <seconds>",
		Short: "Set an explicit delay and move on to the voltage capture",
		Long: fmt.Sprintf(`Set an explicit re-engage delay in seconds. Values are clamped to %d..%d seconds.`,
			settings.MinReengageDelayMs/1000, settings.MaxReengageDelayMs/1000),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid delay: %w", err)
			}
			st, err := apiClient.SetDelay(uint32(seconds) * 1000)
			if err != nil {
				return fmt.Errorf("failed to set delay: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	delayCmd.AddCommand(delayNextCmd, delayConfirmCmd, delaySetCmd)

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the calibration voltage currently applied to the input",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := apiClient.Capture()
			if err != nil {
				return fmt.Errorf("failed to capture: %w", err)
			}
			cmd.Println("Calibration saved.")
			cmd.Printf("  Reference ADC: %s\n", bold("%d", s.ReferenceADC))
			cmd.Printf("  Re-engage delay: %s\n", bold("%s", time.Duration(s.ReengageDelayMs)*time.Millisecond))
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Abandon the wizard",
		Long:  "Abandon the wizard. Settings erased when it began stay erased.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := apiClient.CancelCalibration()
			if err != nil {
				return fmt.Errorf("failed to cancel calibration: %w", err)
			}
			cmd.Println("Calibration canceled.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the wizard status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibration()
			if err != nil {
				return fmt.Errorf("failed to fetch calibration status: %w", err)
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}

	cmd.AddCommand(beginCmd, delayCmd, captureCmd, cancelCmd, statusCmd)
	return cmd
}

func printCalibrationStatus(cmd *cobra.Command, st *calibration.Status) {
	cmd.Printf("  Phase: %s\n", bold(string(st.Phase)))
	if !st.Active {
		if st.Message != "" {
			cmd.Printf("  %s\n", st.Message)
		}
		return
	}
	cmd.Printf("  Re-engage delay: %s\n", bold("%s", time.Duration(st.DelayMs)*time.Millisecond))
	if st.Phase == calibration.PhaseWaitingADC {
		cmd.Printf("  Apply: %s\n", bold("%.0f V", st.ReferenceVoltage))
	}
	if st.CapturedADC > 0 {
		cmd.Printf("  Last capture: %s\n", bold("%d", st.CapturedADC))
	}
	if !st.StartedAt.IsZero() {
		cmd.Printf("  Started: %s (%s ago)\n", st.StartedAt.Format(time.RFC3339), time.Since(st.StartedAt).Round(time.Second))
	}
	if st.Message != "" {
		cmd.Printf("  %s\n", st.Message)
	}
}
