package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/vstab/pkg/config"
	daemonutils "github.com/charlie0129/vstab/pkg/utils/daemon"
)

var gInstallation = "Installation:"

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	port := ""

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install vstab as a systemd service",
		GroupID:     gInstallation,
		Annotations: map[string]string{"local": "true"},
		Long: `Install vstab daemon as a systemd service.

This makes vstab run in the background and start on boot. You must run this command as root.

By default, only root user is allowed to access the vstab daemon. Use --allow-non-root-access to let other users run the client without sudo.

Pass --port to drive a board on a serial port; without it the daemon keeps the backend already in the config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the vstab daemon.")
			} else {
				logrus.Info("only root user is allowed to access the vstab daemon.")
			}
			if port != "" {
				conf.SetBackend(config.BackendSerial)
				conf.SetSerialPort(port)
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("`systemd' will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``vstab install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access vstab daemon.")
	cmd.Flags().StringVar(&port, "port", "", "Serial port of the regulator board (see 'vstab ports').")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall the vstab systemd service",
		GroupID:     gInstallation,
		Annotations: map[string]string{"local": "true"},
		Long: `Stop vstab and remove its systemd unit. The daemon opens the output relay on the way down.

You must run this command as root.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			logrus.Infof("uninstallation succeeded")
			return nil
		},
	}
}
