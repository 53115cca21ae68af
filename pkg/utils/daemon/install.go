// Package daemon installs the vstab daemon as a systemd service.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var (
	unitDir   = "/etc/systemd/system"
	unitName  = "vstab.service"
	systemctl = "/bin/systemctl"
)

func unitPath() string {
	return filepath.Join(unitDir, unitName)
}

// Install writes the unit for the current executable and starts it.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	unit := Unit(UnitOptions{
		Executable: exePath,
		ConfigPath: configPath,
		SocketPath: socketPath,
	})

	if err := writeUnit(unit); err != nil {
		return err
	}

	logrus.Infof("starting vstab")

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", "--now", unitName},
	} {
		if err := exec.Command(systemctl, args...).Run(); err != nil {
			return fmt.Errorf("failed to run systemctl %v: %w", args, err)
		}
	}

	return nil
}

func writeUnit(unit string) error {
	p := unitPath()

	logrus.Infof("writing systemd unit to %s", unitDir)

	err := os.MkdirAll(unitDir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	// warn if the file already exists
	_, err = os.Stat(p)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", p)
	}

	err = os.WriteFile(p, []byte(unit), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}

	return nil
}
