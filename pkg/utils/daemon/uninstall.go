package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Uninstall stops the service and removes its unit.
func Uninstall() error {
	logrus.Infof("stopping vstab")

	err := exec.Command(systemctl, "disable", "--now", unitName).Run()
	if err != nil {
		return fmt.Errorf("failed to disable %s: %w. Are you root?", unitName, err)
	}

	logrus.Infof("removing systemd unit")

	if err := removeUnit(); err != nil {
		return err
	}

	return exec.Command(systemctl, "daemon-reload").Run()
}

func removeUnit() error {
	p := unitPath()

	err := os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", p, err)
	}
	return nil
}
