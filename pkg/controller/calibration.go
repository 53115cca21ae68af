package controller

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/events"
	"github.com/charlie0129/vstab/pkg/settings"
	"github.com/charlie0129/vstab/pkg/voltage"
)

// runWizard feeds the setting button to the wizard. Nothing else runs while
// calibrating.
func (c *Controller) runWizard(now uint32) {
	pressed, err := c.io.ButtonPressed()
	if err != nil {
		c.recordError("failed to read setting button", err)
		return
	}

	p := c.press.Update(pressed, now)
	if p == calibration.PressNone {
		return
	}

	logrus.WithField("press", p).Debug("setting button pressed")

	prev := c.wizard.State().Phase
	st, err := c.wizard.HandlePress(p)
	if err != nil {
		logrus.WithError(err).Warn("calibration action failed")
	}
	c.afterWizard(prev, st)
}

// afterWizard publishes the phase change and leaves calibration mode when
// the wizard has finished or was canceled.
func (c *Controller) afterWizard(prev calibration.Phase, saved *settings.Settings) {
	status := c.wizard.Status()
	if status.Phase != prev {
		c.hub.Publish(events.CalibrationPhase, events.CalibrationPhaseEvent{
			From:    string(prev),
			To:      string(status.Phase),
			Message: status.Message,
			Ts:      time.Now().Unix(),
		})
	}

	if saved != nil {
		c.commitCalibration(*saved)
		return
	}

	if !status.Active && c.mode == ModeCalibrating {
		// Canceled: the store was erased on entry, so run uncalibrated.
		c.loadSettings()
		c.setMode(ModeNormal)
		c.updateLEDs()
	}
}

// commitCalibration puts freshly saved settings into effect: new reference,
// fresh filter, startup positioning and a full re-engage delay.
func (c *Controller) commitCalibration(st settings.Settings) {
	c.loadSettings()
	if c.settings != st {
		logrus.WithFields(logrus.Fields{
			"saved":  st,
			"loaded": c.settings,
		}).Error("settings read back differ from the ones saved")
	}
	c.sampler.Reset()
	c.state = ControlState{}

	if err := c.positionTap(); err != nil {
		c.recordError("failed to position tap after calibration", err)
	}
	if err := c.setOutput(false); err != nil {
		c.recordError("failed to open protection relay", err)
	}
	c.prot.Restart(c.clock.NowMs())
	c.setMode(ModeNormal)
	c.updateLEDs()
}

// beginCalibration erases the settings and switches to calibration mode
// with the protection relay open.
func (c *Controller) beginCalibration() error {
	prev := c.wizard.State().Phase
	if err := c.wizard.Begin(); err != nil {
		return err
	}

	c.press.Latch()
	c.settings = settings.Defaults()
	c.model = voltage.New(0, c.calV)
	if err := c.setOutput(false); err != nil {
		c.recordError("failed to open protection relay", err)
	}
	c.setMode(ModeCalibrating)
	c.updateLEDs()
	c.afterWizard(prev, nil)
	return nil
}

// BeginCalibration enters calibration mode from the API. It has the same
// effect as holding the setting button at boot.
func (c *Controller) BeginCalibration() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginCalibration()
}

// ClearSettings erases the stored settings, which forces recalibration. A
// wizard that is already running starts over from the delay step.
func (c *Controller) ClearSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wizard.Active() {
		phase := c.wizard.State().Phase
		if err := c.wizard.Cancel(); err != nil {
			return err
		}
		logrus.WithField("phase", phase).Info("settings cleared during calibration, starting over")
	}
	return c.beginCalibration()
}

// NextDelay cycles the re-engage delay preset.
func (c *Controller) NextDelay() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wizard.NextDelay()
}

// SetDelay selects an explicit re-engage delay and moves to capture.
func (c *Controller) SetDelay(ms uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.wizard.State().Phase
	if err := c.wizard.SetDelay(ms); err != nil {
		return err
	}
	c.afterWizard(prev, nil)
	return nil
}

// ConfirmDelay keeps the selected delay and moves to capture.
func (c *Controller) ConfirmDelay() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.wizard.State().Phase
	if err := c.wizard.ConfirmDelay(); err != nil {
		return err
	}
	c.afterWizard(prev, nil)
	return nil
}

// Capture samples the reference and, on success, returns to normal
// operation with the new settings.
func (c *Controller) Capture() (settings.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.wizard.State().Phase
	st, err := c.wizard.Capture()
	if err != nil {
		c.afterWizard(prev, nil)
		return settings.Settings{}, err
	}
	c.afterWizard(prev, &st)
	return st, nil
}

// CancelCalibration abandons the wizard and runs uncalibrated.
func (c *Controller) CancelCalibration() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.wizard.State().Phase
	if err := c.wizard.Cancel(); err != nil {
		return err
	}
	c.afterWizard(prev, nil)
	return nil
}

// CalibrationStatus returns the wizard view model.
func (c *Controller) CalibrationStatus() *calibration.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wizard.Status()
}
