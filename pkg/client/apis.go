package client

import (
	"encoding/json"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/controller"
	"github.com/charlie0129/vstab/pkg/settings"
)

func getJSON[T any](c *Client, path, what string) (*T, error) {
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get %s", what)
	}
	return unmarshal[T](ret, what)
}

func unmarshal[T any](ret, what string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func (c *Client) GetStatus() (*controller.Snapshot, error) {
	return getJSON[controller.Snapshot](c, "/status", "status")
}

func (c *Client) GetSettings() (*settings.Settings, error) {
	return getJSON[settings.Settings](c, "/settings", "settings")
}

// ClearSettings erases the stored settings; the daemon enters calibration.
func (c *Client) ClearSettings() (*calibration.Status, error) {
	ret, err := c.Delete("/settings")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to clear settings")
	}
	return unmarshal[calibration.Status](ret, "calibration status")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// ===== Calibration APIs =====

func (c *Client) calibrationAction(method, path, data, what string) (*calibration.Status, error) {
	ret, err := c.Send(method, path, data)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to %s", what)
	}
	return unmarshal[calibration.Status](ret, "calibration status")
}

func (c *Client) GetCalibration() (*calibration.Status, error) {
	return getJSON[calibration.Status](c, "/calibration", "calibration status")
}

func (c *Client) BeginCalibration() (*calibration.Status, error) {
	return c.calibrationAction("POST", "/calibration/begin", "", "begin calibration")
}

func (c *Client) NextDelay() (*calibration.Status, error) {
	return c.calibrationAction("POST", "/calibration/delay/next", "", "select next delay")
}

func (c *Client) ConfirmDelay() (*calibration.Status, error) {
	return c.calibrationAction("POST", "/calibration/delay/confirm", "", "confirm delay")
}

func (c *Client) SetDelay(ms uint32) (*calibration.Status, error) {
	return c.calibrationAction("PUT", "/calibration/delay", strconv.FormatUint(uint64(ms), 10), "set delay")
}

func (c *Client) CancelCalibration() (*calibration.Status, error) {
	return c.calibrationAction("POST", "/calibration/cancel", "", "cancel calibration")
}

// Capture takes the calibration sample and returns the saved settings.
func (c *Client) Capture() (*settings.Settings, error) {
	ret, err := c.Post("/calibration/capture", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to capture calibration reference")
	}
	return unmarshal[settings.Settings](ret, "settings")
}
