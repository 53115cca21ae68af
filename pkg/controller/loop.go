package controller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/protection"
	"github.com/charlie0129/vstab/pkg/voltage"
)

// statusLogInterval is how often an unchanged cycle status is repeated at
// debug level.
const statusLogInterval = 10 * time.Second

// Run calls Cycle every loop interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	logrus.WithField("interval", c.interval.String()).Debug("control loop starts")

	for {
		c.Cycle()

		select {
		case <-ctx.Done():
			logrus.Debug("control loop stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}

type cycleLog struct {
	mode       SystemMode
	opv        float32
	ipv        float32
	step       int
	protection protection.State
	lowCut     bool
}

// logCycle prints the cycle status at debug level when it changed or
// statusLogInterval has passed, and at trace level otherwise.
func (c *Controller) logCycle() {
	cur := cycleLog{
		mode:       c.mode,
		opv:        voltage.Round(c.state.OPV, 0),
		ipv:        voltage.Round(c.state.IPV, 0),
		step:       c.changer.State().Current,
		protection: c.prot.State(),
		lowCut:     c.state.LowCutEnabled,
	}

	fields := logrus.Fields{
		"mode":         cur.mode,
		"opv":          voltage.Round(c.state.OPV, 1),
		"ipv":          voltage.Round(c.state.IPV, 1),
		"step":         cur.step,
		"protection":   cur.protection,
		"lowCut":       cur.lowCut,
		"outputClosed": c.state.OutputClosed,
	}

	if cur == c.lastLogged && time.Since(c.lastLoggedAt) < statusLogInterval {
		logrus.WithFields(fields).Trace("control loop status")
		return
	}

	logrus.WithFields(fields).Debug("control loop status")
	c.lastLogged = cur
	c.lastLoggedAt = time.Now()
}
