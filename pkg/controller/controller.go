package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/adc"
	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/events"
	"github.com/charlie0129/vstab/pkg/hal"
	"github.com/charlie0129/vstab/pkg/protection"
	"github.com/charlie0129/vstab/pkg/settings"
	"github.com/charlie0129/vstab/pkg/tap"
	"github.com/charlie0129/vstab/pkg/tick"
	"github.com/charlie0129/vstab/pkg/voltage"
)

const (
	DefaultLoopInterval     = 10 * time.Millisecond
	DefaultBootButtonHoldMs = 1000
)

// Options wires the controller to its collaborators. Zero values fall back
// to the reference hardware defaults.
type Options struct {
	IO    hal.IO
	Clock tick.Clock
	Store *settings.Store
	Hub   *events.Hub

	Table              tap.Table
	Debounce           uint32
	Thresholds         protection.Thresholds
	CalibrationVoltage float32
	LoopInterval       time.Duration
	BootButtonHoldMs   uint32

	// Sleep is used for ADC settling, calibration spacing and the boot
	// button hold. Nil means time.Sleep.
	Sleep adc.Sleeper
}

// Controller runs the regulator. Cycle and every API-facing method are
// serialized by one mutex, so the API never observes a half-done cycle.
type Controller struct {
	mu sync.Mutex

	io       hal.IO
	clock    tick.Clock
	store    *settings.Store
	hub      *events.Hub
	sleep    adc.Sleeper
	interval time.Duration
	bootHold uint32
	calV     float32
	th       protection.Thresholds

	sampler *adc.Sampler
	model   voltage.Model
	changer *tap.Changer
	prot    *protection.Machine
	wizard  *calibration.Wizard
	press   *calibration.PressDetector

	mode     SystemMode
	settings settings.Settings
	state    ControlState
	leds     [3]bool
	ledsSet  bool
	booted   bool

	cycles   uint64
	overruns uint64
	lastErr  string

	lastLogged   cycleLog
	lastLoggedAt time.Time
}

// New returns a controller. Call Boot before the first Cycle.
func New(opts Options) (*Controller, error) {
	if opts.IO == nil {
		return nil, fmt.Errorf("io is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if opts.Clock == nil {
		opts.Clock = &tick.Counter{}
	}
	if opts.Table == nil {
		opts.Table = tap.DefaultTable
	}
	if err := opts.Table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tap table: %w", err)
	}
	if opts.Debounce == 0 {
		opts.Debounce = tap.DefaultDebounce
	}
	if opts.Thresholds == (protection.Thresholds{}) {
		opts.Thresholds = protection.DefaultThresholds
	}
	if opts.CalibrationVoltage <= 0 {
		opts.CalibrationVoltage = voltage.DefaultCalibrationVoltage
	}
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = DefaultLoopInterval
	}
	if opts.BootButtonHoldMs == 0 {
		opts.BootButtonHoldMs = DefaultBootButtonHoldMs
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	sampler := adc.New(opts.IO, opts.Sleep)
	c := &Controller{
		io:       opts.IO,
		clock:    opts.Clock,
		store:    opts.Store,
		hub:      opts.Hub,
		sleep:    opts.Sleep,
		interval: opts.LoopInterval,
		bootHold: opts.BootButtonHoldMs,
		calV:     opts.CalibrationVoltage,
		th:       opts.Thresholds,
		sampler:  sampler,
		changer:  tap.NewChanger(opts.Table, opts.Debounce),
		prot:     protection.NewMachine(opts.Thresholds, settings.DefaultReengageDelayMs, opts.Clock.NowMs()),
		wizard:   calibration.NewWizard(opts.Store, sampler, opts.CalibrationVoltage),
		press:    calibration.NewPressDetector(),
		mode:     ModeNormal,
		settings: settings.Defaults(),
	}

	return c, nil
}

// Boot loads the settings, checks the boot button and positions the tap.
// The protection relay stays open until the re-engage delay has passed.
func (c *Controller) Boot() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.booted {
		return fmt.Errorf("controller already booted")
	}
	c.booted = true

	c.loadSettings()

	if err := c.setOutput(false); err != nil {
		return err
	}

	held, err := c.bootButtonHeld()
	if err != nil {
		return err
	}
	if held {
		logrus.WithField("holdMs", c.bootHold).Info("setting button held at boot, entering calibration")
		if err := c.beginCalibration(); err != nil {
			return err
		}
		return nil
	}

	if !c.model.Calibrated() {
		logrus.Warn("regulator is not calibrated, staying inert until calibration completes")
		if err := c.io.SetTap(c.changer.Position(0).Pattern()); err != nil {
			return fmt.Errorf("failed to reset tap relays: %w", err)
		}
		c.updateLEDs()
		return nil
	}

	if err := c.positionTap(); err != nil {
		return err
	}
	c.prot.Restart(c.clock.NowMs())
	c.updateLEDs()

	logrus.WithFields(logrus.Fields{
		"referenceAdc":    c.settings.ReferenceADC,
		"reengageDelayMs": c.settings.ReengageDelayMs,
		"step":            c.changer.State().Current,
	}).Info("regulator booted")

	return nil
}

func (c *Controller) loadSettings() {
	c.settings = c.store.Load()
	c.model = voltage.New(c.settings.ReferenceADC, c.calV)
	c.prot.SetReengageDelay(c.settings.ReengageDelayMs)
}

// bootButtonHeld samples the button twice, the hold window apart.
func (c *Controller) bootButtonHeld() (bool, error) {
	pressed, err := c.io.ButtonPressed()
	if err != nil {
		return false, fmt.Errorf("failed to read setting button: %w", err)
	}
	if !pressed {
		return false, nil
	}

	c.sleep(time.Duration(c.bootHold) * time.Millisecond)

	pressed, err = c.io.ButtonPressed()
	if err != nil {
		return false, fmt.Errorf("failed to read setting button: %w", err)
	}
	return pressed, nil
}

// positionTap runs the startup positioner on a fresh averaged sample.
func (c *Controller) positionTap() error {
	count, err := c.sampler.SampleAveraged()
	if err != nil {
		return fmt.Errorf("failed to sample for startup positioning: %w", err)
	}
	opv := c.model.OutputVoltage(count)
	step := c.changer.Table().StartupPosition(opv)
	s := c.changer.Position(step)
	if err := c.io.SetTap(s.Pattern()); err != nil {
		return fmt.Errorf("failed to apply startup tap step %d: %w", step, err)
	}

	logrus.WithFields(logrus.Fields{
		"opv":  voltage.Round(opv, 1),
		"step": step,
	}).Info("startup tap position applied")
	return nil
}

// Cycle runs one iteration of the control loop.
func (c *Controller) Cycle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	c.cycle(c.clock.NowMs())
	c.cycles++
	if d := time.Since(start); d > c.interval {
		c.overruns++
		logrus.WithField("took", d.String()).Debug("control cycle overran its interval")
	}
}

func (c *Controller) cycle(now uint32) {
	if c.mode == ModeCalibrating {
		c.runWizard(now)
		return
	}

	if !c.model.Calibrated() {
		return
	}

	count, err := c.sampler.SampleFiltered()
	if err != nil {
		c.recordError("failed to sample adc", err)
		return
	}
	lowCut, err := c.io.LowCutEnabled()
	if err != nil {
		c.recordError("failed to read low-cut input", err)
		return
	}

	opv := c.model.OutputVoltage(count)
	ipv := voltage.InputVoltage(opv, c.changer.Current().TapRatio)
	c.state.FilteredADC = count
	c.state.OPV = opv
	c.state.IPV = ipv
	c.state.LowCutEnabled = lowCut

	if c.mode == ModeNormal {
		prev := c.changer.State().Current
		if c.changer.Evaluate(ipv, now) == tap.ActionApply {
			s := c.changer.Current()
			if err := c.io.SetTap(s.Pattern()); err != nil {
				c.recordError("failed to switch tap relays", err)
			}
			c.hub.Publish(events.TapStep, events.TapStepEvent{
				From:     prev,
				To:       c.changer.State().Current,
				IPV:      voltage.Round(ipv, 1),
				TapRatio: s.TapRatio,
				Ts:       time.Now().Unix(),
			})
		}
	}

	prevState := c.prot.State()
	eff := c.prot.Step(protection.Input{OPV: opv, LowCutEnabled: lowCut, Now: now})
	c.applyEffect(eff)
	if next := c.prot.State(); next != prevState {
		c.hub.Publish(events.ProtectionState, events.ProtectionStateEvent{
			From:        string(prevState),
			To:          string(next),
			OPV:         voltage.Round(opv, 1),
			RelayClosed: c.prot.RelayClosed(),
			Ts:          time.Now().Unix(),
		})
	}

	c.updateLEDs()
	c.logCycle()
}

func (c *Controller) applyEffect(eff protection.Effect) {
	switch eff.Relay {
	case protection.RelayOpen:
		if err := c.setOutput(false); err != nil {
			c.recordError("failed to open protection relay", err)
		}
	case protection.RelayClose:
		if err := c.setOutput(true); err != nil {
			c.recordError("failed to close protection relay", err)
		}
	}

	switch eff.Fault {
	case protection.FaultRaise:
		c.setMode(ModeFaulted)
	case protection.FaultClear:
		c.setMode(ModeNormal)
	}
}

func (c *Controller) setOutput(closed bool) error {
	if err := c.io.SetOutput(closed); err != nil {
		return err
	}
	c.state.OutputClosed = closed
	return nil
}

func (c *Controller) setMode(m SystemMode) {
	if c.mode == m {
		return
	}
	prev := c.mode
	c.mode = m
	logrus.WithFields(logrus.Fields{"from": prev, "to": m}).Info("system mode changed")
	c.hub.Publish(events.ModeChanged, events.ModeChangedEvent{
		From: string(prev),
		To:   string(m),
		Ts:   time.Now().Unix(),
	})
}

// updateLEDs derives the steady indicator states from the mode. Only
// changes are written to the board.
func (c *Controller) updateLEDs() {
	var leds [3]bool
	switch c.mode {
	case ModeNormal:
		if c.model.Calibrated() {
			leds[0] = c.prot.RelayClosed()
		} else {
			leds[2] = true
		}
	case ModeFaulted:
		leds[1] = true
	case ModeCalibrating:
		leds[2] = true
	}

	if c.ledsSet && leds == c.leds {
		return
	}

	for i, set := range []func(bool) error{c.io.SetMainLED, c.io.SetFaultLED, c.io.SetSettingLED} {
		if err := set(leds[i]); err != nil {
			c.recordError("failed to set indicators", err)
			return
		}
	}
	c.leds = leds
	c.ledsSet = true
}

func (c *Controller) recordError(msg string, err error) {
	full := fmt.Sprintf("%s: %v", msg, err)
	if full != c.lastErr {
		logrus.WithError(err).Error(msg)
	} else {
		logrus.WithError(err).Trace(msg)
	}
	c.lastErr = full
}

// Snapshot returns a consistent copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.NowMs()
	ts := c.changer.State()
	tapStatus := TapStatus{
		Step:     ts.Current,
		TapRatio: c.changer.Current().TapRatio,
		Pending:  ts.Pending,
		Armed:    ts.Armed,
		TopStep:  c.changer.Table().Top(),
	}
	if spent := tick.Since(now, ts.Since); ts.Armed && spent < c.changer.Debounce() {
		tapStatus.PendingInMs = c.changer.Debounce() - spent
	}

	return Snapshot{
		Mode:        c.mode,
		Calibrated:  c.model.Calibrated(),
		Settings:    c.settings,
		Control:     c.state,
		Tap:         tapStatus,
		Protection:  c.prot.Status(now),
		Calibration: c.wizard.Status(),
		Tick:        now,
		Cycles:      c.cycles,
		Overruns:    c.overruns,
		LastError:   c.lastErr,
	}
}

// Settings returns the settings the controller runs on.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Shutdown leaves the board in its safe state: protection relay open and
// indicators off.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.setOutput(false); err != nil {
		return fmt.Errorf("failed to open protection relay: %w", err)
	}
	c.prot.Restart(c.clock.NowMs())

	for _, set := range []func(bool) error{c.io.SetMainLED, c.io.SetFaultLED, c.io.SetSettingLED} {
		if err := set(false); err != nil {
			return fmt.Errorf("failed to turn off indicators: %w", err)
		}
	}
	c.ledsSet = false

	return nil
}
