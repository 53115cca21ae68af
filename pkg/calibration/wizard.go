package calibration

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/settings"
)

var ErrCalibrationInProgress = &calibrationError{"calibration already in progress"}
var ErrCalibrationNotRunning = &calibrationError{"calibration not running"}
var ErrWrongPhase = &calibrationError{"action not allowed in current calibration phase"}

type calibrationError struct{ msg string }

func (e *calibrationError) Error() string { return e.msg }

// Store is the part of the settings store the wizard writes to.
type Store interface {
	Save(settings.Settings) error
	Clear() error
}

// Capturer takes the calibration sample.
type Capturer interface {
	SampleCalibration() (uint16, error)
}

// Wizard is the calibration workflow: pick a re-engage delay, then capture
// the ADC reference at the known calibration voltage and save both.
type Wizard struct {
	mu               sync.Mutex
	store            Store
	capturer         Capturer
	referenceVoltage float32
	state            State
}

// NewWizard returns an idle wizard.
func NewWizard(store Store, capturer Capturer, referenceVoltage float32) *Wizard {
	return &Wizard{
		store:            store,
		capturer:         capturer,
		referenceVoltage: referenceVoltage,
		state:            State{Phase: PhaseIdle},
	}
}

// Active reports whether the wizard holds the regulator in calibration mode.
func (w *Wizard) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Phase != PhaseIdle
}

// State returns a copy of the wizard state.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Begin erases the stored settings and starts the delay step.
func (w *Wizard) Begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase != PhaseIdle && w.state.Phase != PhaseError {
		return ErrCalibrationInProgress
	}

	if err := w.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear settings before calibration: %w", err)
	}

	w.state = State{
		Phase:     PhaseWaitingDelay,
		StartedAt: time.Now(),
		DelayMs:   settings.DefaultReengageDelayMs,
	}
	logrus.WithField("delayMs", w.state.DelayMs).Info("calibration started, waiting for delay selection")

	return nil
}

// NextDelay advances the selected delay to the next preset, wrapping around.
func (w *Wizard) NextDelay() (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase != PhaseWaitingDelay {
		return 0, w.phaseError()
	}

	i := slices.Index(DelayPresets, w.state.DelayMs)
	w.state.DelayMs = DelayPresets[(i+1)%len(DelayPresets)]
	logrus.WithField("delayMs", w.state.DelayMs).Debug("calibration delay selected")

	return w.state.DelayMs, nil
}

// SetDelay selects an explicit delay, clamped into range, and moves on to
// the capture step.
func (w *Wizard) SetDelay(ms uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase != PhaseWaitingDelay {
		return w.phaseError()
	}

	w.state.DelayMs = settings.ClampDelay(ms)
	w.confirmDelay()
	return nil
}

// ConfirmDelay keeps the selected delay and moves on to the capture step.
func (w *Wizard) ConfirmDelay() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase != PhaseWaitingDelay {
		return w.phaseError()
	}

	w.confirmDelay()
	return nil
}

func (w *Wizard) confirmDelay() {
	w.state.Phase = PhaseWaitingADC
	logrus.WithFields(logrus.Fields{
		"delayMs":          w.state.DelayMs,
		"referenceVoltage": w.referenceVoltage,
	}).Info("calibration delay confirmed, apply the reference voltage and capture")
}

// Capture samples the reference and saves the settings. On success the
// wizard returns to idle and the saved settings are returned.
func (w *Wizard) Capture() (settings.Settings, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase != PhaseWaitingADC {
		return settings.Settings{}, w.phaseError()
	}

	fail := func(err error) (settings.Settings, error) {
		w.state.LastError = err.Error()
		w.state.Phase = PhaseError
		logrus.WithError(err).Error("calibration capture failed")
		return settings.Settings{}, err
	}

	v, err := w.capturer.SampleCalibration()
	if err != nil {
		return fail(fmt.Errorf("failed to sample calibration reference: %w", err))
	}
	w.state.CapturedADC = v

	if v == 0 || v > settings.MaxReference {
		return fail(fmt.Errorf("captured reference %d out of range (0, %d]; is the sense input connected?", v, settings.MaxReference))
	}

	st := settings.Settings{
		ReferenceADC:    v,
		ReengageDelayMs: w.state.DelayMs,
	}
	if err := w.store.Save(st); err != nil {
		return fail(err)
	}

	logrus.WithFields(logrus.Fields{
		"referenceAdc":    st.ReferenceADC,
		"reengageDelayMs": st.ReengageDelayMs,
		"took":            time.Since(w.state.StartedAt).Round(time.Second).String(),
	}).Info("calibration completed")

	w.state = State{Phase: PhaseIdle, DelayMs: st.ReengageDelayMs, CapturedADC: v}
	return st, nil
}

// Cancel abandons the wizard. The settings stay erased.
func (w *Wizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.Phase == PhaseIdle {
		return ErrCalibrationNotRunning
	}

	logrus.WithField("phase", w.state.Phase).Info("calibration canceled, regulator stays uncalibrated")
	w.state = State{Phase: PhaseIdle}
	return nil
}

// HandlePress maps a button press to a wizard action. A short press cycles
// the delay, a long press confirms it; any press in the capture step
// captures, and a long press after an error starts over. It returns the
// saved settings when the press completed the wizard.
func (w *Wizard) HandlePress(p Press) (*settings.Settings, error) {
	if p == PressNone {
		return nil, nil
	}

	switch w.State().Phase {
	case PhaseWaitingDelay:
		if p == PressLong {
			return nil, w.ConfirmDelay()
		}
		_, err := w.NextDelay()
		return nil, err
	case PhaseWaitingADC:
		st, err := w.Capture()
		if err != nil {
			return nil, err
		}
		return &st, nil
	case PhaseError:
		if p == PressLong {
			return nil, w.Begin()
		}
	}
	return nil, nil
}

// Status returns the view model.
func (w *Wizard) Status() *Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.state
	msg := st.LastError
	if st.Phase != PhaseError {
		switch st.Phase {
		case PhaseWaitingDelay:
			msg = fmt.Sprintf("Select the re-engage delay (currently %ds), then confirm", st.DelayMs/1000)
		case PhaseWaitingADC:
			msg = fmt.Sprintf("Apply %.1f V to the input, then capture", w.referenceVoltage)
		default:
			msg = ""
		}
	}

	return &Status{
		Phase:            st.Phase,
		Active:           st.Phase != PhaseIdle,
		StartedAt:        st.StartedAt,
		DelayMs:          st.DelayMs,
		CapturedADC:      st.CapturedADC,
		ReferenceVoltage: w.referenceVoltage,
		CanCapture:       st.Phase == PhaseWaitingADC,
		CanCancel:        st.Phase != PhaseIdle,
		Message:          msg,
	}
}

func (w *Wizard) phaseError() error {
	if w.state.Phase == PhaseIdle {
		return ErrCalibrationNotRunning
	}
	return fmt.Errorf("%w: %s", ErrWrongPhase, w.state.Phase)
}
