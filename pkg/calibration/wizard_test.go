package calibration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/vstab/pkg/settings"
)

type fakeCapturer struct {
	v   uint16
	err error
}

func (f *fakeCapturer) SampleCalibration() (uint16, error) { return f.v, f.err }

func newTestWizard(t *testing.T, v uint16) (*Wizard, *settings.Store, *fakeCapturer) {
	t.Helper()
	store := settings.NewStore(settings.NewMemPage())
	require.NoError(t, store.Save(settings.Settings{ReferenceADC: 400, ReengageDelayMs: 60000}))
	c := &fakeCapturer{v: v}
	return NewWizard(store, c, 244), store, c
}

func TestWizardFlow(t *testing.T) {
	w, store, _ := newTestWizard(t, 488)

	require.NoError(t, w.Begin())
	assert.True(t, w.Active())
	assert.Equal(t, PhaseWaitingDelay, w.State().Phase)
	assert.False(t, store.Load().Calibrated(), "begin must erase stored settings")

	d, err := w.NextDelay()
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), d, "180 s wraps around to the first preset")
	d, err = w.NextDelay()
	require.NoError(t, err)
	assert.Equal(t, uint32(10000), d)

	require.NoError(t, w.ConfirmDelay())
	assert.Equal(t, PhaseWaitingADC, w.State().Phase)
	assert.True(t, w.Status().CanCapture)

	st, err := w.Capture()
	require.NoError(t, err)
	assert.Equal(t, settings.Settings{ReferenceADC: 488, ReengageDelayMs: 10000}, st)
	assert.Equal(t, st, store.Load())
	assert.False(t, w.Active())
}

func TestWizardSetDelayClamps(t *testing.T) {
	w, _, _ := newTestWizard(t, 500)
	require.NoError(t, w.Begin())
	require.NoError(t, w.SetDelay(1000))
	assert.Equal(t, uint32(settings.MinReengageDelayMs), w.State().DelayMs)
	assert.Equal(t, PhaseWaitingADC, w.State().Phase)
}

func TestWizardCaptureRejectsOutOfRange(t *testing.T) {
	for _, v := range []uint16{0, 1024} {
		w, store, _ := newTestWizard(t, v)
		require.NoError(t, w.Begin())
		require.NoError(t, w.ConfirmDelay())

		_, err := w.Capture()
		assert.Error(t, err)
		assert.Equal(t, PhaseError, w.State().Phase)
		assert.True(t, w.Active())
		assert.False(t, store.Load().Calibrated())
		assert.NotEmpty(t, w.Status().Message)
	}
}

func TestWizardCaptureSampleError(t *testing.T) {
	w, _, c := newTestWizard(t, 500)
	c.err = errors.New("adc gone")
	require.NoError(t, w.Begin())
	require.NoError(t, w.ConfirmDelay())
	_, err := w.Capture()
	assert.ErrorContains(t, err, "adc gone")
	assert.Equal(t, PhaseError, w.State().Phase)

	// restart from error
	c.err = nil
	require.NoError(t, w.Begin())
	assert.Equal(t, PhaseWaitingDelay, w.State().Phase)
}

func TestWizardPhaseErrors(t *testing.T) {
	w, _, _ := newTestWizard(t, 500)

	_, err := w.Capture()
	assert.ErrorIs(t, err, ErrCalibrationNotRunning)
	assert.ErrorIs(t, w.Cancel(), ErrCalibrationNotRunning)

	require.NoError(t, w.Begin())
	assert.ErrorIs(t, w.Begin(), ErrCalibrationInProgress)
	_, err = w.Capture()
	assert.ErrorIs(t, err, ErrWrongPhase)

	require.NoError(t, w.ConfirmDelay())
	_, err = w.NextDelay()
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestWizardCancel(t *testing.T) {
	w, store, _ := newTestWizard(t, 500)
	require.NoError(t, w.Begin())
	require.NoError(t, w.Cancel())
	assert.False(t, w.Active())
	assert.False(t, store.Load().Calibrated())
}

func TestWizardHandlePress(t *testing.T) {
	w, _, _ := newTestWizard(t, 512)
	require.NoError(t, w.Begin())

	st, err := w.HandlePress(PressNone)
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = w.HandlePress(PressShort)
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), w.State().DelayMs)

	_, err = w.HandlePress(PressLong)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaitingADC, w.State().Phase)

	st, err = w.HandlePress(PressShort)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, uint16(512), st.ReferenceADC)
	assert.Equal(t, uint32(3000), st.ReengageDelayMs)
	assert.False(t, w.Active())
}

func TestPressDetector(t *testing.T) {
	tests := []struct {
		name string
		down uint32
		up   uint32
		want Press
	}{
		{name: "bounce", down: 100, up: 110, want: PressNone},
		{name: "short", down: 100, up: 200, want: PressShort},
		{name: "long", down: 100, up: 1100, want: PressLong},
		{name: "long across wrap", down: 0xFFFFFF00, up: 1000, want: PressLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewPressDetector()
			assert.Equal(t, PressNone, d.Update(false, tt.down-1))
			assert.Equal(t, PressNone, d.Update(true, tt.down))
			assert.Equal(t, PressNone, d.Update(true, tt.down+5))
			assert.Equal(t, tt.want, d.Update(false, tt.up))
			assert.Equal(t, PressNone, d.Update(false, tt.up+1))
		})
	}
}

func TestPressDetectorLatch(t *testing.T) {
	d := NewPressDetector()
	d.Latch()

	assert.Equal(t, PressNone, d.Update(true, 0))
	assert.Equal(t, PressNone, d.Update(true, 2000))
	assert.Equal(t, PressNone, d.Update(false, 2010), "release of a latched hold")

	assert.Equal(t, PressNone, d.Update(true, 3000))
	assert.Equal(t, PressShort, d.Update(false, 3100))
}
