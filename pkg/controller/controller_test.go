package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/events"
	"github.com/charlie0129/vstab/pkg/hal"
	"github.com/charlie0129/vstab/pkg/protection"
	"github.com/charlie0129/vstab/pkg/settings"
	"github.com/charlie0129/vstab/pkg/tap"
	"github.com/charlie0129/vstab/pkg/tick"
)

const testDelayMs = 3000

type testRig struct {
	ctrl  *Controller
	sim   *hal.Sim
	clock *tick.Counter
	store *settings.Store
	hub   *events.Hub
}

func newRig(t *testing.T, st *settings.Settings) *testRig {
	t.Helper()

	board, sim := hal.NewMock()
	require.NoError(t, board.Open())

	store := settings.NewStore(settings.NewMemPage())
	if st != nil {
		require.NoError(t, store.Save(*st))
	}

	clock := &tick.Counter{}
	hub := events.NewHub()
	ctrl, err := New(Options{
		IO:    board,
		Clock: clock,
		Store: store,
		Hub:   hub,
		Sleep: func(time.Duration) {},
	})
	require.NoError(t, err)

	return &testRig{ctrl: ctrl, sim: sim, clock: clock, store: store, hub: hub}
}

func calibrated() *settings.Settings {
	return &settings.Settings{ReferenceADC: 488, ReengageDelayMs: testDelayMs}
}

// run cycles the controller every 10 ms for d ms.
func (r *testRig) run(d uint32) {
	for spent := uint32(0); spent < d; spent += 10 {
		r.clock.Advance(10)
		r.ctrl.Cycle()
	}
}

// press holds the setting button for d ms and releases it.
func (r *testRig) press(d uint32) {
	r.sim.SetButton(true)
	r.run(d)
	r.sim.SetButton(false)
	r.run(10)
}

func TestBootUncalibratedIsInert(t *testing.T) {
	r := newRig(t, nil)
	r.sim.SetADC(500)
	require.NoError(t, r.ctrl.Boot())

	r.run(5000)

	snap := r.ctrl.Snapshot()
	assert.Equal(t, ModeNormal, snap.Mode)
	assert.False(t, snap.Calibrated)
	assert.Equal(t, 0, snap.Tap.Step)
	assert.False(t, r.sim.Output())
	assert.Len(t, r.sim.TapWrites(), 1)
	assert.Equal(t, []bool{false}, r.sim.OutputWrites())

	main, fault, setting := r.sim.LEDs()
	assert.False(t, main)
	assert.False(t, fault)
	assert.True(t, setting)

	assert.Error(t, r.ctrl.Boot(), "second boot must fail")
}

func TestBootPositionsTapAndDelays(t *testing.T) {
	r := newRig(t, calibrated())
	plant := NewPlant(tap.DefaultTable, 488, 244, 230)
	r.sim.SetPlant(plant.ADC)
	require.NoError(t, r.ctrl.Boot())

	assert.Equal(t, tap.DefaultTable[4].Pattern(), r.sim.Tap())
	assert.Equal(t, protection.DelayActive, r.ctrl.Snapshot().Protection.State)

	r.run(testDelayMs - 100)
	assert.False(t, r.sim.Output(), "relay must stay open during the re-engage delay")
	main, _, _ := r.sim.LEDs()
	assert.False(t, main)

	r.run(200)
	snap := r.ctrl.Snapshot()
	assert.True(t, r.sim.Output())
	assert.True(t, snap.Control.OutputClosed)
	assert.Equal(t, protection.Normal, snap.Protection.State)
	assert.Equal(t, 4, snap.Tap.Step)
	assert.InDelta(t, 230, snap.Control.OPV, 1)
	main, _, _ = r.sim.LEDs()
	assert.True(t, main)
}

func TestTapFollowsMains(t *testing.T) {
	r := newRig(t, calibrated())
	plant := NewPlant(tap.DefaultTable, 488, 244, 230)
	r.sim.SetPlant(plant.ADC)
	require.NoError(t, r.ctrl.Boot())
	r.run(1000)

	writes := len(r.sim.TapWrites())
	r.run(2000)
	assert.Len(t, r.sim.TapWrites(), writes, "steady mains must not switch relays")

	ch, cancel := r.hub.Subscribe()
	defer cancel()

	plant.SetMains(260)
	r.run(2000)
	assert.Equal(t, 5, r.ctrl.Snapshot().Tap.Step)
	assert.Equal(t, tap.DefaultTable[5].Pattern(), r.sim.Tap())

	ev := <-ch
	for ev.Name != events.TapStep {
		ev = <-ch
	}
	p, err := events.DecodeAs[events.TapStepEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, 4, p.From)
	assert.Equal(t, 5, p.To)

	plant.SetMains(230)
	r.run(2000)
	assert.Equal(t, 4, r.ctrl.Snapshot().Tap.Step)
}

func TestHiCutEndToEnd(t *testing.T) {
	r := newRig(t, calibrated())
	r.sim.SetADC(500)
	require.NoError(t, r.ctrl.Boot())
	r.run(testDelayMs + 100)
	require.True(t, r.sim.Output())

	ch, cancel := r.hub.Subscribe()
	defer cancel()

	// 268 V
	r.sim.SetADC(540)
	r.run(1000)

	snap := r.ctrl.Snapshot()
	assert.Equal(t, ModeFaulted, snap.Mode)
	assert.Equal(t, protection.HiActive, snap.Protection.State)
	assert.Equal(t, 1, snap.Protection.HiTrips)
	assert.False(t, r.sim.Output())
	_, fault, _ := r.sim.LEDs()
	assert.True(t, fault)

	// 240 V
	r.sim.SetADC(480)
	r.run(500)

	snap = r.ctrl.Snapshot()
	assert.Equal(t, ModeNormal, snap.Mode)
	assert.Equal(t, protection.DelayActive, snap.Protection.State)
	assert.False(t, r.sim.Output())
	assert.NotZero(t, snap.Protection.ReengageInMs)

	r.run(testDelayMs + 100)
	assert.True(t, r.sim.Output())
	assert.Equal(t, protection.Normal, r.ctrl.Snapshot().Protection.State)

	var modes []string
	for len(ch) > 0 {
		ev := <-ch
		if ev.Name != events.ModeChanged {
			continue
		}
		p, err := events.DecodeAs[events.ModeChangedEvent](ev)
		require.NoError(t, err)
		modes = append(modes, p.To)
	}
	assert.Equal(t, []string{string(ModeFaulted), string(ModeNormal)}, modes)
}

func TestShortExcursionDoesNotTrip(t *testing.T) {
	r := newRig(t, calibrated())
	r.sim.SetADC(500)
	require.NoError(t, r.ctrl.Boot())
	r.run(testDelayMs + 100)

	r.sim.SetADC(560)
	r.run(300)
	r.sim.SetADC(470)
	r.run(1000)

	snap := r.ctrl.Snapshot()
	assert.Equal(t, ModeNormal, snap.Mode)
	assert.Equal(t, 0, snap.Protection.HiTrips)
	assert.True(t, r.sim.Output())
}

func TestOverVoltageDuringStartupDelayFaults(t *testing.T) {
	r := newRig(t, calibrated())
	r.sim.SetADC(540)
	require.NoError(t, r.ctrl.Boot())
	r.run(1000)

	snap := r.ctrl.Snapshot()
	assert.Equal(t, ModeFaulted, snap.Mode)
	assert.Equal(t, protection.HiActive, snap.Protection.State)
	assert.Equal(t, 1, snap.Protection.HiTrips)
	assert.False(t, r.sim.Output())
	main, fault, _ := r.sim.LEDs()
	assert.False(t, main)
	assert.True(t, fault)
}

func TestBootButtonCalibration(t *testing.T) {
	r := newRig(t, calibrated())
	r.sim.SetButton(true)
	require.NoError(t, r.ctrl.Boot())

	assert.Equal(t, ModeCalibrating, r.ctrl.Snapshot().Mode)
	assert.False(t, r.store.Load().Calibrated(), "entering calibration erases settings")
	_, _, setting := r.sim.LEDs()
	assert.True(t, setting)

	// still held from boot: releasing it is not a press
	r.run(300)
	r.sim.SetButton(false)
	r.run(100)
	assert.Equal(t, calibration.PhaseWaitingDelay, r.ctrl.CalibrationStatus().Phase)
	assert.Equal(t, settings.DefaultReengageDelayMs, r.ctrl.CalibrationStatus().DelayMs)

	// short press: 180 s wraps to the first preset
	r.press(100)
	assert.Equal(t, uint32(3000), r.ctrl.CalibrationStatus().DelayMs)
	r.press(100)
	assert.Equal(t, uint32(10000), r.ctrl.CalibrationStatus().DelayMs)

	// long press confirms
	r.press(1100)
	assert.Equal(t, calibration.PhaseWaitingADC, r.ctrl.CalibrationStatus().Phase)

	r.sim.SetADC(490)
	r.press(100)

	snap := r.ctrl.Snapshot()
	assert.Equal(t, ModeNormal, snap.Mode)
	assert.Equal(t, settings.Settings{ReferenceADC: 490, ReengageDelayMs: 10000}, snap.Settings)
	assert.Equal(t, snap.Settings, r.store.Load())
	assert.Equal(t, protection.DelayActive, snap.Protection.State)
	assert.False(t, r.sim.Output())
	_, _, setting = r.sim.LEDs()
	assert.False(t, setting)
}

func TestCalibrationCancel(t *testing.T) {
	r := newRig(t, calibrated())
	r.sim.SetADC(500)
	require.NoError(t, r.ctrl.Boot())
	r.run(testDelayMs + 100)
	require.True(t, r.sim.Output())

	require.NoError(t, r.ctrl.BeginCalibration())
	assert.False(t, r.sim.Output())
	assert.ErrorIs(t, r.ctrl.BeginCalibration(), calibration.ErrCalibrationInProgress)

	require.NoError(t, r.ctrl.CancelCalibration())
	snap := r.ctrl.Snapshot()
	assert.Equal(t, ModeNormal, snap.Mode)
	assert.False(t, snap.Calibrated)

	r.run(testDelayMs + 100)
	assert.False(t, r.sim.Output())
}

func TestCaptureRejectsDisconnectedSense(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.ctrl.Boot())
	require.NoError(t, r.ctrl.BeginCalibration())
	require.NoError(t, r.ctrl.SetDelay(60000))

	r.sim.SetADC(0)
	_, err := r.ctrl.Capture()
	assert.Error(t, err)
	assert.Equal(t, ModeCalibrating, r.ctrl.Snapshot().Mode)
	assert.Equal(t, calibration.PhaseError, r.ctrl.CalibrationStatus().Phase)

	// restart from the error
	require.NoError(t, r.ctrl.BeginCalibration())
	require.NoError(t, r.ctrl.ConfirmDelay())
	r.sim.SetADC(488)
	st, err := r.ctrl.Capture()
	require.NoError(t, err)
	assert.Equal(t, uint16(488), st.ReferenceADC)
	assert.Equal(t, settings.DefaultReengageDelayMs, st.ReengageDelayMs)
}

func TestShutdownOpensRelay(t *testing.T) {
	r := newRig(t, calibrated())
	r.sim.SetADC(500)
	require.NoError(t, r.ctrl.Boot())
	r.run(testDelayMs + 100)
	require.True(t, r.sim.Output())

	require.NoError(t, r.ctrl.Shutdown())
	assert.False(t, r.sim.Output())
	main, fault, setting := r.sim.LEDs()
	assert.False(t, main || fault || setting)
}

func TestPlantADC(t *testing.T) {
	p := NewPlant(tap.DefaultTable, 488, 244, 244)
	assert.Equal(t, uint16(488), p.ADC(tap.DefaultTable[4].Pattern()))
	assert.Equal(t, uint16(1023), p.ADC(tap.DefaultTable[0].Pattern()))

	p.SetMains(0)
	assert.Equal(t, uint16(0), p.ADC(tap.DefaultTable[7].Pattern()))
}
