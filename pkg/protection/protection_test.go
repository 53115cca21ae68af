package protection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDelay uint32 = 180000

// drive steps m every stepMs from start to end inclusive at a constant opv
// and returns the effects that were not no-ops.
func drive(m *Machine, opv float32, lowCut bool, start, end, stepMs uint32) []Effect {
	var effs []Effect
	for now := start; now <= end; now += stepMs {
		eff := m.Step(Input{OPV: opv, LowCutEnabled: lowCut, Now: now})
		if eff != (Effect{}) {
			effs = append(effs, eff)
		}
	}
	return effs
}

func normalMachine(t *testing.T) *Machine {
	m := NewMachine(DefaultThresholds, testDelay, 0)
	effs := drive(m, 230, true, 0, testDelay, 10)
	require.Equal(t, []Effect{{Relay: RelayClose}}, effs)
	require.Equal(t, Normal, m.State())
	require.True(t, m.RelayClosed())
	return m
}

func TestStartupDelay(t *testing.T) {
	m := NewMachine(DefaultThresholds, 3000, 100)
	assert.Equal(t, DelayActive, m.State())
	assert.False(t, m.RelayClosed())
	assert.Equal(t, uint32(3000), m.Status(100).ReengageInMs)

	assert.Empty(t, drive(m, 230, false, 100, 3099, 1))
	assert.Equal(t, uint32(1), m.Status(3099).ReengageInMs)

	assert.Equal(t, Effect{Relay: RelayClose}, m.Step(Input{OPV: 230, Now: 3100}))
	assert.Equal(t, Normal, m.State())
	assert.Zero(t, m.Status(3100).ReengageInMs)
}

func TestHiCutScenario(t *testing.T) {
	m := normalMachine(t)
	start := testDelay + 10

	// Over-voltage for 500 ms trips.
	effs := drive(m, 260, false, start, start+500, 1)
	assert.Equal(t, []Effect{{Relay: RelayOpen, Fault: FaultRaise}}, effs)
	assert.Equal(t, HiActive, m.State())
	assert.False(t, m.RelayClosed())
	assert.Equal(t, 1, m.Status(start+500).HiTrips)

	// Still inside the hysteresis gap: no resume.
	assert.Empty(t, drive(m, 252, false, start+501, start+1000, 1))
	assert.Equal(t, HiActive, m.State())

	// Below the resume threshold for 200 ms enters the delay and clears the fault.
	t0 := start + 1001
	effs = drive(m, 240, false, t0, t0+200, 1)
	assert.Equal(t, []Effect{{Fault: FaultClear}}, effs)
	assert.Equal(t, DelayActive, m.State())
	assert.False(t, m.RelayClosed())

	// After the re-engage delay the relay closes.
	t1 := t0 + 200
	assert.Empty(t, drive(m, 240, false, t1+1, t1+testDelay-1, 10))
	assert.Equal(t, Effect{Relay: RelayClose}, m.Step(Input{OPV: 240, Now: t1 + testDelay}))
	assert.Equal(t, Normal, m.State())
	assert.True(t, m.RelayClosed())
}

func TestDetectDwellMinusOneNeverTrips(t *testing.T) {
	for _, tc := range []struct {
		name   string
		bad    float32
		lowCut bool
	}{
		{name: "hi", bad: 260, lowCut: false},
		{name: "lo", bad: 170, lowCut: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := normalMachine(t)
			start := testDelay + 10
			end := start + DefaultThresholds.Detect - 1

			effs := drive(m, tc.bad, tc.lowCut, start, end, 1)
			assert.Empty(t, effs)
			assert.False(t, m.State().Tripped())

			m.Step(Input{OPV: 230, LowCutEnabled: tc.lowCut, Now: end + 1})
			assert.Equal(t, Normal, m.State())
			assert.True(t, m.RelayClosed())

			// Dwell is not cumulative: a fresh excursion starts from zero.
			effs = drive(m, tc.bad, tc.lowCut, end+2, end+2+DefaultThresholds.Detect-1, 1)
			assert.Empty(t, effs)
		})
	}
}

func TestResumeRevertFallsBack(t *testing.T) {
	st, at, _ := Transition(HiActive, 0, Input{OPV: 240, Now: 1000}, DefaultThresholds, testDelay)
	require.Equal(t, HiResuming, st)
	require.Equal(t, uint32(1000), at)

	st, _, eff := Transition(st, at, Input{OPV: 250, Now: 1100}, DefaultThresholds, testDelay)
	assert.Equal(t, HiActive, st)
	assert.Equal(t, Effect{}, eff)
}

func TestLoCutRequiresEnable(t *testing.T) {
	m := normalMachine(t)
	start := testDelay + 10

	assert.Empty(t, drive(m, 150, false, start, start+2000, 10))
	assert.Equal(t, Normal, m.State())

	effs := drive(m, 150, true, start+2010, start+2510, 10)
	assert.Equal(t, []Effect{{Relay: RelayOpen, Fault: FaultRaise}}, effs)
	assert.Equal(t, LoActive, m.State())
	assert.Equal(t, 1, m.Status(0).LoTrips)

	// 185 V is above the trip but below the resume threshold.
	assert.Empty(t, drive(m, 185, true, start+2520, start+3000, 10))
	assert.Equal(t, LoActive, m.State())

	effs = drive(m, 200, true, start+3010, start+3210, 10)
	assert.Equal(t, []Effect{{Fault: FaultClear}}, effs)
	assert.Equal(t, DelayActive, m.State())
}

func TestLoDetectingAbortsWhenDisabled(t *testing.T) {
	st, at, _ := Transition(Normal, 0, Input{OPV: 150, LowCutEnabled: true, Now: 10}, DefaultThresholds, testDelay)
	require.Equal(t, LoDetecting, st)
	st, _, _ = Transition(st, at, Input{OPV: 150, LowCutEnabled: false, Now: 20}, DefaultThresholds, testDelay)
	assert.Equal(t, Normal, st)
}

func TestDelaySurvivesTransientExcursion(t *testing.T) {
	m := NewMachine(DefaultThresholds, 3000, 0)
	assert.Empty(t, drive(m, 230, false, 0, 2000, 10))

	// One sample above the cut while the relay is open.
	assert.Empty(t, drive(m, 257, false, 2010, 2010, 10))
	assert.Equal(t, HiDetecting, m.State())
	assert.False(t, m.RelayClosed())

	// The sample does not restart the delay.
	assert.Empty(t, drive(m, 230, false, 2020, 2020, 10))
	assert.Equal(t, DelayActive, m.State())
	assert.Equal(t, uint32(980), m.Status(2020).ReengageInMs)

	assert.Empty(t, drive(m, 230, false, 2030, 2990, 10))
	assert.Equal(t, Effect{Relay: RelayClose}, m.Step(Input{OPV: 230, Now: 3000}))
	assert.Equal(t, Normal, m.State())
	assert.Zero(t, m.Status(3000).HiTrips)
}

func TestSustainedExcursionDuringDelayTrips(t *testing.T) {
	m := NewMachine(DefaultThresholds, 3000, 0)

	effs := drive(m, 260, false, 0, 1000, 10)
	assert.Equal(t, []Effect{{Relay: RelayOpen, Fault: FaultRaise}}, effs)
	assert.Equal(t, HiActive, m.State())
	assert.Equal(t, 1, m.Status(1000).HiTrips)

	// Recovery starts a fresh delay.
	assert.Equal(t, []Effect{{Fault: FaultClear}}, drive(m, 230, false, 1010, 1300, 10))
	assert.Equal(t, DelayActive, m.State())
	assert.Empty(t, drive(m, 230, false, 1310, 4200, 10))
	assert.Equal(t, Effect{Relay: RelayClose}, m.Step(Input{OPV: 230, Now: 4210}))
}

func TestSustainedLowDuringDelayTrips(t *testing.T) {
	m := NewMachine(DefaultThresholds, 3000, 0)

	effs := drive(m, 150, true, 0, 1000, 10)
	assert.Equal(t, []Effect{{Relay: RelayOpen, Fault: FaultRaise}}, effs)
	assert.Equal(t, LoActive, m.State())
	assert.Equal(t, 1, m.Status(1000).LoTrips)
}

func TestRestart(t *testing.T) {
	m := normalMachine(t)
	m.Restart(500000)
	assert.Equal(t, DelayActive, m.State())
	assert.False(t, m.RelayClosed())
	m.SetReengageDelay(3000)
	assert.Equal(t, uint32(3000), m.Status(500000).ReengageInMs)
}
