// Package protection implements the over/under-voltage cut-off that drives
// the protection relay.
//
// A trip needs the condition to hold for a detect dwell; recovery needs the
// voltage back inside a narrower resume band for a resume dwell, and then a
// re-engage delay before the relay closes again. The same delay runs once
// at power-up.
package protection

import (
	"github.com/charlie0129/vstab/pkg/tick"
)

// State of the protection machine.
type State string

const (
	Normal      State = "Normal"
	HiDetecting State = "HiDetecting"
	HiActive    State = "HiActive"
	HiResuming  State = "HiResuming"
	LoDetecting State = "LoDetecting"
	LoActive    State = "LoActive"
	LoResuming  State = "LoResuming"
	DelayActive State = "DelayActive"
)

// Tripped reports whether the relay is held open because of a fault.
func (s State) Tripped() bool {
	switch s {
	case HiActive, HiResuming, LoActive, LoResuming:
		return true
	}
	return false
}

// Thresholds are the trip and resume voltages and the dwell times in ms.
type Thresholds struct {
	HiCut    float32 `json:"hiCut" yaml:"hiCut"`
	HiResume float32 `json:"hiResume" yaml:"hiResume"`
	LoCut    float32 `json:"loCut" yaml:"loCut"`
	LoResume float32 `json:"loResume" yaml:"loResume"`
	Detect   uint32  `json:"detectMs" yaml:"detectMs"`
	Resume   uint32  `json:"resumeMs" yaml:"resumeMs"`
}

// DefaultThresholds of the reference hardware.
var DefaultThresholds = Thresholds{
	HiCut:    256.0,
	HiResume: 249.0,
	LoCut:    181.0,
	LoResume: 189.0,
	Detect:   500,
	Resume:   200,
}

// Input is what one cycle observes.
type Input struct {
	OPV           float32
	LowCutEnabled bool
	Now           uint32
}

// RelayAction asks the caller to move the protection relay.
type RelayAction int

const (
	RelayKeep RelayAction = iota
	RelayOpen
	RelayClose
)

// FaultAction asks the caller to change the system fault mode.
type FaultAction int

const (
	FaultKeep FaultAction = iota
	FaultRaise
	FaultClear
)

// Effect is the side effect of a transition, applied by the caller.
type Effect struct {
	Relay RelayAction
	Fault FaultAction
}

func (th Thresholds) hi(opv float32) bool { return opv > th.HiCut }

func (th Thresholds) lo(in Input) bool { return in.LowCutEnabled && in.OPV < th.LoCut }

// Transition computes the next state from the current state, the tick at
// which it was entered and this cycle's input. It returns the next state,
// the tick that state counts from and the effect to apply.
//
// A detecting state that clears always returns Normal. When the excursion
// began in DelayActive the relay is still open, and Machine puts the state
// back to DelayActive with its original start tick.
func Transition(st State, enteredAt uint32, in Input, th Thresholds, reengageDelay uint32) (State, uint32, Effect) {
	now := in.Now
	elapsed := func(d uint32) bool { return tick.Elapsed(now, enteredAt, d) }

	switch st {
	case Normal:
		if th.hi(in.OPV) {
			return HiDetecting, now, Effect{}
		}
		if th.lo(in) {
			return LoDetecting, now, Effect{}
		}

	case HiDetecting:
		if !th.hi(in.OPV) {
			return Normal, now, Effect{}
		}
		if elapsed(th.Detect) {
			return HiActive, now, Effect{Relay: RelayOpen, Fault: FaultRaise}
		}

	case HiActive:
		if in.OPV < th.HiResume {
			return HiResuming, now, Effect{}
		}

	case HiResuming:
		if in.OPV >= th.HiResume {
			return HiActive, now, Effect{}
		}
		if elapsed(th.Resume) {
			return DelayActive, now, Effect{Fault: FaultClear}
		}

	case LoDetecting:
		if !th.lo(in) {
			return Normal, now, Effect{}
		}
		if elapsed(th.Detect) {
			return LoActive, now, Effect{Relay: RelayOpen, Fault: FaultRaise}
		}

	case LoActive:
		if loResumed(in, th) {
			return LoResuming, now, Effect{}
		}

	case LoResuming:
		if !loResumed(in, th) {
			return LoActive, now, Effect{}
		}
		if elapsed(th.Resume) {
			return DelayActive, now, Effect{Fault: FaultClear}
		}

	case DelayActive:
		// The relay is already open; the excursion still has to dwell
		// before it counts as a trip.
		if th.hi(in.OPV) {
			return HiDetecting, now, Effect{}
		}
		if th.lo(in) {
			return LoDetecting, now, Effect{}
		}
		if elapsed(reengageDelay) {
			return Normal, now, Effect{Relay: RelayClose}
		}
	}

	return st, enteredAt, Effect{}
}

// Switching low-cut off while tripped counts as the condition clearing.
func loResumed(in Input, th Thresholds) bool {
	return !in.LowCutEnabled || in.OPV > th.LoResume
}
