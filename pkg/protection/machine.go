package protection

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/tick"
)

// Status is a snapshot of the machine for the API.
type Status struct {
	State       State  `json:"state"`
	EnteredAt   uint32 `json:"enteredAt"`
	RelayClosed bool   `json:"relayClosed"`
	HiTrips     int    `json:"hiTrips"`
	LoTrips     int    `json:"loTrips"`
	// ReengageInMs is the time left before the relay closes, only set in
	// DelayActive.
	ReengageInMs    uint32 `json:"reengageInMs,omitempty"`
	ReengageDelayMs uint32 `json:"reengageDelayMs"`
}

// Machine owns the protection state across cycles.
type Machine struct {
	th    Thresholds
	delay uint32

	state       State
	enteredAt   uint32
	relayClosed bool
	hiTrips     int
	loTrips     int

	// delayFrom is the tick the current re-engage delay counts from. It
	// survives an excursion that does not trip.
	delayFrom uint32
}

// NewMachine returns a machine in DelayActive counting from now, with the
// relay open.
func NewMachine(th Thresholds, reengageDelay uint32, now uint32) *Machine {
	return &Machine{
		th:        th,
		delay:     reengageDelay,
		state:     DelayActive,
		enteredAt: now,
		delayFrom: now,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// RelayClosed reports whether the machine last closed the relay.
func (m *Machine) RelayClosed() bool {
	return m.relayClosed
}

// SetReengageDelay changes the delay used by DelayActive.
func (m *Machine) SetReengageDelay(ms uint32) {
	m.delay = ms
}

// Restart opens the relay and starts the re-engage delay from now. The
// caller is responsible for actually opening the relay.
func (m *Machine) Restart(now uint32) {
	m.state = DelayActive
	m.enteredAt = now
	m.delayFrom = now
	m.relayClosed = false
}

// Step runs one cycle and returns the effect the caller must apply.
func (m *Machine) Step(in Input) Effect {
	prev := m.state
	next, enteredAt, eff := Transition(m.state, m.enteredAt, in, m.th, m.delay)
	if next == Normal && eff.Relay != RelayClose && !m.relayClosed {
		next, enteredAt = DelayActive, m.delayFrom
	}
	if next == DelayActive && prev != DelayActive {
		m.delayFrom = enteredAt
	}
	m.state = next
	m.enteredAt = enteredAt

	switch eff.Relay {
	case RelayOpen:
		m.relayClosed = false
	case RelayClose:
		m.relayClosed = true
	}

	switch next {
	case HiActive:
		if prev == HiDetecting {
			m.hiTrips++
		}
	case LoActive:
		if prev == LoDetecting {
			m.loTrips++
		}
	}

	if prev != next {
		entry := logrus.WithFields(logrus.Fields{
			"from": prev,
			"to":   next,
			"opv":  in.OPV,
		})
		if eff.Relay != RelayKeep || eff.Fault != FaultKeep {
			entry.Info("protection state changed")
		} else {
			entry.Debug("protection state changed")
		}
	}

	return eff
}

// Status returns a snapshot at now.
func (m *Machine) Status(now uint32) Status {
	st := Status{
		State:           m.state,
		EnteredAt:       m.enteredAt,
		RelayClosed:     m.relayClosed,
		HiTrips:         m.hiTrips,
		LoTrips:         m.loTrips,
		ReengageDelayMs: m.delay,
	}
	if m.state == DelayActive {
		if spent := tick.Since(now, m.enteredAt); spent < m.delay {
			st.ReengageInMs = m.delay - spent
		}
	}
	return st
}
