package tap

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/tick"
)

// DefaultDebounce is how long, in ms, a step change request must persist.
const DefaultDebounce uint32 = 10

// State is the debounce state of the tap changer.
type State struct {
	Current int `json:"current"`
	Pending int `json:"pending"`
	// Armed is true while a change to Pending is waiting out the debounce.
	Armed bool `json:"armed"`
	// Since is the tick at which Pending was armed.
	Since uint32 `json:"since"`
}

// Action is what a transition asks the caller to do.
type Action int

const (
	// ActionNone leaves everything as is.
	ActionNone Action = iota
	// ActionArm started (or restarted) the debounce timer.
	ActionArm
	// ActionCancel dropped a pending change because the request reverted.
	ActionCancel
	// ActionApply commits the pending step: write its relay pattern.
	ActionApply
)

func (a Action) String() string {
	switch a {
	case ActionArm:
		return "arm"
	case ActionCancel:
		return "cancel"
	case ActionApply:
		return "apply"
	}
	return "none"
}

// Transition advances the debounce state given the step requested this
// cycle. It does not touch any relay; on ActionApply the caller writes the
// pattern of the returned Current.
func Transition(st State, target int, now, debounce uint32) (State, Action) {
	if target == st.Current {
		if st.Armed {
			st.Armed = false
			st.Pending = st.Current
			return st, ActionCancel
		}
		return st, ActionNone
	}

	if !st.Armed || st.Pending != target {
		st.Pending = target
		st.Armed = true
		st.Since = now
		return st, ActionArm
	}

	if tick.Elapsed(now, st.Since, debounce) {
		st.Current = target
		st.Pending = target
		st.Armed = false
		return st, ActionApply
	}

	return st, ActionNone
}

// Changer runs selection and debounce against a table.
type Changer struct {
	table    Table
	debounce uint32
	state    State
}

// NewChanger returns a changer sitting on step 0.
func NewChanger(table Table, debounce uint32) *Changer {
	return &Changer{
		table:    table,
		debounce: debounce,
	}
}

// Table returns the step table.
func (c *Changer) Table() Table {
	return c.table
}

// Debounce returns the debounce interval in ms.
func (c *Changer) Debounce() uint32 {
	return c.debounce
}

// State returns a copy of the debounce state.
func (c *Changer) State() State {
	return c.state
}

// Current returns the committed step.
func (c *Changer) Current() Step {
	return c.table[c.state.Current]
}

// Position forces the committed step, dropping any pending change. Used by
// the startup positioner.
func (c *Changer) Position(step int) Step {
	if step < 0 {
		step = 0
	}
	if step > c.table.Top() {
		step = c.table.Top()
	}
	c.state = State{Current: step, Pending: step}
	return c.table[step]
}

// Evaluate runs one cycle. It returns the action taken; on ActionApply the
// new step is Current().
func (c *Changer) Evaluate(ipv float32, now uint32) Action {
	target := c.table.Select(c.state.Current, ipv)

	prev := c.state
	next, action := Transition(c.state, target, now, c.debounce)
	c.state = next

	switch action {
	case ActionApply:
		logrus.WithFields(logrus.Fields{
			"from": prev.Current,
			"to":   next.Current,
			"ipv":  ipv,
		}).Info("tap step changed")
	case ActionArm, ActionCancel:
		logrus.WithFields(logrus.Fields{
			"current": next.Current,
			"pending": next.Pending,
			"ipv":     ipv,
			"action":  action,
		}).Debug("tap change request")
	}

	return action
}
