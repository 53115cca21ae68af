// Package tap selects the auto-transformer tap from the input-side voltage.
//
// The tap relays R1..R4 combine into eight configurations ordered by
// increasing output/input ratio. Selection uses per-step hysteresis bands
// and every change has to survive a debounce interval before any relay
// moves.
package tap

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/charlie0129/vstab/pkg/hal"
)

// Step is one relay configuration.
type Step struct {
	R1, R2, R3, R4 bool
	// ThresholdUp is the IPV above which this step may be selected when
	// moving up. 0 on step 0 is a sentinel.
	ThresholdUp uint16
	// ThresholdDown is the IPV below which this step is left downwards.
	ThresholdDown uint16
	// TapRatio is the output/input voltage ratio of this configuration.
	TapRatio float32
}

// Pattern returns the relay outputs for this step.
func (s Step) Pattern() hal.Pattern {
	return hal.Pattern{s.R1, s.R2, s.R3, s.R4}
}

// Table is the ordered set of steps.
type Table []Step

// InitialTapRatio is the ratio assumed for the all-relays-off configuration
// when estimating the input voltage at boot (137 V / 290 V).
const InitialTapRatio float32 = 0.472414

// DefaultTable is the eight-step table of the reference hardware.
var DefaultTable = Table{
	{false, false, false, false, 0, 0, 0.472414},
	{false, false, false, true, 115, 111, 0.570833},
	{false, false, true, false, 139, 135, 0.689655},
	{false, false, true, true, 168, 163, 0.833333},
	{false, true, true, false, 203, 196, 1.000000},
	{false, true, true, true, 244, 236, 1.208333},
	{true, true, true, false, 295, 282, 1.441379},
	{true, true, true, true, 352, 340, 1.741667},
}

// Top returns the index of the highest step.
func (t Table) Top() int {
	return len(t) - 1
}

// Validate checks that tap ratios and the thresholds of steps above 0
// strictly increase with the step index.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("tap table is empty")
	}

	for i, s := range t {
		if math32.IsNaN(s.TapRatio) || math32.IsInf(s.TapRatio, 0) || s.TapRatio <= 0 {
			return fmt.Errorf("step %d: tap ratio %v is not a positive finite number", i, s.TapRatio)
		}
		if i == 0 {
			continue
		}

		prev := t[i-1]
		if s.TapRatio <= prev.TapRatio {
			return fmt.Errorf("step %d: tap ratio %v does not exceed step %d ratio %v", i, s.TapRatio, i-1, prev.TapRatio)
		}
		if i == 1 {
			continue
		}
		if s.ThresholdUp <= prev.ThresholdUp {
			return fmt.Errorf("step %d: up threshold %d does not exceed step %d threshold %d", i, s.ThresholdUp, i-1, prev.ThresholdUp)
		}
		if s.ThresholdDown <= prev.ThresholdDown {
			return fmt.Errorf("step %d: down threshold %d does not exceed step %d threshold %d", i, s.ThresholdDown, i-1, prev.ThresholdDown)
		}
	}

	return nil
}

// StartupPosition picks the step to start on from a first OPV reading,
// assuming the all-off ratio. It returns the highest step whose up
// threshold the estimate exceeds, or 0.
func (t Table) StartupPosition(opv float32) int {
	ipv := opv * InitialTapRatio
	for step := t.Top(); step >= 0; step-- {
		if ipv > float32(t[step].ThresholdUp) {
			return step
		}
	}
	return 0
}

// Select returns the step requested for ipv while sitting on current. Moves
// of more than one step happen in a single call.
func (t Table) Select(current int, ipv float32) int {
	next := current

	switch {
	case current < t.Top() && ipv > float32(t[current].ThresholdUp):
		for i := current + 1; i <= t.Top(); i++ {
			if ipv <= float32(t[i].ThresholdUp) {
				break
			}
			next = i
		}
	case current > 0 && ipv < float32(t[current].ThresholdDown):
		for i := current - 1; i >= 0; i-- {
			if ipv >= float32(t[i+1].ThresholdDown) {
				break
			}
			next = i
		}
	}

	return next
}
