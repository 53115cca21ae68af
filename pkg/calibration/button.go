package calibration

import "github.com/charlie0129/vstab/pkg/tick"

// Press is a completed button press.
type Press int

const (
	PressNone Press = iota
	PressShort
	PressLong
)

func (p Press) String() string {
	switch p {
	case PressShort:
		return "short"
	case PressLong:
		return "long"
	}
	return "none"
}

const (
	// DefaultMinPress filters contact bounce, in ms.
	DefaultMinPress uint32 = 30
	// DefaultLongPress is the hold time of a long press, in ms.
	DefaultLongPress uint32 = 1000
)

// PressDetector classifies presses of a sampled button. A press is reported
// on release.
type PressDetector struct {
	MinPress  uint32
	LongPress uint32

	down    bool
	since   uint32
	latched bool
}

// NewPressDetector returns a detector with the default timings.
func NewPressDetector() *PressDetector {
	return &PressDetector{
		MinPress:  DefaultMinPress,
		LongPress: DefaultLongPress,
	}
}

// Latch ignores the button until it is next seen released, so a hold that
// started before the detector was in charge does not count as a press.
func (d *PressDetector) Latch() {
	d.down = false
	d.latched = true
}

// Update feeds one sample of the button taken at now.
func (d *PressDetector) Update(pressed bool, now uint32) Press {
	if d.latched {
		d.latched = pressed
		return PressNone
	}

	switch {
	case pressed && !d.down:
		d.down = true
		d.since = now
	case !pressed && d.down:
		d.down = false
		switch {
		case tick.Elapsed(now, d.since, d.LongPress):
			return PressLong
		case tick.Elapsed(now, d.since, d.MinPress):
			return PressShort
		}
	}
	return PressNone
}
