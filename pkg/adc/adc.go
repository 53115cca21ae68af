// Package adc turns raw conversions of the mains sense input into the
// readings the control loop works with.
//
// A single conversion is noisy, so every reading is a trimmed mean of a
// burst of conversions. The control loop additionally smooths readings with
// a one-pole IIR filter, and calibration capture takes the median of a few
// spaced bursts.
package adc

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/hal"
)

const (
	// BurstSize is the number of raw conversions per averaged sample.
	BurstSize = 16
	// Discard is how many conversions are dropped from each end of a burst.
	Discard = 4
	// SettleDelay is the pause between conversions of a burst.
	SettleDelay = 100 * time.Microsecond

	// CaptureCount is the number of averaged samples per calibration capture.
	CaptureCount = 5
	// CaptureSpacing is the pause between calibration samples.
	CaptureSpacing = 50 * time.Millisecond

	filterNewWeight  = 2
	filterHeldWeight = 8
	filterDivisor    = filterNewWeight + filterHeldWeight
)

// Sleeper blocks for d. time.Sleep in production, a no-op in tests.
type Sleeper func(d time.Duration)

// Sampler produces averaged, filtered and calibration samples.
type Sampler struct {
	adc   hal.ADC
	sleep Sleeper

	filtered    uint32
	initialized bool
}

// New returns a Sampler reading from adc. A nil sleep uses time.Sleep.
func New(adc hal.ADC, sleep Sleeper) *Sampler {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Sampler{
		adc:   adc,
		sleep: sleep,
	}
}

// SampleAveraged takes a burst of conversions and returns the mean of the
// middle half.
func (s *Sampler) SampleAveraged() (uint16, error) {
	samples := make([]uint16, BurstSize)
	for i := range samples {
		v, err := s.adc.ReadADC()
		if err != nil {
			return 0, err
		}
		samples[i] = v
		s.sleep(SettleDelay)
	}

	return TrimmedMean(samples, Discard), nil
}

// SampleFiltered returns the averaged sample passed through the IIR filter.
// The first call seeds the filter with the raw averaged sample.
func (s *Sampler) SampleFiltered() (uint16, error) {
	v, err := s.SampleAveraged()
	if err != nil {
		return 0, err
	}

	if !s.initialized {
		s.filtered = uint32(v)
		s.initialized = true
		return v, nil
	}

	s.filtered = Filter(s.filtered, v)
	return uint16(s.filtered), nil
}

// Filtered returns the current filter state and whether it is seeded.
func (s *Sampler) Filtered() (uint16, bool) {
	return uint16(s.filtered), s.initialized
}

// Reset forgets the filter state; the next SampleFiltered reseeds it.
func (s *Sampler) Reset() {
	s.filtered = 0
	s.initialized = false
}

// SampleCalibration returns the median of spaced averaged samples.
func (s *Sampler) SampleCalibration() (uint16, error) {
	captures := make([]uint16, CaptureCount)
	for i := range captures {
		v, err := s.SampleAveraged()
		if err != nil {
			return 0, err
		}
		captures[i] = v
		s.sleep(CaptureSpacing)
	}

	m := Median(captures)
	logrus.WithFields(logrus.Fields{
		"captures": captures,
		"median":   m,
	}).Debug("calibration sample captured")

	return m, nil
}

// Filter applies one step of (2*new + 8*held) / 10.
func Filter(held uint32, v uint16) uint32 {
	return (filterNewWeight*uint32(v) + filterHeldWeight*held) / filterDivisor
}

// TrimmedMean sorts a copy of samples, drops discard values from each end
// and returns the integer mean of the rest. It returns 0 if nothing is left.
func TrimmedMean(samples []uint16, discard int) uint16 {
	if discard < 0 {
		discard = 0
	}
	if len(samples) <= 2*discard {
		return 0
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum uint32
	kept := sorted[discard : len(sorted)-discard]
	for _, v := range kept {
		sum += uint32(v)
	}
	return uint16(sum / uint32(len(kept)))
}

// Median returns the middle element of a sorted copy of samples. For an even
// count it returns the upper middle.
func Median(samples []uint16) uint16 {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
