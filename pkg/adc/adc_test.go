package adc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqADC struct {
	values []uint16
	i      int
	err    error
}

func (s *seqADC) ReadADC() (uint16, error) {
	if s.err != nil {
		return 0, s.err
	}
	v := s.values[s.i%len(s.values)]
	s.i++
	return v, nil
}

func noSleep(time.Duration) {}

func TestTrimmedMeanIgnoresOutliers(t *testing.T) {
	base := []uint16{500, 500, 500, 500, 500, 500, 500, 500}

	tests := []struct {
		name string
		low  []uint16
		high []uint16
	}{
		{name: "no outliers", low: []uint16{500, 500, 500, 500}, high: []uint16{500, 500, 500, 500}},
		{name: "four low spikes", low: []uint16{0, 1, 2, 3}, high: []uint16{500, 500, 500, 500}},
		{name: "four high spikes", low: []uint16{500, 500, 500, 500}, high: []uint16{1023, 1023, 1000, 900}},
		{name: "both ends", low: []uint16{0, 0, 10, 20}, high: []uint16{1023, 1023, 1023, 1023}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := append(append(append([]uint16{}, tt.high...), base...), tt.low...)
			require.Len(t, samples, BurstSize)
			assert.Equal(t, uint16(500), TrimmedMean(samples, Discard))
		})
	}
}

func TestTrimmedMeanDoesNotMutateInput(t *testing.T) {
	in := []uint16{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	TrimmedMean(in, 2)
	assert.Equal(t, []uint16{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, in)
	assert.Equal(t, uint16(0), TrimmedMean([]uint16{1, 2}, 1))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, uint16(30), Median([]uint16{50, 10, 30, 40, 20}))
	assert.Equal(t, uint16(0), Median(nil))
}

func TestSampleAveraged(t *testing.T) {
	// 1..16: middle eight are 5..12, mean 8 (68/8 truncated).
	values := make([]uint16, BurstSize)
	for i := range values {
		values[i] = uint16(i + 1)
	}
	slept := 0
	s := New(&seqADC{values: values}, func(d time.Duration) {
		assert.Equal(t, SettleDelay, d)
		slept++
	})

	v, err := s.SampleAveraged()
	require.NoError(t, err)
	assert.Equal(t, uint16(8), v)
	assert.Equal(t, BurstSize, slept)
}

func TestSampleFilteredSeedsAndSmooths(t *testing.T) {
	src := &seqADC{values: []uint16{500}}
	s := New(src, noSleep)

	v, err := s.SampleFiltered()
	require.NoError(t, err)
	assert.Equal(t, uint16(500), v, "first sample seeds without transient")

	src.values = []uint16{600}
	v, err = s.SampleFiltered()
	require.NoError(t, err)
	assert.Equal(t, uint16(520), v) // (1200 + 4000) / 10
}

func TestSampleFilteredSteadyState(t *testing.T) {
	s := New(&seqADC{values: []uint16{488}}, noSleep)
	for i := 0; i < 10; i++ {
		v, err := s.SampleFiltered()
		require.NoError(t, err)
		assert.Equal(t, uint16(488), v)
	}
}

func TestSampleFilteredReset(t *testing.T) {
	src := &seqADC{values: []uint16{100}}
	s := New(src, noSleep)
	_, err := s.SampleFiltered()
	require.NoError(t, err)

	s.Reset()
	_, ok := s.Filtered()
	assert.False(t, ok)

	src.values = []uint16{900}
	v, err := s.SampleFiltered()
	require.NoError(t, err)
	assert.Equal(t, uint16(900), v)
}

func TestSampleCalibrationMedian(t *testing.T) {
	// Each burst is a constant value, so every averaged sample equals it.
	bursts := []uint16{480, 700, 488, 300, 490}
	values := make([]uint16, 0, len(bursts)*BurstSize)
	for _, b := range bursts {
		for i := 0; i < BurstSize; i++ {
			values = append(values, b)
		}
	}
	var spacings int
	s := New(&seqADC{values: values}, func(d time.Duration) {
		if d == CaptureSpacing {
			spacings++
		}
	})

	v, err := s.SampleCalibration()
	require.NoError(t, err)
	assert.Equal(t, uint16(488), v)
	assert.Equal(t, CaptureCount, spacings)
}

func TestSampleErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	s := New(&seqADC{err: boom}, noSleep)

	_, err := s.SampleFiltered()
	assert.ErrorIs(t, err, boom)
	_, ok := s.Filtered()
	assert.False(t, ok)

	_, err = s.SampleCalibration()
	assert.ErrorIs(t, err, boom)
}
