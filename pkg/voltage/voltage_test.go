package voltage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputVoltage(t *testing.T) {
	m := New(488, 244.0)
	assert.True(t, m.Calibrated())
	assert.InDelta(t, 250.0, m.OutputVoltage(500), 0.01)
	assert.InDelta(t, 244.0, m.OutputVoltage(488), 0.001)
	assert.Equal(t, float32(0), m.OutputVoltage(0))
}

func TestOutputVoltageUncalibrated(t *testing.T) {
	m := New(0, 244.0)
	assert.False(t, m.Calibrated())
	assert.Equal(t, float32(0), m.OutputVoltage(1023))
}

func TestNewDefaultsCalibrationVoltage(t *testing.T) {
	assert.Equal(t, DefaultCalibrationVoltage, New(1, 0).CalibrationVoltage)
}

func TestInputVoltage(t *testing.T) {
	assert.InDelta(t, 250.0*1.208333, InputVoltage(250.0, 1.208333), 0.001)
}

func TestRound(t *testing.T) {
	assert.InDelta(t, 250.1, Round(250.0819, 1), 1e-4)
	assert.InDelta(t, 3.0, Round(2.5, 0), 1e-6)
}
