// Package voltage converts filtered ADC counts into the output-side (OPV)
// and input-side (IPV) voltage estimates.
//
// The sense input is assumed linear over the working range: a single
// calibration point, the count observed at CalibrationVoltage, scales every
// other reading.
package voltage

import "github.com/chewxy/math32"

// DefaultCalibrationVoltage is the known mains voltage applied while
// capturing the calibration reference.
const DefaultCalibrationVoltage float32 = 244.0

// Model holds the calibration point.
type Model struct {
	// Reference is the ADC count captured at CalibrationVoltage. 0 means
	// uncalibrated.
	Reference          uint16
	CalibrationVoltage float32
}

// New returns a Model for the given reference count.
func New(reference uint16, calibrationVoltage float32) Model {
	if calibrationVoltage <= 0 {
		calibrationVoltage = DefaultCalibrationVoltage
	}
	return Model{
		Reference:          reference,
		CalibrationVoltage: calibrationVoltage,
	}
}

// Calibrated reports whether a reference is present.
func (m Model) Calibrated() bool {
	return m.Reference != 0
}

// OutputVoltage returns the OPV for count, or 0 when uncalibrated.
func (m Model) OutputVoltage(count uint16) float32 {
	if m.Reference == 0 {
		return 0
	}
	return float32(count) / float32(m.Reference) * m.CalibrationVoltage
}

// InputVoltage returns the IPV for an OPV measured with the given tap ratio.
func InputVoltage(opv, tapRatio float32) float32 {
	return opv * tapRatio
}

// Round rounds v to the given number of decimals.
func Round(v float32, decimals int) float32 {
	p := math32.Pow(10, float32(decimals))
	return math32.Round(v*p) / p
}
