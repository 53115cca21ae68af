package events

import "encoding/json"

const (
	ModeChanged      = "mode.changed"
	ProtectionState  = "protection.state"
	TapStep          = "tap.step"
	CalibrationPhase = "calibration.phase"
)

// Event is one entry of the daemon's SSE stream.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ModeChangedEvent is the payload of mode.changed.
type ModeChangedEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
	Ts   int64  `json:"ts"`
}

// ProtectionStateEvent is the payload of protection.state.
type ProtectionStateEvent struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	OPV         float32 `json:"opv"`
	RelayClosed bool    `json:"relayClosed"`
	Ts          int64   `json:"ts"`
}

// TapStepEvent is the payload of tap.step.
type TapStepEvent struct {
	From     int     `json:"from"`
	To       int     `json:"to"`
	IPV      float32 `json:"ipv"`
	TapRatio float32 `json:"tapRatio"`
	Ts       int64   `json:"ts"`
}

// CalibrationPhaseEvent is the payload of calibration.phase.
type CalibrationPhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs unmarshals the payload into T, ignoring the event name. An empty
// payload yields the zero value.
func DecodeAs[T any](e Event) (T, error) {
	var v T
	if len(e.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
