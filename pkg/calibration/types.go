package calibration

import "time"

// Phase defines phases of the calibration wizard.
type Phase string

const (
	PhaseIdle         Phase = "Idle"
	PhaseWaitingDelay Phase = "WaitingDelay"
	PhaseWaitingADC   Phase = "WaitingADC"
	PhaseError        Phase = "Error"
)

// Action defines user actions on the wizard.
type Action string

const (
	ActionBegin     Action = "Begin"
	ActionNextDelay Action = "NextDelay"
	ActionSetDelay  Action = "SetDelay"
	ActionCapture   Action = "Capture"
	ActionCancel    Action = "Cancel"
)

// DelayPresets are the re-engage delays a short press cycles through, in ms.
var DelayPresets = []uint32{3000, 10000, 30000, 60000, 120000, 180000}

// State holds the wizard runtime state.
type State struct {
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
	// DelayMs is the re-engage delay selected in the first step.
	DelayMs uint32 `json:"delayMs"`
	// CapturedADC is the last reference captured in the second step.
	CapturedADC uint16 `json:"capturedAdc"`
	LastError   string `json:"lastError"`
}

// Status is a view model exposed via the HTTP API and the CLI.
type Status struct {
	Phase       Phase     `json:"phase"`
	Active      bool      `json:"active"`
	StartedAt   time.Time `json:"startedAt"`
	DelayMs     uint32    `json:"delayMs"`
	CapturedADC uint16    `json:"capturedAdc,omitempty"`
	// ReferenceVoltage is the mains voltage that must be applied before
	// capturing.
	ReferenceVoltage float32 `json:"referenceVoltage"`
	CanCapture       bool    `json:"canCapture"`
	CanCancel        bool    `json:"canCancel"`
	Message          string  `json:"message"`
}
