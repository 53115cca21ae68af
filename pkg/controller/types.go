package controller

import (
	"github.com/charlie0129/vstab/pkg/calibration"
	"github.com/charlie0129/vstab/pkg/protection"
	"github.com/charlie0129/vstab/pkg/settings"
)

// SystemMode is the top-level operating mode.
type SystemMode string

const (
	ModeNormal      SystemMode = "Normal"
	ModeCalibrating SystemMode = "Calibrating"
	ModeFaulted     SystemMode = "Faulted"
)

// ControlState is what the loop carries from one cycle to the next, apart
// from the state held by the tap changer and the protection machine.
type ControlState struct {
	FilteredADC   uint16  `json:"filteredAdc"`
	OPV           float32 `json:"opv"`
	IPV           float32 `json:"ipv"`
	LowCutEnabled bool    `json:"lowCutEnabled"`
	OutputClosed  bool    `json:"outputClosed"`
}

// TapStatus describes the tap changer.
type TapStatus struct {
	Step        int     `json:"step"`
	TapRatio    float32 `json:"tapRatio"`
	Pending     int     `json:"pending"`
	Armed       bool    `json:"armed"`
	TopStep     int     `json:"topStep"`
	PendingInMs uint32  `json:"pendingInMs,omitempty"`
}

// Snapshot is a consistent copy of everything the loop owns, served by
// GET /status.
type Snapshot struct {
	Mode        SystemMode          `json:"mode"`
	Calibrated  bool                `json:"calibrated"`
	Settings    settings.Settings   `json:"settings"`
	Control     ControlState        `json:"control"`
	Tap         TapStatus           `json:"tap"`
	Protection  protection.Status   `json:"protection"`
	Calibration *calibration.Status `json:"calibration"`
	Tick        uint32              `json:"tick"`
	Cycles      uint64              `json:"cycles"`
	Overruns    uint64              `json:"overruns"`
	LastError   string              `json:"lastError,omitempty"`
}
