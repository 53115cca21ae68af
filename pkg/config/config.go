package config

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/vstab/pkg/protection"
)

// Backend selects the board implementation.
type Backend string

const (
	BackendSim    Backend = "sim"
	BackendSerial Backend = "serial"
)

type Config interface {
	LoopIntervalMs() uint32
	DebounceMs() uint32
	Thresholds() protection.Thresholds
	CalibrationVoltage() float32
	SettingsPath() string
	Backend() Backend
	SerialPort() string
	SerialBaud() int
	BootButtonHoldMs() uint32
	AllowNonRootAccess() bool

	SetBackend(Backend)
	SetSerialPort(string)
	SetAllowNonRootAccess(bool)

	// Validate checks that the values are consistent with each other.
	Validate() error
	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
