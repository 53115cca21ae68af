package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/vstab/pkg/hal"
	"github.com/charlie0129/vstab/pkg/protection"
	"github.com/charlie0129/vstab/pkg/tap"
	"github.com/charlie0129/vstab/pkg/utils/ptr"
	"github.com/charlie0129/vstab/pkg/voltage"
)

const (
	DefaultPath         = "/etc/vstab/config.yaml"
	DefaultSettingsPath = "/var/lib/vstab/settings.bin"
)

var (
	defaultFileConfig = &RawFileConfig{
		LoopIntervalMs:     ptr.To[uint32](10),
		DebounceMs:         ptr.To(tap.DefaultDebounce),
		HiCutThreshold:     ptr.To(protection.DefaultThresholds.HiCut),
		HiCutResume:        ptr.To(protection.DefaultThresholds.HiResume),
		LoCutThreshold:     ptr.To(protection.DefaultThresholds.LoCut),
		LoCutResume:        ptr.To(protection.DefaultThresholds.LoResume),
		DetectMs:           ptr.To(protection.DefaultThresholds.Detect),
		ResumeMs:           ptr.To(protection.DefaultThresholds.Resume),
		CalibrationVoltage: ptr.To(voltage.DefaultCalibrationVoltage),
		SettingsPath:       ptr.To(DefaultSettingsPath),
		Backend:            ptr.To(BackendSim),
		SerialPort:         ptr.To(""),
		SerialBaud:         ptr.To(hal.DefaultBaudRate),
		BootButtonHoldMs:   ptr.To[uint32](1000),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// RawFileConfig is the on-disk form. Unset keys fall back to the defaults.
type RawFileConfig struct {
	LoopIntervalMs     *uint32  `yaml:"loopIntervalMs,omitempty"`
	DebounceMs         *uint32  `yaml:"debounceMs,omitempty"`
	HiCutThreshold     *float32 `yaml:"hiCutThreshold,omitempty"`
	HiCutResume        *float32 `yaml:"hiCutResume,omitempty"`
	LoCutThreshold     *float32 `yaml:"loCutThreshold,omitempty"`
	LoCutResume        *float32 `yaml:"loCutResume,omitempty"`
	DetectMs           *uint32  `yaml:"detectMs,omitempty"`
	ResumeMs           *uint32  `yaml:"resumeMs,omitempty"`
	CalibrationVoltage *float32 `yaml:"calibrationVoltage,omitempty"`
	SettingsPath       *string  `yaml:"settingsPath,omitempty"`
	Backend            *Backend `yaml:"backend,omitempty"`
	SerialPort         *string  `yaml:"serialPort,omitempty"`
	SerialBaud         *int     `yaml:"serialBaud,omitempty"`
	BootButtonHoldMs   *uint32  `yaml:"bootButtonHoldMs,omitempty"`
	AllowNonRootAccess *bool    `yaml:"allowNonRootAccess,omitempty"`
}

// get reads one field under the read lock, falling back to the default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(field(f.c), *field(defaultFileConfig))
}

func set[T any](f *File, field func(*RawFileConfig) **T, v T) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	*field(f.c) = &v
}

func (f *File) LoopIntervalMs() uint32 {
	return get(f, func(c *RawFileConfig) *uint32 { return c.LoopIntervalMs })
}

func (f *File) DebounceMs() uint32 {
	return get(f, func(c *RawFileConfig) *uint32 { return c.DebounceMs })
}

func (f *File) Thresholds() protection.Thresholds {
	return protection.Thresholds{
		HiCut:    get(f, func(c *RawFileConfig) *float32 { return c.HiCutThreshold }),
		HiResume: get(f, func(c *RawFileConfig) *float32 { return c.HiCutResume }),
		LoCut:    get(f, func(c *RawFileConfig) *float32 { return c.LoCutThreshold }),
		LoResume: get(f, func(c *RawFileConfig) *float32 { return c.LoCutResume }),
		Detect:   get(f, func(c *RawFileConfig) *uint32 { return c.DetectMs }),
		Resume:   get(f, func(c *RawFileConfig) *uint32 { return c.ResumeMs }),
	}
}

func (f *File) CalibrationVoltage() float32 {
	return get(f, func(c *RawFileConfig) *float32 { return c.CalibrationVoltage })
}

func (f *File) SettingsPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.SettingsPath })
}

func (f *File) Backend() Backend {
	return get(f, func(c *RawFileConfig) *Backend { return c.Backend })
}

func (f *File) SerialPort() string {
	return get(f, func(c *RawFileConfig) *string { return c.SerialPort })
}

func (f *File) SerialBaud() int {
	return get(f, func(c *RawFileConfig) *int { return c.SerialBaud })
}

func (f *File) BootButtonHoldMs() uint32 {
	return get(f, func(c *RawFileConfig) *uint32 { return c.BootButtonHoldMs })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetBackend(b Backend) {
	set(f, func(c *RawFileConfig) **Backend { return &c.Backend }, b)
}

func (f *File) SetSerialPort(p string) {
	set(f, func(c *RawFileConfig) **string { return &c.SerialPort }, p)
}

func (f *File) SetAllowNonRootAccess(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.AllowNonRootAccess }, b)
}

func (f *File) Validate() error {
	th := f.Thresholds()
	if th.HiResume >= th.HiCut {
		return pkgerrors.Errorf("hiCutResume (%.1f) must be below hiCutThreshold (%.1f)", th.HiResume, th.HiCut)
	}
	if th.LoResume <= th.LoCut {
		return pkgerrors.Errorf("loCutResume (%.1f) must be above loCutThreshold (%.1f)", th.LoResume, th.LoCut)
	}
	if th.LoResume >= th.HiResume {
		return pkgerrors.Errorf("loCutResume (%.1f) must be below hiCutResume (%.1f)", th.LoResume, th.HiResume)
	}
	if f.LoopIntervalMs() == 0 {
		return pkgerrors.New("loopIntervalMs must be positive")
	}
	if f.CalibrationVoltage() <= 0 {
		return pkgerrors.New("calibrationVoltage must be positive")
	}

	switch f.Backend() {
	case BackendSim:
	case BackendSerial:
		if f.SerialPort() == "" {
			return pkgerrors.New("serialPort is required for the serial backend")
		}
		if f.SerialBaud() <= 0 {
			return pkgerrors.New("serialBaud must be positive")
		}
	default:
		return pkgerrors.Errorf("unknown backend %q", f.Backend())
	}

	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file means all defaults. Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if len(bytes.TrimSpace(b)) == 0 {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = yaml.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	b, err := yaml.Marshal(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config for file %s", f.filepath)
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.filepath)
	}

	err = os.WriteFile(f.filepath, b, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to write file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	th := f.Thresholds()
	return logrus.Fields{
		"loopIntervalMs":     f.LoopIntervalMs(),
		"debounceMs":         f.DebounceMs(),
		"hiCutThreshold":     th.HiCut,
		"hiCutResume":        th.HiResume,
		"loCutThreshold":     th.LoCut,
		"loCutResume":        th.LoResume,
		"detectMs":           th.Detect,
		"resumeMs":           th.Resume,
		"calibrationVoltage": f.CalibrationVoltage(),
		"settingsPath":       f.SettingsPath(),
		"backend":            f.Backend(),
		"serialPort":         f.SerialPort(),
		"serialBaud":         f.SerialBaud(),
		"bootButtonHoldMs":   f.BootButtonHoldMs(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
	}
}
