// Package settings persists the calibration reference and the re-engage
// delay in a single checksummed record on one erasable page.
//
// Loading never fails: a missing, corrupt or out-of-range record degrades
// to uncalibrated defaults.
package settings

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultReengageDelayMs is used when nothing valid is stored.
	DefaultReengageDelayMs uint32 = 180000
	// MinReengageDelayMs is the shortest accepted re-engage delay.
	MinReengageDelayMs uint32 = 3000
	// MaxReengageDelayMs is the longest accepted re-engage delay.
	MaxReengageDelayMs uint32 = 180000
	// MaxReference is the largest ADC count a reference can take (10-bit ADC).
	MaxReference uint16 = 1023
)

// Settings is the persisted calibration data.
type Settings struct {
	// ReferenceADC is the ADC count at the calibration voltage; 0 means
	// uncalibrated.
	ReferenceADC    uint16 `json:"referenceAdc"`
	ReengageDelayMs uint32 `json:"reengageDelayMs"`
}

// Defaults returns the uncalibrated settings.
func Defaults() Settings {
	return Settings{
		ReferenceADC:    0,
		ReengageDelayMs: DefaultReengageDelayMs,
	}
}

// Calibrated reports whether a reference is present.
func (s Settings) Calibrated() bool {
	return s.ReferenceADC != 0
}

// ClampDelay clamps ms into the accepted re-engage delay range.
func ClampDelay(ms uint32) uint32 {
	if ms < MinReengageDelayMs {
		return MinReengageDelayMs
	}
	if ms > MaxReengageDelayMs {
		return MaxReengageDelayMs
	}
	return ms
}

// Store reads and writes Settings on a Page. It is the single writer of the
// page.
type Store struct {
	mu   sync.Mutex
	page Page
}

// NewStore returns a store on page.
func NewStore(page Page) *Store {
	return &Store{page: page}
}

// Load returns the stored settings, or defaults when the page is unreadable
// or the record fails its integrity check. Out-of-range fields are replaced
// individually: an invalid reference becomes 0, an invalid delay the
// default.
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.page.Read()
	if err != nil {
		logrus.WithError(err).Warn("failed to read settings, using defaults")
		return Defaults()
	}

	st, err := Decode(b)
	if err != nil {
		if isErased(b) {
			logrus.Info("no settings stored, using defaults")
		} else {
			logrus.WithError(err).Warn("stored settings rejected, using defaults")
		}
		return Defaults()
	}

	if st.ReferenceADC > MaxReference {
		logrus.WithField("referenceAdc", st.ReferenceADC).Warn("stored calibration reference out of range, treating as uncalibrated")
		st.ReferenceADC = 0
	}
	if st.ReengageDelayMs < MinReengageDelayMs || st.ReengageDelayMs > MaxReengageDelayMs {
		logrus.WithField("reengageDelayMs", st.ReengageDelayMs).Warn("stored re-engage delay out of range, using default")
		st.ReengageDelayMs = DefaultReengageDelayMs
	}

	return st
}

// Save erases the page and programs st. The delay is clamped into range; a
// reference above MaxReference is rejected.
func (s *Store) Save(st Settings) error {
	if st.ReferenceADC > MaxReference {
		return pkgerrors.Errorf("calibration reference %d out of range (0, %d]", st.ReferenceADC, MaxReference)
	}
	st.ReengageDelayMs = ClampDelay(st.ReengageDelayMs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.page.Erase(); err != nil {
		return pkgerrors.Wrap(err, "failed to erase settings page")
	}
	if err := s.page.Program(Encode(st)); err != nil {
		return pkgerrors.Wrap(err, "failed to program settings page")
	}

	logrus.WithFields(logrus.Fields{
		"referenceAdc":    st.ReferenceADC,
		"reengageDelayMs": st.ReengageDelayMs,
	}).Info("settings saved")

	return nil
}

// Clear erases the page. The next Load returns defaults.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.page.Erase(); err != nil {
		return pkgerrors.Wrap(err, "failed to erase settings page")
	}

	logrus.Info("settings cleared")
	return nil
}

func isErased(b []byte) bool {
	for _, v := range b {
		if v != erased {
			return false
		}
	}
	return true
}
