package hal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Sim is an in-memory IO bridge. It answers the same line protocol as the
// firmware so Board is exercised end to end without hardware.
type Sim struct {
	mu sync.Mutex

	adc     func() uint16
	plant   func(tap Pattern) uint16
	lowCut  bool
	button  bool
	tap     Pattern
	output  bool
	leds    [3]bool
	taps    []Pattern
	outputs []bool
	opened  bool
}

var _ Connection = &Sim{}

// NewSim returns a simulated bridge reading 0 on the ADC.
func NewSim() *Sim {
	return &Sim{
		adc: func() uint16 { return 0 },
	}
}

// SetADC makes every conversion return v.
func (s *Sim) SetADC(v uint16) {
	s.SetADCFunc(func() uint16 { return v })
}

// SetADCFunc installs a generator called once per conversion.
func (s *Sim) SetADCFunc(f func() uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adc = f
}

// SetPlant installs a model of the transformer: f gets the relay pattern
// currently applied and returns the conversion result. It takes precedence
// over SetADC and SetADCFunc.
func (s *Sim) SetPlant(f func(tap Pattern) uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plant = f
}

// SetLowCut sets the low-cut enable switch.
func (s *Sim) SetLowCut(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lowCut = on
}

// SetButton sets whether the setting button is held.
func (s *Sim) SetButton(held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.button = held
}

// Tap returns the current tap relay pattern.
func (s *Sim) Tap() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap
}

// TapWrites returns every pattern written so far.
func (s *Sim) TapWrites() []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Pattern(nil), s.taps...)
}

// Output reports whether the protection relay is closed.
func (s *Sim) Output() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// OutputWrites returns every protection relay write so far.
func (s *Sim) OutputWrites() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.outputs...)
}

// LEDs returns main, fault and setting LED states.
func (s *Sim) LEDs() (main, fault, setting bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leds[0], s.leds[1], s.leds[2]
}

func (s *Sim) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

func parseBits(arg string, n int) ([]bool, bool) {
	if len(arg) != n {
		return nil, false
	}
	out := make([]bool, n)
	for i := range arg {
		switch arg[i] {
		case '0':
		case '1':
			out[i] = true
		default:
			return nil, false
		}
	}
	return out, true
}

// Query implements the bridge protocol.
func (s *Sim) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, arg, _ := strings.Cut(cmd, " ")
	switch op {
	case "A?":
		v := s.adc()
		if s.plant != nil {
			v = s.plant(s.tap)
		}
		return "A " + strconv.Itoa(int(v)), nil
	case "I?":
		return fmt.Sprintf("I %c%c", bit(s.lowCut), bit(s.button)), nil
	case "T":
		bits, ok := parseBits(arg, 4)
		if !ok {
			return "ERR bad pattern", nil
		}
		copy(s.tap[:], bits)
		s.taps = append(s.taps, s.tap)
		return "OK", nil
	case "O":
		bits, ok := parseBits(arg, 1)
		if !ok {
			return "ERR bad output", nil
		}
		s.output = bits[0]
		s.outputs = append(s.outputs, s.output)
		return "OK", nil
	case "L":
		bits, ok := parseBits(arg, 3)
		if !ok {
			return "ERR bad leds", nil
		}
		copy(s.leds[:], bits)
		return "OK", nil
	}
	return "ERR unknown command", nil
}
