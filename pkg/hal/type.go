package hal

import "errors"

// Connection is a line-oriented link to the IO bridge. Query sends one
// command line and returns the single response line without the newline.
type Connection interface {
	Open() error
	Close() error
	Query(cmd string) (string, error)
}

// ErrBadResponse is returned when the bridge answers with something that
// does not parse.
var ErrBadResponse = errors.New("bad response from io bridge")

// ErrTimeout is returned when the bridge does not finish a response line in
// time.
var ErrTimeout = errors.New("timed out waiting for io bridge")

// Pattern is the state of the four tap relays R1..R4.
type Pattern [4]bool

// String renders the pattern the way it goes over the wire, e.g. "0110".
func (p Pattern) String() string {
	b := make([]byte, len(p))
	for i, on := range p {
		b[i] = bit(on)
	}
	return string(b)
}

func bit(b bool) byte {
	if b {
		return '1'
	}
	return '0'
}

// ADC reads one raw conversion of the sense input.
type ADC interface {
	ReadADC() (uint16, error)
}

// Relays drives the four tap relays and the protection relay.
type Relays interface {
	SetTap(p Pattern) error
	SetOutput(closed bool) error
}

// Inputs reads the external switches.
type Inputs interface {
	LowCutEnabled() (bool, error)
	ButtonPressed() (bool, error)
}

// Indicators drives the status LEDs.
type Indicators interface {
	SetMainLED(on bool) error
	SetFaultLED(on bool) error
	SetSettingLED(on bool) error
}

// IO is everything the control loop talks to.
type IO interface {
	ADC
	Relays
	Inputs
	Indicators
}
