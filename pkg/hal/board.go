package hal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Board is a wrapper of a Connection to the IO bridge.
type Board struct {
	conn Connection

	mu      sync.Mutex
	main    bool
	fault   bool
	setting bool
}

var _ IO = &Board{}

// New returns a Board talking to the bridge over a serial port.
func New(port string, baud int) *Board {
	return &Board{
		conn: NewSerialConnection(port, baud),
	}
}

// NewWithConnection returns a Board using an arbitrary connection.
func NewWithConnection(conn Connection) *Board {
	return &Board{
		conn: conn,
	}
}

// NewMock returns a Board backed by an in-memory simulated bridge.
func NewMock() (*Board, *Sim) {
	sim := NewSim()
	return &Board{conn: sim}, sim
}

// Open opens the connection.
func (b *Board) Open() error {
	return b.conn.Open()
}

// Close closes the connection.
func (b *Board) Close() error {
	return b.conn.Close()
}

// Query sends one command to the bridge.
func (b *Board) Query(cmd string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"cmd": cmd,
	}).Trace("Trying to query io bridge")

	resp, err := b.conn.Query(cmd)
	if err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"cmd":  cmd,
		"resp": resp,
	}).Trace("Query io bridge succeed")

	if strings.HasPrefix(resp, "ERR") {
		return "", fmt.Errorf("io bridge rejected %q: %s", cmd, strings.TrimSpace(strings.TrimPrefix(resp, "ERR")))
	}

	return resp, nil
}

func (b *Board) expectOK(cmd string) error {
	resp, err := b.Query(cmd)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return fmt.Errorf("%w: %q to %q", ErrBadResponse, resp, cmd)
	}
	return nil
}

// ReadADC returns one raw conversion.
func (b *Board) ReadADC() (uint16, error) {
	resp, err := b.Query("A?")
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(resp)
	if len(fields) != 2 || fields[0] != "A" {
		return 0, fmt.Errorf("%w: %q", ErrBadResponse, resp)
	}

	v, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	return uint16(v), nil
}

// SetTap writes all four tap relays in one command.
func (b *Board) SetTap(p Pattern) error {
	logrus.Tracef("SetTap(%s) called", p)

	return b.expectOK("T " + p.String())
}

// SetOutput closes (true) or opens (false) the protection relay.
func (b *Board) SetOutput(closed bool) error {
	logrus.Tracef("SetOutput(%t) called", closed)

	return b.expectOK("O " + string(bit(closed)))
}

func (b *Board) readInputs() (lowCut, button bool, err error) {
	resp, err := b.Query("I?")
	if err != nil {
		return false, false, err
	}

	fields := strings.Fields(resp)
	if len(fields) != 2 || fields[0] != "I" || len(fields[1]) != 2 {
		return false, false, fmt.Errorf("%w: %q", ErrBadResponse, resp)
	}

	return fields[1][0] == '1', fields[1][1] == '1', nil
}

// LowCutEnabled reads the low-cut enable switch.
func (b *Board) LowCutEnabled() (bool, error) {
	lowCut, _, err := b.readInputs()
	return lowCut, err
}

// ButtonPressed reads the setting button.
func (b *Board) ButtonPressed() (bool, error) {
	_, button, err := b.readInputs()
	return button, err
}

func (b *Board) writeLEDs(update func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	update()
	return b.expectOK("L " + string([]byte{bit(b.main), bit(b.fault), bit(b.setting)}))
}

// SetMainLED .
func (b *Board) SetMainLED(on bool) error {
	return b.writeLEDs(func() { b.main = on })
}

// SetFaultLED .
func (b *Board) SetFaultLED(on bool) error {
	return b.writeLEDs(func() { b.fault = on })
}

// SetSettingLED .
func (b *Board) SetSettingLED(on bool) error {
	return b.writeLEDs(func() { b.setting = on })
}
