package hal

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate of the IO bridge firmware.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds how long a single query waits for its answer.
	DefaultReadTimeout = 200 * time.Millisecond
	// pollInterval is the per-read timeout on the port. Query loops over
	// reads of this length until its own deadline.
	pollInterval = 20 * time.Millisecond
)

// SerialConnection talks to the IO bridge MCU over a serial port.
type SerialConnection struct {
	port     string
	baudRate int
	timeout  time.Duration

	mu   sync.Mutex
	conn serial.Port
	// stale is set after a query timed out. Its answer may still arrive, so
	// the next query flushes the input first.
	stale bool
}

var _ Connection = &SerialConnection{}

// NewSerialConnection returns an unopened connection.
func NewSerialConnection(port string, baudRate int) *SerialConnection {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &SerialConnection{
		port:     port,
		baudRate: baudRate,
		timeout:  DefaultReadTimeout,
	}
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Open opens the serial port.
func (s *SerialConnection) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	port, err := serial.Open(s.port, &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.port, err)
	}

	// Drop whatever the bridge printed while booting.
	if err := port.ResetInputBuffer(); err != nil {
		logrus.WithError(err).Warn("failed to reset serial input buffer")
	}

	s.conn = port
	s.stale = false
	logrus.WithFields(logrus.Fields{
		"port": s.port,
		"baud": s.baudRate,
	}).Info("io bridge connected")

	return nil
}

// Close closes the serial port.
func (s *SerialConnection) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	return err
}

// Query writes cmd and reads one response line within the read timeout. A
// response that arrives after its query gave up is discarded rather than
// taken as the answer to the next command.
func (s *SerialConnection) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return "", fmt.Errorf("serial port %s is not open", s.port)
	}

	if s.stale {
		if err := s.conn.ResetInputBuffer(); err != nil {
			return "", fmt.Errorf("failed to flush input before %q: %w", cmd, err)
		}
		s.stale = false
	}

	if _, err := s.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", cmd, err)
	}

	line, err := s.readLine()
	if err != nil {
		s.stale = true
		return "", fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}

	return strings.TrimSpace(line), nil
}

// readLine reads until a newline or until s.timeout has passed. A read that
// times out on the port returns no bytes and no error.
func (s *SerialConnection) readLine() (string, error) {
	deadline := time.Now().Add(s.timeout)
	buf := make([]byte, 64)
	var line []byte

	for time.Now().Before(deadline) {
		n, err := s.conn.Read(buf)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(buf[:n], '\n'); i >= 0 {
			// One response per command; anything after the newline is noise.
			return string(append(line, buf[:i]...)), nil
		}
		line = append(line, buf[:n]...)
	}

	return "", ErrTimeout
}
