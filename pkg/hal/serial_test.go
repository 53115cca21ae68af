package hal

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort behaves like a port with a short read timeout: Read returns
// (0, nil) when nothing is buffered.
type fakePort struct {
	serial.Port

	mu      sync.Mutex
	in      []byte
	chunk   int
	resets  int
	written []string
	// reply answers a written command line; "" means the bridge stays silent.
	reply func(cmd string) string
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.in) == 0 {
		p.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return 0, nil
	}
	defer p.mu.Unlock()

	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := strings.TrimSuffix(string(b), "\n")
	p.written = append(p.written, cmd)
	if p.reply != nil {
		p.in = append(p.in, p.reply(cmd)...)
	}
	return len(b), nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.in = nil
	return nil
}

func (p *fakePort) Close() error {
	return nil
}

func (p *fakePort) deliver(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = append(p.in, s...)
}

func newFakeSerial(port *fakePort) *SerialConnection {
	s := NewSerialConnection("fake", 0)
	s.conn = port
	s.timeout = 50 * time.Millisecond
	return s
}

func TestSerialQueryAssemblesSplitReply(t *testing.T) {
	port := &fakePort{
		chunk: 3,
		reply: func(cmd string) string { return "ADC 512\r\n" },
	}
	s := newFakeSerial(port)

	line, err := s.Query("ADC")
	require.NoError(t, err)
	assert.Equal(t, "ADC 512", line)
	assert.Equal(t, []string{"ADC"}, port.written)
}

func TestSerialQueryTimesOut(t *testing.T) {
	port := &fakePort{
		reply: func(cmd string) string { return "ADC 5" },
	}
	s := newFakeSerial(port)

	start := time.Now()
	_, err := s.Query("ADC")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSerialQueryDiscardsLateReply(t *testing.T) {
	port := &fakePort{
		reply: func(cmd string) string { return "" },
	}
	s := newFakeSerial(port)

	_, err := s.Query("ADC")
	require.ErrorIs(t, err, ErrTimeout)

	// The answer to the first query shows up after it gave up.
	port.deliver("ADC 700\n")
	port.mu.Lock()
	port.reply = func(cmd string) string { return "OK " + cmd + "\n" }
	port.mu.Unlock()

	line, err := s.Query("OUT 1")
	require.NoError(t, err)
	assert.Equal(t, "OK OUT 1", line)
	assert.Equal(t, 1, port.resets)

	// No further flush once a query succeeded.
	_, err = s.Query("OUT 0")
	require.NoError(t, err)
	assert.Equal(t, 1, port.resets)
}
