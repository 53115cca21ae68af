package settings

import (
	"encoding/binary"
	"errors"
)

// Record layout, little endian:
//
//	[0:2]   reference ADC count  u16
//	[2:4]   record version       u16
//	[4:8]   re-engage delay (ms) u32
//	[8:12]  magic                u32
//	[12:16] checksum             u32
//
// The checksum is the 32-bit wrapping sum of the four fields before it.
const (
	RecordSize    = 16
	RecordVersion = 1
	Magic         = 0xA5C3F0E1
)

var (
	// ErrCorrupt is returned by Decode when magic, version or checksum do not
	// match.
	ErrCorrupt = errors.New("settings record is corrupt")
	// ErrShort is returned by Decode when the buffer is smaller than a record.
	ErrShort = errors.New("settings record is truncated")
)

// Checksum returns the additive checksum over the stored fields.
func Checksum(reference uint16, version uint16, delayMs uint32, magic uint32) uint32 {
	return uint32(reference) + uint32(version) + delayMs + magic
}

// Encode serializes s into a record.
func Encode(s Settings) []byte {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint16(b[0:2], s.ReferenceADC)
	binary.LittleEndian.PutUint16(b[2:4], RecordVersion)
	binary.LittleEndian.PutUint32(b[4:8], s.ReengageDelayMs)
	binary.LittleEndian.PutUint32(b[8:12], Magic)
	binary.LittleEndian.PutUint32(b[12:16], Checksum(s.ReferenceADC, RecordVersion, s.ReengageDelayMs, Magic))
	return b
}

// Decode parses a record. It checks integrity only, not ranges.
func Decode(b []byte) (Settings, error) {
	if len(b) < RecordSize {
		return Settings{}, ErrShort
	}

	reference := binary.LittleEndian.Uint16(b[0:2])
	version := binary.LittleEndian.Uint16(b[2:4])
	delay := binary.LittleEndian.Uint32(b[4:8])
	magic := binary.LittleEndian.Uint32(b[8:12])
	sum := binary.LittleEndian.Uint32(b[12:16])

	if magic != Magic || version != RecordVersion || sum != Checksum(reference, version, delay, magic) {
		return Settings{}, ErrCorrupt
	}

	return Settings{
		ReferenceADC:    reference,
		ReengageDelayMs: delay,
	}, nil
}
