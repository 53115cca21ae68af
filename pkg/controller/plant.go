package controller

import (
	"math"
	"sync/atomic"

	"github.com/chewxy/math32"

	"github.com/charlie0129/vstab/pkg/hal"
	"github.com/charlie0129/vstab/pkg/tap"
)

// Plant models the mains feeding the auto-transformer for the simulated
// board: the sense input reads the output voltage, which is the mains
// divided by the tap ratio of the relays currently applied.
type Plant struct {
	table     tap.Table
	reference uint16
	calV      float32
	mains     atomic.Uint32 // float32 bits
}

// NewPlant returns a plant whose ADC reads reference at calV.
func NewPlant(table tap.Table, reference uint16, calV, mains float32) *Plant {
	p := &Plant{table: table, reference: reference, calV: calV}
	p.SetMains(mains)
	return p
}

// SetMains changes the simulated mains voltage.
func (p *Plant) SetMains(v float32) {
	p.mains.Store(math.Float32bits(v))
}

// Mains returns the simulated mains voltage.
func (p *Plant) Mains() float32 {
	return math.Float32frombits(p.mains.Load())
}

// ADC returns the conversion result for the relay pattern.
func (p *Plant) ADC(pattern hal.Pattern) uint16 {
	ratio := p.table[0].TapRatio
	for _, s := range p.table {
		if s.Pattern() == pattern {
			ratio = s.TapRatio
			break
		}
	}

	opv := p.Mains() / ratio
	v := math32.Round(opv / p.calV * float32(p.reference))
	return uint16(math32.Max(0, math32.Min(v, 1023)))
}
