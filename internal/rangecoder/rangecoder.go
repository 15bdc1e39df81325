// Package rangecoder implements the adaptive binary arithmetic decoder used
// by LZMA: an 11-bit probability model with 5-bit exponential moving-average
// adaptation, providing single-bit, bit-tree, reverse bit-tree,
// matched-literal bit-tree, and fixed-probability readouts.
package rangecoder

import (
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
)

const (
	// ProbBits is the number of bits of precision in a probability cell.
	ProbBits = 11
	// MaxProb is the maximum value (exclusive) a probability cell holds.
	MaxProb = 1 << ProbBits
	// HalfProb is the initial value of every probability cell.
	HalfProb = MaxProb / 2
	// MinRange is the minimum value Range may hold after normalization.
	MinRange = 1 << 24
	// InitBytes is the number of bytes consumed by Init.
	InitBytes = 5
	// AdaptShift is the shift used by the exponential moving-average
	// probability adaptation rule.
	AdaptShift = 5
)

// Decoder is an adaptive binary arithmetic decoder reading from a cursor.
type Decoder struct {
	cur        *cursor.Cursor
	rangeVal   uint32
	code       uint32
	chunkStart int
	chunkEnd   int
}

// New constructs a Decoder reading from cur. Init must be called before any
// decode method.
func New(cur *cursor.Cursor) *Decoder {
	return &Decoder{cur: cur}
}

// Init reads the 5 initialization bytes into Code, sets Range to its
// maximum value, and records the chunk's start/end positions so CanRead and
// IsComplete can be evaluated later. chunkSize is the caller-declared size
// (in bytes) of the compressed chunk about to be decoded; Init returns
// chunkSize-InitBytes so callers track the remaining compressed size the
// way the reference implementation does.
func (d *Decoder) Init(chunkSize int) (int, error) {
	if chunkSize < InitBytes {
		return 0, fmt.Errorf("%w: declared %d bytes", ErrShortChunk, chunkSize)
	}
	start := d.cur.Tell()
	d.code = 0
	for i := 0; i < InitBytes; i++ {
		b, err := d.cur.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: reading init byte %d: %v", ErrTruncated, i, err)
		}
		d.code = (d.code << 8) | uint32(b)
	}
	d.rangeVal = 0xFFFFFFFF
	d.chunkStart = start
	d.chunkEnd = start + chunkSize
	return chunkSize - InitBytes, nil
}

// CanRead reports whether the cursor's current position has not yet passed
// the recorded chunk end.
func (d *Decoder) CanRead() bool {
	return d.cur.Tell() <= d.chunkEnd
}

// IsComplete reports the number of bytes consumed since the chunk start,
// and whether decoding completed cleanly (Code drained to zero).
func (d *Decoder) IsComplete() (consumed int, complete bool) {
	return d.cur.Tell() - d.chunkStart, d.code == 0
}

// Normalize shifts Range and Code left 8 bits, refilling Code's low byte
// from the input, whenever Range has dropped below MinRange. Decode
// methods call this automatically before consuming bits; callers that need
// to force a final normalization at the end of a decode loop (to settle
// Code before checking IsComplete) call it directly.
func (d *Decoder) Normalize() error {
	return d.normalize()
}

// normalize shifts Range and Code left 8 bits, refilling Code's low byte
// from the input, whenever Range has dropped below MinRange.
func (d *Decoder) normalize() error {
	if d.rangeVal < MinRange {
		b, err := d.cur.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: normalize: %v", ErrTruncated, err)
		}
		d.rangeVal <<= 8
		d.code = (d.code << 8) | uint32(b)
	}
	return nil
}

// adapt applies the exponential moving-average update to probability cell
// *p given the observed bit.
func adapt(p *uint16, bit int) {
	if bit == 0 {
		*p += uint16((MaxProb - uint32(*p)) >> AdaptShift)
	} else {
		*p -= *p >> AdaptShift
	}
}

// DecodeBit decodes one adaptive bit using probability cell p, adapting it
// in place.
func (d *Decoder) DecodeBit(p *uint16) (int, error) {
	if err := d.normalize(); err != nil {
		return 0, err
	}
	bound := (d.rangeVal >> ProbBits) * uint32(*p)
	var bit int
	if d.code < bound {
		d.rangeVal = bound
		bit = 0
	} else {
		d.rangeVal -= bound
		d.code -= bound
		bit = 1
	}
	adapt(p, bit)
	return bit, nil
}

// DecodeFixedBit decodes one bit at fixed (non-adaptive) 50% probability.
func (d *Decoder) DecodeFixedBit() (int, error) {
	if err := d.normalize(); err != nil {
		return 0, err
	}
	d.rangeVal >>= 1
	var bit int
	if d.code < d.rangeVal {
		bit = 0
	} else {
		d.code -= d.rangeVal
		bit = 1
	}
	return bit, nil
}

// GetBitTree decodes a symbol of log2(limit) bits using a bit-tree rooted
// at model[1], returning (symbol-limit)&0xFF.
func (d *Decoder) GetBitTree(model []uint16, limit int) (int, error) {
	symbol := 1
	for symbol < limit {
		bit, err := d.DecodeBit(&model[symbol])
		if err != nil {
			return 0, err
		}
		symbol = (symbol << 1) | bit
	}
	return (symbol - limit) & 0xFF, nil
}

// GetReverseBitTree is like GetBitTree but accumulates decoded bits
// low-to-high into the result instead of high-to-low.
func (d *Decoder) GetReverseBitTree(model []uint16, nbits int) (int, error) {
	symbol := 1
	result := 0
	for i := 0; i < nbits; i++ {
		bit, err := d.DecodeBit(&model[symbol])
		if err != nil {
			return 0, err
		}
		symbol = (symbol << 1) | bit
		result |= bit << i
	}
	return result, nil
}

// DecodeMatchedLiteral decodes an 8-bit literal using per-position
// sub-models selected by matchByte's corresponding bit; once the decoded
// bit diverges from the match bit, decoding falls back to the plain
// bit-tree for the remaining bits.
func (d *Decoder) DecodeMatchedLiteral(model []uint16, matchByte byte) (byte, error) {
	symbol := 1
	mb := uint32(matchByte)
	for symbol < 0x100 {
		mb <<= 1
		matchBit := (mb >> 8) & 1
		bit, err := d.DecodeBit(&model[symbol+0x100*int(matchBit+1)])
		if err != nil {
			return 0, err
		}
		symbol = (symbol << 1) | bit
		if matchBit != uint32(bit) {
			for symbol < 0x100 {
				bit, err := d.DecodeBit(&model[symbol])
				if err != nil {
					return 0, err
				}
				symbol = (symbol << 1) | bit
			}
			break
		}
	}
	return byte(symbol & 0xFF), nil
}

// GetFixed decodes nbits direct (non-adaptive) bits, high-bit-first.
func (d *Decoder) GetFixed(nbits int) (uint32, error) {
	var result uint32
	for i := 0; i < nbits; i++ {
		bit, err := d.DecodeFixedBit()
		if err != nil {
			return 0, err
		}
		result = (result << 1) | uint32(bit)
	}
	return result, nil
}

// SetDefaultProbability resets a probability cell to the midpoint.
func SetDefaultProbability(p *uint16) {
	*p = HalfProb
}

// SetDefaultProbability2 resets every probability cell in p to the
// midpoint.
func SetDefaultProbability2(p []uint16) {
	for i := range p {
		p[i] = HalfProb
	}
}
