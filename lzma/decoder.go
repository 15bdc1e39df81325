// Package lzma implements the LZMA sequence decoder and the LZMA2 framing
// around it: literals and LZ77 length/distance pairs are decoded from an
// arithmetic-coded bitstream according to the LZMA probability-model
// layout, driving a 12-state sequence machine and a four-slot
// most-recent-distance register.
package lzma

import (
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/dict"
	"github.com/AsahiLinux/m1n1-sub001/internal/rangecoder"
)

// Decoder holds all mutable state for one LZMA stream: the probability
// model, the sequence state, and the four recent distances. No match length
// is carried across Decode calls. It is a plain constructed
// value — there are no package-level singletons, per spec.md's "global
// state" design note.
type Decoder struct {
	rc   *rangecoder.Decoder
	dt   *dict.Dict
	p    probs
	st   state
	rep0 uint32
	rep1 uint32
	rep2 uint32
	rep3 uint32
}

// NewDecoder constructs a Decoder reading arithmetic-coded bits from rc and
// writing literals/matches into dt.
func NewDecoder(rc *rangecoder.Decoder, dt *dict.Dict) *Decoder {
	d := &Decoder{rc: rc, dt: dt}
	d.p.reset()
	return d
}

// Init validates the properties byte and resets all decoder state,
// matching LzInitialize. Only the canonical {lc=3,lp=0,pb=2} encoding
// (0x5D) is accepted.
func (d *Decoder) Init(properties byte) error {
	if properties != canonicalProperties {
		return fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrUnsupportedConfiguration, properties, canonicalProperties)
	}
	d.ResetState()
	return nil
}

// ResetState reinitializes the sequence state, recent distances, and
// probability model without touching the properties, matching
// LzResetState. Used by LZMA2's Simple reset mode.
func (d *Decoder) ResetState() {
	d.st = stateLitLitLit
	d.rep0, d.rep1, d.rep2, d.rep3 = 0, 0, 0, 0
	d.p.reset()
}

// literalCoderIndex selects a literal coder by the high lc=3 bits of the
// previously emitted byte, matching LzGetLiteralSlot.
func literalCoderIndex(prevByte byte) int {
	return int(prevByte >> 5)
}

func (d *Decoder) decodeLiteral() error {
	coder := &d.p.Literal[literalCoderIndex(d.dt.Get(1))]
	var symbol byte
	var err error
	if d.st.isLiteral() {
		var sym int
		sym, err = d.rc.GetBitTree(coder[:0x100], 0x100)
		symbol = byte(sym)
	} else {
		matchByte := d.dt.Get(uint32ToInt(d.rep0) + 1)
		symbol, err = d.rc.DecodeMatchedLiteral(coder[:], matchByte)
	}
	if err != nil {
		return err
	}
	d.dt.Put(symbol)
	d.st = d.st.afterLiteral()
	return nil
}

func uint32ToInt(v uint32) int { return int(v) }

// decodeLength decodes a match length (minimum 2) using the given
// three-tier length-probability model and position bucket, matching
// LzDecodeLen.
func (d *Decoder) decodeLength(lp *lengthProbs, posState int) (int, error) {
	choice, err := d.rc.DecodeBit(&lp.Choice)
	if err != nil {
		return 0, err
	}
	if choice == 0 {
		sym, err := d.rc.GetBitTree(lp.Low[posState][:], 8)
		if err != nil {
			return 0, err
		}
		return minMatchLength + sym, nil
	}
	choice2, err := d.rc.DecodeBit(&lp.Choice2)
	if err != nil {
		return 0, err
	}
	if choice2 == 0 {
		sym, err := d.rc.GetBitTree(lp.Mid[posState][:], 8)
		if err != nil {
			return 0, err
		}
		return minMatchLength + 8 + sym, nil
	}
	sym, err := d.rc.GetBitTree(lp.High[:], 256)
	if err != nil {
		return 0, err
	}
	return minMatchLength + 16 + sym, nil
}

// distSlotIndex picks which of the four length-conditioned DistSlot
// sub-arrays to use, matching LzGetDistSlot: slotIndex = len-2 for len<6,
// else 3.
func distSlotIndex(length int) int {
	if length < minMatchLength+4 {
		return length - minMatchLength
	}
	return 3
}

// decodeDistance decodes a full match distance given a match length,
// matching the distance-slot portion of LzDecodeMatch.
func (d *Decoder) decodeDistance(length int) (uint32, error) {
	slot, err := d.rc.GetBitTree(d.p.DistSlot[distSlotIndex(length)][:], numDistSlots)
	if err != nil {
		return 0, err
	}
	if slot < 4 {
		return uint32(slot), nil
	}
	distBits := (slot >> 1) - 1
	dist := uint32(2|(slot&1)) << uint(distBits)
	if slot < firstFixedSlot {
		base := dist - uint32(slot)
		extra, err := d.rc.GetReverseBitTree(d.p.Dist[base:], distBits)
		if err != nil {
			return 0, err
		}
		dist += uint32(extra)
		return dist, nil
	}
	direct, err := d.rc.GetFixed(distBits - numAlignBits)
	if err != nil {
		return 0, err
	}
	dist += direct << numAlignBits
	align, err := d.rc.GetReverseBitTree(d.p.Align[:], numAlignBits)
	if err != nil {
		return 0, err
	}
	dist += uint32(align)
	return dist, nil
}

// decodeMatch decodes a new (non-rep) match: length, then the distance-slot
// machinery, sliding the recent-distance register, matching LzDecodeMatch.
func (d *Decoder) decodeMatch(posState int) (length int, err error) {
	length, err = d.decodeLength(&d.p.MatchLen, posState)
	if err != nil {
		return 0, err
	}
	d.rep3, d.rep2, d.rep1 = d.rep2, d.rep1, d.rep0
	dist, err := d.decodeDistance(length)
	if err != nil {
		return 0, err
	}
	d.rep0 = dist
	d.st = d.st.afterMatch()
	return length, nil
}

// decodeLongRep decodes a long-rep packet: pick among Rep1/Rep2/Rep3 via
// nested choice bits (promoting the chosen value to Rep0), then decode a
// length, matching LzDecodeLongRep.
func (d *Decoder) decodeLongRep(posState int) (length int, err error) {
	bit, err := d.rc.DecodeBit(&d.p.Rep1[d.st])
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		d.rep1, d.rep0 = d.rep0, d.rep1
	} else {
		bit2, err := d.rc.DecodeBit(&d.p.Rep2[d.st])
		if err != nil {
			return 0, err
		}
		if bit2 == 0 {
			d.rep2, d.rep1, d.rep0 = d.rep1, d.rep0, d.rep2
		} else {
			d.rep3, d.rep2, d.rep1, d.rep0 = d.rep2, d.rep1, d.rep0, d.rep3
		}
	}
	length, err = d.decodeLength(&d.p.RepLen, posState)
	if err != nil {
		return 0, err
	}
	d.st = d.st.afterLongRep()
	return length, nil
}

// decodeRep0 handles the short-rep/long-rep0 split, matching LzDecodeRep0.
func (d *Decoder) decodeRep0(posState int) (length int, err error) {
	bit, err := d.rc.DecodeBit(&d.p.Rep0Long[d.st][posState])
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		d.st = d.st.afterShortRep()
		return 1, nil
	}
	length, err = d.decodeLength(&d.p.RepLen, posState)
	if err != nil {
		return 0, err
	}
	d.st = d.st.afterLongRep()
	return length, nil
}

// decodeRep dispatches between decodeRep0 (distance unchanged) and
// decodeLongRep (promotes one of Rep1..Rep3), matching LzDecodeRep.
func (d *Decoder) decodeRep(posState int) (length int, err error) {
	bit, err := d.rc.DecodeBit(&d.p.Rep0[d.st])
	if err != nil {
		return 0, err
	}
	if bit == 0 {
		return d.decodeRep0(posState)
	}
	return d.decodeLongRep(posState)
}

// Decode runs the main LZMA sequence-decode loop, matching LzDecode: while
// the dictionary has room and the range decoder can still read, decode
// either a literal or a match/rep packet, repeating Rep0+1 distance for len
// bytes after each match/rep. Returns true on clean completion (no pending
// length at exit).
func (d *Decoder) Decode() (bool, error) {
	pendingLen := 0
	for {
		position, ok := d.dt.CanWrite()
		if !ok || !d.rc.CanRead() {
			break
		}
		posState := position & (numPosStates - 1)

		isMatch, err := d.rc.DecodeBit(&d.p.Match[d.st][posState])
		if err != nil {
			return false, err
		}
		if isMatch == 0 {
			if err := d.decodeLiteral(); err != nil {
				return false, err
			}
			pendingLen = 0
			continue
		}

		isRep, err := d.rc.DecodeBit(&d.p.Rep[d.st])
		if err != nil {
			return false, err
		}
		var length int
		if isRep == 0 {
			length, err = d.decodeMatch(posState)
		} else {
			length, err = d.decodeRep(posState)
		}
		if err != nil {
			return false, err
		}
		if err := d.dt.Repeat(length, int(d.rep0)+1); err != nil {
			return false, err
		}
		pendingLen = 0
	}
	if err := d.rc.Normalize(); err != nil {
		return false, err
	}
	return pendingLen == 0, nil
}
