package lzma

import (
	"bytes"
	"testing"

	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
)

// rangeEncoderRef is a minimal reference arithmetic encoder mirroring the
// adaptation rule in internal/rangecoder, used only to build literal-only
// LZMA chunks as known-good test fixtures for Stream2's decode path. It is
// not part of the module's public surface: the module's own encoder does
// not exist, by design (spec.md's core is decode-only).
type rangeEncoderRef struct {
	low       uint64
	rangeVal  uint32
	cache     byte
	cacheSize uint64
	out       []byte
}

func newRangeEncoderRef() *rangeEncoderRef {
	return &rangeEncoderRef{rangeVal: 0xFFFFFFFF, cacheSize: 1}
}

func (e *rangeEncoderRef) shiftLow() {
	if uint32(e.low>>32) != 0 || e.low < 0xFF000000 {
		temp := e.cache
		for {
			e.out = append(e.out, temp+byte(e.low>>32))
			temp = 0xFF
			e.cacheSize--
			if e.cacheSize == 0 {
				break
			}
		}
		e.cache = byte(e.low >> 24)
	}
	e.cacheSize++
	e.low = (e.low << 8) & 0xFFFFFFFF
}

func (e *rangeEncoderRef) encodeBit(p *uint16, bit int) {
	bound := (e.rangeVal >> 11) * uint32(*p)
	if bit == 0 {
		e.rangeVal = bound
		*p += (2048 - *p) >> 5
	} else {
		e.low += uint64(bound)
		e.rangeVal -= bound
		*p -= *p >> 5
	}
	for e.rangeVal < (1 << 24) {
		e.rangeVal <<= 8
		e.shiftLow()
	}
}

func (e *rangeEncoderRef) encodeBitTree(model []uint16, nbits, symbol int) {
	m := 1
	for i := nbits - 1; i >= 0; i-- {
		bit := (symbol >> uint(i)) & 1
		e.encodeBit(&model[m], bit)
		m = (m << 1) | bit
	}
}

func (e *rangeEncoderRef) flush() {
	for i := 0; i < 5; i++ {
		e.shiftLow()
	}
}

// encodeLiteralOnlyChunk builds the compressed body of a single LZMA chunk
// that encodes data as straight literals (no matches), using the canonical
// probability layout.
func encodeLiteralOnlyChunk(data []byte) []byte {
	var p probs
	p.reset()
	st := stateLitLitLit
	re := newRangeEncoderRef()
	var prev byte
	for i, b := range data {
		posState := i & (numPosStates - 1)
		re.encodeBit(&p.Match[st][posState], 0)
		coderIdx := int(prev >> 5)
		re.encodeBitTree(p.Literal[coderIdx][:0x100], 8, int(b))
		st = st.afterLiteral()
		prev = b
	}
	re.flush()
	return re.out
}

// buildLZMA2Stream wraps a single full-reset LZMA chunk encoding data, plus
// the terminating zero control byte, into a complete LZMA2 stream.
func buildLZMA2Stream(data []byte) []byte {
	compressed := encodeLiteralOnlyChunk(data)
	rawSize := len(data)
	compressedSize := len(compressed)

	var buf bytes.Buffer
	ctrl := byte(0x80) | (byte(resetFull) << 5) | byte((rawSize-1)>>16)&0x1F
	buf.WriteByte(ctrl)
	buf.WriteByte(byte((rawSize - 1) >> 8))
	buf.WriteByte(byte(rawSize - 1))
	buf.WriteByte(byte((compressedSize - 1) >> 8))
	buf.WriteByte(byte(compressedSize - 1))
	buf.WriteByte(canonicalProperties)
	buf.Write(compressed)
	buf.WriteByte(0x00)
	return buf.Bytes()
}

func TestStream2LiteralOnlyRoundTrip(t *testing.T) {
	t.Parallel()
	cases := [][]byte{
		[]byte("A"),
		[]byte("Hello, world!\n"),
		bytes.Repeat([]byte{0xAA}, 300),
	}
	for _, want := range cases {
		stream := buildLZMA2Stream(want)
		out := make([]byte, len(want))
		cur := cursor.New(stream)
		n, err := Stream2(cur, out)
		if err != nil {
			t.Fatalf("Stream2(%q): %v", want, err)
		}
		if n != len(want) {
			t.Fatalf("Stream2 produced %d bytes, want %d", n, len(want))
		}
		if !bytes.Equal(out, want) {
			t.Fatalf("Stream2 output = %q, want %q", out, want)
		}
	}
}

func TestStream2UncompressedChunk(t *testing.T) {
	t.Parallel()
	data := []byte("raw passthrough bytes")
	var buf bytes.Buffer
	buf.WriteByte(0x01) // uncompressed chunk, dict reset
	buf.WriteByte(byte((len(data) - 1) >> 8))
	buf.WriteByte(byte(len(data) - 1))
	buf.Write(data)
	buf.WriteByte(0x00)

	out := make([]byte, len(data))
	n, err := Stream2(cursor.New(buf.Bytes()), out)
	if err != nil {
		t.Fatalf("Stream2: %v", err)
	}
	if n != len(data) || !bytes.Equal(out, data) {
		t.Fatalf("Stream2 = %q (%d bytes), want %q", out, n, data)
	}
}

func TestStream2ZeroControlByteIsEmptyStream(t *testing.T) {
	t.Parallel()
	out := make([]byte, 0)
	n, err := Stream2(cursor.New([]byte{0x00}), out)
	if err != nil {
		t.Fatalf("Stream2: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
}

func TestInitRejectsNonCanonicalProperties(t *testing.T) {
	t.Parallel()
	d := NewDecoder(nil, nil)
	if err := d.Init(0x00); err == nil {
		t.Fatal("expected error for non-canonical properties byte")
	}
}
