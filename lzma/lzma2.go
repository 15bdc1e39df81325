package lzma

import (
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
	"github.com/AsahiLinux/m1n1-sub001/internal/dict"
	"github.com/AsahiLinux/m1n1-sub001/internal/rangecoder"
)

// resetMode is the LZMA2 control byte's reset-state field.
type resetMode int

const (
	resetNone resetMode = iota
	resetSimple
	resetProperty
	resetFull
)

// MaxSingleSequenceChunk is the worst-case minimum compressed size of a
// single-chunk LZMA2 stream (5 init bytes plus enough to decode one
// symbol). No code or test in this module references it.
const MaxSingleSequenceChunk = 21

// Stream2 decodes an LZMA2 stream: a sequence of chunks, each either a raw
// (uncompressed) copy or an LZMA-compressed run, framed by a control byte
// and governed by one of four reset modes. cur supplies compressed input;
// out is the destination buffer that doubles as the LZ77 history window.
// Stream2 returns the total number of decoded bytes.
func Stream2(cur *cursor.Cursor, out []byte) (int, error) {
	return stream2(cur, out, false)
}

// StreamSize2 walks an LZMA2 stream's chunk headers without decoding any
// chunk, returning the total uncompressed size the stream declares. Each
// chunk's compressed (or raw, for uncompressed chunks) body is skipped with
// a plain seek. This lets a caller learn the final output size before
// allocating a destination buffer, matching Lz2DecodeStream's GetSizeOnly
// mode.
func StreamSize2(cur *cursor.Cursor) (int, error) {
	return stream2(cur, nil, true)
}

func stream2(cur *cursor.Cursor, out []byte, sizeOnly bool) (int, error) {
	var dt *dict.Dict
	var rc *rangecoder.Decoder
	var dec *Decoder
	if !sizeOnly {
		dt = dict.New(out)
		rc = rangecoder.New(cur)
		dec = NewDecoder(rc, dt)
	}
	total := 0

	for {
		ctrl, err := cur.ReadByte()
		if err != nil {
			return total, fmt.Errorf("%w: reading control byte: %v", ErrTruncated, err)
		}
		if ctrl == 0 {
			return total, nil
		}

		isLzma := ctrl&0x80 != 0
		var rawSize, compressedSize int
		var mode resetMode

		if isLzma {
			b, err := cur.Seek(4)
			if err != nil {
				return total, fmt.Errorf("%w: reading LZMA chunk header: %v", ErrTruncated, err)
			}
			mode = resetMode((ctrl >> 5) & 0x3)
			rawSize = (int(ctrl&0x1F) << 16) | (int(b[0]) << 8) | int(b[1])
			rawSize++
			compressedSize = (int(b[2]) << 8) | int(b[3])
			compressedSize++
		} else {
			// ctrl&0x3 is an uncompressed-chunk dictionary-reset flag (1
			// resets, 2 doesn't); since spec.md scopes this decoder to a
			// single LZMA2 stream per XZ block (no multi-block streams),
			// every back-reference is already bounded to bytes written
			// since the stream began, so there is no distinct boundary to
			// enforce and the flag carries no observable effect here.
			b, err := cur.Seek(2)
			if err != nil {
				return total, fmt.Errorf("%w: reading uncompressed chunk header: %v", ErrTruncated, err)
			}
			rawSize = (int(b[0]) << 8) | int(b[1])
			rawSize++
		}

		// A reset mode of Full or Property always consumes a properties
		// byte from the input, even when only the size is being probed:
		// the byte is part of the chunk framing, not of the decode itself.
		var prop byte
		var haveProp bool
		if isLzma && (mode == resetFull || mode == resetProperty) {
			var err error
			prop, err = cur.ReadByte()
			if err != nil {
				return total, fmt.Errorf("%w: reading properties byte: %v", ErrTruncated, err)
			}
			haveProp = true
		}

		if sizeOnly {
			skip := compressedSize
			if !isLzma {
				skip = rawSize
			}
			if _, err := cur.Seek(skip); err != nil {
				return total, fmt.Errorf("%w: skipping chunk body: %v", ErrTruncated, err)
			}
			total += rawSize
			continue
		}

		if err := dt.SetLimit(rawSize); err != nil {
			return total, err
		}

		if isLzma {
			switch {
			case haveProp:
				if err := dec.Init(prop); err != nil {
					return total, err
				}
			case mode == resetSimple:
				dec.ResetState()
			default:
				// resetNone: keep state
			}

			if err := cur.WithLimit(compressedSize, func() error {
				if _, err := rc.Init(compressedSize); err != nil {
					return err
				}
				complete, err := dec.Decode()
				if err != nil {
					return err
				}
				if !complete {
					return fmt.Errorf("%w: pending length at chunk end", ErrInconsistentSize)
				}
				consumed, rcComplete := rc.IsComplete()
				if !rcComplete || consumed != compressedSize {
					return fmt.Errorf("%w: range decoder consumed %d, want %d (complete=%v)",
						ErrInconsistentSize, consumed, compressedSize, rcComplete)
				}
				return nil
			}); err != nil {
				return total, err
			}
			processed, dtComplete := dt.IsComplete()
			if !dtComplete || processed != rawSize {
				return total, fmt.Errorf("%w: dictionary consumed %d, want %d", ErrInconsistentSize, processed, rawSize)
			}
		} else {
			raw, err := cur.Seek(rawSize)
			if err != nil {
				return total, fmt.Errorf("%w: reading uncompressed chunk body: %v", ErrTruncated, err)
			}
			for _, b := range raw {
				dt.Put(b)
			}
		}

		total += rawSize
	}
}
