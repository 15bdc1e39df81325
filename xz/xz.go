// Package xz implements the XZ container format: stream header, a single
// LZMA2-filtered block, index, and stream footer, with structural
// validation and CRC32 integrity checking throughout. Only single-stream,
// single-block files with no secondary filter (e.g. no BCJ) are supported,
// matching the reference minilzlib decoder this package is grounded on.
package xz

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/AsahiLinux/m1n1-sub001/internal/checksum"
	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
	"github.com/AsahiLinux/m1n1-sub001/lzma"
)

// decodeStream runs the full XZ grammar — stream header, optional block,
// index, stream footer — over cur. When sizeOnly is true, out is ignored
// and the block body is skipped via lzma.StreamSize2 instead of decoded, so
// the uncompressed size can be learned without allocating or writing any
// output, matching Lz2DecodeStream's GetSizeOnly mode.
func decodeStream(cur *cursor.Cursor, out []byte, sizeOnly bool) (int, error) {
	var st containerState
	if err := decodeStreamHeader(cur, &st); err != nil {
		return 0, err
	}

	result, err := decodeBlockHeader(cur, &st)
	if err != nil {
		return 0, err
	}

	produced := 0
	wantBlocks := uint32(0)
	switch result {
	case blockHeaderNoBlock:
		// Empty stream: no block, produced stays 0.
	case blockHeaderSuccess:
		wantBlocks = 1
		inputStart := cur.Tell()
		var n int
		if sizeOnly {
			n, err = lzma.StreamSize2(cur)
		} else {
			n, err = lzma.Stream2(cur, out)
		}
		if err != nil {
			return 0, err
		}
		unpaddedBody := cur.Tell() - inputStart
		st.uncompressedBlockSize = n

		if err := cur.AlignToFour(); err != nil {
			return 0, err
		}

		checksumWidth := st.checkType.size()
		checksumBytes, err := cur.Seek(checksumWidth)
		if err != nil {
			return 0, fmt.Errorf("%w: block checksum: %v", ErrTruncated, err)
		}
		if !sizeOnly && st.checkType == CheckCRC32 {
			if checksum.CRC32(out[:n]) != binary.LittleEndian.Uint32(checksumBytes) {
				return 0, fmt.Errorf("%w: block data CRC32", ErrIntegrityFailure)
			}
		}

		st.unpaddedBlockSize = st.headerSize + unpaddedBody + checksumWidth
		produced = n
	default:
		return 0, fmt.Errorf("%w: block header", ErrMalformedHeader)
	}

	if err := decodeIndex(cur, &st, wantBlocks); err != nil {
		return 0, err
	}
	if err := decodeStreamFooter(cur, &st); err != nil {
		return 0, err
	}
	return produced, nil
}

// DecodedSize reports the uncompressed size of the single block in an XZ
// stream without materializing any output, by running the decoder in
// size-only mode (the block's compressed bytes are skipped, not decoded).
// The full container is still structurally validated, including the index
// and footer.
func DecodedSize(r io.Reader) (int64, error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	n, err := decodeStream(cursor.New(input), nil, true)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// Decode reads a complete XZ stream from r, decodes its single block, and
// writes the uncompressed result to w. It returns the number of input bytes
// consumed and output bytes produced. Decode makes two passes over the
// input: a size-only pass to size the intermediate output buffer (the
// output buffer doubles as the LZMA dictionary, so it must be preallocated
// before decoding can begin), then a full decode pass.
func Decode(r io.Reader, w io.Writer) (consumed int64, produced int64, err error) {
	input, err := io.ReadAll(r)
	if err != nil {
		return 0, 0, err
	}

	size, err := decodeStream(cursor.New(input), nil, true)
	if err != nil {
		return 0, 0, err
	}

	out := make([]byte, size)
	cur := cursor.New(input)
	n, err := decodeStream(cur, out, false)
	if err != nil {
		return 0, 0, err
	}
	if _, err := w.Write(out[:n]); err != nil {
		return 0, 0, err
	}
	return int64(cur.Tell()), int64(n), nil
}
