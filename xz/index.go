package xz

import (
	"encoding/binary"
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/checksum"
	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
)

// decodeIndex reads and validates the index record: a zero byte, a block
// count (0 for an empty stream with no block, 1 otherwise — this decoder
// only supports zero- or single-block streams), the unpadded and
// uncompressed block sizes when a block is present (cross-checked against
// st, which decodeBlockHeader/the block-body decode populated), padding to
// a 4-byte boundary, and a trailing CRC32. Matches XzDecodeIndex, extended
// to actually validate the zero-block case its own comment says real `xz`
// output can produce for an empty input file, rather than only avoiding a
// crash on it.
func decodeIndex(cur *cursor.Cursor, st *containerState, wantBlocks uint32) error {
	indexStart := cur.Tell()

	b, err := cur.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: index: %v", ErrTruncated, err)
	}
	if b != 0 {
		return fmt.Errorf("%w: index does not start with a zero byte", ErrMalformedHeader)
	}

	count, err := decodeVLI(cur)
	if err != nil {
		return err
	}
	if count != wantBlocks {
		return fmt.Errorf("%w: index declares %d blocks, want %d", ErrUnsupportedConfiguration, count, wantBlocks)
	}

	if count == 1 {
		unpadded, err := decodeVLI(cur)
		if err != nil {
			return err
		}
		if int(unpadded) != st.unpaddedBlockSize {
			return fmt.Errorf("%w: index unpadded size %d != observed %d", ErrInconsistentSize, unpadded, st.unpaddedBlockSize)
		}

		uncompressed, err := decodeVLI(cur)
		if err != nil {
			return err
		}
		if int(uncompressed) != st.uncompressedBlockSize {
			return fmt.Errorf("%w: index uncompressed size %d != observed %d", ErrInconsistentSize, uncompressed, st.uncompressedBlockSize)
		}
	}

	if err := cur.AlignToFour(); err != nil {
		return err
	}
	indexEnd := cur.Tell()
	st.indexSize = indexEnd - indexStart

	crcBytes, err := cur.Seek(4)
	if err != nil {
		return fmt.Errorf("%w: index CRC32: %v", ErrTruncated, err)
	}
	region, err := cur.Slice(indexStart, indexEnd)
	if err != nil {
		return err
	}
	if checksum.CRC32(region) != binary.LittleEndian.Uint32(crcBytes) {
		return fmt.Errorf("%w: index CRC32", ErrIntegrityFailure)
	}
	return nil
}
