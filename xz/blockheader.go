package xz

import (
	"encoding/binary"
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/checksum"
	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
)

// lzma2FilterID is the XZ filter ID for an LZMA2 filter, the only filter
// this decoder supports.
const lzma2FilterID = 0x21

// blockHeaderSize is the fixed size of the one block-header shape this
// decoder accepts: a single LZMA2 filter with no extra properties beyond
// the dictionary-size byte, and no BCJ or other secondary filter.
const blockHeaderSize = 12

// maxDictionaryProperty is the largest dictionary-size property byte
// (lower 6 bits of the LZMA2 filter's property byte) this decoder accepts.
// The dictionary size itself is never consulted: the decoder always trusts
// the caller-provided output buffer to be large enough, per spec.md's
// design note that an undersized buffer fails later during decode rather
// than being pre-validated against this field.
const maxDictionaryProperty = 39

// blockHeaderResult is the three-way outcome of parsing a block header
// record: a real block, an absent block signaling the index has begun
// instead, or a structural failure. Matches XZ_DECODE_BLOCK_HEADER_RESULT.
type blockHeaderResult int

const (
	blockHeaderFail blockHeaderResult = iota
	blockHeaderSuccess
	blockHeaderNoBlock
)

// decodeBlockHeader reads a block header record. A leading size byte of
// zero means there is no block — the index begins here instead — in which
// case the cursor is rewound past the speculative read, matching
// XzDecodeBlockHeader.
func decodeBlockHeader(cur *cursor.Cursor, st *containerState) (blockHeaderResult, error) {
	b, err := cur.Seek(blockHeaderSize)
	if err != nil {
		return blockHeaderFail, fmt.Errorf("%w: block header: %v", ErrTruncated, err)
	}
	if b[0] == 0 {
		if _, err := cur.Seek(-blockHeaderSize); err != nil {
			return blockHeaderFail, err
		}
		return blockHeaderNoBlock, nil
	}

	headerSize := (int(b[0]) + 1) * 4
	if headerSize != blockHeaderSize {
		return blockHeaderFail, fmt.Errorf("%w: unsupported block header size %d", ErrUnsupportedConfiguration, headerSize)
	}
	if b[1] != 0 {
		return blockHeaderFail, fmt.Errorf("%w: unsupported block flags 0x%02x", ErrUnsupportedConfiguration, b[1])
	}
	if b[2] != lzma2FilterID {
		return blockHeaderFail, fmt.Errorf("%w: filter id 0x%02x, want LZMA2", ErrUnsupportedConfiguration, b[2])
	}
	if b[3] != 1 {
		return blockHeaderFail, fmt.Errorf("%w: filter property size %d, want 1", ErrUnsupportedConfiguration, b[3])
	}
	dictProp := b[4] & 0x3F
	if dictProp > maxDictionaryProperty {
		return blockHeaderFail, fmt.Errorf("%w: dictionary size property %d exceeds %d", ErrUnsupportedConfiguration, dictProp, maxDictionaryProperty)
	}

	wantCRC := binary.LittleEndian.Uint32(b[8:12])
	if checksum.CRC32(b[0:8]) != wantCRC {
		return blockHeaderFail, fmt.Errorf("%w: block header CRC32", ErrIntegrityFailure)
	}

	st.headerSize = headerSize
	return blockHeaderSuccess, nil
}
