package xz

import (
	"encoding/binary"
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/checksum"
	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
)

// streamHeaderMagic is the fixed 6-byte prefix of every XZ stream.
var streamHeaderMagic = [6]byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// streamFooterMagic is the fixed 2-byte suffix of every XZ stream.
var streamFooterMagic = [2]byte{'Y', 'Z'}

const (
	streamHeaderSize = 12
	streamFooterSize = 12
)

// containerState accumulates the cross-field bookkeeping XZ's meta checks
// need: sizes recorded while parsing the block header and block body, to be
// cross-validated against the index and footer later. It is a plain value
// threaded through decodeStream, not a package-level global.
type containerState struct {
	checkType             CheckType
	headerSize            int
	indexSize             int
	uncompressedBlockSize int
	unpaddedBlockSize     int
}

// decodeStreamHeader reads and validates the 12-byte XZ stream header,
// recording its check type in st, matching XzDecodeStreamHeader.
func decodeStreamHeader(cur *cursor.Cursor, st *containerState) error {
	b, err := cur.Seek(streamHeaderSize)
	if err != nil {
		return fmt.Errorf("%w: stream header: %v", ErrTruncated, err)
	}
	if [6]byte(b[0:6]) != streamHeaderMagic {
		return fmt.Errorf("%w: bad stream magic", ErrMalformedHeader)
	}
	flags := b[6:8]
	checkType := CheckType(flags[1] & 0x0F)
	if (flags[0] != 0 || flags[1] != 0) && !checkType.valid() {
		return fmt.Errorf("%w: unrecognized check type %d", ErrUnsupportedConfiguration, checkType)
	}
	wantCRC := binary.LittleEndian.Uint32(b[8:12])
	if checksum.CRC32(flags) != wantCRC {
		return fmt.Errorf("%w: stream header CRC32", ErrIntegrityFailure)
	}
	st.checkType = checkType
	return nil
}

// decodeStreamFooter reads and validates the 12-byte XZ stream footer,
// cross-checking it against the index size recorded in st, matching
// XzDecodeStreamFooter.
func decodeStreamFooter(cur *cursor.Cursor, st *containerState) error {
	b, err := cur.Seek(streamFooterSize)
	if err != nil {
		return fmt.Errorf("%w: stream footer: %v", ErrTruncated, err)
	}
	crc := binary.LittleEndian.Uint32(b[0:4])
	backwardSize := binary.LittleEndian.Uint32(b[4:8])
	flags := b[8:10]
	if [2]byte(b[10:12]) != streamFooterMagic {
		return fmt.Errorf("%w: bad stream footer magic", ErrMalformedHeader)
	}
	checkType := CheckType(flags[1] & 0x0F)
	if (flags[0] != 0 || flags[1] != 0) && !checkType.valid() {
		return fmt.Errorf("%w: unrecognized footer check type %d", ErrUnsupportedConfiguration, checkType)
	}
	if checkType != st.checkType {
		return fmt.Errorf("%w: footer check type %d != header check type %d", ErrMalformedHeader, checkType, st.checkType)
	}
	if st.indexSize != int(backwardSize)*4 {
		return fmt.Errorf("%w: backward_size %d*4 != index size %d", ErrInconsistentSize, backwardSize, st.indexSize)
	}
	if checksum.CRC32(b[4:10]) != crc {
		return fmt.Errorf("%w: stream footer CRC32", ErrIntegrityFailure)
	}
	return nil
}
