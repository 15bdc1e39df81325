package xz

import (
	"fmt"

	"github.com/AsahiLinux/m1n1-sub001/internal/cursor"
)

// vliMaxBits bounds the bit position a variable length integer's 7-bit
// groups may reach: five groups (ceil(32/7)) are enough for any 32-bit value.
const vliMaxBits = 7 * ((32 + 6) / 7)

// decodeVLI reads an XZ variable length integer: 7 data bits per byte, high
// bit set to continue. A continuation byte of zero, or a VLI wider than 32
// bits, is rejected, matching XzDecodeVli.
func decodeVLI(cur *cursor.Cursor) (uint32, error) {
	b, err := cur.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: reading VLI: %v", ErrTruncated, err)
	}
	vli := uint32(b & 0x7F)
	bitPos := 7
	for b&0x80 != 0 {
		b, err = cur.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("%w: reading VLI continuation: %v", ErrTruncated, err)
		}
		if bitPos == vliMaxBits || b == 0 {
			return 0, fmt.Errorf("%w: over-long or non-canonical VLI", ErrMalformedHeader)
		}
		if bitPos > 32-7 && uint32(b&0x7F)>>uint(32-bitPos) != 0 {
			return 0, fmt.Errorf("%w: VLI wider than 32 bits", ErrMalformedHeader)
		}
		vli |= uint32(b&0x7F) << uint(bitPos)
		bitPos += 7
	}
	return vli, nil
}
