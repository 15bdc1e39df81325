package payload

import (
	"encoding/binary"
	"fmt"
)

// fdtHeaderSize is the size of struct fdt_header (all big-endian uint32
// fields: magic, totalsize, off_dt_struct, off_dt_strings, off_mem_rsvmap,
// version, last_comp_version, boot_cpuid_phys, size_dt_strings,
// size_dt_struct), per the Devicetree Specification.
const fdtHeaderSize = 40

// fdtTotalSize reads a flattened device tree blob's self-described total
// size, matching libfdt's fdt_totalsize (the field payload.c's load_fdt
// calls through libfdt to get the same value).
func fdtTotalSize(p []byte) (int, error) {
	if len(p) < fdtHeaderSize {
		return 0, fmt.Errorf("%w: FDT header shorter than %d bytes", ErrTruncated, fdtHeaderSize)
	}
	if !matchMagic(p, 0, fdtMagic) {
		return 0, fmt.Errorf("%w: bad FDT magic", ErrMalformedHeader)
	}
	return int(binary.BigEndian.Uint32(p[4:8])), nil
}

// LoadFDT records the flattened device tree found at p. size, when non-nil,
// is the caller's own belief about the blob's length (e.g. a decompressor's
// reported output length); when provided it is cross-checked against the
// tree's self-described totalsize rather than trusted blindly. When size is
// nil, only the tree's own totalsize is used — matching load_fdt's
// `!size || size == fdt_totalsize(fdt)` assertion, but as an explicit
// optional parameter instead of overloading the C zero-length sentinel.
func LoadFDT(p []byte, size *int) (fdt []byte, consumed int, err error) {
	totalSize, err := fdtTotalSize(p)
	if err != nil {
		return nil, 0, err
	}
	if size != nil && *size != 0 && *size != totalSize {
		return nil, 0, fmt.Errorf("%w: FDT declares %d bytes, caller expected %d", ErrInconsistentSize, totalSize, *size)
	}
	if totalSize > len(p) {
		return nil, 0, fmt.Errorf("%w: FDT header declares %d bytes, only %d available", ErrTruncated, totalSize, len(p))
	}
	return p[:totalSize], totalSize, nil
}
