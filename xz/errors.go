package xz

import "errors"

// ErrMalformedHeader indicates the stream header, block header, index, or
// stream footer did not match the expected XZ container layout.
var ErrMalformedHeader = errors.New("xz: malformed header")

// ErrTruncated indicates the input ran out before a required field.
var ErrTruncated = errors.New("xz: truncated input")

// ErrUnsupportedConfiguration indicates a structurally valid container using
// a feature this decoder does not implement: multiple filters, a non-LZMA2
// filter, an oversized dictionary property, or an unrecognized check type.
var ErrUnsupportedConfiguration = errors.New("xz: unsupported configuration")

// ErrIntegrityFailure indicates a CRC32 mismatch in the stream header,
// block header, block data, or index.
var ErrIntegrityFailure = errors.New("xz: integrity check failed")

// ErrInconsistentSize indicates the index or footer disagreed with the
// sizes actually observed while decoding the block.
var ErrInconsistentSize = errors.New("xz: inconsistent size metadata")
