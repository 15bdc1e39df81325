package lzma

import "errors"

// Error kinds surfaced by the LZMA/LZMA2 decoder, matching spec.md §7's
// taxonomy: callers can errors.Is against a specific kind instead of a
// single collapsed boolean.
var (
	// ErrUnsupportedConfiguration indicates an LZMA properties byte other
	// than the canonical {lc=3, lp=0, pb=2} (encoded value 0x5D).
	ErrUnsupportedConfiguration = errors.New("lzma: unsupported properties")

	// ErrTruncated indicates the input ran out before a chunk or stream
	// completed.
	ErrTruncated = errors.New("lzma: truncated input")

	// ErrInconsistentSize indicates a chunk's declared raw or compressed
	// size disagreed with what the range decoder or dictionary actually
	// consumed.
	ErrInconsistentSize = errors.New("lzma: inconsistent chunk size")

	// ErrOutputOverflow indicates the destination buffer is too small for
	// the declared output.
	ErrOutputOverflow = errors.New("lzma: output buffer too small")

	// ErrMalformedControl indicates an LZMA2 control byte or reset mode
	// that does not match the framing spec.
	ErrMalformedControl = errors.New("lzma2: malformed control byte")
)
