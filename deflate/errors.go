package deflate

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the DEFLATE/gzip decoder, matching spec.md §7's
// taxonomy. codedError additionally preserves tinf's collapsed three-value
// status code (OK/DATA_ERROR/BUF_ERROR) for callers that want it.
var (
	// ErrDataFormat indicates malformed DEFLATE or gzip framing: a bad
	// Huffman code length table, an out-of-range symbol, a stored-block
	// length/one's-complement mismatch, a bad gzip magic or method byte,
	// a header or trailer CRC mismatch, or a declared size that disagrees
	// with what was actually produced. Corresponds to tinf's
	// TINF_DATA_ERROR.
	ErrDataFormat = errors.New("deflate: malformed input")

	// ErrBufferTooSmall indicates the destination buffer (or the gzip
	// trailer's declared output length) exceeds the caller-supplied
	// capacity. Corresponds to tinf's TINF_BUF_ERROR.
	ErrBufferTooSmall = errors.New("deflate: output buffer too small")
)

// Code is tinf's collapsed status taxonomy, preserved for callers that want
// the original three-value enum instead of errors.Is against a sentinel.
type Code int

const (
	CodeOK Code = iota
	CodeDataError
	CodeBufError
)

// codedError pairs a sentinel error with tinf's original status code.
type codedError struct {
	error
	code Code
}

// Code returns the tinf-style status code this error corresponds to.
func (e *codedError) Code() int {
	return int(e.code)
}

func (e *codedError) Unwrap() error {
	return e.error
}

func dataErr(format string, args ...any) error {
	return &codedError{error: fmt.Errorf("%w: "+format, append([]any{ErrDataFormat}, args...)...), code: CodeDataError}
}

func bufErr(format string, args ...any) error {
	return &codedError{error: fmt.Errorf("%w: "+format, append([]any{ErrBufferTooSmall}, args...)...), code: CodeBufError}
}
