package rangecoder

import "errors"

// ErrTruncated indicates the input ran out while the range decoder still
// needed bytes to initialize or normalize.
var ErrTruncated = errors.New("rangecoder: truncated input")

// ErrShortChunk indicates a chunk declared fewer than the 5 initialization
// bytes the range coder requires.
var ErrShortChunk = errors.New("rangecoder: chunk shorter than init prefix")
