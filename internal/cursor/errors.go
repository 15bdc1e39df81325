package cursor

import "errors"

// ErrOutOfBounds indicates a seek or read would cross the soft limit or the
// end of the underlying buffer.
var ErrOutOfBounds = errors.New("cursor: seek out of bounds")

// ErrBadPadding indicates align_to_four encountered a non-zero pad byte.
var ErrBadPadding = errors.New("cursor: non-zero alignment padding")
