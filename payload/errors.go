package payload

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the payload demultiplexer, matching spec.md §7's
// taxonomy the same way the lzma/xz/deflate packages do.
var (
	ErrMalformedHeader          = errors.New("payload: malformed header")
	ErrTruncated                = errors.New("payload: truncated input")
	ErrInconsistentSize         = errors.New("payload: inconsistent size")
	ErrOutputOverflow           = errors.New("payload: output exceeds maximum")
	ErrUnsupportedConfiguration = errors.New("payload: unsupported configuration")
)

// UnknownPayloadError is returned by Run when a blob's magic bytes match
// none of the recognized payload types. It carries the four offending
// bytes so a caller (cmd/m1n1boot) can format the same hex diagnostic
// load_one_payload's final else branch prints, without this package doing
// any I/O of its own.
type UnknownPayloadError struct {
	Magic  [4]byte
	Offset int
}

func (e *UnknownPayloadError) Error() string {
	return fmt.Sprintf("payload: unknown payload at offset %#x (magic: %02x%02x%02x%02x)",
		e.Offset, e.Magic[0], e.Magic[1], e.Magic[2], e.Magic[3])
}
