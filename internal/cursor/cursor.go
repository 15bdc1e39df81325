// Package cursor implements a windowed read cursor over a caller-supplied
// byte slice, with seek, alignment, and a scoped soft limit that bounds
// reads to the current compressed chunk.
package cursor

import "fmt"

// Cursor is a read-only window over buf: offset tracks the current read
// position, and softLimit bounds how far offset may advance until it is
// widened again, either by ResetLimit or by WithLimit's restore.
type Cursor struct {
	buf       []byte
	offset    int
	softLimit int
}

// New installs buf as the cursor's backing store. The soft limit starts
// equal to the buffer size.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf, softLimit: len(buf)}
}

// Tell returns the current offset.
func (c *Cursor) Tell() int {
	return c.offset
}

// Len returns the size of the backing buffer.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Seek advances offset by n, which may be negative to rewind within the
// current chunk, and returns a slice starting at the pre-advance position.
// It fails without advancing if offset+n would cross the soft limit or
// underflow below zero.
func (c *Cursor) Seek(n int) ([]byte, error) {
	if c.offset+n > c.softLimit || c.offset+n < 0 {
		return nil, fmt.Errorf("%w: offset %d + %d exceeds limit %d", ErrOutOfBounds, c.offset, n, c.softLimit)
	}
	start := c.offset
	c.offset += n
	if n >= 0 {
		return c.buf[start : start+n], nil
	}
	return c.buf[c.offset:start], nil
}

// ReadByte reads and returns a single byte, advancing the cursor.
func (c *Cursor) ReadByte() (byte, error) {
	b, err := c.Seek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// AlignToFour reads zero pad bytes until offset%4==0, failing if any pad
// byte read is non-zero.
func (c *Cursor) AlignToFour() error {
	for c.offset%4 != 0 {
		b, err := c.ReadByte()
		if err != nil {
			return err
		}
		if b != 0 {
			return fmt.Errorf("%w: byte 0x%02x at offset %d", ErrBadPadding, b, c.offset-1)
		}
	}
	return nil
}

// SetLimit narrows the soft limit to offset+n, asserting n does not exceed
// the remaining buffer size. It returns the previous limit so callers can
// restore it, though WithLimit is the preferred scoped form.
func (c *Cursor) SetLimit(n int) (prev int, err error) {
	if n > len(c.buf)-c.offset {
		return 0, fmt.Errorf("%w: requested limit %d exceeds remaining %d", ErrOutOfBounds, n, len(c.buf)-c.offset)
	}
	prev = c.softLimit
	c.softLimit = c.offset + n
	return prev, nil
}

// ResetLimit restores the soft limit to the full buffer size.
func (c *Cursor) ResetLimit() {
	c.softLimit = len(c.buf)
}

// WithLimit narrows the soft limit to offset+n, runs fn, and restores the
// previous limit afterward unconditionally, even if fn returns an error.
// This is the scoped-acquisition form of SetLimit/ResetLimit that spec.md's
// design notes call for in place of a bare set/reset pair.
func (c *Cursor) WithLimit(n int, fn func() error) error {
	prev, err := c.SetLimit(n)
	if err != nil {
		return err
	}
	defer func() { c.softLimit = prev }()
	return fn()
}

// Remaining reports how many bytes remain before the soft limit.
func (c *Cursor) Remaining() int {
	return c.softLimit - c.offset
}

// Slice returns buf[start:end] without moving the cursor, for callers that
// need to checksum a span they have already read past (e.g. a CRC32 over a
// header or index region assembled from several prior reads).
func (c *Cursor) Slice(start, end int) ([]byte, error) {
	if start < 0 || end > len(c.buf) || start > end {
		return nil, fmt.Errorf("%w: slice [%d:%d] out of bounds (len %d)", ErrOutOfBounds, start, end, len(c.buf))
	}
	return c.buf[start:end], nil
}
