package dict

import (
	"errors"
	"testing"
)

func TestPutAndGet(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 8)
	d := New(buf)
	if err := d.SetLimit(8); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	d.Put('a')
	d.Put('b')
	if got := d.Get(1); got != 'b' {
		t.Fatalf("Get(1) = %q, want 'b'", got)
	}
	if got := d.Get(2); got != 'a' {
		t.Fatalf("Get(2) = %q, want 'a'", got)
	}
}

func TestGetBeyondOffsetIsZero(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 8)
	d := New(buf)
	if err := d.SetLimit(8); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	d.Put('a')
	if got := d.Get(5); got != 0 {
		t.Fatalf("Get(5) = %d, want 0", got)
	}
}

func TestRepeatOverlappingCopy(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 8)
	d := New(buf)
	if err := d.SetLimit(8); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	d.Put('a')
	// length > distance: classic DEFLATE/LZMA overlap replication.
	if err := d.Repeat(5, 1); err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	want := "aaaaaa"
	if string(buf[:6]) != want {
		t.Fatalf("buf[:6] = %q, want %q", buf[:6], want)
	}
}

func TestRepeatRejectsBadDistance(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 8)
	d := New(buf)
	if err := d.SetLimit(8); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	d.Put('a')
	if err := d.Repeat(1, 5); !errors.Is(err, ErrBadDistance) {
		t.Fatalf("err = %v, want ErrBadDistance", err)
	}
}

func TestRepeatRejectsLimitOverrun(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 4)
	d := New(buf)
	if err := d.SetLimit(4); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	d.Put('a')
	if err := d.Repeat(10, 1); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("err = %v, want ErrLimitExceeded", err)
	}
}

func TestCanWriteAndIsComplete(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 2)
	d := New(buf)
	if err := d.SetLimit(2); err != nil {
		t.Fatalf("SetLimit: %v", err)
	}
	if pos, ok := d.CanWrite(); !ok || pos != 0 {
		t.Fatalf("CanWrite() = (%d, %v), want (0, true)", pos, ok)
	}
	d.Put('x')
	d.Put('y')
	if pos, ok := d.CanWrite(); ok || pos != 2 {
		t.Fatalf("CanWrite() = (%d, %v), want (2, false)", pos, ok)
	}
	if n, complete := d.IsComplete(); !complete || n != 2 {
		t.Fatalf("IsComplete() = (%d, %v), want (2, true)", n, complete)
	}
}
