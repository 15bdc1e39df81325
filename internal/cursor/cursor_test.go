package cursor

import (
	"errors"
	"testing"
)

func TestSeekAdvancesAndReturnsSlice(t *testing.T) {
	t.Parallel()
	c := New([]byte{1, 2, 3, 4, 5})
	got, err := c.Seek(3)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Fatalf("got %v", got)
	}
	if c.Tell() != 3 {
		t.Fatalf("Tell() = %d, want 3", c.Tell())
	}
}

func TestSeekRewind(t *testing.T) {
	t.Parallel()
	c := New([]byte{1, 2, 3, 4, 5})
	if _, err := c.Seek(4); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := c.Seek(-2); err != nil {
		t.Fatalf("rewind Seek: %v", err)
	}
	if c.Tell() != 2 {
		t.Fatalf("Tell() = %d, want 2", c.Tell())
	}
}

func TestSeekOutOfBounds(t *testing.T) {
	t.Parallel()
	c := New([]byte{1, 2, 3})
	if _, err := c.Seek(4); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
	if c.Tell() != 0 {
		t.Fatalf("cursor advanced on failed seek: Tell() = %d", c.Tell())
	}
}

func TestSoftLimitScopesReads(t *testing.T) {
	t.Parallel()
	c := New([]byte{1, 2, 3, 4, 5})
	err := c.WithLimit(2, func() error {
		if _, err := c.Seek(2); err != nil {
			t.Fatalf("Seek within limit: %v", err)
		}
		if _, err := c.Seek(1); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("err = %v, want ErrOutOfBounds", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLimit: %v", err)
	}
	if _, err := c.Seek(3); err != nil {
		t.Fatalf("Seek after limit restored: %v", err)
	}
}

func TestAlignToFour(t *testing.T) {
	t.Parallel()
	c := New([]byte{0xAA, 0, 0, 0, 0xBB})
	if _, err := c.Seek(1); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := c.AlignToFour(); err != nil {
		t.Fatalf("AlignToFour: %v", err)
	}
	if c.Tell() != 4 {
		t.Fatalf("Tell() = %d, want 4", c.Tell())
	}
}

func TestAlignToFourRejectsNonZero(t *testing.T) {
	t.Parallel()
	c := New([]byte{0xAA, 0, 1, 0})
	if _, err := c.Seek(1); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := c.AlignToFour(); !errors.Is(err, ErrBadPadding) {
		t.Fatalf("err = %v, want ErrBadPadding", err)
	}
}
