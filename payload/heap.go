package payload

import "fmt"

// Heap is a non-freeing bump allocator over a fixed backing buffer, grounded
// on heapblock.c's heapblock_alloc_aligned: allocation only ever moves a
// single high-water mark forward, aligning it up before handing out space.
//
// heapblock_alloc_aligned's "ask for 0 bytes, get a pointer, ask again with
// the real size and assert it's the same pointer" idiom (used by
// decompress_gz/decompress_xz to reserve scratch space before the
// decompressed length is known) is split here into an explicit two-step
// typestate: Reserve returns the scratch region without moving the
// high-water mark, and Commit moves it. Reserve's returned slice is the
// only handle into that memory, so nothing else can alias it between a
// Reserve and its matching Commit — spec.md §9's Design Note on typestate-ing
// this discipline, applied directly rather than re-expressed as a
// same-pointer assertion.
type Heap struct {
	buf      []byte
	mark     int
	reserved bool
	base     int
}

// NewHeap creates a Heap over buf, the entire arena available for bump
// allocation. Matches heapblock_init's heap_base, minus the global: the
// caller owns the backing buffer and its lifetime.
func NewHeap(buf []byte) *Heap {
	return &Heap{buf: buf}
}

// Reserve aligns the current high-water mark up to align (which must be a
// power of two) and returns every byte of backing buffer from there to the
// end, without moving the mark. The caller may write into as much of the
// returned slice as it needs; nothing is actually allocated until Commit.
// Reserve panics if a reservation is already outstanding — exactly one
// Reserve/Commit pair may be open at a time, matching spec.md §5's
// strictly single-threaded, single-outstanding-allocation resource model.
func (h *Heap) Reserve(align uint32) []byte {
	if h.reserved {
		panic("payload: Heap.Reserve called with a reservation already outstanding")
	}
	if align == 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("payload: Heap.Reserve: align %d is not a power of two", align))
	}

	aligned := (h.mark + int(align) - 1) &^ (int(align) - 1)
	if aligned > len(h.buf) {
		panic("payload: heap exhausted")
	}

	h.base = aligned
	h.reserved = true
	return h.buf[aligned:]
}

// Commit advances the high-water mark by exactly n bytes from the base
// Reserve most recently aligned to, and returns that now-permanent region.
// Commit panics if called without an outstanding Reserve, or if n exceeds
// the capacity Reserve made available.
func (h *Heap) Commit(n int) []byte {
	if !h.reserved {
		panic("payload: Heap.Commit called with no outstanding Reserve")
	}
	if n < 0 || h.base+n > len(h.buf) {
		panic("payload: Heap.Commit: n out of range of the reserved capacity")
	}

	region := h.buf[h.base : h.base+n]
	h.mark = h.base + n
	h.reserved = false
	return region
}

// Offset reports the current high-water mark: the offset just past the
// most recent commit, including any alignment gaps Reserve skipped.
// Exposed for logging and tests; no decoder logic should
// need it directly since Reserve/Commit already thread the right slices.
func (h *Heap) Offset() int {
	return h.mark
}
