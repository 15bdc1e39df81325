// Package payload implements the boot-blob demultiplexer: given a
// concatenated stream of magic-identified records (a compressed or raw
// kernel image, a flattened device tree, a cpio initramfs), it walks the
// stream end to end, decompressing and classifying each record in turn and
// publishing the kernel and FDT it found. Grounded on
// _examples/original_source/src/payload.c.
package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"os"

	"github.com/AsahiLinux/m1n1-sub001/deflate"
	"github.com/AsahiLinux/m1n1-sub001/xz"
)

// kernelAlign is the alignment the ARM64 Linux boot protocol requires of a
// kernel image's load address, matching payload.c's KERNEL_ALIGN.
const kernelAlign = 2 << 20

var (
	gzMagic     = []byte{0x1f, 0x8b}
	xzMagic     = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	fdtMagic    = []byte{0xd0, 0x0d, 0xfe, 0xed}
	cpioMagic   = []byte{'0', '7', '0', '7', '0'}
	kernelMagic = []byte{'A', 'R', 'M', 0x64}
)

// kernelMagicOffset is where the ARM64 Image header's "ARM\x64" magic
// lives, matching payload.c's `p + 0x38`.
const kernelMagicOffset = 0x38

// kernelImageSizeOffset is the ARM64 Image header's image_size field
// (struct kernel_header in the original, a little-endian u64), per the
// documented ARM64 Linux boot protocol: code0/code1 (8), text_offset (8),
// image_size (8) at this offset.
const kernelImageSizeOffset = 0x10

// Logger is where the demultiplexer writes step-by-step progress, matching
// payload.c's printf calls. It has no timestamp prefix, the same terse
// stderr style as cmd/m1n1boot.
var Logger = log.New(os.Stderr, "", 0)

// Result collects what Run discovered: the boot payloads the original's
// payload_run would have handed to kboot_prepare_dt/kboot_boot/
// kboot_set_initrd. There is no package-level global standing in for these
// (spec.md §9 REDESIGN item 3): every call gets its own Result.
type Result struct {
	Kernel []byte
	FDT    []byte
	Initrd []byte
}

func matchMagic(p []byte, offset int, magic []byte) bool {
	return len(p) >= offset+len(magic) && bytes.Equal(p[offset:offset+len(magic)], magic)
}

// loadResult reports what one dispatch step decided: consumed is how many
// bytes from the start of p the record occupies (may exceed len(p) for a
// decompressed kernel whose declared image_size reaches past what was
// actually produced, signaling that the caller must reserve padding); stop
// marks the
// all-zero terminator record, which ends the scan without error.
type loadResult struct {
	consumed int
	stop     bool
}

// runner holds the state threaded through one Run call: the heap backing
// every reservation, the maximum bytes any single decompression may
// produce, the Result being assembled, and the original blob (for
// offset-based logging).
type runner struct {
	heap      *Heap
	maxOutput int
	result    *Result
	blob      []byte
}

func (r *runner) offset(p []byte) int {
	return len(r.blob) - len(p)
}

// Run walks blob, a concatenation of magic-identified payload records,
// classifying and (for compressed records) decompressing each one in turn
// using heap for all scratch and committed storage, matching payload_run's
// loop over load_one_payload. maxOutput bounds how large any single
// decompressed record may be — the explicit maximum spec.md §9 names as the
// fix for decompress_gz's unbounded `dest_len = 1 << 30`.
func Run(blob []byte, heap *Heap, maxOutput int) (*Result, error) {
	r := &runner{heap: heap, maxOutput: maxOutput, result: &Result{}, blob: blob}

	p := blob
	for len(p) > 0 {
		lr, err := r.loadOne(p, 0)
		if err != nil {
			return r.result, err
		}
		if lr.stop {
			break
		}
		if lr.consumed <= 0 || lr.consumed > len(p) {
			// Top-level calls always pass size 0, so a dispatch branch
			// that needs more than what's here (the decompressed-kernel
			// padding case) cannot occur outside a nested, sized call;
			// defend against it anyway rather than looping forever.
			break
		}
		p = p[lr.consumed:]
	}
	return r.result, nil
}

// loadOne classifies and dispatches the single record at p, matching
// load_one_payload's magic-byte cascade. size is 0 for every top-level
// call (payload_run always passes 0) and non-zero only for the single
// nested call a compressed record's decoder makes against its own
// decompressed output, where the exact produced length is already known.
func (r *runner) loadOne(p []byte, size int) (loadResult, error) {
	if len(p) < 4 {
		return loadResult{}, fmt.Errorf("%w: payload record shorter than a 4-byte magic", ErrTruncated)
	}
	off := r.offset(p)

	switch {
	case matchMagic(p, 0, gzMagic):
		Logger.Printf("Found a gzip compressed payload at offset %#x", off)
		return r.decompressGz(p, size)
	case matchMagic(p, 0, xzMagic):
		Logger.Printf("Found an XZ compressed payload at offset %#x", off)
		return r.decompressXz(p, size)
	case matchMagic(p, 0, fdtMagic):
		Logger.Printf("Found a devicetree at offset %#x", off)
		return r.loadFDTRecord(p, size)
	case matchMagic(p, 0, cpioMagic):
		Logger.Printf("Found a cpio initramfs at offset %#x", off)
		return r.loadCPIORecord(p, size)
	case matchMagic(p, kernelMagicOffset, kernelMagic):
		Logger.Printf("Found a kernel at offset %#x", off)
		return r.loadKernelRecord(p, size)
	case matchMagic(p, 0, []byte{0, 0, 0, 0}):
		Logger.Printf("No more payloads at offset %#x", off)
		return loadResult{stop: true}, nil
	default:
		var magic [4]byte
		copy(magic[:], p[:4])
		return loadResult{}, &UnknownPayloadError{Magic: magic, Offset: off}
	}
}

func (r *runner) loadFDTRecord(p []byte, size int) (loadResult, error) {
	var sizePtr *int
	if size != 0 {
		sizePtr = &size
	}
	fdt, consumed, err := LoadFDT(p, sizePtr)
	if err != nil {
		return loadResult{}, err
	}
	r.result.FDT = fdt
	return loadResult{consumed: consumed}, nil
}

func (r *runner) loadCPIORecord(p []byte, size int) (loadResult, error) {
	initrd, consumed, err := LoadCPIO(p, size)
	if err != nil {
		return loadResult{}, err
	}
	r.result.Initrd = initrd
	return loadResult{consumed: consumed}, nil
}

func (r *runner) loadKernelRecord(p []byte, size int) (loadResult, error) {
	kernel, consumed, known, err := LoadKernel(p, size, r.heap)
	if err != nil {
		return loadResult{}, err
	}
	r.result.Kernel = kernel
	if !known {
		// load_kernel returns NULL for an in-line (size-unknown) kernel:
		// image_size is not trustworthy as a byte offset into *this*
		// blob for an uncompressed, as-laid-out-on-disk payload.
		return loadResult{stop: true}, nil
	}
	return loadResult{consumed: consumed}, nil
}

// decompressGz inflates the gzip member at p (capped to p[:size] when size
// is known) into a fresh kernelAlign-aligned heap reservation, matching
// decompress_gz. It returns how many bytes of p the compressed member
// occupied.
func (r *runner) decompressGz(p []byte, size int) (loadResult, error) {
	src := p
	if size != 0 {
		if size > len(p) {
			return loadResult{}, fmt.Errorf("%w: declared size %d exceeds %d bytes available", ErrTruncated, size, len(p))
		}
		src = p[:size]
	}

	dest := r.heap.Reserve(kernelAlign)
	limit := len(dest)
	if r.maxOutput > 0 && r.maxOutput < limit {
		limit = r.maxOutput
	}

	Logger.Printf("Uncompressing...")
	var (
		n        int
		consumed int
		err      error
	)
	if size != 0 {
		n, err = deflate.Gunzip(dest[:limit], src)
		consumed = len(src)
	} else {
		n, consumed, err = deflate.GunzipPrefix(dest[:limit], src)
	}
	if err != nil {
		return loadResult{}, fmt.Errorf("gzip decompress: %w", err)
	}
	Logger.Printf("%d bytes uncompressed to %d bytes", consumed, n)

	if err := r.finalizeUncompression(dest, n); err != nil {
		return loadResult{}, err
	}
	return loadResult{consumed: consumed}, nil
}

// decompressXz mirrors decompressGz for the XZ container, using xz.Decode
// (which, like the XZ container format itself, is fully self-terminating:
// it reads exactly as much of src as the stream header/footer demand, so
// the unknown-size top-level case needs no separate "prefix" entry point).
func (r *runner) decompressXz(p []byte, size int) (loadResult, error) {
	src := p
	if size != 0 {
		if size > len(p) {
			return loadResult{}, fmt.Errorf("%w: declared size %d exceeds %d bytes available", ErrTruncated, size, len(p))
		}
		src = p[:size]
	}

	declared, err := xz.DecodedSize(bytes.NewReader(src))
	if err != nil {
		return loadResult{}, fmt.Errorf("xz decode: %w", err)
	}
	if r.maxOutput > 0 && declared > int64(r.maxOutput) {
		return loadResult{}, fmt.Errorf("%w: xz stream declares %d bytes, exceeds maximum %d", ErrOutputOverflow, declared, r.maxOutput)
	}

	Logger.Printf("Uncompressing...")
	var out bytes.Buffer
	consumed64, produced64, err := xz.Decode(bytes.NewReader(src), &out)
	if err != nil {
		return loadResult{}, fmt.Errorf("xz decode: %w", err)
	}
	Logger.Printf("%d bytes uncompressed to %d bytes", consumed64, produced64)

	dest := r.heap.Reserve(kernelAlign)
	if int64(len(dest)) < produced64 {
		panic("payload: heap exhausted for xz output")
	}
	n := copy(dest, out.Bytes())

	if err := r.finalizeUncompression(dest, n); err != nil {
		return loadResult{}, err
	}
	return loadResult{consumed: int(consumed64)}, nil
}

// finalizeUncompression commits the n bytes a decompressor actually wrote
// into dest (the scratch Reserve had returned), then dispatches exactly one
// nested load over that freshly committed region, matching
// finalize_uncompression's single (non-looping) recursive call. If that
// nested record needs more space than was produced — a decompressed kernel's
// declared image_size reaching past the compressed archive's payload,
// which holds no initialized BSS tail — the gap is reserved, unaligned and
// zeroed, immediately following it.
func (r *runner) finalizeUncompression(dest []byte, n int) error {
	committed := r.heap.Commit(n)

	lr, err := r.loadOne(committed, n)
	if err != nil {
		return err
	}
	if lr.stop || lr.consumed <= n {
		return nil
	}

	gap := lr.consumed - n
	pad := r.heap.Reserve(1)
	if len(pad) < gap {
		panic("payload: heap exhausted reserving kernel padding")
	}
	for i := 0; i < gap; i++ {
		pad[i] = 0
	}
	r.heap.Commit(gap)

	// Only a kernel record's declared image_size can exceed the bytes the
	// decompressor just produced (load_fdt and load_cpio always report
	// consumed <= n, so they never reach here); committed and the padding
	// reservation above share the same backing array contiguously, so
	// extending the slice already published in r.result.Kernel is enough
	// to cover the zero-filled tail, rather than leaving it truncated to
	// the pre-padding decompressed length.
	if r.result.Kernel != nil && len(r.result.Kernel) == n {
		r.result.Kernel = r.result.Kernel[:n+gap]
	}
	return nil
}

// LoadCPIO records the cpio initramfs archive found at p. An uncompressed
// (size-unknown) cpio archive is rejected, matching load_cpio's refusal —
// cpio has no self-describing total length the way FDT does, so there is
// no way to know where it ends without a framing size.
func LoadCPIO(p []byte, size int) (initrd []byte, consumed int, err error) {
	if size == 0 {
		return nil, 0, fmt.Errorf("%w: uncompressed cpio archives are not supported", ErrUnsupportedConfiguration)
	}
	if size > len(p) {
		return nil, 0, fmt.Errorf("%w: cpio archive declares %d bytes, only %d available", ErrTruncated, size, len(p))
	}
	return p[:size], size, nil
}

// kernelImageSize reads the ARM64 Image header's image_size field.
func kernelImageSize(p []byte) (int, error) {
	if len(p) < kernelImageSizeOffset+8 {
		return 0, fmt.Errorf("%w: kernel header shorter than %d bytes", ErrTruncated, kernelImageSizeOffset+8)
	}
	return int(binary.LittleEndian.Uint64(p[kernelImageSizeOffset : kernelImageSizeOffset+8])), nil
}

// LoadKernel records the kernel image found at p, matching load_kernel.
// size is the caller's confidence in the blob's length: 0 when unknown (an
// in-line kernel laid out directly in the boot blob as shipped, with no
// reliable framing length — only image_size is known), non-zero when a
// decompressor just reported exactly how many bytes it produced.
//
// A Go slice carries no portable notion of the 2 MiB physical-address
// alignment the ARM64 boot protocol requires — unlike load_kernel's
// pointer-address test, there is no (u64)p & (KERNEL_ALIGN-1) to read. This
// package resolves that by construction instead of by inspection: size != 0
// only ever happens for a kernel finalizeUncompression just committed into
// a kernelAlign-reserved region (decompressGz/decompressXz always reserve
// at kernelAlign before decoding), so it is trusted to already be in place;
// size == 0 is exactly the in-line case load_kernel's memcpy branch exists
// for, and is always copied to a fresh kernelAlign reservation.
func LoadKernel(p []byte, size int, heap *Heap) (kernel []byte, consumed int, known bool, err error) {
	imageSize, err := kernelImageSize(p)
	if err != nil {
		return nil, 0, false, err
	}

	if size != 0 {
		if size > imageSize {
			return nil, 0, false, fmt.Errorf("%w: decompressed kernel size %d exceeds declared image_size %d", ErrInconsistentSize, size, imageSize)
		}
		if size > len(p) {
			return nil, 0, false, fmt.Errorf("%w: kernel blob shorter than %d bytes", ErrTruncated, size)
		}
		return p[:size], imageSize, true, nil
	}

	if imageSize > len(p) {
		return nil, 0, false, fmt.Errorf("%w: kernel blob shorter than declared image_size %d", ErrTruncated, imageSize)
	}
	dest := heap.Reserve(kernelAlign)
	if len(dest) < imageSize {
		panic("payload: heap exhausted copying in-line kernel")
	}
	n := copy(dest, p[:imageSize])
	kernel = heap.Commit(imageSize)[:n]
	return kernel, 0, false, nil
}
