package payload_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/AsahiLinux/m1n1-sub001/internal/checksum"
	"github.com/AsahiLinux/m1n1-sub001/payload"
	"github.com/klauspost/compress/flate"
	ulikunitzxz "github.com/ulikunitz/xz"
)

// gzipMemberOrErr wraps plain in a minimal single-member gzip envelope
// using a real, independent compressor, the same golden-encoder pattern
// deflate_test's gzipMember uses. Returns an error instead of failing a
// *testing.T so it can also be used to build fuzz seed corpus entries.
func gzipMemberOrErr(plain []byte) ([]byte, error) {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write([]byte{0x1F, 0x8B, 8, 0})
	buf.Write([]byte{0, 0, 0, 0})
	buf.Write([]byte{0, 0xFF})
	buf.Write(compressed.Bytes())

	var trailer [8]byte
	binary.LittleEndian.PutUint32(trailer[0:4], checksum.CRC32(plain))
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(plain)))
	buf.Write(trailer[:])
	return buf.Bytes(), nil
}

// gzipMember is gzipMemberOrErr for callers with a *testing.T to fail on
// the (unreachable in practice) encoder error path.
func gzipMember(t *testing.T, plain []byte) []byte {
	t.Helper()
	member, err := gzipMemberOrErr(plain)
	if err != nil {
		t.Fatalf("gzipMemberOrErr: %v", err)
	}
	return member
}

// xzStream wraps plain in a complete XZ container via a real, independent
// encoder, the golden-encoder pattern xz_test uses.
func xzStream(t *testing.T, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := ulikunitzxz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("xz Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("xz Close: %v", err)
	}
	return buf.Bytes()
}

// fdtBlob builds a minimal flattened device tree: a 40-byte fdt_header
// whose magic and totalsize are correct, padded with filler bytes to reach
// totalSize. The interior structure block/strings block are not modeled —
// nothing under test reads past the header.
func fdtBlob(totalSize int) []byte {
	buf := make([]byte, totalSize)
	binary.BigEndian.PutUint32(buf[0:4], 0xd00dfeed)
	binary.BigEndian.PutUint32(buf[4:8], uint32(totalSize))
	return buf
}

// kernelBlob builds a minimal ARM64 Image header: "ARM\x64" magic at 0x38
// and image_size (little-endian u64) at 0x10, padded to totalSize with
// filler payload bytes after the header.
func kernelBlob(imageSize int, totalSize int) []byte {
	buf := make([]byte, totalSize)
	binary.LittleEndian.PutUint64(buf[0x10:0x18], uint64(imageSize))
	copy(buf[0x38:0x3C], []byte{'A', 'R', 'M', 0x64})
	for i := 0x3C; i < len(buf); i++ {
		buf[i] = byte(i)
	}
	return buf
}

func zeroTerminator() []byte {
	return make([]byte, 4)
}

func TestRunGzipFDTThenInlineKernelStopsAfterKernel(t *testing.T) {
	t.Parallel()

	fdt := fdtBlob(64)
	gz := gzipMember(t, fdt)

	kernel := kernelBlob(128, 128)

	blob := append(append([]byte{}, gz...), kernel...)
	blob = append(blob, zeroTerminator()...)

	heap := payload.NewHeap(make([]byte, 16<<20))
	result, err := payload.Run(blob, heap, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FDT == nil {
		t.Fatal("expected FDT to be discovered")
	}
	if !bytes.Equal(result.FDT, fdt) {
		t.Fatalf("FDT mismatch: got %d bytes, want %d", len(result.FDT), len(fdt))
	}
	if result.Kernel == nil {
		t.Fatal("expected Kernel to be discovered")
	}
	if !bytes.Equal(result.Kernel, kernel) {
		t.Fatal("Kernel content mismatch")
	}
}

func TestRunXzFDTThenXzKernel(t *testing.T) {
	t.Parallel()

	fdt := fdtBlob(48)
	kernel := kernelBlob(256, 256)

	blob := append(append([]byte{}, xzStream(t, fdt)...), xzStream(t, kernel)...)
	blob = append(blob, zeroTerminator()...)

	heap := payload.NewHeap(make([]byte, 16<<20))
	result, err := payload.Run(blob, heap, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(result.FDT, fdt) {
		t.Fatal("FDT mismatch")
	}
	if !bytes.Equal(result.Kernel, kernel) {
		t.Fatal("Kernel mismatch")
	}
}

func TestRunGzipInitrdAfterKernelXz(t *testing.T) {
	t.Parallel()

	kernel := kernelBlob(64, 64)
	initrd := append([]byte("070701"[:5]), bytes.Repeat([]byte{0xAB}, 200)...)
	// cpio magic is "070701" (ASCII digits), 5 bytes checked by cpioMagic
	// but archives are identified by size, not self-describing length, so
	// they must arrive compressed.
	gz := gzipMember(t, initrd)

	blob := append(append([]byte{}, xzStream(t, kernel)...), gz...)
	blob = append(blob, zeroTerminator()...)

	heap := payload.NewHeap(make([]byte, 16<<20))
	result, err := payload.Run(blob, heap, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !bytes.Equal(result.Kernel, kernel) {
		t.Fatal("Kernel mismatch")
	}
	if !bytes.Equal(result.Initrd, initrd) {
		t.Fatal("Initrd mismatch")
	}
}

func TestRunUnknownMagicReturnsUnknownPayloadError(t *testing.T) {
	t.Parallel()

	blob := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0, 0, 0, 0}
	heap := payload.NewHeap(make([]byte, 4096))
	_, err := payload.Run(blob, heap, 0)
	if err == nil {
		t.Fatal("expected an error for unrecognized magic")
	}
	var upe *payload.UnknownPayloadError
	if !errors.As(err, &upe) {
		t.Fatalf("error = %v, want *UnknownPayloadError", err)
	}
	if upe.Magic != [4]byte{0xDE, 0xAD, 0xBE, 0xEF} {
		t.Fatalf("UnknownPayloadError.Magic = %x, want deadbeef", upe.Magic)
	}
	if upe.Offset != 0 {
		t.Fatalf("UnknownPayloadError.Offset = %d, want 0", upe.Offset)
	}
}

func TestRunEmptyBlobYieldsEmptyResult(t *testing.T) {
	t.Parallel()
	heap := payload.NewHeap(make([]byte, 4096))
	result, err := payload.Run(nil, heap, 0)
	if err != nil {
		t.Fatalf("Run(nil): %v", err)
	}
	if result.Kernel != nil || result.FDT != nil || result.Initrd != nil {
		t.Fatalf("expected an empty Result, got %+v", result)
	}
}

func TestRunZeroTerminatorAlone(t *testing.T) {
	t.Parallel()
	heap := payload.NewHeap(make([]byte, 4096))
	result, err := payload.Run(zeroTerminator(), heap, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kernel != nil || result.FDT != nil {
		t.Fatal("expected nothing discovered before the terminator")
	}
}

func TestRunMaxOutputRejectsOversizedXz(t *testing.T) {
	t.Parallel()
	plain := bytes.Repeat([]byte("A"), 4096)
	blob := xzStream(t, plain)

	heap := payload.NewHeap(make([]byte, 16<<20))
	_, err := payload.Run(blob, heap, 1024)
	if !errors.Is(err, payload.ErrOutputOverflow) {
		t.Fatalf("error = %v, want ErrOutputOverflow", err)
	}
}

func TestLoadFDTSizeMismatchIsRejected(t *testing.T) {
	t.Parallel()
	fdt := fdtBlob(64)
	size := 32
	_, _, err := payload.LoadFDT(fdt, &size)
	if !errors.Is(err, payload.ErrInconsistentSize) {
		t.Fatalf("error = %v, want ErrInconsistentSize", err)
	}
}

func TestLoadFDTNilSizeTrustsSelfDescribedLength(t *testing.T) {
	t.Parallel()
	fdt := fdtBlob(40)
	got, consumed, err := payload.LoadFDT(fdt, nil)
	if err != nil {
		t.Fatalf("LoadFDT: %v", err)
	}
	if consumed != 40 || len(got) != 40 {
		t.Fatalf("consumed=%d len=%d, want 40/40", consumed, len(got))
	}
}

func TestLoadCPIORejectsUncompressed(t *testing.T) {
	t.Parallel()
	_, _, err := payload.LoadCPIO([]byte("070701"), 0)
	if !errors.Is(err, payload.ErrUnsupportedConfiguration) {
		t.Fatalf("error = %v, want ErrUnsupportedConfiguration", err)
	}
}

func TestLoadKernelInlineAlwaysCopiesAndReportsUnknown(t *testing.T) {
	t.Parallel()
	kernel := kernelBlob(64, 64)
	heap := payload.NewHeap(make([]byte, 4<<20))

	got, consumed, known, err := payload.LoadKernel(kernel, 0, heap)
	if err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}
	if known {
		t.Fatal("expected known=false for the in-line case")
	}
	if consumed != 0 {
		t.Fatalf("consumed = %d, want 0 for the in-line case", consumed)
	}
	if !bytes.Equal(got, kernel) {
		t.Fatal("copied kernel content mismatch")
	}
}

func TestRunCompressedKernelImageSizeExceedingDecompressedLengthIsZeroPadded(t *testing.T) {
	t.Parallel()

	const totalSize = 64
	const imageSize = 128
	kernel := kernelBlob(imageSize, totalSize)
	blob := append(append([]byte{}, xzStream(t, kernel)...), zeroTerminator()...)

	heap := payload.NewHeap(make([]byte, 16<<20))
	result, err := payload.Run(blob, heap, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Kernel) != imageSize {
		t.Fatalf("len(result.Kernel) = %d, want %d (image_size)", len(result.Kernel), imageSize)
	}
	if !bytes.Equal(result.Kernel[:totalSize], kernel) {
		t.Fatal("decompressed kernel prefix mismatch")
	}
	for i := totalSize; i < imageSize; i++ {
		if result.Kernel[i] != 0 {
			t.Fatalf("result.Kernel[%d] = %d, want 0 (padding)", i, result.Kernel[i])
		}
	}
}

func TestLoadKernelSizedRejectsExceedingImageSize(t *testing.T) {
	t.Parallel()
	kernel := kernelBlob(32, 64)
	heap := payload.NewHeap(make([]byte, 4<<20))

	_, _, _, err := payload.LoadKernel(kernel, 48, heap)
	if !errors.Is(err, payload.ErrInconsistentSize) {
		t.Fatalf("error = %v, want ErrInconsistentSize", err)
	}
}

// FuzzRun feeds arbitrary bytes to Run. Malformed input must come back as
// an error, never an infinite loop; a panic is tolerated only as the
// documented heap-exhaustion abort (Heap.Reserve/Commit panic by design,
// spec.md §9 REDESIGN item 2 — an unrecoverable resource, not a
// recoverable error), which a large enough arena and bounded maxOutput
// make unreachable for any of the seeds below, so in practice this fuzzes
// the classification/consumption logic rather than the abort path.
func FuzzRun(f *testing.F) {
	if seed, err := gzipMemberOrErr([]byte("seed")); err == nil {
		f.Add(append(append([]byte{}, seed...), zeroTerminator()...))
	}
	f.Add(zeroTerminator())
	f.Add([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	f.Add(fdtBlob(40))
	f.Add(kernelBlob(64, 64))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<20 {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				if !strings.Contains(fmt.Sprint(r), "heap exhausted") {
					panic(r)
				}
				t.Logf("Run panicked (tolerated heap-exhaustion abort): %v", r)
			}
		}()
		heap := payload.NewHeap(make([]byte, 64<<20))
		_, _ = payload.Run(data, heap, 8<<20)
	})
}
