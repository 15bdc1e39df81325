package deflate

import (
	"encoding/binary"

	"github.com/AsahiLinux/m1n1-sub001/internal/checksum"
)

// gzip header flag bits, matching tinfgzip.c's tinf_gzip_flag.
const (
	flagText    = 1
	flagHCRC    = 2
	flagExtra   = 4
	flagName    = 8
	flagComment = 16
)

// Gunzip decompresses a complete gzip member from src into dst, returning
// the number of bytes written. It mirrors tinf_gzip_uncompress's in/out
// destLen contract: dst must already be sized to hold the decompressed
// output (the gzip trailer's declared size is cross-checked against
// len(dst) before any inflating begins), and the returned n is the actual
// number of bytes produced. Only a single member is supported, and src must
// end exactly at that member's 8-byte trailer: the trailer is read from the
// final 8 bytes of src, so any bytes following the member are read as the
// trailer and the decode fails. GunzipPrefix handles a member followed by
// other data.
func Gunzip(dst, src []byte) (int, error) {
	if len(src) < 18 {
		return 0, dataErr("gzip stream shorter than minimum header+trailer size")
	}
	pos, err := parseGzipHeader(src)
	if err != nil {
		return 0, err
	}

	dlen := binary.LittleEndian.Uint32(src[len(src)-4:])
	if int(dlen) > len(dst) {
		return 0, bufErr("gzip declares %d uncompressed bytes, dst has room for %d", dlen, len(dst))
	}
	wantCRC := binary.LittleEndian.Uint32(src[len(src)-8:])

	if len(src)-pos < 8 {
		return 0, dataErr("gzip member too short for trailer")
	}

	n, err := inflate(dst, src[pos:len(src)-8])
	if err != nil {
		// tinf_gzip_uncompress collapses any tinf_uncompress failure,
		// including TINF_BUF_ERROR, into TINF_DATA_ERROR.
		return 0, dataErr("%v", err)
	}
	if n != int(dlen) {
		return 0, dataErr("inflated %d bytes, gzip trailer declared %d", n, dlen)
	}

	if checksum.CRC32(dst[:n]) != wantCRC {
		return 0, dataErr("gzip trailer CRC32 mismatch")
	}

	return n, nil
}

// parseGzipHeader validates the fixed 10-byte gzip header and skips any
// optional FEXTRA/FNAME/FCOMMENT/FHCRC fields in that order, matching
// tinf_gzip_uncompress's header-skipping logic. It returns the offset of
// the first byte of the compressed DEFLATE stream. Callers must have
// already checked len(src) against some minimum (the minimum differs
// between a known-length member and a length-probing prefix scan).
func parseGzipHeader(src []byte) (int, error) {
	if len(src) < 10 {
		return 0, dataErr("gzip header shorter than 10 bytes")
	}
	if src[0] != 0x1F || src[1] != 0x8B {
		return 0, dataErr("bad gzip magic")
	}
	if src[2] != 8 {
		return 0, dataErr("unsupported gzip compression method %d", src[2])
	}

	flg := src[3]
	if flg&0xE0 != 0 {
		return 0, dataErr("reserved gzip flag bits set: 0x%02x", flg)
	}

	pos := 10
	if flg&flagExtra != 0 {
		if pos+2 > len(src) {
			return 0, dataErr("truncated gzip FEXTRA length")
		}
		xlen := int(binary.LittleEndian.Uint16(src[pos:]))
		if pos+2+xlen > len(src) {
			return 0, dataErr("gzip FEXTRA length %d too large", xlen)
		}
		pos += xlen + 2
	}

	if flg&flagName != 0 {
		for {
			if pos >= len(src) {
				return 0, dataErr("unterminated gzip FNAME")
			}
			if src[pos] == 0 {
				pos++
				break
			}
			pos++
		}
	}

	if flg&flagComment != 0 {
		for {
			if pos >= len(src) {
				return 0, dataErr("unterminated gzip FCOMMENT")
			}
			if src[pos] == 0 {
				pos++
				break
			}
			pos++
		}
	}

	if flg&flagHCRC != 0 {
		if pos > len(src)-2 {
			return 0, dataErr("truncated gzip FHCRC")
		}
		hcrc := uint32(binary.LittleEndian.Uint16(src[pos:]))
		if hcrc != checksum.CRC32(src[:pos])&0xFFFF {
			return 0, dataErr("gzip header CRC mismatch")
		}
		pos += 2
	}

	return pos, nil
}

// GunzipPrefix decompresses the gzip member starting at src[0] into dst, for
// callers that don't know where the member ends (src may have more data —
// another payload entirely — following the member's 8-byte trailer). It
// returns the number of bytes written and consumed, the total number of src
// bytes (header, compressed body, and trailer) the member occupied, so the
// caller can resume scanning at src[consumed:]. Unlike Gunzip, which locates
// the trailer from the end of src, GunzipPrefix locates it from where
// inflateCore's bit reader actually stopped.
func GunzipPrefix(dst, src []byte) (n int, consumed int, err error) {
	if len(src) < 10 {
		return 0, 0, dataErr("gzip stream shorter than header size")
	}
	pos, err := parseGzipHeader(src)
	if err != nil {
		return 0, 0, err
	}

	n, bodyConsumed, err := inflateCore(dst, src[pos:])
	if err != nil {
		return 0, 0, dataErr("%v", err)
	}
	trailerStart := pos + bodyConsumed

	if len(src)-trailerStart < 8 {
		return 0, 0, dataErr("gzip member too short for trailer")
	}
	dlen := binary.LittleEndian.Uint32(src[trailerStart+4:])
	wantCRC := binary.LittleEndian.Uint32(src[trailerStart:])

	if n != int(dlen) {
		return 0, 0, dataErr("inflated %d bytes, gzip trailer declared %d", n, dlen)
	}
	if checksum.CRC32(dst[:n]) != wantCRC {
		return 0, 0, dataErr("gzip trailer CRC32 mismatch")
	}

	return n, trailerStart + 8, nil
}
