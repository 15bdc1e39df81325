package deflate

// clcidx is the special transmission order for code length code lengths,
// matching tinflate.c's clcidx.
var clcidx = [19]byte{
	16, 17, 18, 0, 8, 7, 9, 6, 10, 5,
	11, 4, 12, 3, 13, 2, 14, 1, 15,
}

// lengthBits and lengthBase are the extra-bits and base tables for length
// codes 257-285, matching tinflate.c's length_bits/length_base.
var lengthBits = [30]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 1, 1,
	1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
	4, 4, 4, 4, 5, 5, 5, 5, 0, 127,
}

var lengthBase = [30]int{
	3, 4, 5, 6, 7, 8, 9, 10, 11, 13,
	15, 17, 19, 23, 27, 31, 35, 43, 51, 59,
	67, 83, 99, 115, 131, 163, 195, 227, 258, 0,
}

// distBits and distBase are the extra-bits and base tables for distance
// codes 0-29, matching tinflate.c's dist_bits/dist_base.
var distBits = [30]byte{
	0, 0, 0, 0, 1, 1, 2, 2, 3, 3,
	4, 4, 5, 5, 6, 6, 7, 7, 8, 8,
	9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
}

var distBase = [30]int{
	1, 2, 3, 4, 5, 7, 9, 13, 17, 25,
	33, 49, 65, 97, 129, 193, 257, 385, 513, 769,
	1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
}

// inflater carries the bit reader and destination buffer state across a
// full DEFLATE stream (which may span several blocks), grounded on
// tinflate.c's struct tinf_data.
type inflater struct {
	r *bitReader

	destStart []byte
	dest      []byte // remaining unwritten capacity
	written   int
}

// decodeTrees reads a dynamic block's header (HLIT/HDIST/HCLEN, the code
// length alphabet, then the literal/length and distance code length
// sequences) and builds the two trees used by the block body, matching
// tinf_decode_trees.
func decodeTrees(r *bitReader, lt, dt *tree) error {
	var lengths [288 + 32]byte

	hlit := r.getBitsBase(5, 257)
	hdist := r.getBitsBase(5, 1)
	hclen := r.getBitsBase(4, 4)

	// The RFC lists HDIST as range 1-32 even though distance codes 30
	// and 31 have no meaning; treating hlit>286 or hdist>30 as an error
	// here matches tinflate.c's deliberate tightening of the RFC's
	// nominal range (see tinflate.c's comment referencing
	// madler/zlib#82).
	if hlit > 286 || hdist > 30 {
		return dataErr("HLIT/HDIST out of range: hlit=%d hdist=%d", hlit, hdist)
	}

	for i := 0; i < 19; i++ {
		lengths[i] = 0
	}
	for i := 0; i < hclen; i++ {
		lengths[clcidx[i]] = byte(r.getBits(3))
	}

	// Code length tree borrows lt, the same way tinflate.c reuses the
	// literal/length tree's storage to save space before it's rebuilt
	// below for the real literal/length alphabet.
	if err := buildTree(lt, lengths[:], 19); err != nil {
		return err
	}
	if lt.maxSym == -1 {
		return dataErr("empty code length tree")
	}

	num := 0
	for num < hlit+hdist {
		sym := decodeSymbol(r, lt)
		if sym > lt.maxSym {
			return dataErr("code length symbol %d exceeds max %d", sym, lt.maxSym)
		}

		var length int
		switch sym {
		case 16:
			if num == 0 {
				return dataErr("repeat-previous code length with no previous entry")
			}
			sym = int(lengths[num-1])
			length = r.getBitsBase(2, 3)
		case 17:
			sym = 0
			length = r.getBitsBase(3, 3)
		case 18:
			sym = 0
			length = r.getBitsBase(7, 11)
		default:
			length = 1
		}

		if length > hlit+hdist-num {
			return dataErr("code length run overruns table")
		}
		for length > 0 {
			lengths[num] = byte(sym)
			num++
			length--
		}
	}

	if lengths[256] == 0 {
		return dataErr("missing end-of-block code")
	}

	if err := buildTree(lt, lengths[:hlit], hlit); err != nil {
		return err
	}
	if err := buildTree(dt, lengths[hlit:hlit+hdist], hdist); err != nil {
		return err
	}
	return nil
}

// inflateBlockData decodes one block's compressed symbol stream against
// lt/dt, appending literals and resolved matches to d.dest, matching
// tinf_inflate_block_data including its match-copy loop (byte-at-a-time,
// so overlapping runs where distance < length replicate correctly).
func (d *inflater) inflateBlockData(lt, dt *tree) error {
	for {
		sym := decodeSymbol(d.r, lt)
		if d.r.overflow {
			return dataErr("bit reader ran out of input mid-block")
		}

		if sym < 256 {
			if len(d.dest) == 0 {
				return bufErr("destination buffer full")
			}
			d.dest[0] = byte(sym)
			d.dest = d.dest[1:]
			d.written++
			continue
		}
		if sym == 256 {
			return nil
		}
		if sym > lt.maxSym || sym-257 > 28 || dt.maxSym == -1 {
			return dataErr("invalid length symbol %d", sym)
		}
		sym -= 257

		length := d.r.getBitsBase(int(lengthBits[sym]), lengthBase[sym])

		dist := decodeSymbol(d.r, dt)
		if dist > dt.maxSym || dist > 29 {
			return dataErr("invalid distance symbol %d", dist)
		}
		offs := d.r.getBitsBase(int(distBits[dist]), distBase[dist])

		if offs > d.written {
			return dataErr("match distance %d exceeds %d bytes produced so far", offs, d.written)
		}
		if len(d.dest) < length {
			return bufErr("destination buffer too small for %d-byte match", length)
		}

		start := d.written - offs
		for i := 0; i < length; i++ {
			d.dest[i] = d.destStart[start+i]
		}
		d.dest = d.dest[length:]
		d.written += length
	}
}

// inflateUncompressedBlock copies a stored (uncompressed) block verbatim,
// matching tinf_inflate_uncompressed_block, including the one's-complement
// length cross-check and the byte-boundary reset of the bit accumulator.
func (d *inflater) inflateUncompressedBlock() error {
	src := d.r.source[d.r.pos:]
	if len(src) < 4 {
		return dataErr("truncated stored-block header")
	}
	length := int(src[0]) | int(src[1])<<8
	invLength := int(src[2]) | int(src[3])<<8
	if length != (^invLength)&0xFFFF {
		return dataErr("stored-block length %d does not match complement %d", length, invLength)
	}
	d.r.pos += 4

	if len(d.r.source)-d.r.pos < length {
		return dataErr("truncated stored-block body")
	}
	if len(d.dest) < length {
		return bufErr("destination buffer too small for %d-byte stored block", length)
	}

	copy(d.dest[:length], d.r.source[d.r.pos:d.r.pos+length])
	d.r.pos += length
	d.dest = d.dest[length:]
	d.written += length

	d.r.tag = 0
	d.r.bitcount = 0
	return nil
}

// inflateCore decodes a raw DEFLATE stream (RFC 1951, no zlib/gzip wrapper)
// from src into dst, matching tinf_uncompress's block loop. It additionally
// reports consumed, the number of src bytes the bit reader pulled in order
// to reach the final block's end — the byte offset at which whatever
// container trailer follows (e.g. a gzip CRC32/ISIZE trailer) begins. This
// is exact rather than approximate: getBits' refill-then-consume discipline
// keeps the reader's leftover bitcount under 8 after every call, so the
// byte the reader has most recently pulled into its accumulator is always
// the same byte a conforming encoder padded the compressed stream to.
func inflateCore(dst, src []byte) (written int, consumed int, err error) {
	d := &inflater{r: newBitReader(src), destStart: dst, dest: dst}

	var lt, dt tree
	for {
		final := d.r.getBits(1)
		btype := d.r.getBits(2)

		switch btype {
		case 0:
			err = d.inflateUncompressedBlock()
		case 1:
			buildFixedTrees(&lt, &dt)
			err = d.inflateBlockData(&lt, &dt)
		case 2:
			if err = decodeTrees(d.r, &lt, &dt); err == nil {
				err = d.inflateBlockData(&lt, &dt)
			}
		default:
			err = dataErr("invalid block type %d", btype)
		}
		if err != nil {
			return d.written, d.r.pos, err
		}

		if final != 0 {
			break
		}
	}

	if d.r.overflow {
		return d.written, d.r.pos, dataErr("bit reader ran out of input")
	}
	return d.written, d.r.pos, nil
}

// inflate decodes a raw DEFLATE stream from src into dst, returning the
// number of bytes written. It is inflateCore for callers that already know
// src ends exactly where the stream does.
func inflate(dst, src []byte) (int, error) {
	n, _, err := inflateCore(dst, src)
	return n, err
}
