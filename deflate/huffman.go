package deflate

// tree is a canonical Huffman code table, grounded on tinflate.c's
// struct tinf_tree: counts[len] is the number of codes of each length,
// symbols holds the symbols sorted into code order, and maxSym is the
// largest symbol actually assigned a code (-1 if the tree is empty).
type tree struct {
	counts  [16]uint16
	symbols [288]uint16
	maxSym  int
}

// buildFixedTrees installs the DEFLATE spec's fixed literal/length and
// distance Huffman trees, matching tinf_build_fixed_trees.
func buildFixedTrees(lt, dt *tree) {
	for i := range lt.counts {
		lt.counts[i] = 0
	}
	lt.counts[7] = 24
	lt.counts[8] = 152
	lt.counts[9] = 112

	for i := 0; i < 24; i++ {
		lt.symbols[i] = uint16(256 + i)
	}
	for i := 0; i < 144; i++ {
		lt.symbols[24+i] = uint16(i)
	}
	for i := 0; i < 8; i++ {
		lt.symbols[24+144+i] = uint16(280 + i)
	}
	for i := 0; i < 112; i++ {
		lt.symbols[24+144+8+i] = uint16(144 + i)
	}
	lt.maxSym = 285

	for i := range dt.counts {
		dt.counts[i] = 0
	}
	dt.counts[5] = 32
	for i := 0; i < 32; i++ {
		dt.symbols[i] = uint16(i)
	}
	dt.maxSym = 29
}

// buildTree constructs a canonical Huffman tree from an array of code
// lengths (one per symbol, 0 meaning "unused"), matching tinf_build_tree
// exactly, including its single-code special case: when only one symbol
// has a nonzero length, a phantom second code is installed pointing one
// past the real symbol, so the decoder's own bounds check (symbol >
// maxSym) rejects the all-ones bit pattern instead of the tree silently
// accepting it.
func buildTree(t *tree, lengths []byte, num int) error {
	var offs [16]uint16

	for i := range t.counts {
		t.counts[i] = 0
	}
	t.maxSym = -1

	for i := 0; i < num; i++ {
		if lengths[i] != 0 {
			t.maxSym = i
			t.counts[lengths[i]]++
		}
	}

	available := uint32(1)
	numCodes := uint32(0)
	for i := 0; i < 16; i++ {
		used := uint32(t.counts[i])
		if used > available {
			return dataErr("code length %d has %d codes, only %d available", i, used, available)
		}
		available = 2 * (available - used)
		offs[i] = uint16(numCodes)
		numCodes += used
	}

	if (numCodes > 1 && available > 0) || (numCodes == 1 && t.counts[1] != 1) {
		return dataErr("incomplete or over-subscribed Huffman code table")
	}

	for i := 0; i < num; i++ {
		if lengths[i] != 0 {
			t.symbols[offs[lengths[i]]] = uint16(i)
			offs[lengths[i]]++
		}
	}

	if numCodes == 1 {
		t.counts[1] = 2
		t.symbols[1] = uint16(t.maxSym + 1)
	}

	return nil
}

// decodeSymbol walks bits one at a time, tracking the running index of the
// code within the sorted order of codes for the current length, matching
// tinf_decode_symbol's base/offs bookkeeping.
func decodeSymbol(r *bitReader, t *tree) int {
	base, offs := 0, 0
	for length := 1; ; length++ {
		offs = 2*offs + int(r.getBits(1))
		if offs < int(t.counts[length]) {
			break
		}
		base += int(t.counts[length])
		offs -= int(t.counts[length])
	}
	return int(t.symbols[base+offs])
}
