/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

package segalloc

import "unsafe"

// word is one header/footer slot: 8 bytes, matching the teacher's use of a
// fixed-width packed value for both headers and footers.
type word uint64

const (
	wordSize  = 8
	dwordSize = 2 * wordSize // 16 bytes

	// minBlockSize is the size of a mini block: one header word plus one
	// payload/link word. Nothing smaller is ever handed out.
	minBlockSize = dwordSize
)

const (
	allocMask     word = 0x1
	prevAllocMask word = 0x2
	prevMiniMask  word = 0x4
	sizeMask      word = ^word(0xF)
)

// pack builds a header/footer word from a size and the three status bits.
// size must already be a 16-byte multiple; pack does not validate that,
// mirroring the teacher's unchecked bit-packing helpers.
//
//go:inline
func pack(size int64, alloc, prevAlloc, prevMini bool) word {
	w := word(size)
	if alloc {
		w |= allocMask
	}
	if prevAlloc {
		w |= prevAllocMask
	}
	if prevMini {
		w |= prevMiniMask
	}
	return w
}

//go:inline
func extractSize(w word) int64 {
	return int64(w & sizeMask)
}

//go:inline
func extractAlloc(w word) bool {
	return w&allocMask != 0
}

//go:inline
func extractPrevAlloc(w word) bool {
	return w&prevAllocMask != 0
}

//go:inline
func extractPrevMini(w word) bool {
	return w&prevMiniMask != 0
}

// blockHeader returns a pointer to the header word at a block address.
//
//go:inline
func blockHeader(b unsafe.Pointer) *word {
	return (*word)(b)
}

//go:inline
func blockSize(b unsafe.Pointer) int64 {
	return extractSize(*blockHeader(b))
}

//go:inline
func blockAlloc(b unsafe.Pointer) bool {
	return extractAlloc(*blockHeader(b))
}

//go:inline
func blockPrevAlloc(b unsafe.Pointer) bool {
	return extractPrevAlloc(*blockHeader(b))
}

//go:inline
func blockPrevMini(b unsafe.Pointer) bool {
	return extractPrevMini(*blockHeader(b))
}

// blockFooter returns a pointer to the footer word of a block. Only valid
// for free blocks with size > minBlockSize; mini blocks and allocated
// blocks carry no footer.
//
//go:inline
func blockFooter(b unsafe.Pointer, size int64) *word {
	return (*word)(unsafe.Add(b, size-wordSize))
}

// writeBlock always writes the header, and writes a matching footer iff the
// block is free and larger than a mini block. Allocated blocks and free
// mini blocks carry no footer (spec §4.1).
func writeBlock(b unsafe.Pointer, size int64, alloc, prevAlloc, prevMini bool) {
	w := pack(size, alloc, prevAlloc, prevMini)
	*blockHeader(b) = w
	if !alloc && size > minBlockSize {
		*blockFooter(b, size) = w
	}
}

// updateBlock rewrites only the header, used when a neighbor's prevAlloc or
// prevMini bit changes without the block's own size or allocation status
// changing. It does not touch the footer, even though the footer is a full
// copy of the header: callers apply it to blocks that carry no footer
// (allocated blocks, the epilogue) or to a free neighbor that the following
// coalesce absorbs and rewrites with writeBlock.
func updateBlock(b unsafe.Pointer, size int64, alloc, prevAlloc, prevMini bool) {
	*blockHeader(b) = pack(size, alloc, prevAlloc, prevMini)
}

// writeEpilogue writes a zero-size allocated sentinel carrying the given
// prevAlloc/prevMini bits.
func writeEpilogue(b unsafe.Pointer, prevAlloc, prevMini bool) {
	*blockHeader(b) = pack(0, true, prevAlloc, prevMini)
}
