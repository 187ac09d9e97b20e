package segalloc

import "unsafe"

// blockNext returns the address of the block immediately following b, found
// by adding b's own size. Valid for any real block; on the last real block
// this yields the epilogue's address.
//
//go:inline
func blockNext(b unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(b, blockSize(b))
}

// blockPrev returns the address of the block immediately preceding b, or
// nil if b is the first real block in the heap (its predecessor is the
// prologue).
//
// If b's prevMini bit is set, the previous block is known to be exactly
// one mini block (16 bytes) before b — mini blocks carry no footer, so the
// generic backward-footer-scan would read garbage. Otherwise the word
// immediately before b's header is the previous block's footer, and its
// size field locates the previous block's header.
func blockPrev(b unsafe.Pointer) unsafe.Pointer {
	if blockPrevMini(b) {
		return unsafe.Add(b, -minBlockSize)
	}

	footer := (*word)(unsafe.Add(b, -wordSize))
	size := extractSize(*footer)
	if size == 0 {
		// b is the first real block; *footer is the prologue word.
		return nil
	}
	return unsafe.Add(unsafe.Pointer(footer), wordSize-size)
}

// blockPayload returns a pointer to the payload area immediately following
// a block's header word.
//
//go:inline
func blockPayload(b unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(b, wordSize)
}

// payloadBlock is the inverse of blockPayload: given a pointer previously
// handed out as a payload, it returns the owning block's header address.
//
//go:inline
func payloadBlock(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(p, -wordSize)
}
