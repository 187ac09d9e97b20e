package segalloc

import "unsafe"

// coalesce merges a newly-freed block with any adjacent free neighbors,
// maintaining free-list membership as it goes, and returns the address of
// the (possibly merged) block. block must already carry a free header/
// footer and must not be on any list yet.
func (a *Allocator) coalesce(block unsafe.Pointer) unsafe.Pointer {
	next := blockNext(block)
	prevAlloc := blockPrevAlloc(block)
	nextAlloc := blockAlloc(next)

	switch {
	case prevAlloc && nextAlloc:
		// No merge happens here: block keeps its own size, so the
		// successor's prev_alloc/prev_mini bits are exactly what the
		// caller (Free, or extend's epilogue write) already set them to
		// before calling coalesce. Touching them here would stomp a
		// correct prev_mini=true with false whenever block is a mini
		// block, violating invariant 6.
		a.reg.insertFree(block)

	case !prevAlloc && nextAlloc:
		prev := blockPrev(block)
		mergedSize := blockSize(prev) + blockSize(block)
		prevPrevAlloc := blockPrevAlloc(prev)
		prevPrevMini := blockPrevMini(prev)

		a.reg.deleteFree(prev)
		block = prev
		writeBlock(block, mergedSize, false, prevPrevAlloc, prevPrevMini)
		a.reg.insertFree(block)
		a.fixupSuccessor(block)

	case prevAlloc && !nextAlloc:
		mergedSize := blockSize(block) + blockSize(next)

		a.reg.deleteFree(next)
		writeBlock(block, mergedSize, false, prevAlloc, blockPrevMini(block))
		a.reg.insertFree(block)
		a.fixupSuccessor(block)

	default: // both free
		prev := blockPrev(block)
		mergedSize := blockSize(prev) + blockSize(block) + blockSize(next)
		prevPrevAlloc := blockPrevAlloc(prev)
		prevPrevMini := blockPrevMini(prev)

		a.reg.deleteFree(next)
		a.reg.deleteFree(prev)
		block = prev
		writeBlock(block, mergedSize, false, prevPrevAlloc, prevPrevMini)
		a.reg.insertFree(block)
		a.fixupSuccessor(block)
	}

	return block
}

// fixupSuccessor clears the prev_alloc and prev_mini bits of the block
// following a just-merged region. Only called after an actual merge: the
// merged block is always >= 32 bytes (a mini block has no free neighbor to
// absorb without itself growing past minBlockSize), so prev_mini is always
// false here.
func (a *Allocator) fixupSuccessor(block unsafe.Pointer) {
	successor := blockNext(block)
	updateBlock(successor, blockSize(successor), blockAlloc(successor), false, false)
}
