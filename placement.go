package segalloc

import "unsafe"

const (
	// searchLimit bounds how many blocks of a single size class the
	// best-fit scan will examine: once more than searchLimit blocks of a
	// class have been examined, it moves on to the next class.
	// Reset at the top of every class's inner loop — spec §9 flags the
	// original source's failure to reset this across classes as a bug;
	// the fix (per-class budget) is what's implemented here.
	searchLimit = 10

	// closeEnough is the fit-excess threshold at or below which the search
	// returns immediately instead of continuing to look for something
	// tighter.
	closeEnough = 46

	// defaultChunkSize is how many bytes to request from the broker when
	// extending the heap on a fit-search miss.
	defaultChunkSize = 2048
)

// adjustRequestSize converts a user-visible byte count into the internal
// block size: the minimum block (16 bytes) for anything that fits in one
// payload word, else header-plus-payload rounded up to a 16-byte multiple.
func adjustRequestSize(size int64) int64 {
	if size <= wordSize {
		return minBlockSize
	}
	return roundUp(size+wordSize, dwordSize)
}

func roundUp(size, n int64) int64 {
	return n * ((size + n - 1) / n)
}

// findFit runs a best-fit search bounded by searchLimit-per-class and the
// closeEnough early exit, starting at the size class asize maps to. It returns
// nil if no free block fits.
func (a *Allocator) findFit(asize int64) unsafe.Pointer {
	startClass := freeListIndex(asize)

	if startClass == 0 {
		if head := a.reg.heads[0]; head != nil {
			return head
		}
	}

	var best unsafe.Pointer
	minDiff := int64(-1) // -1 means "no candidate yet"

	for class := startClass; class < numFreeLists; class++ {
		cont := 0
		block := a.reg.heads[class]
		for block != nil {
			size := blockSize(block)
			if size >= asize {
				diff := size - asize
				if minDiff == -1 || diff < minDiff {
					minDiff = diff
					best = block
				}
				if minDiff <= closeEnough {
					return best
				}
			}

			if cont >= searchLimit {
				break
			}
			block = normalLinks(block).next
			cont++
		}
	}

	return best
}

// splitBlock carves a allocated region of size asize off the front of
// block (which has already been removed from its free list and is
// larger than asize). If the remainder would be smaller than the minimum
// block size, no split happens and the whole block is allocated instead.
func (a *Allocator) splitBlock(block unsafe.Pointer, asize int64) {
	size := blockSize(block)
	remainder := size - asize
	if remainder < minBlockSize {
		return
	}

	prevAlloc := blockPrevAlloc(block)
	prevMini := blockPrevMini(block)
	writeBlock(block, asize, true, prevAlloc, prevMini)

	freeBlock := blockNext(block)
	freeIsMini := remainder == minBlockSize
	writeBlock(freeBlock, remainder, false, true, asize == minBlockSize)

	successor := blockNext(freeBlock)
	updateBlock(successor, blockSize(successor), blockAlloc(successor), false, freeIsMini)

	a.reg.insertFree(freeBlock)
}
