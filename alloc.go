/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

// Package segalloc implements a segregated free-list memory allocator over
// a single contiguous, monotonically growable heap region.
//
// IMPORTANT: This package is NOT goroutine-safe. Concurrent access from
// multiple goroutines is not supported and may lead to race conditions.
// It is the responsibility of the caller to implement proper
// synchronization mechanisms when using this allocator in a concurrent
// environment.
package segalloc

import (
	"errors"
	"unsafe"
)

// ErrZeroAllocOverflow is returned by ZeroAlloc when count*elemSize would
// overflow, mirroring calloc's multiplication-overflow guard in mm.c.
var ErrZeroAllocOverflow = errors.New("segalloc: zero-alloc size overflow")

// Allocate returns a pointer to at least size payload bytes, 16-byte
// aligned, or (nil, nil) for the documented zero-size no-op, or
// (nil, err) if the broker cannot supply enough heap (spec §6, §7).
func (a *Allocator) Allocate(size int64) (unsafe.Pointer, error) {
	if debugEnabled {
		if errs := a.CheckHeap(); len(errs) > 0 {
			debugLogf("checkheap failed on Allocate entry: %v", errs)
		}
	}

	if size == 0 {
		return nil, nil
	}

	asize := adjustRequestSize(size)

	block := a.findFit(asize)
	if block == nil {
		extendSize := asize
		if extendSize < defaultChunkSize {
			extendSize = defaultChunkSize
		}
		merged, err := a.extend(extendSize)
		if err != nil {
			return nil, err
		}
		block = merged
	}

	a.reg.deleteFree(block)

	size64 := blockSize(block)
	prevAlloc := blockPrevAlloc(block)
	prevMini := blockPrevMini(block)
	writeBlock(block, size64, true, prevAlloc, prevMini)

	successor := blockNext(block)
	updateBlock(successor, blockSize(successor), blockAlloc(successor), true, size64 == minBlockSize)

	a.splitBlock(block, asize)
	a.usedBytes += blockSize(block)

	if debugEnabled {
		if errs := a.CheckHeap(); len(errs) > 0 {
			debugLogf("checkheap failed on Allocate exit: %v", errs)
		}
	}

	return blockPayload(block), nil
}

// Free returns a previously-allocated block to the heap, coalescing it with
// any free neighbors. A nil pointer is a documented no-op; freeing a
// pointer twice is undefined (spec §6, §7).
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	block := payloadBlock(ptr)
	size := blockSize(block)
	prevAlloc := blockPrevAlloc(block)
	prevMini := blockPrevMini(block)

	a.usedBytes -= size
	writeBlock(block, size, false, prevAlloc, prevMini)

	successor := blockNext(block)
	updateBlock(successor, blockSize(successor), blockAlloc(successor), false, size == minBlockSize)

	a.coalesce(block)

	if debugEnabled {
		if errs := a.CheckHeap(); len(errs) > 0 {
			debugLogf("checkheap failed on Free exit: %v", errs)
		}
	}
}

// Reallocate implements the documented realloc laws exactly: a nil pointer
// behaves as Allocate, a zero size behaves as Free, and otherwise the
// first min(new, old payload) bytes are preserved in a freshly allocated
// block and the old one is freed (spec §6).
func (a *Allocator) Reallocate(ptr unsafe.Pointer, size int64) (unsafe.Pointer, error) {
	if ptr == nil {
		return a.Allocate(size)
	}
	if size == 0 {
		a.Free(ptr)
		return nil, nil
	}

	block := payloadBlock(ptr)
	oldPayloadSize := blockSize(block) - wordSize

	newPtr, err := a.Allocate(size)
	if err != nil {
		return nil, err
	}

	copySize := oldPayloadSize
	if size < copySize {
		copySize = size
	}
	memcpy(newPtr, ptr, copySize)

	a.Free(ptr)
	return newPtr, nil
}

// ZeroAlloc allocates room for count elements of elemSize bytes each and
// zero-fills the payload, rejecting multiplicative overflow without
// mutating the heap (spec §6, calloc's overflow guard in mm.c).
func (a *Allocator) ZeroAlloc(count, elemSize int64) (unsafe.Pointer, error) {
	if count == 0 || elemSize == 0 {
		return nil, nil
	}

	total := count * elemSize
	if total/count != elemSize {
		return nil, ErrZeroAllocOverflow
	}

	ptr, err := a.Allocate(total)
	if err != nil || ptr == nil {
		return nil, err
	}

	memset(ptr, 0, total)
	return ptr, nil
}

// memcpy and memset are the byte-level broker primitives named in spec §6.
// The allocator implements them directly over the backing region with
// Go's built-in unsafe.Slice + copy/clear rather than routing them through
// the Broker interface: they operate purely on bytes already inside heap
// bounds the allocator itself computed, so there is nothing a distinct
// broker implementation could vary. See DESIGN.md.
func memcpy(dst, src unsafe.Pointer, n int64) {
	if n <= 0 {
		return
	}
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

func memset(dst unsafe.Pointer, fill byte, n int64) {
	if n <= 0 {
		return
	}
	buf := unsafe.Slice((*byte)(dst), n)
	if fill == 0 {
		clear(buf)
		return
	}
	for i := range buf {
		buf[i] = fill
	}
}
