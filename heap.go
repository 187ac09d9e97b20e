package segalloc

import (
	"fmt"
	"log"
	"os"
	"unsafe"
)

// debugEnabled gates the allocator's optional tracing, mirroring the
// env-var-gated debug logging idiom hivekit's fastalloc package uses for
// this same kind of low-level allocator code, rather than pulling in a
// structured logging library the corpus never reaches for in this domain.
var debugEnabled = os.Getenv("SEGALLOC_DEBUG") != ""

func debugLogf(format string, args ...any) {
	if !debugEnabled {
		return
	}
	log.Output(2, fmt.Sprintf("segalloc: "+format, args...))
}

// bootstrapBytes is the size of the initial prologue+epilogue sentinel pair
// requested from the broker before any real block exists (spec §4.6).
const bootstrapBytes = 16

// Allocator is a segregated free-list heap allocator over a single
// contiguous, monotonically growable region supplied by a Broker. It
// implements the four-primitive interface (Allocate, Free, Reallocate,
// ZeroAlloc) described in spec §6.
//
// An Allocator is not goroutine-safe: it owns all its state (the free-list
// registry and the heap-start anchor) exclusively for the lifetime of the
// serial caller that drives it, per spec §5.
type Allocator struct {
	broker Broker
	reg    registry

	// heapStart anchors the first real block in the implicit list; it is
	// set once at bootstrap and never moves again (spec §4.6). The heap
	// checker and any forward full-heap scan start here.
	heapStart unsafe.Pointer

	// epilogue is the address of the current epilogue sentinel, which
	// moves to the end of the heap every time the heap is extended.
	epilogue unsafe.Pointer

	// usedBytes tracks the total block size (header included, not just
	// payload) currently marked allocated, mirroring the teacher's
	// Arena.UsedSize bookkeeping.
	usedBytes int64
}

// UsedBytes returns the total block size (including headers) currently
// marked allocated — the same accounting the teacher's Arena.UsedSize
// exposes, derived here from the bookkeeping Allocate/Free already do.
func (a *Allocator) UsedBytes() int64 {
	return a.usedBytes
}

// HeapBytes returns the total number of bytes the broker has granted so
// far, from its currently reported bounds.
func (a *Allocator) HeapBytes() int64 {
	lo, hi := a.broker.HeapLo(), a.broker.HeapHi()
	if lo == nil || hi == nil {
		return 0
	}
	return int64(uintptr(hi)-uintptr(lo)) + 1
}

// New creates an Allocator backed by the given Broker, bootstrapping the
// prologue/epilogue sentinels and the initial free block (spec §4.6).
// It returns an error if the broker cannot grant the bootstrap bytes.
func New(broker Broker) (*Allocator, error) {
	a := &Allocator{broker: broker}
	a.reg.reset()

	base, err := broker.Sbrk(bootstrapBytes)
	if err != nil {
		return nil, fmt.Errorf("segalloc: bootstrap: %w", err)
	}

	prologue := base
	epilogue := unsafe.Add(base, wordSize)

	*blockHeader(prologue) = pack(0, true, true, false)
	writeEpilogue(epilogue, true, false)

	// heapStart anchors the first real block; it is overwritten by the
	// header written at this address during the first extend below, and
	// never moves again.
	a.heapStart = epilogue
	a.epilogue = epilogue

	if _, err := a.extend(defaultChunkSize); err != nil {
		return nil, fmt.Errorf("segalloc: bootstrap: %w", err)
	}

	debugLogf("bootstrap complete, heap [%p,%p]", a.broker.HeapLo(), a.broker.HeapHi())
	return a, nil
}

// extend grows the heap by at least n bytes (rounded up to a 16-byte
// multiple), writes a new free block and epilogue, and coalesces the new
// block with whatever preceded it (spec §4.6). It returns the address of
// the resulting free block, or an error if the broker cannot grant the
// bytes.
func (a *Allocator) extend(n int64) (unsafe.Pointer, error) {
	n = roundUp(n, dwordSize)

	epilogue := a.epilogue
	prevAlloc := blockPrevAlloc(epilogue)
	prevMini := blockPrevMini(epilogue)

	payload, err := a.broker.Sbrk(n)
	if err != nil {
		return nil, err
	}

	// payload points one word past the old epilogue, at the payload
	// position of the new block — so the new block's header sits exactly
	// at the old epilogue's address.
	block := unsafe.Add(payload, -wordSize)
	writeBlock(block, n, false, prevAlloc, prevMini)

	newEpilogue := blockNext(block)
	writeEpilogue(newEpilogue, false, n == minBlockSize)

	a.epilogue = newEpilogue

	merged := a.coalesce(block)
	debugLogf("extended heap by %d bytes at %p", n, block)
	return merged, nil
}
