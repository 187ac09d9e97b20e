package segalloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a, err := New(NewSliceBroker(1 << 20))
	require.NoError(t, err)
	return a
}

// Scenario 1: fresh heap, single allocate.
func TestAllocateFreshHeap(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Allocate(24)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Zero(t, uintptr(p)%16, "payload must be 16-byte aligned")

	block := payloadBlock(p)
	require.Equal(t, int64(32), blockSize(block))
	require.True(t, blockAlloc(block))
	require.Empty(t, a.CheckHeap())
}

// Scenario 2: mini allocation path.
func TestAllocateMiniBlock(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Allocate(8)
	require.NoError(t, err)
	require.NotNil(t, p)

	block := payloadBlock(p)
	require.Equal(t, int64(minBlockSize), blockSize(block))

	successor := blockNext(block)
	require.True(t, blockPrevMini(successor))
	require.Empty(t, a.CheckHeap())
}

// Scenario 3: split correctness.
func TestAllocateSplitsBlock(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Allocate(100)
	require.NoError(t, err)
	require.NotNil(t, p)

	block := payloadBlock(p)
	require.Equal(t, int64(112), blockSize(block))

	remainderSize := int64(defaultChunkSize - 112)
	idx := freeListIndex(remainderSize)
	require.NotNil(t, a.reg.heads[idx])
	require.Equal(t, remainderSize, blockSize(a.reg.heads[idx]))
	require.Empty(t, a.CheckHeap())
}

// Scenario 4: coalesce-both.
//
// A guard block is allocated after c so that freeing c does not itself
// coalesce forward into the rest of the bootstrap free space — without
// it, c's successor is the large free remainder of the initial 2048-byte
// block, and the sequence below would merge everything (a, b, c, and the
// remainder) into one block spanning the whole heap, not the isolated
// three-way merge the scenario is about. The guard keeps c's forward
// neighbor allocated until the final Free(b) triggers the three-way
// merge this test asserts on.
func TestFreeCoalescesBothNeighbors(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p1, err := a.Allocate(64)
	require.NoError(t, err)
	p2, err := a.Allocate(64)
	require.NoError(t, err)
	p3, err := a.Allocate(64)
	require.NoError(t, err)
	guard, err := a.Allocate(64)
	require.NoError(t, err)

	blockA := payloadBlock(p1)
	blockSizeEach := blockSize(blockA)
	require.Equal(t, int64(80), blockSizeEach) // adjustRequestSize(64) == 80

	a.Free(p1)
	a.Free(p3)
	a.Free(p2)

	mergedSize := blockSizeEach * 3
	idx := freeListIndex(mergedSize)
	require.NotNil(t, a.reg.heads[idx])
	require.Equal(t, mergedSize, blockSize(a.reg.heads[idx]))
	require.Empty(t, a.CheckHeap())

	a.Free(guard)
	require.Empty(t, a.CheckHeap())
}

// Regression: freeing a mini block flanked by two allocated blocks must
// not clear the following block's prev_mini bit, and a later free of that
// following block must not misinterpret the mini block's next-link word
// as a footer size.
func TestFreeMiniBlockPreservesSuccessorPrevMini(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p1, err := a.Allocate(24)
	require.NoError(t, err)
	m, err := a.Allocate(8)
	require.NoError(t, err)
	p2, err := a.Allocate(24)
	require.NoError(t, err)

	a.Free(m)

	blockB := payloadBlock(p2)
	require.True(t, blockPrevMini(blockB), "b's prev_mini must stay true after freeing the mini block before it")
	require.Empty(t, a.CheckHeap())

	a.Free(p2)
	require.Empty(t, a.CheckHeap())

	a.Free(p1)
	require.Empty(t, a.CheckHeap())
}

// Scenario 5: reallocate grows and preserves content.
func TestReallocateGrowsAndPreservesContent(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Allocate(40)
	require.NoError(t, err)
	src := unsafe.Slice((*byte)(p), 40)
	for i := range src {
		src[i] = byte(i)
	}

	q, err := a.Reallocate(p, 200)
	require.NoError(t, err)
	require.NotNil(t, q)

	dst := unsafe.Slice((*byte)(q), 40)
	for i := range dst {
		require.Equal(t, byte(i), dst[i], "byte %d not preserved across reallocate", i)
	}
	require.Empty(t, a.CheckHeap())
}

// Scenario 6: zero-alloc overflow guard.
func TestZeroAllocOverflowRejected(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	before := a.UsedBytes()
	p, err := a.ZeroAlloc(math.MaxInt64, 2)
	require.Nil(t, p)
	require.ErrorIs(t, err, ErrZeroAllocOverflow)
	require.Equal(t, before, a.UsedBytes(), "heap must not mutate on overflow")
}

func TestZeroAllocZeroesPayload(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.ZeroAlloc(10, 4)
	require.NoError(t, err)
	require.NotNil(t, p)

	buf := unsafe.Slice((*byte)(p), 40)
	for i, b := range buf {
		require.Zerof(t, b, "byte %d not zeroed", i)
	}
}

// Idempotence laws (spec §8).
func TestFreeNilIsNoOp(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)
	require.NotPanics(t, func() { a.Free(nil) })
}

func TestReallocateNilActsAsAllocate(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Reallocate(nil, 40)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, int64(48), blockSize(payloadBlock(p)))
}

func TestReallocateZeroActsAsFree(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Allocate(40)
	require.NoError(t, err)

	q, err := a.Reallocate(p, 0)
	require.NoError(t, err)
	require.Nil(t, q)
	require.Empty(t, a.CheckHeap())
}

func TestAllocateZeroReturnsNil(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	p, err := a.Allocate(0)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestAllocateBeyondFreeSpaceExtendsHeap(t *testing.T) {
	t.Parallel()
	a := newTestAllocator(t)

	before := a.HeapBytes()
	p, err := a.Allocate(defaultChunkSize * 3)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Greater(t, a.HeapBytes(), before)
	require.Empty(t, a.CheckHeap())
}
