package heap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRegion = Region{Start: 0x40000000, Size: 64 * 1024}

func newTestHeap(t *testing.T) *Heap {
	t.Helper()
	h := New(nil)
	require.NoError(t, h.Init(testRegion))
	return h
}

func TestInitOnce(t *testing.T) {
	h := New(nil)
	assert.False(t, h.Initialized())

	require.NoError(t, h.Init(testRegion))
	assert.True(t, h.Initialized())
	assert.Equal(t, testRegion, h.Region())

	err := h.Init(testRegion)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestAllocBeforeInit(t *testing.T) {
	h := New(nil)
	_, err := h.Alloc(16)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, h.Free(0x40000010), ErrNotInitialized)
}

func TestInitRejectsOverlap(t *testing.T) {
	static := Region{Start: 0x40008000, Size: 0x100}
	h := New(nil)
	err := h.Init(testRegion, static)
	assert.ErrorIs(t, err, ErrOverlap)
	assert.False(t, h.Initialized())

	// Adjacent is fine.
	adjacent := Region{Start: testRegion.End(), Size: 0x100}
	require.NoError(t, h.Init(testRegion, adjacent))
}

func TestInitRejectsBadRegion(t *testing.T) {
	tests := []struct {
		name   string
		region Region
	}{
		{"unaligned", Region{Start: 0x40000004, Size: 4096}},
		{"tiny", Region{Start: 0x40000000, Size: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(nil).Init(tt.region)
			assert.ErrorIs(t, err, ErrBadRegion)
		})
	}
}

func TestAllocAligned(t *testing.T) {
	h := newTestHeap(t)
	for _, size := range []uint32{1, 7, 16, 33, 100, 4096} {
		addr, err := h.Alloc(size)
		require.NoError(t, err)
		assert.Zero(t, addr%HeapAlignment, "size %d", size)
		assert.True(t, testRegion.Contains(addr))

		buf, err := h.Bytes(addr, size)
		require.NoError(t, err)
		assert.Len(t, buf, int(size))
	}
}

func TestAllocDistinct(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.Alloc(100)
	require.NoError(t, err)
	b, err := h.Alloc(100)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	bufA, _ := h.Bytes(a, 100)
	bufB, _ := h.Bytes(b, 100)
	for i := range bufA {
		bufA[i] = 0xAA
	}
	for _, v := range bufB {
		assert.Zero(t, v)
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	h := newTestHeap(t)

	_, err := h.Alloc(testRegion.Size)
	var allocErr *AllocError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, testRegion.Size, allocErr.Size)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	_, err = h.Alloc(testRegion.Size * 2)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestAllocZero(t *testing.T) {
	h := newTestHeap(t)
	_, err := h.Alloc(0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestFreeCoalesces(t *testing.T) {
	h := newTestHeap(t)
	initial := h.Stats()
	assert.Equal(t, 1, initial.Segments)

	var addrs []uintptr
	for i := 0; i < 4; i++ {
		addr, err := h.Alloc(1000)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	st := h.Stats()
	assert.Equal(t, 4, st.Allocations)
	assert.Equal(t, 5, st.Segments)

	// Free out of order: middle first, then neighbours.
	require.NoError(t, h.Free(addrs[1]))
	require.NoError(t, h.Free(addrs[2]))
	require.NoError(t, h.Free(addrs[0]))
	require.NoError(t, h.Free(addrs[3]))

	assert.Equal(t, initial, h.Stats())
}

func TestFreeReuse(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.Alloc(512)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))

	b, err := h.Alloc(512)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFreeInvalid(t *testing.T) {
	h := newTestHeap(t)
	assert.ErrorIs(t, h.Free(0x1234), ErrInvalidFree)

	a, err := h.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, h.Free(a))
	assert.ErrorIs(t, h.Free(a), ErrInvalidFree, "double free")
}

func TestBytesBounds(t *testing.T) {
	h := newTestHeap(t)
	a, err := h.Alloc(32)
	require.NoError(t, err)

	_, err = h.Bytes(a, 4096)
	assert.Error(t, err)

	_, err = h.Bytes(a+1, 1)
	assert.Error(t, err)
}

func TestExhaustAndRecover(t *testing.T) {
	h := newTestHeap(t)
	var addrs []uintptr
	for {
		addr, err := h.Alloc(4000)
		if err != nil {
			assert.True(t, errors.Is(err, ErrOutOfMemory))
			break
		}
		addrs = append(addrs, addr)
	}
	assert.NotEmpty(t, addrs)

	for _, a := range addrs {
		require.NoError(t, h.Free(a))
	}
	st := h.Stats()
	assert.Equal(t, 1, st.Segments)
	assert.Zero(t, st.Used)
}

func TestRegion(t *testing.T) {
	r := Region{Start: 0x1000, Size: 0x100}
	assert.Equal(t, uintptr(0x1100), r.End())
	assert.True(t, r.Contains(0x1000))
	assert.True(t, r.Contains(0x10ff))
	assert.False(t, r.Contains(0x1100))

	assert.True(t, r.Overlaps(Region{Start: 0x10f0, Size: 0x20}))
	assert.False(t, r.Overlaps(Region{Start: 0x1100, Size: 0x20}))
	assert.False(t, r.Overlaps(Region{Start: 0x1080, Size: 0}))
	assert.Equal(t, "[0x1000,0x1100)", r.String())
}
