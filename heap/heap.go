// Package heap is the firmware's global allocator: a best-fit segment
// allocator over a single region whose bounds come from the link step.
package heap

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Memory management constants
const (
	HeapAlignment = 16 // 16-byte alignment for allocations
	headerSize    = 16 // in-band segment header, accounted but kept out of the arena
	minSplitSize  = 2 * headerSize
)

// Allocator is the dynamic allocation capability handed to the runtime.
type Allocator interface {
	Alloc(size uint32) (uintptr, error)
	Free(addr uintptr) error
	Bytes(addr uintptr, n uint32) ([]byte, error)
}

// segment represents a segment in the heap's doubly-linked list.
// offset and size are relative to the region start and include the header.
type segment struct {
	next      *segment
	prev      *segment
	allocated bool
	offset    uint32
	size      uint32
}

func (s *segment) payload() uint32 {
	return s.offset + headerSize
}

// Stats is a point-in-time view of heap usage.
type Stats struct {
	Used        uint32
	Free        uint32
	Segments    int
	Allocations int
}

// Heap is the global allocator instance. The zero value is uninitialized;
// Init must run exactly once before the first Alloc.
type Heap struct {
	Log *logrus.Entry

	region Region
	arena  []byte
	head   *segment
	live   map[uintptr]*segment
}

// New returns an uninitialized heap.
func New(log *logrus.Entry) *Heap {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Heap{Log: log}
}

func alignUp(n uint32) uint32 {
	return (n + HeapAlignment - 1) &^ (HeapAlignment - 1)
}

// Init configures the heap over region. reserved lists the statically
// allocated regions the heap must not overlap.
func (h *Heap) Init(region Region, reserved ...Region) error {
	if h.head != nil {
		return ErrAlreadyInitialized
	}
	if h.Log == nil {
		h.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if region.Start%HeapAlignment != 0 {
		return errors.Wrapf(ErrBadRegion, "start %#x not %d-byte aligned", region.Start, HeapAlignment)
	}
	if region.Size < minSplitSize {
		return errors.Wrapf(ErrBadRegion, "size %d too small", region.Size)
	}
	if region.End() < region.Start {
		return errors.Wrapf(ErrBadRegion, "region %v wraps the address space", region)
	}
	for _, r := range reserved {
		if region.Overlaps(r) {
			return errors.Wrapf(ErrOverlap, "heap %v overlaps %v", region, r)
		}
	}

	size := region.Size &^ (HeapAlignment - 1)

	h.region = region
	h.arena = make([]byte, size)
	h.live = make(map[uintptr]*segment)
	h.head = &segment{offset: 0, size: size}

	h.Log.WithFields(logrus.Fields{
		"start": region.Start,
		"size":  size,
	}).Debug("heap: initialized")
	return nil
}

// Initialized reports whether Init has run.
func (h *Heap) Initialized() bool {
	return h.head != nil
}

// Region returns the region the heap manages.
func (h *Heap) Region() Region {
	return h.region
}

// Alloc reserves size bytes and returns the address of a 16-byte aligned
// payload. When no free segment fits, the error is an *AllocError.
func (h *Heap) Alloc(size uint32) (uintptr, error) {
	if h.head == nil {
		return 0, ErrNotInitialized
	}
	if size == 0 {
		return 0, ErrInvalidSize
	}
	if size > h.region.Size {
		return 0, &AllocError{Size: size}
	}

	totalSize := alignUp(headerSize + size)

	// Find the best-fit free segment
	var best *segment
	for curr := h.head; curr != nil; curr = curr.next {
		if curr.allocated || curr.size < totalSize {
			continue
		}
		if best == nil || curr.size < best.size {
			best = curr
			if curr.size == totalSize {
				break
			}
		}
	}
	if best == nil {
		h.Log.WithField("size", size).Debug("heap: no suitable free segment")
		return 0, &AllocError{Size: size}
	}

	// If the segment is much larger than needed, split it
	if best.size-totalSize > minSplitSize {
		newSeg := &segment{
			next:   best.next,
			prev:   best,
			offset: best.offset + totalSize,
			size:   best.size - totalSize,
		}
		best.next = newSeg
		if newSeg.next != nil {
			newSeg.next.prev = newSeg
		}
		best.size = totalSize
	}

	best.allocated = true
	addr := h.region.Start + uintptr(best.payload())
	h.live[addr] = best

	// Hand out zeroed memory.
	clear(h.arena[best.payload() : best.offset+best.size])
	return addr, nil
}

// Free releases memory previously returned by Alloc and coalesces it with
// free neighbours.
func (h *Heap) Free(addr uintptr) error {
	if h.head == nil {
		return ErrNotInitialized
	}
	seg, ok := h.live[addr]
	if !ok {
		return errors.Wrapf(ErrInvalidFree, "address %#x", addr)
	}
	delete(h.live, addr)
	seg.allocated = false

	// Coalesce with previous segment if it's free
	for seg.prev != nil && !seg.prev.allocated {
		prev := seg.prev
		prev.next = seg.next
		prev.size += seg.size
		if seg.next != nil {
			seg.next.prev = prev
		}
		seg = prev
	}

	// Coalesce with next segment if it's free
	for seg.next != nil && !seg.next.allocated {
		next := seg.next
		seg.size += next.size
		seg.next = next.next
		if next.next != nil {
			next.next.prev = seg
		}
	}
	return nil
}

// Bytes returns a view of n bytes of an allocation starting at addr.
func (h *Heap) Bytes(addr uintptr, n uint32) ([]byte, error) {
	seg, ok := h.live[addr]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidFree, "address %#x not allocated", addr)
	}
	avail := seg.size - headerSize
	if n > avail {
		return nil, errors.Errorf("heap: %d bytes requested from %d byte allocation", n, avail)
	}
	start := seg.payload()
	return h.arena[start : start+n : start+n], nil
}

// Stats walks the segment list.
func (h *Heap) Stats() Stats {
	var st Stats
	for curr := h.head; curr != nil; curr = curr.next {
		st.Segments++
		if curr.allocated {
			st.Used += curr.size
			st.Allocations++
		} else {
			st.Free += curr.size
		}
	}
	return st
}
