package heap

import "fmt"

// Region is a span of physical memory: the heap's bounds as supplied by
// the link step, or a statically allocated area it must stay clear of.
type Region struct {
	Start uintptr
	Size  uint32
}

// End returns the first address past the region.
func (r Region) End() uintptr {
	return r.Start + uintptr(r.Size)
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uintptr) bool {
	return addr >= r.Start && addr < r.End()
}

// Overlaps reports whether two regions share any byte.
func (r Region) Overlaps(o Region) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return r.Start < o.End() && o.Start < r.End()
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x,%#x)", r.Start, r.End())
}
