// Package linker exposes the addresses the link step defines. The firmware
// never computes these; it only reads them.
package linker

import (
	"fmt"

	"github.com/pkg/errors"

	"betrusted/heap"
)

// Linker symbols consumed by the runtime (from memory.x).
const (
	HeapStart = "_sheap"
	HeapSize  = "_heap_size"
	DataStart = "_sdata"
	DataEnd   = "_ebss"
	StackTop  = "_stack_start"
)

// ErrUnknownSymbol is returned for names the link step did not define.
var ErrUnknownSymbol = errors.New("linker: unknown symbol")

// Symbols maps symbol names to their addresses.
type Symbols map[string]uintptr

// Lookup returns the address of a linker symbol.
func (s Symbols) Lookup(name string) (uintptr, error) {
	addr, ok := s[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownSymbol, name)
	}
	return addr, nil
}

// HeapRegion returns the heap bounds. The size is encoded as the address
// of _heap_size, not its contents.
func (s Symbols) HeapRegion() (heap.Region, error) {
	start, err := s.Lookup(HeapStart)
	if err != nil {
		return heap.Region{}, err
	}
	size, err := s.Lookup(HeapSize)
	if err != nil {
		return heap.Region{}, err
	}
	if uint64(size) > 0xFFFFFFFF {
		return heap.Region{}, errors.Errorf("linker: heap size %#x exceeds 32 bits", size)
	}
	return heap.Region{Start: start, Size: uint32(size)}, nil
}

// StaticRegion returns the .data/.bss span the heap must not overlap. A
// link map without those symbols reports no static region.
func (s Symbols) StaticRegion() (heap.Region, bool) {
	start, err1 := s.Lookup(DataStart)
	end, err2 := s.Lookup(DataEnd)
	if err1 != nil || err2 != nil || end < start {
		return heap.Region{}, false
	}
	return heap.Region{Start: start, Size: uint32(end - start)}, true
}

func (s Symbols) String() string {
	return fmt.Sprintf("linker.Symbols(%d)", len(s))
}
