package failstop

import (
	"fmt"
	"sync/atomic"
)

// ScratchWords is the size of the debug scratch array.
const ScratchWords = 8

// Scratch slot indices. These are a fixed contract with the debug probe.
const (
	SlotFaultCode     = 0 // code of the most recent fatal path taken
	SlotConfigStatus  = 2 // last captured SRAM config-status snapshot
	SlotAllocFailSize = 3 // size of the request behind the last allocation failure
	SlotHeapStart     = 4 // heap start address
	SlotHeapSize      = 6 // heap size
)

// Scratch is the debug scratch: a write-only diagnostic channel read by an
// external probe. The firmware never reads it back.
type Scratch struct {
	words [ScratchWords]atomic.Uint32
}

// Record stores value at slot. An out-of-range slot is a logic violation.
func (s *Scratch) Record(slot int, value uint32) {
	if slot < 0 || slot >= ScratchWords {
		panic(fmt.Sprintf("failstop: scratch slot %d out of range", slot))
	}
	s.words[slot].Store(value)
}

// Snapshot returns the current contents, as the probe would see them.
func (s *Scratch) Snapshot() [ScratchWords]uint32 {
	var out [ScratchWords]uint32
	for i := range s.words {
		out[i] = s.words[i].Load()
	}
	return out
}

// Word returns a single slot, as the probe would see it.
func (s *Scratch) Word(slot int) uint32 {
	return s.words[slot].Load()
}
