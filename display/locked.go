package display

import (
	"image"
	"sync"
	"sync/atomic"
)

// Locked serialises access to the one display. At most one Guard is
// outstanding at a time; further Lock calls block until it is released.
type Locked struct {
	mu          sync.Mutex
	fb          *Framebuffer
	outstanding atomic.Int32
}

// NewLocked takes ownership of fb.
func NewLocked(fb *Framebuffer) *Locked {
	return &Locked{fb: fb}
}

// Lock blocks until the display is free and returns the borrow.
func (l *Locked) Lock() *Guard {
	l.mu.Lock()
	l.outstanding.Add(1)
	return &Guard{l: l}
}

// TryLock returns a borrow if the display is free, nil otherwise.
func (l *Locked) TryLock() *Guard {
	if !l.mu.TryLock() {
		return nil
	}
	l.outstanding.Add(1)
	return &Guard{l: l}
}

// Borrow runs fn with exclusive access. The borrow is released on every
// exit from fn, panics included.
func (l *Locked) Borrow(fn func(Surface) error) error {
	g := l.Lock()
	defer g.Release()
	return fn(g)
}

// Outstanding reports how many borrows are live (0 or 1).
func (l *Locked) Outstanding() int {
	return int(l.outstanding.Load())
}

// Framebuffer returns the display without locking it. Only for use when
// the loop is not running, e.g. to save the last frame.
func (l *Locked) Framebuffer() *Framebuffer {
	return l.fb
}

// Guard is a scoped borrow of the display.
type Guard struct {
	l        *Locked
	released atomic.Bool
}

var _ Surface = (*Guard)(nil)

// Release ends the borrow. Calling it again is a no-op.
func (g *Guard) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	g.l.outstanding.Add(-1)
	g.l.mu.Unlock()
}

func (g *Guard) surface() *Framebuffer {
	if g.released.Load() {
		panic(ErrReleased)
	}
	return g.l.fb
}

func (g *Guard) Init(clockHz uint32) error {
	return g.surface().Init(clockHz)
}

func (g *Guard) Size() image.Point {
	return g.surface().Size()
}

func (g *Guard) Clear() {
	g.surface().Clear()
}

func (g *Guard) Flush() error {
	return g.surface().Flush()
}

func (g *Guard) DrawText(pt image.Point, s string) {
	g.surface().DrawText(pt, s)
}

func (g *Guard) DrawCircle(center image.Point, radius int) {
	g.surface().DrawCircle(center, radius)
}
