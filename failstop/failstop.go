// Package failstop holds the firmware's two terminal paths. Any detected
// invariant violation halts the core for good; there is no recovery.
package failstop

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"betrusted/heap"
)

// Halter stops the core. Halt must never return.
type Halter interface {
	Halt()
}

// Spin halts by idling forever. This is the production halter.
type Spin struct{}

func (Spin) Halt() {
	for {
	}
}

// GoexitHalter halts the calling goroutine only, leaving the rest of the
// process free to inspect the scratch. Used by the simulator and tests.
type GoexitHalter struct {
	halted atomic.Bool
	done   chan struct{}
}

// NewGoexitHalter returns a halter whose Done channel closes on halt.
func NewGoexitHalter() *GoexitHalter {
	return &GoexitHalter{done: make(chan struct{})}
}

func (g *GoexitHalter) Halt() {
	if g.halted.CompareAndSwap(false, true) {
		close(g.done)
	}
	runtime.Goexit()
}

// Halted reports whether Halt has been called.
func (g *GoexitHalter) Halted() bool {
	return g.halted.Load()
}

// Done is closed once the core has halted.
func (g *GoexitHalter) Done() <-chan struct{} {
	return g.done
}

// Handler routes fatal conditions to the scratch and then the halter.
type Handler struct {
	Scratch *Scratch
	Halter  Halter
	Log     *logrus.Entry
}

// NewHandler builds a handler. A nil halter spins.
func NewHandler(scratch *Scratch, halter Halter, log *logrus.Entry) *Handler {
	if scratch == nil {
		scratch = &Scratch{}
	}
	if halter == nil {
		halter = Spin{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{Scratch: scratch, Halter: halter, Log: log}
}

// Panic is the generic fatal path. It records the fault code, then halts.
func (h *Handler) Panic(err error) {
	code := CodeOf(err)
	h.Scratch.Record(SlotFaultCode, uint32(code))
	h.Log.WithError(err).WithField("code", code.String()).Error("FATAL: halting core")
	h.halt()
}

// AllocFailure records the failed request size before taking the panic
// path, so the probe sees it even though nothing else runs afterwards.
func (h *Handler) AllocFailure(size uint32) {
	h.Scratch.Record(SlotAllocFailSize, size)
	h.Log.WithField("size", size).Error("allocation failed")
	h.Panic(New(CodeAllocFailure, &heap.AllocError{Size: size}))
}

// Halt dispatches err to the matching fatal path.
func (h *Handler) Halt(err error) {
	var allocErr *heap.AllocError
	if errors.As(err, &allocErr) {
		h.AllocFailure(allocErr.Size)
	}
	h.Panic(err)
}

// Guard runs fn and sends any error or Go panic it produces down the
// fatal paths. It returns only if fn succeeds.
func (h *Handler) Guard(fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok {
					err = New(CodePanic, e)
				} else {
					err = New(CodePanic, fmt.Errorf("%v", r))
				}
			}
		}()
		err = fn()
	}()
	if err != nil {
		h.Halt(err)
	}
}

func (h *Handler) halt() {
	h.Halter.Halt()
	// A halter that returns has broken its contract; stop here regardless.
	for {
	}
}
