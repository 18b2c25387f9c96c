// Package firmware is the boot-to-loop runtime: it takes the peripherals,
// bootstraps the heap, brings up the display and then steps the bounce
// animation forever. Every failure ends on the fail-stop handler.
package firmware

import (
	"fmt"
	"image"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"betrusted/bounce"
	"betrusted/display"
	"betrusted/failstop"
	"betrusted/hal"
	"betrusted/heap"
	"betrusted/linker"
	"betrusted/translate"
)

// Option adjusts a runtime during Boot.
type Option func(*Runtime)

// WithAllocator routes post-bootstrap allocations through wrap(heap).
func WithAllocator(wrap func(heap.Allocator) heap.Allocator) Option {
	return func(r *Runtime) {
		r.alloc = wrap(r.heap)
	}
}

// Runtime is a booted firmware image.
type Runtime struct {
	Log *logrus.Entry

	cfg     Config
	p       *hal.Peripherals
	heap    *heap.Heap
	alloc   heap.Allocator
	display *display.Locked
	ball    *bounce.Bounce
	handler *failstop.Handler

	frames atomic.Uint64
}

func newLogger(p *hal.Peripherals, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(p.UART)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return logrus.NewEntry(logger)
}

// Boot brings the board up in a fixed order. An error means the core must
// halt; the caller hands it to the fail-stop handler.
func Boot(board *hal.Board, syms linker.Symbols, cfg Config, handler *failstop.Handler, opts ...Option) (*Runtime, error) {
	p, err := board.Take()
	if err != nil {
		return nil, failstop.New(failstop.CodePeripheralsTaken, err)
	}

	log := newLogger(p, cfg.LogLevel)
	handler.Log = log
	r := &Runtime{
		Log:     log,
		cfg:     cfg,
		p:       p,
		handler: handler,
	}

	log.Debug("boot: sram config read")
	p.SRAM.TriggerConfigRead()

	log.WithField("divisor", cfg.I2CDivisor()).Debug("boot: i2c")
	if err := p.I2C.Init(cfg.I2CDivisor()); err != nil {
		return nil, failstop.New(failstop.CodeDeviceIO, errors.Wrap(err, "i2c init"))
	}

	log.Debug("boot: timer")
	if err := p.Timer.Init(); err != nil {
		return nil, failstop.New(failstop.CodeDeviceIO, errors.Wrap(err, "timer init"))
	}

	status := p.SRAM.ConfigStatus()
	handler.Scratch.Record(failstop.SlotConfigStatus, status)
	log.WithField("status", fmt.Sprintf("%#08x", status)).Debug("boot: sram config status")

	if err := r.initHeap(syms); err != nil {
		return nil, failstop.New(failstop.CodeBoot, err)
	}
	for _, opt := range opts {
		opt(r)
	}

	r.recordBootScratch()

	log.WithField("clock", cfg.ClockHz).Debug("boot: display")
	r.display = display.NewLocked(display.NewFramebuffer(p.LCD, r.alloc, log))
	var size image.Point
	err = r.display.Borrow(func(s display.Surface) error {
		if err := s.Init(cfg.ClockHz); err != nil {
			return err
		}
		size = s.Size()
		return nil
	})
	if err != nil {
		return nil, failstop.New(failstop.CodeDeviceIO, err)
	}

	arena := image.Rect(0, cfg.ArenaTop, size.X, size.Y)
	r.ball, err = bounce.New(cfg.Radius, arena, image.Pt(size.X/2, size.Y/2))
	if err != nil {
		return nil, failstop.New(failstop.CodeBoot, err)
	}

	log.WithFields(logrus.Fields{
		"arena": arena,
		"ball":  r.ball.Loc,
	}).Info("boot: complete")
	return r, nil
}

func (r *Runtime) initHeap(syms linker.Symbols) error {
	region, err := syms.HeapRegion()
	if err != nil {
		return errors.Wrap(err, "heap bounds")
	}
	var reserved []heap.Region
	if static, ok := syms.StaticRegion(); ok {
		reserved = append(reserved, static)
	}

	r.heap = heap.New(r.Log)
	if err := r.heap.Init(region, reserved...); err != nil {
		return errors.Wrap(err, "heap init")
	}
	r.alloc = r.heap
	r.Log.WithField("region", region.String()).Debug("boot: heap")
	return nil
}

// recordBootScratch publishes the heap bounds for the probe.
func (r *Runtime) recordBootScratch() {
	region := r.heap.Region()
	scratch := r.handler.Scratch
	scratch.Record(failstop.SlotHeapStart, uint32(region.Start))
	scratch.Record(failstop.SlotHeapSize, region.Size)
}

// uptimeLabel renders the status line. Seconds go in as a plain decimal
// string so the printer does not group digits.
func uptimeLabel(format string, ms uint64) string {
	return translate.From(format, strconv.FormatUint(ms/1000, 10))
}

// Step runs one frame: label, physics, ball, flush.
func (r *Runtime) Step() error {
	ms := r.p.Timer.ElapsedMillis()
	label := uptimeLabel(r.cfg.Label, ms)

	err := r.display.Borrow(func(s display.Surface) error {
		s.Clear()
		s.DrawText(r.cfg.LabelAt, label)
		return nil
	})
	if err != nil {
		return err
	}

	r.ball.Update()

	err = r.display.Borrow(func(s display.Surface) error {
		s.DrawCircle(r.ball.Loc, r.ball.Radius)
		return s.Flush()
	})
	if err != nil {
		return failstop.New(failstop.CodeDeviceIO, err)
	}

	n := r.frames.Add(1)
	if r.Log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		r.Log.WithFields(logrus.Fields{
			"frame": n,
			"ms":    ms,
			"ball":  r.ball.Loc,
		}).Trace("frame")
	}
	return nil
}

// Run steps forever. The first failure halts the core, so Run never
// returns.
func (r *Runtime) Run() {
	for {
		r.handler.Guard(r.Step)
	}
}

// Frames returns the number of completed frames.
func (r *Runtime) Frames() uint64 {
	return r.frames.Load()
}

// Ball returns a copy of the ball state. The copy shares nothing with
// the running ball.
func (r *Runtime) Ball() bounce.Bounce {
	b := *r.ball
	b.Table = slices.Clone(r.ball.Table)
	return b
}

// Heap returns the global allocator.
func (r *Runtime) Heap() *heap.Heap {
	return r.heap
}

// Display returns the locked display handle.
func (r *Runtime) Display() *display.Locked {
	return r.display
}

// Main is the entry routine: boot, then loop. It never returns.
func Main(board *hal.Board, syms linker.Symbols, cfg Config, handler *failstop.Handler, opts ...Option) {
	var r *Runtime
	handler.Guard(func() error {
		var err error
		r, err = Boot(board, syms, cfg, handler, opts...)
		return err
	})
	r.Run()
}
