// Package sim is an in-memory board that satisfies every hal interface,
// so the runtime boots and loops on a host.
package sim

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"betrusted/bitfield"
	"betrusted/hal"
	"betrusted/linker"
)

// Memory map of the SoC.
const (
	SRAMBase    uintptr = 0x10000000
	SRAMSize    uint32  = 0x20000
	SRAMExtBase uintptr = 0x40000000
	MemLCDBase  uintptr = 0xb0000000
)

// Memory LCD geometry.
const (
	LCDWidth  = 336
	LCDHeight = 536
)

// Options describes the simulated board.
type Options struct {
	Width  int
	Height int

	// MillisPerTick is how far the clock advances on every read.
	MillisPerTick uint64
	// FailTransferAt makes the Nth LCD transfer fail (1-based). Zero never fails.
	FailTransferAt int
	// FailI2C makes I2C bring-up fail.
	FailI2C bool

	ConfigStatus bitfield.ConfigStatus

	HeapStart uintptr
	HeapSize  uint32
	// StaticStart and StaticEnd bound .data/.bss.
	StaticStart uintptr
	StaticEnd   uintptr
}

// DefaultOptions matches the precursor board: the heap sits at the base of
// external SRAM and .data/.bss at the base of internal SRAM.
func DefaultOptions() Options {
	return Options{
		Width:         LCDWidth,
		Height:        LCDHeight,
		MillisPerTick: 16,
		ConfigStatus: bitfield.ConfigStatus{
			Loaded:     true,
			PageLength: 2,
			ReadTiming: 7,
		},
		HeapStart:   SRAMExtBase,
		HeapSize:    0x100000,
		StaticStart: SRAMBase,
		StaticEnd:   SRAMBase + 0x8000,
	}
}

// Board is the simulated SoC. The embedded hal.Board hands the devices out
// once; the exported device fields stay available for inspection.
type Board struct {
	*hal.Board

	SRAM  *SRAM
	I2C   *I2C
	Timer *Timer
	LCD   *LCD
	UART  *UART

	Symbols linker.Symbols
	Trace   *Trace
}

// NewBoard builds a board from opts.
func NewBoard(opts Options) (*Board, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("sim: display size %dx%d", opts.Width, opts.Height)
	}
	status, err := bitfield.PackConfigStatus(opts.ConfigStatus)
	if err != nil {
		return nil, errors.Wrap(err, "sim: config status")
	}

	trace := &Trace{}
	b := &Board{
		SRAM:  &SRAM{trace: trace, status: status},
		I2C:   &I2C{trace: trace, fail: opts.FailI2C},
		Timer: &Timer{trace: trace, step: opts.MillisPerTick},
		LCD: &LCD{
			trace:  trace,
			width:  opts.Width,
			height: opts.Height,
			failAt: opts.FailTransferAt,
		},
		UART:  &UART{},
		Trace: trace,
		Symbols: linker.Symbols{
			linker.HeapStart: opts.HeapStart,
			linker.HeapSize:  uintptr(opts.HeapSize),
			linker.DataStart: opts.StaticStart,
			linker.DataEnd:   opts.StaticEnd,
			linker.StackTop:  SRAMBase + uintptr(SRAMSize),
		},
	}
	b.Board = hal.NewBoard(&hal.Peripherals{
		SRAM:  b.SRAM,
		I2C:   b.I2C,
		Timer: b.Timer,
		LCD:   b.LCD,
		UART:  b.UART,
	})
	return b, nil
}

// Trace records device calls in order.
type Trace struct {
	mu     sync.Mutex
	events []string
}

func (t *Trace) add(event string) {
	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()
}

// Events returns a copy of the recorded calls.
func (t *Trace) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

// SRAM is the external SRAM controller's config block.
type SRAM struct {
	trace     *Trace
	mu        sync.Mutex
	status    uint32
	triggered bool
}

func (s *SRAM) TriggerConfigRead() {
	s.trace.add("sram.trigger")
	s.mu.Lock()
	s.triggered = true
	s.mu.Unlock()
}

// ConfigStatus reads zero until a config read has been triggered.
func (s *SRAM) ConfigStatus() uint32 {
	s.trace.add("sram.status")
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.triggered {
		return 0
	}
	return s.status
}

// I2C is the I2C master.
type I2C struct {
	trace   *Trace
	fail    bool
	divisor uint32
}

func (i *I2C) Init(clockDivisor uint32) error {
	i.trace.add("i2c.init")
	if i.fail {
		return errors.Wrap(ErrInjected, "i2c init")
	}
	if clockDivisor == 0 {
		return ErrBadDivisor
	}
	i.divisor = clockDivisor
	return nil
}

// Divisor returns the divisor the bus was brought up with.
func (i *I2C) Divisor() uint32 {
	return i.divisor
}

// Timer is a tick timer that advances by a fixed step on every read.
type Timer struct {
	trace   *Trace
	mu      sync.Mutex
	step    uint64
	now     uint64
	started bool
}

func (t *Timer) Init() error {
	t.trace.add("timer.init")
	t.mu.Lock()
	t.started = true
	t.now = 0
	t.mu.Unlock()
	return nil
}

// ElapsedMillis returns the time so far, then advances the clock. A timer
// that was never started reads zero.
func (t *Timer) ElapsedMillis() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return 0
	}
	now := t.now
	t.now += t.step
	return now
}

// Advance moves the clock forward by ms.
func (t *Timer) Advance(ms uint64) {
	t.mu.Lock()
	t.now += ms
	t.mu.Unlock()
}

// LCD is the memory LCD. It keeps the last frame it was sent.
type LCD struct {
	trace  *Trace
	mu     sync.Mutex
	width  int
	height int
	failAt int

	clockHz   uint32
	transfers int
	frame     []byte
}

func (l *LCD) Init(clockHz uint32) error {
	l.trace.add("lcd.init")
	l.mu.Lock()
	l.clockHz = clockHz
	l.mu.Unlock()
	return nil
}

func (l *LCD) Size() (int, int) {
	return l.width, l.height
}

// Transfer stores frame. The transfer numbered FailTransferAt fails and
// leaves the previous frame in place.
func (l *LCD) Transfer(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clockHz == 0 {
		return ErrNotInitialized
	}
	l.transfers++
	if l.failAt > 0 && l.transfers == l.failAt {
		return errors.Wrapf(ErrInjected, "lcd transfer %d", l.transfers)
	}
	if want := (l.width + 7) / 8 * l.height; len(frame) != want {
		return errors.Errorf("sim: frame is %d bytes, want %d", len(frame), want)
	}
	l.frame = append(l.frame[:0], frame...)
	return nil
}

// Transfers returns the number of transfer attempts.
func (l *LCD) Transfers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfers
}

// Frame returns a copy of the last frame that reached the panel.
func (l *LCD) Frame() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.frame...)
}

// ClockHz returns the clock the panel was initialised with.
func (l *LCD) ClockHz() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clockHz
}

// Pixel reports whether p is dark in the last frame.
func (l *LCD) Pixel(x, y int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	stride := (l.width + 7) / 8
	i := y*stride + x/8
	if x < 0 || y < 0 || x >= l.width || i >= len(l.frame) {
		return false
	}
	return l.frame[i]&(0x80>>(x%8)) != 0
}

// UART is the debug console, captured in memory.
type UART struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (u *UART) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buf.Write(p)
}

// String returns everything written so far.
func (u *UART) String() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buf.String()
}

// Logger returns a logrus entry writing to the UART, the way the firmware
// logs on hardware.
func (u *UART) Logger(level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(u)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return logrus.NewEntry(logger)
}
