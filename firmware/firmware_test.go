package firmware

import (
	"image"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"betrusted/failstop"
	"betrusted/hal"
	"betrusted/hal/sim"
	"betrusted/heap"
	"betrusted/linker"
)

func newTestBoard(t *testing.T, mutate func(*sim.Options)) *sim.Board {
	t.Helper()
	opts := sim.DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	b, err := sim.NewBoard(opts)
	require.NoError(t, err)
	return b
}

func newTestHandler() (*failstop.Handler, *failstop.GoexitHalter) {
	halter := failstop.NewGoexitHalter()
	return failstop.NewHandler(&failstop.Scratch{}, halter, nil), halter
}

func bootTestRuntime(t *testing.T, board *sim.Board) (*Runtime, *failstop.Handler) {
	t.Helper()
	handler, _ := newTestHandler()
	r, err := Boot(board.Board, board.Symbols, DefaultConfig(), handler)
	require.NoError(t, err)
	return r, handler
}

// runMain runs Main until the core halts.
func runMain(t *testing.T, board *sim.Board, symbols linker.Symbols, opts ...Option) *failstop.Handler {
	t.Helper()
	handler, halter := newTestHandler()
	go Main(board.Board, symbols, DefaultConfig(), handler, opts...)
	select {
	case <-halter.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("core did not halt")
	}
	return handler
}

func TestBootOrder(t *testing.T) {
	board := newTestBoard(t, nil)
	r, handler := bootTestRuntime(t, board)

	// The config status is captured after the timer and before the heap.
	assert.Equal(t, []string{"sram.trigger", "i2c.init", "timer.init", "sram.status", "lcd.init"}, board.Trace.Events())
	assert.Equal(t, uint32(100), board.I2C.Divisor())
	assert.Equal(t, uint32(100_000_000), board.LCD.ClockHz())

	scratch := handler.Scratch.Snapshot()
	assert.Equal(t, uint32(0x40000000), scratch[failstop.SlotHeapStart])
	assert.Equal(t, uint32(0x100000), scratch[failstop.SlotHeapSize])
	assert.Equal(t, uint32(0x79), scratch[failstop.SlotConfigStatus])
	assert.Zero(t, scratch[failstop.SlotFaultCode])

	assert.True(t, r.Heap().Initialized())
	assert.Equal(t, 1, r.Heap().Stats().Allocations, "frame buffer comes from the heap")

	ball := r.Ball()
	assert.Equal(t, image.Pt(sim.LCDWidth/2, sim.LCDHeight/2), ball.Loc)
	assert.Equal(t, image.Rect(0, 50, sim.LCDWidth, sim.LCDHeight), ball.Bounds)
	assert.Equal(t, 14, ball.Radius)

	assert.Contains(t, board.UART.String(), "boot: complete")
}

func TestBootTwiceFails(t *testing.T) {
	board := newTestBoard(t, nil)
	bootTestRuntime(t, board)

	handler, _ := newTestHandler()
	_, err := Boot(board.Board, board.Symbols, DefaultConfig(), handler)
	assert.ErrorIs(t, err, hal.ErrPeripheralsTaken)
	assert.Equal(t, failstop.CodePeripheralsTaken, failstop.CodeOf(err))
}

func TestMainHaltsWhenPeripheralsTaken(t *testing.T) {
	board := newTestBoard(t, nil)
	_, err := board.Take()
	require.NoError(t, err)

	handler := runMain(t, board, board.Symbols)
	assert.Equal(t, uint32(failstop.CodePeripheralsTaken), handler.Scratch.Word(failstop.SlotFaultCode))
	assert.Empty(t, board.Trace.Events(), "no device touched")
}

func TestBootErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sim.Options)
		syms   func(linker.Symbols) linker.Symbols
		code   failstop.Code
	}{
		{
			name:   "i2c failure",
			mutate: func(o *sim.Options) { o.FailI2C = true },
			code:   failstop.CodeDeviceIO,
		},
		{
			name: "missing heap symbol",
			syms: func(s linker.Symbols) linker.Symbols {
				delete(s, linker.HeapStart)
				return s
			},
			code: failstop.CodeBoot,
		},
		{
			name: "heap overlaps static data",
			mutate: func(o *sim.Options) {
				o.HeapStart = sim.SRAMBase
				o.HeapSize = 0x10000
			},
			code: failstop.CodeBoot,
		},
		{
			name:   "display too small for the ball",
			mutate: func(o *sim.Options) { o.Width, o.Height = 24, 200 },
			code:   failstop.CodeBoot,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board := newTestBoard(t, tt.mutate)
			syms := board.Symbols
			if tt.syms != nil {
				syms = tt.syms(syms)
			}
			handler, _ := newTestHandler()
			_, err := Boot(board.Board, syms, DefaultConfig(), handler)
			require.Error(t, err)
			assert.Equal(t, tt.code, failstop.CodeOf(err))
		})
	}
}

func TestAllocFailureHalts(t *testing.T) {
	// A 64x512 panel needs a 4096 byte frame; a 4 KiB heap cannot hold it
	// once the segment header is counted.
	board := newTestBoard(t, func(o *sim.Options) {
		o.Width, o.Height = 64, 512
		o.HeapSize = 0x1000
	})

	handler := runMain(t, board, board.Symbols)
	scratch := handler.Scratch.Snapshot()
	assert.Equal(t, uint32(4096), scratch[failstop.SlotAllocFailSize])
	assert.Equal(t, uint32(failstop.CodeAllocFailure), scratch[failstop.SlotFaultCode])
	assert.Equal(t, uint32(0x1000), scratch[failstop.SlotHeapSize], "bootstrap scratch survives")

	assert.Zero(t, board.LCD.Transfers(), "loop never ran")
	assert.Contains(t, board.UART.String(), "allocation failed")
}

// failingAllocator refuses every request.
type failingAllocator struct {
	heap.Allocator
	requests []uint32
}

func (f *failingAllocator) Alloc(size uint32) (uintptr, error) {
	f.requests = append(f.requests, size)
	return 0, &heap.AllocError{Size: size}
}

func TestInjectedAllocFailure(t *testing.T) {
	board := newTestBoard(t, func(o *sim.Options) { o.Width, o.Height = 64, 512 })
	injected := &failingAllocator{}

	handler := runMain(t, board, board.Symbols, WithAllocator(func(a heap.Allocator) heap.Allocator {
		injected.Allocator = a
		return injected
	}))

	assert.Equal(t, []uint32{4096}, injected.requests)
	assert.Equal(t, uint32(4096), handler.Scratch.Word(failstop.SlotAllocFailSize))
	assert.Zero(t, board.LCD.Transfers())
}

func TestFlushFailureHalts(t *testing.T) {
	board := newTestBoard(t, func(o *sim.Options) { o.FailTransferAt = 3 })

	handler := runMain(t, board, board.Symbols)
	assert.Equal(t, uint32(failstop.CodeDeviceIO), handler.Scratch.Word(failstop.SlotFaultCode))
	assert.Zero(t, handler.Scratch.Word(failstop.SlotAllocFailSize))

	// Halted means no further frames.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, board.LCD.Transfers())
	assert.Contains(t, board.UART.String(), "FATAL: halting core")
}

func TestStepRendersFrame(t *testing.T) {
	board := newTestBoard(t, nil)
	r, _ := bootTestRuntime(t, board)

	require.NoError(t, r.Step())
	assert.Equal(t, uint64(1), r.Frames())
	assert.Equal(t, 1, board.LCD.Transfers())

	loc := r.Ball().Loc
	assert.Equal(t, image.Pt(sim.LCDWidth/2+2, sim.LCDHeight/2+3), loc)
	assert.True(t, board.LCD.Pixel(loc.X, loc.Y), "ball centre is dark")
	assert.False(t, board.LCD.Pixel(loc.X+30, loc.Y), "outside the ball is light")

	label := 0
	for y := 5; y < 21; y++ {
		for x := 10; x < 90; x++ {
			if board.LCD.Pixel(x, y) {
				label++
			}
		}
	}
	assert.Positive(t, label, "uptime label drawn")
	assert.Zero(t, r.Display().Outstanding())
}

func TestStepClearsPreviousBall(t *testing.T) {
	board := newTestBoard(t, nil)
	r, _ := bootTestRuntime(t, board)

	require.NoError(t, r.Step())
	first := r.Ball().Loc
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Step())
	}
	assert.False(t, board.LCD.Pixel(first.X, first.Y), "old position is cleared")
	assert.True(t, board.LCD.Pixel(r.Ball().Loc.X, r.Ball().Loc.Y))
}

func TestScenarioThroughRuntime(t *testing.T) {
	board := newTestBoard(t, nil)
	r, _ := bootTestRuntime(t, board)

	ball := r.Ball()
	for ball.Reflections() == 0 {
		require.NoError(t, r.Step())
		require.Less(t, r.Frames(), uint64(1000))
		ball = r.Ball()
	}
	assert.Equal(t, uint64(77), r.Frames())
	assert.Equal(t, image.Pt(sim.LCDWidth-14, sim.LCDHeight/2+3*77), ball.Loc)
	assert.Equal(t, image.Pt(-6, 3), ball.Vector)
	assert.Equal(t, 1, ball.Cursor)
}

func TestStepTraceLog(t *testing.T) {
	board := newTestBoard(t, func(o *sim.Options) { o.MillisPerTick = 1500 })
	handler, _ := newTestHandler()
	cfg := DefaultConfig()
	cfg.LogLevel = logrus.TraceLevel
	r, err := Boot(board.Board, board.Symbols, cfg, handler)
	require.NoError(t, err)

	require.NoError(t, r.Step())
	require.NoError(t, r.Step())
	out := board.UART.String()
	assert.Contains(t, out, "boot: heap")
	assert.Contains(t, out, "frame=2")
	assert.Contains(t, out, "ms=1500")
}

func TestI2CDivisor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint32(100), cfg.I2CDivisor())
	cfg.ClockHz = 12_000_000
	assert.Equal(t, uint32(12), cfg.I2CDivisor())
}

func TestBootConfigStatusBeforeHeap(t *testing.T) {
	// A heap that cannot be placed still leaves the status word behind.
	board := newTestBoard(t, func(o *sim.Options) {
		o.HeapStart = sim.SRAMBase
		o.HeapSize = 0x10000
	})
	handler, _ := newTestHandler()
	_, err := Boot(board.Board, board.Symbols, DefaultConfig(), handler)
	require.Error(t, err)

	assert.Equal(t, uint32(0x79), handler.Scratch.Word(failstop.SlotConfigStatus))
	assert.Zero(t, handler.Scratch.Word(failstop.SlotHeapSize))
	assert.Equal(t, []string{"sram.trigger", "i2c.init", "timer.init", "sram.status"}, board.Trace.Events())
}

func TestUptimeLabel(t *testing.T) {
	label := DefaultConfig().Label
	assert.Equal(t, "Uptime 0s", uptimeLabel(label, 999))
	assert.Equal(t, "Uptime 42s", uptimeLabel(label, 42_000))
	assert.Equal(t, "Uptime 3600s", uptimeLabel(label, 3_600_000), "no digit grouping")
}

func TestBallCopyIsIndependent(t *testing.T) {
	board := newTestBoard(t, nil)
	r, _ := bootTestRuntime(t, board)

	snapshot := r.Ball()
	snapshot.Table[0] = 99
	snapshot.Loc = image.Pt(0, 0)

	live := r.Ball()
	assert.Equal(t, 6, live.Table[0])
	assert.Equal(t, image.Pt(sim.LCDWidth/2, sim.LCDHeight/2), live.Loc)
}
