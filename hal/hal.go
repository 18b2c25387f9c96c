// Package hal describes the peripherals the runtime consumes. Register
// sequencing lives behind these interfaces and is not part of the runtime.
package hal

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrPeripheralsTaken is returned by a second Take.
var ErrPeripheralsTaken = errors.New("hal: peripherals already taken")

// SRAM is the external SRAM controller's configuration block.
type SRAM interface {
	// TriggerConfigRead starts the one-shot configuration check.
	TriggerConfigRead()
	// ConfigStatus returns the captured config-status register.
	ConfigStatus() uint32
}

// I2C is the I2C master.
type I2C interface {
	// Init brings up the bus. clockDivisor is the system clock in MHz.
	Init(clockDivisor uint32) error
}

// Timer is the free-running tick timer.
type Timer interface {
	Init() error
	ElapsedMillis() uint64
}

// LCD is the memory LCD pixel pump.
type LCD interface {
	Init(clockHz uint32) error
	Size() (width, height int)
	// Transfer pushes a full 1-bpp frame, MSB first, rows padded to bytes.
	Transfer(frame []byte) error
}

// UART is the debug console.
type UART interface {
	io.Writer
}

// Peripherals is the capability to drive every memory-mapped register.
// Whoever holds it owns the hardware.
type Peripherals struct {
	SRAM  SRAM
	I2C   I2C
	Timer Timer
	LCD   LCD
	UART  UART
}

// Board hands out the peripheral set exactly once per process lifetime.
type Board struct {
	taken atomic.Bool
	p     *Peripherals
}

// NewBoard wraps a peripheral set so it can be taken once.
func NewBoard(p *Peripherals) *Board {
	return &Board{p: p}
}

// Take returns the peripheral set. Every call after the first fails.
func (b *Board) Take() (*Peripherals, error) {
	if !b.taken.CompareAndSwap(false, true) {
		return nil, ErrPeripheralsTaken
	}
	return b.p, nil
}

// Taken reports whether the peripheral set has been handed out.
func (b *Board) Taken() bool {
	return b.taken.Load()
}
