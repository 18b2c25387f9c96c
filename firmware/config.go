package firmware

import (
	"image"

	"github.com/sirupsen/logrus"
)

// Config holds the board-level constants the runtime boots with.
type Config struct {
	// ClockHz is the system clock. The I2C divisor and LCD clock derive from it.
	ClockHz uint32
	// Radius is the ball radius in pixels.
	Radius int
	// ArenaTop is the first row below the status line.
	ArenaTop int
	// Label is the uptime format; it receives whole seconds as a string.
	Label string
	// LabelAt is the top-left corner of the uptime label.
	LabelAt image.Point
	// LogLevel is the UART log level.
	LogLevel logrus.Level
}

// DefaultConfig returns the precursor board settings.
func DefaultConfig() Config {
	return Config{
		ClockHz:  100_000_000,
		Radius:   14,
		ArenaTop: 50,
		Label:    "Uptime %ss",
		LabelAt:  image.Pt(10, 5),
		LogLevel: logrus.InfoLevel,
	}
}

// I2CDivisor is the clock expressed in MHz, as the I2C block expects it.
func (c Config) I2CDivisor() uint32 {
	return c.ClockHz / 1_000_000
}
