package sim

import "errors"

var (
	// ErrInjected is returned by a device told to fail.
	ErrInjected = errors.New("sim: injected device failure")
	// ErrNotInitialized is returned by a device used before Init.
	ErrNotInitialized = errors.New("sim: device not initialized")
	// ErrBadDivisor is returned by the I2C block for a zero clock divisor.
	ErrBadDivisor = errors.New("sim: i2c clock divisor must be non-zero")
)
