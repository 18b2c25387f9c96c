package failstop

import (
	"errors"
	"fmt"

	"betrusted/heap"
)

// Code identifies which fatal path halted the core. Codes land in
// SlotFaultCode so the probe can tell the paths apart.
type Code uint32

const (
	CodeNone             Code = 0
	CodePanic            Code = 0xFA170001
	CodeAllocFailure     Code = 0xFA170002
	CodePeripheralsTaken Code = 0xFA170003
	CodeDeviceIO         Code = 0xFA170004
	CodeBoot             Code = 0xFA170005
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodePanic:
		return "panic"
	case CodeAllocFailure:
		return "alloc-failure"
	case CodePeripheralsTaken:
		return "peripherals-taken"
	case CodeDeviceIO:
		return "device-io"
	case CodeBoot:
		return "boot"
	}
	return fmt.Sprintf("code(%#x)", uint32(c))
}

// Fault tags an error with the fatal path it must take.
type Fault struct {
	Code Code
	Err  error
}

// New wraps err as a fault with the given code.
func New(code Code, err error) *Fault {
	return &Fault{Code: code, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return f.Code.String()
	}
	return fmt.Sprintf("%v: %v", f.Code, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// CodeOf classifies err. Allocation failures are recognised anywhere in
// the chain; anything unclassified is a logic violation.
func CodeOf(err error) Code {
	var allocErr *heap.AllocError
	if errors.As(err, &allocErr) {
		return CodeAllocFailure
	}
	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Code
	}
	return CodePanic
}
