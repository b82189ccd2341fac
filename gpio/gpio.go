// Package gpio provides a uniform GPIO port abstraction with a hardware
// binding (Chip) and an in-memory mock for tests.
package gpio

import "errors"

// Pull configures the internal bias of an input pin.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Level is a digital pin level.
type Level int

const (
	Low Level = iota
	High
)

// Edge selects which transitions an OnEdge handler is notified for.
type Edge int

const (
	EdgeRising Edge = iota
	EdgeFalling
	EdgeBoth
)

var (
	ErrPinUnconfigured   = errors.New("gpio: pin not configured")
	ErrDirectionMismatch = errors.New("gpio: pin configured for the wrong direction")
)

// EdgeHandler is invoked from a driver-owned notification context. It must
// return promptly and must not block on the port it was registered against.
type EdgeHandler func(pin int, level Level)

// Port is the abstract GPIO surface the rest of the core depends on. Chip
// implements it against real hardware; Mock implements it for tests.
type Port interface {
	ConfigureInput(pin int, pull Pull) error
	ConfigureOutput(pin int) error
	Read(pin int) (Level, error)
	Write(pin int, level Level) error
	OnEdge(pin int, edge Edge, handler EdgeHandler) error
	RemoveHandler(pin int) error
	Close() error
}
