package gpio

import (
	"sync"
	"time"
)

type mockPin struct {
	direction direction
	pull      Pull
	level     Level
	handler   EdgeHandler
	edgeType  Edge
}

// Mock is an in-memory Port used by tests. SetLevel and Pulse let a test
// drive scripted waveforms without real hardware.
type Mock struct {
	mu   sync.Mutex
	pins map[int]*mockPin
}

func NewMock() *Mock {
	return &Mock{pins: make(map[int]*mockPin)}
}

func (m *Mock) ConfigureInput(pin int, pull Pull) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	level := Low
	if pull == PullUp {
		level = High
	}
	m.pins[pin] = &mockPin{direction: dirInput, pull: pull, level: level}
	return nil
}

func (m *Mock) ConfigureOutput(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins[pin] = &mockPin{direction: dirOutput, level: Low}
	return nil
}

func (m *Mock) Read(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[pin]
	if !ok {
		return Low, ErrPinUnconfigured
	}
	return p.level, nil
}

func (m *Mock) Write(pin int, level Level) error {
	m.mu.Lock()
	p, ok := m.pins[pin]
	if !ok {
		m.mu.Unlock()
		return ErrPinUnconfigured
	}
	if p.direction != dirOutput {
		m.mu.Unlock()
		return ErrDirectionMismatch
	}
	p.level = level
	m.mu.Unlock()
	return nil
}

func (m *Mock) OnEdge(pin int, edge Edge, handler EdgeHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[pin]
	if !ok {
		return ErrPinUnconfigured
	}
	if p.direction != dirInput {
		return ErrDirectionMismatch
	}
	p.handler = handler
	p.edgeType = edge
	return nil
}

func (m *Mock) RemoveHandler(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pins[pin]
	if !ok {
		return ErrPinUnconfigured
	}
	p.handler = nil
	return nil
}

func (m *Mock) Close() error {
	return nil
}

// SetLevel forces a pin to level, invoking any registered edge handler if
// the transition matches its edge filter.
func (m *Mock) SetLevel(pin int, level Level) {
	m.mu.Lock()
	p, ok := m.pins[pin]
	if !ok {
		m.mu.Unlock()
		return
	}
	old := p.level
	p.level = level
	handler := p.handler
	edgeType := p.edgeType
	m.mu.Unlock()

	if old == level || handler == nil {
		return
	}
	if !matchesEdge(edgeType, old, level) {
		return
	}
	handler(pin, level)
}

func matchesEdge(edge Edge, old, new Level) bool {
	switch edge {
	case EdgeRising:
		return old == Low && new == High
	case EdgeFalling:
		return old == High && new == Low
	default:
		return true
	}
}

// Pulse drives pin low for lowDur then high for highDur, as a rotary dial
// pulse or a hook bounce would.
func (m *Mock) Pulse(pin int, lowDur, highDur time.Duration) {
	m.SetLevel(pin, Low)
	time.Sleep(lowDur)
	m.SetLevel(pin, High)
	time.Sleep(highDur)
}
