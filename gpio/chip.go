package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warthog618/gpiod"
)

// edgeQueueDepth bounds the per-pin edge dispatch channel. Overflow drops
// the oldest queued edge and logs a warning, mirroring the event bus's
// slow-subscriber policy rather than introducing a second discipline.
const edgeQueueDepth = 16

type pinState struct {
	line      *gpiod.Line
	direction direction
	handler   EdgeHandler
	edgeType  Edge
	queue     chan edgeEvent
	stop      chan struct{}
}

type direction int

const (
	dirUnconfigured direction = iota
	dirInput
	dirOutput
)

type edgeEvent struct {
	level Level
}

// Chip is the hardware GPIO binding, backed by the Linux GPIO character
// device via github.com/warthog618/gpiod.
type Chip struct {
	mu   sync.Mutex
	chip *gpiod.Chip
	pins map[int]*pinState
	log  zerolog.Logger
}

// NewChip opens the named GPIO chip (e.g. "gpiochip0").
func NewChip(name string, log zerolog.Logger) (*Chip, error) {
	c, err := gpiod.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("gpio: open chip %q: %w", name, err)
	}
	return &Chip{
		chip: c,
		pins: make(map[int]*pinState),
		log:  log.With().Str("component", "gpio").Logger(),
	}, nil
}

func (c *Chip) ConfigureInput(pin int, pull Pull) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []gpiod.LineReqOption{gpiod.AsInput}
	switch pull {
	case PullUp:
		opts = append(opts, gpiod.WithPullUp)
	case PullDown:
		opts = append(opts, gpiod.WithPullDown)
	}

	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("gpio: configure input pin %d: %w", pin, err)
	}

	c.closeExistingLocked(pin)
	c.pins[pin] = &pinState{line: line, direction: dirInput}
	return nil
}

func (c *Chip) ConfigureOutput(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, err := c.chip.RequestLine(pin, gpiod.AsOutput(0))
	if err != nil {
		return fmt.Errorf("gpio: configure output pin %d: %w", pin, err)
	}

	c.closeExistingLocked(pin)
	c.pins[pin] = &pinState{line: line, direction: dirOutput}
	return nil
}

func (c *Chip) closeExistingLocked(pin int) {
	if existing, ok := c.pins[pin]; ok {
		c.removeHandlerLocked(pin, existing)
		existing.line.Close()
	}
}

func (c *Chip) Read(pin int) (Level, error) {
	c.mu.Lock()
	st, ok := c.pins[pin]
	c.mu.Unlock()
	if !ok {
		return Low, ErrPinUnconfigured
	}

	v, err := st.line.Value()
	if err != nil {
		return Low, fmt.Errorf("gpio: read pin %d: %w", pin, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

func (c *Chip) Write(pin int, level Level) error {
	c.mu.Lock()
	st, ok := c.pins[pin]
	c.mu.Unlock()
	if !ok {
		return ErrPinUnconfigured
	}
	if st.direction != dirOutput {
		return ErrDirectionMismatch
	}

	v := 0
	if level == High {
		v = 1
	}
	if err := st.line.SetValue(v); err != nil {
		return fmt.Errorf("gpio: write pin %d: %w", pin, err)
	}
	return nil
}

// OnEdge re-requests the line with edge detection enabled and dispatches
// each edge to handler from a dedicated per-pin worker goroutine, fed by a
// bounded, drop-oldest queue, so the gpiod notification goroutine is never
// held up by slow handler code.
func (c *Chip) OnEdge(pin int, edge Edge, handler EdgeHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pins[pin]
	if !ok {
		return ErrPinUnconfigured
	}
	if st.direction != dirInput {
		return ErrDirectionMismatch
	}

	c.removeHandlerLocked(pin, st)

	queue := make(chan edgeEvent, edgeQueueDepth)
	stop := make(chan struct{})

	edgeOpt := gpiod.WithBothEdges
	switch edge {
	case EdgeRising:
		edgeOpt = gpiod.WithRisingEdge
	case EdgeFalling:
		edgeOpt = gpiod.WithFallingEdge
	}

	newLine, err := c.chip.RequestLine(pin,
		gpiod.AsInput,
		edgeOpt,
		gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
			level := Low
			if evt.Type == gpiod.LineEventRisingEdge {
				level = High
			}
			select {
			case queue <- edgeEvent{level: level}:
			default:
				// drop oldest, then enqueue
				select {
				case <-queue:
				default:
				}
				select {
				case queue <- edgeEvent{level: level}:
				default:
				}
				c.log.Warn().Int("pin", pin).Msg("edge queue full, dropped oldest event")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("gpio: watch pin %d: %w", pin, err)
	}

	st.line.Close()
	st.line = newLine
	st.handler = handler
	st.edgeType = edge
	st.queue = queue
	st.stop = stop

	go func(pin int, st *pinState) {
		for {
			select {
			case ev := <-queue:
				st.handler(pin, ev.level)
			case <-stop:
				return
			}
		}
	}(pin, st)

	return nil
}

func (c *Chip) RemoveHandler(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.pins[pin]
	if !ok {
		return ErrPinUnconfigured
	}
	c.removeHandlerLocked(pin, st)
	return nil
}

func (c *Chip) removeHandlerLocked(pin int, st *pinState) {
	if st.stop != nil {
		close(st.stop)
		st.stop = nil
		st.handler = nil
		st.queue = nil
	}
}

func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for pin, st := range c.pins {
		c.removeHandlerLocked(pin, st)
		st.line.Close()
		delete(c.pins, pin)
	}
	return c.chip.Close()
}
