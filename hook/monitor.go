// Package hook debounces the hook-switch line and reports pickup/hangup
// transitions.
package hook

import (
	"sync"
	"time"

	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/rs/zerolog"
)

const defaultDebounce = 50 * time.Millisecond

// Handler is invoked on a confirmed hook transition.
type Handler func()

// Config controls the monitor's timing and pin.
type Config struct {
	// HookPin carries the hook-switch state: high = on-hook, low = off-hook.
	HookPin int
	// DebounceTime is how long a new level must persist before it is
	// confirmed.
	DebounceTime time.Duration
}

// Monitor implements deferred-confirmation debouncing over the hook line.
type Monitor struct {
	port gpio.Port
	cfg  Config
	log  zerolog.Logger

	onPickup Handler
	onHangup Handler

	mu        sync.Mutex
	confirmed gpio.Level
	timer     *time.Timer
}

// New samples the initial confirmed level at construction, per the
// algorithm's requirement. The caller must have configured HookPin as an
// input beforehand.
func New(port gpio.Port, cfg Config, onPickup, onHangup Handler, log zerolog.Logger) (*Monitor, error) {
	if cfg.DebounceTime <= 0 {
		cfg.DebounceTime = defaultDebounce
	}

	initial, err := port.Read(cfg.HookPin)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		port:      port,
		cfg:       cfg,
		log:       log.With().Str("component", "hook").Logger(),
		onPickup:  onPickup,
		onHangup:  onHangup,
		confirmed: initial,
	}, nil
}

// Start registers the both-edges handler.
func (m *Monitor) Start() error {
	return m.port.OnEdge(m.cfg.HookPin, gpio.EdgeBoth, m.onEdge)
}

// Stop unregisters the handler and cancels any pending debounce timer.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	return m.port.RemoveHandler(m.cfg.HookPin)
}

func (m *Monitor) onEdge(pin int, level gpio.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.cfg.DebounceTime, m.onDebounceComplete)
}

func (m *Monitor) onDebounceComplete() {
	sampled, err := m.port.Read(m.cfg.HookPin)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to sample hook line at debounce")
		return
	}

	m.mu.Lock()
	if sampled == m.confirmed {
		m.mu.Unlock()
		return
	}
	m.confirmed = sampled
	m.mu.Unlock()

	// High = on-hook, low = off-hook: a transition to Low is a pickup.
	if sampled == gpio.Low {
		if m.onPickup != nil {
			m.onPickup()
		}
	} else {
		if m.onHangup != nil {
			m.onHangup()
		}
	}
}
