// Package dial decodes rotary pulse-dial trains into decimal digits.
package dial

import (
	"sync"
	"time"

	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/rs/zerolog"
)

const defaultPollInterval = 20 * time.Millisecond

// DigitHandler receives a decoded digit. It is invoked outside the
// reader's critical section so policy evaluation downstream cannot block
// edge intake.
type DigitHandler func(digit int)

// Config controls the reader's timing.
type Config struct {
	// PulsePin is the GPIO pin carrying rotary pulses (idle high, low
	// during a pulse).
	PulsePin int
	// DialActivePin names the optional off-normal switch pin. The reader
	// does not read this pin; decoding is the same whether or not it is
	// set.
	DialActivePin int
	// PulseTimeout is the quiescence window after the last pulse edge
	// before the accumulated count is consumed.
	PulseTimeout time.Duration
	// PollInterval is the coarse-resolution ticker used to detect
	// quiescence; it must not exceed 50ms.
	PollInterval time.Duration
}

// Reader implements pulse-accumulation-with-quiescence-timeout decoding.
type Reader struct {
	port    gpio.Port
	cfg     Config
	log     zerolog.Logger
	onDigit DigitHandler

	mu       sync.Mutex
	count    int
	lastEdge time.Time
	active   bool

	stop chan struct{}
	done chan struct{}
}

// New wires a Reader onto port's PulsePin. The caller must have already
// called port.ConfigureInput for PulsePin (idle-high, pulled up).
func New(port gpio.Port, cfg Config, onDigit DigitHandler, log zerolog.Logger) *Reader {
	if cfg.PulseTimeout <= 0 {
		cfg.PulseTimeout = 300 * time.Millisecond
	}
	if cfg.PollInterval <= 0 || cfg.PollInterval > 50*time.Millisecond {
		cfg.PollInterval = defaultPollInterval
	}

	r := &Reader{
		port:    port,
		cfg:     cfg,
		log:     log.With().Str("component", "dial").Logger(),
		onDigit: onDigit,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	return r
}

// Start registers the falling-edge handler and begins the quiescence
// poller. Start must be called once.
func (r *Reader) Start() error {
	if err := r.port.OnEdge(r.cfg.PulsePin, gpio.EdgeFalling, r.onEdge); err != nil {
		return err
	}
	go r.pollLoop()
	return nil
}

// Stop unregisters the edge handler and stops the poller.
func (r *Reader) Stop() error {
	close(r.stop)
	<-r.done
	return r.port.RemoveHandler(r.cfg.PulsePin)
}

func (r *Reader) onEdge(pin int, level gpio.Level) {
	r.mu.Lock()
	r.count++
	r.lastEdge = time.Now()
	r.active = true
	r.mu.Unlock()
}

func (r *Reader) pollLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			digit, ok := r.checkQuiescence(now)
			if ok && r.onDigit != nil {
				r.onDigit(digit)
			}
		}
	}
}

func (r *Reader) checkQuiescence(now time.Time) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return 0, false
	}
	if now.Sub(r.lastEdge) <= r.cfg.PulseTimeout {
		return 0, false
	}

	n := r.count
	r.count = 0
	r.active = false

	digit := n % 10
	r.log.Debug().Int("pulses", n).Int("digit", digit).Msg("decoded dial digit")
	return digit, true
}
