// Package ringer drives the ringer amplifier-enable output in a cadenced
// loop while playing a waveform on the process audio device.
package ringer

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jacob-meacham/rotary-voip/audio"
	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/rs/zerolog"
)

// Player renders PCM audio on the process-wide audio device. Play blocks
// until r is exhausted, the context is cancelled, or playback otherwise
// completes; a looping reader relies entirely on the context to bound
// playback length.
type Player interface {
	Play(ctx context.Context, r io.Reader) error
}

// Config controls cadence and hardware wiring.
type Config struct {
	EnablePin   int
	RingOn      time.Duration
	RingPause   time.Duration
	RingWaveform *audio.Waveform
}

// Ringer implements the cadenced ring/silence loop described by the call
// manager's Ringing state.
type Ringer struct {
	port   gpio.Port
	player Player
	cfg    Config
	log    zerolog.Logger

	mu      sync.Mutex
	ringing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(port gpio.Port, player Player, cfg Config, log zerolog.Logger) *Ringer {
	return &Ringer{
		port:   port,
		player: player,
		cfg:    cfg,
		log:    log.With().Str("component", "ringer").Logger(),
	}
}

// Start begins the cadenced ring loop; a no-op if already ringing.
func (r *Ringer) Start() {
	r.mu.Lock()
	if r.ringing {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.ringing = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx)
}

// Stop clears the ringing state, cancels in-flight playback, and forces
// the enable output low.
func (r *Ringer) Stop() {
	r.mu.Lock()
	if !r.ringing {
		r.mu.Unlock()
		return
	}
	r.ringing = false
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	if err := r.port.Write(r.cfg.EnablePin, gpio.Low); err != nil {
		r.log.Error().Err(err).Msg("failed to force ringer enable low")
	}
}

func (r *Ringer) IsRinging() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ringing
}

func (r *Ringer) loop(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := r.port.Write(r.cfg.EnablePin, gpio.High); err != nil {
			r.log.Error().Err(err).Msg("failed to raise ringer enable")
		}

		r.ringCycle(ctx)

		if err := r.port.Write(r.cfg.EnablePin, gpio.Low); err != nil {
			r.log.Error().Err(err).Msg("failed to lower ringer enable")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.RingPause):
		}
	}
}

func (r *Ringer) ringCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, r.cfg.RingOn)
	defer cancel()

	if r.cfg.RingWaveform == nil || r.player == nil {
		<-cycleCtx.Done()
		return
	}

	reader := audio.NewLoopingReader(r.cfg.RingWaveform)
	if err := r.player.Play(cycleCtx, reader); err != nil && cycleCtx.Err() == nil {
		r.log.Error().Err(err).Msg("ring playback failed")
	}
}
