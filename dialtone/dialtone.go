// Package dialtone plays the locally-generated dial, error, and busy
// tones on the process audio device, reusing the ringer's looping
// waveform playback path.
package dialtone

import (
	"context"
	"sync"

	"github.com/jacob-meacham/rotary-voip/audio"
	"github.com/jacob-meacham/rotary-voip/ringer"
	"github.com/rs/zerolog"
)

// Config names the waveform for each tone. A nil waveform makes the
// corresponding Play* a no-op, so a deployment can omit tones it does
// not have assets for.
type Config struct {
	DialTone  *audio.Waveform
	ErrorTone *audio.Waveform
	BusyTone  *audio.Waveform
}

// Player implements callmanager.TonePlayer against ringer.Player.
type Player struct {
	player ringer.Player
	cfg    Config
	log    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(player ringer.Player, cfg Config, log zerolog.Logger) *Player {
	return &Player{
		player: player,
		cfg:    cfg,
		log:    log.With().Str("component", "dialtone").Logger(),
	}
}

// PlayDialTone starts looping playback of the dial tone, stopping any
// tone already playing.
func (p *Player) PlayDialTone() { p.play(p.cfg.DialTone) }

// PlayErrorTone starts looping playback of the error (reorder) tone.
func (p *Player) PlayErrorTone() { p.play(p.cfg.ErrorTone) }

// PlayBusyTone starts looping playback of the busy tone.
func (p *Player) PlayBusyTone() { p.play(p.cfg.BusyTone) }

func (p *Player) play(w *audio.Waveform) {
	p.Stop()
	if w == nil || p.player == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		reader := audio.NewLoopingReader(w)
		if err := p.player.Play(ctx, reader); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("tone playback failed")
		}
	}()
}

// Stop cancels any tone currently playing; a no-op if none is.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
