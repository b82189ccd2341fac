package ringer_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/audio"
	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/jacob-meacham/rotary-voip/ringer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const enablePin = 27

type countingPlayer struct {
	plays int32
}

func (p *countingPlayer) Play(ctx context.Context, r io.Reader) error {
	atomic.AddInt32(&p.plays, 1)
	<-ctx.Done()
	return nil
}

func TestRingerCadence(t *testing.T) {
	mock := gpio.NewMock()
	require.NoError(t, mock.ConfigureOutput(enablePin))

	player := &countingPlayer{}
	r := ringer.New(mock, player, ringer.Config{
		EnablePin:    enablePin,
		RingOn:       30 * time.Millisecond,
		RingPause:    20 * time.Millisecond,
		RingWaveform: &audio.Waveform{SampleRate: 8000, PCM: make([]byte, 320)},
	}, zerolog.Nop())

	r.Start()
	require.Eventually(t, func() bool {
		lvl, _ := mock.Read(enablePin)
		return lvl == gpio.High
	}, time.Second, 5*time.Millisecond)

	require.True(t, r.IsRinging())

	time.Sleep(80 * time.Millisecond)
	r.Stop()

	require.False(t, r.IsRinging())
	lvl, err := mock.Read(enablePin)
	require.NoError(t, err)
	require.Equal(t, gpio.Low, lvl)
	require.GreaterOrEqual(t, atomic.LoadInt32(&player.plays), int32(1))
}

func TestRingerStopIsIdempotent(t *testing.T) {
	mock := gpio.NewMock()
	require.NoError(t, mock.ConfigureOutput(enablePin))

	r := ringer.New(mock, nil, ringer.Config{EnablePin: enablePin, RingOn: 10 * time.Millisecond, RingPause: 10 * time.Millisecond}, zerolog.Nop())
	r.Stop()
	r.Stop()
	require.False(t, r.IsRinging())
}
