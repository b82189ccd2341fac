package hook_test

import (
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/jacob-meacham/rotary-voip/hook"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const hookPin = 22

func newMonitor(t *testing.T, onPickup, onHangup hook.Handler) (*gpio.Mock, *hook.Monitor) {
	t.Helper()
	mock := gpio.NewMock()
	require.NoError(t, mock.ConfigureInput(hookPin, gpio.PullUp))

	m, err := hook.New(mock, hook.Config{HookPin: hookPin, DebounceTime: 30 * time.Millisecond}, onPickup, onHangup, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Stop() })
	return mock, m
}

func TestPickupFiresAfterDebounce(t *testing.T) {
	pickups := make(chan struct{}, 1)
	mock, _ := newMonitor(t, func() { pickups <- struct{}{} }, nil)

	mock.SetLevel(hookPin, gpio.Low)

	select {
	case <-pickups:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected pickup event")
	}
}

func TestBounceShorterThanDebounceProducesNoEvent(t *testing.T) {
	pickups := make(chan struct{}, 4)
	mock, _ := newMonitor(t, func() { pickups <- struct{}{} }, nil)

	mock.SetLevel(hookPin, gpio.Low)
	time.Sleep(5 * time.Millisecond)
	mock.SetLevel(hookPin, gpio.High)
	time.Sleep(5 * time.Millisecond)
	mock.SetLevel(hookPin, gpio.Low)
	time.Sleep(5 * time.Millisecond)
	mock.SetLevel(hookPin, gpio.High)

	select {
	case <-pickups:
		t.Fatal("bounce should not have produced a confirmed event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHangupAfterPickup(t *testing.T) {
	pickups := make(chan struct{}, 1)
	hangups := make(chan struct{}, 1)
	mock, _ := newMonitor(t, func() { pickups <- struct{}{} }, func() { hangups <- struct{}{} })

	mock.SetLevel(hookPin, gpio.Low)
	select {
	case <-pickups:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected pickup")
	}

	mock.SetLevel(hookPin, gpio.High)
	select {
	case <-hangups:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected hangup")
	}
}
