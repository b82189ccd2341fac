package dial_test

import (
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/dial"
	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const pulsePin = 17

func newTestReader(t *testing.T, onDigit dial.DigitHandler) (*gpio.Mock, *dial.Reader) {
	t.Helper()
	mock := gpio.NewMock()
	require.NoError(t, mock.ConfigureInput(pulsePin, gpio.PullUp))

	r := dial.New(mock, dial.Config{
		PulsePin:     pulsePin,
		PulseTimeout: 60 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, onDigit, zerolog.Nop())
	require.NoError(t, r.Start())
	t.Cleanup(func() { r.Stop() })
	return mock, r
}

func pulseN(mock *gpio.Mock, n int) {
	for i := 0; i < n; i++ {
		mock.SetLevel(pulsePin, gpio.Low)
		mock.SetLevel(pulsePin, gpio.High)
	}
}

func TestSinglePulseYieldsDigitOne(t *testing.T) {
	digits := make(chan int, 1)
	mock, _ := newTestReader(t, func(d int) { digits <- d })

	pulseN(mock, 1)

	require.Equal(t, 1, waitDigit(t, digits))
}

func TestTenPulsesYieldZero(t *testing.T) {
	digits := make(chan int, 1)
	mock, _ := newTestReader(t, func(d int) { digits <- d })

	pulseN(mock, 10)

	require.Equal(t, 0, waitDigit(t, digits))
}

func TestNoEdgesProducesNoDigit(t *testing.T) {
	digits := make(chan int, 1)
	newTestReader(t, func(d int) { digits <- d })

	select {
	case d := <-digits:
		t.Fatalf("unexpected digit %d", d)
	case <-time.After(120 * time.Millisecond):
	}
}

func waitDigit(t *testing.T, ch chan int) int {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for digit")
		return -1
	}
}
