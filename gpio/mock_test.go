package gpio_test

import (
	"testing"

	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/stretchr/testify/require"
)

func TestMockReadWrite(t *testing.T) {
	m := gpio.NewMock()
	require.NoError(t, m.ConfigureOutput(1))
	require.NoError(t, m.Write(1, gpio.High))

	lvl, err := m.Read(1)
	require.NoError(t, err)
	require.Equal(t, gpio.High, lvl)
}

func TestMockUnconfiguredPin(t *testing.T) {
	m := gpio.NewMock()
	_, err := m.Read(3)
	require.ErrorIs(t, err, gpio.ErrPinUnconfigured)
}

func TestMockDirectionMismatch(t *testing.T) {
	m := gpio.NewMock()
	require.NoError(t, m.ConfigureInput(2, gpio.PullUp))
	require.ErrorIs(t, m.Write(2, gpio.Low), gpio.ErrDirectionMismatch)
}

func TestMockOnEdgeFalling(t *testing.T) {
	m := gpio.NewMock()
	require.NoError(t, m.ConfigureInput(4, gpio.PullUp))

	var got []gpio.Level
	require.NoError(t, m.OnEdge(4, gpio.EdgeFalling, func(pin int, level gpio.Level) {
		got = append(got, level)
	}))

	m.SetLevel(4, gpio.Low)
	m.SetLevel(4, gpio.High)
	m.SetLevel(4, gpio.Low)

	require.Equal(t, []gpio.Level{gpio.Low, gpio.Low}, got)
}

func TestMockRemoveHandler(t *testing.T) {
	m := gpio.NewMock()
	require.NoError(t, m.ConfigureInput(5, gpio.PullUp))

	calls := 0
	require.NoError(t, m.OnEdge(5, gpio.EdgeBoth, func(pin int, level gpio.Level) {
		calls++
	}))
	require.NoError(t, m.RemoveHandler(5))

	m.SetLevel(5, gpio.Low)
	require.Equal(t, 0, calls)
}
