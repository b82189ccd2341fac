package simclient_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/signaling"
	"github.com/jacob-meacham/rotary-voip/signaling/simclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stateRecorder struct {
	mu      sync.Mutex
	updates []signaling.StateUpdate
}

func (r *stateRecorder) handle(u signaling.StateUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *stateRecorder) has(state signaling.CallState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.updates {
		if u.State == state {
			return true
		}
	}
	return false
}

func TestPlaceCallConnectsByDefault(t *testing.T) {
	c := simclient.New(simclient.Options{CallConnectDelay: time.Millisecond}, zerolog.Nop())
	require.NoError(t, c.Register(context.Background()))

	rec := &stateRecorder{}
	c.OnCallState(rec.handle)

	_, err := c.PlaceCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.has(signaling.Connected) }, time.Second, time.Millisecond)
}

func TestPlaceCallHonorsBusyOutcome(t *testing.T) {
	c := simclient.New(simclient.Options{CallConnectDelay: time.Millisecond}, zerolog.Nop())
	require.NoError(t, c.Register(context.Background()))
	c.SetNextCallOutcome(simclient.OutcomeBusy)

	rec := &stateRecorder{}
	c.OnCallState(rec.handle)

	_, err := c.PlaceCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.has(signaling.Ended) }, time.Second, time.Millisecond)
}

func TestPlaceCallWhileActiveReturnsBusy(t *testing.T) {
	c := simclient.New(simclient.Options{}, zerolog.Nop())
	require.NoError(t, c.Register(context.Background()))

	_, err := c.PlaceCall(context.Background(), "+15551234567")
	require.NoError(t, err)

	_, err = c.PlaceCall(context.Background(), "+15559999999")
	require.ErrorIs(t, err, signaling.ErrBusy)
}

func TestSimulateIncomingInvokesHandler(t *testing.T) {
	c := simclient.New(simclient.Options{}, zerolog.Nop())

	var got string
	c.OnIncoming(func(call signaling.CallHandle, callerID string) {
		got = callerID
	})

	handle := c.SimulateIncoming("5551230000")
	require.NotEmpty(t, handle)
	require.Equal(t, "5551230000", got)
}
