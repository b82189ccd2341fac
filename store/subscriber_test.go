package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/jacob-meacham/rotary-voip/eventbus"
	"github.com/jacob-meacham/rotary-voip/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSinkPersistsCallLifecycle(t *testing.T) {
	db := openTestDB(t)
	bus := eventbus.New(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.Subscribe(ctx, bus, db, zerolog.Nop())

	bus.Publish(callmanager.CallStartedEvent{RecordID: 1, Direction: callmanager.Outbound, DialedNumber: "5551234567", Destination: "+15551234567"})
	bus.Publish(callmanager.CallEndedEvent{RecordID: 1, Status: callmanager.StatusCompleted, DurationSeconds: 30})

	require.Eventually(t, func() bool {
		recs, err := db.List(context.Background(), store.Filter{})
		return err == nil && len(recs) == 1 && recs[0].Status == callmanager.StatusCompleted
	}, time.Second, 5*time.Millisecond)
}
