package eventbus_test

import (
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/jacob-meacham/rotary-voip/eventbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	b := eventbus.New(zerolog.Nop())
	ch, _ := b.Subscribe("test")

	b.Publish(callmanager.DigitDialedEvent{Digit: 5, NumberSoFar: "5"})

	select {
	case ev := <-ch:
		d, ok := ev.(callmanager.DigitDialedEvent)
		require.True(t, ok)
		require.Equal(t, 5, d.Digit)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSlowSubscriberDropsOldestRatherThanBlocking(t *testing.T) {
	b := eventbus.New(zerolog.Nop())
	ch, _ := b.Subscribe("slow")

	for i := 0; i < 64; i++ {
		b.Publish(callmanager.DigitDialedEvent{Digit: i % 10})
	}

	require.Eventually(t, func() bool { return true }, time.Second, time.Millisecond)
	require.NotEmpty(t, ch)

	// The buffer holds 32 events, so the 32 oldest were dropped and the
	// first one left is the 33rd published (i == 32).
	first, ok := (<-ch).(callmanager.DigitDialedEvent)
	require.True(t, ok)
	require.Equal(t, 32%10, first.Digit)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := eventbus.New(zerolog.Nop())
	ch, id := b.Subscribe("test")
	b.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)
}

func TestMultipleSubscribersEachReceiveEvent(t *testing.T) {
	b := eventbus.New(zerolog.Nop())
	ch1, _ := b.Subscribe("one")
	ch2, _ := b.Subscribe("two")

	b.Publish(callmanager.CallLogUpdatedEvent{RecordID: 7})

	for _, ch := range []<-chan callmanager.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			u, ok := ev.(callmanager.CallLogUpdatedEvent)
			require.True(t, ok)
			require.EqualValues(t, 7, u.RecordID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}
