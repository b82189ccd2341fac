package callmanager_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/jacob-meacham/rotary-voip/signaling/simclient"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeRing struct {
	mu      sync.Mutex
	started int
	ringing bool
}

func (f *fakeRing) Start()          { f.mu.Lock(); f.started++; f.ringing = true; f.mu.Unlock() }
func (f *fakeRing) Stop()           { f.mu.Lock(); f.ringing = false; f.mu.Unlock() }
func (f *fakeRing) IsRinging() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.ringing }

type fakeTones struct {
	mu        sync.Mutex
	dialTones int
	errTones  int
	busyTones int
}

func (f *fakeTones) PlayDialTone()  { f.mu.Lock(); f.dialTones++; f.mu.Unlock() }
func (f *fakeTones) PlayErrorTone() { f.mu.Lock(); f.errTones++; f.mu.Unlock() }
func (f *fakeTones) PlayBusyTone()  { f.mu.Lock(); f.busyTones++; f.mu.Unlock() }
func (f *fakeTones) Stop()          {}

type recordingBus struct {
	mu     sync.Mutex
	events []callmanager.Event
}

func (b *recordingBus) Publish(ev callmanager.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recordingBus) snapshot() []callmanager.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]callmanager.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBus) hasEndedStatus(t *testing.T, status callmanager.CallStatus) bool {
	for _, ev := range b.snapshot() {
		if e, ok := ev.(callmanager.CallEndedEvent); ok && e.Status == status {
			return true
		}
	}
	return false
}

type harness struct {
	mgr   *callmanager.Manager
	sig   *simclient.Client
	ring  *fakeRing
	tones *fakeTones
	bus   *recordingBus
	stop  context.CancelFunc
}

func newHarness(t *testing.T, cfg callmanager.Config) *harness {
	t.Helper()
	sig := simclient.New(simclient.Options{}, zerolog.Nop())
	require.NoError(t, sig.Register(context.Background()))

	h := &harness{
		sig:   sig,
		ring:  &fakeRing{},
		tones: &fakeTones{},
		bus:   &recordingBus{},
	}
	if cfg.InterDigitTimeout == 0 {
		cfg.InterDigitTimeout = 20 * time.Millisecond
	}
	h.mgr = callmanager.New(sig, h.ring, h.tones, h.bus, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go h.mgr.Run(ctx)
	return h
}

func (h *harness) dial(t *testing.T, digits string) {
	t.Helper()
	h.mgr.OnHookPickup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.OffHookWaiting }, time.Second, time.Millisecond)
	for _, d := range digits {
		h.mgr.OnDigit(int(d - '0'))
	}
}

func TestOutboundCallToAllowedDestinationConnects(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}})
	defer h.stop()

	h.dial(t, "5551234567")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Calling }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Connected }, time.Second, time.Millisecond)

	h.mgr.OnHookHangup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Idle }, time.Second, time.Millisecond)
	require.True(t, h.bus.hasEndedStatus(t, callmanager.StatusCompleted))
}

func TestOutboundCallToDisallowedDestinationEntersError(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{}})
	defer h.stop()

	h.dial(t, "5551234567")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Error }, time.Second, time.Millisecond)
	require.Equal(t, 1, h.tones.errTones)

	h.mgr.OnHookHangup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Idle }, time.Second, time.Millisecond)
}

func TestSpeedDialResolvesMappedDestination(t *testing.T) {
	h := newHarness(t, callmanager.Config{SpeedDial: map[string]string{"1": "+15551234567"}})
	defer h.stop()

	h.dial(t, "1")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Connected }, time.Second, time.Millisecond)
}

func TestRemoteBusyDrivesErrorState(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}})
	defer h.stop()

	h.sig.SetNextCallOutcome(simclient.OutcomeBusy)
	h.dial(t, "5551234567")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Error }, time.Second, time.Millisecond)
	require.True(t, h.bus.hasEndedStatus(t, callmanager.StatusFailed))
}

func TestIncomingCallRingsAndAnswers(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}})
	defer h.stop()

	h.sig.SimulateIncoming("5559990000")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Ringing }, time.Second, time.Millisecond)
	require.True(t, h.ring.IsRinging())

	h.mgr.OnHookPickup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Connected }, time.Second, time.Millisecond)
	require.False(t, h.ring.IsRinging())
}

func TestIncomingCallMissedWhenCallerHangsUpBeforePickup(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}})
	defer h.stop()

	call := h.sig.SimulateIncoming("5559990000")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Ringing }, time.Second, time.Millisecond)

	h.sig.SimulateRemoteHangup(call)
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Idle }, time.Second, time.Millisecond)
	require.True(t, h.bus.hasEndedStatus(t, callmanager.StatusMissed))
}

func TestDigitBufferCapsAtTwentyDigits(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}, InterDigitTimeout: time.Hour})
	defer h.stop()

	h.mgr.OnHookPickup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.OffHookWaiting }, time.Second, time.Millisecond)
	for i := 0; i < 25; i++ {
		h.mgr.OnDigit(i % 10)
	}
	// Digits are handled asynchronously by Run: wait for the buffer to
	// fill, then give the digits past the bound time to drain.
	require.Eventually(t, func() bool { return h.mgr.DigitBufferLen() == 20 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	events := h.bus.snapshot()
	count := 0
	for _, ev := range events {
		if _, ok := ev.(callmanager.DigitDialedEvent); ok {
			count++
		}
	}
	require.Equal(t, 20, count)
}

func TestRemoteHangupAfterConnectedReturnsToOffHookWaitingNotError(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}})
	defer h.stop()

	call := h.sig.SimulateIncoming("5559990000")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Ringing }, time.Second, time.Millisecond)

	h.mgr.OnHookPickup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Connected }, time.Second, time.Millisecond)

	h.sig.SimulateRemoteHangup(call)
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.OffHookWaiting }, time.Second, time.Millisecond)
	require.Never(t, func() bool { return h.mgr.State() == callmanager.Error }, 50*time.Millisecond, time.Millisecond)
	require.Equal(t, 1, h.tones.dialTones)
	require.True(t, h.bus.hasEndedStatus(t, callmanager.StatusCompleted))

	h.mgr.OnHookHangup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Idle }, time.Second, time.Millisecond)

	h.sig.SimulateIncoming("5559990001")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Ringing }, time.Second, time.Millisecond)
	require.True(t, h.ring.IsRinging())
}

func TestIncomingCallFromDisallowedCallerIsRejected(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"5551112222"}})
	defer h.stop()

	h.sig.SimulateIncoming("5559990000")

	require.Eventually(t, func() bool {
		return h.bus.hasEndedStatus(t, callmanager.StatusRejected)
	}, time.Second, time.Millisecond)
	require.Never(t, func() bool { return h.mgr.State() == callmanager.Ringing }, 50*time.Millisecond, time.Millisecond)
	require.False(t, h.ring.IsRinging())
	require.Equal(t, 0, h.ring.started)
	require.Equal(t, callmanager.Idle, h.mgr.State())
}

func TestHangupDuringDialingAbortsWithoutCalling(t *testing.T) {
	h := newHarness(t, callmanager.Config{AllowList: []string{"*"}, InterDigitTimeout: time.Hour})
	defer h.stop()

	h.dial(t, "555")
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Dialing }, time.Second, time.Millisecond)

	h.mgr.OnHookHangup()
	require.Eventually(t, func() bool { return h.mgr.State() == callmanager.Idle }, time.Second, time.Millisecond)
}
