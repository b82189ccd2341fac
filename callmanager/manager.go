package callmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacob-meacham/rotary-voip/signaling"
	"github.com/rs/zerolog"
)

// maxDigits is the dial-buffer ceiling; the 21st digit in a run is
// silently dropped but still resets the inter-digit timer.
const maxDigits = 20

// RingController drives the physical ringer for inbound calls.
type RingController interface {
	Start()
	Stop()
	IsRinging() bool
}

// TonePlayer renders a locally-generated tone (dial, error, busy) on the
// process audio device until Stop is called.
type TonePlayer interface {
	PlayDialTone()
	PlayErrorTone()
	PlayBusyTone()
	Stop()
}

// Config holds the manager's dialing policy and timing knobs.
type Config struct {
	SpeedDial          map[string]string
	AllowList          []string
	InterDigitTimeout  time.Duration
	CallAttemptTimeout time.Duration
}

type inputKind int

const (
	evHookPickup inputKind = iota
	evHookHangup
	evDigit
	evInterDigitTimeout
	evCallStateConnected
	evCallStateEnded
	evIncomingCall
	evCallAttemptTimeout
)

type inputEvent struct {
	kind     inputKind
	digit    int
	call     signaling.CallHandle
	callerID string
	cause    signaling.EndCause
}

// Manager is the call-state machine. It owns no hardware or signalling
// resources directly; callers wire dial.Reader and hook.Monitor into its
// public On* methods, and New registers the signalling client's callbacks.
type Manager struct {
	sig   signaling.Client
	ring  RingController
	tones TonePlayer
	bus   Publisher
	cfg   Config
	log   zerolog.Logger

	hookCh chan inputEvent
	genCh  chan inputEvent

	// The remaining fields are only ever touched from the Run goroutine,
	// so they need no lock.
	state       PhoneState
	digits      []byte
	runCtx      context.Context
	interDigit  *time.Timer
	callAttempt *time.Timer

	nextRecordID  int64
	recordID      int64
	direction     Direction
	callerID      string
	dialedNumber  string
	destination   string
	speedDialCode string
	activeCall    signaling.CallHandle
	startedAt     time.Time
	answeredAt    time.Time
	offHook       bool

	digitsLen atomic.Int32
	stateMu   sync.RWMutex
}

// New constructs a Manager. sig's OnIncoming/OnCallState handlers are
// overwritten to route into the manager; callers must not also register
// their own.
func New(sig signaling.Client, ring RingController, tones TonePlayer, bus Publisher, cfg Config, log zerolog.Logger) *Manager {
	m := &Manager{
		sig:    sig,
		ring:   ring,
		tones:  tones,
		bus:    bus,
		cfg:    cfg,
		log:    log.With().Str("component", "callmanager").Logger(),
		hookCh: make(chan inputEvent, 8),
		genCh:  make(chan inputEvent, 64),
		state:  Idle,
	}

	sig.OnIncoming(func(call signaling.CallHandle, callerID string) {
		m.genCh <- inputEvent{kind: evIncomingCall, call: call, callerID: callerID}
	})
	sig.OnCallState(func(update signaling.StateUpdate) {
		switch update.State {
		case signaling.Connected:
			m.genCh <- inputEvent{kind: evCallStateConnected, call: update.Call}
		case signaling.Ended:
			m.genCh <- inputEvent{kind: evCallStateEnded, call: update.Call, cause: update.Cause}
		}
	})

	return m
}

// State returns the current phone state. Safe for concurrent use.
func (m *Manager) State() PhoneState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// DigitBufferLen returns the number of digits accumulated for the call
// currently being dialed. Safe for concurrent use.
func (m *Manager) DigitBufferLen() int {
	return int(m.digitsLen.Load())
}

func (m *Manager) setState(s PhoneState, errMsg string) {
	m.stateMu.Lock()
	old := m.state
	m.state = s
	m.stateMu.Unlock()

	if old == s {
		return
	}
	m.log.Info().Stringer("from", old).Stringer("to", s).Msg("state transition")
	m.bus.Publish(PhoneStateChangedEvent{Old: old, New: s, CurrentNumber: string(m.digits), Err: errMsg})
}

// OnHookPickup is called by the hook monitor when the handset is lifted.
func (m *Manager) OnHookPickup() { m.hookCh <- inputEvent{kind: evHookPickup} }

// OnHookHangup is called by the hook monitor when the handset is set down.
func (m *Manager) OnHookHangup() { m.hookCh <- inputEvent{kind: evHookHangup} }

// OnDigit is called by the dial reader for each decoded digit.
func (m *Manager) OnDigit(digit int) { m.genCh <- inputEvent{kind: evDigit, digit: digit} }

// Run drains the input queue until ctx is cancelled. Hook events are
// serviced ahead of any queued digit or call-state event whenever both
// are pending, so a hang-up always preempts in-flight dialing.
func (m *Manager) Run(ctx context.Context) {
	m.runCtx = ctx
	for {
		select {
		case ev := <-m.hookCh:
			m.handle(ev)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			m.cancelTimers()
			return
		case ev := <-m.hookCh:
			m.handle(ev)
		case ev := <-m.genCh:
			m.handle(ev)
		}
	}
}

func (m *Manager) cancelTimers() {
	if m.interDigit != nil {
		m.interDigit.Stop()
	}
	if m.callAttempt != nil {
		m.callAttempt.Stop()
	}
}

func (m *Manager) handle(ev inputEvent) {
	switch ev.kind {
	case evHookPickup:
		m.onHookPickup()
	case evHookHangup:
		m.onHookHangup()
	case evDigit:
		m.onDigit(ev.digit)
	case evInterDigitTimeout:
		m.onInterDigitTimeout()
	case evCallStateConnected:
		m.onCallConnected(ev.call)
	case evCallStateEnded:
		m.onCallEnded(ev.call, ev.cause)
	case evIncomingCall:
		m.onIncomingCall(ev.call, ev.callerID)
	case evCallAttemptTimeout:
		m.onCallAttemptTimeout()
	}
}

func (m *Manager) onHookPickup() {
	m.offHook = true

	switch m.State() {
	case Idle:
		m.setState(OffHookWaiting, "")
		m.tones.PlayDialTone()
	case Ringing:
		if m.activeCall == "" {
			return
		}
		if err := m.sig.Answer(m.runCtx, m.activeCall); err != nil {
			m.log.Error().Err(err).Msg("answer failed")
		}
		m.ring.Stop()
		m.answeredAt = now()
		m.setState(Connected, "")
	}
}

func (m *Manager) onHookHangup() {
	m.offHook = false

	if m.State() == Idle {
		return
	}

	m.cancelTimers()

	if m.activeCall != "" {
		if err := m.sig.Hangup(m.runCtx, m.activeCall); err != nil {
			m.log.Warn().Err(err).Msg("hangup failed")
		}
	}
	m.ring.Stop()
	m.tones.Stop()

	if m.recordID != 0 {
		if m.answeredAt.After(m.startedAt) {
			dur := int(now().Sub(m.answeredAt).Seconds())
			m.closeRecordWithDuration(StatusCompleted, "", dur)
		} else {
			m.closeRecord(StatusFailed, "")
		}
	}

	m.digits = m.digits[:0]
	m.digitsLen.Store(0)
	m.activeCall = ""
	m.setState(Idle, "")
}

func (m *Manager) onDigit(digit int) {
	switch m.State() {
	case OffHookWaiting:
		m.tones.Stop()
		m.digits = append(m.digits, digitByte(digit))
		m.digitsLen.Store(int32(len(m.digits)))
		m.armInterDigitTimer()
		m.setState(Dialing, "")
		m.bus.Publish(DigitDialedEvent{Digit: digit, NumberSoFar: string(m.digits)})
	case Dialing:
		if len(m.digits) < maxDigits {
			m.digits = append(m.digits, digitByte(digit))
			m.digitsLen.Store(int32(len(m.digits)))
			m.bus.Publish(DigitDialedEvent{Digit: digit, NumberSoFar: string(m.digits)})
		}
		m.armInterDigitTimer()
	}
}

func digitByte(d int) byte { return byte('0' + d%10) }

func (m *Manager) armInterDigitTimer() {
	if m.interDigit != nil {
		m.interDigit.Stop()
	}
	m.interDigit = time.AfterFunc(m.cfg.InterDigitTimeout, func() {
		m.genCh <- inputEvent{kind: evInterDigitTimeout}
	})
}

func (m *Manager) onInterDigitTimeout() {
	if m.State() != Dialing || len(m.digits) == 0 {
		return
	}

	m.setState(Validating, "")

	buffer := string(m.digits)
	dest, code, permitted := resolveDestination(buffer, m.cfg.SpeedDial, m.cfg.AllowList)
	if !permitted {
		m.tones.PlayErrorTone()
		m.setState(Error, "destination not permitted")
		return
	}

	m.direction = Outbound
	m.dialedNumber = buffer
	m.destination = dest
	m.speedDialCode = code
	m.startedAt = now()
	m.answeredAt = time.Time{}
	m.nextRecordID++
	m.recordID = m.nextRecordID

	m.setState(Calling, "")
	m.bus.Publish(CallStartedEvent{
		RecordID:      m.recordID,
		Direction:     Outbound,
		DialedNumber:  m.dialedNumber,
		Destination:   m.destination,
		SpeedDialCode: m.speedDialCode,
	})

	handle, err := m.sig.PlaceCall(m.runCtx, dest)
	if err != nil {
		m.closeRecord(StatusFailed, err.Error())
		m.tones.PlayErrorTone()
		m.setState(Error, err.Error())
		return
	}
	m.activeCall = handle
	m.armCallAttemptTimer()
}

func (m *Manager) armCallAttemptTimer() {
	if m.cfg.CallAttemptTimeout <= 0 {
		return
	}
	m.callAttempt = time.AfterFunc(m.cfg.CallAttemptTimeout, func() {
		m.genCh <- inputEvent{kind: evCallAttemptTimeout}
	})
}

func (m *Manager) onCallAttemptTimeout() {
	if m.State() != Calling || m.activeCall == "" {
		return
	}
	if err := m.sig.Hangup(m.runCtx, m.activeCall); err != nil {
		m.log.Warn().Err(err).Msg("hangup after call-attempt timeout failed")
	}
	m.closeRecord(StatusFailed, "call attempt timed out")
	m.activeCall = ""
	m.tones.PlayErrorTone()
	m.setState(Error, "call attempt timed out")
}

func (m *Manager) onCallConnected(call signaling.CallHandle) {
	if m.activeCall != call {
		return
	}
	if m.callAttempt != nil {
		m.callAttempt.Stop()
	}
	m.answeredAt = now()
	m.setState(Connected, "")
}

func (m *Manager) onCallEnded(call signaling.CallHandle, cause signaling.EndCause) {
	if m.activeCall != call {
		return
	}
	if m.callAttempt != nil {
		m.callAttempt.Stop()
	}

	switch m.State() {
	case Calling:
		m.closeRecord(StatusFailed, cause.String())
		m.activeCall = ""
		m.tones.PlayErrorTone()
		m.setState(Error, cause.String())
	case Connected:
		dur := int(now().Sub(m.answeredAt).Seconds())
		m.closeRecordWithDuration(StatusCompleted, "", dur)
		m.activeCall = ""
		m.digits = m.digits[:0]
		m.digitsLen.Store(0)
		if m.offHook {
			m.setState(OffHookWaiting, "")
			m.tones.PlayDialTone()
		} else {
			m.setState(Idle, "")
		}
	case Ringing:
		m.ring.Stop()
		m.closeRecord(StatusMissed, "")
		m.activeCall = ""
		m.setState(Idle, "")
	}
}

func (m *Manager) onIncomingCall(call signaling.CallHandle, callerID string) {
	if m.State() != Idle {
		if err := m.sig.Reject(m.runCtx, call); err != nil {
			m.log.Warn().Err(err).Msg("reject of incoming call while busy failed")
		}
		return
	}

	if !isCallerAllowed(callerID, m.cfg.AllowList) {
		m.startedAt = now()
		m.nextRecordID++
		m.recordID = m.nextRecordID
		m.bus.Publish(CallStartedEvent{
			RecordID:  m.recordID,
			Direction: Inbound,
			CallerID:  callerID,
		})

		if err := m.sig.Reject(m.runCtx, call); err != nil {
			m.log.Warn().Err(err).Msg("reject of disallowed incoming call failed")
		}
		m.log.Info().Str("caller_id", callerID).Msg("rejected incoming call from disallowed caller")
		m.closeRecord(StatusRejected, "caller not permitted")
		return
	}

	m.direction = Inbound
	m.callerID = callerID
	m.activeCall = call
	m.startedAt = now()
	m.answeredAt = time.Time{}
	m.nextRecordID++
	m.recordID = m.nextRecordID

	m.bus.Publish(CallStartedEvent{
		RecordID:  m.recordID,
		Direction: Inbound,
		CallerID:  callerID,
	})

	m.ring.Start()
	m.setState(Ringing, "")
}

func (m *Manager) closeRecord(status CallStatus, errMsg string) {
	dur := int(now().Sub(m.startedAt).Seconds())
	m.closeRecordWithDuration(status, errMsg, dur)
}

func (m *Manager) closeRecordWithDuration(status CallStatus, errMsg string, dur int) {
	if m.recordID == 0 {
		return
	}
	m.bus.Publish(CallEndedEvent{
		RecordID:        m.recordID,
		Status:          status,
		DurationSeconds: dur,
		ErrorMessage:    errMsg,
	})
	m.bus.Publish(CallLogUpdatedEvent{RecordID: m.recordID})
	m.recordID = 0
}

// now is overridden in tests to make duration assertions deterministic.
var now = time.Now
