// Package simclient implements a deterministic in-memory signaling.Client
// for tests, with stimulation hooks a test can use to drive the simulated
// remote party.
package simclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jacob-meacham/rotary-voip/signaling"
	"github.com/rs/zerolog"
)

// Options mirrors the original's registrationDelay/callConnectDelay knobs:
// small, deterministic-but-async delays so tests can still observe
// intermediate states rather than everything resolving synchronously.
type Options struct {
	RegistrationDelay time.Duration
	CallConnectDelay  time.Duration
}

type callState struct {
	handle   signaling.CallHandle
	outbound bool
	callerID string
}

// Outcome overrides how the simulator resolves the next outbound
// PlaceCall, so tests can drive the failure taxonomy deterministically
// without depending on a remote party.
type Outcome int

const (
	OutcomeConnect Outcome = iota
	OutcomeBusy
	OutcomeNoAnswer
	OutcomeReject
	OutcomeNetworkError
)

// Client is the in-memory simulator. It tracks call state per CallHandle,
// generalizing the original's single-call tracking into the richer
// per-handle model signaling.Client requires, since callers address calls
// by handle even though only one is ever active at a time.
type Client struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	active   *callState
	nextID   int
	incoming signaling.IncomingHandler
	onState  signaling.CallStateHandler

	registered bool

	nextOutcome Outcome
}

func New(opts Options, log zerolog.Logger) *Client {
	return &Client{
		opts: opts,
		log:  log.With().Str("component", "simclient").Logger(),
	}
}

// SetNextCallOutcome overrides how the next PlaceCall resolves; it is
// consumed on use and reverts to OutcomeConnect afterward.
func (c *Client) SetNextCallOutcome(o Outcome) {
	c.mu.Lock()
	c.nextOutcome = o
	c.mu.Unlock()
}

func (c *Client) Register(ctx context.Context) error {
	if c.opts.RegistrationDelay > 0 {
		select {
		case <-time.After(c.opts.RegistrationDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()
	return nil
}

func (c *Client) PlaceCall(ctx context.Context, destination string) (signaling.CallHandle, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return "", signaling.ErrBusy
	}
	c.nextID++
	handle := signaling.CallHandle(fmt.Sprintf("sim-%d", c.nextID))
	c.active = &callState{handle: handle, outbound: true, callerID: destination}
	onState := c.onState
	c.mu.Unlock()

	if onState != nil {
		onState(signaling.StateUpdate{Call: handle, State: signaling.Initiating})
	}

	go func() {
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return
		}
		c.emit(handle, signaling.Ringing, 0)

		connectDelay := c.opts.CallConnectDelay
		if connectDelay == 0 {
			connectDelay = 10 * time.Millisecond
		}
		select {
		case <-time.After(connectDelay):
		case <-ctx.Done():
			return
		}

		c.mu.Lock()
		outcome := c.nextOutcome
		c.nextOutcome = OutcomeConnect
		c.mu.Unlock()

		switch outcome {
		case OutcomeConnect:
			c.emit(handle, signaling.Answered, 0)
			time.Sleep(time.Millisecond)
			c.emit(handle, signaling.Connected, 0)
		case OutcomeBusy:
			c.emit(handle, signaling.Ended, signaling.Busy)
		case OutcomeNoAnswer:
			c.emit(handle, signaling.Ended, signaling.NoAnswer)
		case OutcomeReject:
			c.emit(handle, signaling.Ended, signaling.Rejected)
		case OutcomeNetworkError:
			c.emit(handle, signaling.Ended, signaling.NetworkError)
		}
	}()

	return handle, nil
}

func (c *Client) emit(handle signaling.CallHandle, state signaling.CallState, cause signaling.EndCause) {
	c.mu.Lock()
	onState := c.onState
	if state == signaling.Ended && c.active != nil && c.active.handle == handle {
		c.active = nil
	}
	c.mu.Unlock()

	if onState != nil {
		onState(signaling.StateUpdate{Call: handle, State: state, Cause: cause})
	}
}

func (c *Client) Answer(ctx context.Context, call signaling.CallHandle) error {
	c.mu.Lock()
	if c.active == nil || c.active.handle != call {
		c.mu.Unlock()
		return fmt.Errorf("simclient: unknown call %s", call)
	}
	c.mu.Unlock()

	c.emit(call, signaling.Answered, 0)
	go func() {
		time.Sleep(1 * time.Millisecond)
		c.emit(call, signaling.Connected, 0)
	}()
	return nil
}

func (c *Client) Reject(ctx context.Context, call signaling.CallHandle) error {
	c.emit(call, signaling.Ended, signaling.Rejected)
	return nil
}

func (c *Client) Hangup(ctx context.Context, call signaling.CallHandle) error {
	c.emit(call, signaling.Ended, signaling.Normal)
	return nil
}

func (c *Client) OnIncoming(handler signaling.IncomingHandler) {
	c.mu.Lock()
	c.incoming = handler
	c.mu.Unlock()
}

func (c *Client) OnCallState(handler signaling.CallStateHandler) {
	c.mu.Lock()
	c.onState = handler
	c.mu.Unlock()
}

func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active != nil {
		c.emit(active.handle, signaling.Ended, signaling.Normal)
	}
	return nil
}

// SimulateIncoming injects an inbound call from callerID.
func (c *Client) SimulateIncoming(callerID string) signaling.CallHandle {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return ""
	}
	c.nextID++
	handle := signaling.CallHandle(fmt.Sprintf("sim-%d", c.nextID))
	c.active = &callState{handle: handle, outbound: false, callerID: callerID}
	incoming := c.incoming
	c.mu.Unlock()

	if incoming != nil {
		incoming(handle, callerID)
	}
	return handle
}

// SimulateRemoteAnswer reports that the simulated remote party answered
// an outbound call.
func (c *Client) SimulateRemoteAnswer(call signaling.CallHandle) {
	c.emit(call, signaling.Answered, 0)
	go func() {
		time.Sleep(1 * time.Millisecond)
		c.emit(call, signaling.Connected, 0)
	}()
}

// SimulateRemoteHangup reports that the simulated remote party hung up.
func (c *Client) SimulateRemoteHangup(call signaling.CallHandle) {
	c.emit(call, signaling.Ended, signaling.Normal)
}

// SimulateNetworkFailure reports a network error ending the call.
func (c *Client) SimulateNetworkFailure(call signaling.CallHandle) {
	c.emit(call, signaling.Ended, signaling.NetworkError)
}
