// Package sipendpoint implements signaling.Client against a real SIP/RTP
// stack built on github.com/emiago/sipgo for transaction handling and
// github.com/pion/rtp for the media path.
package sipendpoint

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/jacob-meacham/rotary-voip/media"
	"github.com/jacob-meacham/rotary-voip/signaling"
	"github.com/rs/zerolog"
)

// AudioDevice is the process-wide microphone/speaker endpoint. The
// process controller owns the concrete device and hands scoped access to
// the signalling client and the ringer, never both active at once.
type AudioDevice interface {
	ReadMic(p []byte) (int, error)
	WriteSpeaker(p []byte) (int, error)
}

// Config configures one sipendpoint.Client.
type Config struct {
	RegistrarHost string
	RegistrarPort int
	User          string
	Password      string
	BindHost      string
	BindPort      int
	RegisterInterval time.Duration
	MicGain       float64
	SpeakerGain   float64
}

type activeCall struct {
	handle   signaling.CallHandle
	outbound bool
	callID   string
	localTag string
	remoteTag string
	inviteReq *sip.Request
	serverTx  sip.ServerTransaction
	remoteURI sip.Uri

	rtp    *media.RTPSession
	cancel context.CancelFunc
}

// Client implements signaling.Client.
type Client struct {
	cfg Config
	log zerolog.Logger

	ua     *sipgo.UserAgent
	client *sipgo.Client
	server *sipgo.Server

	contactHDR sip.ContactHeader
	device     AudioDevice

	mu         sync.Mutex
	active     *activeCall
	onIncoming signaling.IncomingHandler
	onState    signaling.CallStateHandler

	regCancel context.CancelFunc
	regDone   chan struct{}
}

// New constructs a Client bound to BindHost:BindPort, ready to Register
// against cfg.RegistrarHost:RegistrarPort.
func New(cfg Config, device AudioDevice, log zerolog.Logger) (*Client, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("sipendpoint: new user agent: %w", err)
	}

	client, err := sipgo.NewClient(ua, sipgo.WithClientNAT())
	if err != nil {
		return nil, fmt.Errorf("sipendpoint: new client: %w", err)
	}

	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("sipendpoint: new server: %w", err)
	}

	contactHDR := sip.ContactHeader{
		Address: sip.Uri{
			User:      cfg.User,
			Host:      cfg.BindHost,
			Port:      cfg.BindPort,
			UriParams: sip.NewParams(),
		},
	}

	c := &Client{
		cfg:        cfg,
		log:        log.With().Str("component", "sipendpoint").Logger(),
		ua:         ua,
		client:     client,
		server:     server,
		contactHDR: contactHDR,
		device:     device,
	}

	server.OnInvite(c.handleInvite)
	server.OnAck(c.handleAck)
	server.OnBye(c.handleBye)
	server.OnCancel(c.handleCancel)

	return c, nil
}

// ListenAndServe starts the SIP server on cfg.BindHost:BindPort. Callers
// typically run this in its own goroutine.
func (c *Client) ListenAndServe(ctx context.Context) error {
	hostport := net.JoinHostPort(c.cfg.BindHost, strconv.Itoa(c.cfg.BindPort))
	return c.server.ListenAndServe(ctx, "udp", hostport)
}

func (c *Client) registrar() sip.Uri {
	return sip.Uri{Host: c.cfg.RegistrarHost, Port: c.cfg.RegistrarPort}
}

// Register performs the initial REGISTER and, on success, starts a
// background re-registration loop that runs until Shutdown or a terminal
// failure, which is logged but not otherwise surfaced here: the call
// manager only ever sees the result of this call (class 4/5 of the error
// taxonomy).
func (c *Client) Register(ctx context.Context) error {
	opts := registerOptions{
		Username:      c.cfg.User,
		Password:      c.cfg.Password,
		Expiry:        3600 * time.Second,
		RetryInterval: c.cfg.RegisterInterval,
	}

	t := newRegisterTransaction(c.client, c.registrar(), c.contactHDR, opts, c.log)
	if err := t.register(ctx); err != nil {
		return &signaling.RegistrationFailedError{Reason: err.Error()}
	}

	regCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.regCancel = cancel
	c.regDone = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.regDone)
		t.qualifyLoop(regCtx, func(err error) {
			c.log.Error().Err(err).Msg("registration lapsed, stack will remain unregistered")
		})
	}()

	return nil
}

func (c *Client) OnIncoming(handler signaling.IncomingHandler) {
	c.mu.Lock()
	c.onIncoming = handler
	c.mu.Unlock()
}

func (c *Client) OnCallState(handler signaling.CallStateHandler) {
	c.mu.Lock()
	c.onState = handler
	c.mu.Unlock()
}

func (c *Client) emitState(handle signaling.CallHandle, state signaling.CallState, cause signaling.EndCause) {
	c.mu.Lock()
	onState := c.onState
	c.mu.Unlock()
	if onState != nil {
		onState(signaling.StateUpdate{Call: handle, State: state, Cause: cause})
	}
}

// Shutdown cancels registration, terminates any active call, and closes
// the listening server.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	regCancel := c.regCancel
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if regCancel != nil {
		regCancel()
		<-c.regDone

		opts := registerOptions{Username: c.cfg.User, Password: c.cfg.Password}
		t := newRegisterTransaction(c.client, c.registrar(), c.contactHDR, opts, c.log)
		unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.unregister(unregCtx); err != nil {
			c.log.Warn().Err(err).Msg("failed to unregister on shutdown")
		}
	}

	if active != nil {
		c.terminateCall(active, signaling.Normal)
	}

	c.client.Close()
	return nil
}
