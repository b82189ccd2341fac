package sipendpoint

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/jacob-meacham/rotary-voip/media"
	"github.com/jacob-meacham/rotary-voip/media/sdp"
	"github.com/jacob-meacham/rotary-voip/signaling"
)

func destinationURI(destination string, registrar sip.Uri) sip.Uri {
	if strings.Contains(destination, "@") {
		parts := strings.SplitN(destination, "@", 2)
		return sip.Uri{User: parts[0], Host: parts[1]}
	}
	return sip.Uri{User: destination, Host: registrar.Host, Port: registrar.Port}
}

func newCallID() string {
	return fmt.Sprintf("rotary-%d", time.Now().UnixNano())
}

// PlaceCall starts an outbound INVITE. It builds the request and hands it
// to a background goroutine, returning without waiting for it to be sent;
// call progress is reported asynchronously via OnCallState.
func (c *Client) PlaceCall(ctx context.Context, destination string) (signaling.CallHandle, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return "", signaling.ErrBusy
	}
	handle := signaling.CallHandle(newCallID())
	callCtx, cancel := context.WithCancel(context.Background())
	call := &activeCall{handle: handle, outbound: true, callID: string(handle), cancel: cancel}
	c.active = call
	c.mu.Unlock()

	rtpSession, err := media.NewRTPSession(&net.UDPAddr{IP: net.ParseIP(c.cfg.BindHost), Port: 0}, media.CodecAudioUlaw)
	if err != nil {
		c.clearActive(handle)
		return "", fmt.Errorf("sipendpoint: allocate rtp session: %w", err)
	}
	call.rtp = rtpSession

	recipient := destinationURI(destination, c.registrar())
	call.remoteURI = recipient

	body := rtpSession.LocalSDP(net.ParseIP(c.cfg.BindHost), net.ParseIP(c.cfg.BindHost), sdp.ModeSendrecv)

	req := sip.NewRequest(sip.INVITE, recipient)
	req.AppendHeader(&c.contactHDR)
	req.AppendHeader(sip.NewHeader("Call-ID", call.callID))
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	req.SetBody(body)
	call.inviteReq = req

	go c.runOutboundInvite(callCtx, call, req)

	return handle, nil
}

func (c *Client) runOutboundInvite(ctx context.Context, call *activeCall, req *sip.Request) {
	c.emitState(call.handle, signaling.Initiating, 0)

	tx, err := c.client.TransactionRequest(ctx, req)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to send invite")
		c.clearActive(call.handle)
		c.emitState(call.handle, signaling.Ended, signaling.NetworkError)
		return
	}
	defer tx.Terminate()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tx.Done():
			return
		case res := <-tx.Responses():
			if res == nil {
				continue
			}
			switch {
			case res.StatusCode == sip.StatusRinging:
				c.emitState(call.handle, signaling.Ringing, 0)
			case res.StatusCode == sip.StatusSessionInProgress:
				c.emitState(call.handle, signaling.EarlyMedia, 0)
			case res.StatusCode == sip.StatusOK:
				if sdpBody := res.Body(); sdpBody != nil {
					if err := call.rtp.SetRemoteSDP(sdpBody); err != nil {
						c.log.Error().Err(err).Msg("failed to negotiate remote sdp")
					}
				}
				c.sendAck(req, res)
				c.emitState(call.handle, signaling.Answered, 0)
				c.emitState(call.handle, signaling.Connected, 0)
				go c.pumpMedia(ctx, call)
				return
			case res.StatusCode >= 300:
				cause := signaling.NetworkError
				switch res.StatusCode {
				case sip.StatusBusyHere:
					cause = signaling.Busy
				case sip.StatusRequestTerminated:
					cause = signaling.NoAnswer
				case sip.StatusGlobalDecline:
					cause = signaling.Rejected
				}
				c.clearActive(call.handle)
				c.emitState(call.handle, signaling.Ended, cause)
				return
			}
		}
	}
}

func (c *Client) sendAck(inviteReq *sip.Request, res *sip.Response) {
	ack := sip.NewRequest(sip.ACK, inviteReq.Recipient)
	if cseq := inviteReq.CSeq(); cseq != nil {
		ack.AppendHeader(sip.NewHeader("CSeq", fmt.Sprintf("%d ACK", cseq.SeqNo)))
	}
	if callID := inviteReq.CallID(); callID != nil {
		ack.AppendHeader(sip.NewHeader("Call-ID", callID.Value()))
	}
	if err := c.client.WriteRequest(ack); err != nil {
		c.log.Error().Err(err).Msg("failed to send ack")
	}
}

// Answer accepts an inbound call with a 200 OK carrying our SDP answer.
func (c *Client) Answer(ctx context.Context, callHandle signaling.CallHandle) error {
	call, err := c.lookupActive(callHandle)
	if err != nil {
		return err
	}

	body := call.rtp.LocalSDP(net.ParseIP(c.cfg.BindHost), net.ParseIP(c.cfg.BindHost), sdp.ModeSendrecv)
	res := sip.NewResponseFromRequest(call.inviteReq, sip.StatusOK, "OK", body)
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := call.serverTx.Respond(res); err != nil {
		return fmt.Errorf("sipendpoint: answer failed: %w", err)
	}

	c.emitState(callHandle, signaling.Answered, 0)
	return nil
}

// Reject declines an inbound call.
func (c *Client) Reject(ctx context.Context, callHandle signaling.CallHandle) error {
	call, err := c.lookupActive(callHandle)
	if err != nil {
		return err
	}

	res := sip.NewResponseFromRequest(call.inviteReq, sip.StatusGlobalDecline, "Decline", nil)
	if err := call.serverTx.Respond(res); err != nil {
		return fmt.Errorf("sipendpoint: reject failed: %w", err)
	}

	c.clearActive(callHandle)
	c.emitState(callHandle, signaling.Ended, signaling.Rejected)
	return nil
}

// Hangup terminates the active call, sending BYE (outbound leg) or a
// final non-2xx response to a still-ringing inbound INVITE.
func (c *Client) Hangup(ctx context.Context, callHandle signaling.CallHandle) error {
	call, err := c.lookupActive(callHandle)
	if err != nil {
		return err
	}
	c.terminateCall(call, signaling.Normal)
	return nil
}

func (c *Client) terminateCall(call *activeCall, cause signaling.EndCause) {
	if call.cancel != nil {
		call.cancel()
	}
	if call.rtp != nil {
		call.rtp.Close()
	}

	if call.outbound {
		bye := sip.NewRequest(sip.BYE, call.remoteURI)
		bye.AppendHeader(sip.NewHeader("Call-ID", call.callID))
		if _, err := c.client.TransactionRequest(context.Background(), bye); err != nil {
			c.log.Warn().Err(err).Msg("failed to send bye")
		}
	} else if call.serverTx != nil && call.inviteReq != nil {
		res := sip.NewResponseFromRequest(call.inviteReq, sip.StatusRequestTerminated, "Terminated", nil)
		_ = call.serverTx.Respond(res)
	}

	c.clearActive(call.handle)
	c.emitState(call.handle, signaling.Ended, cause)
}

func (c *Client) lookupActive(handle signaling.CallHandle) (*activeCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.handle != handle {
		return nil, fmt.Errorf("sipendpoint: unknown call %s", handle)
	}
	return c.active, nil
}

func (c *Client) clearActive(handle signaling.CallHandle) {
	c.mu.Lock()
	if c.active != nil && c.active.handle == handle {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Client) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		res := sip.NewResponseFromRequest(req, sip.StatusBusyHere, "Busy Here", nil)
		_ = tx.Respond(res)
		return
	}

	handle := signaling.CallHandle(newCallID())
	if callID := req.CallID(); callID != nil {
		handle = signaling.CallHandle(callID.Value())
	}

	callCtx, cancel := context.WithCancel(context.Background())
	call := &activeCall{
		handle:    handle,
		outbound:  false,
		callID:    string(handle),
		inviteReq: req,
		serverTx:  tx,
		cancel:    cancel,
	}
	c.active = call
	incoming := c.onIncoming
	c.mu.Unlock()

	rtpSession, err := media.NewRTPSession(&net.UDPAddr{IP: net.ParseIP(c.cfg.BindHost), Port: 0}, media.CodecAudioUlaw)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to allocate rtp session for inbound call")
		res := sip.NewResponseFromRequest(req, sip.StatusInternalServerError, "Internal Server Error", nil)
		_ = tx.Respond(res)
		c.clearActive(handle)
		return
	}
	call.rtp = rtpSession
	if body := req.Body(); body != nil {
		if err := rtpSession.SetRemoteSDP(body); err != nil {
			c.log.Warn().Err(err).Msg("failed to parse inbound offer")
		}
	}

	ringing := sip.NewResponseFromRequest(req, sip.StatusRinging, "Ringing", nil)
	_ = tx.Respond(ringing)

	callerID := req.From().Address.User
	if incoming != nil {
		incoming(handle, callerID)
	}

	go func() {
		<-callCtx.Done()
	}()
}

func (c *Client) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	call, err := c.currentInboundCall(req)
	if err != nil {
		return
	}
	c.emitState(call.handle, signaling.Connected, 0)
	go c.pumpMedia(context.Background(), call)
}

func (c *Client) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	call, err := c.currentInboundCall(req)
	if err == nil {
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
		_ = tx.Respond(res)
		c.terminateCall(call, signaling.Normal)
		return
	}

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active != nil && active.outbound {
		res := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
		_ = tx.Respond(res)
		c.terminateCall(active, signaling.Normal)
	}
}

func (c *Client) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	call, err := c.currentInboundCall(req)
	if err != nil {
		return
	}
	res := sip.NewResponseFromRequest(call.inviteReq, sip.StatusRequestTerminated, "Terminated", nil)
	_ = call.serverTx.Respond(res)
	c.clearActive(call.handle)
	c.emitState(call.handle, signaling.Ended, signaling.NoAnswer)
}

func (c *Client) currentInboundCall(req *sip.Request) (*activeCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.outbound {
		return nil, fmt.Errorf("sipendpoint: no matching inbound call")
	}
	callID := ""
	if h := req.CallID(); h != nil {
		callID = h.Value()
	}
	if callID != "" && c.active.callID != callID {
		return nil, fmt.Errorf("sipendpoint: call-id mismatch")
	}
	return c.active, nil
}
