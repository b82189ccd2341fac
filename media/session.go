// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2024, Emir Aganovic

package media

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"

	"github.com/jacob-meacham/rotary-voip/media/sdp"
	"github.com/pion/rtp"
)

// RTPSession owns one UDP socket carrying the RTP media for a single call.
// It negotiates a codec from the SDP offer/answer exchange and exposes
// plain payload-level read/write; RTP header bookkeeping (sequence
// numbers, timestamps, SSRC) is handled internally.
type RTPSession struct {
	conn *net.UDPConn

	mu         sync.RWMutex
	remoteAddr *net.UDPAddr
	codec      Codec

	ssrc uint32
	seq  uint16
	ts   uint32
}

// NewRTPSession opens a UDP socket at laddr (port 0 picks an ephemeral
// port) for the given codec.
func NewRTPSession(laddr *net.UDPAddr, codec Codec) (*RTPSession, error) {
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("media: listen udp: %w", err)
	}

	return &RTPSession{
		conn:  conn,
		codec: codec,
		ssrc:  randUint32(),
	}, nil
}

func (s *RTPSession) LocalPort() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// LocalSDP renders this session's offer/answer body for the given direction.
func (s *RTPSession) LocalSDP(originIP, connectionIP net.IP, mode sdp.Mode) []byte {
	s.mu.RLock()
	codec := s.codec
	s.mu.RUnlock()

	fmts := sdp.NewFormats(fmt.Sprintf("%d", codec.PayloadType))
	return sdp.GenerateForAudio(originIP, connectionIP, s.LocalPort(), mode, fmts)
}

// SetRemoteSDP parses the peer's SDP body, selects a supported codec from
// its offered formats, and records the remote RTP endpoint.
func (s *RTPSession) SetRemoteSDP(body []byte) error {
	var sd sdp.SessionDescription = make(sdp.SessionDescription)
	if err := sdp.Unmarshal(body, &sd); err != nil {
		return fmt.Errorf("media: parse remote sdp: %w", err)
	}

	md, err := sd.MediaDescription("audio")
	if err != nil {
		return fmt.Errorf("media: remote sdp has no audio section: %w", err)
	}

	ci, err := sd.ConnectionInformation()
	if err != nil {
		return fmt.Errorf("media: remote sdp has no connection info: %w", err)
	}

	codec, err := CodecFromFormats(sdp.Formats(md.Formats))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.remoteAddr = &net.UDPAddr{IP: ci.IP, Port: md.Port}
	s.codec = codec
	s.mu.Unlock()
	return nil
}

// ReadRTP reads one RTP packet from the socket.
func (s *RTPSession) ReadRTP() (*rtp.Packet, error) {
	buf := make([]byte, 1500)
	n, _, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}

	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf[:n]); err != nil {
		return nil, fmt.Errorf("media: unmarshal rtp packet: %w", err)
	}
	return pkt, nil
}

// WritePayload packetizes and sends one frame of codec payload (already
// gain-adjusted and encoded) to the negotiated remote endpoint.
func (s *RTPSession) WritePayload(payload []byte) error {
	s.mu.RLock()
	remote := s.remoteAddr
	codec := s.codec
	s.mu.RUnlock()

	if remote == nil {
		return fmt.Errorf("media: remote endpoint not yet negotiated")
	}

	s.mu.Lock()
	s.seq++
	pktSeq := s.seq
	s.ts += codec.SampleTimestamp()
	pktTS := s.ts
	s.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    codec.PayloadType,
			SequenceNumber: pktSeq,
			Timestamp:      pktTS,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}

	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("media: marshal rtp packet: %w", err)
	}

	_, err = s.conn.WriteToUDP(data, remote)
	return err
}

func (s *RTPSession) Close() error {
	return s.conn.Close()
}

func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
