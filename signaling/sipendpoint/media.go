package sipendpoint

import (
	"context"

	"github.com/jacob-meacham/rotary-voip/audio"
)

// samplesPerFrame is the PCM16 sample count for one 20ms frame at 8000Hz,
// matching media.CodecAudioUlaw/CodecAudioAlaw's SampleDur.
const samplesPerFrame = 160

// pumpMedia runs the bidirectional audio path for one call until ctx is
// cancelled: microphone PCM is gain-adjusted, encoded, and packetized
// outbound; inbound RTP is decoded, gain-adjusted, and written to the
// speaker. Two independent loops avoid head-of-line blocking between
// directions.
func (c *Client) pumpMedia(ctx context.Context, call *activeCall) {
	go c.pumpMic(ctx, call)
	c.pumpSpeaker(ctx, call)
}

func (c *Client) pumpMic(ctx context.Context, call *activeCall) {
	pcm := make([]byte, samplesPerFrame*2)
	ulaw := make([]byte, samplesPerFrame)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := c.device.ReadMic(pcm)
		if err != nil || n == 0 {
			return
		}

		applyGainPCM16(pcm[:n], c.cfg.MicGain)

		encoded, err := audio.EncodeUlawTo(ulaw, pcm[:n])
		if err != nil {
			c.log.Error().Err(err).Msg("mic encode failed")
			continue
		}

		if err := call.rtp.WritePayload(ulaw[:encoded]); err != nil {
			c.log.Error().Err(err).Msg("rtp write failed")
			return
		}
	}
}

func (c *Client) pumpSpeaker(ctx context.Context, call *activeCall) {
	pcm := make([]byte, samplesPerFrame*2)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		pkt, err := call.rtp.ReadRTP()
		if err != nil {
			return
		}

		n, err := audio.DecodeUlawTo(pcm, pkt.Payload)
		if err != nil {
			c.log.Error().Err(err).Msg("rtp payload decode failed")
			continue
		}

		applyGainPCM16(pcm[:n], c.cfg.SpeakerGain)

		if _, err := c.device.WriteSpeaker(pcm[:n]); err != nil {
			c.log.Error().Err(err).Msg("speaker write failed")
			return
		}
	}
}

// applyGainPCM16 scales 16-bit little-endian samples in place by gain,
// clamping to avoid wraparound distortion.
func applyGainPCM16(pcm []byte, gain float64) {
	if gain == 1.0 || gain <= 0 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		scaled := float64(s) * gain
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out := int16(scaled)
		pcm[i] = byte(out)
		pcm[i+1] = byte(out >> 8)
	}
}
