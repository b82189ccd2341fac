// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2024, Emir Aganovic

package media

import (
	"fmt"
	"time"

	"github.com/jacob-meacham/rotary-voip/media/sdp"
	"github.com/rs/zerolog/log"
)

var (
	CodecAudioUlaw = Codec{PayloadType: 0, SampleRate: 8000, SampleDur: 20 * time.Millisecond}
	CodecAudioAlaw = Codec{PayloadType: 8, SampleRate: 8000, SampleDur: 20 * time.Millisecond}
)

type Codec struct {
	PayloadType uint8
	SampleRate  uint32
	SampleDur   time.Duration
}

func (c *Codec) String() string {
	return fmt.Sprintf("pt=%d rate=%d dur=%s", c.PayloadType, c.SampleRate, c.SampleDur.String())
}

func (c *Codec) SampleTimestamp() uint32 {
	return uint32(float64(c.SampleRate) * c.SampleDur.Seconds())
}

// CodecFromFormats returns ulaw if fmts offers it anywhere, since it is the
// near-universal PSTN-gateway default, and otherwise alaw if offered.
func CodecFromFormats(fmts sdp.Formats) (Codec, error) {
	for _, f := range fmts {
		if f == sdp.FORMAT_TYPE_ULAW {
			return CodecAudioUlaw, nil
		}
	}
	for _, f := range fmts {
		if f == sdp.FORMAT_TYPE_ALAW {
			return CodecAudioAlaw, nil
		}
	}
	return Codec{}, fmt.Errorf("media: no supported codec in offered formats %v", fmts)
}

func CodecFromPayloadType(payloadType uint8) Codec {
	switch payloadType {
	case CodecAudioAlaw.PayloadType:
		return CodecAudioAlaw
	case CodecAudioUlaw.PayloadType:
		return CodecAudioUlaw
	default:
		log.Warn().Uint8("payloadType", payloadType).Msg("unsupported payload type, assuming ulaw clock rate")
		return Codec{PayloadType: payloadType, SampleRate: 8000, SampleDur: 20 * time.Millisecond}
	}
}
