// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2024, Emir Aganovic

package audio

import (
	"fmt"
	"io"
	"os"
)

// Waveform is a fully-decoded mono 16-bit PCM waveform, loaded once at
// configuration time so playback never touches disk.
type Waveform struct {
	SampleRate int
	PCM        []byte // little-endian int16 samples
}

// LoadWaveform decodes a wav file into memory via go-audio/wav.
func LoadWaveform(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := NewWavDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode %s: %w", path, err)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}

	return &Waveform{SampleRate: buf.Format.SampleRate, PCM: pcm}, nil
}

// LoopingReader wraps a Waveform's PCM bytes and re-seeks to the start
// whenever it is exhausted, so it never returns io.EOF unless the waveform
// is empty. Callers bound playback length externally (e.g. with a timer or
// a context deadline).
type LoopingReader struct {
	pcm []byte
	pos int
}

func NewLoopingReader(w *Waveform) *LoopingReader {
	return &LoopingReader{pcm: w.PCM}
}

func (l *LoopingReader) Read(p []byte) (int, error) {
	if len(l.pcm) == 0 {
		return 0, io.EOF
	}
	if l.pos >= len(l.pcm) {
		l.pos = 0
	}
	n := copy(p, l.pcm[l.pos:])
	l.pos += n
	return n, nil
}

// Reset rewinds playback to the start of the waveform.
func (l *LoopingReader) Reset() {
	l.pos = 0
}
