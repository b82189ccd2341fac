package audio

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileDevice is the process-wide audio device: a bidirectional raw PCM16
// stream backed by an OS file (typically an ALSA device node exposed as
// a character special file on the target board). No capture/playback
// library is reused here deliberately: none of the source material this
// module is grounded on ships one, so this stays on the standard
// library rather than fabricate a dependency.
type FileDevice struct {
	mic     *os.File
	speaker *os.File
}

// OpenFileDevice opens micPath for reading and speakerPath for writing.
// A deployment with one bidirectional device node passes the same path
// for both.
func OpenFileDevice(micPath, speakerPath string) (*FileDevice, error) {
	mic, err := os.OpenFile(micPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("audio: open mic device: %w", err)
	}

	speaker, err := os.OpenFile(speakerPath, os.O_WRONLY, 0)
	if err != nil {
		mic.Close()
		return nil, fmt.Errorf("audio: open speaker device: %w", err)
	}

	return &FileDevice{mic: mic, speaker: speaker}, nil
}

func (d *FileDevice) ReadMic(p []byte) (int, error)      { return d.mic.Read(p) }
func (d *FileDevice) WriteSpeaker(p []byte) (int, error) { return d.speaker.Write(p) }

// Play writes r to the speaker until r is exhausted or ctx is cancelled,
// satisfying ringer.Player/dialtone's playback contract.
func (d *FileDevice) Play(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 320)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := d.speaker.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Close releases both underlying device handles.
func (d *FileDevice) Close() error {
	err1 := d.mic.Close()
	err2 := d.speaker.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
