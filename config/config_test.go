package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jacob-meacham/rotary-voip/config"
	"github.com/stretchr/testify/require"
)

const validYAML = `
sip:
  host: sip.example.com
  port: 5060
  user: phone1
  credential: secret
hardware:
  hook_pin: 17
  pulse_pin: 27
  ringer_pin: 22
  mic_device: /dev/rotary-voip-mic
  speaker_device: /dev/rotary-voip-speaker
storage:
  db_path: /var/lib/rotary-voip/calls.db
timing:
  pulse_timeout_ms: 300
  inter_digit_timeout_ms: 4000
  hook_debounce_ms: 50
  ring_on_ms: 2000
  ring_pause_ms: 4000
  call_attempt_timeout_sec: 30
speed_dial:
  "1": "+15551234567"
allowlist:
  - "+15551234567"
audio:
  ring_file: ring.wav
gain:
  microphone: 1.0
  speaker: 1.0
`

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "sip.example.com", cfg.SIP.Host)
	require.Equal(t, "+15551234567", cfg.SpeedDial["1"])
}

func TestLoadInvalidAggregatesAllProblems(t *testing.T) {
	path := writeTemp(t, "sip:\n  host: \"\"\n")
	_, err := config.Load(path)
	require.Error(t, err)

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Greater(t, len(verr.Problems), 1)
}

func TestChangedSectionsNoOpOnIdenticalDocument(t *testing.T) {
	path := writeTemp(t, validYAML)
	a, err := config.Load(path)
	require.NoError(t, err)
	b, err := config.Load(path)
	require.NoError(t, err)

	require.Empty(t, config.ChangedSections(a, b))
}

func TestChangedSectionsDetectsSIPChange(t *testing.T) {
	path := writeTemp(t, validYAML)
	a, err := config.Load(path)
	require.NoError(t, err)

	b := *a
	b.SIP.Host = "other.example.com"

	require.Equal(t, []string{config.SectionSIP}, config.ChangedSections(a, &b))
}
