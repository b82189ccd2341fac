// Package config loads and validates the core's configuration document.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SIP holds the signalling peer's registration details and the local
// bind address the endpoint listens on.
type SIP struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	User                string `yaml:"user"`
	Credential          string `yaml:"credential"`
	RegisterIntervalSec int    `yaml:"register_interval_sec"`
	BindHost            string `yaml:"bind_host"`
	BindPort            int    `yaml:"bind_port"`
}

// Hardware holds GPIO pin assignments and the process audio device.
type Hardware struct {
	HookPin       int    `yaml:"hook_pin"`
	PulsePin      int    `yaml:"pulse_pin"`
	DialActivePin int    `yaml:"dial_active_pin"`
	RingerPin     int    `yaml:"ringer_pin"`
	MicDevice     string `yaml:"mic_device"`
	SpeakerDevice string `yaml:"speaker_device"`
}

// Storage names the embedded call-log database file.
type Storage struct {
	DBPath string `yaml:"db_path"`
}

// Timing holds every configurable timing constant named in the spec.
type Timing struct {
	PulseTimeoutMS int `yaml:"pulse_timeout_ms"`
	InterDigitMS   int `yaml:"inter_digit_timeout_ms"`
	HookDebounceMS int `yaml:"hook_debounce_ms"`
	RingOnMS       int `yaml:"ring_on_ms"`
	RingPauseMS    int `yaml:"ring_pause_ms"`
	CallAttemptSec int `yaml:"call_attempt_timeout_sec"`
}

// Audio names the waveform files played on each occasion.
type Audio struct {
	RingFile      string `yaml:"ring_file"`
	DialToneFile  string `yaml:"dial_tone_file"`
	BusyToneFile  string `yaml:"busy_tone_file"`
	ErrorToneFile string `yaml:"error_tone_file"`
}

// Gain holds software gain multipliers, each expected in [0.0, 2.0].
type Gain struct {
	Microphone float64 `yaml:"microphone"`
	Speaker    float64 `yaml:"speaker"`
}

// Config is the validated, read-only configuration value the core
// consumes. Credential must never be logged or placed in an emitted
// DomainEvent.
type Config struct {
	SIP       SIP               `yaml:"sip"`
	Hardware  Hardware          `yaml:"hardware"`
	Timing    Timing            `yaml:"timing"`
	SpeedDial map[string]string `yaml:"speed_dial"`
	AllowList []string          `yaml:"allowlist"`
	Audio     Audio             `yaml:"audio"`
	Gain      Gain              `yaml:"gain"`
	Storage   Storage           `yaml:"storage"`
}

// ValidationError aggregates every validation failure found in a single
// pass, rather than stopping at the first one.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Load reads and parses the YAML document at path, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns a *ValidationError listing every problem found, or nil
// if the configuration is admissible.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	if c.SIP.Host == "" {
		verr.add("sip.host is required")
	}
	if c.SIP.Port <= 0 || c.SIP.Port > 65535 {
		verr.add("sip.port must be in 1..65535, got %d", c.SIP.Port)
	}
	if c.SIP.User == "" {
		verr.add("sip.user is required")
	}

	if c.Hardware.HookPin == 0 {
		verr.add("hardware.hook_pin is required")
	}
	if c.Hardware.PulsePin == 0 {
		verr.add("hardware.pulse_pin is required")
	}
	if c.Hardware.RingerPin == 0 {
		verr.add("hardware.ringer_pin is required")
	}
	if c.Hardware.HookPin != 0 && c.Hardware.HookPin == c.Hardware.PulsePin {
		verr.add("hardware.hook_pin and hardware.pulse_pin must differ")
	}
	if c.Hardware.MicDevice == "" {
		verr.add("hardware.mic_device is required")
	}
	if c.Hardware.SpeakerDevice == "" {
		verr.add("hardware.speaker_device is required")
	}

	if c.Storage.DBPath == "" {
		verr.add("storage.db_path is required")
	}

	if c.Timing.PulseTimeoutMS <= 0 {
		verr.add("timing.pulse_timeout_ms must be positive")
	}
	if c.Timing.InterDigitMS <= 0 {
		verr.add("timing.inter_digit_timeout_ms must be positive")
	}
	if c.Timing.HookDebounceMS <= 0 {
		verr.add("timing.hook_debounce_ms must be positive")
	}
	if c.Timing.RingOnMS <= 0 {
		verr.add("timing.ring_on_ms must be positive")
	}
	if c.Timing.RingPauseMS <= 0 {
		verr.add("timing.ring_pause_ms must be positive")
	}
	if c.Timing.CallAttemptSec <= 0 {
		verr.add("timing.call_attempt_timeout_sec must be positive")
	}

	for code, dest := range c.SpeedDial {
		if len(code) == 0 || len(code) > 2 {
			verr.add("speed_dial code %q must be 1 or 2 digits", code)
		}
		if dest == "" {
			verr.add("speed_dial code %q has an empty destination", code)
		}
	}

	for _, entry := range c.AllowList {
		if entry == "" {
			verr.add("allowlist contains an empty entry")
		}
	}

	if c.Gain.Microphone < 0 || c.Gain.Microphone > 2.0 {
		verr.add("gain.microphone must be in [0.0, 2.0], got %v", c.Gain.Microphone)
	}
	if c.Gain.Speaker < 0 || c.Gain.Speaker > 2.0 {
		verr.add("gain.speaker must be in [0.0, 2.0], got %v", c.Gain.Speaker)
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// Section names used by ConfigChanged events.
const (
	SectionSIP       = "sip"
	SectionHardware  = "hardware"
	SectionTiming    = "timing"
	SectionSpeedDial = "speed_dial"
	SectionAllowList = "allowlist"
	SectionAudio     = "audio"
	SectionGain      = "gain"
	SectionStorage   = "storage"
)

// ChangedSections compares two configuration values and returns the
// section names whose serialized form differs. An unchanged document
// yields an empty slice, satisfying the no-spurious-events property.
func ChangedSections(old, new *Config) []string {
	var changed []string

	cmp := func(name string, a, b any) {
		if !equalYAML(a, b) {
			changed = append(changed, name)
		}
	}

	cmp(SectionSIP, old.SIP, new.SIP)
	cmp(SectionHardware, old.Hardware, new.Hardware)
	cmp(SectionTiming, old.Timing, new.Timing)
	cmp(SectionSpeedDial, old.SpeedDial, new.SpeedDial)
	cmp(SectionAllowList, old.AllowList, new.AllowList)
	cmp(SectionAudio, old.Audio, new.Audio)
	cmp(SectionGain, old.Gain, new.Gain)
	cmp(SectionStorage, old.Storage, new.Storage)

	return changed
}

func equalYAML(a, b any) bool {
	ab, errA := yaml.Marshal(a)
	bb, errB := yaml.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
