// Package phonectl is the process controller: it owns every hardware
// port, the signalling client, the event bus, and the record store for
// the process lifetime, and wires their callbacks into the call
// manager's input queue.
package phonectl

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jacob-meacham/rotary-voip/audio"
	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/jacob-meacham/rotary-voip/config"
	"github.com/jacob-meacham/rotary-voip/dial"
	"github.com/jacob-meacham/rotary-voip/dialtone"
	"github.com/jacob-meacham/rotary-voip/eventbus"
	"github.com/jacob-meacham/rotary-voip/gpio"
	"github.com/jacob-meacham/rotary-voip/hook"
	"github.com/jacob-meacham/rotary-voip/ringer"
	"github.com/jacob-meacham/rotary-voip/signaling/sipendpoint"
	"github.com/jacob-meacham/rotary-voip/store"
	"github.com/rs/zerolog"
)

// Exit codes, per the process contract.
const (
	ExitOK                = 0
	ExitConfigInvalid     = 1
	ExitHardwareUnavailable = 2
	ExitSignallingFatal   = 3
)

// Snapshot is the read-only state exposed to the surrounding
// application: current phone state, in-flight dial buffer, and
// registration status.
type Snapshot struct {
	State             callmanager.PhoneState
	DialBufferLength  int
	Registered        bool
}

// Controller owns the wired instances for one process lifetime.
type Controller struct {
	cfgPath string
	log     zerolog.Logger

	mu  sync.RWMutex
	cfg *config.Config

	chip    *gpio.Chip
	device  *audio.FileDevice
	dial    *dial.Reader
	hookMon *hook.Monitor
	ring    *ringer.Ringer
	tones   *dialtone.Player
	sig     *sipendpoint.Client
	bus     *eventbus.Bus
	db      *store.DB
	manager *callmanager.Manager

	registered bool
}

// Run loads cfgPath, wires the system, and blocks until SIGINT/SIGTERM
// triggers shutdown or a fatal startup error occurs. SIGHUP triggers a
// configuration re-read. It returns the process exit code.
func Run(cfgPath string, log zerolog.Logger) int {
	c := &Controller{cfgPath: cfgPath, log: log.With().Str("component", "phonectl").Logger()}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		c.log.Error().Err(err).Msg("configuration invalid")
		return ExitConfigInvalid
	}
	c.cfg = cfg

	if code := c.startup(); code != ExitOK {
		return code
	}
	defer c.shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return ExitOK
		case <-hup:
			c.reload()
		}
	}
}

func (c *Controller) startup() int {
	cfg := c.cfg

	chip, err := gpio.NewChip("gpiochip0", c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to open gpio chip")
		return ExitHardwareUnavailable
	}
	c.chip = chip

	if err := chip.ConfigureInput(cfg.Hardware.HookPin, gpio.PullUp); err != nil {
		c.log.Error().Err(err).Msg("failed to configure hook pin")
		return ExitHardwareUnavailable
	}
	if err := chip.ConfigureInput(cfg.Hardware.PulsePin, gpio.PullUp); err != nil {
		c.log.Error().Err(err).Msg("failed to configure pulse pin")
		return ExitHardwareUnavailable
	}
	if err := chip.ConfigureOutput(cfg.Hardware.RingerPin); err != nil {
		c.log.Error().Err(err).Msg("failed to configure ringer pin")
		return ExitHardwareUnavailable
	}

	device, err := audio.OpenFileDevice(cfg.Hardware.MicDevice, cfg.Hardware.SpeakerDevice)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to open audio device")
		return ExitHardwareUnavailable
	}
	c.device = device

	ringWaveform, err := audio.LoadWaveform(cfg.Audio.RingFile)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load ring waveform, ringer will be silent")
	}
	c.ring = ringer.New(chip, device, ringer.Config{
		EnablePin:    cfg.Hardware.RingerPin,
		RingOn:       time.Duration(cfg.Timing.RingOnMS) * time.Millisecond,
		RingPause:    time.Duration(cfg.Timing.RingPauseMS) * time.Millisecond,
		RingWaveform: ringWaveform,
	}, c.log)

	c.tones = dialtone.New(device, dialtone.Config{
		DialTone:  loadOptionalWaveform(c.log, cfg.Audio.DialToneFile),
		ErrorTone: loadOptionalWaveform(c.log, cfg.Audio.ErrorToneFile),
		BusyTone:  loadOptionalWaveform(c.log, cfg.Audio.BusyToneFile),
	}, c.log)

	db, err := store.Open(context.Background(), cfg.Storage.DBPath)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to open call log database")
		return ExitHardwareUnavailable
	}
	c.db = db

	c.bus = eventbus.New(c.log)
	store.Subscribe(context.Background(), c.bus, db, c.log)

	sig, err := sipendpoint.New(sipendpoint.Config{
		RegistrarHost:    cfg.SIP.Host,
		RegistrarPort:    cfg.SIP.Port,
		User:             cfg.SIP.User,
		Password:         cfg.SIP.Credential,
		BindHost:         cfg.SIP.BindHost,
		BindPort:         cfg.SIP.BindPort,
		RegisterInterval: time.Duration(cfg.SIP.RegisterIntervalSec) * time.Second,
		MicGain:          cfg.Gain.Microphone,
		SpeakerGain:      cfg.Gain.Speaker,
	}, device, c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to construct signalling client")
		return ExitSignallingFatal
	}
	c.sig = sig

	c.manager = callmanager.New(sig, c.ring, c.tones, c.bus, callmanager.Config{
		SpeedDial:          cfg.SpeedDial,
		AllowList:          cfg.AllowList,
		InterDigitTimeout:  time.Duration(cfg.Timing.InterDigitMS) * time.Millisecond,
		CallAttemptTimeout: time.Duration(cfg.Timing.CallAttemptSec) * time.Second,
	}, c.log)

	c.dial = dial.New(chip, dial.Config{
		PulsePin:     cfg.Hardware.PulsePin,
		PulseTimeout: time.Duration(cfg.Timing.PulseTimeoutMS) * time.Millisecond,
	}, c.manager.OnDigit, c.log)

	hookMon, err := hook.New(chip, hook.Config{
		HookPin:      cfg.Hardware.HookPin,
		DebounceTime: time.Duration(cfg.Timing.HookDebounceMS) * time.Millisecond,
	}, func() { c.manager.OnHookPickup() }, func() { c.manager.OnHookHangup() }, c.log)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to construct hook monitor")
		return ExitHardwareUnavailable
	}
	c.hookMon = hookMon

	go c.manager.Run(context.Background())

	if err := c.dial.Start(); err != nil {
		c.log.Error().Err(err).Msg("failed to start dial reader")
		return ExitHardwareUnavailable
	}
	if err := c.hookMon.Start(); err != nil {
		c.log.Error().Err(err).Msg("failed to start hook monitor")
		return ExitHardwareUnavailable
	}

	go func() {
		if err := sig.ListenAndServe(context.Background()); err != nil {
			c.log.Error().Err(err).Msg("sip server stopped")
		}
	}()

	if err := sig.Register(context.Background()); err != nil {
		c.log.Error().Err(err).Msg("initial registration failed")
		return ExitSignallingFatal
	}
	c.mu.Lock()
	c.registered = true
	c.mu.Unlock()

	return ExitOK
}

func loadOptionalWaveform(log zerolog.Logger, path string) *audio.Waveform {
	if path == "" {
		return nil
	}
	w, err := audio.LoadWaveform(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to load waveform")
		return nil
	}
	return w
}

func (c *Controller) reload() {
	newCfg, err := config.Load(c.cfgPath)
	if err != nil {
		c.log.Error().Err(err).Msg("configuration reload failed, keeping previous configuration")
		return
	}

	c.mu.Lock()
	oldCfg := c.cfg
	c.cfg = newCfg
	c.mu.Unlock()

	for _, section := range config.ChangedSections(oldCfg, newCfg) {
		c.bus.Publish(callmanager.ConfigChangedEvent{Section: section})
	}
}

// Snapshot returns the current read-only process state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	registered := c.registered
	c.mu.RUnlock()

	return Snapshot{
		State:            c.manager.State(),
		DialBufferLength: c.manager.DigitBufferLen(),
		Registered:       registered,
	}
}

func (c *Controller) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sig != nil {
		if err := c.sig.Shutdown(ctx); err != nil {
			c.log.Warn().Err(err).Msg("signalling shutdown failed")
		}
	}
	if c.ring != nil {
		c.ring.Stop()
	}
	if c.tones != nil {
		c.tones.Stop()
	}
	if c.hookMon != nil {
		c.hookMon.Stop()
	}
	if c.dial != nil {
		c.dial.Stop()
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			c.log.Warn().Err(err).Msg("failed to close gpio chip")
		}
	}
	if c.device != nil {
		if err := c.device.Close(); err != nil {
			c.log.Warn().Err(err).Msg("failed to close audio device")
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.log.Warn().Err(err).Msg("failed to close call log database")
		}
	}
}
