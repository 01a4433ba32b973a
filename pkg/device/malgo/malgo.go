// Package malgo implements the device.Opener interface on top of the
// miniaudio bindings. It selects the native backend per OS (ALSA on Linux,
// WASAPI on Windows, CoreAudio on macOS) and matches devices by decoded
// platform ID or name substring.
package malgo

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/voxduct/voxduct/pkg/device"
)

// Compile-time interface assertions.
var (
	_ device.Opener = (*Opener)(nil)
	_ device.Stream = (*stream)(nil)
)

// Opener opens miniaudio streams. Create one with [New] and close it after
// all streams opened from it are closed.
type Opener struct {
	ctx *malgo.AllocatedContext

	mu     sync.Mutex
	closed bool
}

// New initialises a miniaudio context for the platform's native backend.
// Driver log messages are forwarded to slog at debug level.
func New() (*Opener, error) {
	var backends []malgo.Backend
	switch runtime.GOOS {
	case "linux":
		backends = []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		backends = []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		backends = []malgo.Backend{malgo.BackendCoreaudio}
	}

	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Opener{ctx: ctx}, nil
}

// OpenInput implements device.Opener.
func (o *Opener) OpenInput(cfg device.StreamConfig, onData device.InputCallback, onStop func()) (device.Stream, error) {
	id, err := o.resolve(malgo.Capture, cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = uint32(cfg.Channels)
	dc.Capture.DeviceID = id
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	dc.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSamples []byte, frameCount uint32) {
			onData(pSamples, int(frameCount))
		},
		Stop: onStop,
	}

	dev, err := malgo.InitDevice(o.ctx.Context, dc, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device %q: %w", cfg.DeviceID, err)
	}
	return &stream{dev: dev}, nil
}

// OpenOutput implements device.Opener.
func (o *Opener) OpenOutput(cfg device.StreamConfig, onData device.OutputCallback, onStop func()) (device.Stream, error) {
	id, err := o.resolve(malgo.Playback, cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.Playback.Format = malgo.FormatS16
	dc.Playback.Channels = uint32(cfg.Channels)
	dc.Playback.DeviceID = id
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.FramesPerBuffer)
	dc.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			onData(pOutput, int(frameCount))
		},
		Stop: onStop,
	}

	dev, err := malgo.InitDevice(o.ctx.Context, dc, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device %q: %w", cfg.DeviceID, err)
	}
	return &stream{dev: dev}, nil
}

// Close releases the miniaudio context. Idempotent.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.ctx.Uninit(); err != nil {
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	o.ctx.Free()
	return nil
}

// ListDevices enumerates the available devices of the given kind. Used by the
// operator to find the mic, cable, and speaker identifiers for the config file.
func (o *Opener) ListDevices(kind device.Kind) ([]device.DeviceInfo, error) {
	dt := malgo.Capture
	if kind == device.Playback {
		dt = malgo.Playback
	}

	infos, err := o.ctx.Devices(dt)
	if err != nil {
		return nil, fmt.Errorf("malgo: list %s devices: %w", kind, err)
	}

	devices := make([]device.DeviceInfo, 0, len(infos))
	for i, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			slog.Warn("skipping device with undecodable ID", "index", i, "err", err)
			continue
		}
		devices = append(devices, device.DeviceInfo{
			Index:     i,
			Name:      info.Name(),
			ID:        decodedID,
			IsDefault: info.IsDefault == 1,
		})
	}
	return devices, nil
}

// resolve finds the platform device pointer for the given identifier. An
// empty identifier selects the platform default (nil pointer).
func (o *Opener) resolve(dt malgo.DeviceType, identifier string) (unsafe.Pointer, error) {
	if identifier == "" {
		return nil, nil
	}

	infos, err := o.ctx.Devices(dt)
	if err != nil {
		return nil, fmt.Errorf("malgo: list devices: %w", err)
	}

	for _, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			continue
		}
		if matchesDevice(decodedID, info, identifier) {
			return info.ID.Pointer(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", device.ErrDeviceNotFound, identifier)
}

// matchesDevice checks if the device matches the identifier from the config.
func matchesDevice(decodedID string, info malgo.DeviceInfo, identifier string) bool {
	if runtime.GOOS == "windows" && identifier == "sysdefault" {
		// On Windows there is no "sysdefault" device; use the default instead.
		return info.IsDefault == 1
	}
	return decodedID == identifier || strings.Contains(info.Name(), identifier)
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// stream wraps a malgo device as a device.Stream.
type stream struct {
	dev *malgo.Device

	mu     sync.Mutex
	closed bool
}

// Start begins callback delivery.
func (s *stream) Start() error {
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("malgo: start device: %w", err)
	}
	return nil
}

// Close stops the device and releases it. Idempotent.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.dev.Stop()
	s.dev.Uninit()
	return nil
}
