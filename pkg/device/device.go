// Package device abstracts the platform audio driver behind a small opener
// interface so the routing core can be exercised with fake streams in tests.
//
// The two primary abstractions are:
//
//   - [Opener] opens capture and playback streams on named devices.
//   - [Stream] is an open hardware stream with Start/Close lifecycle.
//
// The real implementation lives in device/malgo (miniaudio); device/mock
// provides manually triggered streams for tests. Implementations must invoke
// data callbacks from their own driver context; callers treat each callback
// as a real-time context that runs concurrently with everything else.
package device

import "errors"

// ErrDeviceNotFound is returned by an Opener when no device matches the
// requested identifier.
var ErrDeviceNotFound = errors.New("device: no matching device")

// StreamConfig describes the format of a stream to open. All fields are
// required; the identifiers are matched against the platform's device list
// by decoded ID or name substring.
type StreamConfig struct {
	// DeviceID selects the device, by decoded platform ID or name substring.
	// Empty selects the platform default.
	DeviceID string

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count of every callback buffer.
	Channels int

	// FramesPerBuffer is the per-callback frame count the driver is asked
	// for. Drivers may deliver a different count; callbacks must honour the
	// count they are handed.
	FramesPerBuffer int
}

// InputCallback receives just-captured interleaved int16 PCM. samples holds
// frames×channels×2 bytes. The buffer is only valid for the duration of the
// call; implementations reuse it.
type InputCallback func(samples []byte, frames int)

// OutputCallback must fill out with frames×channels×2 bytes of interleaved
// int16 PCM. The buffer is pre-zeroed by some drivers but not all; callbacks
// must write every byte they are responsible for.
type OutputCallback func(out []byte, frames int)

// Stream is an open hardware audio stream.
//
// Close stops the stream and releases the device. It is safe to call Close
// more than once; subsequent calls are no-ops and return nil.
type Stream interface {
	// Start begins callback delivery. The device may report "open" before the
	// first callback has fired; callers that need proof of a live clock must
	// observe a callback themselves.
	Start() error

	// Close stops callback delivery and releases the device.
	Close() error
}

// Opener opens audio streams on the platform driver. Implementations must be
// safe for concurrent use; the routing core opens capture, playback, and
// monitor streams from the same Opener.
type Opener interface {
	// OpenInput opens a capture stream. onData is invoked from the driver's
	// real-time context with each captured buffer. onStop, when non-nil, is
	// invoked once if the device stops outside of Close (unplugged, driver
	// fault); it must not block.
	OpenInput(cfg StreamConfig, onData InputCallback, onStop func()) (Stream, error)

	// OpenOutput opens a playback stream. onData is invoked from the driver's
	// real-time context each time the device needs a buffer filled.
	OpenOutput(cfg StreamConfig, onData OutputCallback, onStop func()) (Stream, error)

	// Close releases the opener's driver context. Streams opened from it must
	// be closed first.
	Close() error
}

// Kind distinguishes capture from playback devices in enumeration results.
type Kind int

const (
	// Capture devices record audio (microphones, virtual cable outputs).
	Capture Kind = iota

	// Playback devices render audio (speakers, virtual cable inputs).
	Playback
)

// String returns the human-readable name of the device kind.
func (k Kind) String() string {
	switch k {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one enumerated audio device.
type DeviceInfo struct {
	// Index is the position in the platform's device list.
	Index int

	// Name is the human-readable device name.
	Name string

	// ID is the decoded platform device identifier.
	ID string

	// IsDefault reports whether the platform considers this the default
	// device of its kind.
	IsDefault bool
}
