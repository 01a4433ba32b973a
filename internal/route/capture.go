package route

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/voxduct/voxduct/pkg/audio"
	"github.com/voxduct/voxduct/pkg/device"
)

// AudioSender is the slice of the agent session the capture path needs.
type AudioSender interface {
	SendAudio(chunk []byte) error
}

// CaptureStream forwards microphone audio to the agent. While the route is
// paused it forwards a preallocated all-zero buffer of identical shape, so
// the agent keeps receiving a steady stream and never hears stale speech.
//
// The data callback runs in the driver's real-time context: it reads the
// pause flag exactly once, takes no locks, and reports send failures through
// a non-blocking error channel.
type CaptureStream struct {
	cfg     device.StreamConfig
	sender  AudioSender
	paused  *atomic.Bool
	stats   *Stats
	silence []byte

	started   chan struct{}
	startOnce sync.Once
	errCh     chan error

	stream device.Stream
}

// OpenCapture opens the microphone via the opener and wires its callback.
// The stream is not started; call Start. onStop, when non-nil, is invoked if
// the device stops outside of Close.
func OpenCapture(opener device.Opener, cfg device.StreamConfig, sender AudioSender, paused *atomic.Bool, stats *Stats, onStop func()) (*CaptureStream, error) {
	c := &CaptureStream{
		cfg:     cfg,
		sender:  sender,
		paused:  paused,
		stats:   stats,
		silence: audio.Silence(cfg.FramesPerBuffer, cfg.Channels),
		started: make(chan struct{}),
		errCh:   make(chan error, 1),
	}
	st, err := opener.OpenInput(cfg, c.onData, onStop)
	if err != nil {
		return nil, fmt.Errorf("route: open capture: %w", err)
	}
	c.stream = st
	return c, nil
}

// Start begins callback delivery.
func (c *CaptureStream) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("route: start capture: %w", err)
	}
	return nil
}

// Close stops the stream. Idempotent.
func (c *CaptureStream) Close() error {
	return c.stream.Close()
}

// Started returns a channel that closes once the first hardware callback has
// executed. The device reporting "open" is not proof of a live clock.
func (c *CaptureStream) Started() <-chan struct{} { return c.started }

// Err returns the channel carrying the first send failure, if any.
func (c *CaptureStream) Err() <-chan error { return c.errCh }

func (c *CaptureStream) onData(samples []byte, frames int) {
	c.startOnce.Do(func() { close(c.started) })
	c.stats.FramesCaptured.Add(int64(frames))

	buf := samples
	if c.paused.Load() {
		// Same shape as the captured buffer. The preallocated silence covers
		// the configured period size; drivers delivering more force a rare
		// allocation.
		if len(samples) <= len(c.silence) {
			buf = c.silence[:len(samples)]
		} else {
			buf = make([]byte, len(samples))
		}
		c.stats.SilenceSubstitutions.Add(1)
	}

	if err := c.sender.SendAudio(buf); err != nil {
		c.reportErr(fmt.Errorf("route: send capture audio: %w", err))
		return
	}
	c.stats.AgentBytesOut.Add(int64(len(buf)))
}

// reportErr delivers err without blocking; only the first error matters.
func (c *CaptureStream) reportErr(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}
