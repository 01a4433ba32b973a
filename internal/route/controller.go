// Package route implements the real-time audio routing core: capture from
// the microphone to the agent, queued playback of agent audio into the
// virtual cable, an optional cable-to-speaker monitor, and the lifecycle
// state machine tying them together.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxduct/voxduct/pkg/agent"
	"github.com/voxduct/voxduct/pkg/audio"
	"github.com/voxduct/voxduct/pkg/device"
)

// defaultReadyTimeout bounds the Connecting phase when the config does not
// set its own limit.
const defaultReadyTimeout = 10 * time.Second

// ErrInvalidTransition reports a lifecycle operation that is not allowed in
// the controller's current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrInvalidConfig reports a configuration rejected by [Config.Validate].
var ErrInvalidConfig = errors.New("invalid configuration")

// Config describes one routing session.
type Config struct {
	// Capture is the microphone stream format.
	Capture device.StreamConfig

	// Playback is the virtual cable stream format. Its channel count must
	// equal the capture count or be exactly 2 with a mono capture.
	Playback device.StreamConfig

	// Monitor enables the cable-to-speaker mirror.
	Monitor bool

	// MonitorSource is the cable's capture side. Required when Monitor is set.
	MonitorSource device.StreamConfig

	// MonitorSink is the speaker stream. Required when Monitor is set.
	MonitorSink device.StreamConfig

	// Agent configures the conversational agent connection.
	Agent agent.Config

	// ReadyTimeout bounds the wait for agent readiness and first hardware
	// callbacks. Zero means defaultReadyTimeout.
	ReadyTimeout time.Duration
}

// Validate checks the config without touching any device. Start calls it
// before opening anything.
func (c Config) Validate() error {
	var errs []error
	if c.Capture.SampleRate <= 0 {
		errs = append(errs, errors.New("capture sample rate must be positive"))
	}
	if c.Capture.Channels <= 0 {
		errs = append(errs, errors.New("capture channel count must be positive"))
	}
	if c.Capture.FramesPerBuffer <= 0 {
		errs = append(errs, errors.New("capture frames per buffer must be positive"))
	}
	if c.Playback.SampleRate <= 0 {
		errs = append(errs, errors.New("playback sample rate must be positive"))
	}
	if c.Playback.FramesPerBuffer <= 0 {
		errs = append(errs, errors.New("playback frames per buffer must be positive"))
	}
	if c.Playback.Channels < c.Capture.Channels {
		errs = append(errs, errors.New("playback channel count must not be lower than capture"))
	} else if c.Playback.Channels != c.Capture.Channels && !(c.Capture.Channels == 1 && c.Playback.Channels == 2) {
		errs = append(errs, fmt.Errorf("unsupported channel mapping %d -> %d", c.Capture.Channels, c.Playback.Channels))
	}
	if c.Agent.AgentID == "" {
		errs = append(errs, errors.New("agent id is required"))
	}
	if c.Monitor {
		if c.MonitorSource.SampleRate != c.MonitorSink.SampleRate || c.MonitorSource.Channels != c.MonitorSink.Channels {
			errs = append(errs, errors.New("monitor source and sink formats must match"))
		}
		if c.MonitorSource.SampleRate <= 0 || c.MonitorSource.Channels <= 0 || c.MonitorSource.FramesPerBuffer <= 0 {
			errs = append(errs, errors.New("monitor stream format must be fully specified"))
		}
	}
	return errors.Join(errs...)
}

// Controller owns the routing state machine. All transitions happen under an
// internal mutex; the State itself is stored atomically so callbacks and the
// control surface can read it without contention.
//
// Collaborator events (agent errors, device stops) arrive on channels watched
// by controller goroutines; only the Controller mutates state.
type Controller struct {
	opener device.Opener
	dialer agent.Dialer
	obs    Observer

	stats *Stats
	queue *audio.FrameQueue

	mu     sync.Mutex // guards transitions and the stream fields below
	state  atomic.Int32
	reason atomic.Value // string, last failure reason
	paused atomic.Bool

	sess     agent.Session
	capture  *CaptureStream
	playback *PlaybackStream
	monitor  *MonitorStream

	cancelRun context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver sets the event sink. OnStateChange is invoked while the
// Controller holds its transition lock; observer methods must not call back
// into the Controller.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.obs = o }
}

// New creates an idle Controller using the given device opener and agent
// dialer.
func New(opener device.Opener, dialer agent.Dialer, opts ...Option) *Controller {
	c := &Controller{
		opener: opener,
		dialer: dialer,
		obs:    NopObserver{},
		stats:  &Stats{},
		queue:  audio.NewFrameQueue(),
	}
	c.state.Store(int32(StateIdle))
	c.reason.Store("")
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current routing state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// FailureReason returns the reason recorded with the last transition to
// StateFailed, or the empty string.
func (c *Controller) FailureReason() string {
	r, _ := c.reason.Load().(string)
	return r
}

// Stats returns the live routing counters.
func (c *Controller) Stats() *Stats {
	return c.stats
}

// Start validates cfg, opens the monitor (when configured), dials the agent,
// opens capture and playback, and waits for readiness: the agent session
// reporting ready and both capture and playback observing their first
// hardware callback. On any failure the partial streams are released and the
// state is Failed; an invalid config is rejected synchronously with no
// transition at all.
//
// Start is accepted from Idle, Stopped, and Failed.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateIdle, StateStopped, StateFailed:
	default:
		return fmt.Errorf("route: start rejected in state %s: %w", c.State(), ErrInvalidTransition)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("route: %w: %w", ErrInvalidConfig, err)
	}

	c.setState(StateConnecting, "")
	c.paused.Store(false)
	c.queue.Drain()

	if err := c.startLocked(ctx, cfg); err != nil {
		c.teardownLocked()
		c.setState(StateFailed, err.Error())
		return err
	}

	c.setState(StateLive, "")
	return nil
}

func (c *Controller) startLocked(ctx context.Context, cfg Config) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel

	// The monitor opens both ends of the virtual cable before capture and
	// playback touch it; near-simultaneous opens of the same virtual device
	// race on some platforms.
	if cfg.Monitor {
		mon, err := OpenMonitor(c.opener, cfg.MonitorSource, cfg.MonitorSink, c.stats, c.deviceStopped("monitor"))
		if err != nil {
			return err
		}
		c.monitor = mon
		if err := mon.Start(); err != nil {
			return err
		}
	}

	sess, err := c.dialer.Dial(ctx, cfg.Agent)
	if err != nil {
		return fmt.Errorf("route: dial agent: %w", err)
	}
	c.sess = sess

	var (
		cap  *CaptureStream
		play *PlaybackStream
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		cap, err = OpenCapture(c.opener, cfg.Capture, sess, &c.paused, c.stats, c.deviceStopped("capture"))
		return err
	})
	g.Go(func() error {
		var err error
		play, err = OpenPlayback(c.opener, cfg.Playback, cfg.Capture.Channels, c.queue, &c.paused, c.stats, c.deviceStopped("playback"))
		return err
	})
	err = g.Wait()
	c.capture, c.playback = cap, play
	if err != nil {
		return err
	}

	if err := cap.Start(); err != nil {
		return err
	}
	if err := play.Start(); err != nil {
		return err
	}

	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if err := c.waitReady(ctx, sess, cap, play, timeout); err != nil {
		return err
	}

	go c.pumpAudio(runCtx, sess, cfg.Agent.SampleRate)
	go c.pumpTranscripts(runCtx, sess)
	go c.pumpInterruptions(runCtx, sess)
	go c.watchCapture(runCtx, cap)
	return nil
}

// waitReady blocks until the agent session and both streams report liveness,
// the shared timeout fires, or ctx is cancelled.
func (c *Controller) waitReady(ctx context.Context, sess agent.Session, cap *CaptureStream, play *PlaybackStream, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	waits := []struct {
		name string
		ch   <-chan struct{}
	}{
		{"agent session readiness", sess.Ready()},
		{"first capture callback", cap.Started()},
		{"first playback callback", play.Started()},
	}
	for _, w := range waits {
		select {
		case <-w.ch:
		case <-timer.C:
			return fmt.Errorf("route: timed out after %s waiting for %s", timeout, w.name)
		case <-ctx.Done():
			return fmt.Errorf("route: start cancelled waiting for %s: %w", w.name, ctx.Err())
		}
	}
	return nil
}

// Pause substitutes silence on capture and playback from the next callback
// on. Pausing an already paused route is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateLive:
		c.paused.Store(true)
		c.setState(StatePaused, "")
		return nil
	case StatePaused:
		return nil
	default:
		return fmt.Errorf("route: pause rejected in state %s: %w", c.State(), ErrInvalidTransition)
	}
}

// Resume reverses Pause. Resuming a live route is a no-op.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StatePaused:
		// Anything the agent emitted during the pause is stale by now.
		// pumpAudio stops enqueueing while paused, but a chunk may have
		// slipped in before the flag was set, so drain here as well.
		if n := c.queue.Drain(); n > 0 {
			c.stats.DroppedFrames.Add(int64(n))
		}
		c.stats.QueueDepth.Store(0)
		c.paused.Store(false)
		c.setState(StateLive, "")
		return nil
	case StateLive:
		return nil
	default:
		return fmt.Errorf("route: resume rejected in state %s: %w", c.State(), ErrInvalidTransition)
	}
}

// Stop tears the session down in order: agent, capture, playback, monitor,
// each tolerating an already-gone resource. Stopping an already stopped,
// failed, or idle controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateLive, StatePaused:
	case StateIdle, StateStopped, StateFailed:
		return nil
	default:
		return fmt.Errorf("route: stop rejected in state %s: %w", c.State(), ErrInvalidTransition)
	}

	c.setState(StateStopping, "")
	c.teardownLocked()
	c.setState(StateStopped, "")
	return nil
}

// fail moves the controller to StateFailed with reason, releasing all
// streams. Events arriving during or after an ordered teardown are ignored.
func (c *Controller) fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateConnecting, StateLive, StatePaused:
	default:
		return
	}

	c.teardownLocked()
	c.setState(StateFailed, reason)
}

// teardownLocked releases the run in stop order. Every step tolerates a
// resource that is already gone.
func (c *Controller) teardownLocked() {
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
	if c.capture != nil {
		_ = c.capture.Close()
		c.capture = nil
	}
	if c.playback != nil {
		_ = c.playback.Close()
		c.playback = nil
	}
	if c.monitor != nil {
		_ = c.monitor.Close()
		c.monitor = nil
	}
	c.paused.Store(false)
}

// setState records the transition and notifies the observer. Callers hold mu.
func (c *Controller) setState(s State, reason string) {
	old := c.State()
	c.state.Store(int32(s))
	c.reason.Store(reason)
	if reason != "" {
		slog.Warn("routing state changed", "from", old.String(), "to", s.String(), "reason", reason)
	} else {
		slog.Debug("routing state changed", "from", old.String(), "to", s.String())
	}
	c.obs.OnStateChange(s, reason)
}

// deviceStopped returns an onStop hook for the named stream. The transition
// runs on its own goroutine because drivers may fire stop callbacks from
// inside Close.
func (c *Controller) deviceStopped(name string) func() {
	return func() {
		go c.fail(fmt.Sprintf("%s device stopped", name))
	}
}

// pumpAudio moves agent audio into the output queue as mono frames at the
// agent's sample rate. Chunks arriving while the route is paused are dropped
// so they cannot play after a resume. A closed audio channel outside of an
// ordered teardown fails the route.
func (c *Controller) pumpAudio(ctx context.Context, sess agent.Session, sampleRate int) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-sess.Audio():
			if !ok {
				if ctx.Err() == nil {
					reason := "agent session closed"
					if err := sess.Err(); err != nil {
						reason = err.Error()
					}
					c.fail(reason)
				}
				return
			}
			c.stats.AgentBytesIn.Add(int64(len(chunk)))
			if c.paused.Load() {
				c.stats.DroppedFrames.Add(1)
				continue
			}
			c.queue.Push(audio.AudioFrame{Data: chunk, SampleRate: sampleRate, Channels: 1})
			c.stats.QueueDepth.Store(int64(c.queue.Len()))
		}
	}
}

// pumpTranscripts forwards agent transcripts to the observer.
func (c *Controller) pumpTranscripts(ctx context.Context, sess agent.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-sess.Transcripts():
			if !ok {
				return
			}
			c.obs.OnTranscript(t)
		}
	}
}

// pumpInterruptions drains the output queue when the agent reports the user
// interrupted it, so the cut-off response does not keep playing.
func (c *Controller) pumpInterruptions(ctx context.Context, sess agent.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sess.Interruptions():
			if !ok {
				return
			}
			n := c.queue.Drain()
			c.stats.DroppedFrames.Add(int64(n))
			c.stats.QueueDepth.Store(0)
			slog.Debug("agent interrupted, drained output queue", "frames", n)
		}
	}
}

// watchCapture fails the route on the first capture send error.
func (c *Controller) watchCapture(ctx context.Context, cap *CaptureStream) {
	select {
	case <-ctx.Done():
	case err := <-cap.Err():
		c.fail(err.Error())
	}
}
