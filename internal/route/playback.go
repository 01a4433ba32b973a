package route

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/voxduct/voxduct/pkg/audio"
	"github.com/voxduct/voxduct/pkg/device"
)

// PlaybackStream feeds the virtual cable from the output queue. Each callback
// requesting K frames needs K×sourceChannels samples of source audio: whole
// frames are popped from the queue without blocking, a partial remainder is
// carried between callbacks, mono sources are duplicated to stereo when the
// device runs at twice the source channel count, and any shortfall is
// zero-filled. Underrun is an expected condition, counted but never an error.
//
// While the route is paused the queue is drained-and-discarded every callback
// and pure silence is written, so no stale audio survives a resume.
type PlaybackStream struct {
	cfg       device.StreamConfig
	srcChans  int
	duplicate bool
	queue     *audio.FrameQueue
	paused    *atomic.Bool
	stats     *Stats

	// pending holds leftover source bytes from a partially consumed frame.
	// Only the playback callback touches it.
	pending []byte

	started   chan struct{}
	startOnce sync.Once

	stream device.Stream
}

// OpenPlayback opens the playback device via the opener. srcChannels is the
// channel count of queued frames; cfg.Channels must equal srcChannels or be
// exactly double it with a mono source.
func OpenPlayback(opener device.Opener, cfg device.StreamConfig, srcChannels int, queue *audio.FrameQueue, paused *atomic.Bool, stats *Stats, onStop func()) (*PlaybackStream, error) {
	duplicate := cfg.Channels != srcChannels
	if duplicate && !(srcChannels == 1 && cfg.Channels == 2) {
		return nil, fmt.Errorf("route: unsupported channel mapping %d -> %d", srcChannels, cfg.Channels)
	}

	p := &PlaybackStream{
		cfg:       cfg,
		srcChans:  srcChannels,
		duplicate: duplicate,
		queue:     queue,
		paused:    paused,
		stats:     stats,
		pending:   make([]byte, 0, cfg.FramesPerBuffer*srcChannels*audio.BytesPerSample*4),
		started:   make(chan struct{}),
	}
	st, err := opener.OpenOutput(cfg, p.onData, onStop)
	if err != nil {
		return nil, fmt.Errorf("route: open playback: %w", err)
	}
	p.stream = st
	return p, nil
}

// Start begins callback delivery.
func (p *PlaybackStream) Start() error {
	if err := p.stream.Start(); err != nil {
		return fmt.Errorf("route: start playback: %w", err)
	}
	return nil
}

// Close stops the stream. Idempotent.
func (p *PlaybackStream) Close() error {
	return p.stream.Close()
}

// Started returns a channel that closes once the first hardware callback has
// executed.
func (p *PlaybackStream) Started() <-chan struct{} { return p.started }

func (p *PlaybackStream) onData(out []byte, frames int) {
	p.startOnce.Do(func() { close(p.started) })

	if p.paused.Load() {
		if n := p.queue.Drain(); n > 0 {
			p.stats.DroppedFrames.Add(int64(n))
		}
		p.pending = p.pending[:0]
		audio.Zero(out)
		p.stats.SilenceSubstitutions.Add(1)
		p.stats.QueueDepth.Store(0)
		return
	}

	need := frames * p.srcChans * audio.BytesPerSample
	for len(p.pending) < need {
		frame, ok := p.queue.TryPop()
		if !ok {
			break
		}
		p.pending = append(p.pending, frame.Data...)
	}
	p.stats.QueueDepth.Store(int64(p.queue.Len()))

	n := min(len(p.pending), need)
	src := p.pending[:n]

	var written int
	if p.duplicate {
		written = audio.MonoToStereoInto(out, src)
	} else {
		written = copy(out, src)
	}
	audio.Zero(out[written:])

	if n < need {
		p.stats.PlaybackUnderruns.Add(1)
	}
	p.stats.FramesPlayed.Add(int64(n / (p.srcChans * audio.BytesPerSample)))

	// Shift the remainder to the front, keeping the backing array.
	p.pending = p.pending[:copy(p.pending, p.pending[n:])]
}
