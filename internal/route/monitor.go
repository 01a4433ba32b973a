package route

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/voxduct/voxduct/pkg/audio"
	"github.com/voxduct/voxduct/pkg/device"
)

// ringPeriods is the monitor bridge capacity in callback periods. Small by
// intent: the bridge only has to absorb clock jitter between the cable and
// the speakers, and a deeper ring is audible latency.
const ringPeriods = 8

// MonitorStream mirrors the virtual cable to physical speakers: one capture
// stream on the cable, one playback stream on the speakers, bridged by a
// byte ring buffer. Frames are copied verbatim at the cable's channel count.
//
// Ring-full drops and ring-empty zero-fills are counted and logged at debug
// severity only; neither is an error. The monitor has no knowledge of the
// route's pause state.
type MonitorStream struct {
	ring  *ringbuffer.RingBuffer
	stats *Stats

	in  device.Stream
	out device.Stream

	closeOnce sync.Once
	closeErr  error
}

// OpenMonitor opens both monitor streams. srcCfg names the cable's capture
// side, sinkCfg the speakers; the two must share sample rate and channel
// count. Streams are not started; call Start.
func OpenMonitor(opener device.Opener, srcCfg, sinkCfg device.StreamConfig, stats *Stats, onStop func()) (*MonitorStream, error) {
	if srcCfg.SampleRate != sinkCfg.SampleRate || srcCfg.Channels != sinkCfg.Channels {
		return nil, fmt.Errorf("route: monitor source and sink formats differ")
	}

	m := &MonitorStream{
		ring:  ringbuffer.New(ringPeriods * srcCfg.FramesPerBuffer * srcCfg.Channels * audio.BytesPerSample),
		stats: stats,
	}

	in, err := opener.OpenInput(srcCfg, m.onInput, onStop)
	if err != nil {
		return nil, fmt.Errorf("route: open monitor source: %w", err)
	}
	m.in = in

	out, err := opener.OpenOutput(sinkCfg, m.onOutput, onStop)
	if err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("route: open monitor sink: %w", err)
	}
	m.out = out

	return m, nil
}

// Start begins callback delivery on both streams, sink first so the ring
// never backs up before the speakers drain it.
func (m *MonitorStream) Start() error {
	if err := m.out.Start(); err != nil {
		return fmt.Errorf("route: start monitor sink: %w", err)
	}
	if err := m.in.Start(); err != nil {
		_ = m.out.Close()
		return fmt.Errorf("route: start monitor source: %w", err)
	}
	return nil
}

// Close stops both streams. Idempotent.
func (m *MonitorStream) Close() error {
	m.closeOnce.Do(func() {
		errIn := m.in.Close()
		errOut := m.out.Close()
		m.ring.Reset()
		if errIn != nil {
			m.closeErr = errIn
		} else {
			m.closeErr = errOut
		}
	})
	return m.closeErr
}

func (m *MonitorStream) onInput(samples []byte, frames int) {
	n, err := m.ring.Write(samples)
	if err != nil || n < len(samples) {
		m.stats.MonitorDrops.Add(1)
		slog.Debug("monitor ring full, dropping buffer",
			"wrote", n, "buffer_bytes", len(samples))
	}
}

func (m *MonitorStream) onOutput(out []byte, frames int) {
	n, err := m.ring.Read(out)
	if err != nil || n < len(out) {
		audio.Zero(out[n:])
		m.stats.MonitorUnderruns.Add(1)
	}
}
