package route

import "sync/atomic"

// Stats holds the routing counters that the real-time callbacks bump. All
// fields are atomics so callbacks never take a lock; consumers read a
// consistent-enough view through [Stats.Snapshot].
type Stats struct {
	// FramesCaptured counts frames delivered by the capture device.
	FramesCaptured atomic.Int64

	// FramesPlayed counts source frames actually written to the playback
	// device (silence fills excluded).
	FramesPlayed atomic.Int64

	// SilenceSubstitutions counts callbacks that wrote or forwarded silence
	// because the route was paused.
	SilenceSubstitutions atomic.Int64

	// PlaybackUnderruns counts playback callbacks that ran short of queued
	// audio and zero-filled the remainder.
	PlaybackUnderruns atomic.Int64

	// DroppedFrames counts queued frames discarded by pause drains and
	// agent interruptions.
	DroppedFrames atomic.Int64

	// MonitorDrops counts monitor input buffers dropped because the bridge
	// ring was full.
	MonitorDrops atomic.Int64

	// MonitorUnderruns counts monitor output callbacks that zero-filled
	// because the bridge ring was empty.
	MonitorUnderruns atomic.Int64

	// AgentBytesOut counts PCM bytes sent to the agent session.
	AgentBytesOut atomic.Int64

	// AgentBytesIn counts PCM bytes received from the agent session.
	AgentBytesIn atomic.Int64

	// QueueDepth tracks the current output queue length in frames.
	QueueDepth atomic.Int64
}

// Snapshot is a point-in-time copy of [Stats] suitable for JSON encoding and
// metric observation.
type Snapshot struct {
	FramesCaptured       int64 `json:"frames_captured"`
	FramesPlayed         int64 `json:"frames_played"`
	SilenceSubstitutions int64 `json:"silence_substitutions"`
	PlaybackUnderruns    int64 `json:"playback_underruns"`
	DroppedFrames        int64 `json:"dropped_frames"`
	MonitorDrops         int64 `json:"monitor_drops"`
	MonitorUnderruns     int64 `json:"monitor_underruns"`
	AgentBytesOut        int64 `json:"agent_bytes_out"`
	AgentBytesIn         int64 `json:"agent_bytes_in"`
	QueueDepth           int64 `json:"queue_depth"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FramesCaptured:       s.FramesCaptured.Load(),
		FramesPlayed:         s.FramesPlayed.Load(),
		SilenceSubstitutions: s.SilenceSubstitutions.Load(),
		PlaybackUnderruns:    s.PlaybackUnderruns.Load(),
		DroppedFrames:        s.DroppedFrames.Load(),
		MonitorDrops:         s.MonitorDrops.Load(),
		MonitorUnderruns:     s.MonitorUnderruns.Load(),
		AgentBytesOut:        s.AgentBytesOut.Load(),
		AgentBytesIn:         s.AgentBytesIn.Load(),
		QueueDepth:           s.QueueDepth.Load(),
	}
}
