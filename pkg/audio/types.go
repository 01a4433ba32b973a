package audio

// AudioFrame is a single frame of PCM audio flowing through the routing
// pipeline. Frames are the atomic unit of transport: captured from the
// microphone, received from the agent connection, and played through the
// virtual cable. A frame is immutable once produced; ownership transfers
// from producer to consumer when it is enqueued.
type AudioFrame struct {
	// Data is little-endian signed 16-bit PCM.
	Data []byte

	// SampleRate in Hz (16000 for the agent connection).
	SampleRate int

	// Channels: 1 for mono (agent side), 2 for stereo (virtual cable side).
	Channels int
}

// Samples returns the number of int16 samples in the frame across all channels.
func (f AudioFrame) Samples() int {
	return len(f.Data) / BytesPerSample
}

// Frames returns the number of per-channel sample groups in the frame.
// Returns 0 when Channels is not positive.
func (f AudioFrame) Frames() int {
	if f.Channels <= 0 {
		return 0
	}
	return f.Samples() / f.Channels
}

// BytesPerSample is the width of one int16 PCM sample.
const BytesPerSample = 2
