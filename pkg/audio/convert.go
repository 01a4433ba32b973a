// Package audio defines the frame types and pure conversion logic for the
// voxduct routing pipeline: channel-count adaptation between the mono agent
// stream and multi-channel output devices, silence construction, and the
// frame queue that hands agent audio to the playback callback.
//
// Everything in this package is allocation-bounded and safe to call from a
// real-time audio callback unless documented otherwise.
package audio

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Duplication is byte-exact repetition: channel 1 receives identical sample
// values to channel 0, with no mixing or interpolation. Input must be
// little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// MonoToStereoInto writes the stereo expansion of pcm into dst and returns the
// number of bytes written. dst must have capacity for 2×len(pcm) bytes; excess
// input is truncated to what fits. Allocation-free, suitable for real-time
// playback callbacks.
func MonoToStereoInto(dst, pcm []byte) int {
	samples := len(pcm) / 2
	if max := len(dst) / 4; samples > max {
		samples = max
	}
	for i := 0; i < samples; i++ {
		lo, hi := pcm[i*2], pcm[i*2+1]
		j := i * 4
		dst[j] = lo
		dst[j+1] = hi
		dst[j+2] = lo
		dst[j+3] = hi
	}
	return samples * 4
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		// Clamp to int16 range.
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Silence returns an all-zero PCM buffer for the given frame count and channel
// count. PCM16 zero is digital silence, so the zero-valued byte slice is
// already the correct waveform.
func Silence(frames, channels int) []byte {
	return make([]byte, frames*channels*BytesPerSample)
}

// Zero overwrites buf with silence in place.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// IsSilence reports whether every byte of buf is zero.
func IsSilence(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
