// Package mock provides manually triggered device streams for tests. Instead
// of a hardware clock, the test drives each callback explicitly: Capture
// pushes a buffer into an input stream's callback, Request asks an output
// stream's callback to fill a buffer.
package mock

import (
	"fmt"
	"sync"

	"github.com/voxduct/voxduct/pkg/device"
)

// Compile-time interface assertions.
var (
	_ device.Opener = (*Opener)(nil)
	_ device.Stream = (*InputStream)(nil)
	_ device.Stream = (*OutputStream)(nil)
)

// Opener is a fake device.Opener. It records every stream it opens so tests
// can drive their callbacks. The zero value is ready to use.
type Opener struct {
	mu      sync.Mutex
	inputs  []*InputStream
	outputs []*OutputStream
	closed  bool

	// FailInput and FailOutput, when non-nil, cause the matching Open call to
	// fail with the given error. Used to test device-open failure paths.
	FailInput  error
	FailOutput error
}

// OpenInput implements device.Opener.
func (o *Opener) OpenInput(cfg device.StreamConfig, onData device.InputCallback, onStop func()) (device.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FailInput != nil {
		return nil, o.FailInput
	}
	s := &InputStream{Config: cfg, onData: onData, onStop: onStop}
	o.inputs = append(o.inputs, s)
	return s, nil
}

// OpenOutput implements device.Opener.
func (o *Opener) OpenOutput(cfg device.StreamConfig, onData device.OutputCallback, onStop func()) (device.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FailOutput != nil {
		return nil, o.FailOutput
	}
	s := &OutputStream{Config: cfg, onData: onData, onStop: onStop}
	o.outputs = append(o.outputs, s)
	return s, nil
}

// Close implements device.Opener.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Input returns the i-th opened input stream.
func (o *Opener) Input(i int) *InputStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inputs[i]
}

// Output returns the i-th opened output stream.
func (o *Opener) Output(i int) *OutputStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outputs[i]
}

// InputCount returns how many input streams were opened.
func (o *Opener) InputCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inputs)
}

// OutputCount returns how many output streams were opened.
func (o *Opener) OutputCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.outputs)
}

// InputStream is a fake capture stream driven by [InputStream.Capture].
type InputStream struct {
	Config device.StreamConfig

	onData device.InputCallback
	onStop func()

	mu      sync.Mutex
	started bool
	closed  bool
}

// Start implements device.Stream.
func (s *InputStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: start on closed input stream")
	}
	s.started = true
	return nil
}

// Close implements device.Stream. Idempotent.
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.started = false
	return nil
}

// Started reports whether the stream has been started and not yet closed.
func (s *InputStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Capture simulates one hardware callback delivering samples. It is a no-op
// if the stream is not started.
func (s *InputStream) Capture(samples []byte) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	frames := len(samples) / (s.Config.Channels * 2)
	s.onData(samples, frames)
}

// TriggerStop simulates the device stopping outside of Close.
func (s *InputStream) TriggerStop() {
	if s.onStop != nil {
		s.onStop()
	}
}

// OutputStream is a fake playback stream driven by [OutputStream.Request].
type OutputStream struct {
	Config device.StreamConfig

	onData device.OutputCallback
	onStop func()

	mu      sync.Mutex
	started bool
	closed  bool
}

// Start implements device.Stream.
func (s *OutputStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: start on closed output stream")
	}
	s.started = true
	return nil
}

// Close implements device.Stream. Idempotent.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.started = false
	return nil
}

// Started reports whether the stream has been started and not yet closed.
func (s *OutputStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Request simulates one hardware callback asking for frames frames. It
// returns the buffer the callback filled. Returns nil if the stream is not
// started.
func (s *OutputStream) Request(frames int) []byte {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	out := make([]byte, frames*s.Config.Channels*2)
	s.onData(out, frames)
	return out
}

// TriggerStop simulates the device stopping outside of Close.
func (s *OutputStream) TriggerStop() {
	if s.onStop != nil {
		s.onStop()
	}
}
