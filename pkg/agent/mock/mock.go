// Package mock provides test doubles for the agent package interfaces.
//
// Use Dialer to verify Dial calls and feed controlled sessions. Use Session
// to drive the duplex audio/transcript streams and inspect what the routing
// core sent.
//
// Example:
//
//	sess := mock.NewSession()
//	d := &mock.Dialer{Session: sess}
//	sess.SignalReady()
//	sess.AudioCh <- pcm
package mock

import (
	"context"
	"sync"

	"github.com/voxduct/voxduct/pkg/agent"
)

// Compile-time interface assertions.
var (
	_ agent.Dialer  = (*Dialer)(nil)
	_ agent.Session = (*Session)(nil)
)

// DialCall records a single invocation of Dialer.Dial.
type DialCall struct {
	// Ctx is the context passed to Dial.
	Ctx context.Context
	// Cfg is the Config passed to Dial.
	Cfg agent.Config
}

// Dialer is a mock implementation of agent.Dialer.
type Dialer struct {
	mu sync.Mutex

	// Session is returned by Dial. If nil, Dial returns a new default Session.
	Session agent.Session

	// DialErr, if non-nil, is returned as the error from Dial.
	DialErr error

	// DialCalls records every call to Dial in order.
	DialCalls []DialCall
}

// Dial records the call and returns Session, DialErr.
func (d *Dialer) Dial(ctx context.Context, cfg agent.Config) (agent.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCalls = append(d.DialCalls, DialCall{Ctx: ctx, Cfg: cfg})
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	if d.Session != nil {
		return d.Session, nil
	}
	return NewSession(), nil
}

// Session is a mock implementation of agent.Session. Tests feed agent output
// through AudioCh, TranscriptsCh, and InterruptsCh, and inspect sent audio
// via Sent.
type Session struct {
	// AudioCh is the channel returned by Audio. Close it (or call Close) to
	// signal end of session.
	AudioCh chan []byte

	// TranscriptsCh is the channel returned by Transcripts.
	TranscriptsCh chan agent.Transcript

	// InterruptsCh is the channel returned by Interruptions.
	InterruptsCh chan struct{}

	// SendErr, if non-nil, is returned by every SendAudio call.
	SendErr error

	mu        sync.Mutex
	sent      [][]byte
	errVal    error
	closed    bool
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

// NewSession returns a Session with buffered channels, not yet ready.
func NewSession() *Session {
	return &Session{
		AudioCh:       make(chan []byte, 64),
		TranscriptsCh: make(chan agent.Transcript, 16),
		InterruptsCh:  make(chan struct{}, 4),
		ready:         make(chan struct{}),
	}
}

// SignalReady closes the Ready channel. Safe to call more than once.
func (s *Session) SignalReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// SetErr records the session error returned by Err.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errVal = err
}

// Sent returns copies of all chunks passed to SendAudio, in order.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// SendAudio records a copy of chunk and returns SendErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.sent = append(s.sent, cp)
	return s.SendErr
}

// Audio implements agent.Session.
func (s *Session) Audio() <-chan []byte { return s.AudioCh }

// Transcripts implements agent.Session.
func (s *Session) Transcripts() <-chan agent.Transcript { return s.TranscriptsCh }

// Ready implements agent.Session.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Interruptions implements agent.Session.
func (s *Session) Interruptions() <-chan struct{} { return s.InterruptsCh }

// Err implements agent.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the session closed and closes the output channels. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() {
		close(s.AudioCh)
		close(s.TranscriptsCh)
	})
	return nil
}
