// Package agent defines the interfaces for the remote conversational agent
// connection.
//
// The agent is an opaque duplex byte stream: the routing core sends captured
// PCM16 mono audio into it and receives synthesised PCM16 mono audio,
// transcripts, and status events back. The central abstraction is
// [Session]: a bidirectional, multiplexed connection that carries audio and
// transcripts concurrently. Sessions are long-lived (seconds to minutes).
//
// All implementations must be safe for concurrent use.
package agent

import "context"

// Role identifies the speaker of a transcript entry.
type Role string

const (
	// RoleUser marks the user's speech as recognised by the agent.
	RoleUser Role = "user"

	// RoleAgent marks the agent's generated response.
	RoleAgent Role = "agent"
)

// Transcript is one speech-to-text result emitted by the agent connection,
// covering both sides of the conversation.
type Transcript struct {
	// Role identifies who spoke.
	Role Role

	// Text is the transcript content.
	Text string
}

// Config is the initial configuration for a new agent session.
type Config struct {
	// AgentID identifies the remote conversational agent to converse with.
	AgentID string

	// APIKey authenticates the connection.
	APIKey string

	// SampleRate is the PCM sample rate in Hz for both directions.
	SampleRate int
}

// Session represents an open duplex connection to the conversational agent.
//
// The session sits on the hot path of the audio pipeline: SendAudio is
// called once per capture callback and must return quickly. Audio output is
// channel-based so the playback side never blocks on network I/O.
//
// Callers must call Close when the session is no longer needed.
type Session interface {
	// SendAudio delivers a raw PCM16 mono chunk to the agent. Returns an
	// error if the session is closed or the transport rejects the write.
	// The implementation must not retain chunk after returning.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel that emits raw PCM16 mono byte
	// slices as the agent synthesises its spoken response. The channel is
	// closed when the session ends. After it closes, call [Session.Err] to
	// check whether the session ended cleanly. Consumers must drain this
	// channel promptly to keep the receive loop from stalling.
	Audio() <-chan []byte

	// Transcripts returns a read-only channel that emits [Transcript] values
	// for both user speech and agent responses. Closed when the session ends.
	Transcripts() <-chan Transcript

	// Ready returns a channel that is closed once the agent has acknowledged
	// the session and is prepared to receive audio. Sending audio before
	// Ready closes risks the agent dropping initial frames.
	Ready() <-chan struct{}

	// Interruptions returns a channel that receives one value each time the
	// agent reports that its current response was interrupted (e.g. the user
	// started speaking over it). Consumers should discard any locally
	// buffered agent audio when this fires.
	Interruptions() <-chan struct{}

	// Err returns the error that terminated the session, or nil while the
	// session is healthy or after a clean close.
	Err() error

	// Close terminates the session and closes the Audio and Transcripts
	// channels. Calling Close more than once is safe and returns nil.
	Close() error
}

// Dialer establishes agent sessions. Implementations wrap a provider's wire
// protocol (WebSocket, gRPC) behind the [Session] abstraction.
type Dialer interface {
	// Dial opens a new session. ctx governs the connection attempt only; the
	// returned Session stays alive until Close. The caller owns the Session.
	Dial(ctx context.Context, cfg Config) (Session, error)
}
