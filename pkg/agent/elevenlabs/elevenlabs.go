// Package elevenlabs implements the agent.Dialer interface for the ElevenLabs
// Conversational AI WebSocket API.
//
// It establishes a bidirectional WebSocket connection to the conversation
// endpoint and exchanges JSON events. Audio travels as base64-encoded PCM16
// mono chunks in both directions; transcripts, interruptions, and keepalive
// pings are surfaced through the session's event channels.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxduct/voxduct/pkg/agent"
)

// Compile-time assertions that Dialer and session satisfy the agent interfaces.
var (
	_ agent.Dialer  = (*Dialer)(nil)
	_ agent.Session = (*session)(nil)
)

const (
	defaultBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	// audioBuf is the buffer depth of the session's audio channel. Sized so a
	// briefly stalled consumer does not back-pressure the receive loop.
	audioBuf = 64

	// transcriptBuf is the buffer depth of the transcript channel.
	transcriptBuf = 16

	// interruptBuf is the buffer depth of the interruption channel.
	interruptBuf = 4

	// sendBuf is the depth of the outbound audio queue. At 20ms per chunk it
	// absorbs over a second of connection stall before chunks are dropped.
	sendBuf = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithBaseURL overrides the conversation WebSocket URL. Primarily used in
// tests to point at a local mock server.
func WithBaseURL(u string) Option {
	return func(d *Dialer) { d.baseURL = u }
}

// ── Dialer ─────────────────────────────────────────────────────────────────────

// Dialer implements agent.Dialer for the ElevenLabs Conversational AI API.
type Dialer struct {
	baseURL string
}

// New creates a Dialer with the given options.
func New(opts ...Option) *Dialer {
	d := &Dialer{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial implements agent.Dialer. The returned session's Ready channel closes
// once the server sends its conversation initiation metadata.
func (d *Dialer) Dial(ctx context.Context, cfg agent.Config) (agent.Session, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("elevenlabs: agent id is required")
	}

	wsURL := fmt.Sprintf("%s?agent_id=%s", d.baseURL, url.QueryEscape(cfg.AgentID))

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("xi-api-key", cfg.APIKey)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:        conn,
		audioCh:     make(chan []byte, audioBuf),
		transcripts: make(chan agent.Transcript, transcriptBuf),
		interrupts:  make(chan struct{}, interruptBuf),
		ready:       make(chan struct{}),
		sendCh:      make(chan []byte, sendBuf),
		ctx:         sessCtx,
		cancel:      sessCancel,
	}

	go sess.receiveLoop()
	go sess.sendLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

// userAudioChunk carries one captured PCM16 chunk to the agent.
type userAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// pongMessage answers a server ping to keep the conversation alive.
type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int    `json:"event_id"`
	} `json:"audio_event,omitempty"`

	AgentResponseEvent *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	UserTranscriptionEvent *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	PingEvent *struct {
		EventID int `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn        *websocket.Conn
	audioCh     chan []byte
	transcripts chan agent.Transcript
	interrupts  chan struct{}
	ready       chan struct{}
	sendCh      chan []byte

	mu        sync.Mutex
	errVal    error
	closed    bool
	readyOnce sync.Once
	dropWarn  sync.Once

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// audioCh and transcripts: it closes both when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(fmt.Errorf("elevenlabs: read: %w", err))
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "conversation_initiation_metadata":
		s.readyOnce.Do(func() { close(s.ready) })

	case "audio":
		if evt.AudioEvent == nil || evt.AudioEvent.AudioBase64 == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.AudioEvent.AudioBase64)
		if err != nil || len(audioData) == 0 {
			return
		}
		select {
		case s.audioCh <- audioData:
		case <-s.ctx.Done():
		}

	case "agent_response":
		if evt.AgentResponseEvent == nil || evt.AgentResponseEvent.AgentResponse == "" {
			return
		}
		s.deliverTranscript(agent.Transcript{
			Role: agent.RoleAgent,
			Text: evt.AgentResponseEvent.AgentResponse,
		})

	case "user_transcript":
		if evt.UserTranscriptionEvent == nil || evt.UserTranscriptionEvent.UserTranscript == "" {
			return
		}
		s.deliverTranscript(agent.Transcript{
			Role: agent.RoleUser,
			Text: evt.UserTranscriptionEvent.UserTranscript,
		})

	case "interruption":
		select {
		case s.interrupts <- struct{}{}:
		default:
			// An undelivered interruption is already pending; coalesce.
		}

	case "ping":
		if evt.PingEvent == nil {
			return
		}
		_ = s.writeJSON(pongMessage{Type: "pong", EventID: evt.PingEvent.EventID})
	}
}

// sendLoop encodes queued capture chunks and writes them to the WebSocket.
// It is the single writer for audio, so a stalled connection backs up the
// bounded send queue instead of blocking the caller of SendAudio. A write
// failure terminates the loop and is surfaced through Err.
func (s *session) sendLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk := <-s.sendCh:
			err := s.writeJSON(userAudioChunk{
				UserAudioChunk: base64.StdEncoding.EncodeToString(chunk),
			})
			if err != nil {
				if s.ctx.Err() == nil {
					s.setErr(fmt.Errorf("elevenlabs: send audio: %w", err))
				}
				return
			}
		}
	}
}

func (s *session) deliverTranscript(t agent.Transcript) {
	select {
	case s.transcripts <- t:
	case <-s.ctx.Done():
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("elevenlabs: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.transcripts)
	})
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendAudio queues one PCM16 mono chunk for delivery to the agent. The chunk
// is copied before SendAudio returns, so the caller may reuse its buffer.
// SendAudio never performs network I/O: it is safe to call from a device
// callback. When the connection stalls and the send queue fills, the oldest
// pending chunk is dropped so the freshest audio wins. A failed session
// write is reported on the next call.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("elevenlabs: session closed")
	}
	s.mu.Unlock()

	if err := s.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)

	for {
		select {
		case s.sendCh <- buf:
			return nil
		default:
		}
		select {
		case <-s.sendCh:
			s.dropWarn.Do(func() {
				slog.Warn("elevenlabs: send queue full, dropping oldest audio")
			})
		default:
		}
	}
}

// Audio returns the channel on which the agent's synthesised audio arrives.
func (s *session) Audio() <-chan []byte { return s.audioCh }

// Transcripts returns the channel on which transcript entries arrive.
func (s *session) Transcripts() <-chan agent.Transcript { return s.transcripts }

// Ready returns the channel that closes once the agent acknowledged the session.
func (s *session) Ready() <-chan struct{} { return s.ready }

// Interruptions returns the channel signalling interrupted agent responses.
func (s *session) Interruptions() <-chan struct{} { return s.interrupts }

// Err returns the first non-nil error that terminated the session.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
