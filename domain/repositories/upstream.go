package repositories

import (
	"context"

	"github.com/satriahrh/jembatan/domain/entities"
)

// SessionConfig is the provider-specific session configuration payload
// produced by the settings translator. It is opaque to the coordinator.
type SessionConfig struct {
	Payload []byte
}

// Upstream abstracts the realtime conversational-audio provider connection.
// One Upstream instance exists per session; it is owned by the coordinator
// and never shared across sessions.
type Upstream interface {
	// Connect dials the provider. Events received on the connection are
	// delivered through the returned channel until the connection closes,
	// at which point the channel is closed.
	Connect(ctx context.Context) (<-chan UpstreamEvent, error)

	// ApplySessionConfig sends the session configuration. The coordinator
	// guarantees this happens exactly once before any other traffic.
	ApplySessionConfig(cfg SessionConfig) error

	// UpdateSessionConfig sends an incremental configuration update for the
	// mutable settings subset. Only legal after ApplySessionConfig and while
	// no response is in flight.
	UpdateSessionConfig(cfg SessionConfig) error

	// AppendAudio streams one buffered PCM16 segment into the provider's
	// input audio buffer without committing it.
	AppendAudio(pcm []byte) error

	// CommitAudio finalizes the input audio buffer for processing.
	CommitAudio() error

	// ClearAudio discards the provider-side uncommitted input buffer.
	ClearAudio() error

	// CreateResponse triggers generation of a new agent response.
	CreateResponse() error

	// CancelResponse aborts the in-flight response, if any.
	CancelResponse() error

	// InjectMessage inserts a conversation item with the given role and text.
	InjectMessage(role string, text string) error

	// SendFunctionCallOutput returns one function-call result to the provider.
	SendFunctionCallOutput(resp entities.FunctionCallResponse) error

	// Close tears down the connection. Safe to call more than once.
	Close() error
}

// UpstreamEventType discriminates events delivered by an Upstream.
type UpstreamEventType string

const (
	UpstreamEventSessionCreated   UpstreamEventType = "session_created"
	UpstreamEventSessionUpdated   UpstreamEventType = "session_updated"
	UpstreamEventSpeechStarted    UpstreamEventType = "speech_started"
	UpstreamEventSpeechStopped    UpstreamEventType = "speech_stopped"
	UpstreamEventAudioCommitted   UpstreamEventType = "audio_committed"
	UpstreamEventTranscriptDelta  UpstreamEventType = "transcript_delta"
	UpstreamEventTranscriptFinal  UpstreamEventType = "transcript_final"
	UpstreamEventResponseStarted  UpstreamEventType = "response_started"
	UpstreamEventAudioDelta       UpstreamEventType = "audio_delta"
	UpstreamEventAudioDone        UpstreamEventType = "audio_done"
	UpstreamEventAgentTextDelta   UpstreamEventType = "agent_text_delta"
	UpstreamEventAgentTextDone    UpstreamEventType = "agent_text_done"
	UpstreamEventFunctionCall     UpstreamEventType = "function_call"
	UpstreamEventResponseDone     UpstreamEventType = "response_done"
	UpstreamEventProtocolError    UpstreamEventType = "protocol_error"
	UpstreamEventConnectionClosed UpstreamEventType = "connection_closed"
)

// UpstreamEvent is the provider-neutral event shape the coordinator consumes.
type UpstreamEvent struct {
	Type UpstreamEventType

	// Audio carries decoded PCM16 bytes for audio_delta events.
	Audio []byte

	// Text carries transcript or agent text for text-bearing events.
	Text string

	// FunctionCall is set for function_call events.
	FunctionCall *entities.FunctionCallRequest

	// ErrorCode and ErrorMessage are set for protocol_error events.
	ErrorCode    string
	ErrorMessage string
}
