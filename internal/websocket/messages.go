package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of a client-facing WebSocket text message.
// Binary frames carry raw PCM16 audio in both directions and have no JSON
// envelope.
type MessageType string

// Client -> bridge message types.
const (
	MessageTypeSettings             MessageType = "Settings"
	MessageTypeUpdateInstructions   MessageType = "UpdateInstructions"
	MessageTypeInjectUserMessage    MessageType = "InjectUserMessage"
	MessageTypeInjectAgentMessage   MessageType = "InjectAgentMessage"
	MessageTypeEndOfTurn            MessageType = "EndOfTurn"
	MessageTypeInterrupt            MessageType = "Interrupt"
	MessageTypeAllow                MessageType = "Allow"
	MessageTypeFunctionCallResponse MessageType = "FunctionCallResponse"
	MessageTypeKeepAlive            MessageType = "KeepAlive"
)

// Bridge -> client message types.
const (
	MessageTypeWelcome             MessageType = "Welcome"
	MessageTypeSettingsApplied     MessageType = "SettingsApplied"
	MessageTypeConversationText    MessageType = "ConversationText"
	MessageTypeUserStartedSpeaking MessageType = "UserStartedSpeaking"
	MessageTypeAgentAudioDone      MessageType = "AgentAudioDone"
	MessageTypeFunctionCallRequest MessageType = "FunctionCallRequest"
	MessageTypeWarning             MessageType = "Warning"
	MessageTypeError               MessageType = "Error"
	MessageTypeClose               MessageType = "Close"
)

// Error codes surfaced to the client, see the error taxonomy in DESIGN.md.
const (
	ErrCodeProtocolViolation   = "PROTOCOL_VIOLATION"
	ErrCodeSettingsApplied     = "SETTINGS_ALREADY_APPLIED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamRejected    = "UPSTREAM_REJECTED"
	ErrCodeUpstreamClosed      = "UPSTREAM_CLOSED_UNEXPECTEDLY"
	ErrCodeIdleTimeout         = "IDLE_TIMEOUT"
	ErrCodeAudioBufferFull     = "AUDIO_BUFFER_FULL"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// BaseMessage defines the common structure for all JSON messages.
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// AudioFormat configures one direction of PCM16 audio.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// FunctionDefinition declares one callable function in Settings. A function
// without an Endpoint is executed client side: the bridge forwards the
// request over the socket and waits for the client's response.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Endpoint    string          `json:"endpoint,omitempty"`
}

// SettingsMessage is the client's session configuration. It must be the first
// non-handshake message on the connection and is immutable once applied,
// except for instruction updates via UpdateInstructions.
type SettingsMessage struct {
	BaseMessage
	Audio struct {
		Input  AudioFormat `json:"input"`
		Output AudioFormat `json:"output"`
	} `json:"audio"`
	Agent struct {
		Voice        string               `json:"voice,omitempty"`
		Model        string               `json:"model,omitempty"`
		Instructions string               `json:"instructions,omitempty"`
		Greeting     string               `json:"greeting,omitempty"`
		Functions    []FunctionDefinition `json:"functions,omitempty"`
		Temperature  *float64             `json:"temperature,omitempty"`
	} `json:"agent"`
	IdleTimeoutMs int             `json:"idle_timeout_ms,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
}

// UpdateInstructionsMessage changes the mutable subset of Settings. The
// update is deferred while a response is in flight.
type UpdateInstructionsMessage struct {
	BaseMessage
	Instructions string `json:"instructions"`
}

// InjectMessage inserts a text message into the conversation on behalf of
// the user or the agent.
type InjectMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// FunctionCallResponseMessage is the client's answer to a client-side
// function call, correlated by ID.
type FunctionCallResponseMessage struct {
	BaseMessage
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WelcomeMessage acknowledges the accepted connection.
type WelcomeMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

// SettingsAppliedMessage acknowledges settings application upstream.
type SettingsAppliedMessage struct {
	BaseMessage
}

// ConversationTextMessage relays transcript or agent text to the client.
type ConversationTextMessage struct {
	BaseMessage
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FunctionCallRequestMessage asks the client to execute a function.
type FunctionCallRequestMessage struct {
	BaseMessage
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// WarningMessage reports a recoverable condition that did not interrupt the
// conversation.
type WarningMessage struct {
	BaseMessage
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ErrorMessage reports a client-visible error.
type ErrorMessage struct {
	BaseMessage
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CloseMessage announces session teardown with a tagged reason, sent before
// the socket closes.
type CloseMessage struct {
	BaseMessage
	Reason string `json:"reason"`
}

// ParseClientMessage decodes one inbound text frame into its typed form.
func ParseClientMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeSettings:
		var msg SettingsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid settings message: %w", err)
		}
		if err := validateSettings(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeUpdateInstructions:
		var msg UpdateInstructionsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid update instructions message: %w", err)
		}
		return &msg, nil

	case MessageTypeInjectUserMessage, MessageTypeInjectAgentMessage:
		var msg InjectMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid inject message: %w", err)
		}
		if msg.Content == "" {
			return nil, fmt.Errorf("content is required")
		}
		return &msg, nil

	case MessageTypeFunctionCallResponse:
		var msg FunctionCallResponseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid function call response: %w", err)
		}
		if msg.ID == "" {
			return nil, fmt.Errorf("id is required")
		}
		if msg.Content != "" && msg.Error != "" {
			return nil, fmt.Errorf("content and error are mutually exclusive")
		}
		return &msg, nil

	case MessageTypeEndOfTurn, MessageTypeInterrupt, MessageTypeAllow, MessageTypeKeepAlive:
		return &base, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func validateSettings(msg *SettingsMessage) error {
	if msg.Audio.Input.SampleRate != 0 &&
		(msg.Audio.Input.SampleRate < 8000 || msg.Audio.Input.SampleRate > 48000) {
		return fmt.Errorf("input sample_rate must be between 8000 and 48000")
	}
	if msg.Audio.Output.SampleRate != 0 &&
		(msg.Audio.Output.SampleRate < 8000 || msg.Audio.Output.SampleRate > 48000) {
		return fmt.Errorf("output sample_rate must be between 8000 and 48000")
	}
	if msg.Audio.Input.Encoding != "" && msg.Audio.Input.Encoding != "linear16" {
		return fmt.Errorf("input encoding must be linear16")
	}
	if msg.IdleTimeoutMs < 0 {
		return fmt.Errorf("idle_timeout_ms must not be negative")
	}
	for _, fn := range msg.Agent.Functions {
		if fn.Name == "" {
			return fmt.Errorf("function name is required")
		}
	}
	return nil
}

// InputSampleRate returns the configured input rate or the protocol default.
func (m *SettingsMessage) InputSampleRate() int {
	if m.Audio.Input.SampleRate > 0 {
		return m.Audio.Input.SampleRate
	}
	return 16000
}

// OutputSampleRate returns the configured output rate or the protocol default.
func (m *SettingsMessage) OutputSampleRate() int {
	if m.Audio.Output.SampleRate > 0 {
		return m.Audio.Output.SampleRate
	}
	return 24000
}

// IdleTimeout returns the idle timeout from settings, or the given fallback
// when the client did not set one. The value always comes from the settings
// payload, never from the environment.
func (m *SettingsMessage) IdleTimeout(fallback time.Duration) time.Duration {
	if m.IdleTimeoutMs > 0 {
		return time.Duration(m.IdleTimeoutMs) * time.Millisecond
	}
	return fallback
}

// CreateErrorMessage creates a standardized error message.
func CreateErrorMessage(code, description string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError},
		Code:        code,
		Description: description,
	}
}

// CreateWarningMessage creates a standardized warning message.
func CreateWarningMessage(code, description string) *WarningMessage {
	return &WarningMessage{
		BaseMessage: BaseMessage{Type: MessageTypeWarning},
		Code:        code,
		Description: description,
	}
}

// CreateCloseMessage creates the teardown notice sent before disconnect.
func CreateCloseMessage(reason string) *CloseMessage {
	return &CloseMessage{
		BaseMessage: BaseMessage{Type: MessageTypeClose},
		Reason:      reason,
	}
}
