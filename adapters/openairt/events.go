// Package openairt implements the upstream side of the bridge: a WebSocket
// client for an OpenAI-Realtime-style conversational audio provider, the
// settings translation into its session configuration, and the decoding of
// its server events into the provider-neutral shape the coordinator consumes.
package openairt

import "encoding/json"

// Outbound event types (bridge -> provider).
const (
	eventSessionUpdate  = "session.update"
	eventBufferAppend   = "input_audio_buffer.append"
	eventBufferCommit   = "input_audio_buffer.commit"
	eventBufferClear    = "input_audio_buffer.clear"
	eventResponseCreate = "response.create"
	eventResponseCancel = "response.cancel"
	eventConvItemCreate = "conversation.item.create"
)

// Inbound event types (provider -> bridge).
const (
	eventSessionCreated      = "session.created"
	eventSessionUpdated      = "session.updated"
	eventSpeechStarted       = "input_audio_buffer.speech_started"
	eventSpeechStopped       = "input_audio_buffer.speech_stopped"
	eventBufferCommitted     = "input_audio_buffer.committed"
	eventTranscriptDelta     = "conversation.item.input_audio_transcription.delta"
	eventTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	eventResponseCreated     = "response.created"
	eventAudioDelta          = "response.audio.delta"
	eventAudioDone           = "response.audio.done"
	eventAudioTransDelta     = "response.audio_transcript.delta"
	eventAudioTransDone      = "response.audio_transcript.done"
	// GA protocol renames of the same events.
	eventOutputAudioDelta      = "response.output_audio.delta"
	eventOutputAudioDone       = "response.output_audio.done"
	eventOutputAudioTransDelta = "response.output_audio_transcript.delta"
	eventOutputAudioTransDone  = "response.output_audio_transcript.done"
	eventFuncArgsDone          = "response.function_call_arguments.done"
	eventResponseDone          = "response.done"
	eventError                 = "error"
)

// envelope is used for initial JSON parsing to determine the event type
// before unmarshaling into the specific event struct.
type envelope struct {
	Type string `json:"type"`
}

// sessionUpdateEvent configures the provider session.
type sessionUpdateEvent struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

// sessionPayload is the provider's session configuration object.
type sessionPayload struct {
	Model                   string               `json:"model,omitempty"`
	Modalities              []string             `json:"modalities,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	Temperature             *float64             `json:"temperature,omitempty"`
	TurnDetection           *turnDetection       `json:"turn_detection,omitempty"`
	Tools                   []toolDefinition     `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
}

// turnDetection holds the provider-side VAD configuration.
type turnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
}

type transcriptionConfig struct {
	Model string `json:"model,omitempty"`
}

// toolDefinition declares one function tool to the provider.
type toolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type bufferAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 PCM16
}

type bareEvent struct {
	Type string `json:"type"`
}

type convItemCreateEvent struct {
	Type string   `json:"type"`
	Item convItem `json:"item"`
}

type convItem struct {
	Type    string            `json:"type"`
	Role    string            `json:"role,omitempty"`
	CallID  string            `json:"call_id,omitempty"`
	Output  string            `json:"output,omitempty"`
	Content []convItemContent `json:"content,omitempty"`
}

type convItemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Inbound payloads. Only the fields the bridge consumes are declared.

type transcriptEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
}

type audioDeltaEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"` // base64 PCM16
}

type audioTranscriptEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
}

type funcArgsDoneEvent struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type,omitempty"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}
