package openairt

import (
	"encoding/json"
	"fmt"

	"github.com/satriahrh/jembatan/domain/repositories"
	ws "github.com/satriahrh/jembatan/internal/websocket"
)

const (
	defaultModel = "gpt-realtime"

	// The provider consumes and produces 24kHz mono PCM16 regardless of the
	// client-facing sample rates; the bridge resamples at both edges.
	upstreamSampleRate = 24000
)

// Translator adapts the package-level translation functions to the
// coordinator's translator interface.
type Translator struct{}

func (Translator) Translate(msg *ws.SettingsMessage) (repositories.SessionConfig, error) {
	return TranslateSettings(msg)
}

func (Translator) TranslateInstructions(instructions string) (repositories.SessionConfig, error) {
	return TranslateInstructionsUpdate(instructions)
}

// SampleRate is the fixed provider-side audio rate. The bridge resamples
// between this and the client's negotiated rates.
const SampleRate = upstreamSampleRate

// TranslateSettings converts the client's settings message into the
// provider's session-configuration payload. The output is applied exactly
// once per upstream connection; apply-once enforcement lives in the client.
func TranslateSettings(msg *ws.SettingsMessage) (repositories.SessionConfig, error) {
	if msg == nil {
		return repositories.SessionConfig{}, fmt.Errorf("settings message is nil")
	}

	payload := sessionPayload{
		Model:             msg.Agent.Model,
		Modalities:        []string{"text", "audio"},
		Voice:             msg.Agent.Voice,
		Instructions:      buildInstructions(msg),
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Temperature:       msg.Agent.Temperature,
		InputAudioTranscription: &transcriptionConfig{
			Model: "whisper-1",
		},
		// Server VAD detects end of speech, but response creation stays with
		// the bridge so the response gate keeps single-flight control.
		TurnDetection: &turnDetection{
			Type:           "server_vad",
			CreateResponse: false,
		},
	}
	if payload.Model == "" {
		payload.Model = defaultModel
	}

	for _, fn := range msg.Agent.Functions {
		payload.Tools = append(payload.Tools, toolDefinition{
			Type:        "function",
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.Parameters,
		})
	}
	if len(payload.Tools) > 0 {
		payload.ToolChoice = "auto"
	}

	raw, err := json.Marshal(sessionUpdateEvent{
		Type:    eventSessionUpdate,
		Session: payload,
	})
	if err != nil {
		return repositories.SessionConfig{}, fmt.Errorf("failed to marshal session update: %w", err)
	}

	return repositories.SessionConfig{Payload: raw}, nil
}

// TranslateInstructionsUpdate produces the incremental session update used
// when the client changes the mutable subset of settings mid-session.
func TranslateInstructionsUpdate(instructions string) (repositories.SessionConfig, error) {
	raw, err := json.Marshal(sessionUpdateEvent{
		Type:    eventSessionUpdate,
		Session: sessionPayload{Instructions: instructions},
	})
	if err != nil {
		return repositories.SessionConfig{}, fmt.Errorf("failed to marshal instructions update: %w", err)
	}
	return repositories.SessionConfig{Payload: raw}, nil
}

// buildInstructions folds the opaque caller context into the instruction
// text. Conversation history across reconnects is the caller's to resupply,
// the bridge only passes it through.
func buildInstructions(msg *ws.SettingsMessage) string {
	instructions := msg.Agent.Instructions
	if msg.Agent.Greeting != "" {
		if instructions != "" {
			instructions += "\n\n"
		}
		instructions += "Open the conversation by greeting the user with: " + msg.Agent.Greeting
	}
	if len(msg.Context) > 0 {
		if instructions != "" {
			instructions += "\n\n"
		}
		instructions += "Conversation context: " + string(msg.Context)
	}
	return instructions
}
