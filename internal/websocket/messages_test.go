package websocket

import (
	"testing"
	"time"
)

func TestParseClientMessage_Settings(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name: "valid settings",
			message: `{
				"type": "Settings",
				"audio": {
					"input": {"encoding": "linear16", "sample_rate": 16000},
					"output": {"encoding": "linear16", "sample_rate": 24000}
				},
				"agent": {
					"voice": "alloy",
					"instructions": "You are a helpful assistant.",
					"functions": [{"name": "get_weather", "endpoint": "https://backend/fn"}]
				},
				"idle_timeout_ms": 30000
			}`,
			wantErr: false,
		},
		{
			name: "invalid sample rate",
			message: `{
				"type": "Settings",
				"audio": {"input": {"encoding": "linear16", "sample_rate": 100000}}
			}`,
			wantErr: true,
		},
		{
			name: "invalid encoding",
			message: `{
				"type": "Settings",
				"audio": {"input": {"encoding": "opus", "sample_rate": 16000}}
			}`,
			wantErr: true,
		},
		{
			name: "function without name",
			message: `{
				"type": "Settings",
				"agent": {"functions": [{"endpoint": "https://backend/fn"}]}
			}`,
			wantErr: true,
		},
		{
			name:    "negative idle timeout",
			message: `{"type": "Settings", "idle_timeout_ms": -5}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseClientMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseClientMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if _, ok := parsed.(*SettingsMessage); !ok {
					t.Errorf("expected *SettingsMessage, got %T", parsed)
				}
			}
		})
	}
}

func TestParseClientMessage_InjectMessages(t *testing.T) {
	parsed, err := ParseClientMessage([]byte(`{"type": "InjectUserMessage", "content": "hello"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, ok := parsed.(*InjectMessage)
	if !ok {
		t.Fatalf("expected *InjectMessage, got %T", parsed)
	}
	if msg.Content != "hello" {
		t.Errorf("expected content hello, got %s", msg.Content)
	}
	if msg.Type != MessageTypeInjectUserMessage {
		t.Errorf("expected type preserved, got %s", msg.Type)
	}

	// Empty content is rejected.
	if _, err := ParseClientMessage([]byte(`{"type": "InjectAgentMessage"}`)); err == nil {
		t.Error("expected error for missing content")
	}
}

func TestParseClientMessage_FunctionCallResponse(t *testing.T) {
	valid := `{"type": "FunctionCallResponse", "id": "call-1", "name": "get_weather", "content": "{\"temp\": 21}"}`
	parsed, err := ParseClientMessage([]byte(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := parsed.(*FunctionCallResponseMessage)
	if msg.ID != "call-1" {
		t.Errorf("expected id call-1, got %s", msg.ID)
	}

	// Missing id.
	if _, err := ParseClientMessage([]byte(`{"type": "FunctionCallResponse", "name": "x"}`)); err == nil {
		t.Error("expected error for missing id")
	}

	// Both content and error set.
	both := `{"type": "FunctionCallResponse", "id": "call-2", "content": "a", "error": "b"}`
	if _, err := ParseClientMessage([]byte(both)); err == nil {
		t.Error("expected error for content and error both set")
	}
}

func TestParseClientMessage_BareSignals(t *testing.T) {
	for _, typ := range []MessageType{MessageTypeEndOfTurn, MessageTypeInterrupt, MessageTypeAllow, MessageTypeKeepAlive} {
		parsed, err := ParseClientMessage([]byte(`{"type": "` + string(typ) + `"}`))
		if err != nil {
			t.Errorf("unexpected error for %s: %v", typ, err)
			continue
		}
		base, ok := parsed.(*BaseMessage)
		if !ok {
			t.Errorf("expected *BaseMessage for %s, got %T", typ, parsed)
			continue
		}
		if base.Type != typ {
			t.Errorf("expected type %s, got %s", typ, base.Type)
		}
	}
}

func TestParseClientMessage_Unsupported(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type": "Bogus"}`)); err == nil {
		t.Error("expected error for unsupported type")
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestSettingsDefaults(t *testing.T) {
	var msg SettingsMessage

	if got := msg.InputSampleRate(); got != 16000 {
		t.Errorf("expected default input rate 16000, got %d", got)
	}
	if got := msg.OutputSampleRate(); got != 24000 {
		t.Errorf("expected default output rate 24000, got %d", got)
	}
	if got := msg.IdleTimeout(45 * time.Second); got != 45*time.Second {
		t.Errorf("expected fallback idle timeout, got %v", got)
	}

	msg.IdleTimeoutMs = 1000
	if got := msg.IdleTimeout(45 * time.Second); got != time.Second {
		t.Errorf("expected settings idle timeout 1s, got %v", got)
	}
}
