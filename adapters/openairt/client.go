package openairt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/domain/entities"
	"github.com/satriahrh/jembatan/domain/repositories"
)

const (
	dialTimeout  = 10 * time.Second
	writeWait    = 10 * time.Second
	eventBuffer  = 64
	maxEventSize = 4 * 1024 * 1024 // audio deltas are base64 inflated
)

// Config holds connection parameters for the realtime provider.
type Config struct {
	// URL is the provider's realtime WebSocket endpoint.
	URL string
	// APIKey is passed as a bearer token.
	APIKey string
	// Model is appended as a query parameter when the URL has none.
	Model string
}

// Client owns one WebSocket connection to the realtime provider and
// implements repositories.Upstream. One client per session, never shared.
type Client struct {
	cfg    Config
	logger *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan repositories.UpstreamEvent
	done    chan struct{}

	configApplied bool
	closeOnce     sync.Once
}

var _ repositories.Upstream = (*Client)(nil)

// NewClient creates an unconnected upstream client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		events: make(chan repositories.UpstreamEvent, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Connect dials the provider and starts the read loop. The returned channel
// is closed when the connection ends.
func (c *Client) Connect(ctx context.Context) (<-chan repositories.UpstreamEvent, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	url := c.cfg.URL
	if c.cfg.Model != "" {
		url = fmt.Sprintf("%s?model=%s", c.cfg.URL, c.cfg.Model)
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Error("Upstream dial failed",
			zap.String("url", c.cfg.URL),
			zap.Int("status", status),
			zap.Error(err))
		return nil, fmt.Errorf("failed to dial upstream: %w", err)
	}

	conn.SetReadLimit(maxEventSize)
	c.conn = conn

	go c.readLoop()

	c.logger.Info("Upstream connected", zap.String("url", c.cfg.URL))
	return c.events, nil
}

// ApplySessionConfig sends the translated session configuration. A second
// full application on the same connection is rejected; incremental updates
// go through UpdateSessionConfig.
func (c *Client) ApplySessionConfig(cfg repositories.SessionConfig) error {
	if c.configApplied {
		return fmt.Errorf("session configuration already applied")
	}
	if err := c.writeRaw(cfg.Payload); err != nil {
		return err
	}
	c.configApplied = true
	return nil
}

// UpdateSessionConfig sends an incremental configuration update. The caller
// is responsible for gating this behind an idle response state.
func (c *Client) UpdateSessionConfig(cfg repositories.SessionConfig) error {
	if !c.configApplied {
		return fmt.Errorf("session configuration not yet applied")
	}
	return c.writeRaw(cfg.Payload)
}

// AppendAudio streams one PCM16 segment into the provider's input buffer.
func (c *Client) AppendAudio(pcm []byte) error {
	return c.writeJSON(bufferAppendEvent{
		Type:  eventBufferAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitAudio finalizes the input audio buffer for processing.
func (c *Client) CommitAudio() error {
	return c.writeJSON(bareEvent{Type: eventBufferCommit})
}

// ClearAudio discards the provider-side uncommitted input buffer.
func (c *Client) ClearAudio() error {
	return c.writeJSON(bareEvent{Type: eventBufferClear})
}

// CreateResponse triggers generation of a new agent response.
func (c *Client) CreateResponse() error {
	return c.writeJSON(bareEvent{Type: eventResponseCreate})
}

// CancelResponse aborts the in-flight response.
func (c *Client) CancelResponse() error {
	return c.writeJSON(bareEvent{Type: eventResponseCancel})
}

// InjectMessage inserts a conversation item with the given role and text.
func (c *Client) InjectMessage(role string, text string) error {
	// The provider types user content "input_text" and assistant content
	// "text".
	contentType := "input_text"
	if role == "assistant" {
		contentType = "text"
	}
	return c.writeJSON(convItemCreateEvent{
		Type: eventConvItemCreate,
		Item: convItem{
			Type: "message",
			Role: role,
			Content: []convItemContent{
				{Type: contentType, Text: text},
			},
		},
	})
}

// SendFunctionCallOutput returns one function-call result to the provider.
// Errors are reported as function output so the conversation turn continues.
func (c *Client) SendFunctionCallOutput(resp entities.FunctionCallResponse) error {
	output := resp.ContentJSON
	if resp.Failed() {
		raw, err := json.Marshal(map[string]string{"error": resp.ErrorMessage})
		if err != nil {
			return fmt.Errorf("failed to marshal function error: %w", err)
		}
		output = string(raw)
	}
	return c.writeJSON(convItemCreateEvent{
		Type: eventConvItemCreate,
		Item: convItem{
			Type:   "function_call_output",
			CallID: resp.ID,
			Output: output,
		},
	})
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		deadline := time.Now().Add(writeWait)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writeJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal upstream event: %w", err)
	}
	return c.writeRaw(raw)
}

func (c *Client) writeRaw(payload []byte) error {
	if c.conn == nil {
		return fmt.Errorf("upstream not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write upstream event: %w", err)
	}
	return nil
}

// readLoop pumps provider events into the event channel until the connection
// closes, then emits a terminal connection_closed event.
func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Upstream connection closed unexpectedly", zap.Error(err))
			}
			// Non-blocking: the consumer may already be gone, and the
			// closed channel carries the same signal.
			select {
			case c.events <- repositories.UpstreamEvent{Type: repositories.UpstreamEventConnectionClosed}:
			default:
			}
			return
		}

		event, ok := c.translate(data)
		if !ok {
			continue
		}
		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

// translate decodes one provider frame into the neutral event shape. Events
// the bridge does not consume are dropped.
func (c *Client) translate(data []byte) (repositories.UpstreamEvent, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error("Failed to parse upstream event", zap.Error(err))
		return repositories.UpstreamEvent{}, false
	}

	switch env.Type {
	case eventSessionCreated:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventSessionCreated}, true

	case eventSessionUpdated:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventSessionUpdated}, true

	case eventSpeechStarted:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventSpeechStarted}, true

	case eventSpeechStopped:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventSpeechStopped}, true

	case eventBufferCommitted:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventAudioCommitted}, true

	case eventTranscriptDelta:
		var ev transcriptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse transcript delta", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type: repositories.UpstreamEventTranscriptDelta,
			Text: ev.Delta,
		}, true

	case eventTranscriptCompleted:
		var ev transcriptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse transcript", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type: repositories.UpstreamEventTranscriptFinal,
			Text: ev.Transcript,
		}, true

	case eventResponseCreated:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventResponseStarted}, true

	case eventAudioDelta, eventOutputAudioDelta:
		var ev audioDeltaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse audio delta", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			c.logger.Error("Failed to decode audio delta", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type:  repositories.UpstreamEventAudioDelta,
			Audio: pcm,
		}, true

	case eventAudioDone, eventOutputAudioDone:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventAudioDone}, true

	case eventAudioTransDelta, eventOutputAudioTransDelta:
		var ev audioTranscriptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse agent transcript delta", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type: repositories.UpstreamEventAgentTextDelta,
			Text: ev.Delta,
		}, true

	case eventAudioTransDone, eventOutputAudioTransDone:
		var ev audioTranscriptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse agent transcript", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type: repositories.UpstreamEventAgentTextDone,
			Text: ev.Transcript,
		}, true

	case eventFuncArgsDone:
		var ev funcArgsDoneEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse function call event", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type: repositories.UpstreamEventFunctionCall,
			FunctionCall: &entities.FunctionCallRequest{
				ID:            ev.CallID,
				Name:          ev.Name,
				ArgumentsJSON: ev.Arguments,
			},
		}, true

	case eventResponseDone:
		return repositories.UpstreamEvent{Type: repositories.UpstreamEventResponseDone}, true

	case eventError:
		var ev errorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Error("Failed to parse upstream error", zap.Error(err))
			return repositories.UpstreamEvent{}, false
		}
		return repositories.UpstreamEvent{
			Type:         repositories.UpstreamEventProtocolError,
			ErrorCode:    ev.Error.Code,
			ErrorMessage: ev.Error.Message,
		}, true

	default:
		// Rate limits, item lifecycle and other bookkeeping events are not
		// consumed by the bridge.
		return repositories.UpstreamEvent{}, false
	}
}
