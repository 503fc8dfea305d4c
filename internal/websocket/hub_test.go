package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	texts  [][]byte
	audio  [][]byte
	closed bool
}

func (h *recordingHandler) HandleClientText(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, data)
}

func (h *recordingHandler) HandleClientAudio(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audio = append(h.audio, data)
}

func (h *recordingHandler) ClientClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func dialTestClient(t *testing.T, hub *Hub, handler FrameHandler) (*Client, *websocket.Conn) {
	t.Helper()

	accepted := make(chan *Client, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, err := Upgrade(w, r, hub, zap.NewNop())
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		client.Start("test-session", handler)
		accepted <- client
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	select {
	case client := <-accepted:
		return client, conn
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFramesRouteByType(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	handler := &recordingHandler{}
	_, conn := dialTestClient(t, hub, handler)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return len(handler.texts) == 1 && len(handler.audio) == 1
	})

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if string(handler.texts[0]) != `{"type":"KeepAlive"}` {
		t.Fatalf("unexpected text frame %q", handler.texts[0])
	}
	if len(handler.audio[0]) != 4 {
		t.Fatalf("unexpected audio frame length %d", len(handler.audio[0]))
	}
}

func TestOutboundFramesReachTheWire(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client, conn := dialTestClient(t, hub, &recordingHandler{})

	if err := client.SendJSON(map[string]string{"type": "Welcome"}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := client.SendBinary([]byte{9, 9}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if messageType != websocket.TextMessage || !strings.Contains(string(payload), "Welcome") {
		t.Fatalf("unexpected first frame: type=%d payload=%q", messageType, payload)
	}

	messageType, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if messageType != websocket.BinaryMessage || len(payload) != 2 {
		t.Fatalf("unexpected second frame: type=%d len=%d", messageType, len(payload))
	}
}

func TestDisconnectNotifiesHandler(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	handler := &recordingHandler{}
	_, conn := dialTestClient(t, hub, handler)
	waitFor(t, func() bool { return hub.Count() == 1 })

	conn.Close()

	waitFor(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return handler.closed
	})
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestSendAfterCloseReturnsError(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client, _ := dialTestClient(t, hub, &recordingHandler{})
	client.Close()
	client.Close()

	if err := client.SendBinary([]byte{0, 0}); err != ErrClientClosed {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}
