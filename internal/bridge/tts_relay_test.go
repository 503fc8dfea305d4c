package bridge

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captureSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *captureSender) SendBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitForFrameCount(t *testing.T, sender *captureSender, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sender.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d frames, got %d", want, sender.count())
}

func TestRelayDeliversInOrder(t *testing.T) {
	sender := &captureSender{}
	relay := NewTTSAudioRelay(sender, 24000, 24000, zap.NewNop())
	defer relay.Close()

	relay.Enqueue([]byte{1, 0})
	relay.Enqueue([]byte{2, 0})
	relay.Enqueue([]byte{3, 0})
	waitForFrameCount(t, sender, 3)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, frame := range sender.frames {
		if frame[0] != byte(i+1) {
			t.Fatalf("frame %d delivered out of order", i)
		}
	}
}

func TestRelayResamples(t *testing.T) {
	sender := &captureSender{}
	relay := NewTTSAudioRelay(sender, 24000, 48000, zap.NewNop())
	defer relay.Close()

	relay.Enqueue(make([]byte, 24))
	waitForFrameCount(t, sender, 1)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.frames[0]) != 48 {
		t.Fatalf("expected 48 bytes after upsampling, got %d", len(sender.frames[0]))
	}
}

func TestInterruptFlushesAndBlocks(t *testing.T) {
	sender := &captureSender{}
	relay := NewTTSAudioRelay(sender, 24000, 24000, zap.NewNop())
	defer relay.Close()

	relay.Enqueue([]byte{1, 0})
	waitForFrameCount(t, sender, 1)

	relay.Interrupt()
	if !relay.Blocked() {
		t.Fatal("expected relay blocked after interrupt")
	}

	// Deltas arriving while blocked are discarded, not deferred.
	relay.Enqueue([]byte{2, 0})
	relay.Allow()
	relay.Enqueue([]byte{3, 0})
	waitForFrameCount(t, sender, 2)

	time.Sleep(20 * time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.frames) != 2 {
		t.Fatalf("expected discarded frame to stay discarded, got %d frames", len(sender.frames))
	}
	if sender.frames[1][0] != 3 {
		t.Fatal("expected the post-allow frame, not the blocked one")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	relay := NewTTSAudioRelay(&captureSender{}, 24000, 24000, zap.NewNop())
	relay.Close()
	relay.Close()
	relay.Enqueue([]byte{1, 0})
}
