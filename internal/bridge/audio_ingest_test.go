package bridge

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// 16kHz PCM16: 32 bytes per millisecond.
func msOfAudio(ms int) []byte {
	return make([]byte, ms*32)
}

func TestEndTurnBelowMinimumIsSuppressed(t *testing.T) {
	buf := NewAudioIngestBuffer(16000, 100*time.Millisecond, 0, zap.NewNop())

	if _, err := buf.Append(msOfAudio(50)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if buf.EndTurn() {
		t.Fatal("expected commit suppressed below minimum duration")
	}

	// The underrun keeps its audio; the next frames accumulate on top.
	if _, err := buf.Append(msOfAudio(60)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if !buf.EndTurn() {
		t.Fatal("expected commit once accumulated duration crosses the minimum")
	}
}

func TestEndTurnIdempotent(t *testing.T) {
	buf := NewAudioIngestBuffer(16000, 100*time.Millisecond, 0, zap.NewNop())

	buf.Append(msOfAudio(150))
	if !buf.EndTurn() {
		t.Fatal("expected first end-of-turn to commit")
	}
	if buf.EndTurn() {
		t.Fatal("expected repeated end-of-turn to be a no-op")
	}

	// A frame after the commit starts a new turn.
	buf.Append(msOfAudio(150))
	if !buf.EndTurn() {
		t.Fatal("expected commit for the new turn")
	}
}

func TestAppendAlignsOddFrames(t *testing.T) {
	buf := NewAudioIngestBuffer(16000, time.Millisecond, 0, zap.NewNop())

	aligned, err := buf.Append(make([]byte, 33))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if len(aligned) != 32 {
		t.Fatalf("expected trailing byte truncated, got %d bytes", len(aligned))
	}

	aligned, err = buf.Append(make([]byte, 1))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if len(aligned) != 0 {
		t.Fatalf("expected single-byte frame to align to nothing, got %d bytes", len(aligned))
	}
}

func TestAppendRejectsOverfullBuffer(t *testing.T) {
	buf := NewAudioIngestBuffer(16000, time.Millisecond, 64, zap.NewNop())

	if _, err := buf.Append(make([]byte, 64)); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := buf.Append(make([]byte, 2)); !errors.Is(err, ErrAudioBufferFull) {
		t.Fatalf("expected ErrAudioBufferFull, got %v", err)
	}
}

func TestDiscardPreventsCommit(t *testing.T) {
	buf := NewAudioIngestBuffer(16000, 100*time.Millisecond, 0, zap.NewNop())

	buf.Append(msOfAudio(200))
	buf.Discard()
	if buf.EndTurn() {
		t.Fatal("expected no commit after discard")
	}
	if buf.BufferedDuration() != 0 {
		t.Fatal("expected empty accumulator after discard")
	}
}
