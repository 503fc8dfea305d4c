package bridge

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/internal/audio"
)

// ErrAudioBufferFull is returned when a frame would exceed the per-session
// buffered-audio cap. The frame is rejected whole to keep PCM16 alignment.
var ErrAudioBufferFull = errors.New("audio buffer full")

// AudioIngestBuffer accounts for the client audio accumulated in the
// upstream's input buffer during the current turn and decides when enough
// has accrued to issue a commit. Frames are forwarded upstream as they
// arrive; the commit itself is what this type guards.
//
// Owned by the coordinator, only touched on its goroutine.
type AudioIngestBuffer struct {
	logger *zap.Logger

	sampleRate int
	minCommit  time.Duration
	maxBytes   int

	bufferedBytes int
	committed     bool
	loggedOdd     bool
}

// NewAudioIngestBuffer creates a buffer for one session. sampleRate is the
// client's input rate from settings; minCommit is the configured minimum
// duration below which no commit is ever issued.
func NewAudioIngestBuffer(sampleRate int, minCommit time.Duration, maxBytes int, logger *zap.Logger) *AudioIngestBuffer {
	return &AudioIngestBuffer{
		logger:     logger,
		sampleRate: sampleRate,
		minCommit:  minCommit,
		maxBytes:   maxBytes,
	}
}

// Append accounts for one PCM16 frame and returns the aligned bytes to
// forward upstream. A frame arriving after a commit begins a new turn.
func (b *AudioIngestBuffer) Append(frame []byte) ([]byte, error) {
	aligned, truncated := audio.AlignFrame(frame)
	if truncated && !b.loggedOdd {
		// Once per session, the follow-up frames are typically malformed
		// the same way.
		b.logger.Warn("Odd-length PCM16 frame, truncating trailing byte",
			zap.Int("frameBytes", len(frame)))
		b.loggedOdd = true
	}
	if len(aligned) == 0 {
		return nil, nil
	}

	if b.maxBytes > 0 && b.bufferedBytes+len(aligned) > b.maxBytes {
		return nil, ErrAudioBufferFull
	}

	if b.committed {
		b.committed = false
	}
	b.bufferedBytes += len(aligned)
	return aligned, nil
}

// BufferedDuration returns the duration accumulated since the last commit.
func (b *AudioIngestBuffer) BufferedDuration() time.Duration {
	return audio.Duration(b.bufferedBytes, b.sampleRate)
}

// EndTurn decides whether the current turn's audio should be committed.
// It returns false when the turn was already committed (repeated end-of-turn
// signals are idempotent no-ops) and when the accumulated duration is below
// the minimum (the underrun is absorbed silently, audio stays buffered for
// the next append).
func (b *AudioIngestBuffer) EndTurn() bool {
	if b.committed {
		return false
	}
	if duration := b.BufferedDuration(); duration < b.minCommit {
		b.logger.Debug("Commit suppressed below minimum duration",
			zap.Duration("buffered", duration),
			zap.Duration("minimum", b.minCommit))
		return false
	}
	b.committed = true
	b.bufferedBytes = 0
	return true
}

// Discard drops the uncommitted accumulator, used on barge-in and teardown.
// Discarded audio is never committed afterwards.
func (b *AudioIngestBuffer) Discard() {
	b.bufferedBytes = 0
	b.committed = false
}
