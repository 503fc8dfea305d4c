package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/internal/audio"
)

// AudioSender delivers one binary audio frame to the client. The hub client
// implements this over its buffered outbound channel.
type AudioSender interface {
	SendBinary(data []byte) error
}

// TTSAudioRelay streams synthesized-audio deltas from the upstream to the
// client in arrival order, resampling from the upstream rate to the
// client-facing rate. On barge-in the relay flushes everything queued and
// blocks further deltas until the client explicitly allows audio again.
//
// A relay is created per connection, so the blocked state never survives a
// reconnect. The internal queue is shared between the coordinator goroutine
// (Enqueue, Interrupt, Allow) and the pump goroutine, hence the mutex.
type TTSAudioRelay struct {
	logger  *zap.Logger
	sender  AudioSender
	srcRate int
	dstRate int

	mu      sync.Mutex
	queue   [][]byte
	blocked bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewTTSAudioRelay creates a relay and starts its pump goroutine.
func NewTTSAudioRelay(sender AudioSender, srcRate, dstRate int, logger *zap.Logger) *TTSAudioRelay {
	r := &TTSAudioRelay{
		logger:  logger,
		sender:  sender,
		srcRate: srcRate,
		dstRate: dstRate,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go r.pump()
	return r
}

// Enqueue accepts one upstream audio delta. Deltas arriving while the relay
// is blocked are discarded silently.
func (r *TTSAudioRelay) Enqueue(pcm []byte) {
	r.mu.Lock()
	if r.blocked || r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, audio.ResampleMono16(pcm, r.srcRate, r.dstRate))
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Interrupt flushes all queued-but-unsent frames and blocks further deltas
// until Allow. The upstream cancellation is the coordinator's to issue.
func (r *TTSAudioRelay) Interrupt() {
	r.mu.Lock()
	flushed := len(r.queue)
	r.queue = nil
	r.blocked = true
	r.mu.Unlock()

	if flushed > 0 {
		r.logger.Debug("Flushed queued agent audio on interrupt", zap.Int("frames", flushed))
	}
}

// Allow lifts the blocked state.
func (r *TTSAudioRelay) Allow() {
	r.mu.Lock()
	r.blocked = false
	r.mu.Unlock()
}

// Blocked reports whether the relay is discarding deltas.
func (r *TTSAudioRelay) Blocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked
}

// Close stops the pump goroutine. Idempotent.
func (r *TTSAudioRelay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.queue = nil
	r.mu.Unlock()
	close(r.done)
}

func (r *TTSAudioRelay) pump() {
	for {
		select {
		case <-r.done:
			return
		case <-r.wake:
		}

		for {
			r.mu.Lock()
			if len(r.queue) == 0 {
				r.mu.Unlock()
				break
			}
			frame := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()

			if err := r.sender.SendBinary(frame); err != nil {
				r.logger.Warn("Failed to send agent audio frame", zap.Error(err))
				return
			}
		}
	}
}
