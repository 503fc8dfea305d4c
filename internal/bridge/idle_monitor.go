package bridge

import (
	"time"

	"go.uber.org/zap"
)

// ActivityKind classifies events for idle-timeout accounting.
type ActivityKind string

const (
	ActivityFinalTranscript   ActivityKind = "final_transcript"
	ActivityInjectedUser      ActivityKind = "injected_user_message"
	ActivityInjectedAgent     ActivityKind = "injected_agent_message"
	ActivityAudioFrame        ActivityKind = "audio_frame"
	ActivityInterimTranscript ActivityKind = "interim_transcript"
	ActivityKeepAlive         ActivityKind = "keepalive"
)

// meaningfulActivity is the single whitelist of activity classes that reset
// the idle timer. Raw audio, interim transcripts and keepalives deliberately
// do not: two independently-ticking per-socket timers resetting on traffic
// used to fight each other and disconnect sessions mid-conversation.
var meaningfulActivity = map[ActivityKind]bool{
	ActivityFinalTranscript: true,
	ActivityInjectedUser:    true,
	ActivityInjectedAgent:   true,
}

// IdleTimeoutMonitor owns the one idle timer of a session. Its duration is
// fixed at settings-application time and never re-read from the environment.
// The timer only arms on the first whitelisted activity: a session that does
// nothing but stream raw audio never starts the countdown.
//
// Owned by the coordinator; Start, Observe and Stop are only called on the
// coordinator goroutine, which also selects on C.
type IdleTimeoutMonitor struct {
	logger  *zap.Logger
	timeout time.Duration
	timer   *time.Timer
}

// NewIdleTimeoutMonitor creates an unstarted monitor. C returns nil until
// the timer arms, so selecting on it blocks forever.
func NewIdleTimeoutMonitor(logger *zap.Logger) *IdleTimeoutMonitor {
	return &IdleTimeoutMonitor{logger: logger}
}

// Start fixes the session's idle timeout. The countdown does not begin here;
// it begins on the first whitelisted activity.
func (m *IdleTimeoutMonitor) Start(timeout time.Duration) {
	if m.timeout != 0 || timeout <= 0 {
		return
	}
	m.timeout = timeout
	m.logger.Info("Idle timeout configured", zap.Duration("timeout", timeout))
}

// C returns the fire channel, or nil while the timer has not armed.
func (m *IdleTimeoutMonitor) C() <-chan time.Time {
	if m.timer == nil {
		return nil
	}
	return m.timer.C
}

// Observe classifies one activity event; whitelisted classes arm the timer
// on first sight and reset it afterwards. It reports whether the event was
// meaningful.
func (m *IdleTimeoutMonitor) Observe(kind ActivityKind) bool {
	if !meaningfulActivity[kind] {
		return false
	}
	if m.timeout <= 0 {
		return true
	}
	if m.timer == nil {
		m.timer = time.NewTimer(m.timeout)
		return true
	}
	if !m.timer.Stop() {
		select {
		case <-m.timer.C:
		default:
		}
	}
	m.timer.Reset(m.timeout)
	return true
}

// Stop disarms the timer. Safe to call on an unstarted monitor.
func (m *IdleTimeoutMonitor) Stop() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
}
