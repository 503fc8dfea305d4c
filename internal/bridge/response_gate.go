package bridge

import (
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/domain/entities"
	"github.com/satriahrh/jembatan/domain/repositories"
)

// ResponseGate is the single-flight guard for response generation on the
// upstream connection. At most one response is in flight per session; a
// trigger attempted while one is in flight is dropped, never queued, because
// upstream already carries a response obligation for the current turn.
//
// The gate is owned by the coordinator and only touched on its goroutine.
type ResponseGate struct {
	logger *zap.Logger
	turn   *entities.ResponseTurn

	// Configuration updates are forbidden while a response is in flight;
	// they queue here until the next idle transition.
	pendingConfig []repositories.SessionConfig
}

// NewResponseGate creates an open gate.
func NewResponseGate(logger *zap.Logger) *ResponseGate {
	return &ResponseGate{
		logger: logger,
		turn:   entities.NewResponseTurn(),
	}
}

// State returns the current turn state.
func (g *ResponseGate) State() entities.TurnState {
	return g.turn.State
}

// Idle reports whether a new trigger may pass.
func (g *ResponseGate) Idle() bool {
	return g.turn.State == entities.TurnStateIdle
}

// TryRequest attempts to claim the gate for a new response trigger. It
// returns false when a response is already requested or active, in which
// case the caller drops the trigger.
func (g *ResponseGate) TryRequest() bool {
	if g.turn.State != entities.TurnStateIdle {
		g.logger.Debug("Response trigger dropped, response already in flight",
			zap.String("turnID", g.turn.TurnID),
			zap.String("state", string(g.turn.State)))
		return false
	}
	g.turn = entities.NewResponseTurn()
	g.turn.State = entities.TurnStateRequested
	g.turn.StartedAt = time.Now()
	return true
}

// TurnStartedAt returns when the current turn was requested. Zero when idle.
func (g *ResponseGate) TurnStartedAt() time.Time {
	return g.turn.StartedAt
}

// Started records the upstream acknowledgement that generation began.
func (g *ResponseGate) Started() {
	if g.turn.State == entities.TurnStateRequested {
		g.turn.State = entities.TurnStateActive
	}
}

// AudioDone records the audio-generation-done signal. It returns true when
// the turn closed, which only happens once BOTH completion signals have been
// observed. Clearing on the first signal reopened the gate early and let an
// overlapping trigger through, which upstream rejected.
func (g *ResponseGate) AudioDone() bool {
	g.turn.AudioDone = true
	return g.closeIfComplete()
}

// TextDone records the text-generation-done signal. Same contract as
// AudioDone.
func (g *ResponseGate) TextDone() bool {
	g.turn.TextDone = true
	return g.closeIfComplete()
}

// Done records the upstream's authoritative turn-complete signal, which
// subsumes both partial signals.
func (g *ResponseGate) Done() bool {
	g.turn.AudioDone = true
	g.turn.TextDone = true
	return g.closeIfComplete()
}

func (g *ResponseGate) closeIfComplete() bool {
	if g.turn.State == entities.TurnStateIdle || !g.turn.Complete() {
		return false
	}
	g.turn = entities.NewResponseTurn()
	return true
}

// QueueConfigUpdate defers a configuration update until the gate is idle.
func (g *ResponseGate) QueueConfigUpdate(cfg repositories.SessionConfig) {
	g.pendingConfig = append(g.pendingConfig, cfg)
}

// DrainConfigUpdates returns and clears the deferred configuration updates.
// Called by the coordinator on every idle transition.
func (g *ResponseGate) DrainConfigUpdates() []repositories.SessionConfig {
	pending := g.pendingConfig
	g.pendingConfig = nil
	return pending
}
