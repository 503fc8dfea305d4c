package entities

import (
	"time"

	"github.com/google/uuid"
)

// TurnState tracks whether a generated response is in flight on the upstream
// connection.
type TurnState string

const (
	TurnStateIdle      TurnState = "idle"
	TurnStateRequested TurnState = "requested"
	TurnStateActive    TurnState = "active"
)

// ResponseTurn models one user-utterance-to-agent-response cycle. Completion
// is two independent flags rather than a single bool: the upstream emits
// audio-done and text-done as separate asynchronous events, and clearing the
// turn on whichever lands first reopens the gate too early.
type ResponseTurn struct {
	TurnID    string
	State     TurnState
	StartedAt time.Time
	AudioDone bool
	TextDone  bool
}

// NewResponseTurn creates an idle turn.
func NewResponseTurn() *ResponseTurn {
	return &ResponseTurn{
		TurnID: uuid.NewString(),
		State:  TurnStateIdle,
	}
}

// Complete reports whether both completion signals have been observed.
func (t *ResponseTurn) Complete() bool {
	return t.AudioDone && t.TextDone
}
