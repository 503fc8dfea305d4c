package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a bridge session.
type SessionState string

const (
	SessionStateConnecting       SessionState = "connecting"
	SessionStateAwaitingSettings SessionState = "awaiting_settings"
	SessionStateActive           SessionState = "active"
	SessionStateClosing          SessionState = "closing"
	SessionStateClosed           SessionState = "closed"
)

// CloseReason tags why a session was torn down. It is surfaced to the client
// so the front end can decide whether reconnecting makes sense.
type CloseReason string

const (
	CloseReasonClientDisconnect    CloseReason = "client_disconnect"
	CloseReasonIdleTimeout         CloseReason = "idle_timeout"
	CloseReasonUpstreamUnavailable CloseReason = "upstream_unavailable"
	CloseReasonUpstreamClosed      CloseReason = "upstream_closed_unexpectedly"
	CloseReasonServerShutdown      CloseReason = "server_shutdown"
)

var validTransitions = map[SessionState][]SessionState{
	SessionStateConnecting:       {SessionStateAwaitingSettings, SessionStateClosing},
	SessionStateAwaitingSettings: {SessionStateActive, SessionStateClosing},
	SessionStateActive:           {SessionStateClosing},
	SessionStateClosing:          {SessionStateClosed},
	SessionStateClosed:           {},
}

// Session is one end-to-end client-bridge-upstream conversation instance.
// It is owned exclusively by the session coordinator; all mutation happens
// on the coordinator goroutine.
type Session struct {
	ID              string
	State           SessionState
	Principal       string
	SettingsApplied bool
	IdleTimeout     time.Duration
	CreatedAt       time.Time
	LastActivityAt  time.Time
	CloseReason     CloseReason

	pendingFunctionCalls map[string]FunctionCallRequest
	respondedCallIDs     map[string]struct{}
}

// NewSession creates a session in the connecting state.
func NewSession(principal string) *Session {
	now := time.Now()
	return &Session{
		ID:                   uuid.NewString(),
		State:                SessionStateConnecting,
		Principal:            principal,
		CreatedAt:            now,
		LastActivityAt:       now,
		pendingFunctionCalls: make(map[string]FunctionCallRequest),
		respondedCallIDs:     make(map[string]struct{}),
	}
}

// TransitionTo moves the session to the given state, enforcing the legal
// state graph. Transitioning to the current state is an error.
func (s *Session) TransitionTo(next SessionState) error {
	for _, allowed := range validTransitions[s.State] {
		if allowed == next {
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.State, next)
}

// MarkSettingsApplied records the exactly-once settings application and fixes
// the idle timeout for the rest of the session's life.
func (s *Session) MarkSettingsApplied(idleTimeout time.Duration) error {
	if s.SettingsApplied {
		return errors.New("settings already applied")
	}
	s.SettingsApplied = true
	s.IdleTimeout = idleTimeout
	return nil
}

// Touch records meaningful activity for idle-timeout accounting.
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}

// TrackFunctionCall registers an in-flight function-call request. A duplicate
// id is rejected so upstream bookkeeping never double-counts.
func (s *Session) TrackFunctionCall(req FunctionCallRequest) error {
	if _, exists := s.pendingFunctionCalls[req.ID]; exists {
		return fmt.Errorf("function call %s already pending", req.ID)
	}
	if _, responded := s.respondedCallIDs[req.ID]; responded {
		return fmt.Errorf("function call %s already resolved", req.ID)
	}
	s.pendingFunctionCalls[req.ID] = req
	return nil
}

// ResolveFunctionCall marks the call id as answered. It returns false when
// the id is unknown or was already resolved, which callers use to suppress
// duplicate responses.
func (s *Session) ResolveFunctionCall(id string) (FunctionCallRequest, bool) {
	req, ok := s.pendingFunctionCalls[id]
	if !ok {
		return FunctionCallRequest{}, false
	}
	delete(s.pendingFunctionCalls, id)
	s.respondedCallIDs[id] = struct{}{}
	return req, true
}

// PendingFunctionCalls returns the still-unanswered requests. Used on
// teardown to synthesize cancellation responses.
func (s *Session) PendingFunctionCalls() []FunctionCallRequest {
	calls := make([]FunctionCallRequest, 0, len(s.pendingFunctionCalls))
	for _, req := range s.pendingFunctionCalls {
		calls = append(calls, req)
	}
	return calls
}

// Terminal reports whether the session reached its terminal state.
func (s *Session) Terminal() bool {
	return s.State == SessionStateClosed
}
