package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/domain/entities"
	"github.com/satriahrh/jembatan/domain/repositories"
	"github.com/satriahrh/jembatan/internal/observe"
	ws "github.com/satriahrh/jembatan/internal/websocket"
)

// ClientConn is the narrow surface of the client WebSocket connection the
// coordinator uses. The hub client implements it over its buffered outbound
// channel, so sends never block the coordinator goroutine.
type ClientConn interface {
	SendJSON(v interface{}) error
	SendBinary(data []byte) error
	Close()
}

// SettingsTranslator converts client settings into the upstream provider's
// configuration payloads.
type SettingsTranslator interface {
	Translate(msg *ws.SettingsMessage) (repositories.SessionConfig, error)
	TranslateInstructions(instructions string) (repositories.SessionConfig, error)
}

// Config carries the per-deployment tunables of a session coordinator.
// The idle timeout is deliberately absent: it is sourced from the Settings
// message alone, never from deployment configuration.
type Config struct {
	MinCommitDuration   time.Duration
	MaxBufferedBytes    int
	FunctionCallCeiling time.Duration
	UpstreamSampleRate  int
	PendingMessageLimit int
}

const (
	defaultUpstreamSampleRate  = 24000
	defaultPendingMessageLimit = 64

	// defaultIdleTimeout applies when Settings omits idle_timeout_ms. It is
	// a compiled-in constant so idle policy never depends on environment
	// state.
	defaultIdleTimeout = 5 * time.Minute

	// eventQueueSize bounds the coordinator inbox. The reader goroutines
	// block when it fills, which backpressures the client socket instead of
	// growing memory.
	eventQueueSize = 256
)

type coordEventKind int

const (
	evClientText coordEventKind = iota
	evClientBinary
	evClientGone
	evFuncResult
)

type coordEvent struct {
	kind     coordEventKind
	data     []byte
	funcResp entities.FunctionCallResponse
}

// SessionCoordinator is the single-goroutine owner of one bridge session.
// Client frames, upstream events, function-call completions and the idle
// timer all funnel into its Run loop; nothing else touches session state.
type SessionCoordinator struct {
	logger     *zap.Logger
	cfg        Config
	client     ClientConn
	upstream   repositories.Upstream
	translator SettingsTranslator
	metrics    *observe.Metrics

	session         *entities.Session
	gate            *ResponseGate
	idle            *IdleTimeoutMonitor
	funcs           *FunctionCallBridge
	ingest          *AudioIngestBuffer
	relay           *TTSAudioRelay
	clientSideFuncs map[string]bool

	events  chan coordEvent
	pending []coordEvent

	// deferredFuncTrigger records a function output sent upstream while a
	// response was still in flight; the follow-up trigger fires when that
	// turn finishes.
	deferredFuncTrigger bool

	ctx     context.Context
	cancel  context.CancelFunc
	closing bool
}

// NewSessionCoordinator wires a coordinator for one accepted connection.
// principal identifies the authenticated caller for logging.
func NewSessionCoordinator(
	client ClientConn,
	upstream repositories.Upstream,
	executor repositories.FunctionExecutor,
	translator SettingsTranslator,
	metrics *observe.Metrics,
	cfg Config,
	principal string,
	logger *zap.Logger,
) *SessionCoordinator {
	if cfg.UpstreamSampleRate <= 0 {
		cfg.UpstreamSampleRate = defaultUpstreamSampleRate
	}
	if cfg.PendingMessageLimit <= 0 {
		cfg.PendingMessageLimit = defaultPendingMessageLimit
	}

	session := entities.NewSession(principal)
	ctx, cancel := context.WithCancel(context.Background())

	c := &SessionCoordinator{
		logger:     logger.With(zap.String("sessionID", session.ID)),
		cfg:        cfg,
		client:     client,
		upstream:   upstream,
		translator: translator,
		metrics:    metrics,
		session:    session,
		events:     make(chan coordEvent, eventQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.gate = NewResponseGate(c.logger)
	c.idle = NewIdleTimeoutMonitor(c.logger)
	c.funcs = NewFunctionCallBridge(executor, cfg.FunctionCallCeiling, func(resp entities.FunctionCallResponse) {
		c.enqueue(coordEvent{kind: evFuncResult, funcResp: resp})
	}, c.logger)
	return c
}

// SessionID returns the generated session identifier.
func (c *SessionCoordinator) SessionID() string {
	return c.session.ID
}

// HandleClientText delivers one inbound text frame from the read pump.
func (c *SessionCoordinator) HandleClientText(data []byte) {
	c.enqueue(coordEvent{kind: evClientText, data: data})
}

// HandleClientAudio delivers one inbound binary frame from the read pump.
func (c *SessionCoordinator) HandleClientAudio(data []byte) {
	c.enqueue(coordEvent{kind: evClientBinary, data: data})
}

// ClientClosed signals that the client socket dropped.
func (c *SessionCoordinator) ClientClosed() {
	c.enqueue(coordEvent{kind: evClientGone})
}

func (c *SessionCoordinator) enqueue(ev coordEvent) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Run drives the session until teardown. ctx is the server's lifetime; its
// cancellation closes the session with a server_shutdown reason.
func (c *SessionCoordinator) Run(ctx context.Context) {
	defer c.cancel()

	c.metrics.SessionStarted(c.ctx)
	c.transition(entities.SessionStateAwaitingSettings)
	c.sendJSON(&ws.WelcomeMessage{
		BaseMessage: ws.BaseMessage{Type: ws.MessageTypeWelcome},
		SessionID:   c.session.ID,
	})

	upstreamEvents, err := c.upstream.Connect(c.ctx)
	if err != nil {
		c.logger.Error("Failed to connect to upstream provider", zap.Error(err))
		c.teardown(entities.CloseReasonUpstreamUnavailable,
			ws.CreateErrorMessage(ws.ErrCodeUpstreamUnavailable, "voice provider is unavailable"))
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.teardown(entities.CloseReasonServerShutdown, nil)
		case ev := <-c.events:
			c.handleEvent(ev)
		case uev, ok := <-upstreamEvents:
			if !ok {
				uev = repositories.UpstreamEvent{Type: repositories.UpstreamEventConnectionClosed}
			}
			c.handleUpstream(uev)
		case <-c.idle.C():
			c.logger.Info("Session idle timeout reached",
				zap.Duration("timeout", c.session.IdleTimeout))
			c.teardown(entities.CloseReasonIdleTimeout,
				ws.CreateErrorMessage(ws.ErrCodeIdleTimeout, "session closed after inactivity"))
		}
		if c.session.Terminal() {
			return
		}
	}
}

func (c *SessionCoordinator) handleEvent(ev coordEvent) {
	switch ev.kind {
	case evClientGone:
		c.logger.Info("Client disconnected")
		c.teardown(entities.CloseReasonClientDisconnect, nil)
	case evClientText:
		c.handleClientText(ev.data)
	case evClientBinary:
		c.handleClientAudio(ev.data)
	case evFuncResult:
		c.completeFunctionCall(ev.funcResp)
	}
}

func (c *SessionCoordinator) handleClientText(data []byte) {
	parsed, err := ws.ParseClientMessage(data)
	if err != nil {
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeProtocolViolation, err.Error()))
		return
	}

	if !c.session.SettingsApplied {
		if settings, ok := parsed.(*ws.SettingsMessage); ok {
			c.applySettings(settings)
			return
		}
		// Messages racing ahead of Settings queue and replay in arrival
		// order once settings are applied.
		c.queuePending(coordEvent{kind: evClientText, data: data})
		return
	}

	switch msg := parsed.(type) {
	case *ws.SettingsMessage:
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeSettingsApplied,
			"settings are immutable once applied, use UpdateInstructions"))
	case *ws.UpdateInstructionsMessage:
		c.updateInstructions(msg.Instructions)
	case *ws.InjectMessage:
		c.injectMessage(msg)
	case *ws.FunctionCallResponseMessage:
		c.completeFunctionCall(entities.FunctionCallResponse{
			ID:           msg.ID,
			Name:         msg.Name,
			ContentJSON:  msg.Content,
			ErrorMessage: msg.Error,
		})
	case *ws.BaseMessage:
		switch msg.Type {
		case ws.MessageTypeEndOfTurn:
			c.endTurn()
		case ws.MessageTypeInterrupt:
			c.interrupt()
		case ws.MessageTypeAllow:
			c.relay.Allow()
		case ws.MessageTypeKeepAlive:
			// Keepalives hold the socket open but are not idle-timeout
			// activity.
		}
	}
}

func (c *SessionCoordinator) handleClientAudio(data []byte) {
	if !c.session.SettingsApplied {
		c.queuePending(coordEvent{kind: evClientBinary, data: data})
		return
	}

	aligned, err := c.ingest.Append(data)
	if err != nil {
		if errors.Is(err, ErrAudioBufferFull) {
			c.sendJSON(ws.CreateWarningMessage(ws.ErrCodeAudioBufferFull,
				"audio frame dropped, buffered audio limit reached"))
		}
		return
	}
	if len(aligned) == 0 {
		return
	}
	if err := c.upstream.AppendAudio(aligned); err != nil {
		c.logger.Warn("Failed to forward audio upstream", zap.Error(err))
	}
}

func (c *SessionCoordinator) queuePending(ev coordEvent) {
	if len(c.pending) >= c.cfg.PendingMessageLimit {
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeProtocolViolation,
			"too many messages before Settings"))
		return
	}
	c.pending = append(c.pending, ev)
}

func (c *SessionCoordinator) applySettings(msg *ws.SettingsMessage) {
	upstreamCfg, err := c.translator.Translate(msg)
	if err != nil {
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeProtocolViolation, err.Error()))
		return
	}
	if err := c.upstream.ApplySessionConfig(upstreamCfg); err != nil {
		c.logger.Error("Upstream rejected session configuration", zap.Error(err))
		c.teardown(entities.CloseReasonUpstreamUnavailable,
			ws.CreateErrorMessage(ws.ErrCodeUpstreamRejected,
				"voice provider rejected the session configuration"))
		return
	}
	if err := c.session.MarkSettingsApplied(msg.IdleTimeout(defaultIdleTimeout)); err != nil {
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeSettingsApplied, err.Error()))
		return
	}

	c.ingest = NewAudioIngestBuffer(msg.InputSampleRate(),
		c.cfg.MinCommitDuration, c.cfg.MaxBufferedBytes, c.logger)
	c.relay = NewTTSAudioRelay(c.client,
		c.cfg.UpstreamSampleRate, msg.OutputSampleRate(), c.logger)
	c.clientSideFuncs = make(map[string]bool, len(msg.Agent.Functions))
	for _, fn := range msg.Agent.Functions {
		c.clientSideFuncs[fn.Name] = fn.Endpoint == ""
	}

	c.transition(entities.SessionStateActive)
	c.idle.Start(c.session.IdleTimeout)
	c.sendJSON(&ws.SettingsAppliedMessage{
		BaseMessage: ws.BaseMessage{Type: ws.MessageTypeSettingsApplied},
	})

	if msg.Agent.Greeting != "" {
		c.maybeTriggerResponse("greeting")
	}

	pending := c.pending
	c.pending = nil
	for _, ev := range pending {
		c.handleEvent(ev)
	}
}

func (c *SessionCoordinator) updateInstructions(instructions string) {
	upstreamCfg, err := c.translator.TranslateInstructions(instructions)
	if err != nil {
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeProtocolViolation, err.Error()))
		return
	}
	if !c.gate.Idle() {
		// Applied on the next idle transition so the in-flight response
		// finishes under the configuration it started with.
		c.gate.QueueConfigUpdate(upstreamCfg)
		return
	}
	if err := c.upstream.UpdateSessionConfig(upstreamCfg); err != nil {
		c.logger.Warn("Failed to update upstream instructions", zap.Error(err))
	}
}

func (c *SessionCoordinator) injectMessage(msg *ws.InjectMessage) {
	role := "user"
	kind := ActivityInjectedUser
	if msg.Type == ws.MessageTypeInjectAgentMessage {
		role = "assistant"
		kind = ActivityInjectedAgent
	}
	if err := c.upstream.InjectMessage(role, msg.Content); err != nil {
		c.logger.Warn("Failed to inject conversation message",
			zap.String("role", role), zap.Error(err))
		return
	}
	c.observe(kind)
	if role == "user" {
		c.maybeTriggerResponse("inject_user_message")
	}
}

func (c *SessionCoordinator) endTurn() {
	if !c.ingest.EndTurn() {
		return
	}
	if err := c.upstream.CommitAudio(); err != nil {
		c.logger.Warn("Failed to commit audio upstream", zap.Error(err))
		return
	}
	c.maybeTriggerResponse("end_of_turn")
}

func (c *SessionCoordinator) interrupt() {
	c.relay.Interrupt()
	if !c.gate.Idle() {
		if err := c.upstream.CancelResponse(); err != nil {
			c.logger.Debug("Failed to cancel upstream response", zap.Error(err))
		}
	}
	c.ingest.Discard()
	if err := c.upstream.ClearAudio(); err != nil {
		c.logger.Debug("Failed to clear upstream audio buffer", zap.Error(err))
	}
}

// maybeTriggerResponse routes every response trigger through the
// single-flight gate. A trigger arriving while a response is in flight is
// dropped, never queued.
func (c *SessionCoordinator) maybeTriggerResponse(trigger string) {
	if !c.gate.TryRequest() {
		c.metrics.DroppedTriggers.Add(c.ctx, 1)
		return
	}
	if err := c.upstream.CreateResponse(); err != nil {
		c.logger.Warn("Failed to trigger response",
			zap.String("trigger", trigger), zap.Error(err))
		// Reopen the gate, there is nothing in flight to wait for.
		c.gate.Done()
	}
}

func (c *SessionCoordinator) handleUpstream(ev repositories.UpstreamEvent) {
	switch ev.Type {
	case repositories.UpstreamEventSessionCreated,
		repositories.UpstreamEventSessionUpdated,
		repositories.UpstreamEventAudioCommitted:
		c.logger.Debug("Upstream acknowledgement", zap.String("event", string(ev.Type)))

	case repositories.UpstreamEventSpeechStarted:
		c.sendJSON(&ws.BaseMessage{Type: ws.MessageTypeUserStartedSpeaking})

	case repositories.UpstreamEventSpeechStopped:
		// Server VAD end-of-speech triggers the same commit path as an
		// explicit EndOfTurn; EndTurn keeps the pair idempotent.
		c.endTurn()

	case repositories.UpstreamEventTranscriptDelta,
		repositories.UpstreamEventAgentTextDelta:
		// Interim text is not surfaced and never resets the idle timer.

	case repositories.UpstreamEventTranscriptFinal:
		c.sendJSON(&ws.ConversationTextMessage{
			BaseMessage: ws.BaseMessage{Type: ws.MessageTypeConversationText},
			Role:        "user",
			Content:     ev.Text,
		})
		c.observe(ActivityFinalTranscript)

	case repositories.UpstreamEventResponseStarted:
		c.gate.Started()

	case repositories.UpstreamEventAudioDelta:
		if c.relay != nil {
			c.relay.Enqueue(ev.Audio)
		}

	case repositories.UpstreamEventAudioDone:
		started := c.gate.TurnStartedAt()
		if c.gate.AudioDone() {
			c.finishTurn(started)
		}

	case repositories.UpstreamEventAgentTextDone:
		c.sendJSON(&ws.ConversationTextMessage{
			BaseMessage: ws.BaseMessage{Type: ws.MessageTypeConversationText},
			Role:        "assistant",
			Content:     ev.Text,
		})
		c.observe(ActivityFinalTranscript)
		started := c.gate.TurnStartedAt()
		if c.gate.TextDone() {
			c.finishTurn(started)
		}

	case repositories.UpstreamEventFunctionCall:
		if ev.FunctionCall != nil {
			c.dispatchFunctionCall(*ev.FunctionCall)
		}

	case repositories.UpstreamEventResponseDone:
		started := c.gate.TurnStartedAt()
		if c.gate.Done() {
			c.finishTurn(started)
		}

	case repositories.UpstreamEventProtocolError:
		// Fatal to the turn, not to the session.
		c.logger.Error("Upstream protocol error",
			zap.String("code", ev.ErrorCode),
			zap.String("message", ev.ErrorMessage))
		c.sendJSON(ws.CreateErrorMessage(ws.ErrCodeUpstreamRejected, ev.ErrorMessage))

	case repositories.UpstreamEventConnectionClosed:
		if c.closing {
			return
		}
		c.logger.Error("Upstream connection closed unexpectedly")
		c.teardown(entities.CloseReasonUpstreamClosed,
			ws.CreateErrorMessage(ws.ErrCodeUpstreamClosed, "voice provider connection lost"))
	}
}

// finishTurn runs once per completed response turn, after the gate closed it.
func (c *SessionCoordinator) finishTurn(started time.Time) {
	c.sendJSON(&ws.BaseMessage{Type: ws.MessageTypeAgentAudioDone})
	c.metrics.Turns.Add(c.ctx, 1)
	if !started.IsZero() {
		c.metrics.TurnDuration.Record(c.ctx, time.Since(started).Seconds())
	}
	for _, upstreamCfg := range c.gate.DrainConfigUpdates() {
		if err := c.upstream.UpdateSessionConfig(upstreamCfg); err != nil {
			c.logger.Warn("Failed to apply deferred configuration update", zap.Error(err))
		}
	}
	if c.deferredFuncTrigger {
		c.deferredFuncTrigger = false
		c.maybeTriggerResponse("function_call_output")
	}
}

func (c *SessionCoordinator) dispatchFunctionCall(req entities.FunctionCallRequest) {
	// A function the client never declared has no endpoint, so it routes to
	// the HTTP backend, which answers with an error the agent can recover
	// from.
	req.ClientSide = c.clientSideFuncs[req.Name]

	if err := c.session.TrackFunctionCall(req); err != nil {
		c.logger.Warn("Duplicate function call ignored",
			zap.String("callID", req.ID), zap.Error(err))
		return
	}

	if req.ClientSide {
		c.sendJSON(&ws.FunctionCallRequestMessage{
			BaseMessage: ws.BaseMessage{Type: ws.MessageTypeFunctionCallRequest},
			ID:          req.ID,
			Name:        req.Name,
			Arguments:   json.RawMessage(req.ArgumentsJSON),
		})
		c.funcs.AwaitClientResponse(req)
		return
	}
	c.funcs.Execute(c.ctx, req)
}

// completeFunctionCall resolves one function call exactly once, whether the
// response came from the client, the HTTP backend, the ceiling timer or
// teardown. Later responses for the same id are suppressed.
func (c *SessionCoordinator) completeFunctionCall(resp entities.FunctionCallResponse) {
	req, ok := c.session.ResolveFunctionCall(resp.ID)
	if !ok {
		c.logger.Debug("Function call response suppressed, already resolved",
			zap.String("callID", resp.ID))
		return
	}
	c.funcs.Settle(resp.ID)
	if resp.Name == "" {
		resp.Name = req.Name
	}

	c.metrics.FunctionCallFinished(c.ctx, req.ClientSide, resp.Failed())
	if err := c.upstream.SendFunctionCallOutput(resp); err != nil {
		c.logger.Warn("Failed to send function call output upstream",
			zap.String("callID", resp.ID), zap.Error(err))
		return
	}
	// The agent needs a fresh response to act on the function result. When
	// the turn that requested the call is still in flight, the trigger is
	// deferred to its completion rather than dropped with it.
	if c.gate.Idle() {
		c.maybeTriggerResponse("function_call_output")
	} else {
		c.deferredFuncTrigger = true
	}
}

func (c *SessionCoordinator) observe(kind ActivityKind) {
	if c.idle.Observe(kind) {
		c.session.Touch()
	}
}

func (c *SessionCoordinator) transition(next entities.SessionState) {
	prev := c.session.State
	if err := c.session.TransitionTo(next); err != nil {
		c.logger.Error("Illegal session transition", zap.Error(err))
		return
	}
	c.logger.Info("Session state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)))
}

func (c *SessionCoordinator) sendJSON(v interface{}) {
	if err := c.client.SendJSON(v); err != nil {
		c.logger.Warn("Failed to send message to client", zap.Error(err))
	}
}

// teardown closes the session exactly once. The order matters: pending
// function calls resolve upstream before the upstream socket drops, and the
// client sees the Close notice before its socket does.
func (c *SessionCoordinator) teardown(reason entities.CloseReason, errMsg *ws.ErrorMessage) {
	if c.closing {
		return
	}
	c.closing = true
	c.session.CloseReason = reason
	c.transition(entities.SessionStateClosing)

	c.funcs.Shutdown()
	c.idle.Stop()

	for _, req := range c.session.PendingFunctionCalls() {
		if _, ok := c.session.ResolveFunctionCall(req.ID); !ok {
			continue
		}
		if err := c.upstream.SendFunctionCallOutput(Cancellation(req)); err != nil {
			c.logger.Debug("Failed to resolve pending function call on close",
				zap.String("callID", req.ID), zap.Error(err))
		}
	}

	if c.ingest != nil {
		c.ingest.Discard()
	}
	if c.relay != nil {
		c.relay.Close()
	}

	if errMsg != nil {
		c.sendJSON(errMsg)
	}
	c.sendJSON(ws.CreateCloseMessage(string(reason)))

	if err := c.upstream.Close(); err != nil {
		c.logger.Debug("Upstream close error", zap.Error(err))
	}
	c.client.Close()

	c.transition(entities.SessionStateClosed)
	c.metrics.SessionClosed(c.ctx, string(reason))
	c.logger.Info("Session closed", zap.String("reason", string(reason)))
	c.cancel()
}
