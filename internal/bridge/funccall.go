package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/domain/entities"
	"github.com/satriahrh/jembatan/domain/repositories"
)

// FunctionCallBridge correlates function-call requests from the upstream
// with their responses. Client-side calls are forwarded to the connected
// client and awaited without a default timeout (the human may be slow),
// bounded only by an optional configurable ceiling. Server-side calls run
// against the HTTP execution backend.
//
// Completion always flows back through emit into the coordinator's event
// loop, so response bookkeeping stays on the one goroutine that owns the
// session.
type FunctionCallBridge struct {
	logger   *zap.Logger
	executor repositories.FunctionExecutor
	ceiling  time.Duration
	emit     func(entities.FunctionCallResponse)

	timers map[string]*time.Timer
}

// NewFunctionCallBridge creates a bridge for one session. ceiling of zero
// disables the client-side wait bound. emit delivers completed responses
// back to the coordinator.
func NewFunctionCallBridge(
	executor repositories.FunctionExecutor,
	ceiling time.Duration,
	emit func(entities.FunctionCallResponse),
	logger *zap.Logger,
) *FunctionCallBridge {
	return &FunctionCallBridge{
		logger:   logger,
		executor: executor,
		ceiling:  ceiling,
		emit:     emit,
		timers:   make(map[string]*time.Timer),
	}
}

// AwaitClientResponse arms the optional ceiling for a request that was
// forwarded to the client. When the ceiling elapses before the client
// answers, a cancellation response is emitted and the eventual late answer
// is suppressed by the coordinator's exactly-once check.
func (f *FunctionCallBridge) AwaitClientResponse(req entities.FunctionCallRequest) {
	if f.ceiling <= 0 {
		return
	}
	id := req.ID
	f.timers[id] = time.AfterFunc(f.ceiling, func() {
		f.logger.Warn("Client-side function call exceeded ceiling",
			zap.String("callID", id),
			zap.String("function", req.Name),
			zap.Duration("ceiling", f.ceiling))
		f.emit(entities.FunctionCallResponse{
			ID:           id,
			Name:         req.Name,
			ErrorMessage: fmt.Sprintf("function call timed out after %s", f.ceiling),
		})
	})
}

// Execute runs a server-side call on its own goroutine and emits the result.
// Backend failures arrive as synthesized error responses; the session is
// never failed by a function call.
func (f *FunctionCallBridge) Execute(ctx context.Context, req entities.FunctionCallRequest) {
	go func() {
		f.emit(f.executor.Execute(ctx, req))
	}()
}

// Settle cancels the ceiling timer for a request that received its response.
func (f *FunctionCallBridge) Settle(id string) {
	if timer, ok := f.timers[id]; ok {
		timer.Stop()
		delete(f.timers, id)
	}
}

// Cancellation builds the response used to resolve a request on teardown.
func Cancellation(req entities.FunctionCallRequest) entities.FunctionCallResponse {
	return entities.FunctionCallResponse{
		ID:           req.ID,
		Name:         req.Name,
		ErrorMessage: "session closed before the function call completed",
	}
}

// Shutdown stops all ceiling timers.
func (f *FunctionCallBridge) Shutdown() {
	for id, timer := range f.timers {
		timer.Stop()
		delete(f.timers, id)
	}
}
