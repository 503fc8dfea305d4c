package repositories

import (
	"context"

	"github.com/satriahrh/jembatan/domain/entities"
)

// FunctionExecutor runs server-side function calls against an external
// execution backend. Implementations map backend failures to a synthesized
// error response rather than returning an error: a failed function call ends
// the call, not the session.
type FunctionExecutor interface {
	Execute(ctx context.Context, req entities.FunctionCallRequest) entities.FunctionCallResponse
}
