package funcexec

import (
	"context"

	"github.com/satriahrh/jembatan/domain/entities"
	"github.com/satriahrh/jembatan/domain/repositories"
)

// DisabledExecutor stands in when no function backend is configured. Every
// server-side call resolves immediately with an error the agent can explain
// to the user, so no call is ever left pending.
type DisabledExecutor struct{}

var _ repositories.FunctionExecutor = DisabledExecutor{}

func (DisabledExecutor) Execute(ctx context.Context, req entities.FunctionCallRequest) entities.FunctionCallResponse {
	return entities.FunctionCallResponse{
		ID:           req.ID,
		Name:         req.Name,
		ErrorMessage: "no function backend is configured",
	}
}
