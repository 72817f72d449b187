package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type PromptBuilder interface {
	Build(ctx context.Context, bundle *contractx.ContextBundle) (string, error)
}

func BuildPrompt(ctx context.Context, in *GraphState, builder PromptBuilder) (*GraphState, error) {
	if in == nil || in.Bundle == nil {
		return nil, fmt.Errorf("%w: graph bundle is nil", contractx.ErrValidation)
	}

	system, err := builder.Build(ctx, in.Bundle)
	if err != nil {
		return nil, err
	}

	in.SystemPrompt = system
	return in, nil
}
