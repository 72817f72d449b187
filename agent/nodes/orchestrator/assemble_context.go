package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type BundleAssembler interface {
	Assemble(ctx context.Context, businessRef string) (*contractx.ContextBundle, error)
}

// AssembleContext loads the business facts for the turn. Nothing reaches
// the provider until this has succeeded.
func AssembleContext(ctx context.Context, in *GraphState, assembler BundleAssembler) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	bundle, err := assembler.Assemble(ctx, in.BusinessRef)
	if err != nil {
		return nil, err
	}

	in.Bundle = bundle
	return in, nil
}
