package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Chative-Digital-Twin/agent/nodes/orchestrator"
)

func (o *Orchestrator) compilePrepareGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, *nodex.GraphState], error) {
	graph := compose.NewGraph[nodex.GraphInput, *nodex.GraphState]()

	limits := nodex.Limits{
		MaxMessages:   o.cfg.MaxMessages,
		MaxTextLength: o.cfg.MaxTextLength,
	}

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, limits, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("assemble_context",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AssembleContext(ctx, in, o.assembler)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node assemble_context: %w", err)
	}

	if err := graph.AddLambdaNode("build_prompt",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.BuildPrompt(ctx, in, o.prompts)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node build_prompt: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "assemble_context"},
		{"assemble_context", "build_prompt"},
		{"build_prompt", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.prepare_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
