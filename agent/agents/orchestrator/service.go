// Package orchestrator drives one conversation turn: it prepares the
// business context, streams model output and runs tool calls until the
// model produces a final answer or the turn fails.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	llmx "github.com/tanpawarit/Chative-Digital-Twin/agent/llm"
	nodex "github.com/tanpawarit/Chative-Digital-Twin/agent/nodes/orchestrator"
	toolx "github.com/tanpawarit/Chative-Digital-Twin/agent/tool"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Digital-Twin/pkg/metrics"
)

// ToolExecutor is the part of the tool registry a turn needs.
type ToolExecutor interface {
	Specs() ([]contractx.ToolSpec, error)
	Execute(ctx context.Context, call toolx.Call, bundle *contractx.ContextBundle) (contractx.ToolResult, error)
}

type Config struct {
	// Model overrides the provider's default model id when set.
	Model string
	Turn  llmx.TurnConfig
}

type Option func(*Orchestrator)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator used for turn and tool call
// ids.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

type Orchestrator struct {
	provider  contractx.Provider
	tools     ToolExecutor
	assembler nodex.BundleAssembler
	prompts   nodex.PromptBuilder

	graphRunner compose.Runnable[nodex.GraphInput, *nodex.GraphState]

	model   string
	cfg     llmx.TurnConfig
	metrics *metricsx.Metrics
	logger  zerolog.Logger

	now   func() time.Time
	newID func() string
}

func New(
	provider contractx.Provider,
	tools ToolExecutor,
	assembler nodex.BundleAssembler,
	prompts nodex.PromptBuilder,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: model provider is required", contractx.ErrConfig)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: tool registry is required", contractx.ErrConfig)
	}
	if assembler == nil {
		return nil, fmt.Errorf("%w: context assembler is required", contractx.ErrConfig)
	}
	if prompts == nil {
		return nil, fmt.Errorf("%w: prompt builder is required", contractx.ErrConfig)
	}

	turnCfg := cfg.Turn
	if turnCfg == (llmx.TurnConfig{}) {
		turnCfg = llmx.DefaultTurnConfig()
	}
	if err := turnCfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		provider:  provider,
		tools:     tools,
		assembler: assembler,
		prompts:   prompts,
		model:     strings.TrimSpace(cfg.Model),
		cfg:       turnCfg,
		logger:    logx.Component("orchestrator"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compilePrepareGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// TurnTimeout is the maximum total duration transports allow a turn.
func (o *Orchestrator) TurnTimeout() time.Duration {
	return o.cfg.TurnTimeout
}

// Prepare validates the request and assembles everything the turn needs.
// It fails before any provider call, so callers can still answer with a
// plain error response.
func (o *Orchestrator) Prepare(ctx context.Context, req contractx.TurnRequest) (*Turn, error) {
	st, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{Request: req})
	if err != nil {
		return nil, err
	}

	specs, err := o.tools.Specs()
	if err != nil {
		return nil, err
	}

	return &Turn{
		ID:      o.newID(),
		orch:    o,
		state:   st,
		tools:   specs,
		history: st.Messages,
	}, nil
}

// HandleTurn prepares and runs a turn. A failing preparation is reported
// to the sink as the turn's terminal error.
func (o *Orchestrator) HandleTurn(ctx context.Context, req contractx.TurnRequest, sink contractx.EventSink) error {
	turn, err := o.Prepare(ctx, req)
	if err != nil {
		err = classifyTurnError(ctx, err)
		em := newEmitter(sink, o.newID())
		_ = em.fail(context.WithoutCancel(ctx), err)
		o.metrics.ObserveTurn(string(contractx.CodeOf(err)), 0)
		return err
	}
	return turn.Run(ctx, sink)
}
