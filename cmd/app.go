package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/tanpawarit/Chative-Digital-Twin/agent/agents/orchestrator"
	assemblerx "github.com/tanpawarit/Chative-Digital-Twin/agent/assembler"
	"github.com/tanpawarit/Chative-Digital-Twin/agent/cache"
	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	llmx "github.com/tanpawarit/Chative-Digital-Twin/agent/llm"
	promptx "github.com/tanpawarit/Chative-Digital-Twin/agent/prompt"
	storex "github.com/tanpawarit/Chative-Digital-Twin/agent/store"
	structuredx "github.com/tanpawarit/Chative-Digital-Twin/agent/structured"
	toolx "github.com/tanpawarit/Chative-Digital-Twin/agent/tool"
	metricsx "github.com/tanpawarit/Chative-Digital-Twin/pkg/metrics"
	qstashx "github.com/tanpawarit/Chative-Digital-Twin/pkg/qstash"
)

// app holds the wired components shared by the serve, chat and copy
// commands.
type app struct {
	store     *storex.Store
	assembler *assemblerx.Assembler
	prompts   promptx.PromptSet
	metrics   *metricsx.Metrics
	llmCfg    *llmx.Config
	turnCfg   *llmx.TurnConfig
	turns     *orchestratorx.Orchestrator
}

func openStore(ctx context.Context) (*storex.Store, error) {
	dbCfg, err := loadConfig[storex.Config]("DATABASE")
	if err != nil {
		return nil, err
	}
	return storex.Open(ctx, *dbCfg)
}

func newApp(ctx context.Context, metrics *metricsx.Metrics) (*app, error) {
	llmCfg, err := loadConfig[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, err
	}
	turnCfg, err := loadConfig[llmx.TurnConfig]("TWIN")
	if err != nil {
		return nil, err
	}
	cacheCfg, err := loadConfig[cache.Config]("CACHE")
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:   st,
		prompts: promptx.LoadPromptSet(),
		metrics: metrics,
		llmCfg:  llmCfg,
		turnCfg: turnCfg,
	}
	if err := a.wire(ctx, cacheCfg); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cacheCfg *cache.Config) error {
	bundleCache, err := cache.New(*cacheCfg)
	if err != nil {
		return err
	}
	a.assembler = assemblerx.New(a.store, assemblerx.WithCache(bundleCache, a.turnCfg.ContextFreshness))

	builder, err := promptx.NewSystemPromptBuilder(a.prompts)
	if err != nil {
		return err
	}

	registry := toolx.NewRegistry(
		toolx.WithDefaultTimeout(a.turnCfg.ToolTimeout),
		toolx.WithMetrics(a.metrics),
	)
	submitter, err := appointmentSubmitter()
	if err != nil {
		return err
	}
	if err := toolx.RegisterBuiltins(registry, submitter); err != nil {
		return err
	}

	provider, err := llmx.NewStreamProvider(*a.llmCfg)
	if err != nil {
		return err
	}

	a.turns, err = orchestratorx.New(
		provider,
		registry,
		a.assembler,
		builder,
		orchestratorx.Config{Turn: *a.turnCfg},
		orchestratorx.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	log.Info().
		Strs("tools", registry.Names()).
		Str("model", a.llmCfg.Model).
		Str("cache", cacheCfg.Backend).
		Msg("twin wired")
	return nil
}

// appointmentSubmitter returns nil when QStash is not configured; the
// appointment tool is then not offered to the model.
func appointmentSubmitter() (contractx.WorkflowSubmitter, error) {
	qCfg, err := loadConfig[qstashx.Config]("QSTASH")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(qCfg.Token) == "" || strings.TrimSpace(qCfg.AppointmentDestination) == "" {
		return nil, nil
	}
	client, err := qstashx.NewClient(*qCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: qstash: %v", contractx.ErrConfig, err)
	}
	submitter, err := toolx.NewQStashSubmitter(client, qCfg.AppointmentDestination)
	if err != nil {
		return nil, err
	}
	return submitter, nil
}

// copywriter builds the structured generator on the non-streaming
// OpenRouter chat model.
func (a *app) copywriter(ctx context.Context) (*structuredx.Generator, error) {
	orCfg := a.llmCfg.OpenRouterFor(llmx.PurposeStructured)
	chatModel, err := orCfg.New(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := structuredx.LoadCatalog()
	if err != nil {
		return nil, err
	}
	return structuredx.NewGenerator(ctx, chatModel, a.prompts.Copywriter, catalog, structuredx.WithMetrics(a.metrics))
}

func (a *app) Close() error {
	return a.store.Close()
}
