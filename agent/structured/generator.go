package structured

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	llmx "github.com/tanpawarit/Chative-Digital-Twin/agent/llm"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Digital-Twin/pkg/metrics"
)

type Generator struct {
	runner  compose.Runnable[map[string]any, *schema.Message]
	parser  schema.MessageParser[map[string]any]
	catalog *Catalog
	metrics *metricsx.Metrics
	logger  zerolog.Logger
}

type GeneratorOption func(*Generator)

func WithMetrics(m *metricsx.Metrics) GeneratorOption {
	return func(g *Generator) {
		g.metrics = m
	}
}

func NewGenerator(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	catalog *Catalog,
	opts ...GeneratorOption,
) (*Generator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: structured generator needs a chat model", contractx.ErrConfig)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: structured generator needs a schema catalog", contractx.ErrConfig)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: structured system prompt", contractx.ErrPromptMissing)
	}

	runner, err := compileGenerationGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		runner: runner,
		parser: schema.NewMessageJSONParser[map[string]any](&schema.MessageJSONParseConfig{
			ParseFrom: schema.MessageParseFromContent,
		}),
		catalog: catalog,
		logger:  logx.Component("structured"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func compileGenerationGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("structured.generation_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile structured generation graph: %w", err)
	}
	return runner, nil
}

func (g *Generator) Catalog() *Catalog {
	return g.catalog
}

// Generate asks the model for an object matching schemaName. The result is
// returned only when it parses as JSON and satisfies the schema; otherwise
// the error wraps ErrSchemaValidation. Provider failures keep their own
// taxonomy errors. Nothing is retried.
func (g *Generator) Generate(ctx context.Context, schemaName, prompt string) (map[string]any, error) {
	s, compiled, err := g.catalog.Lookup(schemaName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", contractx.ErrValidation)
	}

	instructions, err := s.Instructions(compiled)
	if err != nil {
		return nil, err
	}

	msg, err := g.runner.Invoke(ctx, map[string]any{
		"input": strings.TrimSpace(prompt) + "\n\n" + instructions,
	})
	if err != nil {
		err = llmx.ClassifyRequestError(err)
		g.observe(s.Name, err)
		return nil, err
	}

	value, err := g.parser.Parse(ctx, msg)
	if err != nil {
		err = fmt.Errorf("%w: %s: response is not a JSON object: %v", contractx.ErrSchemaValidation, s.Name, err)
		g.observe(s.Name, err)
		return nil, err
	}
	if value == nil {
		err = fmt.Errorf("%w: %s: response is null", contractx.ErrSchemaValidation, s.Name)
		g.observe(s.Name, err)
		return nil, err
	}

	if err := s.Validate(compiled, value); err != nil {
		g.observe(s.Name, err)
		return nil, err
	}

	g.observe(s.Name, nil)
	return value, nil
}

func (g *Generator) observe(schemaName string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(contractx.CodeOf(err))
		g.logger.Warn().Err(err).Str("schema", schemaName).Msg("structured generation failed")
	}
	g.metrics.ObserveStructured(schemaName, outcome)
}

// BusinessBrief renders the bundle's public facts as plain text for a
// structured prompt. Row ids are left out.
func BusinessBrief(bundle *contractx.ContextBundle, request string) string {
	if bundle == nil {
		return strings.TrimSpace(request)
	}
	var b strings.Builder
	p := bundle.Profile
	fmt.Fprintf(&b, "Business: %s\n", p.Name)
	writeLine(&b, "Category", p.Category)
	writeLine(&b, "About", p.Description)
	writeLine(&b, "City", p.City)
	writeLine(&b, "Opening hours", p.OpeningHours)

	if len(bundle.Products) > 0 {
		b.WriteString("Products:\n")
		for _, prod := range bundle.Products {
			fmt.Fprintf(&b, "- %s (%s)\n", prod.Name, prod.Price())
		}
	}
	if len(bundle.ActiveOffers) > 0 {
		b.WriteString("Active offers:\n")
		for _, o := range bundle.ActiveOffers {
			if label := o.DiscountLabel(); label != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", o.Title, label)
			} else {
				fmt.Fprintf(&b, "- %s\n", o.Title)
			}
		}
	}
	if r := strings.TrimSpace(request); r != "" {
		b.WriteString("\nRequest: ")
		b.WriteString(r)
	}
	return strings.TrimSpace(b.String())
}

func writeLine(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}
