package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	logx "github.com/tanpawarit/Chative-Digital-Twin/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Digital-Twin/pkg/metrics"
)

const DefaultTimeout = 5 * time.Second

// Handler runs a tool with validated input against the turn's bundle. The
// returned value must be JSON serializable.
type Handler func(ctx context.Context, input map[string]any, bundle *contractx.ContextBundle) (any, error)

// Declaration is a named capability the model may invoke.
type Declaration struct {
	Name        string
	Description string
	Input       *openapi3.Schema
	Handler     Handler
	// Timeout overrides the registry default when positive.
	Timeout time.Duration
}

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

type RegistryOption func(*Registry)

func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

func WithMetrics(m *metricsx.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry holds the tool declarations of the process. It is sealed by the
// first execution; registration afterwards fails.
type Registry struct {
	mu             sync.RWMutex
	decls          map[string]Declaration
	order          []string
	sealed         bool
	defaultTimeout time.Duration
	metrics        *metricsx.Metrics
	logger         zerolog.Logger
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		decls:          map[string]Declaration{},
		defaultTimeout: DefaultTimeout,
		logger:         logx.Component("tools"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registry) Register(decl Declaration) error {
	decl.Name = strings.TrimSpace(decl.Name)
	switch {
	case decl.Name == "":
		return fmt.Errorf("%w: tool name is empty", contractx.ErrConfig)
	case decl.Handler == nil:
		return fmt.Errorf("%w: tool %s has no handler", contractx.ErrConfig, decl.Name)
	case decl.Input == nil:
		return fmt.Errorf("%w: tool %s has no input schema", contractx.ErrConfig, decl.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: registry is sealed, cannot register %s", contractx.ErrConfig, decl.Name)
	}
	if _, exists := r.decls[decl.Name]; exists {
		return fmt.Errorf("%w: tool %s already registered", contractx.ErrConfig, decl.Name)
	}
	r.decls[decl.Name] = decl
	r.order = append(r.order, decl.Name)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Resolve(name string) (Declaration, error) {
	r.mu.RLock()
	decl, ok := r.decls[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return Declaration{}, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, name)
	}
	return decl, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Specs returns the provider-facing declarations in registration order.
func (r *Registry) Specs() ([]contractx.ToolSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]contractx.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		decl := r.decls[name]
		params, err := schemaToMap(decl.Input)
		if err != nil {
			return nil, fmt.Errorf("%w: tool %s schema: %v", contractx.ErrConfig, name, err)
		}
		specs = append(specs, contractx.ToolSpec{
			Name:        decl.Name,
			Description: decl.Description,
			Parameters:  params,
		})
	}
	return specs, nil
}

// Invoke resolves, validates and runs one tool. Errors wrap
// ErrUnknownTool, ErrInvalidToolInput, ErrToolTimeout or ErrToolExecution;
// cancellation of ctx is returned as the context error.
func (r *Registry) Invoke(ctx context.Context, name, rawInput string, bundle *contractx.ContextBundle) (any, map[string]any, error) {
	r.sealOnce()

	decl, err := r.Resolve(name)
	if err != nil {
		return nil, nil, err
	}

	input, err := parseInput(rawInput)
	if err != nil {
		return nil, nil, err
	}
	if err := decl.Input.VisitJSON(input); err != nil {
		return nil, input, fmt.Errorf("%w: %s: %v", contractx.ErrInvalidToolInput, decl.Name, err)
	}

	out, err := r.run(ctx, decl, input, bundle)
	if err != nil {
		return nil, input, err
	}
	if _, err := json.Marshal(out); err != nil {
		return nil, input, fmt.Errorf("%w: %s output is not serializable: %v", contractx.ErrToolExecution, decl.Name, err)
	}
	return out, input, nil
}

// Execute runs call and folds any tool failure into the result so it can
// be reported back to the model. Only cancellation of ctx is returned as an
// error.
func (r *Registry) Execute(ctx context.Context, call Call, bundle *contractx.ContextBundle) (contractx.ToolResult, error) {
	started := time.Now()
	out, input, err := r.Invoke(ctx, call.Name, call.Arguments, bundle)

	result := contractx.ToolResult{CallID: call.ID, Tool: call.Name, Input: input}
	outcome := "ok"
	switch {
	case err == nil:
		result.Output = out
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		r.metrics.ObserveTool(call.Name, string(contractx.CodeCanceled), time.Since(started))
		return result, err
	default:
		code := contractx.CodeOf(err)
		outcome = string(code)
		result.Error = &contractx.ToolError{Code: code, Message: toolErrorMessage(err)}
		r.logger.Warn().
			Err(err).
			Str("tool", call.Name).
			Str("call_id", call.ID).
			Msg("tool invocation failed")
	}

	r.metrics.ObserveTool(call.Name, outcome, time.Since(started))
	return result, nil
}

type runResult struct {
	out any
	err error
}

func (r *Registry) run(ctx context.Context, decl Declaration, input map[string]any, bundle *contractx.ContextBundle) (any, error) {
	timeout := decl.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- runResult{err: fmt.Errorf("%w: %s panicked: %v", contractx.ErrToolExecution, decl.Name, rec)}
			}
		}()
		out, err := decl.Handler(tctx, input, bundle)
		done <- runResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", contractx.ErrToolTimeout, decl.Name, timeout)
		}
		if errors.Is(res.err, contractx.ErrToolExecution) || errors.Is(res.err, contractx.ErrInvalidToolInput) {
			return nil, res.err
		}
		return nil, fmt.Errorf("%w: %s: %v", contractx.ErrToolExecution, decl.Name, res.err)
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %s", contractx.ErrToolTimeout, decl.Name, timeout)
	}
}

func (r *Registry) sealOnce() {
	r.mu.RLock()
	sealed := r.sealed
	r.mu.RUnlock()
	if !sealed {
		r.Seal()
	}
}

func parseInput(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("%w: arguments are not valid JSON: %v", contractx.ErrInvalidToolInput, err)
	}
	input, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: arguments must be a JSON object", contractx.ErrInvalidToolInput)
	}
	return input, nil
}

// toolErrorMessage is what the model sees. Input problems carry their
// detail so the model can correct the call; execution failures do not.
func toolErrorMessage(err error) string {
	if errors.Is(err, contractx.ErrInvalidToolInput) || errors.Is(err, contractx.ErrUnknownTool) {
		return err.Error()
	}
	return contractx.PublicMessage(err)
}

func schemaToMap(s *openapi3.Schema) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
