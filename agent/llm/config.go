package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Digital-Twin/pkg/openrouter"
)

// Purpose selects per-call-site model overrides.
type Purpose string

const (
	PurposeTurn       Purpose = "turn"
	PurposeStructured Purpose = "structured"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	StructuredModel       string  `envconfig:"STRUCTURED_MODEL" split_words:"true"`
	StructuredTemperature float32 `envconfig:"STRUCTURED_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrConfig)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrConfig)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be positive", contractx.ErrConfig)
	}
	return nil
}

func (c Config) OpenRouterFor(purpose Purpose) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	if purpose == PurposeStructured {
		if v := strings.TrimSpace(c.StructuredModel); v != "" {
			modelName = v
		}
		if c.StructuredTemperature >= 0 {
			temp = c.StructuredTemperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// TurnConfig bounds a single conversation turn. Loaded with the TWIN_ prefix.
type TurnConfig struct {
	MaxSteps         int           `split_words:"true" default:"5"`
	ToolTimeout      time.Duration `split_words:"true" default:"5s"`
	TurnTimeout      time.Duration `split_words:"true" default:"45s"`
	MaxMessages      int           `split_words:"true" default:"100"`
	MaxTextLength    int           `split_words:"true" default:"10000"`
	ContextFreshness time.Duration `split_words:"true" default:"30s"`
}

func DefaultTurnConfig() TurnConfig {
	return TurnConfig{
		MaxSteps:         5,
		ToolTimeout:      5 * time.Second,
		TurnTimeout:      45 * time.Second,
		MaxMessages:      100,
		MaxTextLength:    10000,
		ContextFreshness: 30 * time.Second,
	}
}

func (c TurnConfig) Validate() error {
	switch {
	case c.MaxSteps <= 0:
		return fmt.Errorf("%w: max steps must be positive", contractx.ErrConfig)
	case c.ToolTimeout <= 0:
		return fmt.Errorf("%w: tool timeout must be positive", contractx.ErrConfig)
	case c.TurnTimeout <= 0:
		return fmt.Errorf("%w: turn timeout must be positive", contractx.ErrConfig)
	case c.MaxMessages <= 0 || c.MaxTextLength <= 0:
		return fmt.Errorf("%w: message limits must be positive", contractx.ErrConfig)
	case c.ContextFreshness < 0:
		return fmt.Errorf("%w: context freshness must not be negative", contractx.ErrConfig)
	}
	return nil
}
