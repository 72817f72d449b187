package httpapi

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

// Config is loaded with the HTTP_ prefix.
type Config struct {
	Addr              string        `default:":8080"`
	AllowedOrigins    []string      `split_words:"true"`
	ReadHeaderTimeout time.Duration `split_words:"true" default:"10s"`
	ShutdownTimeout   time.Duration `split_words:"true" default:"15s"`
	HeartbeatInterval time.Duration `split_words:"true" default:"15s"`
	MaxBodyBytes      int64         `split_words:"true" default:"8388608"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: http addr is required", contractx.ErrConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: http max body bytes must be positive", contractx.ErrConfig)
	}
	return nil
}

func (c Config) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
