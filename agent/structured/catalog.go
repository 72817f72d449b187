package structured

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

const (
	SchemaMarketingCopy   = "marketing_copy"
	SchemaBusinessSummary = "business_summary"
)

//go:embed schemas/catalog.yaml
var catalogYAML []byte

// Catalog is the immutable set of compiled schemas.
type Catalog struct {
	schemas  map[string]Schema
	compiled map[string]*openapi3.Schema
}

func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]Schema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse schema catalog: %v", contractx.ErrConfig, err)
	}

	c := &Catalog{
		schemas:  make(map[string]Schema, len(raw)),
		compiled: make(map[string]*openapi3.Schema, len(raw)),
	}
	for name, s := range raw {
		s.Name = name
		compiled, err := s.Compile()
		if err != nil {
			return nil, err
		}
		c.schemas[name] = s
		c.compiled[name] = compiled
	}
	return c, nil
}

func (c *Catalog) Lookup(name string) (Schema, *openapi3.Schema, error) {
	name = strings.TrimSpace(name)
	s, ok := c.schemas[name]
	if !ok {
		return Schema{}, nil, fmt.Errorf("%w: unknown schema %q", contractx.ErrValidation, name)
	}
	return s, c.compiled[name], nil
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.schemas))
	for name := range c.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
