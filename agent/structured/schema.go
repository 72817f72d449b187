// Package structured produces schema-checked JSON objects from single-shot
// model calls. An object is returned only if it satisfies its schema.
package structured

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mitchellh/mapstructure"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
)

// Field describes one top-level property of a structured result.
type Field struct {
	Type        FieldType `yaml:"type"`
	Description string    `yaml:"description"`
	Optional    bool      `yaml:"optional"`
	MinLength   *int64    `yaml:"min_length"`
	MaxLength   *int64    `yaml:"max_length"`
	Min         *float64  `yaml:"min"`
	Max         *float64  `yaml:"max"`
	Enum        []string  `yaml:"enum"`
	Items       FieldType `yaml:"items"`
	MaxItems    *int64    `yaml:"max_items"`
}

type Schema struct {
	Name        string           `yaml:"-"`
	Description string           `yaml:"description"`
	Fields      map[string]Field `yaml:"fields"`
}

// Compile converts the schema into a closed JSON object schema: every
// non-optional field is required and unknown fields are rejected.
func (s Schema) Compile() (*openapi3.Schema, error) {
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("%w: schema %s has no fields", contractx.ErrConfig, s.Name)
	}

	obj := openapi3.NewObjectSchema()
	obj.Description = s.Description
	var required []string

	for _, name := range s.fieldNames() {
		f := s.Fields[name]
		prop, err := compileField(f)
		if err != nil {
			return nil, fmt.Errorf("%w: schema %s field %s: %v", contractx.ErrConfig, s.Name, name, err)
		}
		obj = obj.WithProperty(name, prop)
		if !f.Optional {
			required = append(required, name)
		}
	}
	obj.Required = required
	return obj.WithoutAdditionalProperties(), nil
}

func (s Schema) fieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func compileField(f Field) (*openapi3.Schema, error) {
	var out *openapi3.Schema
	switch f.Type {
	case TypeString:
		out = openapi3.NewStringSchema()
		if f.MinLength != nil {
			out = out.WithMinLength(*f.MinLength)
		}
		if f.MaxLength != nil {
			out = out.WithMaxLength(*f.MaxLength)
		}
		if len(f.Enum) > 0 {
			values := make([]any, 0, len(f.Enum))
			for _, v := range f.Enum {
				values = append(values, v)
			}
			out = out.WithEnum(values...)
		}
	case TypeInteger, TypeNumber:
		if f.Type == TypeInteger {
			out = openapi3.NewIntegerSchema()
		} else {
			out = openapi3.NewFloat64Schema()
		}
		if f.Min != nil {
			out = out.WithMin(*f.Min)
		}
		if f.Max != nil {
			out = out.WithMax(*f.Max)
		}
	case TypeBoolean:
		out = openapi3.NewBoolSchema()
	case TypeArray:
		item, err := compileField(Field{Type: orString(f.Items), MinLength: f.MinLength, MaxLength: f.MaxLength, Enum: f.Enum})
		if err != nil {
			return nil, err
		}
		out = openapi3.NewArraySchema().WithItems(item)
		if f.MaxItems != nil {
			out = out.WithMaxItems(*f.MaxItems)
		}
	default:
		return nil, fmt.Errorf("unsupported type %q", f.Type)
	}
	out.Description = f.Description
	return out, nil
}

func orString(t FieldType) FieldType {
	if t == "" {
		return TypeString
	}
	if t == TypeArray {
		// nested arrays are not supported; treat items as strings
		return TypeString
	}
	return t
}

// Validate checks value against the compiled schema.
func (s Schema) Validate(compiled *openapi3.Schema, value any) error {
	if compiled == nil {
		return fmt.Errorf("%w: schema %s is not compiled", contractx.ErrConfig, s.Name)
	}
	if err := compiled.VisitJSON(value); err != nil {
		return fmt.Errorf("%w: %s: %v", contractx.ErrSchemaValidation, s.Name, err)
	}
	return nil
}

// Instructions renders the JSON schema text appended to the model prompt.
func (s Schema) Instructions(compiled *openapi3.Schema) (string, error) {
	data, err := json.MarshalIndent(compiled, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema %s: %w", s.Name, err)
	}
	var b strings.Builder
	b.WriteString("Respond with one JSON object that satisfies this JSON schema")
	if s.Description != "" {
		b.WriteString(" (")
		b.WriteString(s.Description)
		b.WriteString(")")
	}
	b.WriteString(":\n")
	b.Write(data)
	return b.String(), nil
}

// Decode copies a validated result into a typed struct using its json
// tags.
func Decode(value map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: decode: %v", contractx.ErrSchemaValidation, err)
	}
	return nil
}

// MarketingCopy is the typed form of the marketing_copy schema.
type MarketingCopy struct {
	Headline     string   `json:"headline"`
	Body         string   `json:"body"`
	CallToAction string   `json:"call_to_action"`
	Tone         string   `json:"tone"`
	Hashtags     []string `json:"hashtags,omitempty"`
}

// BusinessSummary is the typed form of the business_summary schema.
type BusinessSummary struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	PriceLevel string   `json:"price_level"`
	BestFor    []string `json:"best_for,omitempty"`
}
