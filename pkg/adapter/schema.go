package adapter

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/runtime"
)

const (
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeString  = "string"
	TypeBoolean = "boolean"
)

// Schema is the JSON-Schema shaped description of an adapter configuration.
type Schema struct {
	Schema     string               `json:"$schema,omitempty"`
	Title      string               `json:"title,omitempty"`
	Type       string               `json:"type"`
	Required   []string             `json:"required,omitempty"`
	Properties map[string]*Property `json:"properties"`
}

type Property struct {
	Type        string        `json:"type"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Minimum     *float64      `json:"minimum,omitempty"`
	Maximum     *float64      `json:"maximum,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
}

func NewSchema(title string, required []string, properties map[string]*Property) *Schema {
	return &Schema{
		Schema:     "http://json-schema.org/draft-07/schema#",
		Title:      title,
		Type:       "object",
		Required:   required,
		Properties: properties,
	}
}

func Integer(title string) *Property { return &Property{Type: TypeInteger, Title: title} }
func Number(title string) *Property  { return &Property{Type: TypeNumber, Title: title} }
func String(title string) *Property  { return &Property{Type: TypeString, Title: title} }
func Boolean(title string) *Property { return &Property{Type: TypeBoolean, Title: title} }

func (p *Property) Between(min, max float64) *Property {
	p.Minimum, p.Maximum = &min, &max
	return p
}

func (p *Property) OneOf(values ...interface{}) *Property {
	p.Enum = values
	return p
}

func (p *Property) WithDefault(v interface{}) *Property {
	p.Default = v
	return p
}

func (p *Property) Describe(d string) *Property {
	p.Description = d
	return p
}

// Defaults returns a configuration holding every property default.
func (s *Schema) Defaults() runtime.Configuration {
	cfg := make(runtime.Configuration, len(s.Properties))
	for name, p := range s.Properties {
		if p.Default != nil {
			cfg[name] = p.Default
		}
	}
	return cfg
}

// WithDefaults overlays cfg on the schema defaults without touching cfg.
func (s *Schema) WithDefaults(cfg runtime.Configuration) runtime.Configuration {
	out := s.Defaults()
	for k, v := range cfg {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Validate checks presence, type, range and enum of every property and returns all violations in
// a stable order.
func (s *Schema) Validate(cfg runtime.Configuration) field.ErrorList {
	var allErrs field.ErrorList
	for _, name := range s.Required {
		if v, ok := cfg[name]; !ok || v == nil || v == "" {
			allErrs = append(allErrs, field.Required(field.NewPath(name), ""))
		}
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := cfg[name]
		if !ok || v == nil {
			continue
		}
		allErrs = append(allErrs, s.Properties[name].validate(field.NewPath(name), v)...)
	}
	return allErrs
}

func (p *Property) validate(path *field.Path, v interface{}) field.ErrorList {
	var allErrs field.ErrorList
	switch p.Type {
	case TypeInteger, TypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return append(allErrs, field.TypeInvalid(path, v, "must be a "+p.Type))
		}
		if p.Type == TypeInteger && f != math.Trunc(f) {
			return append(allErrs, field.TypeInvalid(path, v, "must be an integer"))
		}
		if p.Minimum != nil && f < *p.Minimum || p.Maximum != nil && f > *p.Maximum {
			allErrs = append(allErrs, field.Invalid(path, v, rangeText(p)))
		}
	case TypeString:
		if _, ok := v.(string); !ok {
			return append(allErrs, field.TypeInvalid(path, v, "must be a string"))
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return append(allErrs, field.TypeInvalid(path, v, "must be a boolean"))
		}
	}
	if len(p.Enum) > 0 && !p.allows(v) {
		supported := make([]string, 0, len(p.Enum))
		for _, e := range p.Enum {
			supported = append(supported, fmt.Sprint(e))
		}
		allErrs = append(allErrs, field.NotSupported(path, v, supported))
	}
	return allErrs
}

func rangeText(p *Property) string {
	switch {
	case p.Minimum != nil && p.Maximum != nil:
		return fmt.Sprintf("must be between %g and %g", *p.Minimum, *p.Maximum)
	case p.Minimum != nil:
		return fmt.Sprintf("must be at least %g", *p.Minimum)
	default:
		return fmt.Sprintf("must be at most %g", *p.Maximum)
	}
}

func (p *Property) allows(v interface{}) bool {
	f, numeric := toFloat(v)
	for _, e := range p.Enum {
		if numeric {
			if ef, ok := toFloat(e); ok && ef == f {
				return true
			}
			continue
		}
		if s, ok := v.(string); ok {
			if es, ok := e.(string); ok && strings.EqualFold(es, s) {
				return true
			}
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
