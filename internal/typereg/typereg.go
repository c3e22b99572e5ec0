// Package typereg holds the facility type registry: per-type labels,
// map colors and attribute field schemas with validation rules. The
// built-in set mirrors the admin dashboard; deployments can override
// it from YAML.
package typereg

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rules struct {
	Required  bool     `yaml:"required" json:"required,omitempty"`
	Min       *float64 `yaml:"min" json:"min,omitempty"`
	Max       *float64 `yaml:"max" json:"max,omitempty"`
	Integer   bool     `yaml:"integer" json:"integer,omitempty"`
	MaxLength int      `yaml:"maxLength" json:"maxLength,omitempty"`
}

// Field kinds. Number fields get coercion and numeric rules, text
// fields get length rules.
const (
	KindText   = "text"
	KindNumber = "number"
)

type Field struct {
	Key    string `yaml:"key" json:"key"`
	Label  string `yaml:"label" json:"label"`
	Kind   string `yaml:"kind" json:"kind"`
	Suffix string `yaml:"suffix" json:"suffix,omitempty"`
	Rules  Rules  `yaml:"rules" json:"rules,omitempty"`
}

type Schema struct {
	Label  string  `yaml:"label" json:"label"`
	Color  string  `yaml:"color" json:"color"`
	Fields []Field `yaml:"fields" json:"fields"`
}

type Registry struct {
	schemas map[string]Schema
}

func New(schemas map[string]Schema) *Registry {
	cp := make(map[string]Schema, len(schemas))
	for k, v := range schemas {
		cp[k] = v
	}
	return &Registry{schemas: cp}
}

// Load reads a registry from YAML.
func Load(r io.Reader) (*Registry, error) {
	var doc struct {
		Types map[string]Schema `yaml:"types"`
	}
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode type registry: %w", err)
	}
	if len(doc.Types) == 0 {
		return nil, fmt.Errorf("type registry has no types")
	}
	for typ, s := range doc.Types {
		for _, f := range s.Fields {
			if f.Key == "" {
				return nil, fmt.Errorf("type %s: field without key", typ)
			}
			if f.Kind != KindText && f.Kind != KindNumber {
				return nil, fmt.Errorf("type %s field %s: unknown kind %q", typ, f.Key, f.Kind)
			}
		}
	}
	return New(doc.Types), nil
}

func (r *Registry) Schema(typ string) (Schema, bool) {
	s, ok := r.schemas[typ]
	return s, ok
}

func (r *Registry) Known(typ string) bool {
	_, ok := r.schemas[typ]
	return ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const fallbackColor = "#64748b"

func (r *Registry) ColorFor(typ string) string {
	if s, ok := r.schemas[typ]; ok && s.Color != "" {
		return s.Color
	}
	return fallbackColor
}

// Validate checks attributes against the type's field rules and
// returns violations keyed by field key. Unknown attribute keys pass
// through unchecked, like the dashboard form did.
func (r *Registry) Validate(typ string, attrs map[string]any) map[string]string {
	errs := map[string]string{}
	s, ok := r.schemas[typ]
	if !ok {
		errs["type"] = fmt.Sprintf("unknown facility type %q", typ)
		return errs
	}
	for _, f := range s.Fields {
		v, present := attrs[f.Key]
		empty := !present || isBlank(v)
		if f.Rules.Required && empty {
			errs[f.Key] = "required"
			continue
		}
		if empty {
			continue
		}
		switch f.Kind {
		case KindNumber:
			n, okNum := toFloat(v)
			if !okNum {
				errs[f.Key] = "must be a number"
				continue
			}
			if f.Rules.Integer && n != math.Trunc(n) {
				errs[f.Key] = "must be an integer"
				continue
			}
			if f.Rules.Min != nil && n < *f.Rules.Min {
				errs[f.Key] = fmt.Sprintf("must be at least %v", *f.Rules.Min)
				continue
			}
			if f.Rules.Max != nil && n > *f.Rules.Max {
				errs[f.Key] = fmt.Sprintf("must be at most %v", *f.Rules.Max)
				continue
			}
		case KindText:
			sv := fmt.Sprint(v)
			if f.Rules.MaxLength > 0 && len([]rune(sv)) > f.Rules.MaxLength {
				errs[f.Key] = fmt.Sprintf("must be at most %d characters", f.Rules.MaxLength)
			}
		}
	}
	return errs
}

// CoerceNumbers normalizes attribute values the way the form did
// before submit: empty strings and nils become nil, numeric strings
// become float64, anything else passes through unchanged.
func CoerceNumbers(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = coerceOne(v)
	}
	return out
}

func coerceOne(v any) any {
	if isBlank(v) {
		return nil
	}
	if n, ok := toFloat(v); ok {
		return n
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Area autofill keys recognized across schemas.
const (
	areaM2Key = "areaM2"
	areaHaKey = "totalAreaHa"
)

// AutoFill fills the schema's area fields from a computed geometry
// area, without overwriting anything the user already typed. m² is
// rounded to whole meters, hectares to 4 decimals.
func (r *Registry) AutoFill(typ string, attrs map[string]any, areaM2 float64) map[string]any {
	s, ok := r.schemas[typ]
	if !ok || areaM2 < 0 {
		return attrs
	}
	hasM2, hasHa := false, false
	for _, f := range s.Fields {
		switch f.Key {
		case areaM2Key:
			hasM2 = true
		case areaHaKey:
			hasHa = true
		}
	}
	if !hasM2 && !hasHa {
		return attrs
	}

	out := make(map[string]any, len(attrs)+2)
	for k, v := range attrs {
		out[k] = v
	}
	if hasM2 && isBlank(out[areaM2Key]) {
		out[areaM2Key] = math.Round(areaM2)
	}
	if hasHa && isBlank(out[areaHaKey]) {
		ha := areaM2 / 10000
		out[areaHaKey] = math.Round(ha*10000) / 10000
	}
	return out
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
