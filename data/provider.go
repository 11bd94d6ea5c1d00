// Package data supplies declared source/sink rules to the coloring engine.
// Rules are registered programmatically or loaded from YAML documents that
// are validated against an embedded JSON schema before use.
package data

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"

	"github.com/vlsergey/secan4go/colored"
)

//go:embed schema.json
var schemaJSON []byte

// MethodRule declares colors for one method: per-parameter colors keyed by
// position (0 is the receiver for instance methods) and an optional result
// color. Colors are "source" or "sink". An empty descriptor matches any
// overload.
type MethodRule struct {
	Class      string         `yaml:"class" json:"class"`
	Method     string         `yaml:"method" json:"method"`
	Descriptor string         `yaml:"descriptor,omitempty" json:"descriptor,omitempty"`
	Params     map[int]string `yaml:"params,omitempty" json:"params,omitempty"`
	Result     string         `yaml:"result,omitempty" json:"result,omitempty"`
}

// FieldRule declares a color for one field.
type FieldRule struct {
	Class string `yaml:"class" json:"class"`
	Field string `yaml:"field" json:"field"`
	Color string `yaml:"color" json:"color"`
}

// Document is the on-disk rule file shape.
type Document struct {
	Methods []MethodRule `yaml:"methods" json:"methods"`
	Fields  []FieldRule  `yaml:"fields" json:"fields"`
}

type methodKey struct {
	class, method string
}

type fieldKey struct {
	class, field string
}

// Provider indexes rules for the colorer's initial brushes. It implements
// colored.RuleProvider and is safe for concurrent lookups.
type Provider struct {
	mu      sync.RWMutex
	methods map[methodKey][]MethodRule
	fields  map[fieldKey]colored.ColorType
}

func NewProvider() *Provider {
	return &Provider{
		methods: make(map[methodKey][]MethodRule),
		fields:  make(map[fieldKey]colored.ColorType),
	}
}

func parseColor(s string) (colored.ColorType, error) {
	switch s {
	case "source":
		return colored.SourceData, nil
	case "sink":
		return colored.SinkTarget, nil
	default:
		return 0, fmt.Errorf("unknown color %q (want \"source\" or \"sink\")", s)
	}
}

// AddMethodRule registers one method rule.
func (p *Provider) AddMethodRule(rule MethodRule) error {
	for idx, color := range rule.Params {
		if idx < 0 {
			return fmt.Errorf("rule for %s.%s: negative parameter index %d", rule.Class, rule.Method, idx)
		}
		if _, err := parseColor(color); err != nil {
			return fmt.Errorf("rule for %s.%s: %w", rule.Class, rule.Method, err)
		}
	}
	if rule.Result != "" {
		if _, err := parseColor(rule.Result); err != nil {
			return fmt.Errorf("rule for %s.%s: %w", rule.Class, rule.Method, err)
		}
	}
	key := methodKey{class: rule.Class, method: rule.Method}
	p.mu.Lock()
	p.methods[key] = append(p.methods[key], rule)
	p.mu.Unlock()
	return nil
}

// AddFieldRule registers one field rule.
func (p *Provider) AddFieldRule(rule FieldRule) error {
	color, err := parseColor(rule.Color)
	if err != nil {
		return fmt.Errorf("rule for field %s.%s: %w", rule.Class, rule.Field, err)
	}
	p.mu.Lock()
	p.fields[fieldKey{class: rule.Class, field: rule.Field}] = color
	p.mu.Unlock()
	return nil
}

// AddAll registers a batch of method rules, such as a built-in rule set.
func (p *Provider) AddAll(rules []MethodRule) error {
	for _, rule := range rules {
		if err := p.AddMethodRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// LoadYAML reads one YAML rule document, validates it against the schema
// and registers its rules.
func (p *Provider) LoadYAML(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var loose any
	if err := yaml.Unmarshal(raw, &loose); err != nil {
		return fmt.Errorf("rule document is not valid YAML: %w", err)
	}

	// Round-trip through JSON so the schema validator sees canonical JSON
	// value types regardless of what the YAML decoder produced. YAML allows
	// non-string mapping keys (parameter indices), which normalize folds
	// into strings first.
	jsonBytes, err := json.Marshal(normalize(loose))
	if err != nil {
		return fmt.Errorf("rule document is not JSON-compatible: %w", err)
	}
	canonical, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonBytes))
	if err != nil {
		return err
	}
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(canonical); err != nil {
		return fmt.Errorf("rule document rejected by schema: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return err
	}
	if err := p.AddAll(doc.Methods); err != nil {
		return err
	}
	for _, f := range doc.Fields {
		if err := p.AddFieldRule(f); err != nil {
			return err
		}
	}
	return nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			val[k] = normalize(e)
		}
		return val
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i := range val {
			val[i] = normalize(val[i])
		}
		return val
	default:
		return v
	}
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("rules.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("rules.schema.json")
	})
	return compiledSchema, schemaErr
}

// MethodColors implements colored.RuleProvider.
func (p *Provider) MethodColors(className, methodName, descriptor string) *colored.MethodColors {
	p.mu.RLock()
	rules := p.methods[methodKey{class: className, method: methodName}]
	p.mu.RUnlock()

	var result *colored.MethodColors
	for _, rule := range rules {
		if rule.Descriptor != "" && rule.Descriptor != descriptor {
			continue
		}
		if result == nil {
			result = &colored.MethodColors{}
		}
		for idx, colorName := range rule.Params {
			color, _ := parseColor(colorName)
			for len(result.ParamColors) <= idx {
				result.ParamColors = append(result.ParamColors, 0)
			}
			result.ParamColors[idx] = color
		}
		if rule.Result != "" {
			color, _ := parseColor(rule.Result)
			result.ResultColor = color
		}
	}
	return result
}

// FieldColors implements colored.RuleProvider.
func (p *Provider) FieldColors(className, fieldName string) colored.ColorType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fields[fieldKey{class: className, field: fieldName}]
}
