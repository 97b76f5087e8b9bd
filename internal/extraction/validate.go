package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedResponse means the model's reply was not a JSON object.
// Extraction treats it as an empty result rather than a failure.
var ErrMalformedResponse = errors.New("malformed extraction response")

// Schema returns the JSON schema a response for fields must satisfy: an
// object with every field present, each value a primitive, null, or an
// array of those. Nested objects do not conform.
func Schema(fields []string) map[string]any {
	primitive := []string{"string", "number", "boolean", "null"}
	props := make(map[string]any, len(fields))
	required := make([]string, len(fields))
	for i, f := range fields {
		props[f] = map[string]any{
			"type":  append(primitive, "array"),
			"items": map[string]any{"type": primitive},
		}
		required[i] = f
	}
	return map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

type validator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

func newValidator() *validator {
	return &validator{cache: make(map[string]*jsonschema.Schema)}
}

func (v *validator) compiled(fields []string) (*jsonschema.Schema, error) {
	key := strings.Join(fields, "\x00")
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.cache[key]; ok {
		return s, nil
	}
	b, err := json.Marshal(Schema(fields))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := c.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	v.cache[key] = s
	return s, nil
}

// Violations lists what a reply got wrong against its schema. Missing
// holds requested fields absent from the reply; Nonconforming holds
// fields whose value is not a primitive or a list of primitives. Both
// follow the requested field order.
type Violations struct {
	Missing       []string
	Nonconforming []string
}

// Parse decodes a model reply into a field map and validates it against
// Schema(fields). A reply that is not a JSON object returns
// ErrMalformedResponse. Markdown code fences around the JSON are ignored.
func (v *validator) Parse(content string, fields []string) (map[string]any, Violations, error) {
	raw := stripFences(content)
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, Violations{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, Violations{}, fmt.Errorf("%w: got %T, want object", ErrMalformedResponse, doc)
	}

	s, err := v.compiled(fields)
	if err != nil {
		return nil, Violations{}, err
	}
	err = s.Validate(doc)
	if err == nil {
		return obj, Violations{}, nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, Violations{}, fmt.Errorf("validate reply: %w", err)
	}
	return obj, collectViolations(verr, obj, fields), nil
}

// collectViolations maps the leaf errors of a validation failure back to
// field names.
func collectViolations(verr *jsonschema.ValidationError, obj map[string]any, fields []string) Violations {
	requiredFailed := false
	bad := make(map[string]bool)
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		if strings.HasSuffix(e.KeywordLocation, "/required") {
			requiredFailed = true
			return
		}
		if f := topLevelField(e.InstanceLocation); f != "" {
			bad[f] = true
		}
	}
	walk(verr)

	var out Violations
	for _, f := range fields {
		_, present := obj[f]
		switch {
		case !present && requiredFailed:
			out.Missing = append(out.Missing, f)
		case present && bad[f]:
			out.Nonconforming = append(out.Nonconforming, f)
		}
	}
	return out
}

// topLevelField returns the first segment of a JSON pointer, unescaped.
func topLevelField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	if i := strings.IndexByte(ptr, '/'); i >= 0 {
		ptr = ptr[:i]
	}
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(ptr)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
