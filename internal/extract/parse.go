package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

// errUnparseable marks a response body that is not JSON at all.
var errUnparseable = errors.New("response is not valid JSON")

// parseStructuredJSON parses JSON from model output, recovering from markdown
// code fences and surrounding prose.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty body", errUnparseable)
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if object := extractObject(content); object != "" && object != content {
		candidates = append(candidates, object)
	}

	for _, candidate := range candidates {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, errUnparseable
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// validator compiles JSON Schemas once and checks parsed responses.
type validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newValidator() *validator {
	return &validator{compiled: make(map[string]*jsonschema.Schema)}
}

func (v *validator) compile(schema edital.Schema) (*jsonschema.Schema, error) {
	raw, err := schema.JSONSchema()
	if err != nil {
		return nil, err
	}
	key := string(raw)

	v.mu.Lock()
	defer v.mu.Unlock()
	if compiled, ok := v.compiled[key]; ok {
		return compiled, nil
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema %q: %w", schema.Name, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}
	v.compiled[key] = compiled
	return compiled, nil
}

// decode validates body against schema and converts it into a Record. Any
// returned error wraps ErrSchemaViolation unless the schema itself is broken.
func (v *validator) decode(schema edital.Schema, body json.RawMessage) (edital.Record, error) {
	compiled, err := v.compile(schema)
	if err != nil {
		return edital.Record{}, err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return edital.Record{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return edital.Record{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	var rec edital.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return edital.Record{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	key := rec.Key()
	if key.Institution == "" || key.Specialty == "" {
		return edital.Record{}, fmt.Errorf("%w: natural key is blank", ErrSchemaViolation)
	}
	rec.Institution, rec.Specialty = key.Institution, key.Specialty
	return rec, nil
}
