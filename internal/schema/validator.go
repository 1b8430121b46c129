// Package schema validates wire documents against fixed, in-memory JSON
// schemas before the caller attempts to decode them into Go structs. The
// registry's worker-info documents are its only user; page I/O list/stat
// responses are decoded without schema validation.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Validator holds a set of compiled schemas, keyed by an arbitrary name
// chosen by the registering caller (e.g. "worker-info").
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{schemas: make(map[string]*gojsonschema.Schema)}
}

// ValidationError describes one schema violation.
type ValidationError struct {
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ValidationResult is the outcome of a single Validate call.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Register compiles schemaJSON and stores it under name, overwriting any
// prior schema registered under the same name.
func (v *Validator) Register(name string, schemaJSON []byte) error {
	loader := gojsonschema.NewBytesLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("schema %q: %w", name, err)
	}
	v.mu.Lock()
	v.schemas[name] = schema
	v.mu.Unlock()
	return nil
}

// Validate checks jsonData against the schema registered under name.
func (v *Validator) Validate(name string, jsonData []byte) (*ValidationResult, error) {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("schema %q not registered", name)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:       "(root)",
				Type:        "invalid_json",
				Description: fmt.Sprintf("invalid JSON: %v", err),
			}},
		}, nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:       e.Field(),
			Type:        e.Type(),
			Description: e.Description(),
		})
	}
	return out, nil
}

// ValidateStrict is a convenience wrapper returning a plain error when
// validation fails, for callers that only need a fail-fast check.
func (v *Validator) ValidateStrict(name string, jsonData []byte) error {
	result, err := v.Validate(name, jsonData)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%s: %d schema violation(s): %v", name, len(result.Errors), result.Errors)
	}
	return nil
}
