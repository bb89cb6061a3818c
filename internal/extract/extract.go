// Package extract turns document text into structured reconciliation hints.
// Extraction output is untrusted: whatever produced it, it is validated
// against a JSON Schema before any field is used.
package extract

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/models"
)

// Input is one document handed to an extraction service.
type Input struct {
	// Name is the original file name; it often carries the client and date.
	Name string
	Text []byte
}

// Service produces loosely-typed JSON describing a document. Implementations
// range from local heuristics to a remote model.
type Service interface {
	Extract(ctx context.Context, in Input) (json.RawMessage, error)
}

// Fields are the validated hints used by the pipeline.
type Fields struct {
	CandidateName string
	DateHint      *models.DateHint
	SessionRef    string
	Kind          models.RecordKind
	Themes        []string
}

// raw mirrors schema.json.
type raw struct {
	CandidateName string   `json:"candidate_name,omitempty"`
	DateHint      string   `json:"date_hint,omitempty"`
	SessionRef    string   `json:"session_ref,omitempty"`
	Kind          string   `json:"kind,omitempty"`
	Themes        []string `json:"themes,omitempty"`
}

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "casebook://extraction.schema.json"

// Validator checks extraction output against the extraction schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("extract: parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("extract: add schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("extract: compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Decode validates data and converts it to Fields. Any schema violation or
// unparseable value is reported as apperr.ErrInvalidInput.
func (v *Validator) Decode(data []byte) (Fields, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Fields{}, fmt.Errorf("extract: %w: malformed output: %w", apperr.ErrInvalidInput, err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return Fields{}, fmt.Errorf("extract: %w: %w", apperr.ErrInvalidInput, err)
	}

	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return Fields{}, fmt.Errorf("extract: %w: %w", apperr.ErrInvalidInput, err)
	}

	f := Fields{
		CandidateName: strings.TrimSpace(r.CandidateName),
		SessionRef:    strings.TrimSpace(r.SessionRef),
		Kind:          models.KindDocument,
		Themes:        r.Themes,
	}
	if r.Kind != "" {
		f.Kind = models.RecordKind(r.Kind)
	}
	if r.DateHint != "" {
		h, err := parseHint(r.DateHint)
		if err != nil {
			return Fields{}, fmt.Errorf("extract: %w: %w", apperr.ErrInvalidInput, err)
		}
		f.DateHint = h
	}
	return f, nil
}

// parseHint reads an ISO date or an RFC 3339 timestamp. Date-only hints keep
// their civil date in UTC fields.
func parseHint(s string) (*models.DateHint, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &models.DateHint{At: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("date hint %q: %w", s, err)
	}
	return &models.DateHint{At: t.UTC(), HasTime: true}, nil
}
