// Package validator checks ingestion requests against the index schema
// and returns per-item error details.
package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/searcher/parser"
)

const (
	MaxBatchSize     = 1000
	MaxDocumentBytes = 1 << 20
	maxKeyLength     = 255
)

// ValidationError holds per-item validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateDocuments decodes every document with the schema. Failures are
// reported as documents[i].
func ValidateDocuments(s *schema.Schema, docs []json.RawMessage, idempotencyKey string) error {
	errs := make(map[string]string)
	switch {
	case len(docs) == 0:
		errs["documents"] = "at least one document is required"
	case len(docs) > MaxBatchSize:
		errs["documents"] = fmt.Sprintf("at most %d documents per request", MaxBatchSize)
	}
	if len(idempotencyKey) > maxKeyLength {
		errs["idempotency_key"] = fmt.Sprintf("must be at most %d characters", maxKeyLength)
	}
	if len(errs) == 0 {
		for i, raw := range docs {
			name := fmt.Sprintf("documents[%d]", i)
			if len(raw) > MaxDocumentBytes {
				errs[name] = fmt.Sprintf("document exceeds %d bytes", MaxDocumentBytes)
				continue
			}
			if _, err := document.DecodeJSON(s, string(raw)); err != nil {
				errs[name] = err.Error()
			}
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateDelete checks that the request names a single term of the
// schema.
func ValidateDelete(s *schema.Schema, req *ingestion.DeleteRequest) error {
	errs := make(map[string]string)
	if strings.TrimSpace(req.Field) == "" {
		errs["field"] = "field is required"
	} else if _, err := parser.ParseTerm(s, req.Field, req.Value); err != nil {
		errs["value"] = err.Error()
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
