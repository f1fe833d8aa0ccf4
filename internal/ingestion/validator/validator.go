// Package validator checks ingestion requests against the index schema and
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion"
)

const maxValueLength = 1048576

// Fields reports which field names the index accepts. *schema.Schema
// implements it.
type Fields interface {
	Has(name string) bool
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks that the request names only known fields,
// carries at least one non-blank value and keeps values within the size
// limit.
func ValidateIngestRequest(req *ingestion.IngestRequest, fields Fields) error {
	errs := make(map[string]string)

	nonBlank := 0
	for name, value := range req.Fields {
		switch {
		case !fields.Has(name):
			errs[name] = "unknown field"
		case len(value) > maxValueLength:
			errs[name] = fmt.Sprintf("value must be at most %d bytes", maxValueLength)
		case strings.TrimSpace(value) != "":
			nonBlank++
		}
	}
	if nonBlank == 0 && len(errs) == 0 {
		errs["fields"] = "at least one non-empty field is required"
	}
	if req.Boost < 0 {
		errs["boost"] = "boost must not be negative"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
