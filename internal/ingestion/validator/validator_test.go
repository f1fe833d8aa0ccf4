package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postingcore/internal/ingestion"
)

type fieldSet map[string]bool

func (f fieldSet) Has(name string) bool { return f[name] }

func TestValidateIngestRequest(t *testing.T) {
	fields := fieldSet{"title": true, "body": true}
	tests := []struct {
		name    string
		req     ingestion.IngestRequest
		invalid []string
	}{
		{"valid", ingestion.IngestRequest{Fields: map[string]string{"title": "hello"}}, nil},
		{"blank values", ingestion.IngestRequest{Fields: map[string]string{"title": "  "}}, []string{"fields"}},
		{"no fields", ingestion.IngestRequest{}, []string{"fields"}},
		{"unknown field", ingestion.IngestRequest{Fields: map[string]string{"title": "a", "color": "red"}}, []string{"color"}},
		{"negative boost", ingestion.IngestRequest{Fields: map[string]string{"body": "x"}, Boost: -1}, []string{"boost"}},
		{"huge value", ingestion.IngestRequest{Fields: map[string]string{"body": strings.Repeat("x", maxValueLength+1)}}, []string{"body"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req, fields)
			if tt.invalid == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.invalid {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "two", "a": "one"}}
	assert.Equal(t, "a:one; b:two", err.Error())
}
