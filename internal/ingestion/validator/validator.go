// Package validator checks ingestion requests and returns per-field error
// details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion"
)

// Limits bounds accepted documents.
type Limits struct {
	MaxBodyBytes   int
	MaxLabelLength int
}

// ValidationError holds per-field validation failure messages.
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

// ValidateIngestRequest trims the request in place, upper-cases the label
// and checks both fields against limits.
func ValidateIngestRequest(req *ingestion.IngestRequest, limits Limits) error {
	errs := make(map[string]string)
	req.Body = checkBody(req.Body, limits, errs)
	req.Label = checkLabel(req.Label, limits, errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateUpdateRequest applies the ingest rules to the fields present in
// req. At least one field is required.
func ValidateUpdateRequest(req *ingestion.UpdateRequest, limits Limits) error {
	errs := make(map[string]string)
	if req.Body == nil && req.Label == nil {
		errs["body"] = "body or label is required"
	}
	if req.Body != nil {
		body := checkBody(*req.Body, limits, errs)
		req.Body = &body
	}
	if req.Label != nil {
		label := checkLabel(*req.Label, limits, errs)
		req.Label = &label
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkBody(body string, limits Limits, errs map[string]string) string {
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		errs["body"] = "body is required"
	case len(body) > limits.MaxBodyBytes:
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", limits.MaxBodyBytes)
	}
	return body
}

func checkLabel(label string, limits Limits, errs map[string]string) string {
	label = strings.ToUpper(strings.TrimSpace(label))
	switch {
	case len(label) > limits.MaxLabelLength:
		errs["label"] = fmt.Sprintf("label must be at most %d characters", limits.MaxLabelLength)
	case strings.IndexFunc(label, invalidLabelRune) >= 0:
		errs["label"] = "label may contain only letters, digits and underscores"
	}
	return label
}

// NormalizeLabel spells a label filter the way stored labels are spelled.
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

func invalidLabelRune(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}
