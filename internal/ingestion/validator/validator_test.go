package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/newsindex/internal/ingestion"
)

var limits = Limits{MaxBodyBytes: 64, MaxLabelLength: 10}

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     ingestion.IngestRequest
		invalid []string
	}{
		{"valid", ingestion.IngestRequest{Body: "Markets rally", Label: "business"}, nil},
		{"no label", ingestion.IngestRequest{Body: "Markets rally"}, nil},
		{"blank body", ingestion.IngestRequest{Body: "   "}, []string{"body"}},
		{"oversized body", ingestion.IngestRequest{Body: strings.Repeat("x", 65)}, []string{"body"}},
		{"long label", ingestion.IngestRequest{Body: "ok", Label: "ENTERTAINMENT"}, []string{"label"}},
		{"bad label", ingestion.IngestRequest{Body: "ok", Label: "sci-fi"}, []string{"label"}},
		{"both", ingestion.IngestRequest{Label: "a b"}, []string{"body", "label"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			err := ValidateIngestRequest(&req, limits)
			if len(tt.invalid) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tt.invalid) {
				t.Errorf("fields = %v, want %v", verr.Fields, tt.invalid)
			}
			for _, f := range tt.invalid {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("missing error for %s", f)
				}
			}
		})
	}
}

func TestValidateNormalizes(t *testing.T) {
	req := ingestion.IngestRequest{Body: "  Markets rally  ", Label: " business "}
	if err := ValidateIngestRequest(&req, limits); err != nil {
		t.Fatal(err)
	}
	if req.Body != "Markets rally" || req.Label != "BUSINESS" {
		t.Errorf("not normalized: %+v", req)
	}
}

func TestValidateUpdateRequest(t *testing.T) {
	str := func(s string) *string { return &s }

	if err := ValidateUpdateRequest(&ingestion.UpdateRequest{}, limits); err == nil {
		t.Error("empty update accepted")
	}

	req := ingestion.UpdateRequest{Label: str(" world ")}
	if err := ValidateUpdateRequest(&req, limits); err != nil {
		t.Fatal(err)
	}
	if req.Body != nil || *req.Label != "WORLD" {
		t.Errorf("not normalized: body=%v label=%q", req.Body, *req.Label)
	}

	var verr *ValidationError
	err := ValidateUpdateRequest(&ingestion.UpdateRequest{Body: str("  "), Label: str("sci-fi")}, limits)
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected body and label errors, got %v", err)
	}
}
