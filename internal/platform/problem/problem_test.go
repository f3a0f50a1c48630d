package problem

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestToDocument_StatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", Validation("bad_input", "nope"), http.StatusBadRequest},
		{"authentication", Authentication("bad_creds", "nope"), http.StatusUnauthorized},
		{"authorization", Authorization("forbidden", "nope"), http.StatusForbidden},
		{"not found", NotFound("missing", "nope"), http.StatusNotFound},
		{"conflict", Conflict("version_conflict", "nope"), http.StatusConflict},
		{"business rule", BusinessRule("rule_broken", "nope"), http.StatusUnprocessableEntity},
		{"rate limit", RateLimit("too_fast", "nope"), http.StatusTooManyRequests},
		{"dependency", Dependency("db_down", "nope", errors.New("boom")), http.StatusServiceUnavailable},
		{"internal", Internal("nope", errors.New("boom")), http.StatusInternalServerError},
		{"non-problem error folds to internal", errors.New("raw error"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		doc := ToDocument(c.err, "/api/orders/1", "trace-1")
		if doc.Status != c.wantStatus {
			t.Errorf("%s: doc.Status = %d, want %d", c.name, doc.Status, c.wantStatus)
		}
		if doc.Instance != "/api/orders/1" {
			t.Errorf("%s: doc.Instance = %q, want /api/orders/1", c.name, doc.Instance)
		}
		if doc.TraceID != "trace-1" {
			t.Errorf("%s: doc.TraceID = %q, want trace-1", c.name, doc.TraceID)
		}
	}
}

func TestToDocument_InternalErrorsNeverLeakDetail(t *testing.T) {
	doc := ToDocument(Internal("nope", errors.New("database password is hunter2")), "/x", "t")
	if strings.Contains(doc.Detail, "hunter2") {
		t.Errorf("internal error detail leaked into response: %q", doc.Detail)
	}
	if doc.Detail != "an unexpected error occurred" {
		t.Errorf("doc.Detail = %q, want the generic internal-error message", doc.Detail)
	}
}

func TestToDocument_NonProblemErrorNeverLeaksDetail(t *testing.T) {
	doc := ToDocument(errors.New("raw: connection string user=admin password=hunter2"), "/x", "t")
	if strings.Contains(doc.Detail, "hunter2") {
		t.Errorf("raw error detail leaked into response: %q", doc.Detail)
	}
}

func TestError_UnwrapReachesWrappedError(t *testing.T) {
	wrapped := errors.New("root cause")
	err := Dependency("db_down", "database unavailable", wrapped)
	if !errors.Is(err, wrapped) {
		t.Error("expected errors.Is to find the wrapped root cause")
	}
}

func TestAs_ExtractsTypedError(t *testing.T) {
	err := Validation("bad_field", "nope")
	pe, ok := As(err)
	if !ok {
		t.Fatal("expected As to find a *Error")
	}
	if pe.Kind != KindValidation {
		t.Errorf("pe.Kind = %s, want %s", pe.Kind, KindValidation)
	}

	if _, ok := As(errors.New("not a problem error")); ok {
		t.Error("As should not match a plain error")
	}
}

func TestWithFields_AttachesFieldErrors(t *testing.T) {
	err := Validation("bad_body", "nope").WithFields(map[string]string{"quantity": "must be positive"})
	doc := ToDocument(err, "/x", "t")
	if doc.FieldErrs["quantity"] != "must be positive" {
		t.Errorf("doc.FieldErrs[quantity] = %q, want %q", doc.FieldErrs["quantity"], "must be positive")
	}
}
