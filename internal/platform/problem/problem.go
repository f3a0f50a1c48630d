// Package problem implements the error taxonomy shared by every core
// service and its RFC 7807 translation at the HTTP boundary.
package problem

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the stable taxonomy every core failure is classified into.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindAuthn         Kind = "AUTHENTICATION"
	KindAuthz         Kind = "AUTHORIZATION"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
	KindBusinessRule  Kind = "BUSINESS_RULE"
	KindRateLimit     Kind = "RATE_LIMIT"
	KindDependency    Kind = "DEPENDENCY"
	KindInternal      Kind = "INTERNAL"
)

// Error is the typed failure every service operation raises. It is never
// presented to a client verbatim; httpapi translates it into a Document.
type Error struct {
	Kind   Kind
	Code   string // stable, client-routable reason code
	Msg    string
	Fields map[string]string // field -> violation, for KindValidation
	err    error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

func newErr(kind Kind, code, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, err: wrapped}
}

func Validation(code, msg string) *Error        { return newErr(KindValidation, code, msg, nil) }
func Authentication(code, msg string) *Error    { return newErr(KindAuthn, code, msg, nil) }
func Authorization(code, msg string) *Error     { return newErr(KindAuthz, code, msg, nil) }
func NotFound(code, msg string) *Error          { return newErr(KindNotFound, code, msg, nil) }
func Conflict(code, msg string) *Error          { return newErr(KindConflict, code, msg, nil) }
func BusinessRule(code, msg string) *Error      { return newErr(KindBusinessRule, code, msg, nil) }
func RateLimit(code, msg string) *Error         { return newErr(KindRateLimit, code, msg, nil) }
func Dependency(code, msg string, err error) *Error {
	return newErr(KindDependency, code, msg, err)
}
func Internal(msg string, err error) *Error {
	return newErr(KindInternal, "internal_error", msg, err)
}

// WithFields attaches field-level validation violations.
func (e *Error) WithFields(fields map[string]string) *Error {
	e.Fields = fields
	return e
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Document is the RFC 7807 problem document returned to HTTP clients.
type Document struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail"`
	Instance  string            `json:"instance"`
	Timestamp time.Time         `json:"timestamp"`
	TraceID   string            `json:"traceId"`
	Code      string            `json:"code,omitempty"`
	FieldErrs map[string]string `json:"fieldErrors,omitempty"`
}

// statusFor maps a Kind to its HTTP status code per §7 of the core spec.
func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthn:
		return http.StatusUnauthorized
	case KindAuthz:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBusinessRule:
		return http.StatusUnprocessableEntity
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToDocument translates any error into a problem document. Non-*Error
// values are folded into KindInternal so internals never leak to clients.
func ToDocument(err error, instance, traceID string) Document {
	pe, ok := As(err)
	if !ok {
		pe = Internal("unexpected error", err)
	}

	status := statusFor(pe.Kind)
	doc := Document{
		Type:      "https://saborpos.dev/problems/" + string(pe.Kind),
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    pe.Msg,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
		Code:      pe.Code,
		FieldErrs: pe.Fields,
	}
	if pe.Kind == KindInternal {
		doc.Detail = "an unexpected error occurred"
	}
	return doc
}
