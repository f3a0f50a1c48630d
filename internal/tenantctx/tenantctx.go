// Package tenantctx carries the authenticated tenant through a request's
// context.Context so every repository call is scoped without threading an
// explicit parameter through every function signature.
package tenantctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	userKey
	traceKey
)

// WithTenant installs the tenant id on ctx.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantID returns the tenant id installed on ctx, if any. A super-admin
// request (no tenant header per §4.1) legitimately has none, so callers must
// check ok rather than treating the zero value as valid.
func TenantID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(tenantKey).(uuid.UUID)
	return v, ok
}

// Require is the convenience form for handlers that cannot proceed without
// a tenant; it mirrors the error every tenant-scoped operation must raise
// when called outside a tenant context.
func Require(ctx context.Context) (uuid.UUID, error) {
	id, ok := TenantID(ctx)
	if !ok {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

// WithUser installs the authenticated user id on ctx.
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserID returns the authenticated user id installed on ctx, if any.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(userKey).(uuid.UUID)
	return v, ok
}

// WithTraceID installs a request trace id on ctx, used both in log lines
// and in the RFC 7807 problem document returned to the client.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey, traceID)
}

// TraceID returns the trace id installed on ctx, or "" if none.
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey).(string)
	return v
}

// ErrNoTenant is returned by Require when ctx carries no tenant.
var ErrNoTenant = errTenantMissing{}

type errTenantMissing struct{}

func (errTenantMissing) Error() string { return "tenantctx: no tenant in context" }
