// Package httpapi is the REST transport: chi router, middleware, and
// handlers translating core service calls into JSON request/responses.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tolvera-hq/saborpos/internal/authz"
	"github.com/tolvera-hq/saborpos/internal/platform/authn"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
	"github.com/tolvera-hq/saborpos/internal/tenantctx"
)

type contextKey int

const principalKey contextKey = iota

// principal is the authenticated caller attached to the request context
// after the auth middleware runs.
type principal struct {
	UserID uuid.UUID
	Role   authz.Role
	Active bool
}

func (p principal) toAuthz() authz.Principal { return authz.Principal{Role: p.Role, Active: p.Active} }

// traceMiddleware assigns or propagates X-Trace-Id and installs it on ctx.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		w.Header().Set("X-Trace-Id", traceID)
		ctx := tenantctx.WithTraceID(r.Context(), traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware validates the bearer token and installs the principal and
// tenant onto the request context. In development/test profile, a raw
// X-Tenant-ID header is also accepted (§6 Headers).
func authMiddleware(issuer *authn.Issuer, devTenantHeaderAllowed bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				if devTenantHeaderAllowed {
					if tid := r.Header.Get("X-Tenant-ID"); tid != "" {
						if parsed, err := uuid.Parse(tid); err == nil {
							ctx = tenantctx.WithTenant(ctx, parsed)
							next.ServeHTTP(w, r.WithContext(ctx))
							return
						}
					}
				}
				writeProblem(w, r, problem.Authentication("missing_token", "missing bearer token"))
				return
			}

			raw := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := issuer.ParseAccessToken(raw)
			if err != nil {
				writeProblem(w, r, problem.Authentication("invalid_token", "invalid or expired token"))
				return
			}

			if claims.TenantID != nil {
				ctx = tenantctx.WithTenant(ctx, *claims.TenantID)
			}
			ctx = tenantctx.WithUser(ctx, claims.UserID)
			ctx = context.WithValue(ctx, principalKey, principal{UserID: claims.UserID, Role: authz.Role(claims.Role), Active: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// principalFromContext returns the authenticated principal installed by
// authMiddleware, defaulting to an inactive zero-value principal.
func principalFromContext(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey).(principal)
	return p
}

// rateLimiter enforces a per-tenant token bucket (§5: process-local state,
// acceptable because the database's unique constraints are authoritative).
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{limiters: make(map[uuid.UUID]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (rl *rateLimiter) allow(tenantID uuid.UUID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[tenantID] = l
	}
	return l.Allow()
}

func rateLimitMiddleware(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := tenantctx.TenantID(r.Context())
			if ok && !rl.allow(tenantID) {
				writeProblem(w, r, problem.RateLimit("rate_limited", "too many requests"))
				return
			}
			next.ServeHTTP(w, r.WithContext(r.Context()))
		})
	}
}

// requestLogMiddleware logs each handled request at Debug with its method,
// path, trace id and duration.
func requestLogMiddleware(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request handled", "method", r.Method, "path", r.URL.Path,
				"trace_id", tenantctx.TraceID(r.Context()), "duration_ms", time.Since(start).Milliseconds())
		})
	}
}
