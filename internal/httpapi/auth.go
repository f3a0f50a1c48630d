package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tolvera-hq/saborpos/internal/platform/authn"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

// AuthService implements login/refresh/logout against the users table.
type AuthService struct {
	pool   *pgxpool.Pool
	issuer *authn.Issuer
	log    *logging.Logger
}

func NewAuthService(pool *pgxpool.Pool, issuer *authn.Issuer) *AuthService {
	return &AuthService{pool: pool, issuer: issuer, log: logging.GetDefault().Component("authn")}
}

type loginRequest struct {
	TenantID string `json:"tenant_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}

	var userID uuid.UUID
	var tenantID *uuid.UUID
	var role, passwordHash, status string
	var query string
	var args []interface{}
	if req.TenantID == "" {
		query = `SELECT id, tenant_id, role, password_hash, status FROM users WHERE tenant_id IS NULL AND username = $1`
		args = []interface{}{req.Username}
	} else {
		query = `SELECT id, tenant_id, role, password_hash, status FROM users WHERE tenant_id = $1 AND username = $2`
		tid, err := uuid.Parse(req.TenantID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_tenant_id", "tenant_id is not a valid uuid"))
			return
		}
		args = []interface{}{tid, req.Username}
	}
	err := s.Auth.pool.QueryRow(r.Context(), query, args...).Scan(&userID, &tenantID, &role, &passwordHash, &status)
	if err != nil {
		writeProblem(w, r, problem.Authentication("invalid_credentials", "invalid username or password"))
		return
	}
	if status != "ACTIVE" {
		writeProblem(w, r, problem.Authentication("user_inactive", "user account is inactive"))
		return
	}
	if !authn.VerifyPassword(passwordHash, req.Password) {
		writeProblem(w, r, problem.Authentication("invalid_credentials", "invalid username or password"))
		return
	}

	access, expiresAt, err := s.Auth.issuer.IssueAccessToken(userID, tenantID, role)
	if err != nil {
		writeProblem(w, r, problem.Internal("token issuance failed", err))
		return
	}
	refresh, err := s.Auth.issuer.NewRefreshToken()
	if err != nil {
		writeProblem(w, r, problem.Internal("token issuance failed", err))
		return
	}
	if _, err := s.Auth.pool.Exec(r.Context(), `
		INSERT INTO refresh_tokens (tenant_id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)
	`, tenantID, userID, refresh.Hash, refresh.ExpiresAt); err != nil {
		writeProblem(w, r, problem.Internal("token issuance failed", err))
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: refresh.Token, ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00")})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	hash := authn.HashRefreshToken(req.RefreshToken)

	var userID uuid.UUID
	var tenantID *uuid.UUID
	var revoked bool
	err := s.Auth.pool.QueryRow(r.Context(), `
		SELECT user_id, tenant_id, revoked FROM refresh_tokens WHERE token_hash = $1 AND expires_at > now()
	`, hash).Scan(&userID, &tenantID, &revoked)
	if err != nil || revoked {
		writeProblem(w, r, problem.Authentication("invalid_refresh_token", "refresh token is invalid, expired, or revoked"))
		return
	}

	var role string
	if err := s.Auth.pool.QueryRow(r.Context(), `SELECT role FROM users WHERE id = $1`, userID).Scan(&role); err != nil {
		writeProblem(w, r, problem.Internal("user lookup failed", err))
		return
	}

	access, expiresAt, err := s.Auth.issuer.IssueAccessToken(userID, tenantID, role)
	if err != nil {
		writeProblem(w, r, problem.Internal("token issuance failed", err))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00")})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	hash := authn.HashRefreshToken(req.RefreshToken)
	if _, err := s.Auth.pool.Exec(context.Background(), `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1`, hash); err != nil {
		writeProblem(w, r, problem.Internal("logout failed", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
