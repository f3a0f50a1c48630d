package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tolvera-hq/saborpos/internal/cashregister"
	"github.com/tolvera-hq/saborpos/internal/kitchen"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

func kitchenStatus(s string) kitchen.PrinterStatus { return kitchen.PrinterStatus(s) }

type openCashSessionRequest struct {
	RegisterID string          `json:"register_id"`
	Opening    decimal.Decimal `json:"opening_amount"`
}

func (s *Server) handleCashSessionOpen(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req openCashSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	registerID, err := uuid.Parse(req.RegisterID)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_register_id", "invalid register id"))
		return
	}
	p := principalFromContext(r.Context())
	sess, err := s.CashRegister.OpenSession(r.Context(), tenantID, registerID, p.UserID, req.Opening)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type cashMovementRequest struct {
	Type   string          `json:"movement_type"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (s *Server) handleCashMovementCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	sessionID, _ := pathUUID(r, "id")
	var req cashMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	p := principalFromContext(r.Context())
	if err := s.CashRegister.RecordMovement(r.Context(), tenantID, sessionID, cashregister.MovementType(req.Type), req.Amount, req.Note, p.UserID); err != nil {
		writeProblem(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type closeCashSessionRequest struct {
	Actual decimal.Decimal `json:"actual_close"`
}

func (s *Server) handleCashSessionClose(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	sessionID, _ := pathUUID(r, "id")
	var req closeCashSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	p := principalFromContext(r.Context())
	sess, err := s.CashRegister.CloseSession(r.Context(), tenantID, sessionID, req.Actual, p.toAuthz())
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type cashClosingRequest struct {
	ClosingType string `json:"closing_type"`
	RegisterID  string `json:"register_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	SiteID      string `json:"site_id,omitempty"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

func (s *Server) handleCashClosingCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	var req cashClosingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, problem.Validation("invalid_body", "malformed request body"))
		return
	}
	start, err := time.Parse(time.RFC3339, req.WindowStart)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_window_start", "window_start must be RFC3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, req.WindowEnd)
	if err != nil {
		writeProblem(w, r, problem.Validation("invalid_window_end", "window_end must be RFC3339"))
		return
	}
	var registerID, sessionID, siteID *uuid.UUID
	if req.RegisterID != "" {
		id, err := uuid.Parse(req.RegisterID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_register_id", "invalid register id"))
			return
		}
		registerID = &id
	}
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_session_id", "invalid session id"))
			return
		}
		sessionID = &id
	}
	if req.SiteID != "" {
		id, err := uuid.Parse(req.SiteID)
		if err != nil {
			writeProblem(w, r, problem.Validation("invalid_site_id", "invalid site id"))
			return
		}
		siteID = &id
	}
	closing, err := s.CashRegister.GenerateClosing(r.Context(), tenantID, cashregister.ClosingType(req.ClosingType), registerID, sessionID, siteID, start, end)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, closing)
}
