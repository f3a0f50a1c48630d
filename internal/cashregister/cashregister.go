// Package cashregister implements cash session lifecycle, the movement
// ledger, variance reconciliation, and hierarchical closings.
package cashregister

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tolvera-hq/saborpos/internal/authz"
	"github.com/tolvera-hq/saborpos/internal/eventbus"
	"github.com/tolvera-hq/saborpos/internal/platform/dbx"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

type MovementType string

const (
	MovementSale                 MovementType = "SALE"
	MovementRefund               MovementType = "REFUND"
	MovementDeposit              MovementType = "DEPOSIT"
	MovementWithdrawal           MovementType = "WITHDRAWAL"
	MovementOpening              MovementType = "OPENING"
	MovementClosing              MovementType = "CLOSING"
	MovementPendingReconciliation MovementType = "PENDING_RECONCILIATION"
)

type ClosingType string

const (
	ClosingSession         ClosingType = "SESSION"
	ClosingRegister        ClosingType = "REGISTER"
	ClosingDay             ClosingType = "DAY"
	ClosingFinancialPeriod ClosingType = "FINANCIAL_PERIOD"
)

// Session is a cash_sessions row.
type Session struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	RegisterID    uuid.UUID
	EmployeeID    uuid.UUID
	Status        SessionStatus
	OpeningAmount decimal.Decimal
	Version       int
}

// Closing is an aggregated, immutable closing record.
type Closing struct {
	ID             uuid.UUID
	TotalSales     decimal.Decimal
	TotalRefunds   decimal.Decimal
	TotalVariance  decimal.Decimal
	SessionCount   int
}

// Service implements §4.6.
type Service struct {
	db  *dbx.DB
	log *logging.Logger
}

func NewService(db *dbx.DB, bus *eventbus.Bus) *Service {
	s := &Service{db: db, log: logging.GetDefault().Component("cashregister")}
	bus.Subscribe(eventbus.EventPaymentCompleted, s.onPaymentCompleted)
	return s
}

// OpenSession opens the one allowed OPEN session for a register; a second
// concurrent attempt fails on the partial unique index.
func (s *Service) OpenSession(ctx context.Context, tenantID, registerID, employeeID uuid.UUID, opening decimal.Decimal) (Session, error) {
	var sess Session
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO cash_sessions (tenant_id, register_id, employee_id, status, opening_amount)
			VALUES ($1, $2, $3, 'OPEN', $4)
			RETURNING id, tenant_id, register_id, employee_id, status, opening_amount, version
		`, tenantID, registerID, employeeID, opening).Scan(
			&sess.ID, &sess.TenantID, &sess.RegisterID, &sess.EmployeeID, &sess.Status, &sess.OpeningAmount, &sess.Version); err != nil {
			return problem.Conflict("session_already_open", "register already has an open session")
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cash_movements (tenant_id, session_id, movement_type, amount)
			VALUES ($1, $2, 'OPENING', $3)
		`, tenantID, sess.ID, opening)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// RecordMovement manually records a DEPOSIT or WITHDRAWAL; any other type
// must come from an event listener, not a direct call.
func (s *Service) RecordMovement(ctx context.Context, tenantID, sessionID uuid.UUID, movementType MovementType, amount decimal.Decimal, note string, recordedBy uuid.UUID) error {
	if movementType != MovementDeposit && movementType != MovementWithdrawal {
		return problem.Validation("invalid_manual_movement", "only DEPOSIT or WITHDRAWAL may be recorded manually")
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status SessionStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM cash_sessions WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, sessionID).Scan(&status); err != nil {
			return problem.NotFound("session_not_found", "cash session not found")
		}
		if status != SessionOpen {
			return problem.BusinessRule("session_not_open", "cash session is not open")
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO cash_movements (tenant_id, session_id, movement_type, amount, note, recorded_by)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, tenantID, sessionID, movementType, amount, note, recordedBy)
		return err
	})
}

// CloseSession computes expected/variance and closes the session.
func (s *Service) CloseSession(ctx context.Context, tenantID, sessionID uuid.UUID, actual decimal.Decimal, principal authz.Principal) (Session, error) {
	if err := authz.RequirePermission(principal, authz.PermCloseCash); err != nil {
		return Session{}, problem.Authorization("close_cash_forbidden", "closing a cash session requires elevated permission")
	}
	var sess Session
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var version int
		var opening decimal.Decimal
		var status SessionStatus
		if err := tx.QueryRow(ctx, `
			SELECT version, opening_amount, status FROM cash_sessions WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, sessionID).Scan(&version, &opening, &status); err != nil {
			return problem.NotFound("session_not_found", "cash session not found")
		}
		if status != SessionOpen {
			return problem.BusinessRule("session_not_open", "cash session is not open")
		}

		expected, err := s.expectedBalance(ctx, tx, tenantID, sessionID, opening)
		if err != nil {
			return err
		}
		variance := actual.Sub(expected)

		tag, err := tx.Exec(ctx, `
			UPDATE cash_sessions SET status = 'CLOSED', actual_close = $1, expected_close = $2, variance = $3,
				closed_at = now(), version = version + 1
			WHERE id = $4 AND tenant_id = $5 AND version = $6
		`, actual, expected, variance, sessionID, tenantID, version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return problem.Conflict("session_version_conflict", "session was modified by another user, refresh and retry")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO cash_movements (tenant_id, session_id, movement_type, amount)
			VALUES ($1, $2, 'CLOSING', $3)
		`, tenantID, sessionID, actual); err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			SELECT id, tenant_id, register_id, employee_id, status, opening_amount, version FROM cash_sessions WHERE id = $1
		`, sessionID).Scan(&sess.ID, &sess.TenantID, &sess.RegisterID, &sess.EmployeeID, &sess.Status, &sess.OpeningAmount, &sess.Version)
	})
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) expectedBalance(ctx context.Context, tx pgx.Tx, tenantID, sessionID uuid.UUID, opening decimal.Decimal) (decimal.Decimal, error) {
	var credits, debits decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(sum(amount), 0) FROM cash_movements
		WHERE tenant_id = $1 AND session_id = $2 AND movement_type IN ('SALE','DEPOSIT')
	`, tenantID, sessionID).Scan(&credits); err != nil {
		return decimal.Zero, err
	}
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(sum(amount), 0) FROM cash_movements
		WHERE tenant_id = $1 AND session_id = $2 AND movement_type IN ('REFUND','WITHDRAWAL')
	`, tenantID, sessionID).Scan(&debits); err != nil {
		return decimal.Zero, err
	}
	return opening.Add(credits).Sub(debits), nil
}

// onPaymentCompleted writes a SALE movement against the site's one open
// session for CASH payments. If none is open, a warning is logged and the
// amount is recorded as a PENDING_RECONCILIATION movement against the
// tenant's most recently opened session, of any site; a tenant with no
// session at all gets no movement.
func (s *Service) onPaymentCompleted(ctx context.Context, evt eventbus.Event) error {
	payload, ok := evt.Payload.(eventbus.PaymentCompleted)
	if !ok {
		return fmt.Errorf("cashregister: unexpected payload type")
	}
	if payload.Method != string(MethodCashLiteral) {
		return nil
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var existing int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM cash_movements WHERE tenant_id = $1 AND payment_id = $2`, payload.TenantID, payload.PaymentID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return nil // already recorded by a prior delivery of this event
		}

		var sessionID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT cs.id FROM cash_sessions cs
			JOIN cash_registers cr ON cr.id = cs.register_id
			WHERE cs.tenant_id = $1 AND cr.site_id = $2 AND cs.status = 'OPEN' LIMIT 1
		`, payload.TenantID, payload.SiteID).Scan(&sessionID)
		if err == pgx.ErrNoRows {
			s.log.Warn("cash payment completed with no open session, recording pending reconciliation",
				"tenant_id", payload.TenantID, "site_id", payload.SiteID, "payment_id", payload.PaymentID)
			_, err := tx.Exec(ctx, `
				INSERT INTO cash_movements (tenant_id, session_id, movement_type, amount, payment_id, note)
				SELECT $1, id, 'PENDING_RECONCILIATION', $2, $3, 'no open session at payment completion'
				FROM cash_sessions WHERE tenant_id = $1 ORDER BY opened_at DESC LIMIT 1
			`, payload.TenantID, payload.Amount, payload.PaymentID)
			if err != nil {
				s.log.Error("failed to record pending-reconciliation movement", "error", err)
			}
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO cash_movements (tenant_id, session_id, movement_type, amount, payment_id)
			VALUES ($1, $2, 'SALE', $3, $4)
		`, payload.TenantID, sessionID, payload.Amount, payload.PaymentID)
		return err
	})
}

const MethodCashLiteral = "CASH"

// RunDayClosings generates a DAY closing for every site for the 24-hour
// window ending at asOf. A site with no closed sessions in the window still
// gets a zero-totals closing record, same as a manual request would produce.
// Errors for one site are logged and do not stop the sweep.
func (s *Service) RunDayClosings(ctx context.Context, asOf time.Time) error {
	windowEnd := asOf
	windowStart := asOf.Add(-24 * time.Hour)

	rows, err := s.db.Pool().Query(ctx, `SELECT tenant_id, id FROM sites`)
	if err != nil {
		return fmt.Errorf("cashregister: list sites for day closing: %w", err)
	}
	type site struct {
		tenantID uuid.UUID
		siteID   uuid.UUID
	}
	var sites []site
	for rows.Next() {
		var sv site
		if err := rows.Scan(&sv.tenantID, &sv.siteID); err != nil {
			rows.Close()
			return err
		}
		sites = append(sites, sv)
	}
	rows.Close()

	for _, sv := range sites {
		if _, err := s.GenerateClosing(ctx, sv.tenantID, ClosingDay, nil, nil, &sv.siteID, windowStart, windowEnd); err != nil {
			s.log.ForTenant(sv.tenantID).Error("day closing failed for site", "site_id", sv.siteID, "error", err)
		}
	}
	return nil
}

// GenerateClosing aggregates sessions in the given window into an immutable
// closing record. REGISTER scopes to one register, DAY to all registers at
// a site, FINANCIAL_PERIOD to the whole tenant (site_id left null).
func (s *Service) GenerateClosing(ctx context.Context, tenantID uuid.UUID, closingType ClosingType, registerID, sessionID, siteID *uuid.UUID, windowStart, windowEnd time.Time) (Closing, error) {
	var closing Closing
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var sessionFilter string
		var args []interface{}
		args = append(args, tenantID, windowStart, windowEnd)
		switch closingType {
		case ClosingRegister:
			sessionFilter = "cs.register_id = $4"
			args = append(args, *registerID)
		case ClosingDay:
			sessionFilter = "cr.site_id = $4"
			args = append(args, *siteID)
		case ClosingFinancialPeriod:
			sessionFilter = "true"
			siteID = nil
		case ClosingSession:
			sessionFilter = "cs.id = $4"
			args = append(args, *sessionID)
		default:
			return problem.Validation("invalid_closing_type", "unknown closing type")
		}

		query := fmt.Sprintf(`
			SELECT cs.id, cs.variance,
				COALESCE((SELECT sum(amount) FROM cash_movements WHERE session_id = cs.id AND movement_type = 'SALE'), 0),
				COALESCE((SELECT sum(amount) FROM cash_movements WHERE session_id = cs.id AND movement_type = 'REFUND'), 0)
			FROM cash_sessions cs
			JOIN cash_registers cr ON cr.id = cs.register_id
			WHERE cs.tenant_id = $1 AND cs.status = 'CLOSED' AND cs.closed_at BETWEEN $2 AND $3 AND %s
		`, sessionFilter)

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		var totalSales, totalRefunds, totalVariance decimal.Decimal
		count := 0
		for rows.Next() {
			var variance, sales, refunds decimal.Decimal
			var id uuid.UUID
			if err := rows.Scan(&id, &variance, &sales, &refunds); err != nil {
				return err
			}
			totalSales = totalSales.Add(sales)
			totalRefunds = totalRefunds.Add(refunds)
			totalVariance = totalVariance.Add(variance)
			count++
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO cash_closings (tenant_id, site_id, closing_type, window_start, window_end, total_sales, total_refunds, total_variance, session_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, tenantID, siteID, closingType, windowStart, windowEnd, totalSales, totalRefunds, totalVariance, count).Scan(&closing.ID)
		if err != nil {
			return err
		}
		closing.TotalSales, closing.TotalRefunds, closing.TotalVariance, closing.SessionCount = totalSales, totalRefunds, totalVariance, count
		return nil
	})
	if err != nil {
		return Closing{}, err
	}
	return closing, nil
}
