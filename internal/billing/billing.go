// Package billing implements payments (with idempotency and partial
// settlement), fiscal document numbering, and split billing.
package billing

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tolvera-hq/saborpos/internal/authz"
	"github.com/tolvera-hq/saborpos/internal/diningroom"
	"github.com/tolvera-hq/saborpos/internal/eventbus"
	"github.com/tolvera-hq/saborpos/internal/platform/dbx"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
	"github.com/tolvera-hq/saborpos/internal/terminal"
)

type PaymentMethod string

const (
	MethodCash    PaymentMethod = "CASH"
	MethodCard    PaymentMethod = "CARD"
	MethodMobile  PaymentMethod = "MOBILE"
	MethodVoucher PaymentMethod = "VOUCHER"
	MethodMixed   PaymentMethod = "MIXED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentVoided    PaymentStatus = "VOIDED"
)

type DocumentType string

const (
	DocumentReceipt    DocumentType = "RECEIPT"
	DocumentInvoice    DocumentType = "INVOICE"
	DocumentCreditNote DocumentType = "CREDIT_NOTE"
)

// Payment is a payment row.
type Payment struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	OrderID               uuid.UUID
	IdempotencyKey        string
	Amount                decimal.Decimal
	Method                PaymentMethod
	Status                PaymentStatus
	TerminalTransactionID *string
	Version               int
}

// ProcessResult carries the payment plus any cash change due.
type ProcessResult struct {
	Payment Payment
	Change  decimal.Decimal
}

// Service implements §4.5.
type Service struct {
	db       *dbx.DB
	dining   *diningroom.Service
	terminal terminal.Terminal
	bus      *eventbus.Bus
	log      *logging.Logger
}

func NewService(db *dbx.DB, dining *diningroom.Service, term terminal.Terminal, bus *eventbus.Bus) *Service {
	return &Service{db: db, dining: dining, terminal: term, bus: bus, log: logging.GetDefault().Component("billing")}
}

// ProcessPayment is the central payment contract: idempotent, partial
// settlement aware, and terminal-backed for CARD.
func (s *Service) ProcessPayment(ctx context.Context, tenantID, orderID uuid.UUID, amount decimal.Decimal, method PaymentMethod, idempotencyKey, cardLastFour string) (ProcessResult, error) {
	if existing, ok, err := s.findByIdempotencyKey(ctx, tenantID, idempotencyKey); err != nil {
		return ProcessResult{}, err
	} else if ok {
		return ProcessResult{Payment: existing}, nil
	}

	if method == MethodCard && cardLastFour != "" {
		blocked, err := s.dining.IsBlacklisted(ctx, s.db.Pool(), tenantID, diningroom.EntityCard, cardLastFour)
		if err != nil {
			return ProcessResult{}, err
		}
		if blocked {
			return ProcessResult{}, problem.BusinessRule("card_blacklisted", "card is blacklisted")
		}
	}

	var result ProcessResult
	var completedEvt *eventbus.PaymentCompleted
	err := s.db.WithRetryableTx(ctx, 3, func(ctx context.Context, tx pgx.Tx) error {
		var o struct {
			siteID  uuid.UUID
			total   decimal.Decimal
			status  string
		}
		if err := tx.QueryRow(ctx, `
			SELECT site_id, total_amount, status FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, orderID).Scan(&o.siteID, &o.total, &o.status); err != nil {
			return problem.NotFound("order_not_found", "order not found")
		}
		if o.status != "CONFIRMED" && o.status != "PAID" {
			return problem.BusinessRule("order_not_payable", "order is not in a payable state")
		}

		var completedSum decimal.Decimal
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(sum(amount), 0) FROM payments WHERE tenant_id = $1 AND order_id = $2 AND status = 'COMPLETED'
		`, tenantID, orderID).Scan(&completedSum); err != nil {
			return err
		}
		remaining := o.total.Sub(completedSum)

		settleAmount := amount
		change := decimal.Zero
		if amount.GreaterThan(remaining) {
			if method != MethodCash {
				return problem.BusinessRule("overpayment", "payment amount exceeds remaining balance")
			}
			settleAmount = remaining
			change = amount.Sub(remaining)
		}

		status := PaymentPending
		var terminalTxID *string
		if method == MethodCard || method == MethodMobile {
			res, err := s.terminal.Charge(ctx, settleAmount, "default")
			if err != nil {
				return problem.Dependency("terminal_error", "payment terminal call failed", err)
			}
			switch res.Outcome {
			case terminal.OutcomeApproved:
				status = PaymentCompleted
				terminalTxID = &res.TransactionID
			case terminal.OutcomeDeclined:
				status = PaymentFailed
			default:
				status = PaymentFailed
			}
		} else {
			status = PaymentCompleted
		}

		var p Payment
		if err := tx.QueryRow(ctx, `
			INSERT INTO payments (tenant_id, order_id, idempotency_key, amount, method, status, terminal_transaction_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, tenant_id, order_id, idempotency_key, amount, method, status, terminal_transaction_id, version
		`, tenantID, orderID, idempotencyKey, settleAmount, method, status, terminalTxID).Scan(
			&p.ID, &p.TenantID, &p.OrderID, &p.IdempotencyKey, &p.Amount, &p.Method, &p.Status, &p.TerminalTransactionID, &p.Version); err != nil {
			return err
		}

		if status == PaymentCompleted {
			newCompleted := completedSum.Add(settleAmount)
			if newCompleted.Equal(o.total) {
				if _, err := tx.Exec(ctx, `UPDATE orders SET status = 'PAID', version = version + 1 WHERE id = $1`, orderID); err != nil {
					return err
				}
			}
			completedEvt = &eventbus.PaymentCompleted{
				PaymentID: p.ID, OrderID: orderID, TenantID: tenantID, SiteID: o.siteID,
				Amount: settleAmount, Method: string(method), When: time.Now().UTC(),
			}
		}

		result = ProcessResult{Payment: p, Change: change}
		return nil
	})
	if err != nil {
		return ProcessResult{}, err
	}
	if completedEvt != nil {
		s.bus.Publish(eventbus.Event{Name: eventbus.EventPaymentCompleted, TenantID: tenantID, Payload: *completedEvt})
	}
	return result, nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (Payment, bool, error) {
	var p Payment
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, tenant_id, order_id, idempotency_key, amount, method, status, terminal_transaction_id, version
		FROM payments WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key).Scan(&p.ID, &p.TenantID, &p.OrderID, &p.IdempotencyKey, &p.Amount, &p.Method, &p.Status, &p.TerminalTransactionID, &p.Version)
	if err == pgx.ErrNoRows {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return p, true, nil
}

// VoidPayment voids a COMPLETED payment. Only the payment's status changes:
// no REFUND cash movement is written for cash payments, no refund is sent to
// the payment terminal, and no audit entry is recorded.
func (s *Service) VoidPayment(ctx context.Context, tenantID, paymentID uuid.UUID, principal authz.Principal, reason string) error {
	if err := authz.RequirePermission(principal, authz.PermVoidInvoice); err != nil {
		return problem.Authorization("void_payment_forbidden", "voiding a payment requires elevated permission")
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status PaymentStatus
		var version int
		if err := tx.QueryRow(ctx, `
			SELECT status, version FROM payments WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, paymentID).Scan(&status, &version); err != nil {
			return problem.NotFound("payment_not_found", "payment not found")
		}
		if status != PaymentCompleted {
			return problem.BusinessRule("payment_not_voidable", "only a completed payment may be voided")
		}
		tag, err := tx.Exec(ctx, `
			UPDATE payments SET status = 'VOIDED', version = version + 1 WHERE id = $1 AND version = $2
		`, paymentID, version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return problem.Conflict("payment_version_conflict", "payment was modified by another user, refresh and retry")
		}
		return nil
	})
}

// GenerateFiscalDocument assigns a gap-free document_number within an
// advisory-locked transaction keyed by (tenant,site,type).
func (s *Service) GenerateFiscalDocument(ctx context.Context, tenantID, siteID, orderID uuid.UUID, docType DocumentType, customerTaxID string) (uuid.UUID, int, error) {
	if docType == DocumentInvoice && customerTaxID == "" {
		return uuid.Nil, 0, problem.Validation("tax_id_required", "invoices require a customer tax id")
	}

	var docID uuid.UUID
	var number int
	var evt eventbus.FiscalDocumentGenerated
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		lockKey := advisoryLockKey(tenantID, siteID, string(docType))
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
			return fmt.Errorf("acquire fiscal numbering lock: %w", err)
		}

		var maxNumber int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(max(document_number), 0) FROM fiscal_documents
			WHERE tenant_id = $1 AND site_id = $2 AND document_type = $3
		`, tenantID, siteID, docType).Scan(&maxNumber); err != nil {
			return err
		}
		number = maxNumber + 1

		var total decimal.Decimal
		if err := tx.QueryRow(ctx, `SELECT total_amount FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID).Scan(&total); err != nil {
			return problem.NotFound("order_not_found", "order not found")
		}

		var taxID *string
		if customerTaxID != "" {
			taxID = &customerTaxID
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO fiscal_documents (tenant_id, site_id, order_id, document_type, document_number, customer_tax_id, total_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, tenantID, siteID, orderID, docType, number, taxID, total).Scan(&docID); err != nil {
			return err
		}

		evt = eventbus.FiscalDocumentGenerated{DocumentID: docID, TenantID: tenantID, SiteID: siteID, Type: string(docType), Number: number, When: time.Now().UTC()}
		return nil
	})
	if err != nil {
		return uuid.Nil, 0, err
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.EventFiscalDocumentGenerated, TenantID: tenantID, Payload: evt})
	return docID, number, nil
}

func advisoryLockKey(tenantID, siteID uuid.UUID, docType string) int64 {
	h := fnv.New64a()
	h.Write([]byte(tenantID.String() + ":" + siteID.String() + ":" + docType))
	return int64(h.Sum64())
}

// SplitStatus is the settlement state of one Split.
type SplitStatus string

const (
	SplitPending SplitStatus = "PENDING"
	SplitPaid    SplitStatus = "PAID"
)

// Split is one persisted, independently-settleable share of a SplitBill. The
// order it belongs to only reaches PAID once every Split in its GroupID has
// been settled.
type Split struct {
	ID      uuid.UUID
	OrderID uuid.UUID
	GroupID uuid.UUID
	Amount  decimal.Decimal
	Status  SplitStatus
}

// SplitBill partitions the outstanding balance into n equal shares (the
// remainder distributed to the first splits) and persists each as a pending
// bill_splits row sharing one split_group_id, so a later SettleSplit call
// can settle any one of them independently.
func (s *Service) SplitBill(ctx context.Context, tenantID, orderID uuid.UUID, n int) ([]Split, error) {
	if n <= 0 {
		return nil, problem.Validation("invalid_split_count", "split count must be positive")
	}

	var splits []Split
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var total, completedSum decimal.Decimal
		if err := tx.QueryRow(ctx, `SELECT total_amount FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, orderID).Scan(&total); err != nil {
			return problem.NotFound("order_not_found", "order not found")
		}
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(sum(amount), 0) FROM payments WHERE tenant_id = $1 AND order_id = $2 AND status = 'COMPLETED'
		`, tenantID, orderID).Scan(&completedSum); err != nil {
			return err
		}
		outstanding := total.Sub(completedSum)
		if outstanding.LessThanOrEqual(decimal.Zero) {
			return problem.BusinessRule("nothing_outstanding", "order has no outstanding balance to split")
		}

		groupID := uuid.New()
		shares := splitCents(outstanding, n)
		splits = make([]Split, n)
		for i, amount := range shares {
			sp := Split{OrderID: orderID, GroupID: groupID, Amount: amount, Status: SplitPending}
			if err := tx.QueryRow(ctx, `
				INSERT INTO bill_splits (tenant_id, order_id, split_group_id, amount, status)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id
			`, tenantID, orderID, groupID, amount, SplitPending).Scan(&sp.ID); err != nil {
				return err
			}
			splits[i] = sp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return splits, nil
}

// SettleSplit processes a payment against exactly one pending Split,
// analogous to ProcessPayment but scoped to that split's share rather than
// the order's full remaining balance. Once every split sharing its GroupID
// is settled, the order closes the same way ProcessPayment would.
func (s *Service) SettleSplit(ctx context.Context, tenantID, splitID uuid.UUID, amount decimal.Decimal, method PaymentMethod, idempotencyKey, cardLastFour string) (ProcessResult, error) {
	if existing, ok, err := s.findByIdempotencyKey(ctx, tenantID, idempotencyKey); err != nil {
		return ProcessResult{}, err
	} else if ok {
		return ProcessResult{Payment: existing}, nil
	}

	if method == MethodCard && cardLastFour != "" {
		blocked, err := s.dining.IsBlacklisted(ctx, s.db.Pool(), tenantID, diningroom.EntityCard, cardLastFour)
		if err != nil {
			return ProcessResult{}, err
		}
		if blocked {
			return ProcessResult{}, problem.BusinessRule("card_blacklisted", "card is blacklisted")
		}
	}

	var result ProcessResult
	var completedEvt *eventbus.PaymentCompleted
	err := s.db.WithRetryableTx(ctx, 3, func(ctx context.Context, tx pgx.Tx) error {
		var orderID, groupID uuid.UUID
		var shareAmount decimal.Decimal
		var status SplitStatus
		var version int
		if err := tx.QueryRow(ctx, `
			SELECT order_id, split_group_id, amount, status, version FROM bill_splits
			WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, splitID).Scan(&orderID, &groupID, &shareAmount, &status, &version); err != nil {
			return problem.NotFound("split_not_found", "split not found")
		}
		if status != SplitPending {
			return problem.BusinessRule("split_already_settled", "split has already been settled")
		}

		var o struct {
			siteID uuid.UUID
			total  decimal.Decimal
			status string
		}
		if err := tx.QueryRow(ctx, `
			SELECT site_id, total_amount, status FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, orderID).Scan(&o.siteID, &o.total, &o.status); err != nil {
			return problem.NotFound("order_not_found", "order not found")
		}
		if o.status != "CONFIRMED" && o.status != "PAID" {
			return problem.BusinessRule("order_not_payable", "order is not in a payable state")
		}

		settleAmount := amount
		change := decimal.Zero
		switch {
		case amount.GreaterThan(shareAmount):
			if method != MethodCash {
				return problem.BusinessRule("overpayment", "payment amount exceeds the split's share")
			}
			settleAmount = shareAmount
			change = amount.Sub(shareAmount)
		case amount.LessThan(shareAmount):
			return problem.BusinessRule("underpayment", "payment amount is less than the split's share")
		}

		payStatus := PaymentPending
		var terminalTxID *string
		if method == MethodCard || method == MethodMobile {
			res, err := s.terminal.Charge(ctx, settleAmount, "default")
			if err != nil {
				return problem.Dependency("terminal_error", "payment terminal call failed", err)
			}
			switch res.Outcome {
			case terminal.OutcomeApproved:
				payStatus = PaymentCompleted
				terminalTxID = &res.TransactionID
			default:
				payStatus = PaymentFailed
			}
		} else {
			payStatus = PaymentCompleted
		}

		var p Payment
		if err := tx.QueryRow(ctx, `
			INSERT INTO payments (tenant_id, order_id, idempotency_key, amount, method, status, terminal_transaction_id, split_group_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, tenant_id, order_id, idempotency_key, amount, method, status, terminal_transaction_id, version
		`, tenantID, orderID, idempotencyKey, settleAmount, method, payStatus, terminalTxID, splitID).Scan(
			&p.ID, &p.TenantID, &p.OrderID, &p.IdempotencyKey, &p.Amount, &p.Method, &p.Status, &p.TerminalTransactionID, &p.Version); err != nil {
			return err
		}

		if payStatus == PaymentCompleted {
			tag, err := tx.Exec(ctx, `
				UPDATE bill_splits SET status = 'PAID', version = version + 1 WHERE id = $1 AND version = $2
			`, splitID, version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return problem.Conflict("split_version_conflict", "split was modified by another user, refresh and retry")
			}

			var pendingCount int
			if err := tx.QueryRow(ctx, `
				SELECT count(*) FROM bill_splits WHERE tenant_id = $1 AND split_group_id = $2 AND status = 'PENDING'
			`, tenantID, groupID).Scan(&pendingCount); err != nil {
				return err
			}
			if pendingCount == 0 {
				var completedSum decimal.Decimal
				if err := tx.QueryRow(ctx, `
					SELECT COALESCE(sum(amount), 0) FROM payments WHERE tenant_id = $1 AND order_id = $2 AND status = 'COMPLETED'
				`, tenantID, orderID).Scan(&completedSum); err != nil {
					return err
				}
				if completedSum.GreaterThanOrEqual(o.total) {
					if _, err := tx.Exec(ctx, `UPDATE orders SET status = 'PAID', version = version + 1 WHERE id = $1`, orderID); err != nil {
						return err
					}
				}
			}

			completedEvt = &eventbus.PaymentCompleted{
				PaymentID: p.ID, OrderID: orderID, TenantID: tenantID, SiteID: o.siteID,
				Amount: settleAmount, Method: string(method), When: time.Now().UTC(),
			}
		}

		result = ProcessResult{Payment: p, Change: change}
		return nil
	})
	if err != nil {
		return ProcessResult{}, err
	}
	if completedEvt != nil {
		s.bus.Publish(eventbus.Event{Name: eventbus.EventPaymentCompleted, TenantID: tenantID, Payload: *completedEvt})
	}
	return result, nil
}

// splitCents divides outstanding into n shares of whole cents, handing the
// remainder one cent at a time to the first splits so the sum always
// reconciles exactly back to outstanding.
func splitCents(outstanding decimal.Decimal, n int) []decimal.Decimal {
	cents := outstanding.Shift(2).Round(0).IntPart()
	base := cents / int64(n)
	remainder := cents % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		amount := base
		if int64(i) < remainder {
			amount++
		}
		shares[i] = decimal.New(amount, -2)
	}
	return shares
}

// PrintSubtotal renders an intermediate bill without changing any status.
func (s *Service) PrintSubtotal(ctx context.Context, tenantID, orderID uuid.UUID) (string, error) {
	var total decimal.Decimal
	var siteID uuid.UUID
	if err := s.db.Pool().QueryRow(ctx, `SELECT total_amount, site_id FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID).Scan(&total, &siteID); err != nil {
		return "", problem.NotFound("order_not_found", "order not found")
	}
	return fmt.Sprintf("SUBTOTAL\nOrder %s\nTotal: %s", orderID, total.StringFixed(2)), nil
}
