// Package orders implements the order and order-line lifecycle engine:
// creation, line management, confirmation ("Pedir"), voids, discounts, and
// table transfer.
package orders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tolvera-hq/saborpos/internal/authz"
	"github.com/tolvera-hq/saborpos/internal/catalog"
	"github.com/tolvera-hq/saborpos/internal/diningroom"
	"github.com/tolvera-hq/saborpos/internal/eventbus"
	"github.com/tolvera-hq/saborpos/internal/platform/dbx"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

type OrderType string

const (
	TypeDineIn   OrderType = "DINE_IN"
	TypeDelivery OrderType = "DELIVERY"
	TypeTakeout  OrderType = "TAKEOUT"
)

type OrderStatus string

const (
	StatusOpen      OrderStatus = "OPEN"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusPaid      OrderStatus = "PAID"
	StatusClosed    OrderStatus = "CLOSED"
	StatusVoided    OrderStatus = "VOIDED"
)

type LineStatus string

const (
	LineStatusPending   LineStatus = "PENDING"
	LineStatusConfirmed LineStatus = "CONFIRMED"
	LineStatusVoided    LineStatus = "VOIDED"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Order is an order aggregate root.
type Order struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	SiteID      uuid.UUID
	TableID     *uuid.UUID
	CustomerID  *uuid.UUID
	Type        OrderType
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Version     int
	EverConfirmed bool
}

// Line is a single order line.
type Line struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	OrderID   uuid.UUID
	ItemID    uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Notes     string
	Status    LineStatus
	Version   int
}

// Service implements every order operation in §4.4.
type Service struct {
	db       *dbx.DB
	catalog  catalog.Repository
	dining   *diningroom.Service
	bus      *eventbus.Bus
	log      *logging.Logger
}

func NewService(db *dbx.DB, cat catalog.Repository, dining *diningroom.Service, bus *eventbus.Bus) *Service {
	return &Service{db: db, catalog: cat, dining: dining, bus: bus, log: logging.GetDefault().Component("orders")}
}

// Create opens a new order. DINE_IN requires a table; DELIVERY requires a
// customer reference (resolved hard invariant, §9).
func (s *Service) Create(ctx context.Context, tenantID, siteID uuid.UUID, orderType OrderType, tableID, customerID *uuid.UUID) (Order, error) {
	if orderType == TypeDineIn && tableID == nil {
		return Order{}, problem.Validation("table_required", "DINE_IN orders require a table")
	}
	if orderType == TypeDelivery && customerID == nil {
		return Order{}, problem.Validation("customer_required", "DELIVERY orders require a customer")
	}

	var o Order
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (tenant_id, site_id, table_id, customer_id, order_type, status, total_amount)
			VALUES ($1, $2, $3, $4, $5, 'OPEN', 0)
			RETURNING id, tenant_id, site_id, table_id, customer_id, order_type, status, total_amount, version
		`, tenantID, siteID, tableID, customerID, orderType).Scan(
			&o.ID, &o.TenantID, &o.SiteID, &o.TableID, &o.CustomerID, &o.Type, &o.Status, &o.TotalAmount, &o.Version)
		return err
	})
	if err != nil {
		return Order{}, fmt.Errorf("orders: create: %w", err)
	}
	return o, nil
}

func (s *Service) getOrderForUpdate(ctx context.Context, tx pgx.Tx, tenantID, orderID uuid.UUID) (Order, error) {
	var o Order
	var wasConfirmed bool
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, site_id, table_id, customer_id, order_type, status, total_amount, version,
			EXISTS(SELECT 1 FROM order_lines WHERE order_id = orders.id AND status IN ('CONFIRMED','VOIDED'))
		FROM orders WHERE tenant_id = $1 AND id = $2 FOR UPDATE
	`, tenantID, orderID).Scan(&o.ID, &o.TenantID, &o.SiteID, &o.TableID, &o.CustomerID, &o.Type, &o.Status, &o.TotalAmount, &o.Version, &wasConfirmed)
	if err != nil {
		return Order{}, problem.NotFound("order_not_found", "order not found")
	}
	o.EverConfirmed = o.Status != StatusOpen || wasConfirmed
	return o, nil
}

// recomputeTotal sums every line that hasn't been voided — PENDING lines
// contribute to the running total the same as CONFIRMED ones, so AddLine and
// UpdateLine keep total_amount current before the order is ever confirmed.
func (s *Service) recomputeTotal(ctx context.Context, tx pgx.Tx, tenantID, orderID uuid.UUID) (decimal.Decimal, error) {
	var lineTotal decimal.Decimal
	rows, err := tx.Query(ctx, `
		SELECT quantity, unit_price FROM order_lines
		WHERE tenant_id = $1 AND order_id = $2 AND status IN ('PENDING', 'CONFIRMED')
	`, tenantID, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	for rows.Next() {
		var qty int
		var price decimal.Decimal
		if err := rows.Scan(&qty, &price); err != nil {
			rows.Close()
			return decimal.Zero, err
		}
		lineTotal = lineTotal.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	}
	rows.Close()

	var discountTotal decimal.Decimal
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(sum(amount), 0) FROM discounts WHERE tenant_id = $1 AND order_id = $2
	`, tenantID, orderID).Scan(&discountTotal); err != nil {
		return decimal.Zero, err
	}

	total := lineTotal.Sub(discountTotal)
	if total.IsNegative() {
		total = decimal.Zero
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET total_amount = $1, updated_at = now() WHERE id = $2`, total, orderID); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// AddLine appends a PENDING line priced at the item's current base_price.
func (s *Service) AddLine(ctx context.Context, tenantID, orderID, itemID uuid.UUID, qty int, notes string) (Line, error) {
	if qty <= 0 {
		return Line{}, problem.Validation("invalid_quantity", "quantity must be positive")
	}
	var line Line
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		o, err := s.getOrderForUpdate(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusOpen {
			return problem.BusinessRule("order_not_open", "order is not open")
		}

		item, err := s.catalog.GetItem(ctx, tenantID, itemID)
		if err != nil {
			return problem.NotFound("item_not_found", "catalog item not found")
		}
		if !item.Available {
			return problem.BusinessRule("item_unavailable", "item is not available")
		}
		if o.TableID != nil {
			var tableNumber string
			if err := tx.QueryRow(ctx, `SELECT table_number FROM dining_tables WHERE tenant_id = $1 AND id = $2`, tenantID, *o.TableID).Scan(&tableNumber); err != nil {
				return problem.NotFound("table_not_found", "dining table not found")
			}
			blocked, err := s.dining.IsBlacklisted(ctx, s.db.Pool(), tenantID, diningroom.EntityTable, tableNumber)
			if err != nil {
				return err
			}
			if blocked {
				return problem.BusinessRule("table_blacklisted", "table is blacklisted")
			}
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO order_lines (tenant_id, order_id, item_id, quantity, unit_price, notes, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'PENDING')
			RETURNING id, tenant_id, order_id, item_id, quantity, unit_price, notes, status, version
		`, tenantID, orderID, itemID, qty, item.BasePrice, notes).Scan(
			&line.ID, &line.TenantID, &line.OrderID, &line.ItemID, &line.Quantity, &line.UnitPrice, &line.Notes, &line.Status, &line.Version)
		if err != nil {
			return err
		}
		_, err = s.recomputeTotal(ctx, tx, tenantID, orderID)
		return err
	})
	if err != nil {
		return Line{}, err
	}
	return line, nil
}

// UpdateLine mutates a PENDING line's quantity/notes.
func (s *Service) UpdateLine(ctx context.Context, tenantID, lineID uuid.UUID, qty int, notes string) error {
	if qty <= 0 {
		return problem.Validation("invalid_quantity", "quantity must be positive")
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status LineStatus
		var version int
		var orderID uuid.UUID
		if err := tx.QueryRow(ctx, `
			SELECT status, version, order_id FROM order_lines WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, lineID).Scan(&status, &version, &orderID); err != nil {
			return problem.NotFound("line_not_found", "order line not found")
		}
		if status != LineStatusPending {
			return problem.BusinessRule("line_not_pending", "only a pending line may be updated")
		}
		tag, err := tx.Exec(ctx, `
			UPDATE order_lines SET quantity = $1, notes = $2, version = version + 1
			WHERE id = $3 AND tenant_id = $4 AND version = $5
		`, qty, notes, lineID, tenantID, version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return problem.Conflict("line_version_conflict", "line was modified by another user, refresh and retry")
		}
		_, err = s.recomputeTotal(ctx, tx, tenantID, orderID)
		return err
	})
}

// Confirm ("Pedir") transitions every PENDING line to CONFIRMED, writes a
// Consumption per transitioned line, and moves the order to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, tenantID, orderID uuid.UUID) error {
	var evt eventbus.OrderConfirmed
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		o, err := s.getOrderForUpdate(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusOpen {
			return problem.BusinessRule("order_not_open", "order is not open")
		}

		rows, err := tx.Query(ctx, `
			SELECT id, item_id, quantity, notes FROM order_lines
			WHERE tenant_id = $1 AND order_id = $2 AND status = 'PENDING'
		`, tenantID, orderID)
		if err != nil {
			return err
		}
		type pendingLine struct {
			id, itemID uuid.UUID
			qty        int
			notes      string
		}
		var pending []pendingLine
		for rows.Next() {
			var pl pendingLine
			if err := rows.Scan(&pl.id, &pl.itemID, &pl.qty, &pl.notes); err != nil {
				rows.Close()
				return err
			}
			pending = append(pending, pl)
		}
		rows.Close()
		if len(pending) == 0 {
			return problem.BusinessRule("no_pending_lines", "order has no pending lines to confirm")
		}

		now := time.Now().UTC()
		var ordinal int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM order_lines WHERE tenant_id = $1 AND order_id = $2 AND status = 'CONFIRMED'
		`, tenantID, orderID).Scan(&ordinal); err != nil {
			return err
		}

		for _, pl := range pending {
			if _, err := tx.Exec(ctx, `
				UPDATE order_lines SET status = 'CONFIRMED', version = version + 1 WHERE id = $1
			`, pl.id); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO consumptions (tenant_id, order_line_id, quantity, confirmed_at)
				VALUES ($1, $2, $3, $4)
			`, tenantID, pl.id, pl.qty, now); err != nil {
				return err
			}

			var itemName, zone string
			if err := tx.QueryRow(ctx, `SELECT name, print_zone FROM items WHERE id = $1`, pl.itemID).Scan(&itemName, &zone); err != nil {
				return err
			}
			evt.Lines = append(evt.Lines, eventbus.ConfirmedLine{
				LineID: pl.id, ItemID: pl.itemID, ItemName: itemName, Quantity: pl.qty, Notes: pl.notes, Zone: zone,
			})
		}

		if _, err := s.recomputeTotal(ctx, tx, tenantID, orderID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE orders SET status = 'CONFIRMED', version = version + 1
			WHERE id = $1 AND tenant_id = $2 AND version = $3
		`, orderID, tenantID, o.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return problem.Conflict("order_version_conflict", "order was modified by another user, refresh and retry")
		}

		var tableNumber string
		if o.TableID != nil {
			_ = tx.QueryRow(ctx, `SELECT table_number FROM dining_tables WHERE id = $1`, *o.TableID).Scan(&tableNumber)
		}

		evt.OrderID, evt.TenantID, evt.SiteID, evt.TableNumber, evt.ConfirmedAt, evt.ConfirmationOrdinal = orderID, tenantID, o.SiteID, tableNumber, now, ordinal
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.EventOrderConfirmed, TenantID: tenantID, Payload: evt})
	return nil
}

// VoidLine voids a line. If the containing order has ever been confirmed,
// the caller must hold VOID_AFTER_SUBTOTAL.
func (s *Service) VoidLine(ctx context.Context, tenantID, lineID uuid.UUID, principal authz.Principal, reason string) error {
	var evt eventbus.OrderLineVoided
	var orderID uuid.UUID
	err := s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status LineStatus
		var version int
		var lOrderID uuid.UUID
		if err := tx.QueryRow(ctx, `
			SELECT status, version, order_id FROM order_lines WHERE tenant_id = $1 AND id = $2 FOR UPDATE
		`, tenantID, lineID).Scan(&status, &version, &lOrderID); err != nil {
			return problem.NotFound("line_not_found", "order line not found")
		}
		if status == LineStatusVoided {
			return problem.BusinessRule("line_already_voided", "line is already voided")
		}
		orderID = lOrderID

		o, err := s.getOrderForUpdate(ctx, tx, tenantID, lOrderID)
		if err != nil {
			return err
		}
		if o.EverConfirmed {
			if err := authz.RequirePermission(principal, authz.PermVoidAfterSubtotal); err != nil {
				return problem.Authorization("void_forbidden", "voiding after confirmation requires elevated permission")
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE order_lines SET status = 'VOIDED', voided_at = now(), version = version + 1
			WHERE id = $1 AND tenant_id = $2 AND version = $3
		`, lineID, tenantID, version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return problem.Conflict("line_version_conflict", "line was modified by another user, refresh and retry")
		}

		if _, err := tx.Exec(ctx, `
			UPDATE consumptions SET voided_at = now() WHERE tenant_id = $1 AND order_line_id = $2 AND voided_at IS NULL
		`, tenantID, lineID); err != nil {
			return err
		}

		if _, err := s.recomputeTotal(ctx, tx, tenantID, lOrderID); err != nil {
			return err
		}

		evt = eventbus.OrderLineVoided{LineID: lineID, OrderID: lOrderID, TenantID: tenantID, Reason: reason, When: time.Now().UTC()}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Name: eventbus.EventOrderLineVoided, TenantID: tenantID, Payload: evt})
	_ = orderID
	return nil
}

// ApplyDiscount applies an order- or line-scoped discount.
func (s *Service) ApplyDiscount(ctx context.Context, tenantID, orderID uuid.UUID, lineID *uuid.UUID, discountType DiscountType, amount decimal.Decimal, reason string, principal authz.Principal, appliedBy uuid.UUID) error {
	if err := authz.RequirePermission(principal, authz.PermApplyDiscount); err != nil {
		return problem.Authorization("discount_forbidden", "applying a discount requires elevated permission")
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		o, err := s.getOrderForUpdate(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}

		var base decimal.Decimal
		if lineID != nil {
			if err := tx.QueryRow(ctx, `
				SELECT quantity * unit_price FROM order_lines WHERE tenant_id = $1 AND id = $2
			`, tenantID, *lineID).Scan(&base); err != nil {
				return problem.NotFound("line_not_found", "order line not found")
			}
		} else {
			base = o.TotalAmount
		}

		discountAmount, err := computeDiscount(discountType, amount, base)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO discounts (tenant_id, order_id, order_line_id, discount_type, amount, reason, applied_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, tenantID, orderID, lineID, discountType, discountAmount, reason, appliedBy); err != nil {
			return err
		}

		_, err = s.recomputeTotal(ctx, tx, tenantID, orderID)
		return err
	})
}

// computeDiscount applies a percentage (rounded to 4 internal digits then
// half-up to 2) or fixed-amount discount, clamped to [0, base].
func computeDiscount(discountType DiscountType, amount, base decimal.Decimal) (decimal.Decimal, error) {
	switch discountType {
	case DiscountPercentage:
		if amount.LessThan(decimal.Zero) || amount.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, problem.Validation("invalid_percentage", "percentage discount must be within [0,100]")
		}
		return base.Mul(amount).Div(decimal.NewFromInt(100)).Round(4).Round(2), nil
	case DiscountFixedAmount:
		discountAmount := amount
		if discountAmount.LessThan(decimal.Zero) {
			discountAmount = decimal.Zero
		}
		if discountAmount.GreaterThan(base) {
			discountAmount = base
		}
		return discountAmount, nil
	default:
		return decimal.Zero, problem.Validation("invalid_discount_type", "unknown discount type")
	}
}

// TransferOrder reassigns a single order's table, refreshing both tables'
// statuses through diningroom's own transaction.
func (s *Service) TransferOrder(ctx context.Context, tenantID, orderID, toTableID uuid.UUID) error {
	var fromTableID *uuid.UUID
	if err := s.db.Pool().QueryRow(ctx, `SELECT table_id FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID).Scan(&fromTableID); err != nil {
		return problem.NotFound("order_not_found", "order not found")
	}
	if fromTableID == nil {
		return problem.BusinessRule("order_has_no_table", "order has no table to transfer from")
	}
	return s.dining.Transfer(ctx, tenantID, *fromTableID, toTableID)
}

// DedupeKey produces the deterministic print-job dedupe key used by kitchen.
func DedupeKey(orderID, lineID, printerID uuid.UUID, confirmationOrdinal int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%d", orderID, lineID, printerID, confirmationOrdinal)))
	return hex.EncodeToString(sum[:])
}
