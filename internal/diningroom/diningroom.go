// Package diningroom owns the table registry, its status state machine,
// and the blacklist checked before operations proceed.
package diningroom

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tolvera-hq/saborpos/internal/platform/dbx"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

// Status is a DiningTable's position in the table state machine.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusOccupied  Status = "OCCUPIED"
	StatusReserved  Status = "RESERVED"
	StatusBlocked   Status = "BLOCKED"
)

// Table is a dining table row.
type Table struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	SiteID      uuid.UUID
	TableNumber string
	Status      Status
	Version     int
}

// EntityType names what a BlacklistEntry targets.
type EntityType string

const (
	EntityTable EntityType = "TABLE"
	EntityCard  EntityType = "CARD"
)

// Service implements the table state machine and blacklist checks.
type Service struct {
	db  *dbx.DB
	log *logging.Logger
}

func NewService(db *dbx.DB) *Service {
	return &Service{db: db, log: logging.GetDefault().Component("diningroom")}
}

func (s *Service) isBlacklisted(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, entityType EntityType, value string) (bool, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM blacklist_entries
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_value = $3
	`, tenantID, entityType, value).Scan(&count)
	return count > 0, err
}

// IsBlacklisted is the read-only form orders/billing call before acting on
// a table or card outside diningroom's own transactions.
func (s *Service) IsBlacklisted(ctx context.Context, pool *pgxpool.Pool, tenantID uuid.UUID, entityType EntityType, value string) (bool, error) {
	var count int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM blacklist_entries
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_value = $3
	`, tenantID, entityType, value).Scan(&count)
	return count > 0, err
}

func (s *Service) getTableForUpdate(ctx context.Context, tx pgx.Tx, tenantID, tableID uuid.UUID) (Table, error) {
	var t Table
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, site_id, table_number, status, version
		FROM dining_tables WHERE tenant_id = $1 AND id = $2 FOR UPDATE
	`, tenantID, tableID).Scan(&t.ID, &t.TenantID, &t.SiteID, &t.TableNumber, &t.Status, &t.Version)
	if err != nil {
		return Table{}, problem.NotFound("table_not_found", "dining table not found")
	}
	return t, nil
}

func (s *Service) setStatus(ctx context.Context, tx pgx.Tx, t Table, newStatus Status) error {
	tag, err := tx.Exec(ctx, `
		UPDATE dining_tables SET status = $1, version = version + 1
		WHERE id = $2 AND tenant_id = $3 AND version = $4
	`, newStatus, t.ID, t.TenantID, t.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return problem.Conflict("table_version_conflict", "table was modified by another user, refresh and retry")
	}
	return nil
}

// Open transitions a table AVAILABLE -> OCCUPIED. Fails if the table is not
// AVAILABLE or is blacklisted.
func (s *Service) Open(ctx context.Context, tenantID, tableID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.getTableForUpdate(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}
		if t.Status != StatusAvailable {
			return problem.BusinessRule("table_not_available", "table is not available")
		}
		blocked, err := s.isBlacklisted(ctx, tx, tenantID, EntityTable, t.TableNumber)
		if err != nil {
			return err
		}
		if blocked {
			return problem.BusinessRule("table_blacklisted", "table is blacklisted")
		}
		return s.setStatus(ctx, tx, t, StatusOccupied)
	})
}

// Close transitions a table back to AVAILABLE. Fails if any non-terminal
// order still references it.
func (s *Service) Close(ctx context.Context, tenantID, tableID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.getTableForUpdate(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}
		var openOrders int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM orders
			WHERE tenant_id = $1 AND table_id = $2 AND status NOT IN ('CLOSED','VOIDED')
		`, tenantID, tableID).Scan(&openOrders); err != nil {
			return err
		}
		if openOrders > 0 {
			return problem.BusinessRule("table_has_open_orders", "table has non-terminal orders")
		}
		return s.setStatus(ctx, tx, t, StatusAvailable)
	})
}

// Transfer reassigns every open order from one table to another in a
// single transaction, recomputing both tables' statuses atomically.
func (s *Service) Transfer(ctx context.Context, tenantID, fromID, toID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		from, err := s.getTableForUpdate(ctx, tx, tenantID, fromID)
		if err != nil {
			return err
		}
		to, err := s.getTableForUpdate(ctx, tx, tenantID, toID)
		if err != nil {
			return err
		}
		if to.Status != StatusAvailable && to.Status != StatusOccupied {
			return problem.BusinessRule("destination_table_unavailable", "destination table cannot receive a transfer")
		}
		for _, tbl := range []Table{from, to} {
			blocked, err := s.isBlacklisted(ctx, tx, tenantID, EntityTable, tbl.TableNumber)
			if err != nil {
				return err
			}
			if blocked {
				return problem.BusinessRule("table_blacklisted", "table is blacklisted")
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE orders SET table_id = $1, updated_at = now()
			WHERE tenant_id = $2 AND table_id = $3 AND status NOT IN ('CLOSED','VOIDED')
		`, toID, tenantID, fromID); err != nil {
			return err
		}
		if err := s.setStatus(ctx, tx, to, StatusOccupied); err != nil {
			return err
		}
		var remaining int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM orders
			WHERE tenant_id = $1 AND table_id = $2 AND status NOT IN ('CLOSED','VOIDED')
		`, tenantID, fromID).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			return s.setStatus(ctx, tx, from, StatusAvailable)
		}
		return nil
	})
}

// Reserve transitions a table AVAILABLE -> RESERVED.
func (s *Service) Reserve(ctx context.Context, tenantID, tableID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.getTableForUpdate(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}
		if t.Status != StatusAvailable {
			return problem.BusinessRule("table_not_available", "table is not available to reserve")
		}
		return s.setStatus(ctx, tx, t, StatusReserved)
	})
}

// CancelReservation transitions a table RESERVED -> AVAILABLE.
func (s *Service) CancelReservation(ctx context.Context, tenantID, tableID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.getTableForUpdate(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}
		if t.Status != StatusReserved {
			return problem.BusinessRule("table_not_reserved", "table is not reserved")
		}
		return s.setStatus(ctx, tx, t, StatusAvailable)
	})
}

// Block and Unblock implement the manual any -> BLOCKED -> AVAILABLE edge.
func (s *Service) Block(ctx context.Context, tenantID, tableID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.getTableForUpdate(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}
		return s.setStatus(ctx, tx, t, StatusBlocked)
	})
}

func (s *Service) Unblock(ctx context.Context, tenantID, tableID uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := s.getTableForUpdate(ctx, tx, tenantID, tableID)
		if err != nil {
			return err
		}
		if t.Status != StatusBlocked {
			return problem.BusinessRule("table_not_blocked", "table is not blocked")
		}
		return s.setStatus(ctx, tx, t, StatusAvailable)
	})
}
