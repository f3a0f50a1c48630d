// Package kitchen renders and dispatches print jobs for confirmed order
// lines, applying per-printer routing policy (NORMAL/WAIT/IGNORE/REDIRECT).
package kitchen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tolvera-hq/saborpos/internal/authz"
	"github.com/tolvera-hq/saborpos/internal/eventbus"
	"github.com/tolvera-hq/saborpos/internal/orders"
	"github.com/tolvera-hq/saborpos/internal/platform/dbx"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

// PrinterStatus is the routing mode applied at dispatch time.
type PrinterStatus string

const (
	PrinterNormal   PrinterStatus = "NORMAL"
	PrinterWait     PrinterStatus = "WAIT"
	PrinterIgnore   PrinterStatus = "IGNORE"
	PrinterRedirect PrinterStatus = "REDIRECT"
)

// JobStatus is a PrintJob's lifecycle state.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobPrinted JobStatus = "PRINTED"
	JobFailed  JobStatus = "FAILED"
	JobSkipped JobStatus = "SKIPPED"
)

// Printer is a printer row.
type Printer struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	SiteID         uuid.UUID
	Name           string
	Zone           string
	Status         PrinterStatus
	RedirectTo     *uuid.UUID
}

const maxRedirectHops = 8

// Service renders and dispatches print jobs.
type Service struct {
	db  *dbx.DB
	log *logging.Logger
}

func NewService(db *dbx.DB, bus *eventbus.Bus) *Service {
	s := &Service{db: db, log: logging.GetDefault().Component("kitchen")}
	bus.Subscribe(eventbus.EventOrderConfirmed, s.onOrderConfirmed)
	return s
}

// ConfigurePrinter validates that adding a redirect target does not create
// a cycle, per §9's "reject cycle creation at configure time."
func (s *Service) ConfigurePrinter(ctx context.Context, tenantID, printerID uuid.UUID, status PrinterStatus, redirectTo *uuid.UUID) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if status == PrinterRedirect && redirectTo != nil {
			cursor := *redirectTo
			for hops := 0; hops < maxRedirectHops; hops++ {
				if cursor == printerID {
					return problem.Validation("printer_redirect_cycle", "redirect configuration creates a cycle")
				}
				var nextStatus PrinterStatus
				var next *uuid.UUID
				err := tx.QueryRow(ctx, `SELECT status, redirect_to_printer_id FROM printers WHERE tenant_id = $1 AND id = $2`, tenantID, cursor).Scan(&nextStatus, &next)
				if err != nil {
					break
				}
				if nextStatus != PrinterRedirect || next == nil {
					break
				}
				cursor = *next
			}
		}
		_, err := tx.Exec(ctx, `
			UPDATE printers SET status = $1, redirect_to_printer_id = $2 WHERE id = $3 AND tenant_id = $4
		`, status, redirectTo, printerID, tenantID)
		return err
	})
}

func (s *Service) printerForZone(ctx context.Context, tx pgx.Tx, tenantID, siteID uuid.UUID, zone string) (Printer, error) {
	var p Printer
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, site_id, name, zone, status, redirect_to_printer_id
		FROM printers WHERE tenant_id = $1 AND site_id = $2 AND zone = $3 LIMIT 1
	`, tenantID, siteID, zone).Scan(&p.ID, &p.TenantID, &p.SiteID, &p.Name, &p.Zone, &p.Status, &p.RedirectTo)
	if err != nil {
		return Printer{}, fmt.Errorf("kitchen: no printer configured for zone %q: %w", zone, err)
	}
	return p, nil
}

// onOrderConfirmed creates and immediately dispatches one PrintJob per
// confirmed line, in its own transaction, tolerating redelivery via the
// dedupe_key unique index.
func (s *Service) onOrderConfirmed(ctx context.Context, evt eventbus.Event) error {
	payload, ok := evt.Payload.(eventbus.OrderConfirmed)
	if !ok {
		return fmt.Errorf("kitchen: unexpected payload type")
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, line := range payload.Lines {
			printer, err := s.printerForZone(ctx, tx, payload.TenantID, payload.SiteID, line.Zone)
			if err != nil {
				s.log.Warn("no printer for zone, skipping job", "zone", line.Zone, "error", err)
				continue
			}
			dedupeKey := orders.DedupeKey(payload.OrderID, line.LineID, printer.ID, payload.ConfirmationOrdinal)
			content := renderTicket(payload, line)

			var jobID uuid.UUID
			err = tx.QueryRow(ctx, `
				INSERT INTO print_jobs (tenant_id, order_id, order_line_id, printer_id, dedupe_key, status, content)
				VALUES ($1, $2, $3, $4, $5, 'PENDING', $6)
				ON CONFLICT (tenant_id, dedupe_key) DO NOTHING
				RETURNING id
			`, payload.TenantID, payload.OrderID, line.LineID, printer.ID, dedupeKey, content).Scan(&jobID)
			if err == pgx.ErrNoRows {
				continue // already dispatched by a prior delivery of this event
			}
			if err != nil {
				return err
			}
			if err := s.dispatch(ctx, tx, payload.TenantID, jobID, printer); err != nil {
				return err
			}
		}
		return nil
	})
}

// dispatch applies the routing policy, following REDIRECT chains.
func (s *Service) dispatch(ctx context.Context, tx pgx.Tx, tenantID, jobID uuid.UUID, printer Printer) error {
	current := printer
	for hops := 0; hops < maxRedirectHops; hops++ {
		switch current.Status {
		case PrinterNormal:
			return s.transmit(ctx, tx, jobID)
		case PrinterWait:
			return nil // leave PENDING; sweeper retries
		case PrinterIgnore:
			_, err := tx.Exec(ctx, `UPDATE print_jobs SET status = 'SKIPPED' WHERE id = $1`, jobID)
			return err
		case PrinterRedirect:
			if current.RedirectTo == nil {
				_, err := tx.Exec(ctx, `UPDATE print_jobs SET status = 'SKIPPED' WHERE id = $1`, jobID)
				return err
			}
			next, err := s.printerByID(ctx, tx, tenantID, *current.RedirectTo)
			if err != nil {
				return err
			}
			current = next
		}
	}
	_, err := tx.Exec(ctx, `UPDATE print_jobs SET status = 'SKIPPED' WHERE id = $1`, jobID)
	return err
}

func (s *Service) printerByID(ctx context.Context, tx pgx.Tx, tenantID, id uuid.UUID) (Printer, error) {
	var p Printer
	err := tx.QueryRow(ctx, `
		SELECT id, tenant_id, site_id, name, zone, status, redirect_to_printer_id
		FROM printers WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&p.ID, &p.TenantID, &p.SiteID, &p.Name, &p.Zone, &p.Status, &p.RedirectTo)
	return p, err
}

func (s *Service) transmit(ctx context.Context, tx pgx.Tx, jobID uuid.UUID) error {
	// No physical printer protocol is implemented (§1 Non-goals): a
	// successful transmit is recorded directly.
	_, err := tx.Exec(ctx, `UPDATE print_jobs SET status = 'PRINTED', dispatched_at = now() WHERE id = $1`, jobID)
	return err
}

func renderTicket(payload eventbus.OrderConfirmed, line eventbus.ConfirmedLine) string {
	return fmt.Sprintf("TABLE %s\n%dx %s\n%s\n%s",
		payload.TableNumber, line.Quantity, line.ItemName, line.Notes, payload.ConfirmedAt.Format(time.RFC3339))
}

// Sweep re-dispatches PENDING jobs whose printer is no longer WAIT. It is
// invoked on a cron schedule from cmd/saborposd.
func (s *Service) Sweep(ctx context.Context) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT pj.id, pj.tenant_id, pj.printer_id FROM print_jobs pj
			JOIN printers p ON p.id = pj.printer_id
			WHERE pj.status = 'PENDING' AND p.status != 'WAIT'
		`)
		if err != nil {
			return err
		}
		type pending struct {
			jobID, tenantID, printerID uuid.UUID
		}
		var items []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.jobID, &p.tenantID, &p.printerID); err != nil {
				rows.Close()
				return err
			}
			items = append(items, p)
		}
		rows.Close()

		for _, it := range items {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			printer, err := s.printerByID(ctx, tx, it.tenantID, it.printerID)
			if err != nil {
				continue
			}
			if err := s.dispatch(ctx, tx, it.tenantID, it.jobID, printer); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reprint bypasses the dedupe key with a reprint nonce.
func (s *Service) Reprint(ctx context.Context, tenantID, jobID uuid.UUID, principal authz.Principal) error {
	if err := authz.RequirePermission(principal, authz.PermReprintDocument); err != nil {
		return problem.Authorization("reprint_forbidden", "reprinting requires elevated permission")
	}
	return s.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var orderID, lineID, printerID uuid.UUID
		var content string
		if err := tx.QueryRow(ctx, `
			SELECT order_id, order_line_id, printer_id, content FROM print_jobs WHERE tenant_id = $1 AND id = $2
		`, tenantID, jobID).Scan(&orderID, &lineID, &printerID, &content); err != nil {
			return problem.NotFound("print_job_not_found", "print job not found")
		}
		nonce := uuid.NewString()
		printer, err := s.printerByID(ctx, tx, tenantID, printerID)
		if err != nil {
			return err
		}
		var newID uuid.UUID
		if err := tx.QueryRow(ctx, `
			INSERT INTO print_jobs (tenant_id, order_id, order_line_id, printer_id, dedupe_key, status, content)
			VALUES ($1, $2, $3, $4, $5, 'PENDING', $6)
			RETURNING id
		`, tenantID, orderID, lineID, printerID, "reprint:"+nonce, content).Scan(&newID); err != nil {
			return err
		}
		return s.dispatch(ctx, tx, tenantID, newID, printer)
	})
}
