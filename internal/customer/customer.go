// Package customer implements customer records and the phone-based lookup
// used by delivery orders.
package customer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tolvera-hq/saborpos/internal/platform/logging"
	"github.com/tolvera-hq/saborpos/internal/platform/problem"
)

// Customer is a customer row.
type Customer struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Name     string
	Phone    string
	TaxID    string
}

// OrderSummary is one row of a customer's order history.
type OrderSummary struct {
	OrderID     uuid.UUID
	Status      string
	TotalAmount string
	CreatedAt   string
}

// Service implements §4.8.
type Service struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, log: logging.GetDefault().Component("customer")}
}

// sanitizePhone strips whitespace and LIKE metacharacters so a search input
// cannot be used to widen a query pattern.
func sanitizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.NewReplacer("%", "", "_", "").Replace(trimmed)
	if trimmed == "" {
		return "", problem.Validation("empty_phone", "phone must not be empty")
	}
	return trimmed, nil
}

// Create inserts a new tenant-scoped customer.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, name, phone, taxID string) (Customer, error) {
	phone, err := sanitizePhone(phone)
	if err != nil {
		return Customer{}, err
	}
	var c Customer
	err = s.pool.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, name, phone, tax_id) VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, name, phone, COALESCE(tax_id, '')
	`, tenantID, name, phone, taxID).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.TaxID)
	if err != nil {
		return Customer{}, problem.Conflict("phone_already_registered", "a customer with this phone already exists")
	}
	return c, nil
}

// Update mutates an existing customer's name/phone/tax id.
func (s *Service) Update(ctx context.Context, tenantID, customerID uuid.UUID, name, phone, taxID string) (Customer, error) {
	phone, err := sanitizePhone(phone)
	if err != nil {
		return Customer{}, err
	}
	var c Customer
	err = s.pool.QueryRow(ctx, `
		UPDATE customers SET name = $1, phone = $2, tax_id = $3 WHERE tenant_id = $4 AND id = $5
		RETURNING id, tenant_id, name, phone, COALESCE(tax_id, '')
	`, name, phone, taxID, tenantID, customerID).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.TaxID)
	if err != nil {
		return Customer{}, problem.NotFound("customer_not_found", "customer not found")
	}
	return c, nil
}

// SearchByPhone is an exact match.
func (s *Service) SearchByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (Customer, error) {
	phone, err := sanitizePhone(phone)
	if err != nil {
		return Customer{}, err
	}
	var c Customer
	err = s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone, COALESCE(tax_id, '') FROM customers WHERE tenant_id = $1 AND phone = $2
	`, tenantID, phone).Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.TaxID)
	if err != nil {
		return Customer{}, problem.NotFound("customer_not_found", "no customer with that phone")
	}
	return c, nil
}

// SearchByPhoneSuffix matches customers whose phone ends with suffix, via
// the reversed-phone index so the match is a leading LIKE.
func (s *Service) SearchByPhoneSuffix(ctx context.Context, tenantID uuid.UUID, suffix string) ([]Customer, error) {
	suffix, err := sanitizePhone(suffix)
	if err != nil {
		return nil, err
	}
	reversed := reverseString(suffix)
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, name, phone, COALESCE(tax_id, '') FROM customers
		WHERE tenant_id = $1 AND reverse(phone) LIKE $2 || '%'
	`, tenantID, reversed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.TaxID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// OrderHistory returns all orders for customerID, newest first.
func (s *Service) OrderHistory(ctx context.Context, tenantID, customerID uuid.UUID) ([]OrderSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, total_amount::text, created_at::text FROM orders
		WHERE tenant_id = $1 AND customer_id = $2 ORDER BY created_at DESC
	`, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderSummary
	for rows.Next() {
		var o OrderSummary
		if err := rows.Scan(&o.OrderID, &o.Status, &o.TotalAmount, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
