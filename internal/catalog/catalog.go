// Package catalog is the minimal read-side collaborator the order engine
// prices lines against. Catalog CRUD is out of scope; this package only
// exposes the snapshot an order line needs at the moment it is added.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Item is an immutable-at-read-time snapshot of a catalog item.
type Item struct {
	ID           uuid.UUID
	SubfamilyID  uuid.UUID
	Name         string
	BasePrice    decimal.Decimal
	Available    bool
	PrintZone    string
}

// Repository is the read-only interface the order engine depends on.
type Repository interface {
	GetItem(ctx context.Context, tenantID, itemID uuid.UUID) (Item, error)
}

// PostgresRepository is the production Repository backed by pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetItem(ctx context.Context, tenantID, itemID uuid.UUID) (Item, error) {
	var it Item
	err := r.pool.QueryRow(ctx, `
		SELECT id, subfamily_id, name, base_price, available, print_zone
		FROM items WHERE tenant_id = $1 AND id = $2
	`, tenantID, itemID).Scan(&it.ID, &it.SubfamilyID, &it.Name, &it.BasePrice, &it.Available, &it.PrintZone)
	if err != nil {
		return Item{}, fmt.Errorf("catalog: get item: %w", err)
	}
	return it, nil
}
