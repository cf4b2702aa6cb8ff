package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("product not found")

type Repository interface {
	Create(ctx context.Context, p *Product) (uuid.UUID, error)
	// GetByID returns a product regardless of its soft-delete flag; callers
	// that only want live catalog entries check IsDeleted themselves.
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	// Update rewrites price and stock and records the stock delta in the
	// inventory audit log within one transaction.
	Update(ctx context.Context, id uuid.UUID, price float64, stock int) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListActive(ctx context.Context) ([]Product, error)
	ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]Product, error)
	FarmerStats(ctx context.Context, farmerID uuid.UUID) (*FarmerStats, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const productColumns = `id, farmer_id, category_id, name, COALESCE(description, ''), price, stock, unit, COALESCE(image_url, ''), total_sales, is_deleted, created_at`

func (r *postgresRepository) Create(ctx context.Context, p *Product) (uuid.UUID, error) {
	query := `
		INSERT INTO products (farmer_id, category_id, name, description, price, stock, unit, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		p.FarmerID,
		p.CategoryID,
		p.Name,
		p.Description,
		p.Price,
		p.Stock,
		p.Unit,
		p.ImageURL,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("repository: failed to insert product: %w", err)
	}

	if p.Stock > 0 {
		auditQuery := `INSERT INTO inventory_audits (product_id, stock_change, reason) VALUES ($1, $2, 'Restock')`
		if _, err := r.db.Exec(ctx, auditQuery, p.ID, p.Stock); err != nil {
			log.Error().Err(err).Stringer("product_id", p.ID).Msg("repository: failed to write initial stock audit")
		}
	}

	return p.ID, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.FarmerID, &p.CategoryID, &p.Name, &p.Description,
		&p.Price, &p.Stock, &p.Unit, &p.ImageURL, &p.TotalSales, &p.IsDeleted, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}
	return &p, nil
}

func (r *postgresRepository) Update(ctx context.Context, id uuid.UUID, price float64, stock int) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("product_id", id).Msg("repository: failed to rollback product update")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit product update: %w", commitErr)
		}
	}()

	var oldStock int
	query := `SELECT stock FROM products WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`
	if err = tx.QueryRow(ctx, query, id).Scan(&oldStock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: failed to lock product %s: %w", id, err)
	}

	updateQuery := `UPDATE products SET price = $2, stock = $3 WHERE id = $1`
	if _, err = tx.Exec(ctx, updateQuery, id, price, stock); err != nil {
		return fmt.Errorf("repository: failed to update product %s: %w", id, err)
	}

	if delta := stock - oldStock; delta != 0 {
		auditQuery := `INSERT INTO inventory_audits (product_id, stock_change, reason) VALUES ($1, $2, 'Correction')`
		if _, err = tx.Exec(ctx, auditQuery, id, delta); err != nil {
			return fmt.Errorf("repository: failed to write stock audit for product %s: %w", id, err)
		}
	}

	return nil
}

// SoftDelete marks the product inactive. Rows are never removed so order
// items keep valid references.
func (r *postgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE products SET is_deleted = TRUE WHERE id = $1 AND is_deleted = FALSE`
	cmdTag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("repository: failed to soft-delete product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) ListActive(ctx context.Context) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE is_deleted = FALSE ORDER BY created_at DESC`
	return r.list(ctx, query)
}

func (r *postgresRepository) ListByFarmer(ctx context.Context, farmerID uuid.UUID) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE farmer_id = $1 AND is_deleted = FALSE ORDER BY created_at DESC`
	return r.list(ctx, query, farmerID)
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID, &p.FarmerID, &p.CategoryID, &p.Name, &p.Description,
			&p.Price, &p.Stock, &p.Unit, &p.ImageURL, &p.TotalSales, &p.IsDeleted, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating products: %w", err)
	}
	return products, nil
}

func (r *postgresRepository) FarmerStats(ctx context.Context, farmerID uuid.UUID) (*FarmerStats, error) {
	query := `
		SELECT COALESCE(SUM(total_sales), 0), COALESCE(SUM(total_sales * price), 0)
		FROM products
		WHERE farmer_id = $1
	`
	var stats FarmerStats
	if err := r.db.QueryRow(ctx, query, farmerID).Scan(&stats.TotalSales, &stats.SalesAmount); err != nil {
		return nil, fmt.Errorf("repository: failed to aggregate stats for farmer %s: %w", farmerID, err)
	}
	return &stats, nil
}
