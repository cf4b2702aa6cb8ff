// Package report builds and mails the daily per-farmer sales report.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/notification"
)

type Farmer struct {
	ID    uuid.UUID
	Name  string
	Email string
}

type SaleLine struct {
	ProductName string
	Quantity    int
	UnitPrice   float64
	Total       float64
}

type Repository interface {
	Farmers(ctx context.Context) ([]Farmer, error)
	// SalesSince aggregates order items for the farmer's products across
	// orders created at or after the cutoff, grouped per product.
	SalesSince(ctx context.Context, farmerID uuid.UUID, since time.Time) ([]SaleLine, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Farmers(ctx context.Context) ([]Farmer, error) {
	query := `SELECT id, COALESCE(name, ''), email FROM users WHERE role = 'farmer'`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query farmers: %w", err)
	}
	defer rows.Close()

	farmers := make([]Farmer, 0)
	for rows.Next() {
		var f Farmer
		if err := rows.Scan(&f.ID, &f.Name, &f.Email); err != nil {
			return nil, fmt.Errorf("repository: failed to scan farmer: %w", err)
		}
		farmers = append(farmers, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating farmers: %w", err)
	}
	return farmers, nil
}

func (r *postgresRepository) SalesSince(ctx context.Context, farmerID uuid.UUID, since time.Time) ([]SaleLine, error) {
	// One aggregated join per farmer; prices are the current catalog prices,
	// matching how the payout summary is presented.
	query := `
		SELECT p.name, SUM(oi.quantity), p.price, SUM(oi.quantity) * p.price
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		JOIN products p ON p.id = oi.product_id
		WHERE p.farmer_id = $1 AND o.created_at >= $2
		GROUP BY p.id, p.name, p.price
		ORDER BY p.name
	`
	rows, err := r.db.Query(ctx, query, farmerID, since)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to aggregate sales for farmer %s: %w", farmerID, err)
	}
	defer rows.Close()

	lines := make([]SaleLine, 0)
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ProductName, &line.Quantity, &line.UnitPrice, &line.Total); err != nil {
			return nil, fmt.Errorf("repository: failed to scan sale line for farmer %s: %w", farmerID, err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating sale lines for farmer %s: %w", farmerID, err)
	}
	return lines, nil
}

// Generator assembles and dispatches the daily reports. It is wired to the
// cron scheduler at startup and shares no locks with request handling.
type Generator struct {
	repo     Repository
	notifier notification.Notifier
	now      func() time.Time
}

func NewGenerator(repo Repository, notifier notification.Notifier) *Generator {
	return &Generator{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run produces one report per farmer with sales in the last 24 hours.
// A failure for one farmer is logged and the rest still get their reports.
func (g *Generator) Run(ctx context.Context) error {
	farmers, err := g.repo.Farmers(ctx)
	if err != nil {
		return fmt.Errorf("report: failed to list farmers: %w", err)
	}

	now := g.now().UTC()
	since := now.Add(-24 * time.Hour)
	sent := 0

	for _, farmer := range farmers {
		lines, err := g.repo.SalesSince(ctx, farmer.ID, since)
		if err != nil {
			log.Error().Err(err).Stringer("farmer_id", farmer.ID).Msg("report: failed to aggregate sales")
			continue
		}
		if len(lines) == 0 {
			continue
		}

		var total float64
		for _, line := range lines {
			total += line.Total
		}

		pdf, err := BuildPDF(farmer.Name, now, lines, total)
		if err != nil {
			log.Error().Err(err).Stringer("farmer_id", farmer.ID).Msg("report: failed to render PDF")
			continue
		}

		payload := notification.ReportPayload(farmer.Name, now, total, pdf)
		if err := g.notifier.Send(ctx, notification.KindReport, farmer.Email, payload); err != nil {
			log.Error().Err(err).Str("recipient", farmer.Email).Msg("report: failed to send report")
			continue
		}

		sent++
		log.Info().Stringer("farmer_id", farmer.ID).Float64("total", total).Msg("report: daily report sent")
	}

	log.Info().Int("sent", sent).Int("farmers", len(farmers)).Msg("report: daily run finished")
	return nil
}
