package order

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Repository interface {
	// PlaceOrder atomically validates stock for every line, snapshots unit
	// prices, inserts the order with its items and adjusts the product
	// counters. Either everything commits or nothing does. The returned
	// lines carry the product names and units read under the same locks,
	// for the receipt.
	PlaceOrder(ctx context.Context, o *Order, lines []Line) ([]PlacedLine, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// Claim assigns the order to a delivery partner iff it is still
	// unclaimed and claimable. At most one concurrent claimant can win.
	Claim(ctx context.Context, orderID, partnerID uuid.UUID) error
	// Cancel moves a still-cancellable order to Cancelled and restores the
	// stock and sales counters of every item.
	Cancel(ctx context.Context, orderID uuid.UUID) error
	// Complete moves the order to Delivered iff the given partner holds it
	// and it is out for delivery.
	Complete(ctx context.Context, orderID, partnerID uuid.UUID) error
	ListByConsumer(ctx context.Context, consumerID uuid.UUID) ([]Order, error)
	ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]Order, error)
	ListClaimable(ctx context.Context) ([]Order, error)
	CountClaimable(ctx context.Context) (int, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, consumer_id, delivery_partner_id, total_amount, status, COALESCE(payment_method, ''), COALESCE(pickup_address, ''), COALESCE(drop_address, ''), created_at`

func (r *postgresRepository) PlaceOrder(ctx context.Context, o *Order, lines []Line) (placed []PlacedLine, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback after panic in PlaceOrder")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback PlaceOrder transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit order: %w", commitErr)
		}
	}()

	// Lock the products in a deterministic order so two concurrent checkouts
	// over overlapping carts cannot deadlock.
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID.String() < sorted[j].ProductID.String()
	})

	var total float64
	staged := make([]PlacedLine, 0, len(sorted))

	for _, line := range sorted {
		lockQuery := `
			SELECT name, unit, price, stock
			FROM products
			WHERE id = $1 AND is_deleted = FALSE
			FOR UPDATE
		`
		var name, unit string
		var price float64
		var stock int
		err = tx.QueryRow(ctx, lockQuery, line.ProductID).Scan(&name, &unit, &price, &stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = ErrProductNotFound
			} else {
				err = fmt.Errorf("repository: failed to lock product %s: %w", line.ProductID, err)
			}
			return nil, err
		}

		if line.Quantity > stock {
			return nil, &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: name,
				Available:   stock,
				Requested:   line.Quantity,
			}
		}

		total += price * float64(line.Quantity)
		staged = append(staged, PlacedLine{
			ProductID: line.ProductID,
			Name:      name,
			Unit:      unit,
			Quantity:  line.Quantity,
			Price:     price,
		})
	}

	o.Status = StatusPending
	o.TotalAmount = total

	orderQuery := `
		INSERT INTO orders (consumer_id, total_amount, status, payment_method, pickup_address, drop_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, orderQuery,
		o.ConsumerID,
		o.TotalAmount,
		string(o.Status),
		o.PaymentMethod,
		o.PickupAddress,
		o.DropAddress,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to insert order: %w", err)
	}

	o.Items = make([]Item, 0, len(staged))
	for _, it := range staged {
		itemQuery := `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`
		item := Item{OrderID: o.ID, ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
		if err = tx.QueryRow(ctx, itemQuery, o.ID, it.ProductID, it.Quantity, it.Price).Scan(&item.ID); err != nil {
			return nil, fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
		o.Items = append(o.Items, item)

		counterQuery := `
			UPDATE products
			SET stock = stock - $2, total_sales = total_sales + $2
			WHERE id = $1
		`
		if _, err = tx.Exec(ctx, counterQuery, it.ProductID, it.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to adjust counters for product %s: %w", it.ProductID, err)
		}

		auditQuery := `INSERT INTO inventory_audits (product_id, stock_change, reason) VALUES ($1, $2, 'Sale')`
		if _, err = tx.Exec(ctx, auditQuery, it.ProductID, -it.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to write sale audit for product %s: %w", it.ProductID, err)
		}
	}

	// Payment is modeled as a status field only; no gateway involved.
	txnQuery := `INSERT INTO transactions (order_id, amount, status) VALUES ($1, $2, 'Success')`
	if _, err = tx.Exec(ctx, txnQuery, o.ID, o.TotalAmount); err != nil {
		return nil, fmt.Errorf("repository: failed to record transaction for order %s: %w", o.ID, err)
	}

	return staged, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var o Order
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.ConsumerID,
		&o.DeliveryPartnerID,
		&o.TotalAmount,
		&o.Status,
		&o.PaymentMethod,
		&o.PickupAddress,
		&o.DropAddress,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	items, err := r.itemsForOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *postgresRepository) itemsForOrder(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	query := `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = $1
	`
	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order %s: %w", orderID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order %s: %w", orderID, err)
	}
	return items, nil
}

// Claim is a conditional update, not a read-then-write: under concurrent
// claims the WHERE clause guarantees at most one partner wins.
func (r *postgresRepository) Claim(ctx context.Context, orderID, partnerID uuid.UUID) error {
	query := `
		UPDATE orders
		SET delivery_partner_id = $2, status = $3
		WHERE id = $1
		  AND delivery_partner_id IS NULL
		  AND status IN ($4, $5)
	`
	cmdTag, err := r.db.Exec(ctx, query,
		orderID,
		partnerID,
		string(StatusOutForDelivery),
		string(StatusPending),
		string(StatusReady),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to claim order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	// No row matched. Distinguish why for the caller.
	var status Status
	var partner *uuid.UUID
	diagQuery := `SELECT status, delivery_partner_id FROM orders WHERE id = $1`
	err = r.db.QueryRow(ctx, diagQuery, orderID).Scan(&status, &partner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: failed to inspect order %s after claim miss: %w", orderID, err)
	}
	if partner != nil {
		return ErrAlreadyClaimed
	}
	if !status.Claimable() {
		return &InvalidTransitionError{OrderID: orderID, From: status, To: StatusOutForDelivery}
	}
	// Unclaimed and claimable yet the update missed: another claim slipped in
	// between the two statements.
	return ErrAlreadyClaimed
}

func (r *postgresRepository) Cancel(ctx context.Context, orderID uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback Cancel transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit cancellation: %w", commitErr)
		}
	}()

	// Conditional update keeps the status check and the transition atomic, so
	// a concurrent claim cannot slip between read and write.
	cancelQuery := `
		UPDATE orders
		SET status = $2
		WHERE id = $1 AND status IN ($3, $4)
	`
	cmdTag, err := tx.Exec(ctx, cancelQuery,
		orderID,
		string(StatusCancelled),
		string(StatusPending),
		string(StatusReady),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to cancel order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		var status Status
		diagErr := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
		if diagErr != nil {
			if errors.Is(diagErr, pgx.ErrNoRows) {
				err = ErrNotFound
			} else {
				err = fmt.Errorf("repository: failed to inspect order %s after cancel miss: %w", orderID, diagErr)
			}
			return err
		}
		err = &InvalidTransitionError{OrderID: orderID, From: status, To: StatusCancelled}
		return err
	}

	// Restore the counters the placement decremented. total_sales goes back
	// down too, matching how the dashboard reads it.
	itemsQuery := `SELECT product_id, quantity FROM order_items WHERE order_id = $1`
	rows, err := tx.Query(ctx, itemsQuery, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to query items for cancelled order %s: %w", orderID, err)
	}

	type restore struct {
		productID uuid.UUID
		quantity  int
	}
	var restores []restore
	for rows.Next() {
		var rs restore
		if err = rows.Scan(&rs.productID, &rs.quantity); err != nil {
			rows.Close()
			return fmt.Errorf("repository: failed to scan item for cancelled order %s: %w", orderID, err)
		}
		restores = append(restores, rs)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating items for cancelled order %s: %w", orderID, err)
	}

	for _, rs := range restores {
		restoreQuery := `
			UPDATE products
			SET stock = stock + $2, total_sales = total_sales - $2
			WHERE id = $1
		`
		if _, err = tx.Exec(ctx, restoreQuery, rs.productID, rs.quantity); err != nil {
			return fmt.Errorf("repository: failed to restore stock for product %s: %w", rs.productID, err)
		}

		auditQuery := `INSERT INTO inventory_audits (product_id, stock_change, reason) VALUES ($1, $2, 'Cancellation')`
		if _, err = tx.Exec(ctx, auditQuery, rs.productID, rs.quantity); err != nil {
			return fmt.Errorf("repository: failed to write cancellation audit for product %s: %w", rs.productID, err)
		}
	}

	return nil
}

func (r *postgresRepository) Complete(ctx context.Context, orderID, partnerID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $3
		WHERE id = $1 AND delivery_partner_id = $2 AND status = $4
	`
	cmdTag, err := r.db.Exec(ctx, query,
		orderID,
		partnerID,
		string(StatusDelivered),
		string(StatusOutForDelivery),
	)
	if err != nil {
		return fmt.Errorf("repository: failed to complete order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var status Status
	var partner *uuid.UUID
	diagQuery := `SELECT status, delivery_partner_id FROM orders WHERE id = $1`
	err = r.db.QueryRow(ctx, diagQuery, orderID).Scan(&status, &partner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: failed to inspect order %s after complete miss: %w", orderID, err)
	}
	if partner == nil || *partner != partnerID {
		return ErrUnauthorized
	}
	return &InvalidTransitionError{OrderID: orderID, From: status, To: StatusDelivered}
}

func (r *postgresRepository) ListByConsumer(ctx context.Context, consumerID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE consumer_id = $1 ORDER BY created_at DESC`
	return r.listWithItems(ctx, query, consumerID)
}

func (r *postgresRepository) ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE delivery_partner_id = $1 ORDER BY created_at DESC`
	return r.listWithItems(ctx, query, partnerID)
}

func (r *postgresRepository) ListClaimable(ctx context.Context) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE delivery_partner_id IS NULL AND status IN ($1, $2)
		ORDER BY created_at ASC`
	return r.listWithItems(ctx, query, string(StatusPending), string(StatusReady))
}

func (r *postgresRepository) CountClaimable(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE delivery_partner_id IS NULL AND status IN ($1, $2)`
	var count int
	if err := r.db.QueryRow(ctx, query, string(StatusPending), string(StatusReady)).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count claimable orders: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) listWithItems(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		err := rows.Scan(
			&o.ID,
			&o.ConsumerID,
			&o.DeliveryPartnerID,
			&o.TotalAmount,
			&o.Status,
			&o.PaymentMethod,
			&o.PickupAddress,
			&o.DropAddress,
			&o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = make([]Item, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemsQuery := `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
	`
	itemRows, err := r.db.Query(ctx, itemsQuery, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item Item
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := ordersMap[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}
