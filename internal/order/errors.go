package order

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrAlreadyClaimed  = errors.New("order has already been taken by another partner")
	ErrUnauthorized    = errors.New("not allowed to act on this order")
	ErrEmptyCart       = errors.New("order must contain at least one item")
)

// InsufficientStockError names the product that blocked checkout and how many
// units were actually available. The whole checkout aborts; no partial order
// is created.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: only %d available, %d requested", e.ProductName, e.Available, e.Requested)
}

// InvalidTransitionError reports a lifecycle move the state machine forbids.
type InvalidTransitionError struct {
	OrderID uuid.UUID
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot move from %s to %s", e.OrderID, e.From, e.To)
}
