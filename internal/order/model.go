package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusPending        Status = "Pending"
	StatusReady          Status = "Ready"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

func (s Status) String() string {
	return string(s)
}

// allowedTransitions encodes the order lifecycle. Delivered and Cancelled are
// terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusReady:          true,
		StatusOutForDelivery: true,
		StatusCancelled:      true,
	},
	StatusReady: {
		StatusOutForDelivery: true,
		StatusCancelled:      true,
	},
	StatusOutForDelivery: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) CanTransitionTo(next Status) bool {
	return allowedTransitions[s][next]
}

// Cancellable reports whether a consumer may still cancel an order in this
// status. Once a delivery partner is on the road the order is committed.
func (s Status) Cancellable() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// Claimable reports whether a delivery partner may pick up an order in this
// status, provided no partner holds it yet.
func (s Status) Claimable() bool {
	return s.CanTransitionTo(StatusOutForDelivery)
}

const (
	PaymentUPI = "UPI"
	PaymentCOD = "COD"
)

type Order struct {
	ID                uuid.UUID  `json:"id"`
	ConsumerID        uuid.UUID  `json:"consumer_id"`
	DeliveryPartnerID *uuid.UUID `json:"delivery_partner_id,omitempty"`
	Status            Status     `json:"status"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	TotalAmount       float64    `json:"total_amount"`
	PickupAddress     string     `json:"pickup_address,omitempty"`
	DropAddress       string     `json:"drop_address,omitempty"`
	Items             []Item     `json:"items"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Item is an immutable snapshot taken at order time: the unit price never
// changes even if the product is later repriced.
type Item struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
}

// Line is one checkout request entry: a product and how many of it.
type Line struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// PlacedLine is a checkout line enriched with the product attributes read
// under the placement locks, used to build the receipt.
type PlacedLine struct {
	ProductID uuid.UUID
	Name      string
	Unit      string
	Quantity  int
	Price     float64
}

// Consumer carries the slice of user identity the order lifecycle needs.
type Consumer struct {
	ID      uuid.UUID
	Email   string
	Name    string
	Address string
}
