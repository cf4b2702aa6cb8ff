// Package cart holds the session-backed shopping cart: a mapping from
// product id to requested quantity. The cart is ephemeral per browser
// session and is only read by the checkout path, never persisted to the
// database.
package cart

import (
	"sort"

	"github.com/gofrs/uuid"

	"github.com/cropcarry/marketplace/internal/order"
)

type Cart map[uuid.UUID]int

func New() Cart {
	return make(Cart)
}

// Add increments the quantity for a product by one, starting at one.
func (c Cart) Add(productID uuid.UUID) {
	c[productID]++
}

// SetQuantity pins the quantity for a product. Zero or negative removes the
// line.
func (c Cart) SetQuantity(productID uuid.UUID, quantity int) {
	if quantity <= 0 {
		delete(c, productID)
		return
	}
	c[productID] = quantity
}

func (c Cart) Remove(productID uuid.UUID) {
	delete(c, productID)
}

func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// Lines converts the cart into checkout lines, ordered by product id so the
// result is deterministic.
func (c Cart) Lines() []order.Line {
	lines := make([]order.Line, 0, len(c))
	for productID, quantity := range c {
		lines = append(lines, order.Line{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
	return lines
}
