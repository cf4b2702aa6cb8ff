package cart

import (
	"encoding/gob"

	"github.com/gofrs/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"
)

const sessionKey = "cart"

func init() {
	// Types stored in the session cookie must be registered for the
	// securecookie gob codec.
	gob.Register(map[string]int{})
	gob.Register([]string{})
}

// FromSession decodes the cart out of a session. An early release stored the
// cart as a plain list of product ids; that legacy shape is migrated once at
// decode (each occurrence counts as quantity one) and disappears on the next
// save.
func FromSession(s *sessions.Session) Cart {
	c := New()

	raw, ok := s.Values[sessionKey]
	if !ok {
		return c
	}

	switch v := raw.(type) {
	case map[string]int:
		for idStr, quantity := range v {
			productID, err := uuid.FromString(idStr)
			if err != nil {
				log.Warn().Str("product_id", idStr).Msg("cart: dropping unparseable product id from session")
				continue
			}
			if quantity > 0 {
				c[productID] = quantity
			}
		}
	case []string:
		// Legacy list shape.
		for _, idStr := range v {
			productID, err := uuid.FromString(idStr)
			if err != nil {
				log.Warn().Str("product_id", idStr).Msg("cart: dropping unparseable product id from legacy session cart")
				continue
			}
			c[productID]++
		}
	default:
		log.Warn().Msg("cart: unrecognised session cart shape, starting fresh")
	}

	return c
}

// Save writes the cart back into the session in the canonical map shape.
func (c Cart) Save(s *sessions.Session) {
	values := make(map[string]int, len(c))
	for productID, quantity := range c {
		values[productID.String()] = quantity
	}
	s.Values[sessionKey] = values
}

// Clear drops the cart from the session, typically after checkout.
func Clear(s *sessions.Session) {
	delete(s.Values, sessionKey)
}
