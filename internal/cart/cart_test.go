package cart_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/cropcarry/marketplace/internal/cart"
)

func newTestSession() *sessions.Session {
	store := sessions.NewCookieStore([]byte("test-secret"))
	return sessions.NewSession(store, "test_session")
}

func TestCart_AddIncrements(t *testing.T) {
	c := cart.New()
	productID := uuid.Must(uuid.NewV4())

	c.Add(productID)
	c.Add(productID)

	require.Equal(t, 2, c[productID])
}

func TestCart_SetQuantity(t *testing.T) {
	c := cart.New()
	productID := uuid.Must(uuid.NewV4())

	c.SetQuantity(productID, 5)
	require.Equal(t, 5, c[productID])

	c.SetQuantity(productID, 2)
	require.Equal(t, 2, c[productID])
}

func TestCart_SetQuantity_ZeroRemoves(t *testing.T) {
	c := cart.New()
	productID := uuid.Must(uuid.NewV4())

	c.SetQuantity(productID, 3)
	c.SetQuantity(productID, 0)

	require.NotContains(t, c, productID)
	require.True(t, c.IsEmpty())
}

func TestCart_Remove(t *testing.T) {
	c := cart.New()
	productID := uuid.Must(uuid.NewV4())

	c.Add(productID)
	c.Remove(productID)

	require.True(t, c.IsEmpty())
}

func TestCart_Lines_DeterministicOrder(t *testing.T) {
	c := cart.New()
	first := uuid.Must(uuid.NewV4())
	second := uuid.Must(uuid.NewV4())
	third := uuid.Must(uuid.NewV4())

	c.SetQuantity(first, 1)
	c.SetQuantity(second, 2)
	c.SetQuantity(third, 3)

	lines := c.Lines()
	require.Len(t, lines, 3)
	for i := 1; i < len(lines); i++ {
		require.Less(t, lines[i-1].ProductID.String(), lines[i].ProductID.String())
	}
}

func TestCart_SaveAndFromSession_Roundtrip(t *testing.T) {
	session := newTestSession()

	c := cart.New()
	first := uuid.Must(uuid.NewV4())
	second := uuid.Must(uuid.NewV4())
	c.SetQuantity(first, 2)
	c.SetQuantity(second, 7)

	c.Save(session)
	restored := cart.FromSession(session)

	require.Equal(t, 2, restored[first])
	require.Equal(t, 7, restored[second])
	require.Len(t, restored, 2)
}

func TestCart_FromSession_Empty(t *testing.T) {
	session := newTestSession()

	c := cart.FromSession(session)

	require.True(t, c.IsEmpty())
}

func TestCart_FromSession_LegacyListShape(t *testing.T) {
	session := newTestSession()
	productID := uuid.Must(uuid.NewV4())
	otherID := uuid.Must(uuid.NewV4())

	session.Values["cart"] = []string{productID.String(), productID.String(), otherID.String()}

	c := cart.FromSession(session)

	require.Equal(t, 2, c[productID])
	require.Equal(t, 1, c[otherID])
}

func TestCart_FromSession_DropsGarbage(t *testing.T) {
	session := newTestSession()
	productID := uuid.Must(uuid.NewV4())

	session.Values["cart"] = map[string]int{
		productID.String(): 2,
		"not-a-uuid":       4,
	}

	c := cart.FromSession(session)

	require.Equal(t, 2, c[productID])
	require.Len(t, c, 1)
}

func TestCart_FromSession_UnknownShape(t *testing.T) {
	session := newTestSession()
	session.Values["cart"] = 42

	c := cart.FromSession(session)

	require.True(t, c.IsEmpty())
}

func TestCart_Clear(t *testing.T) {
	session := newTestSession()

	c := cart.New()
	c.Add(uuid.Must(uuid.NewV4()))
	c.Save(session)

	cart.Clear(session)

	require.True(t, cart.FromSession(session).IsEmpty())
}
