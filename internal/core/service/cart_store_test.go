package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

var (
	jeanPrice  = decimal.RequireFromString("29.99")
	shirtPrice = decimal.RequireFromString("15.50")
)

func TestAddItem_NewLine(t *testing.T) {
	cart := NewCartStore()

	cart.AddItem("P1", "M", "Jean", "jean.png", jeanPrice, 1)

	assert.Equal(t, 1, cart.Count())
	assert.True(t, cart.Subtotal().Equal(jeanPrice), "subtotal %s", cart.Subtotal())

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.LineItem{
		ProductID: "P1",
		Size:      "M",
		Name:      "Jean",
		Image:     "jean.png",
		UnitPrice: jeanPrice,
		Quantity:  1,
	}, items[0])
}

func TestAddItem_MergesSameKey(t *testing.T) {
	cart := NewCartStore()

	cart.AddItem("P1", "M", "Jean", "jean.png", jeanPrice, 1)
	cart.AddItem("P1", "M", "Jean", "jean.png", jeanPrice, 2)

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 3, cart.Count())
	assert.True(t, cart.Subtotal().Equal(decimal.RequireFromString("89.97")))
}

func TestAddItem_SizesAreDistinctLines(t *testing.T) {
	cart := NewCartStore()

	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)
	cart.AddItem("P1", "L", "Jean", "", jeanPrice, 1)
	cart.AddItem("P2", "M", "Shirt", "", shirtPrice, 1)

	items := cart.Items()
	require.Len(t, items, 3)
	assert.Equal(t, domain.ItemKey{ProductID: "P1", Size: "M"}, items[0].Key())
	assert.Equal(t, domain.ItemKey{ProductID: "P1", Size: "L"}, items[1].Key())
	assert.Equal(t, domain.ItemKey{ProductID: "P2", Size: "M"}, items[2].Key())
}

func TestAddItem_ClampsQuantity(t *testing.T) {
	cart := NewCartStore()

	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 0)
	cart.AddItem("P1", "M", "Jean", "", jeanPrice, -4)

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddItem_KeepsFirstDisplayAttributes(t *testing.T) {
	cart := NewCartStore()

	cart.AddItem("P1", "M", "Jean", "a.png", jeanPrice, 1)
	cart.AddItem("P1", "M", "Renamed", "b.png", shirtPrice, 1)

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Jean", items[0].Name)
	assert.True(t, items[0].UnitPrice.Equal(jeanPrice))
}

func TestUpdateQuantity(t *testing.T) {
	t.Run("Sets quantity", func(t *testing.T) {
		cart := NewCartStore()
		cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)

		cart.UpdateQuantity("P1", "M", 5)

		assert.Equal(t, 5, cart.Count())
		assert.True(t, cart.Subtotal().Equal(decimal.RequireFromString("149.95")))
	})

	for _, qty := range []int{0, -5} {
		t.Run("Removes on non-positive", func(t *testing.T) {
			cart := NewCartStore()
			cart.AddItem("P1", "M", "Jean", "", jeanPrice, 3)

			cart.UpdateQuantity("P1", "M", qty)

			assert.Empty(t, cart.Items())
			assert.Equal(t, 0, cart.Count())

			cart.UpdateQuantity("P1", "M", qty)
			assert.Empty(t, cart.Items())
		})
	}

	t.Run("Ignores unknown key", func(t *testing.T) {
		cart := NewCartStore()
		cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)

		cart.UpdateQuantity("P1", "XL", 4)

		assert.Equal(t, 1, cart.Count())
	})
}

func TestRemoveItem_Idempotent(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)
	cart.AddItem("P2", "S", "Shirt", "", shirtPrice, 2)

	var notified int
	cart.Subscribe(func(domain.CartSnapshot) { notified++ })

	cart.RemoveItem("P1", "M")
	cart.RemoveItem("P1", "M")

	assert.Equal(t, 1, notified, "second remove must not change state")
	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P2", items[0].ProductID)
	assert.Equal(t, 2, cart.Count())
}

func TestClear(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)
	cart.AddItem("P2", "S", "Shirt", "", shirtPrice, 2)

	cart.Clear()

	assert.Empty(t, cart.Items())
	assert.Equal(t, 0, cart.Count())
	assert.True(t, cart.Subtotal().IsZero())
}

func TestSubscribe_SeesStateBeforeReturn(t *testing.T) {
	cart := NewCartStore()

	var seen []domain.CartSnapshot
	cart.Subscribe(func(s domain.CartSnapshot) {
		// Reads from inside the observer already reflect the mutation.
		assert.Equal(t, s.ItemCount, cart.Count())
		seen = append(seen, s)
	})

	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 2)
	require.Len(t, seen, 1)
	assert.Equal(t, 2, seen[0].ItemCount)
	assert.True(t, seen[0].Subtotal.Equal(decimal.RequireFromString("59.98")))

	cart.UpdateQuantity("P1", "M", 1)
	cart.RemoveItem("P1", "M")
	cart.Clear()
	require.Len(t, seen, 4)
	assert.True(t, seen[3].Empty())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	cart := NewCartStore()

	var first, second int
	unsubscribe := cart.Subscribe(func(domain.CartSnapshot) { first++ })
	cart.Subscribe(func(domain.CartSnapshot) { second++ })

	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)
	unsubscribe()
	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestItems_ReturnsCopy(t *testing.T) {
	cart := NewCartStore()
	cart.AddItem("P1", "M", "Jean", "", jeanPrice, 1)

	items := cart.Items()
	items[0].Quantity = 99

	assert.Equal(t, 1, cart.Count())
}

func TestReplace_Deduplicates(t *testing.T) {
	cart := NewCartStore()

	cart.Replace([]domain.LineItem{
		{ProductID: "P1", Size: "M", Name: "Jean", UnitPrice: jeanPrice, Quantity: 1},
		{ProductID: "P2", Size: "S", Name: "Shirt", UnitPrice: shirtPrice, Quantity: 1},
		{ProductID: "P1", Size: "M", Name: "Jean", UnitPrice: jeanPrice, Quantity: 2},
		{ProductID: "P3", Size: "S", Name: "Sock", UnitPrice: shirtPrice, Quantity: 0},
	})

	items := cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "P1", items[0].ProductID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "P2", items[1].ProductID)
	assert.Equal(t, 4, cart.Count())
}

func TestAggregates_MatchItems(t *testing.T) {
	cart := NewCartStore()
	ops := []func(){
		func() { cart.AddItem("P1", "M", "Jean", "", jeanPrice, 2) },
		func() { cart.AddItem("P2", "S", "Shirt", "", shirtPrice, 1) },
		func() { cart.UpdateQuantity("P1", "M", 7) },
		func() { cart.AddItem("P2", "S", "Shirt", "", shirtPrice, 3) },
		func() { cart.RemoveItem("P1", "M") },
		func() { cart.UpdateQuantity("P2", "S", -1) },
		func() { cart.AddItem("P1", "L", "Jean", "", jeanPrice, 1) },
	}

	for _, op := range ops {
		op()

		count := 0
		subtotal := decimal.Zero
		for _, item := range cart.Items() {
			require.GreaterOrEqual(t, item.Quantity, 1)
			count += item.Quantity
			subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		assert.Equal(t, count, cart.Count())
		assert.True(t, subtotal.Equal(cart.Subtotal()))
	}
}
