package service

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cart/internal/core/domain"
)

// Observer receives the cart state after every mutation.
type Observer func(domain.CartSnapshot)

// CartStore owns the line items of one cart. It is not safe for concurrent
// use; callers serving several goroutines serialize access (see Session.Do).
type CartStore struct {
	items     []domain.LineItem
	observers map[int]Observer
	nextObsID int
}

func NewCartStore() *CartStore {
	return &CartStore{observers: make(map[int]Observer)}
}

// AddItem merges quantity into the line for (productID, size) or appends a
// new line. Quantities below 1 are treated as 1.
func (c *CartStore) AddItem(productID, size, name, image string, unitPrice decimal.Decimal, quantity int) {
	quantity = max(quantity, 1)

	if i := c.indexOf(productID, size); i >= 0 {
		c.items[i].Quantity += quantity
	} else {
		c.items = append(c.items, domain.LineItem{
			ProductID: productID,
			Size:      size,
			Name:      name,
			Image:     image,
			UnitPrice: unitPrice,
			Quantity:  quantity,
		})
	}

	c.notify()
}

// UpdateQuantity sets the quantity of an existing line. A quantity of zero or
// less removes the line.
func (c *CartStore) UpdateQuantity(productID, size string, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID, size)
		return
	}

	i := c.indexOf(productID, size)
	if i < 0 {
		return
	}
	c.items[i].Quantity = quantity
	c.notify()
}

func (c *CartStore) RemoveItem(productID, size string) {
	i := c.indexOf(productID, size)
	if i < 0 {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.notify()
}

func (c *CartStore) Clear() {
	c.items = nil
	c.notify()
}

// Replace rebuilds the cart from items restored out of persistence. Lines
// sharing a key are merged in first-seen order; lines without a positive
// quantity are dropped.
func (c *CartStore) Replace(items []domain.LineItem) {
	c.items = dedupe(items)
	c.notify()
}

// Count is the sum of quantities over all lines.
func (c *CartStore) Count() int {
	count := 0
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

// Subtotal is the sum of quantity * unit price over all lines.
func (c *CartStore) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range c.items {
		subtotal = subtotal.Add(item.Total())
	}
	return subtotal
}

// Items returns a copy of the lines in insertion order.
func (c *CartStore) Items() []domain.LineItem {
	out := make([]domain.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *CartStore) Snapshot() domain.CartSnapshot {
	return domain.CartSnapshot{
		Items:     c.Items(),
		ItemCount: c.Count(),
		Subtotal:  c.Subtotal(),
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it again.
func (c *CartStore) Subscribe(fn Observer) (unsubscribe func()) {
	id := c.nextObsID
	c.nextObsID++
	c.observers[id] = fn

	return func() {
		delete(c.observers, id)
	}
}

func (c *CartStore) notify() {
	if len(c.observers) == 0 {
		return
	}

	snapshot := c.Snapshot()
	for id := 0; id < c.nextObsID; id++ {
		if fn, ok := c.observers[id]; ok {
			fn(snapshot)
		}
	}
}

func (c *CartStore) indexOf(productID, size string) int {
	key := domain.ItemKey{ProductID: productID, Size: size}
	for i, item := range c.items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

func dedupe(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	seen := make(map[domain.ItemKey]int, len(items))

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i, ok := seen[item.Key()]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		seen[item.Key()] = len(out)
		out = append(out, item)
	}
	return out
}
