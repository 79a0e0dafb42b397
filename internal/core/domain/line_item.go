package domain

import "github.com/shopspring/decimal"

// ItemKey identifies a line item inside a cart. Two items with the same
// product in different sizes are different lines.
type ItemKey struct {
	ProductID string
	Size      string
}

func (k ItemKey) String() string {
	return k.ProductID + "/" + k.Size
}

// LineItem is one product+size entry in a cart. Display attributes are copied
// from the catalog when the item is added and are not refreshed afterwards.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Size      string          `json:"size"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, Size: li.Size}
}

// Total returns quantity * unit price.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// CartSnapshot is a read-only view of a cart together with its aggregates.
type CartSnapshot struct {
	Items     []LineItem      `json:"items"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func (s CartSnapshot) Empty() bool {
	return s.ItemCount == 0
}
