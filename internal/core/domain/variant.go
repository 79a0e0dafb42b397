package domain

import "github.com/shopspring/decimal"

// Variant is a purchasable product in one size, as the catalog reports it.
type Variant struct {
	ProductID string
	Size      string
	Name      string
	Image     string
	Price     decimal.Decimal
}
