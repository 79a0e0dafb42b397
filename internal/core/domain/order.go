package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// An order is pending while queued and confirmed once it has been stored.
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// Contact is what the shipping step collected. It is stored with the order
// as given; validating it is left to the caller.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Order struct {
	ID        string
	SessionID string
	Contact   Contact
	Items     []LineItem
	ItemCount int
	Subtotal  decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
