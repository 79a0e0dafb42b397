package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cart/internal/core/domain"
	"github.com/rl1809/storefront-cart/internal/port"
)

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type variantRow struct {
	ProductID string          `db:"product_id"`
	Size      string          `db:"size"`
	Name      string          `db:"name"`
	Image     string          `db:"image"`
	Price     decimal.Decimal `db:"price"`
}

func (m *MySQLAdapter) LookupVariant(ctx context.Context, productID, size string) (*domain.Variant, error) {
	var row variantRow
	err := m.db.GetContext(ctx, &row, `
		SELECT v.product_id, v.size, p.name, p.image, v.price
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.product_id = ? AND v.size = ?`, productID, size)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrVariantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query variant")
	}

	return &domain.Variant{
		ProductID: row.ProductID,
		Size:      row.Size,
		Name:      row.Name,
		Image:     row.Image,
		Price:     row.Price,
	}, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, session_id, contact_name, contact_email, contact_address,
			item_count, subtotal, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.SessionID, order.Contact.Name, order.Contact.Email, order.Contact.Address,
		order.ItemCount, order.Subtotal, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, size, name, image, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, i, item.ProductID, item.Size, item.Name, item.Image, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item %s", item.Key())
		}
	}

	return tx.Commit()
}

type orderRow struct {
	ID             string          `db:"id"`
	SessionID      string          `db:"session_id"`
	ContactName    string          `db:"contact_name"`
	ContactEmail   string          `db:"contact_email"`
	ContactAddress string          `db:"contact_address"`
	ItemCount      int             `db:"item_count"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

type orderItemRow struct {
	ProductID string          `db:"product_id"`
	Size      string          `db:"size"`
	Name      string          `db:"name"`
	Image     string          `db:"image"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Quantity  int             `db:"quantity"`
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var row orderRow
	err := m.db.GetContext(ctx, &row, `
		SELECT id, session_id, contact_name, contact_email, contact_address,
			item_count, subtotal, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	var items []orderItemRow
	err = m.db.SelectContext(ctx, &items, `
		SELECT product_id, size, name, image, unit_price, quantity
		FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}

	order := &domain.Order{
		ID:        row.ID,
		SessionID: row.SessionID,
		Contact: domain.Contact{
			Name:    row.ContactName,
			Email:   row.ContactEmail,
			Address: row.ContactAddress,
		},
		ItemCount: row.ItemCount,
		Subtotal:  row.Subtotal,
		Status:    domain.OrderStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for _, it := range items {
		order.Items = append(order.Items, domain.LineItem{
			ProductID: it.ProductID,
			Size:      it.Size,
			Name:      it.Name,
			Image:     it.Image,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return order, nil
}
