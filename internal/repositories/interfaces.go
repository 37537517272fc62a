package repositories

import (
	"context"
	"errors"

	"munda-checkout/internal/models"
)

// ErrCartNotFound is returned by CartStorage.Load when nothing is stored under the key.
var ErrCartNotFound = errors.New("cart not found")

// CartStorage is the durable key/value store behind a buyer's cart. The
// payload is opaque to the storage layer.
type CartStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// ReceiptRepository archives confirmed checkouts
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *models.OrderReceipt) error
	GetByOrderNumber(ctx context.Context, buyerID, orderNumber string) (*models.OrderReceipt, error)
	GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]models.OrderReceipt, error)
}
