package handlers

import (
	"context"

	"munda-checkout/internal/models"
	"munda-checkout/internal/services"
)

// SessionProvider defines the contract for the buyer session registry
type SessionProvider interface {
	Session(ctx context.Context, buyerID string) (*services.Session, error)
	Receipts(ctx context.Context, buyerID string, limit, offset int) ([]models.OrderReceipt, error)
}
