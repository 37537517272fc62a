package services

import (
	"context"
	"errors"

	"munda-checkout/internal/models"
	"munda-checkout/pkg/marketplace"
	"munda-checkout/pkg/messaging"
)

// OrderGateway is the marketplace orders API.
type OrderGateway interface {
	PreviewOrder(ctx context.Context, req models.OrderRequest) (*models.OrderTotals, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderConfirmation, error)
}

// EventPublisher receives checkout lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event messaging.CheckoutEvent) error
}

// userMessage turns a request error into the text shown to the buyer. API
// errors carry their own detail; anything else gets fallback.
func userMessage(err error, fallback string) string {
	var apiErr *marketplace.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fallback + ": request timed out"
	}
	return fallback
}
