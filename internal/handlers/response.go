package handlers

import (
	"context"
	"errors"
	"net/http"

	"munda-checkout/internal/middleware"
	"munda-checkout/internal/services"
	"munda-checkout/pkg/marketplace"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// respondError maps service errors onto HTTP statuses. For gateway and
// unexpected errors, message (when set) replaces the raw error text.
func respondError(c *gin.Context, err error, message string) {
	text := err.Error()
	if message == "" {
		message = text
	}

	var (
		verr  *services.ValidationError
		gwErr *services.GatewayError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Message: text, Fields: verr.Fields})
	case errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidListing):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: text})
	case errors.Is(err, services.ErrRequestInFlight),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrStaleQuote),
		errors.Is(err, services.ErrCartChanged):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Checkout conflict", Message: text})
	case errors.Is(err, services.ErrNoCheckout):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Message: text})
	case errors.Is(err, services.ErrSessionClosed),
		errors.Is(err, services.ErrCartUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Session unavailable", Message: text})
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Marketplace request failed", Message: message})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Message: message})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Message: err.Error(),
	})
}

// requestContext carries the request id and the buyer's token through to
// marketplace calls.
func requestContext(c *gin.Context) context.Context {
	ctx := marketplace.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
	if token := middleware.GetAuthToken(c); token != "" {
		ctx = marketplace.WithAuthToken(ctx, token)
	}
	return ctx
}

// session resolves the caller's session or writes the error response.
func session(c *gin.Context, sessions SessionProvider) (*services.Session, bool) {
	buyerID := middleware.GetBuyerID(c)
	if buyerID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "Unauthorized",
			Message: "Buyer ID not found",
		})
		return nil, false
	}

	s, err := sessions.Session(requestContext(c), buyerID)
	if err != nil {
		respondError(c, err, "")
		return nil, false
	}
	return s, true
}
