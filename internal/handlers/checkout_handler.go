package handlers

import (
	"net/http"

	"munda-checkout/internal/middleware"
	"munda-checkout/internal/models"
	"munda-checkout/internal/services"

	"github.com/gin-gonic/gin"
)

type CheckoutHandler struct {
	sessions SessionProvider
}

func NewCheckoutHandler(sessions SessionProvider) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
	}
}

// RegisterRoutes registers the routes for the checkout flow
func (h *CheckoutHandler) RegisterRoutes(router *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	checkout := router.Group("/checkout", authMiddleware.AuthRequired(), authMiddleware.BuyerRequired())
	{
		checkout.POST("", h.EnterCheckout)
		checkout.GET("", h.GetCheckout)
		checkout.DELETE("", h.LeaveCheckout)
		checkout.PUT("/delivery", h.SetDelivery)
		checkout.PUT("/payment-method", h.SelectPaymentMethod)
		checkout.POST("/proceed", h.ProceedToPayment)
		checkout.POST("/submit", h.SubmitOrder)
		checkout.POST("/back", h.GoBack)
	}
}

// EnterCheckout godoc
// @Summary Start checkout
// @Description Opens a checkout at DELIVERY; the cart must not be empty
// @Tags checkout
// @Produce json
// @Success 201 {object} services.CheckoutState
// @Failure 400 {object} ErrorResponse
// @Router /checkout [post]
func (h *CheckoutHandler) EnterCheckout(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	checkout, err := s.EnterCheckout()
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusCreated, checkout.State())
}

// GetCheckout godoc
// @Summary Get checkout state
// @Tags checkout
// @Produce json
// @Success 200 {object} services.CheckoutState
// @Failure 404 {object} ErrorResponse
// @Router /checkout [get]
func (h *CheckoutHandler) GetCheckout(c *gin.Context) {
	checkout, ok := h.checkout(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, checkout.State())
}

// LeaveCheckout godoc
// @Summary Abandon checkout
// @Description Leaving before confirmation resets the flow; the cart is kept
// @Tags checkout
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /checkout [delete]
func (h *CheckoutHandler) LeaveCheckout(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	if err := s.LeaveCheckout(); err != nil {
		respondError(c, err, "")
		return
	}

	c.Status(http.StatusNoContent)
}

// SetDelivery godoc
// @Summary Set delivery details
// @Tags checkout
// @Accept json
// @Produce json
// @Param delivery body models.DeliveryInfo true "Delivery details"
// @Success 200 {object} services.CheckoutState
// @Failure 409 {object} ErrorResponse
// @Router /checkout/delivery [put]
func (h *CheckoutHandler) SetDelivery(c *gin.Context) {
	var req models.DeliveryInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	if err := s.SetCheckoutDelivery(req); err != nil {
		respondError(c, err, "")
		return
	}

	checkout, err := s.Checkout()
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, checkout.State())
}

// SelectPaymentMethod godoc
// @Summary Choose payment method
// @Tags checkout
// @Accept json
// @Produce json
// @Param method body SelectPaymentMethodRequest true "Payment method"
// @Success 200 {object} services.CheckoutState
// @Failure 400 {object} ErrorResponse
// @Router /checkout/payment-method [put]
func (h *CheckoutHandler) SelectPaymentMethod(c *gin.Context) {
	var req SelectPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	checkout, ok := h.checkout(c)
	if !ok {
		return
	}

	if err := checkout.SelectPaymentMethod(req.PaymentMethod); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, checkout.State())
}

// ProceedToPayment godoc
// @Summary Price the order and move to PAYMENT
// @Tags checkout
// @Produce json
// @Success 200 {object} services.CheckoutState
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /checkout/proceed [post]
func (h *CheckoutHandler) ProceedToPayment(c *gin.Context) {
	checkout, ok := h.checkout(c)
	if !ok {
		return
	}

	if err := checkout.ProceedToPayment(requestContext(c)); err != nil {
		respondError(c, err, checkout.State().Error)
		return
	}

	c.JSON(http.StatusOK, checkout.State())
}

// SubmitOrder godoc
// @Summary Place the order
// @Description On success the checkout is CONFIRMED and the cart is emptied
// @Tags checkout
// @Produce json
// @Success 200 {object} services.CheckoutState
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /checkout/submit [post]
func (h *CheckoutHandler) SubmitOrder(c *gin.Context) {
	checkout, ok := h.checkout(c)
	if !ok {
		return
	}

	if err := checkout.SubmitOrder(requestContext(c)); err != nil {
		respondError(c, err, checkout.State().Error)
		return
	}

	c.JSON(http.StatusOK, checkout.State())
}

// GoBack godoc
// @Summary Return from PAYMENT to DELIVERY
// @Tags checkout
// @Produce json
// @Success 200 {object} services.CheckoutState
// @Failure 409 {object} ErrorResponse
// @Router /checkout/back [post]
func (h *CheckoutHandler) GoBack(c *gin.Context) {
	checkout, ok := h.checkout(c)
	if !ok {
		return
	}

	if err := checkout.GoBack(); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, checkout.State())
}

func (h *CheckoutHandler) checkout(c *gin.Context) (*services.CheckoutOrchestrator, bool) {
	s, ok := session(c, h.sessions)
	if !ok {
		return nil, false
	}

	checkout, err := s.Checkout()
	if err != nil {
		respondError(c, err, "")
		return nil, false
	}
	return checkout, true
}

type SelectPaymentMethodRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" binding:"required"`
}
