package handlers

import (
	"net/http"

	"munda-checkout/internal/middleware"
	"munda-checkout/internal/models"
	"munda-checkout/internal/services"

	"github.com/gin-gonic/gin"
)

type CartHandler struct {
	sessions SessionProvider
}

func NewCartHandler(sessions SessionProvider) *CartHandler {
	return &CartHandler{
		sessions: sessions,
	}
}

// RegisterRoutes registers the routes for cart management
func (h *CartHandler) RegisterRoutes(router *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	// All cart routes require a buyer token
	cart := router.Group("/cart", authMiddleware.AuthRequired(), authMiddleware.BuyerRequired())
	{
		cart.GET("", h.GetCart)
		cart.POST("/items", h.AddItem)
		cart.PUT("/items/:id", h.UpdateItem)
		cart.DELETE("/items/:id", h.RemoveItem)
		cart.DELETE("", h.ClearCart)
		cart.PUT("/delivery", h.UpdateDelivery)
		cart.GET("/quote", h.GetQuote)
	}
}

// GetCart godoc
// @Summary Get buyer's cart
// @Description Cart lines, locally derived totals and the current quote state
// @Tags cart
// @Produce json
// @Success 200 {object} CartResponse
// @Failure 401 {object} ErrorResponse
// @Router /cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartResponse(s))
}

// AddItem godoc
// @Summary Add listing to cart
// @Description Adds qty_kg (default 1) of a listing; an existing line is incremented
// @Tags cart
// @Accept json
// @Produce json
// @Param item body AddItemRequest true "Listing snapshot and quantity"
// @Success 200 {object} CartResponse
// @Failure 400 {object} ErrorResponse
// @Router /cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	qty := 1.0
	if req.QtyKg != nil {
		qty = *req.QtyKg
	}
	if err := s.Cart.AddItem(requestContext(c), req.Listing, qty); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, newCartResponse(s))
}

// UpdateItem godoc
// @Summary Update cart line quantity
// @Description Quantities below 1 kg are raised to 1 kg
// @Tags cart
// @Accept json
// @Produce json
// @Param id path string true "Listing ID"
// @Param item body UpdateItemRequest true "New quantity"
// @Success 200 {object} CartResponse
// @Failure 400 {object} ErrorResponse
// @Router /cart/items/{id} [put]
func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	if err := s.Cart.UpdateQuantity(requestContext(c), c.Param("id"), *req.QtyKg); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, newCartResponse(s))
}

// RemoveItem godoc
// @Summary Remove cart line
// @Tags cart
// @Produce json
// @Param id path string true "Listing ID"
// @Success 200 {object} CartResponse
// @Router /cart/items/{id} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	if err := s.Cart.RemoveItem(requestContext(c), c.Param("id")); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, newCartResponse(s))
}

// ClearCart godoc
// @Summary Empty the cart
// @Tags cart
// @Success 204
// @Router /cart [delete]
func (h *CartHandler) ClearCart(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	if err := s.Cart.Clear(requestContext(c)); err != nil {
		respondError(c, err, "")
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateDelivery godoc
// @Summary Update delivery draft
// @Description Delivery destination used for background quoting
// @Tags cart
// @Accept json
// @Produce json
// @Param delivery body models.DeliveryInfo true "Delivery details"
// @Success 200 {object} CartResponse
// @Failure 400 {object} ErrorResponse
// @Router /cart/delivery [put]
func (h *CartHandler) UpdateDelivery(c *gin.Context) {
	var req models.DeliveryInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	s, ok := session(c, h.sessions)
	if !ok {
		return
	}

	if err := s.UpdateDelivery(req); err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, newCartResponse(s))
}

// GetQuote godoc
// @Summary Get quote state
// @Description Provisional subtotal plus the server quote, if one matches the cart
// @Tags cart
// @Produce json
// @Success 200 {object} models.QuoteState
// @Router /cart/quote [get]
func (h *CartHandler) GetQuote(c *gin.Context) {
	s, ok := session(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.QuoteState())
}

// Request and Response structs
type AddItemRequest struct {
	Listing models.Listing `json:"listing" binding:"required"`
	QtyKg   *float64       `json:"qty_kg"`
}

type UpdateItemRequest struct {
	QtyKg *float64 `json:"qty_kg" binding:"required"`
}

type CartTotals struct {
	Subtotal float64 `json:"subtotal"`
	TotalKg  float64 `json:"total_kg"`
}

type CartResponse struct {
	Items    []models.CartLine   `json:"items"`
	Totals   CartTotals          `json:"totals"`
	Delivery models.DeliveryInfo `json:"delivery"`
	Quote    models.QuoteState   `json:"quote"`
}

func newCartResponse(s *services.Session) CartResponse {
	items := s.Cart.Items()
	return CartResponse{
		Items: items,
		Totals: CartTotals{
			Subtotal: models.Subtotal(items),
			TotalKg:  models.TotalKg(items),
		},
		Delivery: s.Delivery(),
		Quote:    s.QuoteState(),
	}
}
