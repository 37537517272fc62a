package handlers

import (
	"net/http"
	"strconv"

	"munda-checkout/internal/middleware"
	"munda-checkout/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	defaultReceiptLimit = 20
	maxReceiptLimit     = 100
)

type ReceiptHandler struct {
	sessions SessionProvider
}

func NewReceiptHandler(sessions SessionProvider) *ReceiptHandler {
	return &ReceiptHandler{
		sessions: sessions,
	}
}

// RegisterRoutes registers the receipt history routes
func (h *ReceiptHandler) RegisterRoutes(router *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	orders := router.Group("/orders", authMiddleware.AuthRequired(), authMiddleware.BuyerRequired())
	{
		orders.GET("/receipts", h.ListReceipts)
	}
}

// ListReceipts godoc
// @Summary List confirmed orders
// @Description Orders confirmed through this service, newest first
// @Tags orders
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} ReceiptListResponse
// @Router /orders/receipts [get]
func (h *ReceiptHandler) ListReceipts(c *gin.Context) {
	buyerID := middleware.GetBuyerID(c)
	limit := queryInt(c, "limit", defaultReceiptLimit)
	if limit <= 0 || limit > maxReceiptLimit {
		limit = defaultReceiptLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	receipts, err := h.sessions.Receipts(requestContext(c), buyerID, limit, offset)
	if err != nil {
		respondError(c, err, "Failed to load receipts")
		return
	}

	c.JSON(http.StatusOK, ReceiptListResponse{
		Receipts: receipts,
		Limit:    limit,
		Offset:   offset,
	})
}

type ReceiptListResponse struct {
	Receipts []models.OrderReceipt `json:"receipts"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}
