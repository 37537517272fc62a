package handlers

import (
	"net/http"

	"munda-checkout/internal/models"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(c *gin.Context) error

type MetaHandler struct {
	service string
	checks  map[string]HealthChecker
}

func NewMetaHandler(service string, checks map[string]HealthChecker) *MetaHandler {
	if checks == nil {
		checks = map[string]HealthChecker{}
	}
	return &MetaHandler{service: service, checks: checks}
}

// RegisterRoutes registers the public, unauthenticated routes
func (h *MetaHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health", h.Health)
	router.GET("/districts", h.Districts)
}

// Health godoc
// @Summary Liveness and dependency status
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *MetaHandler) Health(c *gin.Context) {
	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(c); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      h.service,
		"dependencies": deps,
	})
}

// Districts godoc
// @Summary Service districts and payment methods
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /districts [get]
func (h *MetaHandler) Districts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"districts":       models.Districts,
		"payment_methods": models.PaymentMethods,
	})
}
