package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/pkg/logging"
	"munda-checkout/pkg/messaging"

	"go.uber.org/zap"
)

const (
	DefaultPreviewTimeout = 10 * time.Second
	DefaultSubmitTimeout  = 15 * time.Second

	sideEffectTimeout = 5 * time.Second
)

// CheckoutState is a point-in-time view of a checkout.
type CheckoutState struct {
	Step          models.CheckoutStep  `json:"step"`
	Delivery      models.DeliveryInfo  `json:"delivery"`
	PaymentMethod models.PaymentMethod `json:"payment_method,omitempty"`
	OrderPreview  *models.Quote        `json:"order_preview"`
	OrderNumber   string               `json:"order_number,omitempty"`
	Error         string               `json:"error,omitempty"`
	Busy          bool                 `json:"busy"`
}

type CheckoutOption func(*CheckoutOrchestrator)

func WithBuyerID(id string) CheckoutOption {
	return func(c *CheckoutOrchestrator) { c.buyerID = id }
}

func WithEventPublisher(p EventPublisher) CheckoutOption {
	return func(c *CheckoutOrchestrator) { c.publisher = p }
}

func WithReceiptRepository(r repositories.ReceiptRepository) CheckoutOption {
	return func(c *CheckoutOrchestrator) { c.receipts = r }
}

func WithCheckoutTimeouts(preview, submit time.Duration) CheckoutOption {
	return func(c *CheckoutOrchestrator) {
		if preview > 0 {
			c.previewTimeout = preview
		}
		if submit > 0 {
			c.submitTimeout = submit
		}
	}
}

func WithCheckoutLogger(logger *zap.Logger) CheckoutOption {
	return func(c *CheckoutOrchestrator) { c.log = logging.OrNop(logger) }
}

func WithInitialDelivery(d models.DeliveryInfo) CheckoutOption {
	return func(c *CheckoutOrchestrator) { c.delivery = normalizeDelivery(d) }
}

// CheckoutOrchestrator drives DELIVERY -> PAYMENT -> CONFIRMED for one cart.
// PAYMENT -> DELIVERY is the only backward move and CONFIRMED is terminal.
// While a preview or submission is outstanding every action is refused.
type CheckoutOrchestrator struct {
	mu             sync.Mutex
	buyerID        string
	cart           *CartStore
	gateway        OrderGateway
	publisher      EventPublisher
	receipts       repositories.ReceiptRepository
	previewTimeout time.Duration
	submitTimeout  time.Duration
	log            *zap.Logger
	now            func() time.Time

	step          models.CheckoutStep
	delivery      models.DeliveryInfo
	paymentMethod models.PaymentMethod
	preview       *models.Quote
	orderNumber   string
	lastErr       string
	busy          bool
}

// NewCheckoutOrchestrator starts a checkout in DELIVERY. An empty cart cannot
// be checked out and yields ErrEmptyCart.
func NewCheckoutOrchestrator(cart *CartStore, gateway OrderGateway, opts ...CheckoutOption) (*CheckoutOrchestrator, error) {
	if cart.Len() == 0 {
		return nil, ErrEmptyCart
	}

	c := &CheckoutOrchestrator{
		cart:           cart,
		gateway:        gateway,
		previewTimeout: DefaultPreviewTimeout,
		submitTimeout:  DefaultSubmitTimeout,
		log:            zap.NewNop(),
		now:            time.Now,
		step:           models.StepDelivery,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("buyer_id", c.buyerID))
	return c, nil
}

func (c *CheckoutOrchestrator) State() CheckoutState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := CheckoutState{
		Step:          c.step,
		Delivery:      c.delivery,
		PaymentMethod: c.paymentMethod,
		OrderNumber:   c.orderNumber,
		Error:         c.lastErr,
		Busy:          c.busy,
	}
	if c.preview != nil {
		p := *c.preview
		state.OrderPreview = &p
	}
	return state
}

func (c *CheckoutOrchestrator) Step() models.CheckoutStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// SetDelivery replaces the delivery details. Only allowed in DELIVERY.
func (c *CheckoutOrchestrator) SetDelivery(d models.DeliveryInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(models.StepDelivery); err != nil {
		return err
	}
	c.delivery = normalizeDelivery(d)
	return nil
}

// SelectPaymentMethod records the payment choice. Only allowed in PAYMENT.
func (c *CheckoutOrchestrator) SelectPaymentMethod(m models.PaymentMethod) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(models.StepPayment); err != nil {
		return err
	}
	if !m.IsValid() {
		return c.failLocked(&ValidationError{Fields: []string{"payment_method"}, Message: fmt.Sprintf("unknown payment method %q", m)})
	}
	c.paymentMethod = m
	c.lastErr = ""
	return nil
}

// ProceedToPayment validates delivery, prices the current cart and moves to
// PAYMENT. On any failure the checkout stays in DELIVERY.
func (c *CheckoutOrchestrator) ProceedToPayment(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(models.StepDelivery); err != nil {
		c.mu.Unlock()
		return err
	}
	if missing := c.delivery.Missing(); len(missing) > 0 {
		err := c.failLocked(newValidationError(missing...))
		c.mu.Unlock()
		return err
	}
	if !c.delivery.District.IsValid() {
		err := c.failLocked(&ValidationError{Fields: []string{"district"}, Message: fmt.Sprintf("unknown delivery district %q", c.delivery.District)})
		c.mu.Unlock()
		return err
	}

	lines := c.cart.Items()
	if len(lines) == 0 {
		err := c.failLocked(ErrEmptyCart)
		c.mu.Unlock()
		return err
	}

	delivery := c.delivery
	fp := Fingerprint(lines, delivery.District)
	req := models.NewOrderRequest(lines, delivery)
	c.busy = true
	c.lastErr = ""
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.previewTimeout)
	totals, err := c.gateway.PreviewOrder(reqCtx, req)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		c.lastErr = userMessage(err, "Failed to preview order")
		c.log.Warn("order preview failed", zap.Error(err))
		return &GatewayError{Op: "preview order", Err: err}
	}

	// The cart may have moved on while the preview was in flight.
	if Fingerprint(c.cart.Items(), delivery.District) != fp {
		return c.failLocked(ErrCartChanged)
	}

	c.preview = &models.Quote{
		Fingerprint: fp,
		OrderTotals: *totals,
		ReceivedAt:  c.now(),
	}
	c.step = models.StepPayment
	c.log.Info("checkout priced", zap.Float64("total", totals.Total), zap.String("district", string(delivery.District)))
	return nil
}

// SubmitOrder places the order. On success the checkout becomes CONFIRMED
// and only then is the cart cleared. On failure it stays in PAYMENT with the
// cart untouched so the buyer can retry.
func (c *CheckoutOrchestrator) SubmitOrder(ctx context.Context) error {
	c.mu.Lock()
	if err := c.guardLocked(models.StepPayment); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.paymentMethod == "" {
		err := c.failLocked(newValidationError("payment_method"))
		c.mu.Unlock()
		return err
	}

	lines := c.cart.Items()
	if len(lines) == 0 {
		err := c.failLocked(ErrEmptyCart)
		c.mu.Unlock()
		return err
	}
	if c.preview == nil || c.preview.Fingerprint != Fingerprint(lines, c.delivery.District) {
		err := c.failLocked(ErrStaleQuote)
		c.mu.Unlock()
		return err
	}

	delivery := c.delivery
	method := c.paymentMethod
	req := models.NewOrderRequest(lines, delivery)
	req.PaymentMethod = method
	c.busy = true
	c.lastErr = ""
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	confirmation, err := c.gateway.SubmitOrder(reqCtx, req)
	cancel()

	c.mu.Lock()
	c.busy = false

	if err != nil {
		c.lastErr = userMessage(err, "Failed to submit order")
		c.mu.Unlock()
		c.log.Warn("order submission failed", zap.Error(err))
		return &GatewayError{Op: "submit order", Err: err}
	}

	c.orderNumber = confirmation.OrderNumber
	c.step = models.StepConfirmed
	c.lastErr = ""
	if err := c.cart.Purge(ctx); err != nil {
		c.log.Error("failed to delete persisted cart after confirmation", zap.Error(err))
	}
	c.mu.Unlock()

	c.log.Info("order confirmed", zap.String("order_number", confirmation.OrderNumber))
	c.recordConfirmation(ctx, lines, delivery, method, confirmation)
	return nil
}

// GoBack returns from PAYMENT to DELIVERY. Delivery details and the payment
// choice are kept; the preview is dropped.
func (c *CheckoutOrchestrator) GoBack() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(models.StepPayment); err != nil {
		return err
	}
	c.step = models.StepDelivery
	c.preview = nil
	c.lastErr = ""
	return nil
}

func (c *CheckoutOrchestrator) guardLocked(want models.CheckoutStep) error {
	if c.busy {
		return ErrRequestInFlight
	}
	if c.step != want {
		return ErrInvalidTransition
	}
	return nil
}

func (c *CheckoutOrchestrator) failLocked(err error) error {
	c.lastErr = err.Error()
	return err
}

// recordConfirmation publishes the confirmation event and archives a
// receipt. Both are best effort and detached from the caller's context.
func (c *CheckoutOrchestrator) recordConfirmation(ctx context.Context, lines []models.CartLine, delivery models.DeliveryInfo, method models.PaymentMethod, confirmation *models.OrderConfirmation) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if c.publisher != nil {
		event := messaging.NewCheckoutEvent(messaging.EventOrderSubmitted, c.buyerID, confirmation.OrderNumber, map[string]interface{}{
			"payment_method": method,
			"district":       delivery.District,
			"total":          confirmation.Totals.Total,
			"items":          len(lines),
		})
		if err := c.publisher.Publish(bg, event); err != nil {
			c.log.Warn("failed to publish checkout event", zap.Error(err))
		}
	}

	if c.receipts != nil {
		receipt := &models.OrderReceipt{
			BuyerID:       c.buyerID,
			OrderNumber:   confirmation.OrderNumber,
			PaymentMethod: method,
			Delivery:      delivery,
			Lines:         lines,
			Totals:        confirmation.Totals,
			CreatedAt:     c.now(),
		}
		if err := c.receipts.Create(bg, receipt); err != nil {
			c.log.Warn("failed to archive receipt", zap.Error(err))
		}
	}
}

func normalizeDelivery(d models.DeliveryInfo) models.DeliveryInfo {
	if district, ok := models.ParseDistrict(string(d.District)); ok {
		d.District = district
	}
	return d
}

// IsBusyError reports whether err means another checkout request is outstanding.
func IsBusyError(err error) bool {
	return errors.Is(err, ErrRequestInFlight)
}
