package services

import (
	"context"
	"sync"
	"time"

	"munda-checkout/internal/models"
	"munda-checkout/pkg/logging"

	"go.uber.org/zap"
)

const (
	DefaultQuoteDebounce = 400 * time.Millisecond
	DefaultQuoteTimeout  = 10 * time.Second
)

type QuoteNegotiatorConfig struct {
	Debounce time.Duration
	Timeout  time.Duration
	// OnQuote, if set, is called with every quote that is applied.
	OnQuote func(models.Quote)
}

// QuoteNegotiator keeps a server quote in sync with the cart and delivery
// destination. Changes are debounced into a single preview request, and only
// the response to the most recently issued request is ever applied.
type QuoteNegotiator struct {
	mu        sync.Mutex
	gateway   OrderGateway
	debouncer *Debouncer
	timeout   time.Duration
	onQuote   func(models.Quote)
	log       *zap.Logger
	now       func() time.Time

	lines    []models.CartLine
	delivery models.DeliveryInfo
	current  models.Fingerprint
	issued   models.Fingerprint
	gen      uint64

	scheduled bool
	inFlight  int
	quote     *models.Quote
	lastErr   string
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQuoteNegotiator(gateway OrderGateway, cfg QuoteNegotiatorConfig, logger *zap.Logger) *QuoteNegotiator {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultQuoteDebounce
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQuoteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QuoteNegotiator{
		gateway:   gateway,
		debouncer: NewDebouncer(cfg.Debounce),
		timeout:   cfg.Timeout,
		onQuote:   cfg.OnQuote,
		log:       logging.OrNop(logger),
		now:       time.Now,
		lines:     []models.CartLine{},
		current:   Fingerprint(nil, ""),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetCart records new cart contents. It has the CartListener signature so it
// can be subscribed to a CartStore directly.
func (n *QuoteNegotiator) SetCart(lines []models.CartLine) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.lines = models.CopyLines(lines)
	n.observeLocked()
}

// SetDelivery records a new delivery destination. Identical values are ignored.
func (n *QuoteNegotiator) SetDelivery(delivery models.DeliveryInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if delivery == n.delivery {
		return
	}
	n.delivery = delivery
	n.observeLocked()
}

func (n *QuoteNegotiator) observeLocked() {
	if n.closed {
		return
	}

	// Any change supersedes whatever was scheduled before it.
	n.gen++
	n.current = Fingerprint(n.lines, n.delivery.District)

	if len(n.lines) == 0 {
		n.debouncer.Cancel()
		n.scheduled = false
		n.quote = nil
		n.lastErr = ""
		n.issued = ""
		return
	}

	if n.delivery.District == "" {
		n.debouncer.Cancel()
		n.scheduled = false
		return
	}

	gen := n.gen
	n.scheduled = true
	n.debouncer.Debounce(func() { n.fire(gen) })
}

// fire issues the preview request for the state current at firing time.
func (n *QuoteNegotiator) fire(gen uint64) {
	n.mu.Lock()
	if n.closed || gen != n.gen {
		n.mu.Unlock()
		return
	}
	n.scheduled = false
	if len(n.lines) == 0 || n.delivery.District == "" {
		n.mu.Unlock()
		return
	}

	fp := n.current
	req := models.NewOrderRequest(n.lines, n.delivery)
	n.issued = fp
	n.inFlight++
	n.wg.Add(1)
	ctx, cancel := context.WithTimeout(n.ctx, n.timeout)
	n.mu.Unlock()

	defer n.wg.Done()
	defer cancel()

	n.log.Debug("requesting quote", zap.String("fingerprint", string(fp)), zap.Int("items", len(req.Items)))
	totals, err := n.gateway.PreviewOrder(ctx, req)

	applied := n.apply(fp, totals, err)
	if applied != nil && n.onQuote != nil {
		n.onQuote(*applied)
	}
}

// apply reconciles a response with the current state and returns the quote
// if it was accepted.
func (n *QuoteNegotiator) apply(fp models.Fingerprint, totals *models.OrderTotals, err error) *models.Quote {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.inFlight--
	if n.closed {
		return nil
	}
	if fp != n.issued {
		n.log.Debug("discarding stale quote response",
			zap.String("fingerprint", string(fp)),
			zap.String("latest", string(n.issued)))
		return nil
	}

	if err != nil {
		// Keep the last good quote; a transient failure should not blank it.
		n.lastErr = userMessage(err, "Failed to get quote")
		n.log.Warn("quote request failed", zap.Error(err))
		return nil
	}

	quote := models.Quote{
		Fingerprint: fp,
		OrderTotals: *totals,
		ReceivedAt:  n.now(),
	}
	n.quote = &quote
	n.lastErr = ""
	return &quote
}

// Current returns the held quote if it still matches the current cart and
// district, and nil otherwise.
func (n *QuoteNegotiator) Current() *models.Quote {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentLocked()
}

func (n *QuoteNegotiator) currentLocked() *models.Quote {
	if n.quote == nil || n.quote.Fingerprint != n.current {
		return nil
	}
	q := *n.quote
	return &q
}

func (n *QuoteNegotiator) LastError() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastErr
}

func (n *QuoteNegotiator) State() models.QuoteState {
	n.mu.Lock()
	defer n.mu.Unlock()

	return models.QuoteState{
		ProvisionalSubtotal: models.Subtotal(n.lines),
		ServerQuote:         n.currentLocked(),
		Pending:             n.scheduled || n.inFlight > 0,
		Error:               n.lastErr,
	}
}

// Close cancels the pending request and any in-flight one, then waits for
// them to return. Responses arriving afterwards are ignored.
func (n *QuoteNegotiator) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.scheduled = false
	n.debouncer.Stop()
	n.cancel()
	n.mu.Unlock()

	n.wg.Wait()
}
