package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/pkg/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartKeyPrefix namespaces persisted carts per buyer.
const CartKeyPrefix = "cart:"

// abandonedPaymentTTL bounds how long an idle checkout in PAYMENT keeps its
// session alive.
const abandonedPaymentTTL = 24 * time.Hour

func CartKey(buyerID string) string {
	return CartKeyPrefix + buyerID
}

type SessionConfig struct {
	QuoteDebounce  time.Duration
	QuoteTimeout   time.Duration
	PreviewTimeout time.Duration
	SubmitTimeout  time.Duration
	IdleTTL        time.Duration
}

// Session is one buyer's cart, background quote and optional checkout.
type Session struct {
	BuyerID string
	Cart    *CartStore
	Quotes  *QuoteNegotiator

	mu          sync.Mutex
	delivery    models.DeliveryInfo
	checkout    *CheckoutOrchestrator
	lastSeen    time.Time
	unsubscribe func()
	newCheckout func(*CartStore, models.DeliveryInfo) (*CheckoutOrchestrator, error)
}

// Delivery returns the delivery draft that drives background quoting.
func (s *Session) Delivery() models.DeliveryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivery
}

// UpdateDelivery replaces the delivery draft and requotes. A non-empty
// district must be one of the service districts.
func (s *Session) UpdateDelivery(d models.DeliveryInfo) error {
	d = normalizeDelivery(d)
	if err := checkDistrict(d); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.delivery = d
	s.Quotes.SetDelivery(d)
	return nil
}

// EnterCheckout opens a checkout prefilled with the delivery draft. An open
// checkout that has not been confirmed is returned as is.
func (s *Session) EnterCheckout() (*CheckoutOrchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkout != nil && s.checkout.Step() != models.StepConfirmed {
		return s.checkout, nil
	}
	c, err := s.newCheckout(s.Cart, s.delivery)
	if err != nil {
		return nil, err
	}
	s.checkout = c
	return c, nil
}

func (s *Session) Checkout() (*CheckoutOrchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkout == nil {
		return nil, ErrNoCheckout
	}
	return s.checkout, nil
}

// SetCheckoutDelivery updates the open checkout and, once accepted, the
// delivery draft as well.
func (s *Session) SetCheckoutDelivery(d models.DeliveryInfo) error {
	c, err := s.Checkout()
	if err != nil {
		return err
	}
	if err := checkDistrict(normalizeDelivery(d)); err != nil {
		return err
	}
	if err := c.SetDelivery(d); err != nil {
		return err
	}
	return s.UpdateDelivery(d)
}

// LeaveCheckout discards the checkout. Leaving before confirmation means the
// next EnterCheckout starts again at DELIVERY.
func (s *Session) LeaveCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkout == nil {
		return ErrNoCheckout
	}
	s.checkout = nil
	return nil
}

// checkDistrict rejects a non-empty district outside the service area.
func checkDistrict(d models.DeliveryInfo) error {
	if d.District != "" && !d.District.IsValid() {
		return &ValidationError{Fields: []string{"district"}, Message: fmt.Sprintf("unknown delivery district %q", d.District)}
	}
	return nil
}

func (s *Session) QuoteState() models.QuoteState {
	return s.Quotes.State()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) evictable(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idle := now.Sub(s.lastSeen)
	if idle < ttl {
		return false
	}
	if s.checkout == nil {
		return true
	}
	// A priced checkout may still be submitted through a handler that holds
	// this session.
	state := s.checkout.State()
	if state.Busy {
		return false
	}
	return state.Step != models.StepPayment || idle >= abandonedPaymentTTL
}

func (s *Session) close(ctx context.Context) {
	s.unsubscribe()
	s.Quotes.Close()
	s.Cart.Teardown(ctx)
}

// SessionService owns the live sessions, one per buyer.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session
	group    singleflight.Group
	closed   bool

	storage   repositories.CartStorage
	gateway   OrderGateway
	publisher EventPublisher
	receipts  repositories.ReceiptRepository
	cfg       SessionConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewSessionService wires sessions to their collaborators. publisher and
// receipts may be nil.
func NewSessionService(storage repositories.CartStorage, gateway OrderGateway, publisher EventPublisher, receipts repositories.ReceiptRepository, cfg SessionConfig, logger *zap.Logger) *SessionService {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &SessionService{
		sessions:  make(map[string]*Session),
		storage:   storage,
		gateway:   gateway,
		publisher: publisher,
		receipts:  receipts,
		cfg:       cfg,
		log:       logging.OrNop(logger),
		now:       time.Now,
	}
}

// Session returns the buyer's session, restoring the cart from storage the
// first time it is asked for.
func (ss *SessionService) Session(ctx context.Context, buyerID string) (*Session, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("buyer id is required")
	}

	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s, ok := ss.sessions[buyerID]; ok {
		ss.mu.Unlock()
		s.touch(ss.now())
		return s, nil
	}
	ss.mu.Unlock()

	v, err, _ := ss.group.Do(buyerID, func() (interface{}, error) {
		return ss.create(ctx, buyerID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (ss *SessionService) create(ctx context.Context, buyerID string) (*Session, error) {
	ss.mu.Lock()
	if s, ok := ss.sessions[buyerID]; ok {
		ss.mu.Unlock()
		return s, nil
	}
	ss.mu.Unlock()

	log := ss.log.With(zap.String("buyer_id", buyerID))
	cart := NewCartStore(ss.storage, CartKey(buyerID), log)
	if err := cart.Init(ctx); err != nil {
		log.Warn("failed to restore cart", zap.Error(err))
		return nil, err
	}

	quotes := NewQuoteNegotiator(ss.gateway, QuoteNegotiatorConfig{
		Debounce: ss.cfg.QuoteDebounce,
		Timeout:  ss.cfg.QuoteTimeout,
	}, log)
	quotes.SetCart(cart.Items())

	s := &Session{
		BuyerID:     buyerID,
		Cart:        cart,
		Quotes:      quotes,
		lastSeen:    ss.now(),
		unsubscribe: cart.Subscribe(quotes.SetCart),
	}
	s.newCheckout = func(c *CartStore, d models.DeliveryInfo) (*CheckoutOrchestrator, error) {
		return NewCheckoutOrchestrator(c, ss.gateway,
			WithBuyerID(buyerID),
			WithInitialDelivery(d),
			WithEventPublisher(ss.publisher),
			WithReceiptRepository(ss.receipts),
			WithCheckoutTimeouts(ss.cfg.PreviewTimeout, ss.cfg.SubmitTimeout),
			WithCheckoutLogger(log),
		)
	}

	ss.mu.Lock()
	if ss.closed {
		ss.mu.Unlock()
		s.close(ctx)
		return nil, ErrSessionClosed
	}
	ss.sessions[buyerID] = s
	ss.mu.Unlock()

	log.Debug("session opened", zap.Int("cart_lines", cart.Len()))
	return s, nil
}

// Receipts lists the buyer's archived order confirmations, newest first.
func (ss *SessionService) Receipts(ctx context.Context, buyerID string, limit, offset int) ([]models.OrderReceipt, error) {
	if ss.receipts == nil {
		return []models.OrderReceipt{}, nil
	}
	return ss.receipts.GetByBuyerID(ctx, buyerID, limit, offset)
}

func (ss *SessionService) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

// Sweep evicts sessions idle for longer than the configured TTL. Sessions
// with a request in flight are skipped until the next sweep.
func (ss *SessionService) Sweep(ctx context.Context) int {
	now := ss.now()

	ss.mu.Lock()
	var idle []*Session
	for id, s := range ss.sessions {
		if s.evictable(now, ss.cfg.IdleTTL) {
			idle = append(idle, s)
			delete(ss.sessions, id)
		}
	}
	ss.mu.Unlock()

	for _, s := range idle {
		s.close(ctx)
	}
	if len(idle) > 0 {
		ss.log.Info("evicted idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval falls back to one minute.
func (ss *SessionService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ss.Sweep(ctx)
		}
	}
}

// Close flushes every cart and stops all background quoting.
func (ss *SessionService) Close(ctx context.Context) {
	ss.mu.Lock()
	ss.closed = true
	sessions := ss.sessions
	ss.sessions = make(map[string]*Session)
	ss.mu.Unlock()

	for _, s := range sessions {
		s.close(ctx)
	}
	ss.log.Info("sessions closed", zap.Int("count", len(sessions)))
}
