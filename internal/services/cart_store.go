package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/pkg/logging"

	"go.uber.org/zap"
)

const purgeTimeout = 5 * time.Second

// CartListener receives a copy of the cart lines after every mutation.
// Listeners run while the store is locked and must not call back into it.
type CartListener func(lines []models.CartLine)

// CartStore is a buyer's basket. It is the single source of truth for cart
// contents and writes the full cart to storage after every mutation.
type CartStore struct {
	mu        sync.RWMutex
	key       string
	storage   repositories.CartStorage
	lines     []models.CartLine
	listeners map[int]CartListener
	nextID    int
	closed    bool
	now       func() time.Time
	log       *zap.Logger
}

func NewCartStore(storage repositories.CartStorage, key string, logger *zap.Logger) *CartStore {
	return &CartStore{
		key:       key,
		storage:   storage,
		lines:     []models.CartLine{},
		listeners: make(map[int]CartListener),
		now:       time.Now,
		log:       logging.OrNop(logger).With(zap.String("cart_key", key)),
	}
}

// Init loads the persisted cart. Missing or unreadable data leaves the cart
// empty. A storage error is returned instead, since starting empty would
// overwrite the stored cart on the next mutation.
func (s *CartStore) Init(ctx context.Context) error {
	data, err := s.storage.Load(ctx, s.key)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, repositories.ErrCartNotFound):
		s.lines = []models.CartLine{}
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrCartUnavailable, err)
	}

	lines, err := models.DecodeCart(data)
	if err != nil {
		s.log.Warn("discarding unreadable persisted cart", zap.Error(err))
		s.lines = []models.CartLine{}
		return nil
	}
	s.lines = lines
	s.log.Debug("cart restored", zap.Int("lines", len(lines)))
	return nil
}

// Teardown flushes the cart and rejects further mutations.
func (s *CartStore) Teardown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.persistLocked(ctx)
	s.closed = true
	s.listeners = make(map[int]CartListener)
}

// AddItem merges qtyKg into the line for listing.ID, or appends a snapshot
// line. Non-positive quantities are rejected without touching the cart.
func (s *CartStore) AddItem(ctx context.Context, listing models.Listing, qtyKg float64) error {
	if listing.ID == "" {
		return ErrInvalidListing
	}
	if !(qtyKg > 0) || math.IsInf(qtyKg, 0) {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	found := false
	for i := range s.lines {
		if s.lines[i].ID == listing.ID {
			s.lines[i].QuantityKg = clampQuantity(s.lines[i].QuantityKg + qtyKg)
			found = true
			break
		}
	}
	if !found {
		s.lines = append(s.lines, models.CartLine{
			ID:           listing.ID,
			Name:         listing.Name,
			UnitPriceUSD: listing.Price,
			QuantityKg:   clampQuantity(qtyKg),
			Image:        listing.Image,
		})
	}

	s.commitLocked(ctx)
	return nil
}

// UpdateQuantity replaces the quantity of line id. The value is floored at
// models.MinQuantityKg here so no caller can persist a smaller quantity.
// Unknown ids are ignored.
func (s *CartStore) UpdateQuantity(ctx context.Context, id string, qtyKg float64) error {
	if math.IsNaN(qtyKg) || math.IsInf(qtyKg, 0) {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	for i := range s.lines {
		if s.lines[i].ID == id {
			qty := clampQuantity(qtyKg)
			if s.lines[i].QuantityKg == qty {
				return nil
			}
			s.lines[i].QuantityKg = qty
			s.commitLocked(ctx)
			return nil
		}
	}
	return nil
}

// RemoveItem deletes line id; absent ids are a no-op.
func (s *CartStore) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	for i := range s.lines {
		if s.lines[i].ID == id {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			s.commitLocked(ctx)
			return nil
		}
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	s.lines = []models.CartLine{}
	s.commitLocked(ctx)
	return nil
}

// Purge empties the cart after an order is placed. Unlike Clear it also
// works on a torn-down store, and the persisted copy is deleted even when ctx
// is already cancelled, so a confirmed cart is never restored.
func (s *CartStore) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []models.CartLine{}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), purgeTimeout)
	defer cancel()
	err := s.storage.Delete(dctx, s.key)

	if !s.closed {
		for _, fn := range s.listeners {
			fn([]models.CartLine{})
		}
	}
	return err
}

// Items returns a copy of the lines in insertion order.
func (s *CartStore) Items() []models.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CopyLines(s.lines)
}

func (s *CartStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Subtotal is recomputed on every call.
func (s *CartStore) Subtotal() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Subtotal(s.lines)
}

// Subscribe registers fn for change notifications and returns its cancel func.
func (s *CartStore) Subscribe(fn CartListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *CartStore) commitLocked(ctx context.Context) {
	s.persistLocked(ctx)
	for _, fn := range s.listeners {
		fn(models.CopyLines(s.lines))
	}
}

// persistLocked writes the whole cart. Storage failures are logged; the
// in-memory cart stays authoritative.
func (s *CartStore) persistLocked(ctx context.Context) {
	if len(s.lines) == 0 {
		if err := s.storage.Delete(ctx, s.key); err != nil {
			s.log.Warn("failed to delete persisted cart", zap.Error(err))
		}
		return
	}

	data, err := models.EncodeCart(s.lines, s.now())
	if err != nil {
		s.log.Error("failed to encode cart", zap.Error(err))
		return
	}
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		s.log.Warn("failed to persist cart", zap.Error(err))
	}
}

func clampQuantity(qty float64) float64 {
	return math.Max(models.MinQuantityKg, qty)
}
