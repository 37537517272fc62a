package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"munda-checkout/internal/models"
)

// MemoryCartStorage keeps carts in process memory. Used in tests and when
// the service runs without a backing store.
type MemoryCartStorage struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCartStorage() *MemoryCartStorage {
	return &MemoryCartStorage{items: make(map[string][]byte)}
}

func (m *MemoryCartStorage) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.items[key]
	if !ok {
		return nil, ErrCartNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryCartStorage) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryCartStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

type MemoryReceiptRepository struct {
	mu       sync.RWMutex
	receipts []models.OrderReceipt
}

func NewMemoryReceiptRepository() *MemoryReceiptRepository {
	return &MemoryReceiptRepository{}
}

func (m *MemoryReceiptRepository) Create(_ context.Context, receipt *models.OrderReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now()
	}
	m.receipts = append(m.receipts, *receipt)
	return nil
}

func (m *MemoryReceiptRepository) GetByOrderNumber(_ context.Context, buyerID, orderNumber string) (*models.OrderReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.receipts {
		if r.BuyerID == buyerID && r.OrderNumber == orderNumber {
			receipt := r
			return &receipt, nil
		}
	}
	return nil, ErrReceiptNotFound
}

func (m *MemoryReceiptRepository) GetByBuyerID(_ context.Context, buyerID string, limit, offset int) ([]models.OrderReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.OrderReceipt{}
	for _, r := range m.receipts {
		if r.BuyerID == buyerID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []models.OrderReceipt{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
