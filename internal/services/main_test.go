package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"munda-checkout/internal/models"
	"munda-checkout/internal/repositories"
	"munda-checkout/pkg/messaging"

	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testLogger = zap.NewNop()

// Harare totals for one line of 2kg at 1.20.
var harareTotals = models.OrderTotals{
	Subtotal:    2.4,
	DeliveryFee: 5.12,
	ServiceFee:  0.048,
	Total:       7.568,
	TotalKg:     2,
	Currency:    "USD",
}

var tomatoes = models.Listing{ID: "L-001", Name: "Tomatoes", Price: 1.2}

var harareDelivery = models.DeliveryInfo{
	District:     models.DistrictHarare,
	Address:      "12 Samora Machel Ave",
	ContactName:  "Tariro",
	ContactPhone: "+263771234567",
}

// stubGateway answers immediately with canned results and records requests.
type stubGateway struct {
	mu          sync.Mutex
	previews    []models.OrderRequest
	submits     []models.OrderRequest
	previewErr  error
	submitErr   error
	totals      models.OrderTotals
	orderNumber string
	onPreview   func()
}

func newStubGateway() *stubGateway {
	return &stubGateway{totals: harareTotals, orderNumber: "ORD-1001"}
}

func (g *stubGateway) PreviewOrder(ctx context.Context, req models.OrderRequest) (*models.OrderTotals, error) {
	g.mu.Lock()
	g.previews = append(g.previews, req)
	err := g.previewErr
	totals := g.totals
	hook := g.onPreview
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

func (g *stubGateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderConfirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.submits = append(g.submits, req)
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	return &models.OrderConfirmation{OrderNumber: g.orderNumber, Totals: g.totals}, nil
}

func (g *stubGateway) setPreviewErr(err error) {
	g.mu.Lock()
	g.previewErr = err
	g.mu.Unlock()
}

func (g *stubGateway) setSubmitErr(err error) {
	g.mu.Lock()
	g.submitErr = err
	g.mu.Unlock()
}

func (g *stubGateway) previewCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.previews)
}

func (g *stubGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submits)
}

type previewResult struct {
	totals *models.OrderTotals
	err    error
}

type previewCall struct {
	req   models.OrderRequest
	reply chan previewResult
}

func (c previewCall) respond(totals models.OrderTotals) {
	c.reply <- previewResult{totals: &totals}
}

func (c previewCall) fail(err error) {
	c.reply <- previewResult{err: err}
}

// manualGateway hands every preview to the test, which decides when and how
// it completes.
type manualGateway struct {
	calls chan previewCall
}

func newManualGateway() *manualGateway {
	return &manualGateway{calls: make(chan previewCall, 16)}
}

func (g *manualGateway) PreviewOrder(ctx context.Context, req models.OrderRequest) (*models.OrderTotals, error) {
	call := previewCall{req: req, reply: make(chan previewResult, 1)}
	g.calls <- call
	select {
	case res := <-call.reply:
		return res.totals, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *manualGateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderConfirmation, error) {
	return nil, errors.New("not supported")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.CheckoutEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event messaging.CheckoutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// failingStorage accepts nothing.
type failingStorage struct{}

func (failingStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("storage offline")
}

func (failingStorage) Save(ctx context.Context, key string, data []byte) error {
	return errors.New("storage offline")
}

func (failingStorage) Delete(ctx context.Context, key string) error {
	return errors.New("storage offline")
}

var _ repositories.CartStorage = failingStorage{}

// flakyStorage fails every call while failing is set.
type flakyStorage struct {
	repositories.CartStorage

	mu      sync.Mutex
	failing bool
}

func (f *flakyStorage) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyStorage) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("storage offline")
	}
	return nil
}

func (f *flakyStorage) Load(ctx context.Context, key string) ([]byte, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.CartStorage.Load(ctx, key)
}

func (f *flakyStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.CartStorage.Save(ctx, key, data)
}

func (f *flakyStorage) Delete(ctx context.Context, key string) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.CartStorage.Delete(ctx, key)
}

func newTestCart(t *testing.T, storage repositories.CartStorage, lines ...models.Listing) *CartStore {
	t.Helper()
	if storage == nil {
		storage = repositories.NewMemoryCartStorage()
	}
	cart := NewCartStore(storage, CartKey("buyer-1"), testLogger)
	if err := cart.Init(context.Background()); err != nil {
		t.Fatalf("init cart: %v", err)
	}
	for _, l := range lines {
		if err := cart.AddItem(context.Background(), l, 1); err != nil {
			t.Fatalf("add %s: %v", l.ID, err)
		}
	}
	return cart
}
