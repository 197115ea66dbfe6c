package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orderly-mm-bot/internal/orderly"
	"orderly-mm-bot/internal/orderly/rest"

	"go.uber.org/zap"
)

type mockVenue struct {
	mu sync.Mutex

	openBatches [][]orderly.Order
	openCalls   int
	openErr     error

	cancelled []int64
	cancelErr map[int64]error

	created   []Quote
	createErr error
	nextID    int64
}

func (m *mockVenue) OpenOrders(ctx context.Context, symbol string) ([]orderly.Order, error) {
	_ = ctx
	_ = symbol
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.openCalls++
	if len(m.openBatches) == 0 {
		return nil, nil
	}
	batch := m.openBatches[0]
	m.openBatches = m.openBatches[1:]
	return batch, nil
}

func (m *mockVenue) CancelOrder(ctx context.Context, orderID int64, symbol string) error {
	_ = ctx
	_ = symbol
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	if err, ok := m.cancelErr[orderID]; ok {
		return err
	}
	return nil
}

func (m *mockVenue) CreateOrder(ctx context.Context, symbol string, side orderly.Side, price, quantity float64) (orderly.OrderAck, error) {
	_ = ctx
	_ = symbol
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return orderly.OrderAck{}, m.createErr
	}
	m.created = append(m.created, Quote{Side: side, Price: price, Quantity: quantity})
	m.nextID++
	return orderly.OrderAck{OrderID: m.nextID}, nil
}

func newTestExecutor(venue *mockVenue) *Executor {
	e := New(venue, zap.NewNop())
	e.verifyWait = time.Millisecond
	e.retryWait = time.Millisecond
	return e
}

func TestCancelAllEmptyBook(t *testing.T) {
	venue := &mockVenue{}
	e := newTestExecutor(venue)

	if err := e.CancelAll(context.Background(), "PERP_ETH_USDC"); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if len(venue.cancelled) != 0 {
		t.Fatalf("expected no cancels, got %v", venue.cancelled)
	}
	if venue.openCalls != 1 {
		t.Fatalf("expected 1 open-orders fetch, got %d", venue.openCalls)
	}
}

func TestCancelAllVerified(t *testing.T) {
	venue := &mockVenue{
		openBatches: [][]orderly.Order{
			{{ID: 1}, {ID: 2}},
			nil, // verify fetch: book clear
		},
	}
	e := newTestExecutor(venue)

	if err := e.CancelAll(context.Background(), "PERP_ETH_USDC"); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if len(venue.cancelled) != 2 {
		t.Fatalf("expected 2 cancels, got %v", venue.cancelled)
	}
	if venue.openCalls != 2 {
		t.Fatalf("expected 2 fetches, got %d", venue.openCalls)
	}
}

func TestCancelAllBadRequestIsSuccess(t *testing.T) {
	venue := &mockVenue{
		openBatches: [][]orderly.Order{
			{{ID: 1}, {ID: 2}},
			nil,
		},
		cancelErr: map[int64]error{
			2: &rest.APIError{Status: 400, Code: -1006, Message: "order not found"},
		},
	}
	e := newTestExecutor(venue)

	if err := e.CancelAll(context.Background(), "PERP_ETH_USDC"); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
}

func TestCancelAllRetriesSurvivors(t *testing.T) {
	venue := &mockVenue{
		openBatches: [][]orderly.Order{
			{{ID: 1}, {ID: 2}},
			{{ID: 2}}, // verify: one survived
			nil,       // final verify: clear
		},
	}
	e := newTestExecutor(venue)

	if err := e.CancelAll(context.Background(), "PERP_ETH_USDC"); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if len(venue.cancelled) != 3 {
		t.Fatalf("expected 3 cancel calls (2 + 1 retry), got %v", venue.cancelled)
	}
	if venue.openCalls != 3 {
		t.Fatalf("expected 3 fetches, got %d", venue.openCalls)
	}
}

func TestCancelAllDoneAfterRetryFailure(t *testing.T) {
	venue := &mockVenue{
		openBatches: [][]orderly.Order{
			{{ID: 1}},
			{{ID: 1}},
			{{ID: 1}}, // still open after retry
		},
	}
	e := newTestExecutor(venue)

	err := e.CancelAll(context.Background(), "PERP_ETH_USDC")
	if !errors.Is(err, ErrOrdersRemain) {
		t.Fatalf("expected ErrOrdersRemain, got %v", err)
	}
}

func TestCancelAllServerErrorPropagates(t *testing.T) {
	venue := &mockVenue{
		openBatches: [][]orderly.Order{
			{{ID: 1}},
		},
		cancelErr: map[int64]error{
			1: &rest.APIError{Status: 500, Message: "internal error"},
		},
	}
	e := newTestExecutor(venue)

	if err := e.CancelAll(context.Background(), "PERP_ETH_USDC"); err == nil {
		t.Fatal("expected error for server-side cancel failure")
	}
}

func TestPlaceQuotesBothSides(t *testing.T) {
	venue := &mockVenue{}
	e := newTestExecutor(venue)

	bid := Quote{Side: orderly.SideBuy, Price: 1998.0, Quantity: 0.025}
	ask := Quote{Side: orderly.SideSell, Price: 2002.0, Quantity: 0.025}
	result := e.PlaceQuotes(context.Background(), "PERP_ETH_USDC", bid, ask)

	if result.Bid.Err != nil || result.Ask.Err != nil {
		t.Fatalf("unexpected errors: bid=%v ask=%v", result.Bid.Err, result.Ask.Err)
	}
	if result.Bid.OrderID == 0 || result.Ask.OrderID == 0 {
		t.Fatalf("expected order ids, got bid=%d ask=%d", result.Bid.OrderID, result.Ask.OrderID)
	}
	if len(venue.created) != 2 {
		t.Fatalf("expected 2 orders created, got %d", len(venue.created))
	}
}

func TestPlaceQuotesIndependentFailure(t *testing.T) {
	venue := &mockVenue{createErr: errors.New("venue down")}
	e := newTestExecutor(venue)

	result := e.PlaceQuotes(context.Background(), "PERP_ETH_USDC",
		Quote{Side: orderly.SideBuy, Price: 1998.0, Quantity: 0.025},
		Quote{Side: orderly.SideSell, Price: 2002.0, Quantity: 0.025})

	if result.Bid.Err == nil || result.Ask.Err == nil {
		t.Fatal("expected both sides to report their own error")
	}
}

func TestClosePosition(t *testing.T) {
	venue := &mockVenue{}
	e := newTestExecutor(venue)

	if err := e.ClosePosition(context.Background(), "PERP_ETH_USDC", orderly.SideSell, 2002.0, 0.1); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if len(venue.created) != 1 {
		t.Fatalf("expected 1 order, got %d", len(venue.created))
	}
	got := venue.created[0]
	if got.Side != orderly.SideSell || got.Price != 2002.0 || got.Quantity != 0.1 {
		t.Fatalf("unexpected close order: %+v", got)
	}
}
