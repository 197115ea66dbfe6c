package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderly-mm-bot/internal/orderly"

	"go.uber.org/zap"
)

type mockVenue struct {
	mark       float64
	markErr    error
	markCalls  int
	pos        orderly.Position
	posErr     error
}

func (m *mockVenue) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	m.markCalls++
	return m.mark, m.markErr
}

func (m *mockVenue) Position(ctx context.Context, symbol string) (orderly.Position, error) {
	return m.pos, m.posErr
}

type staticFeed struct {
	price float64
	at    time.Time
	ok    bool
}

func (f staticFeed) Price() (float64, time.Time, bool) { return f.price, f.at, f.ok }

func TestSampleHappyPath(t *testing.T) {
	venue := &mockVenue{mark: 2000, pos: orderly.Position{Qty: 0.05, AvgEntryPrice: 1990}}
	sampler := NewSampler(venue, zap.NewNop())
	state, err := sampler.Sample(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if state.MarkPrice != 2000 || state.PositionQty != 0.05 || state.AvgEntryPrice != 1990 {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.PositionDegraded {
		t.Fatalf("expected non-degraded state")
	}
}

func TestSampleMarkPriceFailurePropagates(t *testing.T) {
	venue := &mockVenue{markErr: errors.New("http 503")}
	sampler := NewSampler(venue, zap.NewNop())
	if _, err := sampler.Sample(context.Background(), "PERP_ETH_USDC"); err == nil {
		t.Fatalf("expected mark price error to propagate")
	}
}

func TestSamplePositionFailureDegradesToFlat(t *testing.T) {
	venue := &mockVenue{mark: 2000, posErr: errors.New("http 500")}
	sampler := NewSampler(venue, zap.NewNop())
	state, err := sampler.Sample(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("position failure must not propagate, got %v", err)
	}
	if !state.PositionDegraded {
		t.Fatalf("expected degraded flag")
	}
	if state.PositionQty != 0 || state.AvgEntryPrice != 0 {
		t.Fatalf("expected flat default, got %+v", state)
	}
	if state.MarkPrice != 2000 {
		t.Fatalf("mark price should survive position failure")
	}
}

func TestSamplePrefersFreshFeed(t *testing.T) {
	venue := &mockVenue{mark: 2000}
	feed := staticFeed{price: 2001, at: time.Now(), ok: true}
	sampler := NewSampler(venue, zap.NewNop()).WithFeed(feed, 5*time.Second)
	state, err := sampler.Sample(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if state.MarkPrice != 2001 {
		t.Fatalf("expected feed price 2001, got %v", state.MarkPrice)
	}
	if venue.markCalls != 0 {
		t.Fatalf("REST mark price should not be called when feed is fresh")
	}
}

func TestSampleFallsBackOnStaleFeed(t *testing.T) {
	venue := &mockVenue{mark: 2000}
	feed := staticFeed{price: 2001, at: time.Now().Add(-time.Minute), ok: true}
	sampler := NewSampler(venue, zap.NewNop()).WithFeed(feed, 5*time.Second)
	state, err := sampler.Sample(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if state.MarkPrice != 2000 {
		t.Fatalf("expected REST fallback price 2000, got %v", state.MarkPrice)
	}
	if venue.markCalls != 1 {
		t.Fatalf("expected one REST call, got %d", venue.markCalls)
	}
}
