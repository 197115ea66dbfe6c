// Package market samples the per-tick view of venue state: the current
// mark price and the account's position.
package market

import (
	"context"
	"time"

	"orderly-mm-bot/internal/orderly"

	"go.uber.org/zap"
)

// State is one tick's sampled snapshot. It is never persisted across
// ticks; the control loop keeps only the last position quantity.
type State struct {
	MarkPrice     float64
	PositionQty   float64
	AvgEntryPrice float64

	// PositionDegraded is set when the position fetch failed and the
	// flat default was substituted.
	PositionDegraded bool
}

type Venue interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	Position(ctx context.Context, symbol string) (orderly.Position, error)
}

// PriceFeed is an optional low-latency mark price source; the sampler
// falls back to REST whenever the feed is cold or stale.
type PriceFeed interface {
	Price() (price float64, updatedAt time.Time, ok bool)
}

type Sampler struct {
	venue       Venue
	feed        PriceFeed
	maxPriceAge time.Duration
	log         *zap.Logger
}

func NewSampler(venue Venue, log *zap.Logger) *Sampler {
	return &Sampler{venue: venue, log: log}
}

// WithFeed attaches a streamed price source with a freshness bound.
func (s *Sampler) WithFeed(feed PriceFeed, maxAge time.Duration) *Sampler {
	s.feed = feed
	s.maxPriceAge = maxAge
	return s
}

// Sample fetches the tick snapshot. A mark-price failure propagates to
// the caller; a position failure degrades to a flat view with a warning
// so the loop never stalls on momentarily unavailable account state.
func (s *Sampler) Sample(ctx context.Context, symbol string) (State, error) {
	mark, err := s.markPrice(ctx, symbol)
	if err != nil {
		return State{}, err
	}
	state := State{MarkPrice: mark}
	pos, err := s.venue.Position(ctx, symbol)
	if err != nil {
		if s.log != nil {
			s.log.Warn("position fetch failed, assuming flat", zap.String("symbol", symbol), zap.Error(err))
		}
		state.PositionDegraded = true
		return state, nil
	}
	state.PositionQty = pos.Qty
	state.AvgEntryPrice = pos.AvgEntryPrice
	return state, nil
}

func (s *Sampler) markPrice(ctx context.Context, symbol string) (float64, error) {
	if s.feed != nil {
		if price, at, ok := s.feed.Price(); ok && time.Since(at) <= s.maxPriceAge {
			return price, nil
		}
	}
	return s.venue.MarkPrice(ctx, symbol)
}
