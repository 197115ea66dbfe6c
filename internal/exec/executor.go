// Package exec owns the order lifecycle: verified cancel-all and
// concurrent two-sided placement. It enforces the one rule the whole
// engine depends on: new orders are never placed while old ones might
// still rest on the book.
package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderly-mm-bot/internal/orderly"
	"orderly-mm-bot/internal/orderly/rest"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrOrdersRemain means orders survived cancel, verify and one retry.
// Callers must not place new orders when they see it.
var ErrOrdersRemain = errors.New("orders remain after cancel retry")

const (
	cancelVerifyWait = 300 * time.Millisecond
	cancelRetryWait  = 200 * time.Millisecond

	// Upper bound on in-flight cancel requests in one fan-out.
	maxConcurrentCancels = 10
)

type Venue interface {
	OpenOrders(ctx context.Context, symbol string) ([]orderly.Order, error)
	CreateOrder(ctx context.Context, symbol string, side orderly.Side, price, quantity float64) (orderly.OrderAck, error)
	CancelOrder(ctx context.Context, orderID int64, symbol string) error
}

// Quote is one side of a placement request.
type Quote struct {
	Side     orderly.Side
	Price    float64
	Quantity float64
}

// Placement is the per-side outcome of PlaceQuotes. Each side succeeds
// or fails independently.
type Placement struct {
	Quote   Quote
	OrderID int64
	Err     error
}

type PlacementResult struct {
	Bid Placement
	Ask Placement
}

type Executor struct {
	venue      Venue
	log        *zap.Logger
	verifyWait time.Duration
	retryWait  time.Duration
}

func New(venue Venue, log *zap.Logger) *Executor {
	return &Executor{
		venue:      venue,
		log:        log,
		verifyWait: cancelVerifyWait,
		retryWait:  cancelRetryWait,
	}
}

// WithWaits overrides the cancel verification waits. Tests use it to
// keep verification passes from sleeping wall-clock time.
func (e *Executor) WithWaits(verify, retry time.Duration) *Executor {
	e.verifyWait = verify
	e.retryWait = retry
	return e
}

// CancelAll cancels every resting order for symbol and verifies the
// book is clear. Cancels run concurrently; a venue bad-request answer
// means the order was already resolved and counts as success. After the
// first pass it waits briefly, re-fetches, retries survivors once, and
// returns ErrOrdersRemain if any are still open. The caller must then
// skip placement for this tick.
func (e *Executor) CancelAll(ctx context.Context, symbol string) error {
	orders, err := e.venue.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}
	e.log.Info("canceling open orders", zap.String("symbol", symbol), zap.Int("count", len(orders)))
	if err := e.cancelBatch(ctx, symbol, orders); err != nil {
		return fmt.Errorf("cancel batch: %w", err)
	}
	if err := sleepCtx(ctx, e.verifyWait); err != nil {
		return err
	}
	remaining, err := e.venue.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("verify cancel: %w", err)
	}
	if len(remaining) == 0 {
		return nil
	}
	e.log.Warn("orders remain after cancel, retrying",
		zap.String("symbol", symbol), zap.Int("count", len(remaining)))
	if err := e.cancelBatch(ctx, symbol, remaining); err != nil {
		return fmt.Errorf("cancel retry: %w", err)
	}
	if err := sleepCtx(ctx, e.retryWait); err != nil {
		return err
	}
	final, err := e.venue.OpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("verify cancel retry: %w", err)
	}
	if len(final) > 0 {
		return fmt.Errorf("%w: %d open", ErrOrdersRemain, len(final))
	}
	return nil
}

func (e *Executor) cancelBatch(ctx context.Context, symbol string, orders []orderly.Order) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCancels)
	for _, order := range orders {
		order := order
		g.Go(func() error {
			err := e.venue.CancelOrder(ctx, order.ID, symbol)
			if err == nil {
				return nil
			}
			if rest.IsBadRequest(err) {
				// Already filled or cancelled on the venue side.
				e.log.Debug("order already resolved", zap.Int64("order_id", order.ID))
				return nil
			}
			return fmt.Errorf("cancel order %d: %w", order.ID, err)
		})
	}
	return g.Wait()
}

// PlaceQuotes places bid and ask concurrently. The sides are fully
// independent: a failed ask never rolls back a placed bid, and each
// side's outcome is reported separately so the caller updates its quote
// belief only for confirmed sides.
func (e *Executor) PlaceQuotes(ctx context.Context, symbol string, bid, ask Quote) PlacementResult {
	result := PlacementResult{Bid: Placement{Quote: bid}, Ask: Placement{Quote: ask}}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ack, err := e.venue.CreateOrder(ctx, symbol, ask.Side, ask.Price, ask.Quantity)
		result.Ask.OrderID = ack.OrderID
		result.Ask.Err = err
	}()
	ack, err := e.venue.CreateOrder(ctx, symbol, bid.Side, bid.Price, bid.Quantity)
	result.Bid.OrderID = ack.OrderID
	result.Bid.Err = err
	<-done

	e.logPlacement(symbol, "bid", result.Bid)
	e.logPlacement(symbol, "ask", result.Ask)
	return result
}

// ClosePosition submits the position-closing limit order.
func (e *Executor) ClosePosition(ctx context.Context, symbol string, side orderly.Side, price, quantity float64) error {
	ack, err := e.venue.CreateOrder(ctx, symbol, side, price, quantity)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	e.log.Info("position close order placed",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("quantity", quantity),
		zap.Int64("order_id", ack.OrderID))
	return nil
}

func (e *Executor) logPlacement(symbol, label string, p Placement) {
	if p.Err != nil {
		e.log.Error("quote placement failed",
			zap.String("symbol", symbol),
			zap.String("side", label),
			zap.Float64("price", p.Quote.Price),
			zap.Error(p.Err))
		return
	}
	e.log.Info("quote placed",
		zap.String("symbol", symbol),
		zap.String("side", label),
		zap.Float64("price", p.Quote.Price),
		zap.Float64("quantity", p.Quote.Quantity),
		zap.Int64("order_id", p.OrderID))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
