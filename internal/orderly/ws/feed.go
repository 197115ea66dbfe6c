package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MarkPriceFeed caches the latest streamed mark price for one symbol.
// Readers get the price plus its receive time and decide for themselves
// whether it is fresh enough to use.
type MarkPriceFeed struct {
	client *Client
	symbol string
	log    *zap.Logger

	mu        sync.RWMutex
	price     float64
	updatedAt time.Time
}

type markPriceMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Price float64 `json:"price"`
	} `json:"data"`
}

func NewMarkPriceFeed(client *Client, symbol string, log *zap.Logger) *MarkPriceFeed {
	return &MarkPriceFeed{client: client, symbol: symbol, log: log}
}

// Start connects, subscribes the markprice topic and pumps messages in
// the background until ctx is cancelled.
func (f *MarkPriceFeed) Start(ctx context.Context) error {
	if err := f.client.Connect(ctx); err != nil {
		return err
	}
	if err := f.client.Subscribe(ctx, f.symbol+"@markprice"); err != nil {
		return err
	}
	go func() {
		if err := f.client.Run(ctx, f.handleMessage); err != nil && ctx.Err() == nil && f.log != nil {
			f.log.Warn("mark price feed stopped", zap.Error(err))
		}
	}()
	return nil
}

func (f *MarkPriceFeed) handleMessage(raw json.RawMessage) {
	var msg markPriceMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Topic != f.symbol+"@markprice" || msg.Data.Price <= 0 {
		return
	}
	f.mu.Lock()
	f.price = msg.Data.Price
	f.updatedAt = time.Now()
	f.mu.Unlock()
}

// Price returns the cached mark price and when it arrived; ok is false
// before the first message.
func (f *MarkPriceFeed) Price() (price float64, updatedAt time.Time, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.updatedAt.IsZero() {
		return 0, time.Time{}, false
	}
	return f.price, f.updatedAt, true
}
