package state

import (
	"context"
	"encoding/json"
	"strings"
)

const QuoteSnapshotKey = "quotes:last_snapshot"

// QuoteSnapshot records what the engine believed it had resting on the
// book at the end of a tick. Nil prices mean that side was not quoted.
// It is persisted so a restart can report the prior book state instead
// of starting blind.
type QuoteSnapshot struct {
	Symbol      string   `json:"symbol"`
	BidPrice    *float64 `json:"bid_price,omitempty"`
	AskPrice    *float64 `json:"ask_price,omitempty"`
	Quantity    float64  `json:"quantity"`
	PositionQty float64  `json:"position_qty"`
	MarkPrice   float64  `json:"mark_price"`
	UpdatedAtMS int64    `json:"updated_at_ms"`
}

func LoadQuoteSnapshot(ctx context.Context, store Store) (QuoteSnapshot, bool, error) {
	if store == nil {
		return QuoteSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, QuoteSnapshotKey)
	if err != nil {
		return QuoteSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return QuoteSnapshot{}, false, nil
	}
	var snapshot QuoteSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return QuoteSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveQuoteSnapshot(ctx context.Context, store Store, snapshot QuoteSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, QuoteSnapshotKey, string(payload))
}
