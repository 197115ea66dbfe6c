// Package journal persists a per-tick event log the report tool reads
// back to summarize a session. Rows are msgpack-encoded so the schema
// can grow fields without a table migration.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

type Kind string

const (
	KindTick           Kind = "tick"
	KindQuote          Kind = "quote"
	KindTakeProfit     Kind = "take_profit"
	KindInventoryStop  Kind = "inventory_stop"
	KindLossProtection Kind = "loss_protection"
)

type Event struct {
	Kind          Kind    `msgpack:"kind"`
	TimestampMS   int64   `msgpack:"ts_ms"`
	Symbol        string  `msgpack:"symbol"`
	MarkPrice     float64 `msgpack:"mark_price"`
	PositionQty   float64 `msgpack:"position_qty"`
	AvgEntryPrice float64 `msgpack:"avg_entry_price"`
	UnrealizedPnL float64 `msgpack:"unrealized_pnl"`
	BidPrice      float64 `msgpack:"bid_price"`
	AskPrice      float64 `msgpack:"ask_price"`
	Quantity      float64 `msgpack:"quantity"`
	Note          string  `msgpack:"note"`
}

type Journal struct {
	db *sql.DB
}

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		ts_ms INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Append(ctx context.Context, event Event) error {
	if event.TimestampMS == 0 {
		event.TimestampMS = time.Now().UnixMilli()
	}
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO journal (kind, ts_ms, payload) VALUES (?, ?, ?)`,
		string(event.Kind), event.TimestampMS, payload)
	if err != nil {
		return fmt.Errorf("append journal event: %w", err)
	}
	return nil
}

// Events returns every event with ts_ms >= sinceMS in insertion order.
// sinceMS of zero returns the whole journal.
func (j *Journal) Events(ctx context.Context, sinceMS int64) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT payload FROM journal WHERE ts_ms >= ? ORDER BY id`, sinceMS)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event Event
		if err := msgpack.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode journal event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
