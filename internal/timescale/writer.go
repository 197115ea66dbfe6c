package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"orderly-mm-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// TickSnapshot is one control-loop observation: what the market looked
// like and what the engine held at that moment.
type TickSnapshot struct {
	Time          time.Time
	Symbol        string
	MarkPrice     float64
	PositionQty   float64
	AvgEntryPrice float64
	UnrealizedPnL float64
	OpenOrders    int
	Degraded      bool
}

// QuoteEvent is one placement decision. HasBid/HasAsk distinguish a
// one-sided book from a zero price.
type QuoteEvent struct {
	Time          time.Time
	Symbol        string
	BidPrice      float64
	AskPrice      float64
	HasBid        bool
	HasAsk        bool
	Quantity      float64
	SpreadBps     float64
	LossProtected bool
}

type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	ticks     chan TickSnapshot
	quotes    chan QuoteEvent
	started   atomic.Bool
	dropTick  atomic.Uint64
	dropQuote atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		ticks:  make(chan TickSnapshot, queueSize),
		quotes: make(chan QuoteEvent, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTick(snapshot TickSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- snapshot:
		return
	default:
		if w.dropTick.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale tick queue full")
		}
	}
}

func (w *Writer) EnqueueQuote(event QuoteEvent) {
	if w == nil {
		return
	}
	select {
	case w.quotes <- event:
		return
	default:
		if w.dropQuote.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale quote queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.ticks:
			w.writeTick(ctx, snap)
		case event := <-w.quotes:
			w.writeQuote(ctx, event)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL,
		position_qty DOUBLE PRECISION NOT NULL,
		avg_entry_price DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL,
		open_orders INTEGER NOT NULL,
		degraded BOOLEAN NOT NULL
	)`, w.table("tick_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		bid_price DOUBLE PRECISION NOT NULL,
		ask_price DOUBLE PRECISION NOT NULL,
		has_bid BOOLEAN NOT NULL,
		has_ask BOOLEAN NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		spread_bps DOUBLE PRECISION NOT NULL,
		loss_protected BOOLEAN NOT NULL
	)`, w.table("quote_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("tick_snapshots"))); err != nil && w.log != nil {
		w.log.Warn("timescale tick_snapshots hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("quote_events"))); err != nil && w.log != nil {
		w.log.Warn("timescale quote_events hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, snap TickSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, mark_price, position_qty, avg_entry_price, unrealized_pnl, open_orders, degraded
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)`, w.table("tick_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		snap.Symbol,
		snap.MarkPrice,
		snap.PositionQty,
		snap.AvgEntryPrice,
		snap.UnrealizedPnL,
		snap.OpenOrders,
		snap.Degraded,
	); err != nil && w.log != nil {
		w.log.Warn("timescale tick insert failed", zap.Error(err))
	}
}

func (w *Writer) writeQuote(ctx context.Context, event QuoteEvent) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, bid_price, ask_price, has_bid, has_ask, quantity, spread_bps, loss_protected
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("quote_events"))
	if _, err := w.db.ExecContext(ctx, query,
		event.Time,
		event.Symbol,
		event.BidPrice,
		event.AskPrice,
		event.HasBid,
		event.HasAsk,
		event.Quantity,
		event.SpreadBps,
		event.LossProtected,
	); err != nil && w.log != nil {
		w.log.Warn("timescale quote insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
