// Package app wires the venue client, sampler, strategy and executor
// into the control loop that runs one quoting decision per tick.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"orderly-mm-bot/internal/alerts"
	"orderly-mm-bot/internal/config"
	"orderly-mm-bot/internal/exec"
	"orderly-mm-bot/internal/journal"
	"orderly-mm-bot/internal/market"
	"orderly-mm-bot/internal/metrics"
	"orderly-mm-bot/internal/orderly"
	"orderly-mm-bot/internal/orderly/rest"
	"orderly-mm-bot/internal/orderly/ws"
	"orderly-mm-bot/internal/state"
	"orderly-mm-bot/internal/state/sqlite"
	"orderly-mm-bot/internal/strategy"
	"orderly-mm-bot/internal/timescale"

	"go.uber.org/zap"
)

const (
	// After a take-profit exit the close order needs a moment to work
	// the book before fresh quotes would compete with it.
	takeProfitCooldown = 2 * time.Second

	// Pause after a failed tick so a venue outage does not turn the
	// loop into a request hammer.
	errorBackoff = 5 * time.Second

	// Time allowed for the shutdown cancel sweep once the run context is gone.
	shutdownTimeout = 10 * time.Second
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	venue     *orderly.Client
	feed      *ws.MarkPriceFeed
	sampler   *market.Sampler
	executor  *exec.Executor
	metrics   *metrics.Metrics
	alerts    *alerts.Telegram
	journal   *journal.Journal
	timescale *timescale.Writer

	// engine is built in Run once the symbol's tick sizes are known.
	engine *strategy.Engine

	quotes         strategy.QuoteState
	lastQty        float64
	lastTakeProfit time.Time
}

type Options struct {
	Metrics   *metrics.Metrics
	Timescale *timescale.Writer
}

func New(cfg *config.Config, creds config.Credentials, log *zap.Logger, opts Options) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	jnl, err := journal.Open(cfg.State.SQLitePath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	if creds.APISecret != "" {
		signer, err := rest.NewSigner(creds.APISecret)
		if err != nil {
			_ = store.Close()
			_ = jnl.Close()
			return nil, fmt.Errorf("init request signer: %w", err)
		}
		restClient = restClient.WithAuth(creds.AccountID, creds.APIKey, signer)
	}
	venue := orderly.NewClient(restClient, log)
	sampler := market.NewSampler(venue, log)

	var feed *ws.MarkPriceFeed
	if cfg.WS.Enabled {
		wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
		feed = ws.NewMarkPriceFeed(wsClient, cfg.Trading.Symbol, log)
		sampler = sampler.WithFeed(feed, cfg.WS.MaxPriceAge)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		venue:     venue,
		feed:      feed,
		sampler:   sampler,
		executor:  exec.New(venue, log),
		metrics:   m,
		alerts:    alerts.NewTelegram(cfg.Telegram, log),
		journal:   jnl,
		timescale: opts.Timescale,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.journal.Close()

	symbol := a.cfg.Trading.Symbol
	info, err := a.venue.MarketInfo(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch market info: %w", err)
	}
	engine, err := strategy.NewEngine(a.cfg.Trading, a.cfg.Risk, info)
	if err != nil {
		return fmt.Errorf("init quote engine: %w", err)
	}
	a.engine = engine
	a.log.Info("quote engine ready",
		zap.String("symbol", symbol),
		zap.Float64("price_tick", info.PriceTick),
		zap.Float64("qty_tick", info.QtyTick),
		zap.Float64("stop_position", strategy.StopPosition(a.cfg.Risk)))

	if prior, ok, err := state.LoadQuoteSnapshot(ctx, a.store); err != nil {
		a.log.Warn("quote snapshot load failed", zap.Error(err))
	} else if ok {
		a.log.Info("prior session snapshot",
			zap.Float64("mark_price", prior.MarkPrice),
			zap.Float64("position_qty", prior.PositionQty),
			zap.Int64("updated_at_ms", prior.UpdatedAtMS))
	}

	if a.feed != nil {
		if err := a.feed.Start(ctx); err != nil {
			a.log.Warn("mark price feed unavailable, using REST only", zap.Error(err))
		}
	}
	a.timescale.Start(ctx)

	// Start from a clean book: orders left over from a previous run
	// would otherwise sit outside the engine's quote belief forever.
	if !a.cfg.Trading.DryRun {
		if err := a.executor.CancelAll(ctx, symbol); err != nil {
			return fmt.Errorf("startup cancel sweep: %w", err)
		}
	}

	ticker := time.NewTicker(a.cfg.Trading.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				a.metrics.TickErrors.Inc()
				a.log.Warn("tick failed", zap.Error(err))
				if err := sleepCtx(ctx, errorBackoff); err != nil {
					a.shutdown()
					return err
				}
			}
		}
	}
}

// tick runs one full decision cycle: sample, risk checks, quote
// evaluation. All market state is sampled once at the top and threaded
// through so every decision in the cycle sees the same numbers.
func (a *App) tick(ctx context.Context) error {
	symbol := a.cfg.Trading.Symbol
	st, err := a.sampler.Sample(ctx, symbol)
	if err != nil {
		return err
	}
	pnl := strategy.UnrealizedPnL(st.PositionQty, st.MarkPrice, st.AvgEntryPrice)
	a.metrics.MarkPrice.Set(st.MarkPrice)
	a.metrics.PositionQty.Set(st.PositionQty)
	a.metrics.UnrealizedPnL.Set(pnl)
	a.record(st, pnl)

	// A degraded sample reports the position as flat, which would make
	// every position-based exit look satisfied. Only quoting decisions
	// are safe on it.
	if !st.PositionDegraded && strategy.ShouldTakeProfit(a.cfg.Risk, st.PositionQty, st.MarkPrice, st.AvgEntryPrice) {
		return a.takeProfit(ctx, st, pnl)
	}
	if time.Since(a.lastTakeProfit) < takeProfitCooldown {
		a.log.Debug("within take-profit cooldown, skipping quote cycle")
		return nil
	}
	if strategy.ShouldStopQuoting(a.cfg.Risk, st.PositionQty) {
		return a.inventoryStop(ctx, st)
	}
	return a.evaluateQuotes(ctx, st)
}

func (a *App) takeProfit(ctx context.Context, st market.State, pnl float64) error {
	a.metrics.TakeProfits.Inc()
	side, price, quantity := a.engine.CloseOrder(st.PositionQty, st.MarkPrice)
	a.log.Info("take profit triggered",
		zap.Float64("position_qty", st.PositionQty),
		zap.Float64("mark_price", st.MarkPrice),
		zap.Float64("unrealized_pnl", pnl),
		zap.String("close_side", string(side)),
		zap.Float64("close_price", price))
	a.journalEvent(journal.Event{
		Kind:          journal.KindTakeProfit,
		Symbol:        a.cfg.Trading.Symbol,
		MarkPrice:     st.MarkPrice,
		PositionQty:   st.PositionQty,
		AvgEntryPrice: st.AvgEntryPrice,
		UnrealizedPnL: pnl,
		Quantity:      quantity,
	})
	a.alerts.Notify(fmt.Sprintf("Take profit: closing %.4f %s at %.2f (pnl %.4f)",
		st.PositionQty, a.cfg.Trading.Symbol, price, pnl))

	if a.cfg.Trading.DryRun {
		a.log.Info("dry run: skipping close order")
		a.lastTakeProfit = time.Now()
		return nil
	}
	if err := a.executor.CancelAll(ctx, a.cfg.Trading.Symbol); err != nil {
		a.metrics.CancelFailed.Inc()
		return fmt.Errorf("take profit cancel sweep: %w", err)
	}
	a.metrics.CancelBatches.Inc()
	a.clearQuotes()
	if err := a.executor.ClosePosition(ctx, a.cfg.Trading.Symbol, side, price, quantity); err != nil {
		return err
	}
	a.lastTakeProfit = time.Now()
	return nil
}

func (a *App) inventoryStop(ctx context.Context, st market.State) error {
	a.metrics.InventoryStops.Inc()
	a.log.Warn("inventory stop active, not quoting",
		zap.Float64("position_qty", st.PositionQty),
		zap.Float64("stop_position", strategy.StopPosition(a.cfg.Risk)))
	a.journalEvent(journal.Event{
		Kind:        journal.KindInventoryStop,
		Symbol:      a.cfg.Trading.Symbol,
		MarkPrice:   st.MarkPrice,
		PositionQty: st.PositionQty,
	})
	if a.cfg.Trading.DryRun {
		return nil
	}
	// Sweep unconditionally. The quote belief can be empty while orders
	// still rest (a failed sweep on an earlier tick clears the belief),
	// and any fill here would grow the position further over the limit.
	// Loss protection on later ticks (once the position shrinks under
	// the stop) is what works it back down.
	if err := a.executor.CancelAll(ctx, a.cfg.Trading.Symbol); err != nil {
		a.metrics.CancelFailed.Inc()
		return fmt.Errorf("inventory stop cancel sweep: %w", err)
	}
	a.metrics.CancelBatches.Inc()
	a.clearQuotes()
	return nil
}

func (a *App) evaluateQuotes(ctx context.Context, st market.State) error {
	symbol := a.cfg.Trading.Symbol
	plan := a.engine.PlanQuotes(st.MarkPrice, st.PositionQty, st.AvgEntryPrice)
	if !strategy.NeedsRequote(a.quotes, st.MarkPrice, st.PositionQty, a.lastQty, a.engine.QtyTick()) {
		return nil
	}
	if plan.LossProtected {
		a.metrics.LossProtections.Inc()
		a.log.Info("loss protection active",
			zap.Float64("position_qty", st.PositionQty),
			zap.Float64("avg_entry_price", st.AvgEntryPrice),
			zap.Float64("bid", plan.Bid.Price),
			zap.Float64("ask", plan.Ask.Price))
		a.journalEvent(journal.Event{
			Kind:          journal.KindLossProtection,
			Symbol:        symbol,
			MarkPrice:     st.MarkPrice,
			PositionQty:   st.PositionQty,
			AvgEntryPrice: st.AvgEntryPrice,
			BidPrice:      plan.Bid.Price,
			AskPrice:      plan.Ask.Price,
		})
	}
	if a.cfg.Trading.DryRun {
		a.log.Info("dry run: would quote",
			zap.Float64("bid", plan.Bid.Price),
			zap.Float64("ask", plan.Ask.Price),
			zap.Float64("bid_qty", plan.Bid.Quantity),
			zap.Float64("ask_qty", plan.Ask.Quantity))
		// Track the planned prices as the quote belief so the requote
		// predicate behaves the same as a live session.
		bid, ask := plan.Bid.Price, plan.Ask.Price
		a.quotes = strategy.QuoteState{BidPrice: &bid, AskPrice: &ask}
		a.lastQty = st.PositionQty
		return nil
	}

	if err := a.executor.CancelAll(ctx, symbol); err != nil {
		a.metrics.CancelFailed.Inc()
		// The book state is unknown; drop the quote belief so the next
		// tick requotes, and place nothing on top of possible leftovers.
		a.clearQuotes()
		return fmt.Errorf("requote cancel sweep: %w", err)
	}
	a.metrics.CancelBatches.Inc()
	a.clearQuotes()

	result := a.executor.PlaceQuotes(ctx, symbol,
		exec.Quote{Side: orderly.SideBuy, Price: plan.Bid.Price, Quantity: plan.Bid.Quantity},
		exec.Quote{Side: orderly.SideSell, Price: plan.Ask.Price, Quantity: plan.Ask.Quantity})
	if result.Bid.Err == nil {
		price := plan.Bid.Price
		a.quotes.BidPrice = &price
		a.metrics.QuotesPlaced.Inc()
	} else {
		a.metrics.QuotesFailed.Inc()
	}
	if result.Ask.Err == nil {
		price := plan.Ask.Price
		a.quotes.AskPrice = &price
		a.metrics.QuotesPlaced.Inc()
	} else {
		a.metrics.QuotesFailed.Inc()
	}
	a.lastQty = st.PositionQty

	a.journalEvent(journal.Event{
		Kind:        journal.KindQuote,
		Symbol:      symbol,
		MarkPrice:   st.MarkPrice,
		PositionQty: st.PositionQty,
		BidPrice:    plan.Bid.Price,
		AskPrice:    plan.Ask.Price,
		Quantity:    plan.Bid.Quantity,
	})
	if a.timescale != nil {
		a.timescale.EnqueueQuote(timescale.QuoteEvent{
			Time:          time.Now().UTC(),
			Symbol:        symbol,
			BidPrice:      plan.Bid.Price,
			AskPrice:      plan.Ask.Price,
			HasBid:        a.quotes.BidPrice != nil,
			HasAsk:        a.quotes.AskPrice != nil,
			Quantity:      plan.Bid.Quantity,
			SpreadBps:     plan.Bid.SpreadBps,
			LossProtected: plan.LossProtected,
		})
	}
	a.saveSnapshot(st)
	return nil
}

func (a *App) record(st market.State, pnl float64) {
	a.journalEvent(journal.Event{
		Kind:          journal.KindTick,
		Symbol:        a.cfg.Trading.Symbol,
		MarkPrice:     st.MarkPrice,
		PositionQty:   st.PositionQty,
		AvgEntryPrice: st.AvgEntryPrice,
		UnrealizedPnL: pnl,
	})
	if a.timescale != nil {
		a.timescale.EnqueueTick(timescale.TickSnapshot{
			Time:          time.Now().UTC(),
			Symbol:        a.cfg.Trading.Symbol,
			MarkPrice:     st.MarkPrice,
			PositionQty:   st.PositionQty,
			AvgEntryPrice: st.AvgEntryPrice,
			UnrealizedPnL: pnl,
			Degraded:      st.PositionDegraded,
		})
	}
}

func (a *App) journalEvent(event journal.Event) {
	if err := a.journal.Append(context.Background(), event); err != nil {
		a.log.Warn("journal append failed", zap.Error(err))
	}
}

func (a *App) saveSnapshot(st market.State) {
	snapshot := state.QuoteSnapshot{
		Symbol:      a.cfg.Trading.Symbol,
		BidPrice:    a.quotes.BidPrice,
		AskPrice:    a.quotes.AskPrice,
		PositionQty: st.PositionQty,
		MarkPrice:   st.MarkPrice,
		UpdatedAtMS: time.Now().UnixMilli(),
	}
	if err := state.SaveQuoteSnapshot(context.Background(), a.store, snapshot); err != nil {
		a.log.Warn("quote snapshot save failed", zap.Error(err))
	}
}

func (a *App) clearQuotes() {
	a.quotes = strategy.QuoteState{}
}

// shutdown runs a best-effort cancel sweep on its own context; the run
// context is already cancelled when we get here.
func (a *App) shutdown() {
	if a.cfg.Trading.DryRun {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.log.Info("shutdown: canceling open orders")
	if err := a.venue.CancelAll(ctx, a.cfg.Trading.Symbol); err != nil {
		a.log.Warn("shutdown cancel sweep failed", zap.Error(err))
	}
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
