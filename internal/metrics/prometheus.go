package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "orderly_mm_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry        *prometheus.Registry
	quotesPlaced    prometheus.Counter
	quotesFailed    prometheus.Counter
	cancelBatches   prometheus.Counter
	cancelFailed    prometheus.Counter
	takeProfits     prometheus.Counter
	inventoryStops  prometheus.Counter
	lossProtections prometheus.Counter
	tickErrors      prometheus.Counter
	markPrice       prometheus.Gauge
	positionQty     prometheus.Gauge
	unrealizedPnL   prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	quotesPlaced := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "quotes_placed_total",
		Help:      "Total number of quote orders placed.",
	})
	quotesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "quotes_failed_total",
		Help:      "Total number of quote placement failures.",
	})
	cancelBatches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "cancel_batches_total",
		Help:      "Total number of cancel-all sweeps run.",
	})
	cancelFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "cancel_failed_total",
		Help:      "Total number of cancel-all sweeps that left orders open.",
	})
	takeProfits := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "take_profits_total",
		Help:      "Total number of take-profit exits triggered.",
	})
	inventoryStops := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "inventory_stops_total",
		Help:      "Total number of ticks halted by the inventory stop.",
	})
	lossProtections := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "loss_protections_total",
		Help:      "Total number of quote plans with loss protection applied.",
	})
	tickErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "tick_errors_total",
		Help:      "Total number of loop iterations aborted by an error.",
	})
	markPrice := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "mark_price",
		Help:      "Latest sampled mark price.",
	})
	positionQty := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "position_qty",
		Help:      "Latest sampled signed position quantity.",
	})
	unrealizedPnL := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "unrealized_pnl_usd",
		Help:      "Latest unrealized PnL in USD.",
	})

	registry.MustRegister(quotesPlaced, quotesFailed, cancelBatches, cancelFailed,
		takeProfits, inventoryStops, lossProtections, tickErrors,
		markPrice, positionQty, unrealizedPnL)

	m := &Metrics{
		QuotesPlaced:    promCounter{quotesPlaced},
		QuotesFailed:    promCounter{quotesFailed},
		CancelBatches:   promCounter{cancelBatches},
		CancelFailed:    promCounter{cancelFailed},
		TakeProfits:     promCounter{takeProfits},
		InventoryStops:  promCounter{inventoryStops},
		LossProtections: promCounter{lossProtections},
		TickErrors:      promCounter{tickErrors},
		MarkPrice:       promGauge{markPrice},
		PositionQty:     promGauge{positionQty},
		UnrealizedPnL:   promGauge{unrealizedPnL},
	}

	return &Prometheus{
		Metrics:         m,
		registry:        registry,
		quotesPlaced:    quotesPlaced,
		quotesFailed:    quotesFailed,
		cancelBatches:   cancelBatches,
		cancelFailed:    cancelFailed,
		takeProfits:     takeProfits,
		inventoryStops:  inventoryStops,
		lossProtections: lossProtections,
		tickErrors:      tickErrors,
		markPrice:       markPrice,
		positionQty:     positionQty,
		unrealizedPnL:   unrealizedPnL,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
