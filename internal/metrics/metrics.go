package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	QuotesPlaced    Counter
	QuotesFailed    Counter
	CancelBatches   Counter
	CancelFailed    Counter
	TakeProfits     Counter
	InventoryStops  Counter
	LossProtections Counter
	TickErrors      Counter

	MarkPrice     Gauge
	PositionQty   Gauge
	UnrealizedPnL Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		QuotesPlaced:    n,
		QuotesFailed:    n,
		CancelBatches:   n,
		CancelFailed:    n,
		TakeProfits:     n,
		InventoryStops:  n,
		LossProtections: n,
		TickErrors:      n,
		MarkPrice:       g,
		PositionQty:     g,
		UnrealizedPnL:   g,
	}
}
