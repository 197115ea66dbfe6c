package orderly

import "encoding/json"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position on this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// MarketInfo is the per-symbol tick granularity, fetched once at startup
// and immutable for the process lifetime.
type MarketInfo struct {
	PriceTick float64
	QtyTick   float64
}

// Position is a zero value when the account holds no open position.
// Qty is signed, positive for long.
type Position struct {
	Qty           float64
	AvgEntryPrice float64
}

type Order struct {
	ID       int64
	Side     Side
	Price    float64
	Quantity float64
	Status   string
}

type OrderAck struct {
	OrderID int64
}

// envelope is the common Orderly response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// markPriceData covers both shapes the futures endpoint returns: a rows
// array for the all-symbols query and a flat object for a single symbol.
type markPriceData struct {
	MarkPrice *float64 `json:"mark_price"`
	Rows      []struct {
		MarkPrice float64 `json:"mark_price"`
	} `json:"rows"`
}

// marketInfoData has venue-dependent field names for the price tick;
// quote_tick wins over price_tick, absent values take venue defaults.
type marketInfoData struct {
	QuoteTick *float64 `json:"quote_tick"`
	PriceTick *float64 `json:"price_tick"`
	BaseTick  *float64 `json:"base_tick"`
}

type positionData struct {
	PositionQty      float64 `json:"position_qty"`
	AverageOpenPrice float64 `json:"average_open_price"`
}

type orderRow struct {
	OrderID  int64   `json:"order_id"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Status   string  `json:"status"`
}

type ordersData struct {
	Rows []orderRow `json:"rows"`
}

type createOrderData struct {
	OrderID int64 `json:"order_id"`
}

type createOrderRequest struct {
	Symbol        string  `json:"symbol"`
	OrderType     string  `json:"order_type"`
	Side          Side    `json:"side"`
	OrderPrice    float64 `json:"order_price"`
	OrderQuantity float64 `json:"order_quantity"`
}

// terminalStatuses are order states that no longer rest on the book.
var terminalStatuses = map[string]struct{}{
	"FILLED":         {},
	"CANCELLED":      {},
	"REJECTED":       {},
	"PARTIAL_FILLED": {},
}

func isTerminal(status string) bool {
	_, ok := terminalStatuses[status]
	return ok
}
