// Package orderly is the typed Orderly API surface the engine consumes.
// Every response shape is an explicit schema; nothing is parsed ad hoc.
package orderly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"orderly-mm-bot/internal/orderly/rest"

	"go.uber.org/zap"
)

const (
	defaultPriceTick = 0.01
	defaultQtyTick   = 0.001

	// The batch-cancel endpoint accepts at most 10 ids per request.
	maxCancelBatch = 10
)

var ErrMarkPriceMissing = errors.New("mark price missing from response")

type Client struct {
	rest *rest.Client
	log  *zap.Logger
}

func NewClient(restClient *rest.Client, log *zap.Logger) *Client {
	return &Client{rest: restClient, log: log}
}

// MarkPrice fetches the venue mark price for symbol. Transport errors
// propagate; the control loop owns the retry policy.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	var resp envelope
	if err := c.rest.Get(ctx, "/v1/public/futures/"+symbol, false, &resp); err != nil {
		return 0, err
	}
	var data markPriceData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return 0, fmt.Errorf("decode mark price: %w", err)
	}
	if len(data.Rows) > 0 {
		return data.Rows[0].MarkPrice, nil
	}
	if data.MarkPrice != nil {
		return *data.MarkPrice, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMarkPriceMissing, symbol)
}

// MarketInfo returns the symbol's tick sizes, defaulting any field the
// venue omits.
func (c *Client) MarketInfo(ctx context.Context, symbol string) (MarketInfo, error) {
	var resp envelope
	if err := c.rest.Get(ctx, "/v1/public/info/"+symbol, false, &resp); err != nil {
		return MarketInfo{}, err
	}
	var data marketInfoData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return MarketInfo{}, fmt.Errorf("decode market info: %w", err)
	}
	info := MarketInfo{PriceTick: defaultPriceTick, QtyTick: defaultQtyTick}
	switch {
	case data.QuoteTick != nil && *data.QuoteTick > 0:
		info.PriceTick = *data.QuoteTick
	case data.PriceTick != nil && *data.PriceTick > 0:
		info.PriceTick = *data.PriceTick
	}
	if data.BaseTick != nil && *data.BaseTick > 0 {
		info.QtyTick = *data.BaseTick
	}
	return info, nil
}

// Position returns the current position for symbol, zero-valued when the
// account is flat.
func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	var resp envelope
	if err := c.rest.Get(ctx, "/v1/position/"+symbol, true, &resp); err != nil {
		return Position{}, err
	}
	var data positionData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return Position{}, fmt.Errorf("decode position: %w", err)
	}
	return Position{Qty: data.PositionQty, AvgEntryPrice: data.AverageOpenPrice}, nil
}

// OpenOrders returns only orders still resting on the book; terminal
// states are filtered out here so callers never see them.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	var resp envelope
	if err := c.rest.Get(ctx, "/v1/orders?symbol="+symbol, true, &resp); err != nil {
		return nil, err
	}
	var data ordersData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	orders := make([]Order, 0, len(data.Rows))
	for _, row := range data.Rows {
		if isTerminal(row.Status) {
			continue
		}
		orders = append(orders, Order{
			ID:       row.OrderID,
			Side:     Side(row.Side),
			Price:    row.Price,
			Quantity: row.Quantity,
			Status:   row.Status,
		})
	}
	return orders, nil
}

// CreateOrder places a resting limit order.
func (c *Client) CreateOrder(ctx context.Context, symbol string, side Side, price, quantity float64) (OrderAck, error) {
	req := createOrderRequest{
		Symbol:        symbol,
		OrderType:     "LIMIT",
		Side:          side,
		OrderPrice:    price,
		OrderQuantity: quantity,
	}
	var resp envelope
	if err := c.rest.Post(ctx, "/v1/order", req, &resp); err != nil {
		return OrderAck{}, err
	}
	var data createOrderData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return OrderAck{}, fmt.Errorf("decode order ack: %w", err)
	}
	return OrderAck{OrderID: data.OrderID}, nil
}

// CancelOrder cancels a single order. The venue answers an
// already-resolved order with a bad-request error; classify with
// rest.IsBadRequest.
func (c *Client) CancelOrder(ctx context.Context, orderID int64, symbol string) error {
	path := fmt.Sprintf("/v1/order?order_id=%d&symbol=%s", orderID, symbol)
	return c.rest.Delete(ctx, path, nil)
}

// CancelBatch cancels up to maxCancelBatch orders in one request,
// chunking larger id sets.
func (c *Client) CancelBatch(ctx context.Context, orderIDs []int64) error {
	for len(orderIDs) > 0 {
		n := len(orderIDs)
		if n > maxCancelBatch {
			n = maxCancelBatch
		}
		ids := make([]string, n)
		for i, id := range orderIDs[:n] {
			ids[i] = strconv.FormatInt(id, 10)
		}
		path := "/v1/batch-order?order_ids=" + strings.Join(ids, ",")
		if err := c.rest.Delete(ctx, path, nil); err != nil {
			return err
		}
		orderIDs = orderIDs[n:]
	}
	return nil
}

// CancelAll is the shutdown-path bulk cancel: best effort, per-order
// failures are logged and do not stop the sweep.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	if err := c.CancelBatch(ctx, ids); err != nil {
		if c.log != nil {
			c.log.Warn("batch cancel failed, falling back to single cancels", zap.Error(err))
		}
		for _, id := range ids {
			if err := c.CancelOrder(ctx, id, symbol); err != nil && !rest.IsBadRequest(err) {
				if c.log != nil {
					c.log.Warn("cancel failed", zap.Int64("order_id", id), zap.Error(err))
				}
			}
		}
	}
	return nil
}
