package orderly

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderly-mm-bot/internal/orderly/rest"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	seed := make([]byte, ed25519.SeedSize)
	signer, err := rest.NewSigner("ed25519:" + base58.Encode(seed))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	transport := rest.New(srv.URL, time.Second, zap.NewNop()).WithAuth("acct", "key", signer)
	return NewClient(transport, zap.NewNop()), srv
}

func TestMarkPriceFromRows(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"rows":[{"mark_price":2001.5}]}}`))
	}))
	price, err := client.MarkPrice(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("mark price: %v", err)
	}
	if price != 2001.5 {
		t.Fatalf("expected 2001.5, got %v", price)
	}
}

func TestMarkPriceFromFlatObject(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"mark_price":1999.25}}`))
	}))
	price, err := client.MarkPrice(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("mark price: %v", err)
	}
	if price != 1999.25 {
		t.Fatalf("expected 1999.25, got %v", price)
	}
}

func TestMarkPriceMissing(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	if _, err := client.MarkPrice(context.Background(), "PERP_ETH_USDC"); !errors.Is(err, ErrMarkPriceMissing) {
		t.Fatalf("expected ErrMarkPriceMissing, got %v", err)
	}
}

func TestMarketInfoDefaults(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	info, err := client.MarketInfo(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("market info: %v", err)
	}
	if info.PriceTick != 0.01 || info.QtyTick != 0.001 {
		t.Fatalf("expected defaults 0.01/0.001, got %+v", info)
	}
}

func TestMarketInfoPrefersQuoteTick(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"quote_tick":0.1,"price_tick":0.5,"base_tick":0.0001}}`))
	}))
	info, err := client.MarketInfo(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("market info: %v", err)
	}
	if info.PriceTick != 0.1 || info.QtyTick != 0.0001 {
		t.Fatalf("expected 0.1/0.0001, got %+v", info)
	}
}

func TestOpenOrdersFiltersTerminalStatuses(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"rows":[
			{"order_id":1,"side":"BUY","price":1998,"quantity":0.025,"status":"NEW"},
			{"order_id":2,"side":"SELL","price":2002,"quantity":0.025,"status":"FILLED"},
			{"order_id":3,"side":"SELL","price":2002,"quantity":0.025,"status":"CANCELLED"},
			{"order_id":4,"side":"SELL","price":2003,"quantity":0.025,"status":"REPLACED"}
		]}}`))
	}))
	orders, err := client.OpenOrders(context.Background(), "PERP_ETH_USDC")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 live orders, got %d", len(orders))
	}
	if orders[0].ID != 1 || orders[0].Side != SideBuy {
		t.Fatalf("unexpected first order %+v", orders[0])
	}
	if orders[1].ID != 4 {
		t.Fatalf("unexpected second order %+v", orders[1])
	}
}

func TestCreateOrderPayload(t *testing.T) {
	var got createOrderRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"success":true,"data":{"order_id":42}}`))
	}))
	ack, err := client.CreateOrder(context.Background(), "PERP_ETH_USDC", SideBuy, 1998.0, 0.025)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if ack.OrderID != 42 {
		t.Fatalf("expected order id 42, got %d", ack.OrderID)
	}
	if got.OrderType != "LIMIT" || got.Side != SideBuy || got.OrderPrice != 1998.0 || got.OrderQuantity != 0.025 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestCancelBatchChunks(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		w.Write([]byte(`{"success":true}`))
	}))
	ids := make([]int64, 12)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if err := client.CancelBatch(context.Background(), ids); err != nil {
		t.Fatalf("cancel batch: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 chunked requests, got %d", len(paths))
	}
	if n := strings.Count(paths[0], ","); n != 9 {
		t.Fatalf("expected 10 ids in first chunk, got %d separators", n)
	}
	if n := strings.Count(paths[1], ","); n != 1 {
		t.Fatalf("expected 2 ids in second chunk, got %d separators", n)
	}
}

func TestCancelAllSweepsOpenOrders(t *testing.T) {
	var batchCalls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/orders") {
			w.Write([]byte(`{"success":true,"data":{"rows":[
				{"order_id":7,"side":"BUY","price":1,"quantity":1,"status":"NEW"},
				{"order_id":8,"side":"SELL","price":2,"quantity":1,"status":"NEW"}
			]}}`))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/v1/batch-order") {
			batchCalls++
		}
		w.Write([]byte(`{"success":true}`))
	}))
	if err := client.CancelAll(context.Background(), "PERP_ETH_USDC"); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if batchCalls != 1 {
		t.Fatalf("expected 1 batch cancel call, got %d", batchCalls)
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatalf("side opposite is wrong")
	}
}
