package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSignedRequestCarriesAuthHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	signer, err := NewSigner(testSecret())
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	client := New(srv.URL, time.Second, zap.NewNop()).WithAuth("0xacct", "ed25519:pub", signer)
	if err := client.Get(context.Background(), "/v1/orders?symbol=PERP_ETH_USDC", true, nil); err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, h := range []string{"orderly-account-id", "orderly-key", "orderly-signature", "orderly-timestamp"} {
		if gotHeaders.Get(h) == "" {
			t.Fatalf("missing header %s", h)
		}
	}
	if gotHeaders.Get("orderly-account-id") != "0xacct" {
		t.Fatalf("unexpected account header %q", gotHeaders.Get("orderly-account-id"))
	}
}

func TestUnsignedRequestHasNoAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("orderly-signature") != "" {
			t.Errorf("public request must not be signed")
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second, zap.NewNop())
	if err := client.Get(context.Background(), "/v1/public/futures/PERP_ETH_USDC", false, nil); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestSignedRequestWithoutCredentialsFails(t *testing.T) {
	client := New("http://localhost:0", time.Second, zap.NewNop())
	if err := client.Get(context.Background(), "/v1/orders", true, nil); err == nil {
		t.Fatalf("expected error for signed request without signer")
	}
}

func TestDeleteContentType(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	signer, _ := NewSigner(testSecret())
	client := New(srv.URL, time.Second, zap.NewNop()).WithAuth("a", "k", signer)
	if err := client.Delete(context.Background(), "/v1/order?order_id=1&symbol=X", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected delete content type %q", gotContentType)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"code":-1104,"message":"order already cancelled"}`))
	}))
	defer srv.Close()

	signer, _ := NewSigner(testSecret())
	client := New(srv.URL, time.Second, zap.NewNop()).WithAuth("a", "k", signer)
	err := client.Delete(context.Background(), "/v1/order?order_id=1&symbol=X", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Code != -1104 {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
	if !IsBadRequest(err) {
		t.Fatalf("expected bad-request classification")
	}
}

func TestIsBadRequestIgnoresOtherFaults(t *testing.T) {
	if IsBadRequest(errors.New("network down")) {
		t.Fatalf("plain errors are not bad requests")
	}
	if IsBadRequest(&APIError{Status: http.StatusInternalServerError}) {
		t.Fatalf("500 is not a bad request")
	}
}
