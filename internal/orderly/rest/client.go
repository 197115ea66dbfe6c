// Package rest is the signed HTTP transport to the Orderly venue. It knows
// request signing and status-code mapping, nothing about trading semantics.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is a non-2xx venue response. Code is Orderly's application
// error code when the body parsed, zero otherwise.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("orderly api error: http %d code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("orderly api error: http %d", e.Status)
}

// IsBadRequest reports whether err is a 4xx "bad request" class venue
// error. A cancel failing this way means the order was already resolved
// by the venue, which callers treat as success.
func IsBadRequest(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusBadRequest
	}
	return false
}

type Client struct {
	baseURL   string
	http      *http.Client
	accountID string
	apiKey    string
	signer    *Signer
	log       *zap.Logger
}

// New builds an unauthenticated transport; public endpoints work
// immediately, signed endpoints require WithAuth first.
func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *Client) WithAuth(accountID, apiKey string, signer *Signer) *Client {
	c.accountID = strings.TrimSpace(accountID)
	c.apiKey = strings.TrimSpace(apiKey)
	c.signer = signer
	return c
}

// Get fetches path (including any query string). Signed requests carry
// the Orderly auth headers.
func (c *Client) Get(ctx context.Context, path string, signed bool, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, signed, out)
}

// Post sends payload as compact JSON. The signed body bytes and the sent
// body bytes are the same buffer, so the signature always matches.
func (c *Client) Post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, body, true, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, true, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, signed bool, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	switch method {
	case http.MethodPost, http.MethodPut:
		req.Header.Set("Content-Type", "application/json")
	case http.MethodDelete:
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		if c.signer == nil {
			return errors.New("signed request requires credentials")
		}
		ts := time.Now().UnixMilli()
		req.Header.Set("orderly-account-id", c.accountID)
		req.Header.Set("orderly-key", c.apiKey)
		req.Header.Set("orderly-timestamp", strconv.FormatInt(ts, 10))
		req.Header.Set("orderly-signature", c.signer.Sign(ts, method, path, string(body)))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var parsed struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if len(apiErr.Message) > 512 {
			apiErr.Message = apiErr.Message[:512]
		}
	}
	return apiErr
}
