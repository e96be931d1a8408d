// Package gateway talks to the futures trade gateway over JSON/HTTP.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pathAccount      = "/future/account"
	pathPositions    = "/future/positions"
	pathOpenOrders   = "/future/orders/open"
	pathClosedOrders = "/future/orders/closed"
	pathOpenLong     = "/future/orders/open_long"
	pathOpenShort    = "/future/orders/open_short"
	pathCancel       = "/future/orders/cancel"

	headerRequestID = "X-Request-Id"
)

var ErrEmptyURL = errors.New("gateway: empty trader client url")

type Conf struct {
	URL     string
	Timeout time.Duration
}

type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewTradeClient accepts "host:port" as well as a full URL.
func NewTradeClient(conf Conf, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(conf.URL)
	if raw == "" {
		return nil, ErrEmptyURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse url %q: %w", conf.URL, err)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: conf.Timeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Account(ctx context.Context, scope string) (Account, error) {
	var acc Account
	err := c.get(ctx, pathAccount, url.Values{"scope": {scope}}, &acc)
	return acc, err
}

func (c *Client) Positions(ctx context.Context, scope string) ([]Position, error) {
	var out []Position
	if err := c.get(ctx, pathPositions, url.Values{"scope": {scope}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OpenOrders(ctx context.Context, instrument string) ([]Order, error) {
	var out []Order
	if err := c.get(ctx, pathOpenOrders, url.Values{"instrument": {instrument}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClosedOrders(ctx context.Context, instrument string) ([]Order, error) {
	var out []Order
	if err := c.get(ctx, pathClosedOrders, url.Values{"instrument": {instrument}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OpenLong(ctx context.Context, instrument string, price float64, volume int) (OrderResponse, error) {
	var resp OrderResponse
	err := c.post(ctx, pathOpenLong, orderRequest{Instrument: instrument, Price: price, Volume: volume}, &resp)
	return resp, err
}

func (c *Client) OpenShort(ctx context.Context, instrument string, price float64, volume int) (OrderResponse, error) {
	var resp OrderResponse
	err := c.post(ctx, pathOpenShort, orderRequest{Instrument: instrument, Price: price, Volume: volume}, &resp)
	return resp, err
}

func (c *Client) CancelOrder(ctx context.Context, instrument, orderID string) (OrderResponse, error) {
	var resp OrderResponse
	err := c.post(ctx, pathCancel, cancelRequest{Instrument: instrument, OrderID: orderID}, &resp)
	return resp, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.endpoint(path)
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path).String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	reqID := uuid.NewString()
	req.Header.Set(headerRequestID, reqID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", req.URL.Path, err)
	}
	c.logger.Debug("gateway call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if resp.StatusCode >= http.StatusBadRequest {
		return parseError(resp.StatusCode, body, env, decodeErr)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response %s: %w", req.URL.Path, decodeErr)
	}
	if env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	return &u
}

func parseError(status int, body []byte, env envelope, decodeErr error) error {
	if decodeErr == nil && env.Msg != "" {
		return &APIError{Status: status, Code: env.Code, Msg: env.Msg}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Msg: msg}
}
