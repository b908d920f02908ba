// Package bybitclient implements the market data and trading ports on the
// Bybit v5 REST API for linear perpetuals.
package bybitclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://api.bybit.com"
	baseURLTestnet    = "https://api-testnet.bybit.com"

	category          = "linear"
	defaultRecvWindow = "5000"

	// retCode returned when the requested stop-loss equals the current one
	codeNotModified = 34040
)

// Client implements ports.MarketDataProvider and ports.TradingAPI over Bybit v5 REST.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secretKey  string
	recvWindow string
	logger     ports.Logger
	now        func() time.Time
}

// Config holds configuration specific to the Bybit client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string        // Overrides the production/testnet URL when set
	RecvWindow string        // Milliseconds, defaults to 5000
	Timeout    time.Duration // HTTP timeout, defaults to 10s
	Logger     ports.Logger
}

// New creates a new Bybit client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Bybit client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	baseURL := baseURLProduction
	switch {
	case cfg.BaseURL != "":
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		baseURL = baseURLTestnet
	}
	recv := cfg.RecvWindow
	if recv == "" {
		recv = defaultRecvWindow
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.Logger.Info(context.Background(), "Bybit client configured", map[string]interface{}{"baseURL": baseURL})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		recvWindow: recv,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

// sign computes the v5 HMAC-SHA256 signature of timestamp+key+recvWindow+payload.
func sign(secret, timestamp, apiKey, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	RetCode int64           `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// call performs one REST request. GET parameters go to the query string,
// POST parameters to a JSON body; private calls are signed over whichever
// carries the payload.
func (c *Client) call(ctx context.Context, op, method, path string, params map[string]interface{}, private bool, out interface{}) error {
	var payload string
	var body io.Reader
	target := c.baseURL + path

	if method == http.MethodGet {
		q := url.Values{}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, fmt.Sprint(params[k]))
		}
		payload = q.Encode()
		if payload != "" {
			target += "?" + payload
		}
	} else {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
		}
		payload = string(raw)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	if private {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", c.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
		req.Header.Set("X-BAPI-SIGN-TYPE", "2")
		req.Header.Set("X-BAPI-SIGN", sign(c.secretKey, ts, c.apiKey, c.recvWindow, payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return c.handleError(ctx, fmt.Errorf("http status %d: %w", resp.StatusCode, ports.ErrExchangeUnavailable), op)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		return c.handleError(ctx, fmt.Errorf("http status %d: %w", resp.StatusCode, ports.ErrRateLimited), op)
	}

	var env envelope
	if err := json.Unmarshal(reply, &env); err != nil {
		return c.handleError(ctx, fmt.Errorf("decoding response: %w: %w", ports.ErrTransient, err), op)
	}
	if env.RetCode != 0 {
		return c.handleError(ctx, &ports.ExchangeError{Op: op, Code: env.RetCode, Message: env.RetMsg}, op)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return c.handleError(ctx, fmt.Errorf("decoding result: %w: %w", ports.ErrTransient, err), op)
		}
	}
	return nil
}

// handleError translates Bybit API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var exErr *ports.ExchangeError
	if errors.As(err, &exErr) {
		fields["apiErrorCode"] = exErr.Code
		fields["apiErrorMessage"] = exErr.Message

		var mappedErr error
		switch {
		case exErr.Code == 10006 || exErr.Code == 10018: // Too many visits
			mappedErr = ports.ErrRateLimited
		case exErr.Code == 10002: // Request time exceeds the time window
			mappedErr = ports.ErrTimeout
		case exErr.Code == 10003 || exErr.Code == 10004 || exErr.Code == 10005 || exErr.Code == 33004:
			mappedErr = ports.ErrAuthenticationFailed
		case exErr.Code == 10016: // Server error
			mappedErr = ports.ErrExchangeUnavailable
		case exErr.Code == 10001: // Params error
			mappedErr = ports.ErrInvalidRequest
		case exErr.Code == 110004 || exErr.Code == 110007 || exErr.Code == 110012 || exErr.Code == 110044:
			mappedErr = ports.ErrInsufficientFunds
		case exErr.Code == 110001 || exErr.Code == 110025:
			mappedErr = ports.ErrPositionNotFound
		case exErr.Code >= 110000 && exErr.Code < 200000, exErr.Code >= 30000 && exErr.Code < 40000:
			mappedErr = ports.ErrOrderRejected
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, operation+": API error", fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, exErr)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, ports.ErrExchangeUnavailable), errors.Is(err, ports.ErrRateLimited), errors.Is(err, ports.ErrTransient):
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	}
	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.call(ctx, op, http.MethodGet, "/v5/market/time", nil, false, nil); err != nil {
		return err
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetTickerPrice retrieves the last traded price for a symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	var res struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	params := map[string]interface{}{"category": category, "symbol": symbol}
	if err := c.call(ctx, op, http.MethodGet, "/v5/market/tickers", params, false, &res); err != nil {
		return 0, err
	}
	if len(res.List) == 0 {
		return 0, fmt.Errorf("%s failed: %w: %s", op, ports.ErrPriceUnavailable, symbol)
	}
	price, err := strconv.ParseFloat(res.List[0].LastPrice, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%s failed: %w: could not parse price %q for %s", op, ports.ErrPriceUnavailable, res.List[0].LastPrice, symbol)
	}
	return price, nil
}

// GetLotSizeRule reads the lot size filter of symbol.
func (c *Client) GetLotSizeRule(ctx context.Context, symbol string) (*domain.LotSizeRule, error) {
	op := "GetLotSizeRule"
	var res struct {
		List []struct {
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				MaxOrderQty string `json:"maxOrderQty"`
				QtyStep     string `json:"qtyStep"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	params := map[string]interface{}{"category": category, "symbol": symbol}
	if err := c.call(ctx, op, http.MethodGet, "/v5/market/instruments-info", params, false, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("%s failed: %w: unknown instrument %s", op, ports.ErrConfigurationError, symbol)
	}
	f := res.List[0].LotSizeFilter
	minQty, err1 := strconv.ParseFloat(f.MinOrderQty, 64)
	maxQty, err2 := strconv.ParseFloat(f.MaxOrderQty, 64)
	step, err3 := strconv.ParseFloat(f.QtyStep, 64)
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("%s failed for %s: %w: %w", op, symbol, ports.ErrConfigurationError, err)
	}
	return &domain.LotSizeRule{MinQty: minQty, MaxQty: maxQty, QtyStep: step}, nil
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func (c *Client) createOrder(ctx context.Context, op string, params map[string]interface{}) (*ports.OrderResponse, error) {
	params["category"] = category
	params["positionIdx"] = 0
	var res orderResult
	if err := c.call(ctx, op, http.MethodPost, "/v5/order/create", params, true, &res); err != nil {
		return nil, err
	}
	qty, _ := strconv.ParseFloat(fmt.Sprint(params["qty"]), 64)
	price, _ := strconv.ParseFloat(fmt.Sprint(params["price"]), 64)
	resp := &ports.OrderResponse{
		OrderID:       res.OrderID,
		Symbol:        fmt.Sprint(params["symbol"]),
		ClientOrderID: res.OrderLinkID,
		Price:         price,
		Quantity:      qty,
		Status:        "New",
		Side:          fmt.Sprint(params["side"]),
		Timestamp:     c.now(),
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": resp.Symbol, "side": resp.Side, "qty": params["qty"], "orderID": resp.OrderID,
	})
	return resp, nil
}

// OpenPosition places a market order with stop-loss and take-profit attached.
func (c *Client) OpenPosition(ctx context.Context, req ports.MarketOrderRequest) (*ports.OrderResponse, error) {
	params := map[string]interface{}{
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"orderType": "Market",
		"qty":       req.Quantity,
	}
	if req.StopLoss != "" {
		params["stopLoss"] = req.StopLoss
	}
	if req.TakeProfit != "" {
		params["takeProfit"] = req.TakeProfit
	}
	if req.StopLoss != "" || req.TakeProfit != "" {
		params["tpslMode"] = "Full"
	}
	if req.ClientOrderID != "" {
		params["orderLinkId"] = req.ClientOrderID
	}
	return c.createOrder(ctx, "OpenPosition", params)
}

// ClosePosition submits a reduce-only market order.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	return c.createOrder(ctx, "ClosePosition", map[string]interface{}{
		"symbol":     symbol,
		"side":       string(side),
		"orderType":  "Market",
		"qty":        quantity,
		"reduceOnly": true,
	})
}

// PlaceLimitOrder places a GTC limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, req ports.LimitOrderRequest) (*ports.OrderResponse, error) {
	params := map[string]interface{}{
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   "Limit",
		"qty":         req.Quantity,
		"price":       req.Price,
		"timeInForce": "GTC",
	}
	if req.ClientOrderID != "" {
		params["orderLinkId"] = req.ClientOrderID
	}
	return c.createOrder(ctx, "PlaceLimitOrder", params)
}

// UpdateStopLoss moves the stop-loss of the open position on symbol.
func (c *Client) UpdateStopLoss(ctx context.Context, symbol string, stopPrice string) error {
	op := "UpdateStopLoss"
	params := map[string]interface{}{
		"category":    category,
		"symbol":      symbol,
		"stopLoss":    stopPrice,
		"tpslMode":    "Full",
		"positionIdx": 0,
	}
	err := c.call(ctx, op, http.MethodPost, "/v5/position/trading-stop", params, true, nil)
	var exErr *ports.ExchangeError
	if errors.As(err, &exErr) && exErr.Code == codeNotModified {
		c.logger.Debug(ctx, op+": stop-loss already at requested level", map[string]interface{}{"symbol": symbol, "stopPrice": stopPrice})
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "stopPrice": stopPrice})
	return nil
}

// GetOpenPosition returns the open position on symbol, or nil when flat.
func (c *Client) GetOpenPosition(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	op := "GetOpenPosition"
	var res struct {
		List []struct {
			Symbol     string `json:"symbol"`
			Side       string `json:"side"`
			Size       string `json:"size"`
			AvgPrice   string `json:"avgPrice"`
			MarkPrice  string `json:"markPrice"`
			StopLoss   string `json:"stopLoss"`
			TakeProfit string `json:"takeProfit"`
		} `json:"list"`
	}
	params := map[string]interface{}{"category": category, "symbol": symbol}
	if err := c.call(ctx, op, http.MethodGet, "/v5/position/list", params, true, &res); err != nil {
		return nil, err
	}

	for _, p := range res.List {
		size := parseOrZero(p.Size)
		if size <= 0 {
			continue
		}
		side, err := domain.ParseOrderSide(p.Side)
		if err != nil {
			c.logger.Warn(ctx, op+": skipping position with unknown side", map[string]interface{}{"symbol": symbol, "side": p.Side})
			continue
		}
		return &ports.PositionInfo{
			Symbol:     p.Symbol,
			Side:       side,
			Size:       size,
			EntryPrice: parseOrZero(p.AvgPrice),
			MarkPrice:  parseOrZero(p.MarkPrice),
			StopLoss:   parseOrZero(p.StopLoss),
			TakeProfit: parseOrZero(p.TakeProfit),
		}, nil
	}
	c.logger.Debug(ctx, op+": No position found for symbol", map[string]interface{}{"symbol": symbol})
	return nil, nil
}

// GetKlines retrieves klines ordered oldest to newest.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	code, step, err := bybitInterval(interval)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrConfigurationError, err)
	}
	var res struct {
		List [][]string `json:"list"`
	}
	params := map[string]interface{}{"category": category, "symbol": symbol, "interval": code, "limit": limit}
	if err := c.call(ctx, op, http.MethodGet, "/v5/market/kline", params, false, &res); err != nil {
		return nil, err
	}
	if len(res.List) == 0 {
		return nil, fmt.Errorf("%s failed: %w: no klines for %s %s", op, ports.ErrDataUnavailable, symbol, interval)
	}

	klines := make([]*domain.Kline, len(res.List))
	now := c.now()
	// the venue returns newest first
	for i, row := range res.List {
		k, err := translateKline(row, symbol, interval, step, now)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrDataUnavailable, err)
		}
		klines[len(res.List)-1-i] = k
	}
	return klines, nil
}

func bybitInterval(interval string) (string, time.Duration, error) {
	switch interval {
	case "1m":
		return "1", time.Minute, nil
	case "5m":
		return "5", 5 * time.Minute, nil
	case "15m":
		return "15", 15 * time.Minute, nil
	case "30m":
		return "30", 30 * time.Minute, nil
	case "1h":
		return "60", time.Hour, nil
	case "4h":
		return "240", 4 * time.Hour, nil
	case "1d":
		return "D", 24 * time.Hour, nil
	default:
		return "", 0, fmt.Errorf("unsupported interval %q", interval)
	}
}

func translateKline(row []string, symbol, interval string, step time.Duration, now time.Time) (*domain.Kline, error) {
	if len(row) < 6 {
		return nil, fmt.Errorf("kline row has %d fields, want at least 6", len(row))
	}
	start, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing start time '%s': %w", row[0], err)
	}
	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing kline field %d '%s': %w", i+1, row[i+1], err)
		}
		values[i] = v
	}
	open := time.UnixMilli(start)
	closeTime := open.Add(step - time.Millisecond)
	return &domain.Kline{
		OpenTime:  open,
		CloseTime: closeTime,
		Symbol:    symbol,
		Interval:  interval,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		IsFinal:   closeTime.Before(now),
	}, nil
}

func parseOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
