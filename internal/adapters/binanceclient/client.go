// Package binanceclient implements the market data and trading ports on
// Binance USDⓈ-M futures through go-binance.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements ports.MarketDataProvider and ports.TradingAPI using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{futuresClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1001, -1007: // Disconnected / backend timeout
			mappedErr = ports.ErrExchangeUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature or API-key invalid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrConfigurationError
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2021, -2022, -4003, -4014, -4164: // Order would be rejected by the matching engine
			mappedErr = ports.ErrOrderRejected
		case -2019, -3005, -4047: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4044, -2013:
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		exErr := &ports.ExchangeError{Op: operation, Code: apiErr.Code, Message: apiErr.Message}
		c.logger.Error(ctx, err, operation+": API error", fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, exErr)
	}

	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTransient, err)
	}

	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}

func toBinanceSide(side domain.OrderSide) futures.SideType {
	if side == domain.Sell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, fmt.Errorf("%s failed: %w: %s", op, ports.ErrPriceUnavailable, symbol)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%s failed: %w: could not parse price %q for %s", op, ports.ErrPriceUnavailable, tickers[0].LastPrice, symbol)
	}
	return price, nil
}

// GetLotSizeRule reads the LOT_SIZE filter of symbol from the exchange info.
func (c *Client) GetLotSizeRule(ctx context.Context, symbol string) (*domain.LotSizeRule, error) {
	op := "GetLotSizeRule"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		f := s.LotSizeFilter()
		if f == nil {
			break
		}
		rule, err := parseLotSize(f.MinQuantity, f.MaxQuantity, f.StepSize)
		if err != nil {
			return nil, fmt.Errorf("%s failed for %s: %w: %w", op, symbol, ports.ErrConfigurationError, err)
		}
		return rule, nil
	}
	return nil, fmt.Errorf("%s failed: %w: no lot size filter for %s", op, ports.ErrConfigurationError, symbol)
}

func parseLotSize(minQty, maxQty, step string) (*domain.LotSizeRule, error) {
	lo, err := strconv.ParseFloat(minQty, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing min quantity '%s': %w", minQty, err)
	}
	hi, err := strconv.ParseFloat(maxQty, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing max quantity '%s': %w", maxQty, err)
	}
	st, err := strconv.ParseFloat(step, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing step size '%s': %w", step, err)
	}
	return &domain.LotSizeRule{MinQty: lo, MaxQty: hi, QtyStep: st}, nil
}

// OpenPosition places a market order followed by close-position stop-loss
// and take-profit orders. Binance has no attached protective levels on
// market orders, so a failure placing them is reported after the entry has
// filled as ports.ErrPositionUnprotected together with the fill; the caller
// still owns the position.
func (c *Client) OpenPosition(ctx context.Context, req ports.MarketOrderRequest) (*ports.OrderResponse, error) {
	op := "OpenPosition"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toBinanceSide(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(req.Quantity)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": req.Symbol, "side": req.Side, "quantity": req.Quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice,
	})

	closing := toBinanceSide(req.Side.Opposite())
	if req.StopLoss != "" {
		if err := c.placeClosePositionOrder(ctx, req.Symbol, closing, futures.OrderTypeStopMarket, req.StopLoss); err != nil {
			return resp, fmt.Errorf("%w: %w", ports.ErrPositionUnprotected, c.handleError(ctx, err, op+" stop-loss"))
		}
	}
	if req.TakeProfit != "" {
		if err := c.placeClosePositionOrder(ctx, req.Symbol, closing, futures.OrderTypeTakeProfitMarket, req.TakeProfit); err != nil {
			return resp, fmt.Errorf("%w: %w", ports.ErrPositionUnprotected, c.handleError(ctx, err, op+" take-profit"))
		}
	}
	return resp, nil
}

func (c *Client) placeClosePositionOrder(ctx context.Context, symbol string, side futures.SideType, orderType futures.OrderType, stopPrice string) error {
	_, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(orderType).
		StopPrice(stopPrice).
		ClosePosition(true).
		Do(ctx)
	return err
}

// ClosePosition submits a reduce-only market order.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "ClosePosition"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(toBinanceSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID})

	// leftover close-position stops would otherwise fire against a later position
	if err := c.cancelProtectiveOrders(ctx, symbol, ""); err != nil {
		c.logger.Warn(ctx, op+": failed to cancel protective orders", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}
	return resp, nil
}

// PlaceLimitOrder places a GTC limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, req ports.LimitOrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceLimitOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toBinanceSide(req.Side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(req.Quantity).
		Price(req.Price)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": req.Symbol, "side": req.Side, "price": req.Price, "orderID": resp.OrderID})
	return resp, nil
}

// UpdateStopLoss replaces the close-position stop order of the open position.
func (c *Client) UpdateStopLoss(ctx context.Context, symbol string, stopPrice string) error {
	op := "UpdateStopLoss"
	pos, err := c.GetOpenPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if pos == nil {
		return fmt.Errorf("%s failed: %w: %s", op, ports.ErrPositionNotFound, symbol)
	}
	if err := c.cancelProtectiveOrders(ctx, symbol, futures.OrderTypeStopMarket); err != nil {
		return c.handleError(ctx, err, op)
	}
	closing := toBinanceSide(pos.Side.Opposite())
	if err := c.placeClosePositionOrder(ctx, symbol, closing, futures.OrderTypeStopMarket, stopPrice); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "stopPrice": stopPrice})
	return nil
}

// cancelProtectiveOrders cancels open stop orders on symbol. An empty
// orderType cancels both stop-market and take-profit-market orders.
func (c *Client) cancelProtectiveOrders(ctx context.Context, symbol string, orderType futures.OrderType) error {
	orders, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return err
	}
	for _, o := range orders {
		protective := o.Type == futures.OrderTypeStopMarket || o.Type == futures.OrderTypeTakeProfitMarket
		if !protective || (orderType != "" && o.Type != orderType) {
			continue
		}
		if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GetOpenPosition retrieves the position on symbol, or nil when flat.
func (c *Client) GetOpenPosition(ctx context.Context, symbol string) (*ports.PositionInfo, error) {
	op := "GetOpenPosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	for _, p := range positions {
		info := translatePositionRisk(p)
		if info != nil {
			return info, nil
		}
	}
	c.logger.Debug(ctx, op+": No position found for symbol", map[string]interface{}{"symbol": symbol})
	return nil, nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(binanceKlines) == 0 {
		return nil, fmt.Errorf("%s failed: %w: no klines for %s %s", op, ports.ErrDataUnavailable, symbol, interval)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrDataUnavailable, err)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	var allKlines []*domain.Kline
	const maxLimit = 1500
	from := start

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			dk, err := translateBinanceKline(bk, symbol, interval)
			if err != nil {
				return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrDataUnavailable, err)
			}
			allKlines = append(allKlines, dk)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxLimit {
			break
		}
	}

	return allKlines, nil
}

// --- Translation Helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		AvgPrice:      avgPrice,
		Quantity:      origQty,
		Status:        string(order.Status),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

// translatePositionRisk returns nil for a flat position.
func translatePositionRisk(pos *futures.PositionRisk) *ports.PositionInfo {
	if pos == nil {
		return nil
	}
	posAmt, _ := strconv.ParseFloat(pos.PositionAmt, 64)
	if posAmt == 0 {
		return nil
	}
	entryPrice, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	markPrice, _ := strconv.ParseFloat(pos.MarkPrice, 64)

	side := domain.Buy
	if posAmt < 0 {
		side = domain.Sell
		posAmt = -posAmt
	}
	return &ports.PositionInfo{
		Symbol:     pos.Symbol,
		Side:       side,
		Size:       posAmt,
		EntryPrice: entryPrice,
		MarkPrice:  markPrice,
	}
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	closeTime := time.UnixMilli(bk.CloseTime)
	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: closeTime,
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   closeTime.Before(time.Now()),
	}, nil
}
