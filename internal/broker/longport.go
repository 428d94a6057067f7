// Package broker - longport.go implements the Broker interface against
// a Longport/Longbridge-style OpenAPI gateway for HK/US equities. The
// request/response shape and doRequest helper follow the teacher's
// Dhan REST client pattern, retargeted at this gateway's endpoints.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/kowloon-quant/tradeengine/internal/indicator"
)

// LongportConfig holds gateway connection settings.
type LongportConfig struct {
	AppKey      string
	AppSecret   string
	AccessToken string
	BaseURL     string
	StreamURL   string // optional; empty disables StreamQuotes
}

// LongportBroker implements Broker against the HK/US equities gateway.
type LongportBroker struct {
	cfg    LongportConfig
	client *retryablehttp.Client
	stream *WSQuoteStream
}

// NewLongportBroker builds a broker client with a bounded retry policy
// for transient network failures and 429s (spec §7). When cfg.StreamURL
// is set, StreamQuotes dials the push feed instead of returning
// ErrStreamingUnsupported.
func NewLongportBroker(cfg LongportConfig, log zerolog.Logger) *LongportBroker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openapi.longportapp.com"
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	b := &LongportBroker{cfg: cfg, client: rc}
	if cfg.StreamURL != "" {
		b.stream = NewWSQuoteStream(cfg.StreamURL, cfg.AccessToken, log)
	}
	return b
}

func (b *LongportBroker) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	url := b.cfg.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.AccessToken)
	req.Header.Set("X-Api-Key", b.cfg.AppKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("longport broker: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("longport broker: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("longport broker: rate limited (429)")
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("longport broker: API error %d: %s", apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("longport broker: API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// --- quote/candle endpoints ---

type lpQuoteResp struct {
	Secu []struct {
		Symbol      string  `json:"symbol"`
		LastDone    string  `json:"last_done"`
		Volume      int64   `json:"volume"`
		Timestamp   int64   `json:"timestamp"`
	} `json:"secu_quote"`
}

func (b *LongportBroker) PollQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	return b.fetchQuotes(ctx, "/v1/quote/realtime", symbols)
}

// SnapshotQuotes hits the gateway's lower-frequency quote endpoint,
// the fallback internal/quote uses once when realtime returns empty.
func (b *LongportBroker) SnapshotQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	return b.fetchQuotes(ctx, "/v1/quote/quote", symbols)
}

func (b *LongportBroker) fetchQuotes(ctx context.Context, path string, symbols []string) (map[string]Quote, error) {
	body := map[string][]string{"symbol": symbols}
	raw, err := b.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	var resp lpQuoteResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("longport broker: parse quote response: %w", err)
	}
	out := make(map[string]Quote, len(resp.Secu))
	for _, q := range resp.Secu {
		price, _ := strconv.ParseFloat(q.LastDone, 64)
		out[q.Symbol] = Quote{
			Symbol:      q.Symbol,
			LastPrice:   price,
			VolumeToday: float64(q.Volume),
			Timestamp:   time.Unix(q.Timestamp, 0),
		}
	}
	return out, nil
}

// StreamQuotes dials the gateway's push feed when configured;
// otherwise callers fall back to polling PollQuotes on a timer.
func (b *LongportBroker) StreamQuotes(ctx context.Context, symbols []string) (<-chan Quote, error) {
	if b.stream == nil {
		return nil, ErrStreamingUnsupported
	}
	return b.stream.Stream(ctx, symbols)
}

type lpCandleResp struct {
	Candlesticks []struct {
		Close     string `json:"close"`
		Open      string `json:"open"`
		High      string `json:"high"`
		Low       string `json:"low"`
		Volume    int64  `json:"volume"`
		Timestamp int64  `json:"timestamp"`
	} `json:"candlesticks"`
}

// Candles fetches oldest-first daily OHLCV. If the gateway rejects the
// requested count as out of its per-call limit, it retries once with
// a shrunk count (spec's "kline symbol count out of limit" case).
func (b *LongportBroker) Candles(ctx context.Context, symbol string, count int) ([]indicator.Candle, error) {
	candles, err := b.fetchCandles(ctx, symbol, count)
	if err != nil && count > 100 {
		return b.fetchCandles(ctx, symbol, 100)
	}
	return candles, err
}

func (b *LongportBroker) fetchCandles(ctx context.Context, symbol string, count int) ([]indicator.Candle, error) {
	path := fmt.Sprintf("/v1/quote/candlestick?symbol=%s&period=day&count=%d&adjust_type=0", symbol, count)
	raw, err := b.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp lpCandleResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("longport broker: parse candle response: %w", err)
	}
	out := make([]indicator.Candle, 0, len(resp.Candlesticks))
	for _, c := range resp.Candlesticks {
		open, _ := strconv.ParseFloat(c.Open, 64)
		hi, _ := strconv.ParseFloat(c.High, 64)
		lo, _ := strconv.ParseFloat(c.Low, 64)
		close, _ := strconv.ParseFloat(c.Close, 64)
		out = append(out, indicator.Candle{
			Timestamp: time.Unix(c.Timestamp, 0),
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     close,
			Volume:    float64(c.Volume),
		})
	}
	return out, nil
}

type lpDepthResp struct {
	Bid []struct {
		Price string `json:"price"`
	} `json:"bid"`
	Ask []struct {
		Price string `json:"price"`
	} `json:"ask"`
}

func (b *LongportBroker) Depth(ctx context.Context, symbol string) (Depth, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/v1/quote/depth?symbol="+symbol, nil)
	if err != nil {
		return Depth{}, err
	}
	var resp lpDepthResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Depth{}, fmt.Errorf("longport broker: parse depth response: %w", err)
	}
	d := Depth{Symbol: symbol}
	if len(resp.Bid) > 0 {
		d.BidPrice, _ = strconv.ParseFloat(resp.Bid[0].Price, 64)
	}
	if len(resp.Ask) > 0 {
		d.AskPrice, _ = strconv.ParseFloat(resp.Ask[0].Price, 64)
	}
	return d, nil
}

// --- account endpoints ---

type lpBalanceResp struct {
	List []struct {
		Currency         string `json:"currency"`
		CashInfos        []struct {
			Currency           string `json:"currency"`
			WithdrawCash       string `json:"withdraw_cash"`
		} `json:"cash_infos"`
		NetAssets         string `json:"net_assets"`
		MaxFinanceAmount  string `json:"max_finance_amount"`
		RemainingFinanceAmount string `json:"remaining_finance_amount"`
	} `json:"list"`
}

func (b *LongportBroker) AccountBalance(ctx context.Context) (map[string]CurrencyBalance, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/v1/asset/account", nil)
	if err != nil {
		return nil, err
	}
	var resp lpBalanceResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("longport broker: parse balance response: %w", err)
	}
	out := make(map[string]CurrencyBalance, len(resp.List))
	for _, a := range resp.List {
		netAssets, _ := strconv.ParseFloat(a.NetAssets, 64)
		maxFinance, _ := strconv.ParseFloat(a.MaxFinanceAmount, 64)
		remFinance, _ := strconv.ParseFloat(a.RemainingFinanceAmount, 64)
		var cash float64
		for _, c := range a.CashInfos {
			if c.Currency == a.Currency {
				cash, _ = strconv.ParseFloat(c.WithdrawCash, 64)
			}
		}
		out[a.Currency] = CurrencyBalance{
			Cash:             cash,
			BuyPower:         remFinance,
			MaxFinance:       maxFinance,
			RemainingFinance: remFinance,
			NetAssets:        netAssets,
		}
	}
	return out, nil
}

type lpPositionResp struct {
	ChannelPositions []struct {
		StockInfo []struct {
			Symbol        string `json:"symbol"`
			Quantity      string `json:"quantity"`
			CostPrice     string `json:"cost_price"`
			Currency      string `json:"currency"`
		} `json:"stock_info"`
	} `json:"channels"`
}

func (b *LongportBroker) Positions(ctx context.Context) ([]Position, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/v1/asset/stock", nil)
	if err != nil {
		return nil, err
	}
	var resp lpPositionResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("longport broker: parse position response: %w", err)
	}
	var out []Position
	for _, ch := range resp.ChannelPositions {
		for _, s := range ch.StockInfo {
			qty, _ := strconv.Atoi(s.Quantity)
			cost, _ := strconv.ParseFloat(s.CostPrice, 64)
			out = append(out, Position{Symbol: s.Symbol, Qty: qty, AvgCost: cost, Currency: s.Currency})
		}
	}
	return out, nil
}

// --- order endpoints ---

type lpSubmitOrderReq struct {
	Symbol        string  `json:"symbol"`
	OrderType     string  `json:"order_type"`
	Side          string  `json:"side"`
	SubmittedQuantity string `json:"submitted_quantity"`
	SubmittedPrice    string `json:"submitted_price,omitempty"`
	TriggerPrice      string `json:"trigger_price,omitempty"`
	TimeInForce   string  `json:"time_in_force"`
	OutsideRth    string  `json:"outside_rth,omitempty"`
	Remark        string  `json:"remark,omitempty"`
}

type lpSubmitOrderResp struct {
	OrderID string `json:"order_id"`
}

func (b *LongportBroker) SubmitOrder(ctx context.Context, clientOrderID, symbol string, side Side, qty int, price float64, typ OrderType, tif TimeInForce) (string, error) {
	req := lpSubmitOrderReq{
		Symbol:            symbol,
		OrderType:         mapOrderTypeOut(typ),
		Side:              string(side),
		SubmittedQuantity: strconv.Itoa(qty),
		SubmittedPrice:    strconv.FormatFloat(price, 'f', -1, 64),
		TimeInForce:       mapTIFOut(tif),
		Remark:            clientOrderID,
	}
	raw, err := b.doRequest(ctx, http.MethodPost, "/v1/trade/order", req)
	if err != nil {
		return "", err
	}
	var resp lpSubmitOrderResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("longport broker: parse order response: %w", err)
	}
	return resp.OrderID, nil
}

type lpOrderDetailResp struct {
	Status         string `json:"status"`
	ExecutedQuantity string `json:"executed_quantity"`
	ExecutedPrice    string `json:"executed_price"`
}

func mapLongportStatus(s string) State {
	switch s {
	case "Filled":
		return StateFilled
	case "PartialFilled":
		return StatePartiallyFilled
	case "Canceled", "Expired":
		return StateCancelled
	case "Rejected", "PartialWithdrawal":
		return StateFailed
	case "New", "WaitToNew", "Replaced":
		return StateLive
	default:
		return StatePendingSubmit
	}
}

func mapOrderTypeOut(t OrderType) string {
	if t == TypeLIT {
		return "LIT"
	}
	return "LO"
}

func mapTIFOut(t TimeInForce) string {
	if t == TIFGTC {
		return "GTC"
	}
	return "Day"
}

func (b *LongportBroker) OrderStatus(ctx context.Context, brokerOrderID string) (OrderStatus, error) {
	raw, err := b.doRequest(ctx, http.MethodGet, "/v1/trade/order/"+brokerOrderID, nil)
	if err != nil {
		return OrderStatus{}, err
	}
	var resp lpOrderDetailResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return OrderStatus{}, fmt.Errorf("longport broker: parse order detail: %w", err)
	}
	qty, _ := strconv.Atoi(resp.ExecutedQuantity)
	price, _ := strconv.ParseFloat(resp.ExecutedPrice, 64)
	return OrderStatus{State: mapLongportStatus(resp.Status), FilledQty: qty, AvgFillPrice: price}, nil
}

func (b *LongportBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	_, err := b.doRequest(ctx, http.MethodDelete, "/v1/trade/order?order_id="+brokerOrderID, nil)
	return err
}

func (b *LongportBroker) SubmitConditional(ctx context.Context, symbol string, side Side, qty int, trigger, limit float64, tif TimeInForce) (string, error) {
	req := lpSubmitOrderReq{
		Symbol:            symbol,
		OrderType:         "LIT",
		Side:              string(side),
		SubmittedQuantity: strconv.Itoa(qty),
		SubmittedPrice:    strconv.FormatFloat(limit, 'f', -1, 64),
		TriggerPrice:      strconv.FormatFloat(trigger, 'f', -1, 64),
		TimeInForce:       mapTIFOut(tif),
	}
	raw, err := b.doRequest(ctx, http.MethodPost, "/v1/trade/order", req)
	if err != nil {
		return "", err
	}
	var resp lpSubmitOrderResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("longport broker: parse conditional order response: %w", err)
	}
	return resp.OrderID, nil
}

var _ Broker = (*LongportBroker)(nil)
