package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradebot/internal/model"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const (
	_binanceBaseUrl = "https://api.binance.com"

	_binanceRequestTimeout = 15 * time.Second
)

// Binance is a REST client for the Binance spot API.
type Binance struct {
	apiKey    string
	apiSecret string
	baseURL   string
	client    *http.Client
}

// NewBinance creates a client. An empty baseURL targets production.
func NewBinance(apiKey, apiSecret, baseURL string, client *http.Client) *Binance {
	if baseURL == "" {
		baseURL = _binanceBaseUrl
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Binance{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
	}
}

func (b *Binance) sign(query url.Values) string {
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	_, _ = io.WriteString(mac, query.Encode())
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) do(ctx context.Context, method, path string, query url.Values, signed bool) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("signature", b.sign(query))
	}

	ctx, cancel := context.WithTimeout(ctx, _binanceRequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if b.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request").With("path", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response").With("path", path)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("binance %s %s: status %d: %s", method, path, resp.StatusCode, body)
	}
	return body, nil
}

type binanceBalance struct {
	Asset string `json:"asset"`
	Free  string `json:"free"`
}

type binanceAccount struct {
	Balances []binanceBalance `json:"balances"`
}

// AssetBalance returns the free balance for one asset.
func (b *Binance) AssetBalance(ctx context.Context, asset string) (float64, error) {
	body, err := b.do(ctx, http.MethodGet, "/api/v3/account", nil, true)
	if err != nil {
		return 0, err
	}
	var acct binanceAccount
	if err := sonic.ConfigFastest.Unmarshal(body, &acct); err != nil {
		return 0, errors.Wrap(err, "decode account")
	}
	for _, bal := range acct.Balances {
		if bal.Asset == asset {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				return 0, errors.Wrap(err, "parse balance").With("asset", asset)
			}
			return free, nil
		}
	}
	return 0, nil
}

type binanceFilter struct {
	FilterType string `json:"filterType"`
	StepSize   string `json:"stepSize"`
}

type binanceSymbol struct {
	Symbol  string          `json:"symbol"`
	Filters []binanceFilter `json:"filters"`
}

type binanceExchangeInfo struct {
	Symbols []binanceSymbol `json:"symbols"`
}

// SymbolInfo fetches the trading rules for one symbol. A missing
// LOT_SIZE filter falls back to the smallest practical step.
func (b *Binance) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if symbol == "" {
		return SymbolInfo{}, ErrEmptySymbol
	}
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))
	body, err := b.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", query, false)
	if err != nil {
		return SymbolInfo{}, err
	}
	var info binanceExchangeInfo
	if err := sonic.ConfigFastest.Unmarshal(body, &info); err != nil {
		return SymbolInfo{}, errors.Wrap(err, "decode exchange info")
	}

	out := SymbolInfo{Symbol: strings.ToUpper(symbol), StepSize: 0.00001}
	for _, sym := range info.Symbols {
		if sym.Symbol != out.Symbol {
			continue
		}
		for _, f := range sym.Filters {
			if f.FilterType != "LOT_SIZE" {
				continue
			}
			if step, err := strconv.ParseFloat(f.StepSize, 64); err == nil && step > 0 {
				out.StepSize = step
			}
		}
	}
	return out, nil
}

type binanceFill struct {
	Price      string `json:"price"`
	Qty        string `json:"qty"`
	Commission string `json:"commission"`
}

type binanceOrderResponse struct {
	OrderID             int64         `json:"orderId"`
	Status              string        `json:"status"`
	ExecutedQty         string        `json:"executedQty"`
	CummulativeQuoteQty string        `json:"cummulativeQuoteQty"`
	Fills               []binanceFill `json:"fills"`
}

// CreateOrder submits an order and returns the normalized fill report.
func (b *Binance) CreateOrder(ctx context.Context, req OrderRequest) (FillReport, error) {
	if req.Type != model.OrderTypeMarket {
		return FillReport{}, ErrUnsupportedOrderType
	}
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(req.Symbol))
	query.Set("side", strings.ToUpper(string(req.Side)))
	query.Set("type", "MARKET")
	query.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))

	body, err := b.do(ctx, http.MethodPost, "/api/v3/order", query, true)
	if err != nil {
		return FillReport{}, err
	}
	var resp binanceOrderResponse
	if err := sonic.ConfigFastest.Unmarshal(body, &resp); err != nil {
		return FillReport{}, errors.Wrap(err, "decode order response")
	}

	report := FillReport{
		OrderID:         resp.OrderID,
		Status:          resp.Status,
		ExecutedQty:     parseFloat(resp.ExecutedQty),
		CumulativeQuote: parseFloat(resp.CummulativeQuoteQty),
	}
	for _, f := range resp.Fills {
		report.Fills = append(report.Fills, Fill{
			Price:      parseFloat(f.Price),
			Qty:        parseFloat(f.Qty),
			Commission: parseFloat(f.Commission),
		})
	}
	return report, nil
}

type binanceTrade struct {
	OrderID int64  `json:"orderId"`
	Price   string `json:"price"`
	Qty     string `json:"qty"`
	Time    int64  `json:"time"`
	IsBuyer bool   `json:"isBuyer"`
}

// MyTrades returns the account's recent trades for a symbol.
func (b *Binance) MyTrades(ctx context.Context, symbol string, limit int) ([]TradeRecord, error) {
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	body, err := b.do(ctx, http.MethodGet, "/api/v3/myTrades", query, true)
	if err != nil {
		return nil, err
	}
	var rows []binanceTrade
	if err := sonic.ConfigFastest.Unmarshal(body, &rows); err != nil {
		return nil, errors.Wrap(err, "decode trades")
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, TradeRecord{
			OrderID: row.OrderID,
			Price:   parseFloat(row.Price),
			Qty:     parseFloat(row.Qty),
			Time:    time.UnixMilli(row.Time).UTC(),
			IsBuyer: row.IsBuyer,
		})
	}
	return out, nil
}

type binanceTickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerPrice returns the latest traded price for a symbol.
func (b *Binance) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(symbol))
	body, err := b.do(ctx, http.MethodGet, "/api/v3/ticker/price", query, false)
	if err != nil {
		return 0, err
	}
	var t binanceTickerPrice
	if err := sonic.ConfigFastest.Unmarshal(body, &t); err != nil {
		return 0, errors.Wrap(err, "decode ticker")
	}
	price := parseFloat(t.Price)
	if price <= 0 {
		return 0, errors.Errorf("binance ticker: invalid price %q", t.Price)
	}
	return price, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
