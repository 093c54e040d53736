package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradebot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAveragePrice(t *testing.T) {
	tests := []struct {
		name   string
		report FillReport
		want   float64
	}{
		{
			name: "weighted over fills",
			report: FillReport{
				Fills: []Fill{
					{Price: 50000, Qty: 0.2},
					{Price: 50300, Qty: 0.1},
				},
			},
			want: 50100,
		},
		{
			name:   "fallback to notional over quantity",
			report: FillReport{ExecutedQty: 0.2, CumulativeQuote: 10010},
			want:   50050,
		},
		{
			name:   "nothing executed",
			report: FillReport{},
			want:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.report.AveragePrice(), 1e-6)
		})
	}
}

func TestBinanceTickerPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCBRL", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"BTCBRL","price":"512345.67"}`))
	}))
	defer srv.Close()

	b := NewBinance("", "", srv.URL, srv.Client())
	price, err := b.TickerPrice(context.Background(), "btcbrl")
	require.NoError(t, err)
	assert.InDelta(t, 512345.67, price, 1e-6)
}

func TestBinanceTickerInvalidPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCBRL","price":"0"}`))
	}))
	defer srv.Close()

	b := NewBinance("", "", srv.URL, srv.Client())
	_, err := b.TickerPrice(context.Background(), "BTCBRL")
	require.Error(t, err)
}

func TestBinanceAssetBalanceSignedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("timestamp"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		_, _ = w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0"},
			{"asset":"BRL","free":"10000.25","locked":"0"}
		]}`))
	}))
	defer srv.Close()

	b := NewBinance("test-key", "test-secret", srv.URL, srv.Client())

	free, err := b.AssetBalance(context.Background(), "BRL")
	require.NoError(t, err)
	assert.InDelta(t, 10000.25, free, 1e-9)

	missing, err := b.AssetBalance(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Zero(t, missing, "unknown assets read as zero balance")
}

func TestBinanceSymbolInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[{
			"symbol":"BTCBRL",
			"filters":[
				{"filterType":"PRICE_FILTER","tickSize":"0.01"},
				{"filterType":"LOT_SIZE","stepSize":"0.00010000"}
			]
		}]}`))
	}))
	defer srv.Close()

	b := NewBinance("", "", srv.URL, srv.Client())
	info, err := b.SymbolInfo(context.Background(), "BTCBRL")
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, info.StepSize, 1e-12)
}

func TestBinanceSymbolInfoFallbackStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[]}`))
	}))
	defer srv.Close()

	b := NewBinance("", "", srv.URL, srv.Client())
	info, err := b.SymbolInfo(context.Background(), "BTCBRL")
	require.NoError(t, err)
	assert.InDelta(t, 0.00001, info.StepSize, 1e-12)

	_, err = b.SymbolInfo(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestBinanceCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "MARKET", r.URL.Query().Get("type"))
		assert.Equal(t, "BUY", r.URL.Query().Get("side"))
		assert.Equal(t, "0.1", r.URL.Query().Get("quantity"))
		_, _ = w.Write([]byte(`{
			"orderId": 42,
			"status": "FILLED",
			"executedQty": "0.1",
			"cummulativeQuoteQty": "5005.00",
			"fills": [{"price":"50050.00","qty":"0.1","commission":"0.0001"}]
		}`))
	}))
	defer srv.Close()

	b := NewBinance("k", "s", srv.URL, srv.Client())
	report, err := b.CreateOrder(context.Background(), OrderRequest{
		Symbol:   "BTCBRL",
		Side:     model.SideBuy,
		Type:     model.OrderTypeMarket,
		Quantity: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), report.OrderID)
	assert.InDelta(t, 50050, report.AveragePrice(), 1e-6)
}

func TestBinanceCreateOrderRejectsLimit(t *testing.T) {
	b := NewBinance("k", "s", "http://localhost:0", nil)
	_, err := b.CreateOrder(context.Background(), OrderRequest{
		Symbol:   "BTCBRL",
		Side:     model.SideBuy,
		Type:     model.OrderTypeLimit,
		Quantity: 0.1,
	})
	assert.ErrorIs(t, err, ErrUnsupportedOrderType)
}

func TestBinanceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: MIN_NOTIONAL"}`))
	}))
	defer srv.Close()

	b := NewBinance("k", "s", srv.URL, srv.Client())
	_, err := b.TickerPrice(context.Background(), "BTCBRL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestBinanceMyTrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			{"orderId": 7, "price": "48000.00", "qty": "0.1", "time": 1717243200000, "isBuyer": true},
			{"orderId": 8, "price": "49000.00", "qty": "0.1", "time": 1717246800000, "isBuyer": false}
		]`))
	}))
	defer srv.Close()

	b := NewBinance("k", "s", srv.URL, srv.Client())
	trades, err := b.MyTrades(context.Background(), "BTCBRL", 20)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(7), trades[0].OrderID)
	assert.True(t, trades[0].IsBuyer)
	assert.InDelta(t, 49000, trades[1].Price, 1e-6)
	assert.False(t, trades[1].IsBuyer)
}
