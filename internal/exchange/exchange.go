package exchange

import (
	"context"
	"time"

	"tradebot/internal/model"

	"github.com/yanun0323/errors"
)

var (
	ErrUnsupportedOrderType = errors.New("exchange: unsupported order type")
	ErrEmptySymbol          = errors.New("exchange: empty symbol")
)

// SymbolInfo carries the trading rules needed before submitting an order.
type SymbolInfo struct {
	Symbol   string
	StepSize float64
}

// OrderRequest is a normalized order submission.
type OrderRequest struct {
	Symbol   string
	Side     model.Side
	Type     model.OrderType
	Quantity float64
}

// Fill is one partial execution reported by the exchange.
type Fill struct {
	Price      float64
	Qty        float64
	Commission float64
}

// FillReport is the exchange's view of an executed order.
type FillReport struct {
	OrderID         int64
	Status          string
	ExecutedQty     float64
	CumulativeQuote float64
	Fills           []Fill
}

// AveragePrice is the quantity-weighted fill price. When the exchange
// reports no fill breakdown it falls back to notional over executed
// quantity.
func (r FillReport) AveragePrice() float64 {
	var qty, notional float64
	for _, f := range r.Fills {
		qty += f.Qty
		notional += f.Price * f.Qty
	}
	if qty > 0 {
		return notional / qty
	}
	if r.ExecutedQty > 0 {
		return r.CumulativeQuote / r.ExecutedQty
	}
	return 0
}

// TradeRecord is one historical trade reported by the exchange.
type TradeRecord struct {
	OrderID int64
	Price   float64
	Qty     float64
	Time    time.Time
	IsBuyer bool
}

// Client is the exchange capability contract consumed by the live
// broker. Implementations own auth, transport and retry concerns.
type Client interface {
	AssetBalance(ctx context.Context, asset string) (float64, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	CreateOrder(ctx context.Context, req OrderRequest) (FillReport, error)
	MyTrades(ctx context.Context, symbol string, limit int) ([]TradeRecord, error)
}
