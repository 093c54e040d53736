// Package broker unifies simulated and live order execution behind one
// contract. Business-level rejections (insufficient funds, dust,
// exchange refusal) never surface as errors; the order comes back with
// a rejected status and a reason instead.
package broker

import (
	"context"
	"strconv"

	"tradebot/internal/model"
)

// historyLimit bounds the retained fill history, for display purposes.
const historyLimit = 50

// defaultStrategyName tags persisted trades so downstream consumers can
// attribute them.
const defaultStrategyName = "sma_crossover"

// Broker is the execution surface the trading controller is written
// against. Sync is the per-tick settlement entry point: the simulated
// broker matches open orders there, the live broker uses it for its
// periodic balance resync.
type Broker interface {
	PlaceOrder(ctx context.Context, order *model.Order) (*model.Order, error)
	CancelOrder(ctx context.Context, id string)
	Sync(ctx context.Context, price float64) error
	Balance() float64
	Holdings() float64
	TradeHistory() []model.Order
}

// history is a bounded, most-recent-first fill log shared by both
// broker implementations.
type history struct {
	orders []model.Order
}

func (h *history) push(order model.Order) {
	h.orders = append(h.orders, order)
	if len(h.orders) > historyLimit {
		h.orders = h.orders[len(h.orders)-historyLimit:]
	}
}

func (h *history) list() []model.Order {
	out := make([]model.Order, 0, len(h.orders))
	for i := len(h.orders) - 1; i >= 0; i-- {
		out = append(out, h.orders[i])
	}
	return out
}

// orderFromTrade rebuilds a display order from a persisted trade record.
func orderFromTrade(trade model.Trade) model.Order {
	return model.Order{
		ID:          strconv.FormatInt(trade.ID, 10),
		Symbol:      trade.Symbol,
		Side:        trade.Side,
		Type:        model.OrderTypeMarket,
		Quantity:    trade.Quantity,
		Status:      model.OrderStatusFilled,
		CreatedAt:   trade.EnteredAt,
		FilledAt:    trade.EnteredAt,
		FilledPrice: trade.EntryPrice,
	}
}

// tradeFromOrder builds the persisted record for a filled order. Both
// backends write the same shape.
func tradeFromOrder(order *model.Order) *model.Trade {
	trade := &model.Trade{
		Symbol:       order.Symbol,
		Side:         order.Side,
		EntryPrice:   order.FilledPrice,
		Quantity:     order.Quantity,
		Status:       string(model.OrderStatusFilled),
		EnteredAt:    order.FilledAt,
		StrategyName: defaultStrategyName,
	}
	if order.Side == model.SideSell {
		exit := order.FilledPrice
		trade.ExitPrice = &exit
	}
	return trade
}
