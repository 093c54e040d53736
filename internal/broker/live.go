package broker

import (
	"context"
	"math"
	"time"

	"tradebot/internal/exchange"
	"tradebot/internal/model"
	"tradebot/internal/store"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	// fullExitTolerance treats a sell within 1% of current holdings as a
	// full-exit request, absorbing fee residue from the prior buy.
	fullExitTolerance = 0.99

	defaultResyncInterval = time.Minute
)

const reasonDustQuantity = "dust quantity after step-size normalization"

// LiveConfig wires the live broker to one exchange account.
type LiveConfig struct {
	Symbol         string        `json:"symbol"`
	BaseAsset      string        `json:"baseAsset"`
	QuoteAsset     string        `json:"quoteAsset"`
	ResyncInterval time.Duration `json:"resyncInterval"`
}

// Live executes orders synchronously against a real exchange. Local
// balance and holdings are a cache of the exchange's view, refreshed
// after every execution and on a fixed interval to catch external
// deposits and withdrawals.
type Live struct {
	cfg    LiveConfig
	client exchange.Client
	store  store.Store

	balance  float64
	holdings float64
	lastSync time.Time
	history  history

	now func() time.Time
}

// NewLive creates a live broker, syncing balances and recent trade
// history from the exchange. A failed initial sync aborts construction:
// trading against an unknown account state is not safe.
func NewLive(ctx context.Context, cfg LiveConfig, client exchange.Client, st store.Store) (*Live, error) {
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = defaultResyncInterval
	}
	l := &Live{
		cfg:    cfg,
		client: client,
		store:  st,
		now:    time.Now,
	}
	if err := l.syncBalances(ctx); err != nil {
		return nil, errors.Wrap(err, "initial balance sync")
	}
	if err := l.syncHistory(ctx); err != nil {
		logs.Errorf("trade history sync failed: %+v", err)
	}
	l.lastSync = l.now()
	logs.Infof("live broker connected: balance %.2f %s, holdings %.8f %s",
		l.balance, cfg.QuoteAsset, l.holdings, cfg.BaseAsset)
	return l, nil
}

func (l *Live) syncBalances(ctx context.Context) error {
	quote, err := l.client.AssetBalance(ctx, l.cfg.QuoteAsset)
	if err != nil {
		return errors.Wrap(err, "fetch quote balance")
	}
	base, err := l.client.AssetBalance(ctx, l.cfg.BaseAsset)
	if err != nil {
		return errors.Wrap(err, "fetch base balance")
	}
	l.balance = quote
	l.holdings = base
	return nil
}

// syncHistory backfills trades the exchange knows about but the store
// does not, then loads the bounded display history.
func (l *Live) syncHistory(ctx context.Context) error {
	known, err := l.store.RecentTrades(ctx, historyLimit)
	if err != nil {
		return errors.Wrap(err, "load stored trades")
	}
	seen := make(map[int64]struct{}, len(known))
	for _, t := range known {
		seen[t.ID] = struct{}{}
	}

	records, err := l.client.MyTrades(ctx, l.cfg.Symbol, 20)
	if err != nil {
		return errors.Wrap(err, "fetch exchange trades")
	}
	added := 0
	for _, rec := range records {
		if _, ok := seen[rec.OrderID]; ok {
			continue
		}
		side := model.SideSell
		var exitPrice *float64
		if rec.IsBuyer {
			side = model.SideBuy
		} else {
			price := rec.Price
			exitPrice = &price
		}
		trade := &model.Trade{
			ID:           rec.OrderID,
			Symbol:       l.cfg.Symbol,
			Side:         side,
			EntryPrice:   rec.Price,
			ExitPrice:    exitPrice,
			Quantity:     rec.Qty,
			Status:       string(model.OrderStatusFilled),
			EnteredAt:    rec.Time,
			StrategyName: defaultStrategyName,
		}
		if err := l.store.SaveTrade(ctx, trade); err != nil {
			return errors.Wrap(err, "backfill trade").With("orderId", rec.OrderID)
		}
		added++
	}
	if added > 0 {
		logs.Infof("backfilled %d trades from exchange", added)
	}

	trades, err := l.store.RecentTrades(ctx, historyLimit)
	if err != nil {
		return errors.Wrap(err, "reload stored trades")
	}
	for i := len(trades) - 1; i >= 0; i-- {
		l.history.push(orderFromTrade(trades[i]))
	}
	return nil
}

// PlaceOrder executes the order synchronously against the exchange.
// Any exchange failure along the way rejects the order without touching
// local state; the periodic resync reconciles whatever the exchange
// actually did.
func (l *Live) PlaceOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	logs.Infof("live: executing %s %.8f %s", order.Side, order.Quantity, order.Symbol)

	info, err := l.client.SymbolInfo(ctx, order.Symbol)
	if err != nil {
		return l.reject(order, "symbol info unavailable", err), nil
	}

	target := order.Quantity
	if order.Side == model.SideSell {
		if err := l.syncBalances(ctx); err != nil {
			return l.reject(order, "balance refresh failed", err), nil
		}
		if target >= l.holdings*fullExitTolerance {
			logs.Infof("live: full exit, adjusting quantity %.8f -> %.8f", target, l.holdings)
			target = l.holdings
		}
	}

	normalized := normalizeQty(target, info.StepSize)
	if normalized <= 0 {
		return l.reject(order, reasonDustQuantity, nil), nil
	}
	order.Quantity = normalized

	report, err := l.client.CreateOrder(ctx, exchange.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     order.Type,
		Quantity: normalized,
	})
	if err != nil {
		return l.reject(order, "exchange rejected order", err), nil
	}

	if err := order.Fill(report.AveragePrice(), l.now().UTC()); err != nil {
		return nil, err
	}
	l.history.push(*order)
	logs.Infof("live: filled %s %.8f @ %.2f", order.Side, order.Quantity, order.FilledPrice)

	// Close fee drift immediately rather than waiting for the interval.
	if err := l.syncBalances(ctx); err != nil {
		logs.Errorf("post-execution balance sync failed: %+v", err)
	}
	l.lastSync = l.now()

	trade := tradeFromOrder(order)
	trade.ID = report.OrderID
	if err := l.store.SaveTrade(ctx, trade); err != nil {
		logs.Errorf("persist live trade failed: %+v", err)
	}
	return order, nil
}

func (l *Live) reject(order *model.Order, reason string, err error) *model.Order {
	if err != nil {
		logs.Errorf("live: order rejected (%s): %+v", reason, err)
	} else {
		logs.Warnf("live: order rejected (%s)", reason)
	}
	_ = order.Reject(reason)
	return order
}

// CancelOrder is a deliberate no-op: live orders are market orders and
// fill effectively instantaneously.
func (l *Live) CancelOrder(ctx context.Context, id string) {
	logs.Warnf("live: cancel unsupported for market orders (id %s)", id)
}

// Sync resynchronizes balances on a fixed interval to detect external
// deposits and withdrawals. A failed resync is logged and retried on a
// later tick, never fatal.
func (l *Live) Sync(ctx context.Context, price float64) error {
	if l.now().Sub(l.lastSync) < l.cfg.ResyncInterval {
		return nil
	}
	if err := l.syncBalances(ctx); err != nil {
		logs.Errorf("periodic balance sync failed: %+v", err)
		return nil
	}
	l.lastSync = l.now()
	return nil
}

// Balance returns the cached quote-currency balance.
func (l *Live) Balance() float64 { return l.balance }

// Holdings returns the cached base-asset position.
func (l *Live) Holdings() float64 { return l.holdings }

// TradeHistory returns recent fills, most recent first.
func (l *Live) TradeHistory() []model.Order { return l.history.list() }

// normalizeQty floors a quantity to the nearest step-size multiple.
// Never rounds up: over-ordering is worse than leaving dust.
func normalizeQty(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	steps := math.Floor(qty / step)
	if steps <= 0 {
		return 0
	}
	return steps * step
}
