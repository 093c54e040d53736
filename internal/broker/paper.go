package broker

import (
	"context"
	"time"

	"tradebot/internal/model"
	"tradebot/internal/store"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	reasonInsufficientFunds    = "insufficient funds"
	reasonInsufficientHoldings = "insufficient holdings"
)

// PaperConfig tunes the simulated execution engine.
type PaperConfig struct {
	InitialBalance float64 `json:"initialBalance"`
	FeePct         float64 `json:"feePct"`
	SlippagePct    float64 `json:"slippagePct"`
}

// Paper is the simulated broker: it records orders as open and matches
// them against each price tick. Balance and holdings never go negative;
// a fill that would breach either check rejects the order untouched.
type Paper struct {
	balance  float64
	holdings float64
	feePct   float64
	slippage float64

	open    []*model.Order
	history history
	store   store.Store

	now func() time.Time
}

// NewPaper creates a simulated broker, restoring balance, holdings and
// recent history from the store. When no account scalars exist but the
// most recent trade is a filled buy, the open position is rebuilt from
// that trade.
func NewPaper(ctx context.Context, cfg PaperConfig, st store.Store) (*Paper, error) {
	p := &Paper{
		balance:  cfg.InitialBalance,
		feePct:   cfg.FeePct,
		slippage: cfg.SlippagePct,
		store:    st,
		now:      time.Now,
	}

	acct, ok, err := st.LoadAccount(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load account state")
	}
	if ok {
		p.balance = acct.Balance
		p.holdings = acct.Holdings
	} else if err := p.restoreFromLastTrade(ctx); err != nil {
		return nil, err
	}

	trades, err := st.RecentTrades(ctx, historyLimit)
	if err != nil {
		return nil, errors.Wrap(err, "load trade history")
	}
	for i := len(trades) - 1; i >= 0; i-- {
		p.history.push(orderFromTrade(trades[i]))
	}

	logs.Infof("paper broker ready: balance %.2f, holdings %.8f", p.balance, p.holdings)
	return p, nil
}

func (p *Paper) restoreFromLastTrade(ctx context.Context) error {
	last, err := p.store.LastTrade(ctx)
	if err != nil {
		return errors.Wrap(err, "query last trade")
	}
	if last == nil || last.Side != model.SideBuy || last.Status != string(model.OrderStatusFilled) {
		return nil
	}
	cost := last.Quantity * last.EntryPrice
	if p.balance < cost {
		logs.Warnf("skip position restore: balance %.2f below position cost %.2f", p.balance, cost)
		return nil
	}
	p.holdings = last.Quantity
	p.balance -= cost
	logs.Infof("restored open position: qty %.8f @ %.2f, balance adjusted to %.2f",
		last.Quantity, last.EntryPrice, p.balance)
	return nil
}

// PlaceOrder records the order as open; it is matched on the next Sync.
func (p *Paper) PlaceOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	logs.Infof("paper: placing %s %s %.8f %s", order.Side, order.Type, order.Quantity, order.Symbol)
	p.open = append(p.open, order)
	return order, nil
}

// CancelOrder transitions an open order to canceled. Terminal and
// unknown orders are left untouched.
func (p *Paper) CancelOrder(ctx context.Context, id string) {
	for _, order := range p.open {
		if order.ID != id {
			continue
		}
		if err := order.Cancel(); err == nil {
			logs.Infof("paper: order %s canceled", id)
		}
		return
	}
}

// Sync matches all open orders against the tick price. Market orders
// fill at the slippage-adjusted tick price; limit orders fill at their
// limit price once the tick crosses it. Fills mutate the account and
// are persisted; persistence failures are returned after all orders
// have been processed.
func (p *Paper) Sync(ctx context.Context, price float64) error {
	var persistErr error
	remaining := p.open[:0]
	for _, order := range p.open {
		if order.Status != model.OrderStatusOpen {
			continue
		}

		fill := false
		fillPrice := price
		switch order.Type {
		case model.OrderTypeMarket:
			fill = true
			if order.Side == model.SideBuy {
				fillPrice = price * (1 + p.slippage)
			} else {
				fillPrice = price * (1 - p.slippage)
			}
		case model.OrderTypeLimit:
			if order.Side == model.SideBuy && price <= order.Price {
				fill = true
				fillPrice = order.Price
			} else if order.Side == model.SideSell && price >= order.Price {
				fill = true
				fillPrice = order.Price
			}
		}

		if !fill {
			remaining = append(remaining, order)
			continue
		}
		if err := p.executeFill(ctx, order, fillPrice); err != nil {
			persistErr = err
		}
	}
	p.open = remaining
	return persistErr
}

func (p *Paper) executeFill(ctx context.Context, order *model.Order, price float64) error {
	cost := price * order.Quantity
	fee := cost * p.feePct

	switch order.Side {
	case model.SideBuy:
		if p.balance < cost+fee {
			_ = order.Reject(reasonInsufficientFunds)
			logs.Warnf("paper: buy rejected, need %.2f have %.2f", cost+fee, p.balance)
			return nil
		}
		p.balance -= cost + fee
		p.holdings += order.Quantity
	case model.SideSell:
		if p.holdings < order.Quantity {
			_ = order.Reject(reasonInsufficientHoldings)
			logs.Warnf("paper: sell rejected, need %.8f have %.8f", order.Quantity, p.holdings)
			return nil
		}
		p.balance += cost - fee
		p.holdings -= order.Quantity
	}

	if err := order.Fill(price, p.now().UTC()); err != nil {
		return err
	}
	p.history.push(*order)
	logs.Infof("paper: filled %s %.8f @ %.2f", order.Side, order.Quantity, price)

	if err := p.persist(ctx, order); err != nil {
		return err
	}
	return nil
}

func (p *Paper) persist(ctx context.Context, order *model.Order) error {
	acct := store.Account{Balance: p.balance, Holdings: p.holdings}
	if err := p.store.SaveAccount(ctx, acct); err != nil {
		return errors.Wrap(err, "persist account snapshot")
	}
	if err := p.store.SaveTrade(ctx, tradeFromOrder(order)); err != nil {
		return errors.Wrap(err, "persist trade record")
	}
	return nil
}

// Balance returns the quote-currency balance.
func (p *Paper) Balance() float64 { return p.balance }

// Holdings returns the base-asset position.
func (p *Paper) Holdings() float64 { return p.holdings }

// TradeHistory returns recent fills, most recent first.
func (p *Paper) TradeHistory() []model.Order { return p.history.list() }
