// Package trader runs the tick-driven loop that turns the latest price
// into risk-gated orders.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradebot/internal/broker"
	"tradebot/internal/feed"
	"tradebot/internal/model"
	"tradebot/internal/obs"
	"tradebot/internal/risk"
	"tradebot/internal/store"
	"tradebot/internal/strategy"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// maxErrStreak is the number of consecutive loop errors that forces a
// full stop.
const maxErrStreak = 3

const heartbeatEvery = 30 * time.Second

// Config tunes the controller loop.
type Config struct {
	Symbol       string
	TickInterval time.Duration
	StaleAfter   time.Duration
	Strategy     strategy.Params
}

// Status is the snapshot consumed by the external API layer.
type Status struct {
	Running    bool
	Balance    float64
	Holdings   float64
	Equity     float64
	LastPrice  float64
	EntryPrice float64
	KillSwitch bool
	RiskState  string
	FatalError string
	Logs       []string
}

// Controller owns all mutable trading state: the price window, the
// entry price, the trade cooldown and the error streak. Everything is
// touched from the single loop goroutine; only the status snapshot is
// shared, behind its own mutex.
type Controller struct {
	cfg    Config
	broker broker.Broker
	risk   *risk.Engine
	latest *feed.Latest
	tail   *LogTail

	window      *strategy.Window
	entryPrice  float64
	lastTradeAt time.Time
	errStreak   int
	lastBeat    time.Time

	mu     sync.Mutex
	status Status

	now func() time.Time
}

// New creates a controller.
func New(cfg Config, b broker.Broker, r *risk.Engine, latest *feed.Latest, tail *LogTail) *Controller {
	cfg.Strategy = cfg.Strategy.WithDefaults()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 20 * time.Second
	}
	if tail == nil {
		tail = NewLogTail(defaultTailLimit)
	}
	return &Controller{
		cfg:    cfg,
		broker: b,
		risk:   r,
		latest: latest,
		tail:   tail,
		window: strategy.NewWindow(cfg.Strategy.LongPeriod),
		now:    time.Now,
	}
}

// Restore resumes an open position from the most recent persisted
// trade. A buy on record with flat holdings is a state mismatch: the
// entry price is discarded and the controller starts flat.
func (c *Controller) Restore(ctx context.Context, st store.Store) error {
	last, err := st.LastTrade(ctx)
	if err != nil {
		return errors.Wrap(err, "query last trade")
	}
	if last == nil || last.Side != model.SideBuy || last.Status != string(model.OrderStatusFilled) {
		logs.Info("no open position to restore")
		return nil
	}
	if c.broker.Holdings() <= c.cfg.Strategy.MinHoldings {
		logs.Warnf("state mismatch: last trade is a filled buy @ %.2f but holdings are flat, starting flat",
			last.EntryPrice)
		return nil
	}
	c.entryPrice = last.EntryPrice
	logs.Infof("resumed long position: entry %.2f, holdings %.8f", c.entryPrice, c.broker.Holdings())
	return nil
}

// Run drives the loop until the context is canceled or the loop fails
// three consecutive times. A successful iteration resets the streak.
func (c *Controller) Run(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)
	c.tail.Infof("trading loop started")

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.tail.Infof("trading loop stopped")
			return nil
		case <-ticker.C:
			if err := c.step(ctx); err != nil {
				c.errStreak++
				obs.LoopErrors.Inc()
				c.tail.Errorf("trading loop error (%d/%d): %v", c.errStreak, maxErrStreak, err)
				if c.errStreak >= maxErrStreak {
					c.setFatal(fmt.Sprintf("auto-stop: %v", err))
					return errors.Wrap(err, "consecutive loop errors, stopping")
				}
				continue
			}
			c.errStreak = 0
		}
	}
}

// step is one tick: settle, recompute equity, evaluate the signal and
// place at most one order.
func (c *Controller) step(ctx context.Context) error {
	obs.TicksProcessed.Inc()
	now := c.now()

	quote, ok := c.latest.Load()
	if !ok {
		return nil
	}
	if now.Sub(quote.At) > c.cfg.StaleAfter {
		logs.Warnf("market data stale (%s old), skipping tick", now.Sub(quote.At).Truncate(time.Second))
		return nil
	}
	price := quote.Price
	c.window.Push(price)

	if err := c.broker.Sync(ctx, price); err != nil {
		return errors.Wrap(err, "broker settlement")
	}

	equity := c.broker.Balance() + c.broker.Holdings()*price
	c.risk.UpdateEquity(equity)
	c.observe(price, equity)
	c.heartbeat(now, price)

	shortMA, okShort := c.window.Mean(c.cfg.Strategy.ShortPeriod)
	longMA, okLong := c.window.Mean(c.cfg.Strategy.LongPeriod)
	if okShort && okLong {
		if err := c.trade(ctx, now, price, shortMA, longMA, equity); err != nil {
			return err
		}
	}

	c.publishStatus(price, equity)
	return nil
}

func (c *Controller) trade(ctx context.Context, now time.Time, price, shortMA, longMA, equity float64) error {
	inCooldown := !c.lastTradeAt.IsZero() && now.Sub(c.lastTradeAt) < c.cfg.Strategy.TradeCooldown
	sig := c.cfg.Strategy.Evaluate(strategy.Input{
		Price:      price,
		ShortMA:    shortMA,
		LongMA:     longMA,
		Balance:    c.broker.Balance(),
		Holdings:   c.broker.Holdings(),
		EntryPrice: c.entryPrice,
		InCooldown: inCooldown,
	})
	if sig.Action == strategy.ActionHold {
		return nil
	}

	var side model.Side
	var quantity float64
	switch sig.Action {
	case strategy.ActionBuy:
		side = model.SideBuy
		quantity = c.broker.Balance() * c.cfg.Strategy.BuyFraction / price
	case strategy.ActionSell:
		side = model.SideSell
		quantity = c.broker.Holdings()
	}

	decision := c.risk.ValidateTrade(string(side), quantity, price, equity)
	if !decision.Allowed {
		obs.OrdersRejected.WithLabelValues("risk").Inc()
		c.tail.Warnf("trade blocked: %s", decision.Reason)
		return nil
	}

	order, err := model.NewMarketOrder(c.cfg.Symbol, side, quantity)
	if err != nil {
		return errors.Wrap(err, "build order")
	}
	placed, err := c.broker.PlaceOrder(ctx, order)
	if err != nil {
		return errors.Wrap(err, "place order")
	}
	if placed.Status == model.OrderStatusRejected {
		obs.OrdersRejected.WithLabelValues("broker").Inc()
		c.tail.Warnf("order rejected by broker: %s", placed.Reason)
		return nil
	}

	obs.OrdersPlaced.WithLabelValues(string(side), string(sig.Reason)).Inc()
	c.lastTradeAt = now
	switch side {
	case model.SideBuy:
		c.entryPrice = price
		c.tail.Infof("signal buy @ %.2f (%s, short %.2f / long %.2f)", price, sig.Reason, shortMA, longMA)
	case model.SideSell:
		if c.entryPrice > 0 {
			c.risk.RegisterTradeResult((price - c.entryPrice) * quantity)
		}
		c.entryPrice = 0
		c.tail.Infof("signal sell @ %.2f (%s, short %.2f / long %.2f)", price, sig.Reason, shortMA, longMA)
	}
	return nil
}

func (c *Controller) heartbeat(now time.Time, price float64) {
	if now.Sub(c.lastBeat) < heartbeatEvery {
		return
	}
	c.lastBeat = now
	shortMA, _ := c.window.Mean(c.cfg.Strategy.ShortPeriod)
	logs.Debugf("watching market: price %.2f, sma(%d) %.2f", price, c.cfg.Strategy.ShortPeriod, shortMA)
}

func (c *Controller) observe(price, equity float64) {
	obs.LastPrice.Set(price)
	obs.Equity.Set(equity)
	if c.risk.KillSwitchActive() {
		obs.KillSwitch.Set(1)
	} else {
		obs.KillSwitch.Set(0)
	}
}

func (c *Controller) publishStatus(price, equity float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Balance = c.broker.Balance()
	c.status.Holdings = c.broker.Holdings()
	c.status.Equity = equity
	c.status.LastPrice = price
	c.status.EntryPrice = c.entryPrice
	c.status.KillSwitch = c.risk.KillSwitchActive()
	c.status.RiskState = c.risk.State().String()
}

func (c *Controller) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Running = running
}

func (c *Controller) setFatal(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.FatalError = msg
}

// Status returns the latest published snapshot with the log tail
// attached.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := c.status
	c.mu.Unlock()
	s.Logs = c.tail.Tail(5)
	return s
}
