package trader

import (
	"context"
	"testing"
	"time"

	"tradebot/internal/feed"
	"tradebot/internal/model"
	"tradebot/internal/risk"
	"tradebot/internal/store"
	"tradebot/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

// stubBroker scripts execution outcomes for controller tests.
type stubBroker struct {
	balance    float64
	holdings   float64
	price      float64
	rejectNext bool
	syncErr    error

	placed    []*model.Order
	syncCalls int
}

func (s *stubBroker) PlaceOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	s.placed = append(s.placed, order)
	if s.rejectNext {
		_ = order.Reject("insufficient funds")
		return order, nil
	}
	_ = order.Fill(s.price, time.Now())
	return order, nil
}

func (s *stubBroker) CancelOrder(ctx context.Context, id string) {}

func (s *stubBroker) Sync(ctx context.Context, price float64) error {
	s.syncCalls++
	s.price = price
	return s.syncErr
}

func (s *stubBroker) Balance() float64            { return s.balance }
func (s *stubBroker) Holdings() float64           { return s.holdings }
func (s *stubBroker) TradeHistory() []model.Order { return nil }

func testStrategy() strategy.Params {
	return strategy.Params{
		ShortPeriod:     1,
		LongPeriod:      2,
		SignalThreshold: 0.003,
		TakeProfitPct:   0.04,
		ProtectBandPct:  0.02,
		MinHoldings:     0.00001,
		MinBalance:      10,
		BuyFraction:     0.98,
		TradeCooldown:   30 * time.Minute,
	}
}

func newTestController(b *stubBroker, riskCfg risk.Config) (*Controller, *feed.Latest, *time.Time) {
	latest := feed.NewLatest()
	c := New(Config{
		Symbol:       "BTCBRL",
		TickInterval: time.Second,
		StaleAfter:   20 * time.Second,
		Strategy:     testStrategy(),
	}, b, risk.NewEngine(riskCfg), latest, NewLogTail(0))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, latest, &now
}

func tick(t *testing.T, c *Controller, latest *feed.Latest, at time.Time, price float64) {
	t.Helper()
	latest.Store(model.Quote{Symbol: "BTCBRL", Price: price, At: at})
	require.NoError(t, c.step(context.Background()))
}

func TestStepSkipsWithoutQuote(t *testing.T) {
	b := &stubBroker{balance: 10000}
	c, _, _ := newTestController(b, risk.Config{})

	require.NoError(t, c.step(context.Background()))
	assert.Zero(t, b.syncCalls, "no quote means no settlement")
	assert.Zero(t, c.window.Len())
}

func TestStepSkipsStaleQuote(t *testing.T) {
	b := &stubBroker{balance: 10000}
	c, latest, now := newTestController(b, risk.Config{})

	latest.Store(model.Quote{Symbol: "BTCBRL", Price: 50000, At: now.Add(-time.Minute)})
	require.NoError(t, c.step(context.Background()))
	assert.Zero(t, b.syncCalls)
	assert.Zero(t, c.window.Len(), "stale samples must not enter the window")
}

func TestCrossoverBuyPlacesOrder(t *testing.T) {
	b := &stubBroker{balance: 10000}
	c, latest, now := newTestController(b, risk.Config{})

	// First tick warms the window; no long average yet.
	tick(t, c, latest, *now, 100)
	assert.Empty(t, b.placed)

	// Second tick: short 104 > long 102 * 1.003.
	tick(t, c, latest, *now, 104)
	require.Len(t, b.placed, 1)
	order := b.placed[0]
	assert.Equal(t, model.SideBuy, order.Side)
	assert.InDelta(t, 10000*0.98/104, order.Quantity, 1e-9)
	assert.InDelta(t, 104, c.entryPrice, 1e-9)
	assert.Equal(t, *now, c.lastTradeAt)
}

func TestCooldownBlocksRebuy(t *testing.T) {
	b := &stubBroker{balance: 10000}
	c, latest, now := newTestController(b, risk.Config{})

	tick(t, c, latest, *now, 100)
	tick(t, c, latest, *now, 104)
	require.Len(t, b.placed, 1)

	// Still bullish ten minutes later, but inside the cooldown.
	c.entryPrice = 0
	b.holdings = 0
	*now = now.Add(10 * time.Minute)
	tick(t, c, latest, *now, 108)
	assert.Len(t, b.placed, 1)

	// Past the cooldown the signal fires again.
	*now = now.Add(21 * time.Minute)
	tick(t, c, latest, *now, 112)
	assert.Len(t, b.placed, 2)
}

func TestTakeProfitSellIsSingleOrder(t *testing.T) {
	b := &stubBroker{balance: 0, holdings: 1}
	c, latest, now := newTestController(b, risk.Config{})
	c.entryPrice = 100

	tick(t, c, latest, *now, 100)
	tick(t, c, latest, *now, 105)

	require.Len(t, b.placed, 1, "at most one order per tick")
	order := b.placed[0]
	assert.Equal(t, model.SideSell, order.Side)
	assert.InDelta(t, 1, order.Quantity, 1e-12)
	assert.Zero(t, c.entryPrice, "position closed resets the entry price")
}

func TestSellResultFeedsRiskEngine(t *testing.T) {
	b := &stubBroker{balance: 0, holdings: 1}
	c, latest, now := newTestController(b, risk.Config{MaxDailyTrades: 1})
	c.entryPrice = 100

	tick(t, c, latest, *now, 100)
	tick(t, c, latest, *now, 105)
	require.Len(t, b.placed, 1)

	// The daily cap of one is now consumed: a fresh signal is blocked.
	b.holdings = 1
	c.entryPrice = 100
	*now = now.Add(time.Hour)
	tick(t, c, latest, *now, 110)
	assert.Len(t, b.placed, 1)
}

func TestRiskRejectionIsNotAnError(t *testing.T) {
	b := &stubBroker{balance: 1000000}
	c, latest, now := newTestController(b, risk.Config{MaxPositionSizePct: 0.0001})
	c.risk.UpdateEquity(1000)

	tick(t, c, latest, *now, 100)
	tick(t, c, latest, *now, 104)
	assert.Empty(t, b.placed, "oversized orders stop at the risk gate")
}

func TestBrokerRejectionIsNotAnError(t *testing.T) {
	b := &stubBroker{balance: 10000, rejectNext: true}
	c, latest, now := newTestController(b, risk.Config{})

	tick(t, c, latest, *now, 100)
	tick(t, c, latest, *now, 104)

	require.Len(t, b.placed, 1)
	assert.Equal(t, model.OrderStatusRejected, b.placed[0].Status)
	assert.Zero(t, c.entryPrice, "rejected buys leave no position")
	assert.True(t, c.lastTradeAt.IsZero(), "rejections do not start the cooldown")
}

func TestRunStopsAfterConsecutiveErrors(t *testing.T) {
	b := &stubBroker{balance: 10000, syncErr: errors.New("db down")}
	latest := feed.NewLatest()
	c := New(Config{
		Symbol:       "BTCBRL",
		TickInterval: time.Millisecond,
		StaleAfter:   time.Hour,
		Strategy:     testStrategy(),
	}, b, risk.NewEngine(risk.Config{}), latest, NewLogTail(0))
	latest.Store(model.Quote{Symbol: "BTCBRL", Price: 50000, At: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Run(ctx)
	require.Error(t, err)
	assert.GreaterOrEqual(t, b.syncCalls, 3)

	status := c.Status()
	assert.False(t, status.Running)
	assert.NotEmpty(t, status.FatalError)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b := &stubBroker{balance: 10000}
	latest := feed.NewLatest()
	c := New(Config{
		Symbol:       "BTCBRL",
		TickInterval: time.Millisecond,
		Strategy:     testStrategy(),
	}, b, risk.NewEngine(risk.Config{}), latest, NewLogTail(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestRestoreResumesOpenPosition(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SaveTrade(ctx, &model.Trade{
		Symbol:     "BTCBRL",
		Side:       model.SideBuy,
		EntryPrice: 48000,
		Quantity:   0.1,
		Status:     string(model.OrderStatusFilled),
		EnteredAt:  time.Now(),
	}))

	b := &stubBroker{holdings: 0.1}
	c, _, _ := newTestController(b, risk.Config{})
	require.NoError(t, c.Restore(ctx, st))
	assert.InDelta(t, 48000, c.entryPrice, 1e-9)
}

func TestRestoreStateMismatchStartsFlat(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.SaveTrade(ctx, &model.Trade{
		Symbol:     "BTCBRL",
		Side:       model.SideBuy,
		EntryPrice: 48000,
		Quantity:   0.1,
		Status:     string(model.OrderStatusFilled),
		EnteredAt:  time.Now(),
	}))

	b := &stubBroker{holdings: 0}
	c, _, _ := newTestController(b, risk.Config{})
	require.NoError(t, c.Restore(ctx, st))
	assert.Zero(t, c.entryPrice)
}

func TestRestoreNoHistory(t *testing.T) {
	b := &stubBroker{}
	c, _, _ := newTestController(b, risk.Config{})
	require.NoError(t, c.Restore(context.Background(), store.NewMemory()))
	assert.Zero(t, c.entryPrice)
}
