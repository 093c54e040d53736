package feed

import (
	"context"
	"sync/atomic"
	"time"

	"tradebot/internal/exchange"
	"tradebot/internal/model"

	"github.com/yanun0323/logs"
)

// Health reflects the market data source's last observed condition.
type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthConnected Health = "connected"
	HealthError     Health = "error"
)

// Source is the market data capability contract. A failed or malformed
// response means "no update this tick", never a fatal condition.
type Source interface {
	Ticker(ctx context.Context, symbol string) (model.Quote, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, symbol string) (model.Quote, error)

// Ticker implements Source.
func (f SourceFunc) Ticker(ctx context.Context, symbol string) (model.Quote, error) {
	return f(ctx, symbol)
}

// NewRESTSource wraps the exchange REST ticker endpoint as a Source.
func NewRESTSource(client *exchange.Binance) Source {
	return SourceFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		price, err := client.TickerPrice(ctx, symbol)
		if err != nil {
			return model.Quote{}, err
		}
		return model.Quote{
			Symbol: symbol,
			Price:  price,
			Source: "binance",
			At:     time.Now().UTC(),
		}, nil
	})
}

// Poller drives a Source on a fixed interval and publishes into the
// shared Latest cell. It is the cell's only writer.
type Poller struct {
	src      Source
	symbol   string
	interval time.Duration
	latest   *Latest
	health   atomic.Value
}

// NewPoller creates a poller for one symbol.
func NewPoller(src Source, symbol string, interval time.Duration, latest *Latest) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	p := &Poller{
		src:      src,
		symbol:   symbol,
		interval: interval,
		latest:   latest,
	}
	p.health.Store(HealthUnknown)
	return p
}

// Health returns the source's last observed condition.
func (p *Poller) Health() Health {
	return p.health.Load().(Health)
}

// Run polls until the context is canceled. A slow or failed fetch
// delays only the poller's own next iteration.
func (p *Poller) Run(ctx context.Context) {
	logs.Infof("market data poller started: %s every %s", p.symbol, p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			logs.Info("market data poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	quote, err := p.src.Ticker(ctx, p.symbol)
	if err != nil {
		p.health.Store(HealthError)
		logs.Errorf("ticker fetch failed: %+v", err)
		return
	}
	if quote.Price <= 0 {
		p.health.Store(HealthError)
		logs.Warnf("ticker returned invalid price %.8f, dropping update", quote.Price)
		return
	}
	p.latest.Store(quote)
	p.health.Store(HealthConnected)
}
