package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"tradebot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestLatestCell(t *testing.T) {
	latest := NewLatest()

	_, ok := latest.Load()
	assert.False(t, ok, "empty cell reports no quote")

	q := model.Quote{Symbol: "BTCBRL", Price: 50000, Source: "test", At: time.Now()}
	latest.Store(q)
	got, ok := latest.Load()
	require.True(t, ok)
	assert.Equal(t, q, got)
}

func TestPollerPublishesQuotes(t *testing.T) {
	latest := NewLatest()
	src := SourceFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		return model.Quote{Symbol: symbol, Price: 50000, Source: "test", At: time.Now()}, nil
	})
	p := NewPoller(src, "BTCBRL", time.Millisecond, latest)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	got, ok := latest.Load()
	require.True(t, ok)
	assert.Equal(t, "BTCBRL", got.Symbol)
	assert.Equal(t, HealthConnected, p.Health())
}

func TestPollerDropsFailedFetch(t *testing.T) {
	latest := NewLatest()
	var calls atomic.Int32
	src := SourceFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		calls.Add(1)
		return model.Quote{}, errors.New("upstream down")
	})
	p := NewPoller(src, "BTCBRL", time.Millisecond, latest)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	_, ok := latest.Load()
	assert.False(t, ok, "failed fetches publish nothing")
	assert.Equal(t, HealthError, p.Health())
	assert.Greater(t, calls.Load(), int32(1), "a failure never stops the poller")
}

func TestPollerDropsInvalidPrice(t *testing.T) {
	latest := NewLatest()
	src := SourceFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		return model.Quote{Symbol: symbol, Price: 0, At: time.Now()}, nil
	})
	p := NewPoller(src, "BTCBRL", time.Millisecond, latest)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	_, ok := latest.Load()
	assert.False(t, ok)
	assert.Equal(t, HealthError, p.Health())
}
