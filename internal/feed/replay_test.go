package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradebot/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestRecordAndReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.jsonl")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, price := range []float64{50000, 50100, 50250} {
		require.NoError(t, rec.Append(model.Quote{
			Symbol: "BTCBRL",
			Price:  price,
			Source: "binance",
			At:     base.Add(time.Duration(i) * 10 * time.Second),
		}))
	}
	require.NoError(t, rec.Close())

	latest := NewLatest()
	replay := NewReplay(path, 1000)
	var slept []time.Duration
	replay.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, replay.Run(context.Background(), latest))

	got, ok := latest.Load()
	require.True(t, ok)
	assert.Equal(t, "BTCBRL", got.Symbol)
	assert.InDelta(t, 50250, got.Price, 1e-9)
	assert.WithinDuration(t, time.Now(), got.At, time.Minute, "replayed quotes are re-stamped as live")

	// Two gaps of 10s each, scaled down by the speed factor.
	require.Len(t, slept, 2)
	assert.Equal(t, 10*time.Millisecond, slept[0])
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.jsonl")
	rec, err := NewRecorder(path)
	require.NoError(t, err)
	require.NoError(t, rec.Append(model.Quote{Symbol: "BTCBRL", Price: 50000, At: time.Now()}))
	require.NoError(t, rec.Close())

	// Corrupt tail, as after a crash mid-write.
	appendLine(t, path, "{\"symbol\":\"BTCBRL\",\"pri")
	appendLine(t, path, "")

	latest := NewLatest()
	replay := NewReplay(path, 1)
	replay.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	require.NoError(t, replay.Run(context.Background(), latest))

	got, ok := latest.Load()
	require.True(t, ok)
	assert.InDelta(t, 50000, got.Price, 1e-9)
}

func TestReplayMissingFile(t *testing.T) {
	replay := NewReplay(filepath.Join(t.TempDir(), "absent.jsonl"), 1)
	require.Error(t, replay.Run(context.Background(), NewLatest()))
}

func TestRecorderWrapCapturesFetches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotes.jsonl")
	rec, err := NewRecorder(path)
	require.NoError(t, err)

	src := rec.Wrap(SourceFunc(func(ctx context.Context, symbol string) (model.Quote, error) {
		return model.Quote{Symbol: symbol, Price: 42000, At: time.Now()}, nil
	}))
	for range 3 {
		_, err := src.Ticker(context.Background(), "BTCBRL")
		require.NoError(t, err)
	}
	require.NoError(t, rec.Close())

	latest := NewLatest()
	replay := NewReplay(path, 1)
	replay.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	require.NoError(t, replay.Run(context.Background(), latest))
	got, ok := latest.Load()
	require.True(t, ok)
	assert.InDelta(t, 42000, got.Price, 1e-9)
}

func TestSimSourceDeterministicWalk(t *testing.T) {
	a := NewSimSource(50000, 0.001, 7)
	b := NewSimSource(50000, 0.001, 7)

	for range 10 {
		qa, err := a.Ticker(context.Background(), "BTCBRL")
		require.NoError(t, err)
		qb, err := b.Ticker(context.Background(), "BTCBRL")
		require.NoError(t, err)
		assert.Equal(t, qa.Price, qb.Price, "same seed must reproduce the walk")
		assert.Greater(t, qa.Price, 0.0)
	}
}
