package feed

import (
	"bufio"
	"context"
	"os"
	"time"

	"tradebot/internal/model"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Replay publishes a captured quote file into the Latest cell, pacing
// itself by the recorded inter-quote gaps scaled by Speed. Together with
// the simulated broker it turns a capture into an offline backtest.
type Replay struct {
	path  string
	speed float64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewReplay creates a replayer. Speed 1 plays in real time; higher is
// faster; zero or less defaults to 1.
func NewReplay(path string, speed float64) *Replay {
	if speed <= 0 {
		speed = 1
	}
	return &Replay{
		path:  path,
		speed: speed,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run streams the capture until it is exhausted or the context ends.
// Quotes are re-stamped to the current time so the controller's
// staleness check sees them as live.
func (r *Replay) Run(ctx context.Context, latest *Latest) error {
	file, err := os.Open(r.path)
	if err != nil {
		return errors.Wrap(err, "open quote capture").With("path", r.path)
	}
	defer file.Close()

	logs.Infof("replaying quotes from %s at %.1fx", r.path, r.speed)

	var (
		prevAt    time.Time
		published int
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var quote model.Quote
		if err := sonic.ConfigFastest.Unmarshal(line, &quote); err != nil {
			logs.Warnf("skipping malformed capture line: %v", err)
			continue
		}
		if quote.Price <= 0 {
			continue
		}

		if !prevAt.IsZero() && quote.At.After(prevAt) {
			gap := time.Duration(float64(quote.At.Sub(prevAt)) / r.speed)
			if err := r.sleep(ctx, gap); err != nil {
				return err
			}
		}
		prevAt = quote.At

		quote.At = time.Now().UTC()
		latest.Store(quote)
		published++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read quote capture")
	}
	logs.Infof("replay finished: %d quotes published", published)
	return nil
}
