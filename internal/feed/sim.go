package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"tradebot/internal/model"
)

// SimSource synthesizes a seeded random-walk price series. It stands in
// for the exchange when paper trading offline; the same seed reproduces
// the same walk.
type SimSource struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last float64
	vol  float64
}

// NewSimSource creates a walk starting at basePrice. Each tick moves by
// a normally distributed fraction with standard deviation volatilityPct.
func NewSimSource(basePrice, volatilityPct float64, seed int64) *SimSource {
	if basePrice <= 0 {
		basePrice = 100
	}
	if volatilityPct <= 0 {
		volatilityPct = 0.0005
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimSource{
		rng:  rand.New(rand.NewSource(seed)),
		last: basePrice,
		vol:  volatilityPct,
	}
}

// Ticker implements Source.
func (s *SimSource) Ticker(ctx context.Context, symbol string) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.last * (1 + s.rng.NormFloat64()*s.vol)
	if next <= 0 {
		next = s.last
	}
	s.last = next

	return model.Quote{
		Symbol: symbol,
		Price:  next,
		Source: "simulated",
		At:     time.Now().UTC(),
	}, nil
}
