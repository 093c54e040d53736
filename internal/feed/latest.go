package feed

import (
	"sync/atomic"

	"tradebot/internal/model"
)

// Latest is the single shared cell between the market-data task and the
// trading controller. Exactly one goroutine writes it; readers get an
// immutable snapshot, so no lock is needed.
type Latest struct {
	v atomic.Value
}

// NewLatest creates an empty cell.
func NewLatest() *Latest {
	return &Latest{}
}

// Store publishes a new quote.
func (l *Latest) Store(q model.Quote) {
	l.v.Store(q)
}

// Load returns the latest quote. The second return is false before the
// first quote arrives.
func (l *Latest) Load() (model.Quote, bool) {
	q, ok := l.v.Load().(model.Quote)
	return q, ok
}
