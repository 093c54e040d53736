package store

import (
	"context"
	"sync"

	"tradebot/internal/model"
)

// Memory is an in-process Store. It backs paper trading when no
// database is configured and doubles as the test double.
type Memory struct {
	mu     sync.Mutex
	acct   *Account
	trades []model.Trade
	nextID int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

// LoadAccount returns the stored account scalars, if any were saved.
func (m *Memory) LoadAccount(ctx context.Context) (Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acct == nil {
		return Account{}, false, nil
	}
	return *m.acct, true, nil
}

// SaveAccount stores the account scalars.
func (m *Memory) SaveAccount(ctx context.Context, acct Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acct = &acct
	return nil
}

// SaveTrade appends a trade record, assigning an id when absent.
func (m *Memory) SaveTrade(ctx context.Context, trade *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if trade.ID == 0 {
		trade.ID = m.nextID
		m.nextID++
	} else if trade.ID >= m.nextID {
		m.nextID = trade.ID + 1
	}
	m.trades = append(m.trades, *trade)
	return nil
}

// RecentTrades returns up to limit trades, most recent first.
func (m *Memory) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Trade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

// LastTrade returns the most recent trade, nil when none exist.
func (m *Memory) LastTrade(ctx context.Context) (*model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.trades) == 0 {
		return nil, nil
	}
	last := m.trades[len(m.trades)-1]
	return &last, nil
}
