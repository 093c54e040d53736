package store

import (
	"context"

	"tradebot/internal/model"
)

// Account is the persisted scalar state owned by the execution broker.
type Account struct {
	Balance  float64
	Holdings float64
}

// Store is the persistence contract the trading core depends on:
// scalar load/save for the account, an append-only trade log, and the
// most-recent-trade query used at startup to decide whether to restore
// an open position.
type Store interface {
	LoadAccount(ctx context.Context) (Account, bool, error)
	SaveAccount(ctx context.Context, acct Account) error
	SaveTrade(ctx context.Context, trade *model.Trade) error
	RecentTrades(ctx context.Context, limit int) ([]model.Trade, error)
	LastTrade(ctx context.Context) (*model.Trade, error)
}
