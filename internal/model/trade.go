package model

import "time"

// Trade is the persisted record of an executed order. Both execution
// backends write the same schema so downstream consumers cannot tell
// them apart.
type Trade struct {
	ID           int64
	Symbol       string
	Side         Side
	EntryPrice   float64
	ExitPrice    *float64
	Quantity     float64
	PnL          float64
	Status       string
	EnteredAt    time.Time
	ExitedAt     *time.Time
	StrategyName string
}
