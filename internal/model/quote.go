package model

import "time"

// Quote is the latest observed price for a symbol.
type Quote struct {
	Symbol string
	Price  float64
	Source string
	At     time.Time
}
