package strategy

import "time"

// Params tunes the moving-average crossover strategy.
type Params struct {
	ShortPeriod     int           `json:"shortPeriod"`
	LongPeriod      int           `json:"longPeriod"`
	SignalThreshold float64       `json:"signalThreshold"`
	TakeProfitPct   float64       `json:"takeProfitPct"`
	ProtectBandPct  float64       `json:"protectBandPct"`
	MinHoldings     float64       `json:"minHoldings"`
	MinBalance      float64       `json:"minBalance"`
	BuyFraction     float64       `json:"buyFraction"`
	TradeCooldown   time.Duration `json:"tradeCooldown"`
}

// DefaultParams returns the stock day-trade setup: MA periods sized for
// ten-second ticks, a threshold wide enough to clear fees, and a
// post-trade cooldown against churn.
func DefaultParams() Params {
	return Params{
		ShortPeriod:     30,
		LongPeriod:      120,
		SignalThreshold: 0.003,
		TakeProfitPct:   0.04,
		ProtectBandPct:  0.02,
		MinHoldings:     0.00001,
		MinBalance:      10,
		BuyFraction:     0.98,
		TradeCooldown:   30 * time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	def := DefaultParams()
	if p.ShortPeriod <= 0 {
		p.ShortPeriod = def.ShortPeriod
	}
	if p.LongPeriod <= 0 {
		p.LongPeriod = def.LongPeriod
	}
	if p.SignalThreshold <= 0 {
		p.SignalThreshold = def.SignalThreshold
	}
	if p.TakeProfitPct <= 0 {
		p.TakeProfitPct = def.TakeProfitPct
	}
	if p.ProtectBandPct <= 0 {
		p.ProtectBandPct = def.ProtectBandPct
	}
	if p.MinHoldings <= 0 {
		p.MinHoldings = def.MinHoldings
	}
	if p.MinBalance <= 0 {
		p.MinBalance = def.MinBalance
	}
	if p.BuyFraction <= 0 || p.BuyFraction > 1 {
		p.BuyFraction = def.BuyFraction
	}
	if p.TradeCooldown <= 0 {
		p.TradeCooldown = def.TradeCooldown
	}
	return p
}

// Action is the high-level intent for the current tick.
type Action uint8

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "hold"
	}
}

// Reason identifies which rule produced the signal.
type Reason string

const (
	ReasonTakeProfit     Reason = "take_profit"
	ReasonProtectiveSell Reason = "protective_sell"
	ReasonCrossoverSell  Reason = "crossover_sell"
	ReasonCrossoverBuy   Reason = "crossover_buy"
)

// Signal is the outcome of one evaluation: at most one action per tick.
type Signal struct {
	Action Action
	Reason Reason
}

// Input carries everything one evaluation needs.
type Input struct {
	Price      float64
	ShortMA    float64
	LongMA     float64
	Balance    float64
	Holdings   float64
	EntryPrice float64
	InCooldown bool
}

// Evaluate derives at most one signal from the current tick. Sell rules
// outrank the buy rule, and among sells take-profit outranks the
// protective sell, which outranks the crossover sell, so simultaneous
// conditions can never stack orders in a single tick.
func (p Params) Evaluate(in Input) Signal {
	holding := in.Holdings > p.MinHoldings

	if holding && in.EntryPrice > 0 {
		profit := (in.Price - in.EntryPrice) / in.EntryPrice
		if profit >= p.TakeProfitPct {
			return Signal{Action: ActionSell, Reason: ReasonTakeProfit}
		}
	}

	if holding && in.Price > in.LongMA*(1+p.ProtectBandPct) && in.Price < in.ShortMA {
		return Signal{Action: ActionSell, Reason: ReasonProtectiveSell}
	}

	if holding && in.ShortMA < in.LongMA*(1-p.SignalThreshold) {
		return Signal{Action: ActionSell, Reason: ReasonCrossoverSell}
	}

	if in.ShortMA > in.LongMA*(1+p.SignalThreshold) && !in.InCooldown && in.Balance > p.MinBalance {
		return Signal{Action: ActionBuy, Reason: ReasonCrossoverBuy}
	}

	return Signal{Action: ActionHold}
}
