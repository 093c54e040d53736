package risk

import (
	"fmt"
	"time"

	"github.com/yanun0323/logs"
)

// Config defines the capital-protection limits. PositionSizePct,
// StopLossPct and DrawdownLimit are mutable at runtime through
// UpdateLimits; the rest is fixed at construction.
type Config struct {
	MaxPositionSizePct   float64       `json:"maxPositionSizePct"`
	StopLossPct          float64       `json:"stopLossPct"`
	MaxDrawdownLimit     float64       `json:"maxDrawdownLimit"`
	MaxDailyTrades       int           `json:"maxDailyTrades"`
	MaxConsecutiveLosses int           `json:"maxConsecutiveLosses"`
	CooldownPeriod       time.Duration `json:"cooldownPeriod"`
}

// DefaultConfig returns the stock limits. The stock position cap is the
// whole equity so the controller's default buy sizing clears it; tighten
// it per deployment.
func DefaultConfig() Config {
	return Config{
		MaxPositionSizePct:   1.0,
		StopLossPct:          0.05,
		MaxDrawdownLimit:     0.30,
		MaxDailyTrades:       10,
		MaxConsecutiveLosses: 3,
		CooldownPeriod:       time.Hour,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxPositionSizePct <= 0 {
		c.MaxPositionSizePct = def.MaxPositionSizePct
	}
	if c.MaxDrawdownLimit <= 0 {
		c.MaxDrawdownLimit = def.MaxDrawdownLimit
	}
	if c.MaxDailyTrades <= 0 {
		c.MaxDailyTrades = def.MaxDailyTrades
	}
	if c.MaxConsecutiveLosses <= 0 {
		c.MaxConsecutiveLosses = def.MaxConsecutiveLosses
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = def.CooldownPeriod
	}
	return c
}

// State is the engine's trading gate state.
type State uint8

const (
	StateNormal State = iota
	StateCooldown
	StateKillSwitchTripped
)

func (s State) String() string {
	switch s {
	case StateCooldown:
		return "cooldown"
	case StateKillSwitchTripped:
		return "kill_switch_tripped"
	default:
		return "normal"
	}
}

// Decision is the advisory verdict for a proposed trade. It carries no
// side effects; the caller decides whether to honor it.
type Decision struct {
	Allowed bool
	Reason  string
}

// Engine gates trading on drawdown, loss streaks and trade frequency.
// The kill switch is monotonic: once tripped it stays tripped until an
// external reset.
type Engine struct {
	cfg Config

	baselineEquity    float64
	currentEquity     float64
	dailyTrades       int
	consecutiveLosses int
	cooldownUntil     time.Time
	killSwitch        bool

	now func() time.Time
}

// NewEngine creates a risk engine with the given limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg.withDefaults(),
		now: time.Now,
	}
}

// Config returns the active limits.
func (e *Engine) Config() Config {
	return e.cfg
}

// UpdateLimits replaces the operator-tunable limits. Zero values are ignored.
func (e *Engine) UpdateLimits(positionSizePct, stopLossPct, drawdownLimit float64) {
	if positionSizePct > 0 {
		e.cfg.MaxPositionSizePct = positionSizePct
	}
	if stopLossPct > 0 {
		e.cfg.StopLossPct = stopLossPct
	}
	if drawdownLimit > 0 {
		e.cfg.MaxDrawdownLimit = drawdownLimit
	}
}

// UpdateEquity records the latest total equity. The first observation
// fixes the drawdown baseline; every call re-checks the kill switch.
func (e *Engine) UpdateEquity(totalEquity float64) {
	if e.baselineEquity == 0 {
		e.baselineEquity = totalEquity
	}
	e.currentEquity = totalEquity
	e.checkDrawdown()
}

func (e *Engine) checkDrawdown() {
	if e.baselineEquity <= 0 || e.killSwitch {
		return
	}
	drawdown := (e.baselineEquity - e.currentEquity) / e.baselineEquity
	if drawdown >= e.cfg.MaxDrawdownLimit {
		e.killSwitch = true
		logs.Errorf("kill switch engaged: drawdown %.2f%% reached, equity %.2f (baseline %.2f)",
			drawdown*100, e.currentEquity, e.baselineEquity)
	}
}

// RegisterTradeResult feeds a realized pnl into the loss-streak and
// daily counters. The configured loss streak triggers a cooldown and
// resets the streak.
func (e *Engine) RegisterTradeResult(pnl float64) {
	e.dailyTrades++
	if pnl < 0 {
		e.consecutiveLosses++
	} else {
		e.consecutiveLosses = 0
	}
	if e.consecutiveLosses >= e.cfg.MaxConsecutiveLosses {
		e.cooldownUntil = e.now().Add(e.cfg.CooldownPeriod)
		e.consecutiveLosses = 0
		logs.Warnf("%d consecutive losses, cooldown until %s",
			e.cfg.MaxConsecutiveLosses, e.cooldownUntil.Format(time.RFC3339))
	}
}

// CanTrade reports whether the gate is open.
func (e *Engine) CanTrade() bool {
	if e.killSwitch {
		return false
	}
	if e.now().Before(e.cooldownUntil) {
		return false
	}
	if e.dailyTrades >= e.cfg.MaxDailyTrades {
		return false
	}
	return true
}

// ValidateTrade checks a proposed trade against the gate and, for
// position-increasing trades, the position-size limit. Sells reduce
// exposure and are never blocked on size, otherwise a full exit could
// never clear the cap. It never mutates state.
func (e *Engine) ValidateTrade(side string, quantity, price, equity float64) Decision {
	if !e.CanTrade() {
		return Decision{Allowed: false, Reason: fmt.Sprintf("risk engine blocked (%s)", e.State())}
	}
	tradeValue := price * quantity
	if side == "buy" && tradeValue > equity*e.cfg.MaxPositionSizePct {
		return Decision{
			Allowed: false,
			Reason: fmt.Sprintf("position size %.2f > %.0f%% of equity %.2f",
				tradeValue, e.cfg.MaxPositionSizePct*100, equity),
		}
	}
	return Decision{Allowed: true, Reason: "ok"}
}

// State returns the current gate state.
func (e *Engine) State() State {
	switch {
	case e.killSwitch:
		return StateKillSwitchTripped
	case e.now().Before(e.cooldownUntil):
		return StateCooldown
	default:
		return StateNormal
	}
}

// KillSwitchActive reports whether the kill switch has tripped.
func (e *Engine) KillSwitchActive() bool {
	return e.killSwitch
}

// BaselineEquity returns the fixed drawdown baseline, zero before the
// first equity observation.
func (e *Engine) BaselineEquity() float64 {
	return e.baselineEquity
}
