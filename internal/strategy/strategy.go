// Package strategy implements the Nuclear and TECL decision-tree engines.
//
// Design rules (from spec):
//   - A strategy engine is a pure decision function: same indicators and
//     market data in, same Signal out. No I/O, no mutable state, no clock
//     reads other than what the caller supplies via the inputs.
//   - Evaluate has no error return: "no clear signal" is a HOLD signal with
//     a reason. A panic inside Evaluate is a programming bug; the strategy
//     manager recovers it and records a HOLD with the panic value as reason.
package strategy

import "fmt"

// Action is what a strategy signal recommends.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// NamedPortfolio is a symbolic signal that expands to a concrete WeightMap
// given the current indicators and market data.
type NamedPortfolio string

const (
	NuclearPortfolioName NamedPortfolio = "NUCLEAR_PORTFOLIO"
	BearPortfolioName    NamedPortfolio = "BEAR_PORTFOLIO"
	UVXYBTALPortfolio    NamedPortfolio = "UVXY_BTAL_PORTFOLIO"
)

// WeightMap is a symbol -> weight allocation. Weights need not sum to 1 on
// their own; the strategy manager scales each engine's map by its capital
// share before merging.
type WeightMap map[string]float64

// Signal is what a strategy engine produces for one evaluation tick. Exactly
// one of Symbol, Portfolio, or Weights is set when Action is BUY or SELL;
// none are set for HOLD.
type Signal struct {
	Symbol    string
	Portfolio NamedPortfolio
	Weights   WeightMap
	Action    Action
	Reason    string
}

// HoldSignal builds a HOLD signal carrying reason, used both for the
// "no clear signal" terminal branch and for engine-failure recovery.
func HoldSignal(reason string) Signal {
	return Signal{Action: ActionHold, Reason: reason}
}

// BuySymbol builds a BUY signal targeting a single plain symbol.
func BuySymbol(symbol, reason string) Signal {
	return Signal{Symbol: symbol, Action: ActionBuy, Reason: reason}
}

// BuyPortfolio builds a BUY signal targeting a named portfolio.
func BuyPortfolio(p NamedPortfolio, reason string) Signal {
	return Signal{Portfolio: p, Action: ActionBuy, Reason: reason}
}

// BuyWeights builds a BUY signal targeting an explicit weight map.
func BuyWeights(w WeightMap, reason string) Signal {
	return Signal{Weights: w, Action: ActionBuy, Reason: reason}
}

// IndicatorSet is the per-symbol, per-tick indicator snapshot consumed by
// both engines. Values are always finite — see internal/indicator.SafeLast.
type IndicatorSet struct {
	RSI9         float64
	RSI10        float64
	RSI20        float64
	MA20         float64
	MA200        float64
	MAReturn90   float64
	CumReturn60  float64
	CurrentPrice float64
}

// Indicators maps symbol -> IndicatorSet for one evaluation tick.
type Indicators map[string]IndicatorSet

// has reports whether the symbol has any indicators at all.
func (ind Indicators) has(symbol string) bool {
	_, ok := ind[symbol]
	return ok
}

// Engine is the interface both the Nuclear and TECL strategy engines
// satisfy.
type Engine interface {
	ID() string
	Name() string
	Evaluate(indicators Indicators, closes map[string][]float64) Signal
}

// Recover turns a panic recovered from an Engine.Evaluate call into a HOLD
// signal carrying the panic value as the reason, per §4.5 step 3 /
// §7 "Strategy evaluation error".
func Recover(engineID string, r interface{}) Signal {
	return HoldSignal(fmt.Sprintf("%s: evaluation error: %v", engineID, r))
}
