// nuclear.go implements the Nuclear strategy engine (§4.3 of the spec):
// a hierarchical RSI/MA decision tree with an inverse-volatility-weighted
// portfolio construction step for the bull regime and a two-subgroup
// combined bear strategy for the bear regime.
//
// Grounded on original_source/core/nuclear_trading_bot.py's
// evaluate_nuclear_strategy, _bear_subgroup_1/_2, and
// _combine_bear_strategies_with_inverse_volatility.
package strategy

import (
	"math"

	"github.com/nitinkhare/algoTradingAgent/internal/indicator"
)

// RSI returns the RSI(n) field for n in {9, 10, 20}; any other window
// falls back to RSI10 since the decision trees never use another period.
func (s IndicatorSet) RSI(n int) float64 {
	switch n {
	case 9:
		return s.RSI9
	case 20:
		return s.RSI20
	default:
		return s.RSI10
	}
}

func rsiOf(ind Indicators, symbol string, n int) float64 {
	if s, ok := ind[symbol]; ok {
		return s.RSI(n)
	}
	return indicator.FallbackRSI
}

func priceOf(ind Indicators, symbol string) float64 {
	if s, ok := ind[symbol]; ok {
		return s.CurrentPrice
	}
	return 0
}

func ma20Of(ind Indicators, symbol string) float64 {
	if s, ok := ind[symbol]; ok {
		return s.MA20
	}
	return 0
}

func ma200Of(ind Indicators, symbol string) float64 {
	if s, ok := ind[symbol]; ok {
		return s.MA200
	}
	return 0
}

func cumReturn60Of(ind Indicators, symbol string) float64 {
	if s, ok := ind[symbol]; ok {
		return s.CumReturn60
	}
	return indicator.FallbackReturn
}

// NuclearEngine evaluates the hierarchical Nuclear decision tree.
type NuclearEngine struct {
	TopN int
}

// NewNuclearEngine creates a Nuclear engine selecting the top topN
// nuclear-universe constituents when the bull-regime portfolio branch fires.
func NewNuclearEngine(topN int) *NuclearEngine {
	if topN <= 0 {
		topN = 3
	}
	return &NuclearEngine{TopN: topN}
}

func (e *NuclearEngine) ID() string   { return "nuclear" }
func (e *NuclearEngine) Name() string { return "Nuclear" }

// overboughtEscalation implements steps 1-2 of §4.3: the nested "is SPY (or
// VOX) overbought, and is a more specific symbol extremely overbought"
// checks, in the spec's documented order (primary branch handles nested
// overbought, VOX is only checked once SPY <= 79 — see SPEC_FULL.md §13).
func (e *NuclearEngine) overboughtEscalation(ind Indicators) (Signal, bool) {
	spyRSI10 := rsiOf(ind, "SPY", 10)

	if spyRSI10 > 79 {
		if spyRSI10 > 81 {
			return BuySymbol("UVXY", "SPY extremely overbought (RSI > 81)"), true
		}
		for _, s := range []string{"IOO", "TQQQ", "VTV", "XLF"} {
			if ind.has(s) && rsiOf(ind, s, 10) > 81 {
				return BuySymbol("UVXY", s+" extremely overbought (RSI > 81)"), true
			}
		}
		return BuyPortfolio(UVXYBTALPortfolio, "SPY moderately overbought; 75/25 hedge"), true
	}

	voxRSI10 := rsiOf(ind, "VOX", 10)
	if voxRSI10 > 79 {
		if rsiOf(ind, "XLF", 10) > 81 {
			return BuySymbol("UVXY", "XLF extremely overbought (RSI > 81)"), true
		}
		return BuyPortfolio(UVXYBTALPortfolio, "VOX moderately overbought; 75/25 hedge"), true
	}

	return Signal{}, false
}

// Evaluate implements Engine. See §4.3 for the full decision tree.
func (e *NuclearEngine) Evaluate(ind Indicators, closes map[string][]float64) Signal {
	if sig, matched := e.overboughtEscalation(ind); matched {
		return sig
	}

	if rsiOf(ind, "TQQQ", 10) < 30 {
		return BuySymbol("TQQQ", "TQQQ oversold")
	}
	if rsiOf(ind, "SPY", 10) < 30 {
		return BuySymbol("UPRO", "SPY oversold; leveraged dip buy")
	}

	bull := priceOf(ind, "SPY") > ma200Of(ind, "SPY")
	if bull {
		portfolio := NuclearPortfolio(ind, closes, e.TopN)
		if len(portfolio) == 0 {
			return BuySymbol("SMR", "bull regime; nuclear portfolio empty, default nuclear energy play")
		}
		return BuyPortfolio(NuclearPortfolioName, "bull regime; nuclear top-N inverse-volatility portfolio")
	}

	return e.bearCombined(ind, closes)
}

type bearSignal struct {
	symbol string
	reason string
}

func bondsStrongerThanPSQ(ind Indicators) bool {
	return rsiOf(ind, "TLT", 20) > rsiOf(ind, "PSQ", 20)
}

func iefStrongerThanPSQ(ind Indicators) bool {
	return rsiOf(ind, "IEF", 10) > rsiOf(ind, "PSQ", 20)
}

// bearSubgroup1 implements §4.3.2's Bear-1 sub-strategy.
func bearSubgroup1(ind Indicators) bearSignal {
	if rsiOf(ind, "PSQ", 10) < 35 {
		return bearSignal{"SQQQ", "PSQ oversold (RSI(10) < 35)"}
	}
	if cumReturn60Of(ind, "QQQ") < -10 {
		if bondsStrongerThanPSQ(ind) {
			return bearSignal{"TQQQ", "QQQ weak but bonds strong vs PSQ, contrarian"}
		}
		return bearSignal{"PSQ", "QQQ weak, bonds not confirming"}
	}
	if ind.has("TQQQ") {
		if priceOf(ind, "TQQQ") > ma20Of(ind, "TQQQ") {
			if bondsStrongerThanPSQ(ind) {
				return bearSignal{"TQQQ", "TQQQ above its MA20, bonds confirm"}
			}
			return bearSignal{"SQQQ", "TQQQ above its MA20, bonds not confirming"}
		}
		if rsiOf(ind, "IEF", 10) > rsiOf(ind, "PSQ", 20) {
			return bearSignal{"SQQQ", "TQQQ below MA20, IEF stronger than PSQ"}
		}
		if bondsStrongerThanPSQ(ind) {
			return bearSignal{"QQQ", "TQQQ below MA20, bonds confirm"}
		}
		return bearSignal{"SQQQ", "TQQQ below MA20, no confirmation"}
	}
	return bearSignal{"SQQQ", "TQQQ unavailable"}
}

// bearSubgroup2 implements §4.3.2's Bear-2 sub-strategy (the variant without
// the QQQ-weak clause and without the IEF clause).
func bearSubgroup2(ind Indicators) bearSignal {
	if rsiOf(ind, "PSQ", 10) < 35 {
		return bearSignal{"SQQQ", "PSQ oversold (RSI(10) < 35)"}
	}
	if ind.has("TQQQ") {
		if priceOf(ind, "TQQQ") > ma20Of(ind, "TQQQ") {
			if bondsStrongerThanPSQ(ind) {
				return bearSignal{"TQQQ", "TQQQ above its MA20, bonds confirm"}
			}
			return bearSignal{"SQQQ", "TQQQ above its MA20, bonds not confirming"}
		}
		if bondsStrongerThanPSQ(ind) {
			return bearSignal{"QQQ", "TQQQ below MA20, bonds confirm"}
		}
		return bearSignal{"SQQQ", "TQQQ below MA20, no confirmation"}
	}
	return bearSignal{"SQQQ", "TQQQ unavailable"}
}

// bearVolatilityFallback is the fixed per-symbol volatility table used when
// a symbol has neither enough price history nor any indicators at all — the
// last tier of the three-tier fallback chain documented in SPEC_FULL.md
// §4.3.2 addendum, grounded on
// original_source/core/nuclear_trading_bot.py's _get_14_day_volatility.
var bearVolatilityFallback = map[string]float64{
	"SQQQ": 0.55,
	"TQQQ": 0.55,
	"PSQ":  0.25,
	"QQQ":  0.22,
	"TLT":  0.15,
	"IEF":  0.08,
}

// bearVolatility implements the three-tier fallback chain: price-history
// stddev over the last 14 returns, else an RSI-distance-from-50 proxy, else
// the fixed per-symbol table, else 0.3.
func bearVolatility(symbol string, ind Indicators, closes map[string][]float64) float64 {
	returns := dailyReturns(closes[symbol])
	if len(returns) >= 14 {
		last := returns[len(returns)-14:]
		sigma := stddev(last) * math.Sqrt(tradingDaysPerYear)
		return math.Max(sigma, 0.01)
	}
	if s, ok := ind[symbol]; ok {
		distance := math.Abs(s.RSI10-50) / 50
		proxy := distance*0.4 + 0.15
		return math.Min(math.Max(proxy, 0.1), 0.8)
	}
	if fallback, ok := bearVolatilityFallback[symbol]; ok {
		return fallback
	}
	return 0.3
}

// bearCombined implements §4.3.2's combination step: run both bear
// sub-strategies, and if they agree, emit the single signal; otherwise
// build BEAR_PORTFOLIO from inverse-volatility weights over the two
// distinct symbols, dropping weights below 1%.
func (e *NuclearEngine) bearCombined(ind Indicators, closes map[string][]float64) Signal {
	bear1 := bearSubgroup1(ind)
	bear2 := bearSubgroup2(ind)

	if bear1.symbol == bear2.symbol {
		return BuySymbol(bear1.symbol, bear1.reason)
	}

	vol1 := bearVolatility(bear1.symbol, ind, closes)
	vol2 := bearVolatility(bear2.symbol, ind, closes)

	weights := inverseVolatilityWeights(map[string]float64{
		bear1.symbol: vol1,
		bear2.symbol: vol2,
	})

	filtered := make(WeightMap, len(weights))
	for symbol, w := range weights {
		if w > 0.01 {
			filtered[symbol] = w
		}
	}

	if len(filtered) == 0 {
		return BuySymbol(bear1.symbol, bear1.reason)
	}

	return BuyPortfolio(BearPortfolioName, "bear regime; combined "+bear1.symbol+"/"+bear2.symbol+" inverse-volatility portfolio")
}

// ExpandBearPortfolio recomputes §4.3.2's combination for the strategy
// manager's named-portfolio expansion step (§4.5 step 4), since the engine
// itself only emits the BEAR_PORTFOLIO tag plus a reason, not the weight
// map — the manager needs to call this with the same inputs to recover it.
func ExpandBearPortfolio(ind Indicators, closes map[string][]float64) WeightMap {
	bear1 := bearSubgroup1(ind)
	bear2 := bearSubgroup2(ind)
	if bear1.symbol == bear2.symbol {
		return WeightMap{bear1.symbol: 1.0}
	}

	vol1 := bearVolatility(bear1.symbol, ind, closes)
	vol2 := bearVolatility(bear2.symbol, ind, closes)
	weights := inverseVolatilityWeights(map[string]float64{
		bear1.symbol: vol1,
		bear2.symbol: vol2,
	})

	filtered := make(WeightMap, len(weights))
	for symbol, w := range weights {
		if w > 0.01 {
			filtered[symbol] = w
		}
	}
	if len(filtered) == 0 {
		return WeightMap{bear1.symbol: 1.0}
	}
	return filtered
}
