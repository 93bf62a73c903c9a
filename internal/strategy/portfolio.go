package strategy

import (
	"math"
	"sort"

	"github.com/nitinkhare/algoTradingAgent/internal/indicator"
)

// ComputeIndicatorSet derives an IndicatorSet from a close-price series,
// applying SafeLast fallback semantics to every field (§4.2).
func ComputeIndicatorSet(closes []float64) IndicatorSet {
	if len(closes) == 0 {
		return IndicatorSet{
			RSI9: indicator.FallbackRSI, RSI10: indicator.FallbackRSI, RSI20: indicator.FallbackRSI,
			MA20: indicator.FallbackRSI, MA200: indicator.FallbackRSI,
		}
	}
	return IndicatorSet{
		RSI9:         indicator.SafeLast(indicator.RSI(closes, 9), indicator.FallbackRSI),
		RSI10:        indicator.SafeLast(indicator.RSI(closes, 10), indicator.FallbackRSI),
		RSI20:        indicator.SafeLast(indicator.RSI(closes, 20), indicator.FallbackRSI),
		MA20:         indicator.SafeLastMA(indicator.SMA(closes, 20), closes),
		MA200:        indicator.SafeLastMA(indicator.SMA(closes, 200), closes),
		MAReturn90:   indicator.SafeLast(indicator.MAReturn(closes, 90), indicator.FallbackReturn),
		CumReturn60:  indicator.SafeLast(indicator.CumReturn(closes, 60), indicator.FallbackReturn),
		CurrentPrice: closes[len(closes)-1],
	}
}

// dailyReturns converts a close-price series into simple daily returns.
func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

const tradingDaysPerYear = 252

// annualizedVolatility computes §4.3.1's σ = stddev(last `window` daily
// returns) * sqrt(252), falling back to 0.3 when fewer than `window` returns
// are available, and always clamping to a floor of 0.01.
func annualizedVolatility(closes []float64, window int) float64 {
	returns := dailyReturns(closes)
	if len(returns) < window {
		return 0.3
	}
	last := returns[len(returns)-window:]
	sigma := stddev(last) * math.Sqrt(tradingDaysPerYear)
	return math.Max(sigma, 0.01)
}

// inverseVolatilityWeights normalizes 1/sigma across symbols into weights
// summing to 1.0.
func inverseVolatilityWeights(volBySymbol map[string]float64) WeightMap {
	var sumInv float64
	for _, sigma := range volBySymbol {
		sumInv += 1 / sigma
	}
	if sumInv == 0 {
		return WeightMap{}
	}
	weights := make(WeightMap, len(volBySymbol))
	for symbol, sigma := range volBySymbol {
		weights[symbol] = (1 / sigma) / sumInv
	}
	return weights
}

// nuclearUniverse lists the symbols ranked by ma_return_90 for top-N
// selection.
var nuclearUniverse = []string{"SMR", "BWXT", "LEU", "EXC", "NLR", "OKLO"}

// NuclearUniverse returns the nuclear-portfolio candidate symbols.
func NuclearUniverse() []string {
	out := make([]string, len(nuclearUniverse))
	copy(out, nuclearUniverse)
	return out
}

// NuclearEngineUniverse lists every symbol the Nuclear engine's decision
// tree reads an indicator for, beyond the nuclear candidate universe
// itself (§4.3).
func NuclearEngineUniverse() []string {
	return []string{
		"SPY", "VOX", "XLF", "IOO", "TQQQ", "VTV", "UPRO",
		"PSQ", "QQQ", "TLT", "IEF", "SQQQ", "UVXY", "BTAL",
	}
}

// TECLUniverse lists the symbols the TECL engine's decision tree reads
// an indicator for (§4.4).
func TECLUniverse() []string {
	return []string{"SPY", "TQQQ", "SPXL", "TECL", "XLK", "KMLM", "UVXY", "BIL", "BSV", "SQQQ"}
}

// NuclearPortfolio implements §4.3.1: rank the nuclear universe by
// ma_return_90 descending, take the top topN (padding from the remaining
// universe with performance 0 if fewer than topN have indicators), then
// weight the selection by inverse 90-day annualized volatility.
func NuclearPortfolio(indicators Indicators, closes map[string][]float64, topN int) WeightMap {
	type candidate struct {
		symbol      string
		performance float64
		hasData     bool
	}

	candidates := make([]candidate, 0, len(nuclearUniverse))
	for _, symbol := range nuclearUniverse {
		ind, ok := indicators[symbol]
		if ok {
			candidates = append(candidates, candidate{symbol: symbol, performance: ind.MAReturn90, hasData: true})
		} else {
			candidates = append(candidates, candidate{symbol: symbol, performance: 0, hasData: false})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].performance > candidates[j].performance
	})

	if topN <= 0 {
		topN = 3
	}
	if topN > len(candidates) {
		topN = len(candidates)
	}
	selected := candidates[:topN]

	volBySymbol := make(map[string]float64, len(selected))
	for _, c := range selected {
		volBySymbol[c.symbol] = annualizedVolatility(closes[c.symbol], 90)
	}

	return inverseVolatilityWeights(volBySymbol)
}
