// Package manager implements the Strategy Manager (§4.5): it fetches
// history for the union of both engines' universes, computes an
// IndicatorSet per symbol, runs both decision-tree engines with
// panic-recovery, expands their signals into weight maps, and merges them
// under a fixed capital-allocation split into a single ConsolidatedPortfolio.
package manager

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/nitinkhare/algoTradingAgent/internal/market"
	"github.com/nitinkhare/algoTradingAgent/internal/strategy"
)

// Allocations is the fixed per-strategy capital-allocation split. Must sum
// to 1.0 within 0.01 (§4.5).
type Allocations struct {
	Nuclear float64
	TECL    float64
}

// Manager runs both strategy engines each tick and merges their output.
type Manager struct {
	provider    *market.Provider
	nuclear     *strategy.NuclearEngine
	tecl        *strategy.TECLEngine
	allocations Allocations
	logger      *log.Logger

	historyPeriod   string
	historyInterval string
	topN            int
}

// New constructs a Manager. allocations.Nuclear + allocations.TECL must sum
// to 1.0 within 0.01, per §4.5. topN is the Nuclear portfolio's top-N size
// (must match the value the NuclearEngine itself was built with); 0 falls
// back to the default of 3.
func New(provider *market.Provider, nuclear *strategy.NuclearEngine, tecl *strategy.TECLEngine, allocations Allocations, topN int, logger *log.Logger) (*Manager, error) {
	sum := allocations.Nuclear + allocations.TECL
	if math.Abs(sum-1.0) > 0.01 {
		return nil, fmt.Errorf("manager: strategy allocations must sum to 1.0 (+/- 0.01), got %.4f", sum)
	}
	if topN <= 0 {
		topN = 3
	}
	return &Manager{
		provider:        provider,
		nuclear:         nuclear,
		tecl:            tecl,
		allocations:     allocations,
		logger:          logger,
		historyPeriod:   "1y",
		historyInterval: "1d",
		topN:            topN,
	}, nil
}

// universe is the deduplicated union of every symbol either engine reads.
func (m *Manager) universe() []string {
	seen := make(map[string]bool)
	var all []string
	add := func(symbols []string) {
		for _, s := range symbols {
			if !seen[s] {
				seen[s] = true
				all = append(all, s)
			}
		}
	}
	add(strategy.NuclearUniverse())
	add(strategy.NuclearEngineUniverse())
	add(strategy.TECLUniverse())

	sort.Strings(all)
	return all
}

// Evaluate runs one tick: step 1 (fetch history), step 2 (compute
// indicators), step 3 (run engines with panic recovery), step 4-7 (expand,
// scale by alpha, merge, default-to-cash, log deviation).
func (m *Manager) Evaluate(ctx context.Context) strategy.WeightMap {
	symbols := m.universe()

	closes := make(map[string][]float64, len(symbols))
	indicators := make(strategy.Indicators, len(symbols))

	for _, symbol := range symbols {
		bars := m.provider.GetHistory(ctx, symbol, m.historyPeriod, m.historyInterval)
		series := bars.Closes()
		if len(series) == 0 {
			continue
		}
		closes[symbol] = series
		indicators[symbol] = strategy.ComputeIndicatorSet(series)
	}

	nuclearSignal := m.runEngine(m.nuclear, indicators, closes)
	teclSignal := m.runEngine(m.tecl, indicators, closes)

	nuclearWeights := m.expand(nuclearSignal, indicators, closes)
	teclWeights := m.expand(teclSignal, indicators, closes)

	consolidated := mergeScaled(nuclearWeights, m.allocations.Nuclear, teclWeights, m.allocations.TECL)

	if len(consolidated) == 0 {
		m.logger.Printf("consolidated portfolio empty; defaulting to cash (BIL)")
		return strategy.WeightMap{"BIL": 1.0}
	}

	var total float64
	for _, w := range consolidated {
		total += w
	}
	if math.Abs(total-1.0) > 0.05 {
		m.logger.Printf("warning: consolidated portfolio weight sum %.4f deviates from 1.0 by more than 0.05; not renormalizing", total)
	}

	return consolidated
}

func (m *Manager) runEngine(engine strategy.Engine, indicators strategy.Indicators, closes map[string][]float64) (sig strategy.Signal) {
	defer func() {
		if r := recover(); r != nil {
			sig = strategy.Recover(engine.ID(), r)
			m.logger.Printf("%s engine panicked during evaluation: %v", engine.Name(), r)
		}
	}()
	return engine.Evaluate(indicators, closes)
}

// expand implements §4.5 step 4: turn a Signal into a concrete WeightMap.
func (m *Manager) expand(sig strategy.Signal, indicators strategy.Indicators, closes map[string][]float64) strategy.WeightMap {
	if sig.Action != strategy.ActionBuy {
		return nil
	}

	switch {
	case sig.Weights != nil:
		return sig.Weights
	case sig.Symbol != "":
		return strategy.WeightMap{sig.Symbol: 1.0}
	case sig.Portfolio == strategy.NuclearPortfolioName:
		portfolio := strategy.NuclearPortfolio(indicators, closes, m.topN)
		if len(portfolio) == 0 {
			m.logger.Printf("nuclear portfolio expansion empty, defaulting to SMR")
			return strategy.WeightMap{"SMR": 1.0}
		}
		return portfolio
	case sig.Portfolio == strategy.UVXYBTALPortfolio:
		return strategy.WeightMap{"UVXY": 0.75, "BTAL": 0.25}
	case sig.Portfolio == strategy.BearPortfolioName:
		portfolio := strategy.ExpandBearPortfolio(indicators, closes)
		if len(portfolio) == 0 {
			return strategy.WeightMap{"SQQQ": 0.6, "TQQQ": 0.4}
		}
		return portfolio
	default:
		return nil
	}
}

// mergeScaled scales each engine's weight map by its capital share and sums
// them into a single consolidated portfolio.
func mergeScaled(a strategy.WeightMap, alphaA float64, b strategy.WeightMap, alphaB float64) strategy.WeightMap {
	merged := make(strategy.WeightMap)
	for symbol, w := range a {
		merged[symbol] += w * alphaA
	}
	for symbol, w := range b {
		merged[symbol] += w * alphaB
	}
	return merged
}
