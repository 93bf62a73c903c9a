// tecl.go implements the TECL strategy engine (§4.4): a bull/bear regime
// split, each with its own RSI-threshold cascade, sharing a "KMLM switcher"
// sub-tree that compares XLK and KMLM momentum to choose between TECL, BIL,
// and a bond/short pair.
//
// Grounded on original_source/core/tecl_trading_bot.py's
// evaluate_tecl_strategy and _kmlm_switcher.
package strategy

// TECLEngine evaluates the TECL decision tree.
type TECLEngine struct{}

// NewTECLEngine creates a TECL engine.
func NewTECLEngine() *TECLEngine {
	return &TECLEngine{}
}

func (e *TECLEngine) ID() string   { return "tecl" }
func (e *TECLEngine) Name() string { return "TECL" }

// Evaluate implements Engine. See §4.4 for the full decision tree.
func (e *TECLEngine) Evaluate(ind Indicators, closes map[string][]float64) Signal {
	bull := priceOf(ind, "SPY") > ma200Of(ind, "SPY")

	if bull {
		if rsiOf(ind, "TQQQ", 10) > 79 {
			return BuyWeights(WeightMap{"UVXY": 0.25, "BIL": 0.75}, "bull regime; TQQQ overbought (RSI(10) > 79)")
		}
		if rsiOf(ind, "SPY", 10) > 80 {
			return BuyWeights(WeightMap{"UVXY": 0.25, "BIL": 0.75}, "bull regime; SPY overbought (RSI(10) > 80)")
		}
		return e.kmlmSwitcher(ind, true)
	}

	if rsiOf(ind, "TQQQ", 10) < 31 {
		return BuySymbol("TECL", "bear regime; TQQQ deeply oversold (RSI(10) < 31), contrarian leveraged buy")
	}
	if rsiOf(ind, "SPXL", 10) < 29 {
		return BuySymbol("SPXL", "bear regime; SPXL deeply oversold (RSI(10) < 29), contrarian leveraged buy")
	}
	if rsiOf(ind, "UVXY", 10) > 84 {
		return BuyWeights(WeightMap{"UVXY": 0.15, "BIL": 0.85}, "bear regime; UVXY extremely overbought (RSI(10) > 84)")
	}
	if rsiOf(ind, "UVXY", 10) > 74 {
		return BuySymbol("BIL", "bear regime; UVXY overbought (RSI(10) > 74), move to cash")
	}
	return e.kmlmSwitcher(ind, false)
}

// kmlmSwitcher implements §4.4's shared KMLM switcher sub-tree.
func (e *TECLEngine) kmlmSwitcher(ind Indicators, bull bool) Signal {
	if !ind.has("XLK") || !ind.has("KMLM") {
		return BuySymbol("BIL", "missing data: XLK or KMLM indicators unavailable")
	}

	xlkRSI := rsiOf(ind, "XLK", 10)
	kmlmRSI := rsiOf(ind, "KMLM", 10)

	if xlkRSI > kmlmRSI {
		if xlkRSI > 81 {
			return BuySymbol("BIL", "KMLM switcher: XLK overbought relative to KMLM (RSI(10) > 81)")
		}
		return BuySymbol("TECL", "KMLM switcher: XLK stronger than KMLM")
	}

	if xlkRSI < 29 {
		return BuySymbol("TECL", "KMLM switcher: XLK deeply oversold (RSI(10) < 29), contrarian buy")
	}
	if bull {
		return BuySymbol("BIL", "KMLM switcher: KMLM stronger than XLK in bull regime, move to cash")
	}
	return e.bondShortFilter(ind)
}

// bondShortFilter implements the KMLM switcher's bear-regime fallback:
// among {SQQQ, BSV} using RSI(9), pick the one with the highest RSI.
func (e *TECLEngine) bondShortFilter(ind Indicators) Signal {
	sqqqOK := ind.has("SQQQ")
	bsvOK := ind.has("BSV")

	if !sqqqOK && !bsvOK {
		return BuySymbol("BIL", "KMLM switcher: bond/short filter unavailable, move to cash")
	}
	if !bsvOK {
		return BuySymbol("SQQQ", "KMLM switcher: bear regime, SQQQ bond/short filter (BSV unavailable)")
	}
	if !sqqqOK {
		return BuySymbol("BSV", "KMLM switcher: bear regime, BSV bond/short filter (SQQQ unavailable)")
	}

	sqqqRSI := rsiOf(ind, "SQQQ", 9)
	bsvRSI := rsiOf(ind, "BSV", 9)
	if sqqqRSI >= bsvRSI {
		return BuySymbol("SQQQ", "KMLM switcher: bear regime, SQQQ stronger (RSI(9)) of {SQQQ, BSV}")
	}
	return BuySymbol("BSV", "KMLM switcher: bear regime, BSV stronger (RSI(9)) of {SQQQ, BSV}")
}
