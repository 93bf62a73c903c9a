package strategy

import (
	"testing"
)

func ind(rsi9, rsi10, rsi20, ma20, ma200, maReturn90, cumReturn60, price float64) IndicatorSet {
	return IndicatorSet{
		RSI9: rsi9, RSI10: rsi10, RSI20: rsi20,
		MA20: ma20, MA200: ma200,
		MAReturn90: maReturn90, CumReturn60: cumReturn60,
		CurrentPrice: price,
	}
}

func TestNuclear_ExtremeOverbought_SPY(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY": ind(50, 82, 50, 100, 90, 0, 0, 450),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "UVXY" {
		t.Fatalf("expected BUY UVXY, got %+v", sig)
	}
}

func TestNuclear_ModerateOverbought_SPY_Hedge(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY": ind(50, 80, 50, 100, 90, 0, 0, 450),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Portfolio != UVXYBTALPortfolio {
		t.Fatalf("expected BUY UVXY_BTAL_PORTFOLIO, got %+v", sig)
	}
}

func TestNuclear_SPYNotOverbought_BoundaryAt79(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY": ind(50, 79, 50, 100, 90, 0, 0, 450),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action == ActionBuy && sig.Symbol == "UVXY" {
		t.Fatalf("RSI==79 should not trigger overbought branch, got %+v", sig)
	}
}

func TestNuclear_VOXOverbought_OnlyCheckedWhenSPYNotOverbought(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY": ind(50, 60, 50, 100, 90, 0, 0, 450),
		"VOX": ind(50, 80, 50, 100, 90, 0, 0, 150),
		"XLF": ind(50, 82, 50, 100, 90, 0, 0, 40),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "UVXY" {
		t.Fatalf("expected BUY UVXY from XLF extreme overbought via VOX branch, got %+v", sig)
	}
}

func TestNuclear_TQQQOversold(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 90, 0, 0, 450),
		"VOX":  ind(50, 50, 50, 100, 90, 0, 0, 150),
		"TQQQ": ind(50, 25, 50, 100, 90, 0, 0, 60),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "TQQQ" {
		t.Fatalf("expected BUY TQQQ, got %+v", sig)
	}
}

func TestNuclear_BullRegime_NuclearPortfolio(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 90, 0, 0, 450), // price > MA200 => bull
		"TQQQ": ind(50, 50, 50, 100, 90, 0, 0, 60),
		"SMR":  ind(50, 50, 50, 20, 18, 10, 5, 25),
		"BWXT": ind(50, 50, 50, 90, 85, 8, 4, 95),
		"LEU":  ind(50, 50, 50, 150, 140, 5, 3, 155),
	}
	closes := map[string][]float64{
		"SMR":  constSeries(25, 100),
		"BWXT": constSeries(95, 100),
		"LEU":  constSeries(155, 100),
	}
	sig := e.Evaluate(indicators, closes)
	if sig.Action != ActionBuy || sig.Portfolio != NuclearPortfolioName {
		t.Fatalf("expected BUY NUCLEAR_PORTFOLIO, got %+v", sig)
	}
}

func TestNuclear_BearRegime_AgreeingSubgroups(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY": ind(50, 50, 50, 100, 110, 0, 0, 95), // price < MA200 => bear
		"PSQ": ind(50, 20, 50, 20, 18, 0, 0, 19),   // RSI10 < 35 on both subgroups
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "SQQQ" {
		t.Fatalf("expected BUY SQQQ (agreeing subgroups), got %+v", sig)
	}
}

func TestNuclear_BearRegime_DisagreeingSubgroups_BuildsBearPortfolio(t *testing.T) {
	e := NewNuclearEngine(3)
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 110, 0, 0, 95),
		"PSQ":  ind(50, 50, 50, 20, 18, 0, 0, 19),
		"QQQ":  ind(50, 50, 50, 300, 290, 0, -15, 280),
		"TLT":  ind(50, 50, 70, 90, 85, 0, 0, 88),
		"TQQQ": ind(50, 50, 50, 65, 60, 0, 0, 60),
		"IEF":  ind(50, 60, 50, 95, 93, 0, 0, 94),
	}
	sig := e.Evaluate(indicators, map[string][]float64{})
	if sig.Action != ActionBuy {
		t.Fatalf("expected a BUY signal, got %+v", sig)
	}
}

func TestBearVolatility_FallbackChain(t *testing.T) {
	indicators := Indicators{
		"PSQ": ind(50, 60, 50, 20, 18, 0, 0, 19),
	}

	// tier 1: enough price history.
	closes := map[string][]float64{"PSQ": constSeries(20, 20)}
	v := bearVolatility("PSQ", indicators, closes)
	if v < 0.01 {
		t.Errorf("expected a positive volatility floor, got %v", v)
	}

	// tier 2: not enough history but has indicators.
	v2 := bearVolatility("PSQ", indicators, map[string][]float64{})
	if v2 < 0.1 || v2 > 0.8 {
		t.Errorf("expected RSI-proxy volatility within [0.1, 0.8], got %v", v2)
	}

	// tier 3: no history and no indicators, symbol in fixed table.
	v3 := bearVolatility("SQQQ", Indicators{}, map[string][]float64{})
	if v3 != 0.55 {
		t.Errorf("expected fixed-table volatility 0.55 for SQQQ, got %v", v3)
	}

	// tier 4: unknown symbol entirely.
	v4 := bearVolatility("ZZZZ", Indicators{}, map[string][]float64{})
	if v4 != 0.3 {
		t.Errorf("expected default fallback 0.3, got %v", v4)
	}
}

func constSeries(value float64, n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = value
	}
	return s
}
