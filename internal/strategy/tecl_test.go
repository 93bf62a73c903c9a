package strategy

import "testing"

func TestTECL_BullTQQQOverbought(t *testing.T) {
	e := NewTECLEngine()
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 90, 0, 0, 450), // price > MA200 => bull
		"TQQQ": ind(50, 82, 50, 60, 55, 0, 0, 65),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Weights["UVXY"] != 0.25 || sig.Weights["BIL"] != 0.75 {
		t.Fatalf("expected BUY {UVXY:0.25, BIL:0.75}, got %+v", sig)
	}
}

func TestTECL_BearBondShortFilter(t *testing.T) {
	e := NewTECLEngine()
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 110, 0, 0, 95), // price < MA200 => bear
		"TQQQ": ind(50, 40, 50, 60, 55, 0, 0, 58),
		"SPXL": ind(50, 40, 50, 100, 95, 0, 0, 98),
		"UVXY": ind(50, 50, 50, 20, 18, 0, 0, 19),
		"XLK":  ind(50, 45, 50, 200, 190, 0, 0, 195),
		"KMLM": ind(50, 55, 50, 30, 29, 0, 0, 30),
		"SQQQ": ind(65, 50, 50, 15, 14, 0, 0, 14),
		"BSV":  ind(45, 50, 50, 78, 77, 0, 0, 77),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "SQQQ" {
		t.Fatalf("expected BUY SQQQ, got %+v", sig)
	}
}

func TestTECL_MissingKMLMData_FallsBackToBIL(t *testing.T) {
	e := NewTECLEngine()
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 90, 0, 0, 450),
		"TQQQ": ind(50, 50, 50, 60, 55, 0, 0, 65),
		"XLK":  ind(50, 50, 50, 200, 190, 0, 0, 195),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "BIL" {
		t.Fatalf("expected BUY BIL on missing KMLM, got %+v", sig)
	}
}

func TestTECL_KMLMSwitcher_XLKExtremelyOverbought(t *testing.T) {
	e := NewTECLEngine()
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 90, 0, 0, 450),
		"TQQQ": ind(50, 50, 50, 60, 55, 0, 0, 65),
		"XLK":  ind(50, 82, 50, 200, 190, 0, 0, 195),
		"KMLM": ind(50, 60, 50, 30, 29, 0, 0, 30),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "BIL" {
		t.Fatalf("expected BUY BIL (XLK overbought), got %+v", sig)
	}
}

func TestTECL_KMLMSwitcher_XLKDeeplyOversold(t *testing.T) {
	e := NewTECLEngine()
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 110, 0, 0, 95),
		"TQQQ": ind(50, 40, 50, 60, 55, 0, 0, 58),
		"SPXL": ind(50, 40, 50, 100, 95, 0, 0, 98),
		"UVXY": ind(50, 50, 50, 20, 18, 0, 0, 19),
		"XLK":  ind(50, 20, 50, 200, 190, 0, 0, 195),
		"KMLM": ind(50, 60, 50, 30, 29, 0, 0, 30),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Action != ActionBuy || sig.Symbol != "TECL" {
		t.Fatalf("expected BUY TECL (XLK deeply oversold), got %+v", sig)
	}
}

func TestTECL_BoundarySemantics_StrictInequality(t *testing.T) {
	e := NewTECLEngine()
	indicators := Indicators{
		"SPY":  ind(50, 50, 50, 100, 90, 0, 0, 450),
		"TQQQ": ind(50, 79, 50, 60, 55, 0, 0, 65),
		"XLK":  ind(50, 50, 50, 200, 190, 0, 0, 195),
		"KMLM": ind(50, 50, 50, 30, 29, 0, 0, 30),
	}
	sig := e.Evaluate(indicators, nil)
	if sig.Weights["UVXY"] == 0.25 {
		t.Fatalf("RSI==79 should not trigger the >79 branch, got %+v", sig)
	}
}
