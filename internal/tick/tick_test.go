package tick

import "testing"

func TestRound_HKLadder(t *testing.T) {
	got := Round("0700.HK", 85.38)
	if got != 85.40 {
		t.Errorf("Round(0700.HK, 85.38) = %v, want 85.40", got)
	}
}

func TestRound_USHalfToEven(t *testing.T) {
	got := Round("AAPL.US", 182.505)
	if got != 182.50 {
		t.Errorf("Round(AAPL.US, 182.505) = %v, want 182.50", got)
	}
}

func TestRound_Idempotent(t *testing.T) {
	cases := []struct {
		symbol string
		price  float64
	}{
		{"0700.HK", 85.38},
		{"9988.HK", 312.70},
		{"AAPL.US", 182.505},
		{"TSLA.US", 0.005},
	}
	for _, c := range cases {
		once := Round(c.symbol, c.price)
		twice := Round(c.symbol, once)
		if once != twice {
			t.Errorf("Round not idempotent for %s %v: once=%v twice=%v", c.symbol, c.price, once, twice)
		}
	}
}

func TestRound_LadderBoundaries(t *testing.T) {
	cases := []struct {
		symbol string
		price  float64
		tick   float64
	}{
		{"X.HK", 0.10, 0.001},
		{"X.HK", 0.30, 0.005},
		{"X.HK", 5.00, 0.01},
		{"X.HK", 15.00, 0.02},
		{"X.HK", 50.00, 0.05},
		{"X.HK", 150.00, 0.10},
		{"X.HK", 300.00, 0.20},
		{"X.HK", 700.00, 0.50},
		{"X.HK", 1500.00, 1.00},
		{"X.HK", 3000.00, 2.00},
		{"X.HK", 6000.00, 5.00},
	}
	for _, c := range cases {
		if got := tickFor(c.symbol, c.price); got != c.tick {
			t.Errorf("tickFor(%v) = %v, want %v", c.price, got, c.tick)
		}
	}
}

func TestSellNotBelowRaw(t *testing.T) {
	if !SellNotBelowRaw("0700.HK", 85.38, 85.35) {
		t.Error("expected rounded price within one tick of raw to pass")
	}
	if SellNotBelowRaw("0700.HK", 85.38, 80.00) {
		t.Error("expected rounded price far below raw to fail")
	}
}
