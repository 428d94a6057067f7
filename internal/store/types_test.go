package store

import "testing"

func TestSignal_Priority_Buy(t *testing.T) {
	s := Signal{Kind: KindBuy, Score: 72}
	if got := s.Priority(); got != 28 {
		t.Errorf("Priority() = %d, want 28", got)
	}
}

func TestSignal_Priority_StrongBuy(t *testing.T) {
	s := Signal{Kind: KindStrongBuy, Score: 95}
	if got := s.Priority(); got != 5 {
		t.Errorf("Priority() = %d, want 5", got)
	}
}

func TestSignal_Priority_Sells(t *testing.T) {
	cases := []struct {
		kind SignalKind
		want int
	}{
		{KindSellStopLoss, 0},
		{KindSellSmartExit, 5},
		{KindSellTakeProfit, 10},
	}
	for _, c := range cases {
		s := Signal{Kind: c.kind}
		if got := s.Priority(); got != c.want {
			t.Errorf("Priority(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestSignalKind_IsBuy(t *testing.T) {
	if !KindBuy.IsBuy() || !KindStrongBuy.IsBuy() {
		t.Error("expected BUY and STRONG_BUY to be buy kinds")
	}
	if KindSellStopLoss.IsBuy() {
		t.Error("expected SELL_STOP_LOSS to not be a buy kind")
	}
}
