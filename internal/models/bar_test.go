package models

import "testing"

func TestChannelAccessorsBySystem(t *testing.T) {
	s := IndicatorSet{High10: 1, Low10: 2, High20: 3, Low20: 4, High55: 5, Low55: 6}

	if s.EntryHigh(System1) != 3 || s.EntryLow(System1) != 4 {
		t.Fatalf("S1 entry channel must be the 20-day one")
	}
	if s.ExitHigh(System1) != 1 || s.ExitLow(System1) != 2 {
		t.Fatalf("S1 exit channel must be the 10-day one")
	}
	if s.EntryHigh(System2) != 5 || s.EntryLow(System2) != 6 {
		t.Fatalf("S2 entry channel must be the 55-day one")
	}
	if s.ExitHigh(System2) != 3 || s.ExitLow(System2) != 4 {
		t.Fatalf("S2 exit channel must be the 20-day one")
	}
}
