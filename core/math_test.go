package core

import "testing"

func TestBuyCostMatchesIterativeSum(t *testing.T) {
	const base, incr = uint64(10_000_000), uint64(1_000_000)
	for _, tc := range []struct{ totalKeys, n uint64 }{
		{0, 1}, {0, 5}, {1, 1}, {10, 7}, {1000, 50},
	} {
		got, err := BuyCost(base, incr, tc.totalKeys, tc.n)
		if err != nil {
			t.Fatalf("BuyCost(%d,%d): %v", tc.totalKeys, tc.n, err)
		}
		var want uint64
		for i := uint64(0); i < tc.n; i++ {
			want += base + (tc.totalKeys+i)*incr
		}
		if got != want {
			t.Fatalf("BuyCost(%d,%d) = %d, want %d (iterative)", tc.totalKeys, tc.n, got, want)
		}
	}
}

func TestBuyCostZeroKeysRejected(t *testing.T) {
	if _, err := BuyCost(1, 1, 0, 0); err == nil {
		t.Fatalf("expected error for n=0")
	}
}

func TestBuyCostMonotonicInSupplyAndBatch(t *testing.T) {
	const base, incr = uint64(10_000_000), uint64(1_000_000)
	c1, _ := BuyCost(base, incr, 0, 1)
	c2, _ := BuyCost(base, incr, 100, 1)
	if c2 <= c1 {
		t.Fatalf("cost must strictly increase with total_keys: c1=%d c2=%d", c1, c2)
	}

	d1, _ := BuyCost(base, incr, 0, 1)
	d2, _ := BuyCost(base, incr, 0, 2)
	if d2 <= d1 {
		t.Fatalf("cost must strictly increase with n: d1=%d d2=%d", d1, d2)
	}
}

func TestSplitFeeClosureWithReferrer(t *testing.T) {
	cfg := Config{WinnerBps: 4800, DividendBps: 4500, NextRoundBps: 700, ProtocolFeeBps: 200, ReferralBonusBps: 1000}
	fs := SplitFee(11_000_000, cfg, true)
	sum := fs.House + fs.ReferralCut + fs.WinnerShare + fs.DividendShare + fs.NextShare
	if sum != fs.Cost {
		t.Fatalf("fee split does not close: sum=%d cost=%d", sum, fs.Cost)
	}
}

func TestSplitFeeClosureWithoutReferrer(t *testing.T) {
	cfg := Config{WinnerBps: 4800, DividendBps: 4500, NextRoundBps: 700, ProtocolFeeBps: 200, ReferralBonusBps: 1000}
	fs := SplitFee(10_000_000, cfg, false)
	if fs.ReferralCut != 0 {
		t.Fatalf("expected zero referral cut when hasReferrer=false, got %d", fs.ReferralCut)
	}
	sum := fs.House + fs.ReferralCut + fs.WinnerShare + fs.DividendShare + fs.NextShare
	if sum != fs.Cost {
		t.Fatalf("fee split does not close: sum=%d cost=%d", sum, fs.Cost)
	}
}

func TestSplitFeeS1Scenario(t *testing.T) {
	// §8 S1 — Minimal round: base=10M, single key, default bps.
	cfg := Config{WinnerBps: 4800, DividendBps: 4500, NextRoundBps: 700, ProtocolFeeBps: 200, ReferralBonusBps: 1000}
	cost, err := BuyCost(10_000_000, 1_000_000, 0, 1)
	if err != nil {
		t.Fatalf("BuyCost: %v", err)
	}
	if cost != 10_000_000 {
		t.Fatalf("expected cost 10_000_000, got %d", cost)
	}
	fs := SplitFee(cost, cfg, false)
	if fs.House != 200_000 {
		t.Fatalf("expected house fee 200_000, got %d", fs.House)
	}
	if fs.AfterFee != 9_800_000 {
		t.Fatalf("expected after_fee 9_800_000, got %d", fs.AfterFee)
	}
	if fs.WinnerShare != 4_704_000 {
		t.Fatalf("expected winner_pot 4_704_000, got %d", fs.WinnerShare)
	}
	if fs.DividendShare != 4_410_000 {
		t.Fatalf("expected dividend_pool 4_410_000, got %d", fs.DividendShare)
	}
	if fs.NextShare != 686_000 {
		t.Fatalf("expected next_round_pot 686_000, got %d", fs.NextShare)
	}
}
