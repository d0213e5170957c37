package core

import "github.com/holiman/uint256"

// BuyCost computes the arithmetic-series bonding-curve price of §4.3:
//
//	cost = n*base_price + price_increment*n*(2*total_keys + n - 1)/2
//
// Every intermediate multiplication is carried out in a 256-bit integer
// (github.com/holiman/uint256, the same library the retrieval pack's
// Olivetum dividend contract uses for EVM-state arithmetic) so that the
// product never wraps before the final division, even though realistic
// game sizes never approach the overflow boundary described in §9. The
// final result must still fit in 64 bits or ErrOverflow is returned.
func BuyCost(basePrice, priceIncrement, totalKeys, n uint64) (uint64, error) {
	if n == 0 {
		return 0, withMsg(ErrNoKeysToBuy, "n must be >= 1")
	}

	base := new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(basePrice))

	// price_increment * n * (2*total_keys + n - 1) / 2
	two := uint256.NewInt(2)
	twoK := new(uint256.Int).Mul(two, uint256.NewInt(totalKeys))
	series := new(uint256.Int).Add(twoK, uint256.NewInt(n))
	series.Sub(series, uint256.NewInt(1)) // 2*total_keys + n - 1

	incrTerm := new(uint256.Int).Mul(uint256.NewInt(priceIncrement), uint256.NewInt(n))
	incrTerm.Mul(incrTerm, series)
	incrTerm.Div(incrTerm, two)

	total := new(uint256.Int).Add(base, incrTerm)
	if !total.IsUint64() {
		return 0, withMsg(ErrOverflow, "cost overflows 64 bits")
	}
	return total.Uint64(), nil
}

// bpsOf computes amount*bps/10000 using 256-bit intermediates, matching the
// "all intermediate multiplications performed in 128-bit" rule of §9 — using
// a wider type than strictly required rather than less.
func bpsOf(amount, bps uint64) uint64 {
	v := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(bps))
	v.Div(v, uint256.NewInt(10000))
	return v.Uint64() // amount*bps/10000 always fits in 64 bits for bps <= 10000
}

// FeeSplit is the result of the three-stage split of §4.3.
type FeeSplit struct {
	Cost          uint64
	House         uint64
	AfterFee      uint64
	ReferralCut   uint64
	PotContribution uint64
	WinnerShare   uint64
	DividendShare uint64
	NextShare     uint64
}

// SplitFee implements the fee ordering of §4.3: house fee off the top, then
// referral cut from the remainder (if a referrer is latched), then the pot
// split of whatever remains. hasReferrer must be false when the buyer has no
// latched referrer — SplitFee does not itself decide eligibility.
func SplitFee(cost uint64, cfg Config, hasReferrer bool) FeeSplit {
	fs := FeeSplit{Cost: cost}

	fs.House = bpsOf(cost, cfg.ProtocolFeeBps)
	fs.AfterFee = cost - fs.House

	potContribution := fs.AfterFee
	if hasReferrer {
		fs.ReferralCut = bpsOf(fs.AfterFee, cfg.ReferralBonusBps)
		potContribution = fs.AfterFee - fs.ReferralCut
	}
	fs.PotContribution = potContribution

	fs.WinnerShare = bpsOf(potContribution, cfg.WinnerBps)
	fs.DividendShare = bpsOf(potContribution, cfg.DividendBps)
	fs.NextShare = bpsOf(potContribution, cfg.NextRoundBps)

	// Dust from integer division on any of the three pot splits stays in
	// the dividend pool (§9 "Dust handling"), favouring distributees over
	// any single bucket.
	spent := fs.WinnerShare + fs.DividendShare + fs.NextShare
	if spent < potContribution {
		fs.DividendShare += potContribution - spent
	}
	return fs
}
