package core

import (
	"fmt"
	"sort"
)

// ParticipantRegistry provides read-side reporting over a Ledger's
// participant accounts — listing, existence checks, and vault-equation
// auditing — adapted from the teacher's AccountManager (originally a
// coin-balance CRUD wrapper) to this program's read-mostly participant
// accounts, since all participant mutation is already gated through
// PurchaseEngine and ClaimEngine rather than a generic Transfer call.
type ParticipantRegistry struct {
	ledger *Ledger
}

// NewParticipantRegistry binds a registry to the given ledger.
func NewParticipantRegistry(l *Ledger) *ParticipantRegistry {
	return &ParticipantRegistry{ledger: l}
}

// Exists reports whether addr has ever been created as a participant.
func (pr *ParticipantRegistry) Exists(addr Address) bool {
	pr.ledger.mu.RLock()
	defer pr.ledger.mu.RUnlock()
	_, ok := pr.ledger.participants[addr]
	return ok
}

// List returns every known participant address, sorted by hex string for
// deterministic CLI output.
func (pr *ParticipantRegistry) List() []Address {
	pr.ledger.mu.RLock()
	defer pr.ledger.mu.RUnlock()
	out := make([]Address, 0, len(pr.ledger.participants))
	for a := range pr.ledger.participants {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// VaultInvariantReport is the computed left/right side of §4.5's ledger
// invariant for one round.
type VaultInvariantReport struct {
	Round              uint64
	VaultBalance       uint64
	WinnerPot          uint64
	TotalDividendPool  uint64
	NextRoundPot       uint64
	PendingReferrals   uint64
	ExpectedMinimum    uint64 // buckets + referrals; vault must be >= this, difference is dust
	Dust               uint64
}

// CheckVaultInvariant computes the §4.5 vault balance equation for round
// and reports the components plus the dust remainder, or an error if the
// round doesn't exist.
func (pr *ParticipantRegistry) CheckVaultInvariant(round uint64) (VaultInvariantReport, error) {
	pr.ledger.mu.RLock()
	defer pr.ledger.mu.RUnlock()

	r, ok := pr.ledger.rounds[round]
	if !ok {
		return VaultInvariantReport{}, fmt.Errorf("round %d does not exist", round)
	}

	var pending uint64
	for _, p := range pr.ledger.participants {
		pending += p.ReferralByRound[round]
	}

	bal := pr.ledger.vaults[round]
	expected := r.WinnerPot + r.TotalDividendPool + r.NextRoundPot + pending
	var dust uint64
	if bal > expected {
		dust = bal - expected
	}

	return VaultInvariantReport{
		Round:             round,
		VaultBalance:      bal,
		WinnerPot:         r.WinnerPot,
		TotalDividendPool: r.TotalDividendPool,
		NextRoundPot:      r.NextRoundPot,
		PendingReferrals:  pending,
		ExpectedMinimum:   expected,
		Dust:              dust,
	}, nil
}
