package core

import "testing"

// TestMinimalRoundScenarioS1 implements §8 S1 end to end.
func TestMinimalRoundScenarioS1(t *testing.T) {
	admin := addrFrom(1)
	l := setupConfiguredLedger(t, admin)
	rm := NewRoundManager(l)
	if _, err := rm.InitializeFirstRound(admin, 1000); err != nil {
		t.Fatalf("InitializeFirstRound: %v", err)
	}

	alice := addrFrom(2)
	if _, err := NewPurchaseEngine(l).BuyKeys(BuyKeysParams{Round: 1, Buyer: alice, N: 1, Now: 1000}); err != nil {
		t.Fatalf("BuyKeys: %v", err)
	}
	if got := l.VaultBalance(1); got != 9_800_000 {
		t.Fatalf("expected vault(1)=9_800_000, got %d", got)
	}

	ce := NewClaimEngine(l)
	res, err := ce.Claim(ClaimParams{Round: 1, Participant: alice, Now: 1000 + 86400 + 1})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.Total != 4_704_000+4_410_000 {
		t.Fatalf("expected total 9_114_000, got %d", res.Total)
	}

	r1, _ := l.Round(1)
	if r1.NextRoundPot != 686_000 {
		t.Fatalf("expected next_round_pot to remain 686_000, got %d", r1.NextRoundPot)
	}

	next, err := rm.StartNewRound(1, 1000+86400+2)
	if err != nil {
		t.Fatalf("StartNewRound: %v", err)
	}
	if l.VaultBalance(next.Round) != 686_000 {
		t.Fatalf("expected round 2's vault to receive the carried 686_000, got %d", l.VaultBalance(next.Round))
	}
}

func TestClaimRejectsWhileRoundActive(t *testing.T) {
	admin := addrFrom(1)
	l := initRoundForPurchaseTests(t, admin)
	alice := addrFrom(2)
	if _, err := NewPurchaseEngine(l).BuyKeys(BuyKeysParams{Round: 1, Buyer: alice, N: 1, Now: 1000}); err != nil {
		t.Fatalf("BuyKeys: %v", err)
	}
	_, err := NewClaimEngine(l).Claim(ClaimParams{Round: 1, Participant: alice, Now: 1001})
	if !isProgramError(err, ErrGameStillActive) {
		t.Fatalf("expected ErrGameStillActive, got %v", err)
	}
}

func TestClaimRejectsWrongRound(t *testing.T) {
	admin := addrFrom(1)
	l := initRoundForPurchaseTests(t, admin)
	alice := addrFrom(2)
	// Alice never buys into round 1; her current_round stays 0.
	_, err := NewClaimEngine(l).Claim(ClaimParams{Round: 1, Participant: alice, Now: 1000 + 86400 + 1})
	if !isProgramError(err, ErrPlayerNotInRound) {
		t.Fatalf("expected ErrPlayerNotInRound, got %v", err)
	}
}

// TestDoubleClaimPrevention implements §8 property 9.
func TestDoubleClaimPrevention(t *testing.T) {
	admin := addrFrom(1)
	l := initRoundForPurchaseTests(t, admin)
	alice := addrFrom(2)
	if _, err := NewPurchaseEngine(l).BuyKeys(BuyKeysParams{Round: 1, Buyer: alice, N: 1, Now: 1000}); err != nil {
		t.Fatalf("BuyKeys: %v", err)
	}
	ce := NewClaimEngine(l)
	if _, err := ce.Claim(ClaimParams{Round: 1, Participant: alice, Now: 1000 + 86400 + 1}); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := ce.Claim(ClaimParams{Round: 1, Participant: alice, Now: 1000 + 86400 + 2})
	if !isProgramError(err, ErrPlayerNotInRound) {
		t.Fatalf("expected second claim to fail with ErrPlayerNotInRound, got %v", err)
	}
}

// TestSingleWinnerGuarantee implements §8 property 6: a second winner claim
// never pays winner_pot twice.
func TestSingleWinnerGuarantee(t *testing.T) {
	admin := addrFrom(1)
	l := initRoundForPurchaseTests(t, admin)
	pe := NewPurchaseEngine(l)
	alice := addrFrom(2)
	bob := addrFrom(3)
	if _, err := pe.BuyKeys(BuyKeysParams{Round: 1, Buyer: alice, N: 1, Now: 1000}); err != nil {
		t.Fatalf("alice buy: %v", err)
	}
	if _, err := pe.BuyKeys(BuyKeysParams{Round: 1, Buyer: bob, N: 1, Now: 1001}); err != nil {
		t.Fatalf("bob buy: %v", err)
	}
	// bob is last_buyer now.
	ce := NewClaimEngine(l)
	aliceRes, err := ce.Claim(ClaimParams{Round: 1, Participant: alice, Now: 1000 + 86400 + 1})
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	if aliceRes.WinnerPrize != 0 {
		t.Fatalf("alice is not the last buyer and must not receive winner_prize, got %d", aliceRes.WinnerPrize)
	}
	bobRes, err := ce.Claim(ClaimParams{Round: 1, Participant: bob, Now: 1000 + 86400 + 2})
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	if bobRes.WinnerPrize == 0 {
		t.Fatalf("bob is the last buyer and must receive winner_prize")
	}
	r1, _ := l.Round(1)
	if !r1.WinnerClaimed {
		t.Fatalf("expected winner_claimed to latch true")
	}
}

// TestCrossRoundReferralClaimScenarioS4 implements §8 S4.
func TestCrossRoundReferralClaimScenarioS4(t *testing.T) {
	admin := addrFrom(1)
	l := initRoundForPurchaseTests(t, admin)
	pe := NewPurchaseEngine(l)
	alice := addrFrom(2)
	bob := addrFrom(3)

	if _, err := pe.BuyKeys(BuyKeysParams{Round: 1, Buyer: alice, N: 1, Now: 1000}); err != nil {
		t.Fatalf("alice buy: %v", err)
	}
	if _, err := pe.BuyKeys(BuyKeysParams{Round: 1, Buyer: bob, N: 1, Now: 1001, Referrer: &alice}); err != nil {
		t.Fatalf("bob buy: %v", err)
	}

	aliceAcct := l.Participant(alice)
	if aliceAcct.ReferralEarnings == 0 {
		t.Fatalf("expected alice to have accrued referral earnings")
	}

	ce := NewClaimEngine(l)
	if _, err := ce.Claim(ClaimParams{Round: 1, Participant: alice, Now: 1000 + 86400 + 1}); err != nil {
		t.Fatalf("alice main claim: %v", err)
	}
	if aliceAcct.CurrentRound != 0 {
		t.Fatalf("expected alice's current_round reset to 0 after claim")
	}

	swept, err := ce.ClaimReferralEarnings(ClaimReferralEarningsParams{Participant: alice, AccrualRound: 1})
	if err != nil {
		t.Fatalf("ClaimReferralEarnings: %v", err)
	}
	if swept == 0 {
		t.Fatalf("expected a nonzero sweep")
	}

	_, err = ce.ClaimReferralEarnings(ClaimReferralEarningsParams{Participant: alice, AccrualRound: 1})
	if !isProgramError(err, ErrNoReferralEarnings) {
		t.Fatalf("expected ErrNoReferralEarnings on second sweep, got %v", err)
	}
}

func TestRegisterReferrerLatchesOnce(t *testing.T) {
	l := newTestLedger(t)
	ce := NewClaimEngine(l)
	player := addrFrom(1)
	ref := addrFrom(2)
	if err := ce.RegisterReferrer(RegisterReferrerParams{Player: player, Referrer: ref}); err != nil {
		t.Fatalf("RegisterReferrer: %v", err)
	}
	other := addrFrom(3)
	err := ce.RegisterReferrer(RegisterReferrerParams{Player: player, Referrer: other})
	if !isProgramError(err, ErrReferrerMismatch) {
		t.Fatalf("expected ErrReferrerMismatch on re-registration with a different referrer, got %v", err)
	}
}

func TestRegisterReferrerRejectsSelf(t *testing.T) {
	l := newTestLedger(t)
	ce := NewClaimEngine(l)
	player := addrFrom(1)
	err := ce.RegisterReferrer(RegisterReferrerParams{Player: player, Referrer: player})
	if !isProgramError(err, ErrCannotReferSelf) {
		t.Fatalf("expected ErrCannotReferSelf, got %v", err)
	}
}
