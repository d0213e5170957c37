package core

import "testing"

func validUpsertParams(admin, wallet Address) UpsertConfigParams {
	return UpsertConfigParams{
		Signer: admin, BasePrice: 10_000_000, PriceIncrement: 1_000_000,
		TimerExtensionSecs: 30, MaxTimerSecs: 86400,
		WinnerBps: 4800, DividendBps: 4500, NextRoundBps: 700,
		ProtocolFeeBps: 200, ReferralBonusBps: 1000, ProtocolWallet: wallet,
	}
}

func TestUpsertConfigFirstCallBecomesAdmin(t *testing.T) {
	l := newTestLedger(t)
	ca := NewConfigAuthority(l)
	admin := addrFrom(1)
	if err := ca.UpsertConfig(validUpsertParams(admin, addrFrom(2))); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	cfg := l.Config()
	if cfg == nil || cfg.Admin != admin {
		t.Fatalf("expected admin to be latched to first caller, got %+v", cfg)
	}
}

func TestUpsertConfigRejectsNonAdmin(t *testing.T) {
	l := newTestLedger(t)
	ca := NewConfigAuthority(l)
	admin := addrFrom(1)
	if err := ca.UpsertConfig(validUpsertParams(admin, addrFrom(2))); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	impostor := addrFrom(99)
	err := ca.UpsertConfig(validUpsertParams(impostor, addrFrom(2)))
	if !isProgramError(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpsertConfigValidatesBpsSum(t *testing.T) {
	l := newTestLedger(t)
	ca := NewConfigAuthority(l)
	p := validUpsertParams(addrFrom(1), addrFrom(2))
	p.NextRoundBps = 800 // sum now 10100
	err := ca.UpsertConfig(p)
	if !isProgramError(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for bad bps sum, got %v", err)
	}
}

func TestUpsertConfigValidatesPositivePrices(t *testing.T) {
	l := newTestLedger(t)
	ca := NewConfigAuthority(l)
	p := validUpsertParams(addrFrom(1), addrFrom(2))
	p.BasePrice = 0
	if err := ca.UpsertConfig(p); !isProgramError(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero base_price, got %v", err)
	}
}

func TestUpsertConfigRecordsHistory(t *testing.T) {
	l := newTestLedger(t)
	ca := NewConfigAuthority(l)
	admin := addrFrom(1)
	if err := ca.UpsertConfig(validUpsertParams(admin, addrFrom(2))); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	p2 := validUpsertParams(admin, addrFrom(3))
	p2.BasePrice = 20_000_000
	if err := ca.UpsertConfig(p2); err != nil {
		t.Fatalf("UpsertConfig (update): %v", err)
	}
	hist := l.ConfigHistory()
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	if hist[1].Applied.BasePrice != 20_000_000 {
		t.Fatalf("expected second entry to reflect updated base_price")
	}
	if hist[0].Digest == "" || hist[0].Digest == hist[1].Digest {
		t.Fatalf("expected distinct, non-empty digests per entry, got %q and %q", hist[0].Digest, hist[1].Digest)
	}
}

// isProgramError reports whether err is a *ProgramError carrying sentinel's code.
func isProgramError(err error, sentinel *ProgramError) bool {
	pe, ok := err.(*ProgramError)
	return ok && pe.Code == sentinel.Code
}
