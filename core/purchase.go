package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// PurchaseEngine implements buy_keys (§4.3): cost computation, the
// three-stage fee split, timer extension, and accrual bookkeeping.
type PurchaseEngine struct {
	ledger *Ledger
	mu     sync.Mutex
}

// NewPurchaseEngine binds a PurchaseEngine to a ledger.
func NewPurchaseEngine(l *Ledger) *PurchaseEngine {
	return &PurchaseEngine{ledger: l}
}

// BuyKeysParams carries buy_keys's accounts and parameters.
type BuyKeysParams struct {
	Round    uint64
	Buyer    Address
	N        uint64
	Now      int64
	IsAgent  bool // recorded on the buyer's first buy of each round; later buys in that round ignore it, and a later round's first buy overwrites it

	// Referrer, if non-nil, is the buyer's claimed referrer for this call.
	// The caller resolves the referrer's Address from the instruction's
	// account list; PurchaseEngine only needs the address.
	Referrer *Address
}

// BuyKeysResult reports what happened, including the stale-buy no-op case
// (§7 "Non-error success on stale buy") where Applied is false and no other
// field is meaningful beyond AutoEnded.
type BuyKeysResult struct {
	Applied   bool
	AutoEnded bool
	Cost      uint64
	Split     FeeSplit
	NewTimerEnd int64
}

// BuyKeys implements §4.3 end to end.
func (pe *PurchaseEngine) BuyKeys(p BuyKeysParams) (BuyKeysResult, error) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	if p.N == 0 {
		return BuyKeysResult{}, withMsg(ErrNoKeysToBuy, "n must be >= 1")
	}

	pe.ledger.mu.Lock()
	r, ok := pe.ledger.rounds[p.Round]
	pe.ledger.mu.Unlock()
	if !ok {
		return BuyKeysResult{}, withMsg(ErrGameNotActive, "round %d does not exist", p.Round)
	}

	ended := autoEnd(pe.ledger, r, p.Now)
	if ended {
		pe.ledger.mu.Lock()
		_ = pe.ledger.putRound(r)
		pe.ledger.mu.Unlock()
		// §4.3 precondition 1: a buy landing exactly on expiry is a
		// successful no-op, not an error.
		return BuyKeysResult{Applied: false, AutoEnded: true}, nil
	}
	if !r.Active {
		return BuyKeysResult{}, withMsg(ErrGameNotActive, "round %d is not active", p.Round)
	}

	// Every pricing, fee-split, and timer computation below reads the round's
	// own config snapshot (§3.2, §4.1), not the ledger's live Config — an
	// upsert_config call mid-round must never retroactively reprice an
	// in-flight round (§6.1: buy_keys's readable accounts are
	// "round-snapshot only").
	cfg := &r.ConfigSnapshot

	buyer := pe.ledger.Participant(p.Buyer)
	if buyer.CurrentRound != 0 && buyer.CurrentRound != p.Round {
		return BuyKeysResult{}, withMsg(ErrPlayerAlreadyRegistered,
			"player has an unclaimed position in round %d", buyer.CurrentRound)
	}

	hasReferrer := buyer.HasReferrer
	var referrerAcct *Participant
	if p.Referrer != nil {
		if *p.Referrer == p.Buyer {
			return BuyKeysResult{}, withMsg(ErrCannotReferSelf, "referrer cannot equal buyer")
		}
		if buyer.HasReferrer {
			if buyer.Referrer != *p.Referrer {
				return BuyKeysResult{}, withMsg(ErrReferrerMismatch,
					"stored referrer %s does not match %s", buyer.Referrer, *p.Referrer)
			}
		} else {
			referrerAcct = pe.ledger.Participant(*p.Referrer)
			buyer.Referrer = *p.Referrer
			buyer.HasReferrer = true
			hasReferrer = true
		}
	}
	if hasReferrer && referrerAcct == nil {
		referrerAcct = pe.ledger.Participant(buyer.Referrer)
	}

	cost, err := BuyCost(cfg.BasePrice, cfg.PriceIncrement, r.TotalKeys, p.N)
	if err != nil {
		return BuyKeysResult{}, err
	}
	split := SplitFee(cost, *cfg, hasReferrer)

	isNewToRound := buyer.CurrentRound != r.Round

	r.TotalKeys += p.N
	r.LastBuyer = p.Buyer
	if isNewToRound {
		r.TotalPlayers++
	}
	r.WinnerPot += split.WinnerShare
	r.TotalDividendPool += split.DividendShare
	r.NextRoundPot += split.NextShare

	newTimerEnd := p.Now + cfg.TimerExtensionSecs
	ceiling := r.RoundStart + cfg.MaxTimerSecs
	if newTimerEnd > ceiling {
		newTimerEnd = ceiling
	}
	r.TimerEnd = newTimerEnd

	if isNewToRound {
		buyer.Keys = p.N
	} else {
		buyer.Keys += p.N
	}
	buyer.CurrentRound = r.Round
	if isNewToRound {
		buyer.IsAgent = p.IsAgent
	}

	if hasReferrer && split.ReferralCut > 0 {
		referrerAcct.ReferralEarnings += split.ReferralCut
		referrerAcct.ReferralByRound[r.Round] += split.ReferralCut
	}

	pe.ledger.mu.Lock()
	if err := pe.ledger.putRound(r); err != nil {
		pe.ledger.mu.Unlock()
		return BuyKeysResult{}, err
	}
	if err := pe.ledger.putParticipant(buyer); err != nil {
		pe.ledger.mu.Unlock()
		return BuyKeysResult{}, err
	}
	if hasReferrer {
		if err := pe.ledger.putParticipant(referrerAcct); err != nil {
			pe.ledger.mu.Unlock()
			return BuyKeysResult{}, err
		}
	}
	// The vault receives after_fee: pot_contribution + referral_cut. The
	// house fee never enters the vault (§4.3 stage 1 — paid direct to
	// protocol_wallet, modelled here as simply not credited anywhere on
	// this ledger since the protocol wallet is an external account).
	if err := pe.ledger.creditVault(r.Round, split.AfterFee); err != nil {
		pe.ledger.mu.Unlock()
		return BuyKeysResult{}, err
	}
	pe.ledger.mu.Unlock()

	CurrentProtocolFeeSink().Record(cfg.ProtocolWallet, split.House)

	pe.ledger.publish(Event{Kind: EventKeysPurchased, KeysPurchased: &KeysPurchased{
		Round: r.Round, Buyer: p.Buyer, N: p.N, Cost: cost, NewTimerEnd: newTimerEnd,
	}})
	logrus.WithFields(logrus.Fields{
		"round": r.Round, "buyer": p.Buyer, "n": p.N, "cost": cost,
	}).Info("buy_keys")

	return BuyKeysResult{Applied: true, Cost: cost, Split: split, NewTimerEnd: newTimerEnd}, nil
}
