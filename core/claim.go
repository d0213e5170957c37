package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ClaimEngine implements §4.4: the combined end-of-round settlement and the
// separate, round-agnostic referral-earnings sweep.
type ClaimEngine struct {
	ledger *Ledger
	mu     sync.Mutex
}

// NewClaimEngine binds a ClaimEngine to a ledger.
func NewClaimEngine(l *Ledger) *ClaimEngine {
	return &ClaimEngine{ledger: l}
}

// ClaimParams carries claim's accounts.
type ClaimParams struct {
	Round       uint64
	Participant Address
	Now         int64
}

// ClaimResult reports the settled amounts.
type ClaimResult struct {
	DividendShare uint64
	WinnerPrize   uint64
	Total         uint64
}

// Claim implements claim(participant): combined dividend share plus winner
// prize, with double-claim prevention via the current_round sentinel reset.
func (ce *ClaimEngine) Claim(p ClaimParams) (ClaimResult, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	ce.ledger.mu.Lock()
	r, ok := ce.ledger.rounds[p.Round]
	ce.ledger.mu.Unlock()
	if !ok {
		return ClaimResult{}, withMsg(ErrGameNotActive, "round %d does not exist", p.Round)
	}

	autoEnd(ce.ledger, r, p.Now)
	if r.Active {
		return ClaimResult{}, withMsg(ErrGameStillActive, "round %d has not ended", p.Round)
	}

	participant := ce.ledger.Participant(p.Participant)
	if participant.CurrentRound != r.Round {
		return ClaimResult{}, withMsg(ErrPlayerNotInRound,
			"participant is not positioned in round %d (current_round=%d)", p.Round, participant.CurrentRound)
	}

	var share uint64
	if r.TotalKeys > 0 {
		share = participant.Keys * r.TotalDividendPool / r.TotalKeys
	}

	isWinner := participant.Player == r.LastBuyer && r.TotalKeys > 0 && !r.WinnerClaimed
	var winnerPrize uint64
	if isWinner {
		winnerPrize = r.WinnerPot
	}

	total := share + winnerPrize
	if total == 0 {
		return ClaimResult{}, withMsg(ErrNothingToClaim, "nothing to claim for participant in round %d", p.Round)
	}

	ce.ledger.mu.Lock()
	if err := ce.ledger.debitVault(r.Round, total); err != nil {
		ce.ledger.mu.Unlock()
		return ClaimResult{}, err
	}
	ce.ledger.mu.Unlock()

	r.TotalDividendPool -= share
	if isWinner {
		r.WinnerPot -= winnerPrize
		r.WinnerClaimed = true
	}
	participant.ClaimedDividendsTotal += share
	participant.Keys = 0
	participant.CurrentRound = 0

	ce.ledger.mu.Lock()
	if err := ce.ledger.putRound(r); err != nil {
		ce.ledger.mu.Unlock()
		return ClaimResult{}, err
	}
	if err := ce.ledger.putParticipant(participant); err != nil {
		ce.ledger.mu.Unlock()
		return ClaimResult{}, err
	}
	ce.ledger.mu.Unlock()

	if share > 0 {
		ce.ledger.publish(Event{Kind: EventDividendsClaimed, DividendsClaimed: &DividendsClaimed{
			Round: r.Round, Player: p.Participant, Amount: share,
		}})
	}
	if isWinner {
		ce.ledger.publish(Event{Kind: EventWinnerPaid, WinnerPaid: &WinnerPaid{
			Round: r.Round, Winner: p.Participant, Amount: winnerPrize,
		}})
		ce.ledger.publish(Event{Kind: EventRoundConcluded, RoundConcluded: &RoundConcluded{
			Round: r.Round, Winner: p.Participant, AtTimestamp: p.Now,
		}})
	}
	logrus.WithFields(logrus.Fields{
		"round": r.Round, "participant": p.Participant, "share": share, "winner_prize": winnerPrize,
	}).Info("claim")

	return ClaimResult{DividendShare: share, WinnerPrize: winnerPrize, Total: total}, nil
}

// ClaimReferralEarningsParams carries claim_referral_earnings's accounts.
// AccrualRound identifies which round's vault this sweep drains — the
// caller must supply the round the earnings were accrued in (§4.4: "this
// requires the instruction to receive the accruing round's vault").
type ClaimReferralEarningsParams struct {
	Participant  Address
	AccrualRound uint64
}

// ClaimReferralEarnings implements claim_referral_earnings(participant): a
// round-agnostic sweep of whatever accrued against AccrualRound.
func (ce *ClaimEngine) ClaimReferralEarnings(p ClaimReferralEarningsParams) (uint64, error) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	participant := ce.ledger.Participant(p.Participant)
	swept := participant.ReferralByRound[p.AccrualRound]
	if swept == 0 {
		return 0, withMsg(ErrNoReferralEarnings, "no referral earnings accrued in round %d", p.AccrualRound)
	}

	ce.ledger.mu.Lock()
	if err := ce.ledger.debitVault(p.AccrualRound, swept); err != nil {
		ce.ledger.mu.Unlock()
		return 0, err
	}
	ce.ledger.mu.Unlock()

	delete(participant.ReferralByRound, p.AccrualRound)
	participant.ReferralEarnings -= swept
	participant.ClaimedReferralEarnings += swept

	ce.ledger.mu.Lock()
	err := ce.ledger.putParticipant(participant)
	ce.ledger.mu.Unlock()
	if err != nil {
		return 0, err
	}

	ce.ledger.publish(Event{Kind: EventReferralEarningsClaimed, ReferralEarningsClaimed: &ReferralEarningsClaimed{
		Player: p.Participant, Amount: swept,
	}})
	logrus.WithFields(logrus.Fields{
		"participant": p.Participant, "round": p.AccrualRound, "swept": swept,
	}).Info("claim_referral_earnings")
	return swept, nil
}

// RegisterReferrerParams carries the supplemented register_referrer
// instruction (SPEC_FULL §4 — latches a referrer without requiring it to
// happen on the first buy).
type RegisterReferrerParams struct {
	Player   Address
	Referrer Address
}

// RegisterReferrer latches Referrer onto Player's account if Player has no
// referrer yet, matching the same self-reference and mismatch rules
// buy_keys enforces inline (§4.3 precondition 4).
func (ce *ClaimEngine) RegisterReferrer(p RegisterReferrerParams) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	if p.Referrer == p.Player {
		return withMsg(ErrCannotReferSelf, "referrer cannot equal player")
	}

	player := ce.ledger.Participant(p.Player)
	if player.HasReferrer {
		if player.Referrer != p.Referrer {
			return withMsg(ErrReferrerMismatch, "stored referrer %s does not match %s", player.Referrer, p.Referrer)
		}
		return nil
	}

	player.Referrer = p.Referrer
	player.HasReferrer = true

	ce.ledger.mu.Lock()
	err := ce.ledger.putParticipant(player)
	ce.ledger.mu.Unlock()
	return err
}
