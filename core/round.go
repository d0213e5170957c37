package core

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// RoundState is the per-round account of §3.2. Every Config parameter is
// snapshotted into it at creation time, decoupling in-flight rounds from
// later admin edits (§4.1's "does not retroactively affect any live round").
type RoundState struct {
	Round            uint64
	RoundStart       int64
	TimerEnd         int64
	Active           bool
	WinnerClaimed    bool
	LastBuyer        Address
	TotalKeys        uint64
	TotalPlayers     uint64
	WinnerPot        uint64
	TotalDividendPool uint64
	NextRoundPot     uint64

	// ConfigSnapshot is the Config as it stood when this round was created.
	ConfigSnapshot Config
}

// RoundManager implements the lifecycle instructions of §4.2:
// initialize_first_round and start_new_round, plus the auto-end protocol
// shared by every round-touching instruction.
type RoundManager struct {
	ledger *Ledger
	mu     sync.Mutex
}

// NewRoundManager binds a RoundManager to a ledger.
func NewRoundManager(l *Ledger) *RoundManager {
	return &RoundManager{ledger: l}
}

// InitializeFirstRound implements §4.2's initialize_first_round. Fails with
// ErrUnauthorized if signer isn't admin, and with a CodeInvalidConfig
// ProgramError if round 1 already exists (rounds are never destroyed, so this
// is a programmer/deployment mistake, not a player-reachable state).
func (rm *RoundManager) InitializeFirstRound(signer Address, now int64) (*RoundState, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.ledger.mu.Lock()
	cfg := rm.ledger.config
	_, exists := rm.ledger.rounds[1]
	rm.ledger.mu.Unlock()

	if cfg == nil {
		return nil, withMsg(ErrInvalidConfig, "config must be set before initializing round 1")
	}
	if cfg.Admin != signer {
		return nil, withMsg(ErrUnauthorized, "signer %s is not admin %s", signer, cfg.Admin)
	}
	if exists {
		return nil, newErr(CodeInvalidConfig, "round 1 already initialized")
	}

	r := &RoundState{
		Round:          1,
		RoundStart:     now,
		TimerEnd:       now + cfg.MaxTimerSecs,
		Active:         true,
		ConfigSnapshot: cfg.clone(),
	}

	rm.ledger.mu.Lock()
	err := rm.ledger.putRound(r)
	rm.ledger.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rm.ledger.publish(Event{Kind: EventRoundStarted, RoundStarted: &RoundStarted{Round: 1, InitialPot: 0}})
	logrus.WithField("round", 1).Info("initialize_first_round")
	return r, nil
}

// StartNewRound implements §4.2's start_new_round. It is permissionless.
// prevRound must exist; the new round is always prevRound+1.
func (rm *RoundManager) StartNewRound(prevRoundNo uint64, now int64) (*RoundState, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.ledger.mu.Lock()
	prev, ok := rm.ledger.rounds[prevRoundNo]
	cfg := rm.ledger.config
	rm.ledger.mu.Unlock()
	if !ok {
		return nil, newErr(CodeInvalidConfig, "round %d does not exist", prevRoundNo)
	}

	wasActive := autoEnd(rm.ledger, prev, now)
	_ = wasActive

	if prev.Active {
		return nil, withMsg(ErrRoundStillActive, "round %d has not expired", prevRoundNo)
	}

	// Empty-round close-out: if nobody ever bought a key, start_new_round is
	// the only place that can emit RoundConcluded for it (§4.4 "Round-
	// concluded event semantics").
	if prev.TotalKeys == 0 && !prev.WinnerClaimed {
		prev.WinnerClaimed = true
		rm.ledger.publish(Event{Kind: EventRoundConcluded, RoundConcluded: &RoundConcluded{
			Round: prev.Round, Winner: AddressZero, AtTimestamp: now,
		}})
	}

	newRoundNo := prevRoundNo + 1
	carry := prev.NextRoundPot

	rm.ledger.mu.Lock()
	if _, exists := rm.ledger.rounds[newRoundNo]; exists {
		rm.ledger.mu.Unlock()
		return nil, newErr(CodeInvalidConfig, "round %d already initialized", newRoundNo)
	}
	if err := rm.ledger.moveVault(prevRoundNo, newRoundNo, carry); err != nil {
		rm.ledger.mu.Unlock()
		return nil, err
	}
	prev.NextRoundPot = 0
	if err := rm.ledger.putRound(prev); err != nil {
		rm.ledger.mu.Unlock()
		return nil, err
	}

	next := &RoundState{
		Round:          newRoundNo,
		RoundStart:     now,
		TimerEnd:       now + cfg.MaxTimerSecs,
		Active:         true,
		NextRoundPot:   0,
		ConfigSnapshot: cfg.clone(),
	}
	if err := rm.ledger.putRound(next); err != nil {
		rm.ledger.mu.Unlock()
		return nil, err
	}
	rm.ledger.mu.Unlock()

	rm.ledger.publish(Event{Kind: EventRoundStarted, RoundStarted: &RoundStarted{Round: newRoundNo, InitialPot: carry}})
	logrus.WithFields(logrus.Fields{"prev_round": prevRoundNo, "round": newRoundNo, "carried_pot": carry}).
		Info("start_new_round")
	return next, nil
}

// autoEnd implements the auto-end protocol of §4.2: the ONLY path to the
// ended state. It must run before any other read in every instruction that
// loads a round (§9 "Auto-end as an invariant, not an event"). It returns
// true if this call is the one that flipped Active to false.
func autoEnd(l *Ledger, r *RoundState, now int64) bool {
	if r.Active && now >= r.TimerEnd {
		r.Active = false
		l.publish(Event{Kind: EventRoundExpired, RoundExpired: &RoundExpired{Round: r.Round, AtTimestamp: now}})
		logrus.WithFields(logrus.Fields{"round": r.Round, "at": now}).Warn("round auto-ended")
		return true
	}
	return false
}
