package core

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// walRecord is one append-only journal entry. Every persisted change goes
// through writeRecord, which applies the record to the in-memory maps and
// then appends it to the WAL, so replay after a restart reproduces the same
// state.
type walRecord struct {
	Op         string          `json:"op"`
	ConfigSet  *Config         `json:"config_set,omitempty"`
	RoundPut   *RoundState     `json:"round_put,omitempty"`
	VaultSet   map[uint64]uint64 `json:"vault_set,omitempty"`
	Participant *Participant   `json:"participant,omitempty"`
}

// LedgerConfig mirrors the teacher's LedgerConfig (core/ledger.go) trimmed to
// the fields a single-account-family store needs: a WAL path, a snapshot
// path, and how many WAL records to accumulate before compacting.
type LedgerConfig struct {
	WALPath          string
	SnapshotPath     string
	SnapshotInterval int
}

// snapshotImage is the JSON shape written by snapshot() and read back by
// NewLedger — it is the whole of Ledger's durable state, nothing else.
type snapshotImage struct {
	Config       *Config                `json:"config"`
	ConfigLog    []ConfigHistoryEntry   `json:"config_log"`
	Rounds       map[uint64]*RoundState `json:"rounds"`
	Vaults       map[uint64]uint64      `json:"vaults"`
	Participants map[Address]*Participant `json:"participants"`
}

// Ledger is the account store for every FOMolt3D account family: the
// singleton Config, one RoundState and one vault balance per round number,
// and one Participant per player. It is the single source of truth the
// instruction handlers (ConfigAuthority, RoundManager, PurchaseEngine,
// ClaimEngine) read and mutate under mu, adapted from the teacher's
// mutex-guarded in-memory Ledger (core/ledger.go) with blocks/UTXO/contracts
// replaced by this program's three account families.
type Ledger struct {
	mu sync.RWMutex

	config    *Config
	configLog []ConfigHistoryEntry

	rounds       map[uint64]*RoundState
	vaults       map[uint64]uint64
	participants map[Address]*Participant

	bus *EventBus

	walFile          *os.File
	walRecords       int
	snapshotPath     string
	snapshotInterval int
}

// NewLedger opens (creating if absent) the WAL at cfg.WALPath, replays it
// over a snapshot loaded from cfg.SnapshotPath if one exists, and returns a
// ready-to-use Ledger. An empty cfg.WALPath yields an in-memory Ledger with
// no journal and no snapshots. Grounded on the teacher's NewLedger/OpenLedger split
// (core/ledger.go); this program has no genesis block, so replay starts from
// either an empty store or the last snapshot.
func NewLedger(cfg LedgerConfig) (l *Ledger, err error) {
	l = &Ledger{
		rounds:       make(map[uint64]*RoundState),
		vaults:       make(map[uint64]uint64),
		participants: make(map[Address]*Participant),
		bus:          NewEventBus(),
		snapshotPath: cfg.SnapshotPath,
		snapshotInterval: cfg.SnapshotInterval,
	}

	if cfg.SnapshotPath != "" {
		if f, ferr := os.Open(cfg.SnapshotPath); ferr == nil {
			var img snapshotImage
			derr := json.NewDecoder(f).Decode(&img)
			f.Close()
			if derr != nil {
				return nil, fmt.Errorf("decode snapshot: %w", derr)
			}
			l.config = img.Config
			l.configLog = img.ConfigLog
			if img.Rounds != nil {
				l.rounds = img.Rounds
			}
			if img.Vaults != nil {
				l.vaults = img.Vaults
			}
			if img.Participants != nil {
				l.participants = img.Participants
			}
		} else if !os.IsNotExist(ferr) {
			return nil, fmt.Errorf("open snapshot: %w", ferr)
		}
	}

	if cfg.WALPath == "" {
		// No journal: an in-memory ledger, as unit tests build it.
		return l, nil
	}

	wal, err := os.OpenFile(cfg.WALPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	defer func() {
		if err != nil {
			_ = wal.Close()
		}
	}()

	scanner := bufio.NewScanner(wal)
	for scanner.Scan() {
		var rec walRecord
		if err = json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("WAL unmarshal: %w", err)
		}
		l.applyRecord(rec)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("WAL scan: %w", err)
	}
	l.walFile = wal

	logrus.WithField("rounds", len(l.rounds)).Info("ledger: replay complete")
	return l, nil
}

// applyRecord mutates in-memory state from a WAL record. Never takes mu —
// callers either hold it (writeRecord) or are single-threaded (NewLedger
// replay).
func (l *Ledger) applyRecord(rec walRecord) {
	switch rec.Op {
	case "config_set":
		l.config = rec.ConfigSet
	case "round_put":
		l.rounds[rec.RoundPut.Round] = rec.RoundPut
	case "vault_set":
		for round, bal := range rec.VaultSet {
			l.vaults[round] = bal
		}
	case "participant_put":
		l.participants[rec.Participant.Player] = rec.Participant
	}
}

// writeRecord applies rec in memory, appends it to the WAL, and snapshots
// once SnapshotInterval records have accumulated.
func (l *Ledger) writeRecord(rec walRecord) error {
	l.applyRecord(rec)

	if l.walFile == nil {
		return nil // unit tests often build a Ledger without a WAL file
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal WAL record: %w", err)
	}
	if _, err := l.walFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write WAL: %w", err)
	}
	if err := l.walFile.Sync(); err != nil {
		return fmt.Errorf("sync WAL: %w", err)
	}

	l.walRecords++
	if l.snapshotInterval > 0 && l.walRecords >= l.snapshotInterval {
		if err := l.snapshot(); err != nil {
			logrus.WithError(err).Error("ledger: snapshot failed")
		}
	}
	return nil
}

// snapshot writes the full account store to SnapshotPath and truncates the
// WAL, mirroring the teacher's snapshot()+WAL-truncate pairing
// (core/ledger.go snapshot).
func (l *Ledger) snapshot() error {
	if l.snapshotPath == "" || l.walFile == nil {
		return nil
	}
	img := snapshotImage{
		Config:       l.config,
		ConfigLog:    l.configLog,
		Rounds:       l.rounds,
		Vaults:       l.vaults,
		Participants: l.participants,
	}
	f, err := os.Create(l.snapshotPath)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := l.walFile.Truncate(0); err != nil {
		return err
	}
	if _, err := l.walFile.Seek(0, 0); err != nil {
		return err
	}
	l.walRecords = 0
	logrus.WithField("path", l.snapshotPath).Info("ledger: snapshot written, WAL truncated")
	return nil
}

// Close flushes a final snapshot and releases the WAL handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.walFile == nil {
		return nil
	}
	if err := l.snapshot(); err != nil {
		logrus.WithError(err).Warn("ledger: snapshot on close failed")
	}
	return l.walFile.Close()
}

// publish fans an event out over the ledger's bus. Safe to call with mu
// held or not — EventBus has its own lock.
func (l *Ledger) publish(ev Event) {
	l.bus.Publish(ev)
}

// Subscribe exposes the ledger's event stream to callers such as the CLI or
// an off-chain indexer.
func (l *Ledger) Subscribe(buffer int) (<-chan Event, func()) {
	return l.bus.Subscribe(buffer)
}

// Config returns a copy of the current config, or nil if none has been set.
func (l *Ledger) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return nil
	}
	c := *l.config
	return &c
}

// Round returns the round state for round, or (nil, false).
func (l *Ledger) Round(round uint64) (*RoundState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rounds[round]
	return r, ok
}

// VaultBalance returns the lamport balance attributed to round's vault.
func (l *Ledger) VaultBalance(round uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.vaults[round]
}

// Participant returns the account for player, creating it with zero values
// if it doesn't already exist — every instruction that touches a player
// implicitly creates their account on first use, matching the spec's §3.3
// lazily-created participant account.
func (l *Ledger) Participant(player Address) *Participant {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.participants[player]
	if !ok {
		p = newParticipant(player)
		l.participants[player] = p
	}
	return p
}

// putParticipant persists p (already mutated in place by the caller) to the
// WAL. Callers must hold l.mu.
func (l *Ledger) putParticipant(p *Participant) error {
	return l.writeRecord(walRecord{Op: "participant_put", Participant: p})
}

// putRound persists r to the WAL. Callers must hold l.mu.
func (l *Ledger) putRound(r *RoundState) error {
	return l.writeRecord(walRecord{Op: "round_put", RoundPut: r})
}

// creditVault adds amount to round's vault balance. Callers must hold l.mu.
func (l *Ledger) creditVault(round uint64, amount uint64) error {
	bal := l.vaults[round] + amount
	return l.writeRecord(walRecord{Op: "vault_set", VaultSet: map[uint64]uint64{round: bal}})
}

// debitVault subtracts amount from round's vault balance, failing with
// ErrInsufficientFunds if that would underflow — the vault balance
// invariant of §9 is enforced here, at the only choke point all outgoing
// transfers pass through. Callers must hold l.mu.
func (l *Ledger) debitVault(round uint64, amount uint64) error {
	bal := l.vaults[round]
	if amount > bal {
		return withMsg(ErrInsufficientFunds, "round %d vault has %d, need %d", round, bal, amount)
	}
	return l.writeRecord(walRecord{Op: "vault_set", VaultSet: map[uint64]uint64{round: bal - amount}})
}

// moveVault debits amount from `from`'s vault and credits it to `to`'s,
// implementing the pot carry-forward of §4.2 start_new_round. Callers must
// hold l.mu.
func (l *Ledger) moveVault(from, to uint64, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := l.debitVault(from, amount); err != nil {
		return err
	}
	return l.creditVault(to, amount)
}

// recordConfigHistory appends an audit entry for an applied config change
// (§4 SUPPLEMENTED FEATURES — config history). Callers must hold l.mu.
func (l *Ledger) recordConfigHistory(prev, applied *Config) {
	l.configLog = append(l.configLog, ConfigHistoryEntry{Previous: prev, Applied: *applied, Digest: configDigest(*applied)})
	if err := l.writeRecord(walRecord{Op: "config_set", ConfigSet: applied}); err != nil {
		logrus.WithError(err).Error("ledger: failed to journal config change")
	}
}

// ConfigHistory returns the full append log of accepted config changes.
func (l *Ledger) ConfigHistory() []ConfigHistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ConfigHistoryEntry, len(l.configLog))
	copy(out, l.configLog)
	return out
}
