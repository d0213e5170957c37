package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"
)

// Config is the singleton game-parameter account of §3.1. It is created
// lazily by whichever account calls UpsertConfig first, and mutated only by
// the admin thereafter.
type Config struct {
	Admin Address

	BasePrice           uint64
	PriceIncrement      uint64
	TimerExtensionSecs  int64
	MaxTimerSecs        int64
	WinnerBps           uint64
	DividendBps         uint64
	NextRoundBps        uint64
	ProtocolFeeBps      uint64
	ReferralBonusBps    uint64
	ProtocolWallet      Address
}

// clone returns a value copy suitable for snapshotting into a Round (§4.2 —
// "snapshots current Config parameters into new round"). Config itself has
// no pointer fields, so a plain struct copy is a correct deep copy.
func (c Config) clone() Config { return c }

// ConfigAuthority wraps a Ledger and exposes the upsert_config instruction.
type ConfigAuthority struct {
	ledger *Ledger
	mu     sync.Mutex
}

// NewConfigAuthority binds a ConfigAuthority to a ledger.
func NewConfigAuthority(l *Ledger) *ConfigAuthority {
	return &ConfigAuthority{ledger: l}
}

// UpsertConfigParams carries every field an admin may set via upsert_config.
type UpsertConfigParams struct {
	Signer Address

	BasePrice          uint64
	PriceIncrement     uint64
	TimerExtensionSecs int64
	MaxTimerSecs       int64
	WinnerBps          uint64
	DividendBps        uint64
	NextRoundBps       uint64
	ProtocolFeeBps     uint64
	ReferralBonusBps   uint64
	ProtocolWallet     Address
}

// UpsertConfig implements §4.1: the signer must equal config.admin if the
// config account already exists, otherwise the signer becomes admin. On
// validation failure the ledger is left untouched and ErrInvalidConfig (or
// ErrUnauthorized) is returned.
func (ca *ConfigAuthority) UpsertConfig(p UpsertConfigParams) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	ca.ledger.mu.Lock()
	existing := ca.ledger.config
	ca.ledger.mu.Unlock()

	if existing != nil && existing.Admin != p.Signer {
		logrus.WithFields(logrus.Fields{"signer": p.Signer, "admin": existing.Admin}).
			Warn("upsert_config: unauthorized")
		return withMsg(ErrUnauthorized, "signer %s is not admin %s", p.Signer, existing.Admin)
	}

	if err := validateConfigParams(p); err != nil {
		return err
	}

	cfg := &Config{
		Admin:              p.Signer,
		BasePrice:          p.BasePrice,
		PriceIncrement:     p.PriceIncrement,
		TimerExtensionSecs: p.TimerExtensionSecs,
		MaxTimerSecs:       p.MaxTimerSecs,
		WinnerBps:          p.WinnerBps,
		DividendBps:        p.DividendBps,
		NextRoundBps:       p.NextRoundBps,
		ProtocolFeeBps:     p.ProtocolFeeBps,
		ReferralBonusBps:   p.ReferralBonusBps,
		ProtocolWallet:     p.ProtocolWallet,
	}

	ca.ledger.mu.Lock()
	prev := ca.ledger.config
	ca.ledger.config = cfg
	ca.ledger.recordConfigHistory(prev, cfg)
	ca.ledger.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"admin":       cfg.Admin,
		"base_price":  cfg.BasePrice,
		"winner_bps":  cfg.WinnerBps,
		"dividend_bps": cfg.DividendBps,
	}).Info("upsert_config: applied")
	return nil
}

// validateConfigParams enforces every range/sum invariant from §3.1.
func validateConfigParams(p UpsertConfigParams) error {
	if p.BasePrice == 0 {
		return withMsg(ErrInvalidConfig, "base_price must be > 0")
	}
	if p.TimerExtensionSecs <= 0 {
		return withMsg(ErrInvalidConfig, "timer_extension_secs must be > 0")
	}
	if p.MaxTimerSecs <= 0 {
		return withMsg(ErrInvalidConfig, "max_timer_secs must be > 0")
	}
	if p.WinnerBps+p.DividendBps+p.NextRoundBps != 10000 {
		return withMsg(ErrInvalidConfig, "winner_bps+dividend_bps+next_round_bps must equal 10000, got %d",
			p.WinnerBps+p.DividendBps+p.NextRoundBps)
	}
	if p.ProtocolFeeBps > 10000 {
		return withMsg(ErrInvalidConfig, "protocol_fee_bps must be <= 10000")
	}
	if p.ReferralBonusBps > 10000 {
		return withMsg(ErrInvalidConfig, "referral_bonus_bps must be <= 10000")
	}
	return nil
}

// ConfigHistoryEntry records one accepted upsert_config call, purely for
// off-chain audit (§4 SUPPLEMENTED FEATURES — "Config history"); it has no
// bearing on round snapshotting, which still only ever reads the live
// Config at round-creation time.
type ConfigHistoryEntry struct {
	Previous *Config
	Applied  Config
	// Digest is a sha256 of the RLP-encoded applied config, the same
	// content-addressing scheme the teacher's ledger uses for blocks
	// (core/ledger.go, core/replication.go), repurposed here as a
	// tamper-evident fingerprint for one audit-log entry rather than a
	// chain of blocks.
	Digest string
}

// configRLP is the RLP-serializable projection of Config: go-ethereum/rlp
// does not support Go's signed integer types, so the two duration fields
// are carried as uint64 (they are always non-negative per
// validateConfigParams).
type configRLP struct {
	Admin              Address
	BasePrice          uint64
	PriceIncrement     uint64
	TimerExtensionSecs uint64
	MaxTimerSecs       uint64
	WinnerBps          uint64
	DividendBps        uint64
	NextRoundBps       uint64
	ProtocolFeeBps     uint64
	ReferralBonusBps   uint64
	ProtocolWallet     Address
}

// configDigest computes the audit fingerprint for one applied config.
func configDigest(cfg Config) string {
	enc := configRLP{
		Admin:              cfg.Admin,
		BasePrice:          cfg.BasePrice,
		PriceIncrement:     cfg.PriceIncrement,
		TimerExtensionSecs: uint64(cfg.TimerExtensionSecs),
		MaxTimerSecs:       uint64(cfg.MaxTimerSecs),
		WinnerBps:          cfg.WinnerBps,
		DividendBps:        cfg.DividendBps,
		NextRoundBps:       cfg.NextRoundBps,
		ProtocolFeeBps:     cfg.ProtocolFeeBps,
		ReferralBonusBps:   cfg.ReferralBonusBps,
		ProtocolWallet:     cfg.ProtocolWallet,
	}
	data, err := rlp.EncodeToBytes(enc)
	if err != nil {
		// enc contains only fixed-width uints and byte arrays, so encoding
		// cannot fail; a panic here means configRLP's shape was broken.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
