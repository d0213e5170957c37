package core

import "sync"

// ProtocolFeeSink tracks the running total of house fees paid to
// protocol_wallet, adapted from the teacher's TxFeeManager (originally a
// multi-destination fee collector/distributor for a blockchain's miner and
// validator set). The house fee here goes directly from buyer to
// protocol_wallet and never enters a round's vault (§4.3 stage 1), so this
// sink is pure off-chain bookkeeping — no lamports move through it — read
// back through Total.
type ProtocolFeeSink struct {
	mu   sync.Mutex
	byWallet map[Address]uint64
}

// NewProtocolFeeSink returns an empty sink.
func NewProtocolFeeSink() *ProtocolFeeSink {
	return &ProtocolFeeSink{byWallet: make(map[Address]uint64)}
}

// Record adds amount to wallet's running house-fee total. Called once per
// successful buy_keys, after the fee split has been computed.
func (s *ProtocolFeeSink) Record(wallet Address, amount uint64) {
	if amount == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byWallet[wallet] += amount
}

// Total returns the cumulative house fee recorded for wallet.
func (s *ProtocolFeeSink) Total(wallet Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byWallet[wallet]
}

var (
	feeSinkOnce sync.Once
	feeSink     *ProtocolFeeSink
)

// InitProtocolFeeSink initialises the process-wide fee sink exactly once.
func InitProtocolFeeSink() {
	feeSinkOnce.Do(func() { feeSink = NewProtocolFeeSink() })
}

// CurrentProtocolFeeSink returns the process-wide fee sink, initialising it
// on first use so callers (tests included) never observe a nil sink.
func CurrentProtocolFeeSink() *ProtocolFeeSink {
	InitProtocolFeeSink()
	return feeSink
}
