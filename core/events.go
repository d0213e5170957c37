package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EventKind enumerates the seven events of §6.2.
type EventKind int

const (
	EventKeysPurchased EventKind = iota
	EventDividendsClaimed
	EventWinnerPaid
	EventReferralEarningsClaimed
	EventRoundExpired
	EventRoundConcluded
	EventRoundStarted
)

// Event carries at most one populated payload, selected by Kind. Every event
// also carries a CorrelationID: Publish keeps one the publisher set and
// otherwise fills in a fresh UUID (google/uuid). The instruction handlers in
// this package set none, so each published event gets its own ID, including
// events published by the same instruction call.
type Event struct {
	Kind          EventKind
	CorrelationID string

	KeysPurchased           *KeysPurchased
	DividendsClaimed        *DividendsClaimed
	WinnerPaid              *WinnerPaid
	ReferralEarningsClaimed *ReferralEarningsClaimed
	RoundExpired            *RoundExpired
	RoundConcluded          *RoundConcluded
	RoundStarted            *RoundStarted
}

type KeysPurchased struct {
	Round        uint64
	Buyer        Address
	N            uint64
	Cost         uint64
	NewTimerEnd  int64
}

type DividendsClaimed struct {
	Round  uint64
	Player Address
	Amount uint64
}

type WinnerPaid struct {
	Round  uint64
	Winner Address
	Amount uint64
}

type ReferralEarningsClaimed struct {
	Player Address
	Amount uint64
}

type RoundExpired struct {
	Round       uint64
	AtTimestamp int64
}

type RoundConcluded struct {
	Round       uint64
	Winner      Address // AddressZero for an empty, winner-less round
	AtTimestamp int64
}

type RoundStarted struct {
	Round      uint64
	InitialPot uint64
}

// EventBus is a bounded, concurrency-safe fan-out publisher, adapted from
// the teacher's MessageQueue (core/messages.go) — a FIFO queue guarded by a
// single mutex — generalized from a single dequeue-and-process consumer to
// multiple independent subscribers, each with their own buffered channel, so
// a slow subscriber (e.g. the out-of-scope HTTP layer) cannot block another.
type EventBus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener with the given channel capacity and
// returns the channel plus an unsubscribe func.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			close(c)
			delete(b.subs, id)
		}
	}
}

// Publish fans an event out to every current subscriber. A full subscriber
// channel drops the event for that subscriber rather than blocking the
// instruction that produced it — event delivery is best-effort; ledger state
// is the source of truth.
func (b *EventBus) Publish(ev Event) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logrus.WithField("kind", ev.Kind).Warn("event bus: subscriber channel full, dropping")
		}
	}
}
