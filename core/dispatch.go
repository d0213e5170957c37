package core

import (
	"fmt"
	"log"
	"sync"
)

// Instruction identifies one of the program's entrypoints by name, adapted
// from the teacher's Opcode catalogue (core/opcode_dispatcher.go) — a
// collision-checked, string-keyed table in place of the teacher's 24-bit
// binary opcodes, since this program's instruction surface is small and
// fixed rather than generated.
type Instruction string

const (
	InstructionUpsertConfig           Instruction = "upsert_config"
	InstructionInitializeFirstRound   Instruction = "initialize_first_round"
	InstructionStartNewRound          Instruction = "start_new_round"
	InstructionBuyKeys                Instruction = "buy_keys"
	InstructionClaim                  Instruction = "claim"
	InstructionClaimReferralEarnings  Instruction = "claim_referral_earnings"
	InstructionRegisterReferrer       Instruction = "register_referrer"
)

// InstructionFunc is the concrete handler invoked for one instruction. args
// is the instruction-specific parameter struct (e.g. BuyKeysParams),
// type-asserted by the handler — mirroring the teacher's
// OpcodeFunc(ctx Context) error shape, generalized from a single Context
// parameter to an opaque args value since instructions here take varied,
// strongly-typed parameter structs rather than a uniform VM context.
type InstructionFunc func(args interface{}) (interface{}, error)

// Dispatcher is the program's instruction table: one handler per
// Instruction, registered once at program construction and never mutated
// afterward. Registration panics on a duplicate name, matching the
// teacher's "collisions are fatal at start-up" philosophy
// (core/opcode_dispatcher.go Register).
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Instruction]InstructionFunc
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Instruction]InstructionFunc, 8)}
}

// Register binds ix to fn. Panics if ix is already registered — instruction
// wiring happens once, at startup, in program code the developer controls,
// not from untrusted input.
func (d *Dispatcher) Register(ix Instruction, fn InstructionFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[ix]; exists {
		log.Panicf("[dispatch] collision: instruction %q already registered", ix)
	}
	d.handlers[ix] = fn
}

// Dispatch looks up and invokes the handler for ix.
func (d *Dispatcher) Dispatch(ix Instruction, args interface{}) (interface{}, error) {
	d.mu.RLock()
	fn, ok := d.handlers[ix]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown instruction %q", ix)
	}
	return fn(args)
}

// Program wires a Ledger to every engine and registers the full instruction
// surface of SPEC_FULL §1 and §4's supplemented register_referrer path.
type Program struct {
	Ledger     *Ledger
	Config     *ConfigAuthority
	Rounds     *RoundManager
	Purchases  *PurchaseEngine
	Claims     *ClaimEngine
	Dispatcher *Dispatcher
}

// NewProgram constructs every engine over ledger and registers all
// instructions on a fresh Dispatcher.
func NewProgram(ledger *Ledger) *Program {
	p := &Program{
		Ledger:     ledger,
		Config:     NewConfigAuthority(ledger),
		Rounds:     NewRoundManager(ledger),
		Purchases:  NewPurchaseEngine(ledger),
		Claims:     NewClaimEngine(ledger),
		Dispatcher: NewDispatcher(),
	}

	p.Dispatcher.Register(InstructionUpsertConfig, func(args interface{}) (interface{}, error) {
		params := args.(UpsertConfigParams)
		return nil, p.Config.UpsertConfig(params)
	})
	p.Dispatcher.Register(InstructionInitializeFirstRound, func(args interface{}) (interface{}, error) {
		a := args.(InitializeFirstRoundArgs)
		return p.Rounds.InitializeFirstRound(a.Signer, a.Now)
	})
	p.Dispatcher.Register(InstructionStartNewRound, func(args interface{}) (interface{}, error) {
		a := args.(StartNewRoundArgs)
		return p.Rounds.StartNewRound(a.PrevRound, a.Now)
	})
	p.Dispatcher.Register(InstructionBuyKeys, func(args interface{}) (interface{}, error) {
		return p.Purchases.BuyKeys(args.(BuyKeysParams))
	})
	p.Dispatcher.Register(InstructionClaim, func(args interface{}) (interface{}, error) {
		return p.Claims.Claim(args.(ClaimParams))
	})
	p.Dispatcher.Register(InstructionClaimReferralEarnings, func(args interface{}) (interface{}, error) {
		return p.Claims.ClaimReferralEarnings(args.(ClaimReferralEarningsParams))
	})
	p.Dispatcher.Register(InstructionRegisterReferrer, func(args interface{}) (interface{}, error) {
		return nil, p.Claims.RegisterReferrer(args.(RegisterReferrerParams))
	})

	return p
}

// InitializeFirstRoundArgs is the argument struct for InstructionInitializeFirstRound.
type InitializeFirstRoundArgs struct {
	Signer Address
	Now    int64
}

// StartNewRoundArgs is the argument struct for InstructionStartNewRound.
type StartNewRoundArgs struct {
	PrevRound uint64
	Now       int64
}
