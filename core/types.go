package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 20-byte account identifier — a participant's public key, the
// protocol wallet, or a derived program address. It is the one identity type
// shared by every account kind in §3 of the program's data model.
type Address [20]byte

// Hex returns the canonical "0x"-prefixed lower-case representation.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// String implements fmt.Stringer so Address prints sensibly in logs.
func (a Address) String() string { return a.Hex() }

// MarshalText implements encoding.TextMarshaler, so Address can key a JSON
// map such as the ledger snapshot's participant table.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler for the Hex form.
func (a *Address) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil || len(b) != len(a) {
		return fmt.Errorf("bad address %q", text)
	}
	copy(a[:], b)
	return nil
}

// IsZero reports whether a holds the default (unset) value.
func (a Address) IsZero() bool { return a == Address{} }

// AddressZero is the sentinel "no address" value — the default for
// Round.LastBuyer before any purchase, and for Participant.Referrer before a
// referrer is latched.
var AddressZero = Address{}

// ProgramAddress derives a deterministic program address from seeds,
// mirroring the PDA derivation described in §3 of the data model. It is not
// cryptographically bound to any curve — this is a Go host process, not a
// validator — but it reproduces the same "seeds in, one deterministic
// address out" contract callers rely on.
func ProgramAddress(seeds ...[]byte) Address {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	sum := h.Sum(nil)
	var out Address
	copy(out[:], sum)
	return out
}

// RoundSeed reproduces the "game" || round_number seed scheme of §3.2.
func RoundSeed(round uint64) []byte {
	return []byte(fmt.Sprintf("game%d", round))
}

// PlayerSeed reproduces the "player" || participant_public_key seed scheme
// of §3.3.
func PlayerSeed(player Address) []byte {
	return append([]byte("player"), player[:]...)
}

// RoundAddress derives the program-owned address for a round's account,
// i.e. the "game" || round_number PDA of §3.2.
func RoundAddress(round uint64) Address {
	return ProgramAddress(RoundSeed(round))
}

// VaultAddress derives the program-owned address for a round's vault — a
// distinct PDA from the round account itself, per §3.2's "associated vault:
// a system-owned PDA keyed on the round account".
func VaultAddress(round uint64) Address {
	return ProgramAddress(RoundSeed(round), []byte("vault"))
}

// ParticipantAddress derives the program-owned address for a player's
// participant account, the "player" || participant_public_key PDA of §3.3.
func ParticipantAddress(player Address) Address {
	return ProgramAddress(PlayerSeed(player))
}
