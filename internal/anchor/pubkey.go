// Package anchor mirrors the on-chain trust anchor: account addresses,
// instruction encoding and the checks the program applies before it accepts
// a signed risk decision.
package anchor

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte Solana address.
type PublicKey [32]byte

// Well-known program and sysvar addresses.
var (
	SystemProgramID      = MustParsePublicKey("11111111111111111111111111111111")
	Ed25519ProgramID     = MustParsePublicKey("Ed25519SigVerify111111111111111111111111111")
	SysvarInstructionsID = MustParsePublicKey("Sysvar1nstructions1111111111111111111111111")
)

// DefaultProgramID is the deployed trust anchor program.
var DefaultProgramID = MustParsePublicKey("77kRa7xJb2SQpPC1fdFGj8edzm5MJxhq2j54BxMWtPe6")

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return pk, fmt.Errorf("decode base58 address %q: %w", s, err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("address %q must be %d bytes, got %d", s, len(pk), len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustParsePublicKey is ParsePublicKey for constants.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether pk is all zeros.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}
