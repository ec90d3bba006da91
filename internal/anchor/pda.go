package anchor

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"cate-trust-layer/internal/domain"
)

// PDA seed namespaces.
const (
	SeedConfig        = "config"
	SeedUsedDecisions = "used_decisions"
	SeedAssetRisk     = "asset_risk"
)

// Seed limits enforced by the runtime.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

const pdaMarker = "ProgramDerivedAddress"

// ErrNoViableBump is returned when every bump yields an on-curve point.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// FindProgramAddress derives the program address for seeds, searching bumps
// from 255 down and returning the first off-curve candidate.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	if len(seeds) > MaxSeeds-1 {
		return PublicKey{}, 0, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return PublicKey{}, 0, fmt.Errorf("seed %d longer than %d bytes", i, MaxSeedLength)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		addr, ok := createProgramAddress(seeds, byte(bump), programID)
		if ok {
			return addr, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

func createProgramAddress(seeds [][]byte, bump byte, programID PublicKey) (PublicKey, bool) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr PublicKey
	copy(addr[:], h.Sum(nil))
	if isOnCurve(addr[:]) {
		return PublicKey{}, false
	}
	return addr, true
}

// isOnCurve reports whether b decodes to an ed25519 point.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// ConfigAddress returns the global config account address.
func ConfigAddress(programID PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedConfig)}, programID)
}

// UsedDecisionsAddress returns the replay-set account address.
func UsedDecisionsAddress(programID PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(SeedUsedDecisions)}, programID)
}

// AssetRiskAddress returns the per-asset status account address.
func AssetRiskAddress(programID PublicKey, assetID string) (PublicKey, uint8, error) {
	if err := validateAssetID(assetID); err != nil {
		return PublicKey{}, 0, err
	}
	return FindProgramAddress([][]byte{[]byte(SeedAssetRisk), []byte(assetID)}, programID)
}

func validateAssetID(assetID string) error {
	if assetID == "" {
		return ErrAssetIDEmpty
	}
	if len(assetID) > domain.MaxAssetIDLength {
		return ErrAssetIDTooLong
	}
	return nil
}
