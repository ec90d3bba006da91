package attestation

import (
	"crypto/ed25519"
	"fmt"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/idhash"
)

// VerificationResult is the outcome of verifying a SignedDecision.
type VerificationResult struct {
	Valid bool
	Err   error
}

// Verify recomputes the hash from the payload and checks the signature with
// the embedded signer key. A payload the layout cannot encode exactly never
// matches its hash.
func Verify(sd domain.SignedDecision) VerificationResult {
	if err := ValidatePayload(sd.Payload); err != nil {
		return VerificationResult{Err: fmt.Errorf("%w: %w", ErrHashMismatch, err)}
	}
	if idhash.ComputeDecisionHash(sd.Payload) != sd.DecisionHash {
		return VerificationResult{Err: ErrHashMismatch}
	}
	if !ed25519.Verify(ed25519.PublicKey(sd.SignerPublicKey[:]), sd.DecisionHash[:], sd.Signature[:]) {
		return VerificationResult{Err: ErrInvalidSignature}
	}
	return VerificationResult{Valid: true}
}

// VerifyTrusted is Verify plus a check that the signer is the trusted key.
func VerifyTrusted(sd domain.SignedDecision, trusted [32]byte) VerificationResult {
	if sd.SignerPublicKey != trusted {
		return VerificationResult{Err: ErrInvalidSigner}
	}
	return Verify(sd)
}
