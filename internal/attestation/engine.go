// Package attestation signs and verifies risk decisions with Ed25519.
//
// A decision is hashed over a fixed little-endian layout (see idhash) and the
// 32-byte hash is what gets signed, so an on-chain verifier only ever needs to
// check a 32-byte message.
package attestation

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/idhash"
)

// Verification errors.
var (
	// ErrHashMismatch is returned when the payload does not hash to DecisionHash.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidSigner is returned when the signer is not the trusted key.
	ErrInvalidSigner = errors.New("invalid signer")
	// ErrInvalidPayload is returned when a payload cannot be signed.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Engine owns a signing key and produces SignedDecisions.
// Construct one explicitly and pass it to the components that sign.
type Engine struct {
	key    ed25519.PrivateKey
	pub    [32]byte
	nonces *NonceSource
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithNonceSource sets the nonce source used for payloads without a nonce.
func WithNonceSource(n *NonceSource) EngineOption {
	return func(e *Engine) {
		e.nonces = n
	}
}

// NewEngine creates an engine from a 64-byte Ed25519 private key.
func NewEngine(key ed25519.PrivateKey, opts ...EngineOption) (*Engine, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}

	e := &Engine{key: key}
	copy(e.pub[:], key.Public().(ed25519.PublicKey))
	for _, opt := range opts {
		opt(e)
	}
	if e.nonces == nil {
		e.nonces = NewNonceSource()
	}
	return e, nil
}

// PublicKey returns the signer public key.
func (e *Engine) PublicKey() [32]byte {
	return e.pub
}

// Identity returns the base58 signer public key.
func (e *Engine) Identity() string {
	return base58.Encode(e.pub[:])
}

// NextNonce returns a fresh nonce.
func (e *Engine) NextNonce() uint64 {
	return e.nonces.Next()
}

// Sign hashes and signs the payload. A zero nonce is replaced by a fresh one.
func (e *Engine) Sign(p domain.DecisionPayload) (domain.SignedDecision, error) {
	if err := ValidatePayload(p); err != nil {
		return domain.SignedDecision{}, err
	}
	if p.Nonce == 0 {
		p.Nonce = e.nonces.Next()
	}

	hash := idhash.ComputeDecisionHash(p)
	sig := ed25519.Sign(e.key, hash[:])

	sd := domain.SignedDecision{
		Payload:         p,
		DecisionHash:    hash,
		SignerPublicKey: e.pub,
	}
	copy(sd.Signature[:], sig)
	return sd, nil
}

// SignDecision builds the payload for d and signs it.
func (e *Engine) SignDecision(d domain.RiskDecision) (domain.SignedDecision, error) {
	return e.Sign(NewPayload(d, 0))
}

// Verify checks the decision hash and signature against the embedded signer.
func (e *Engine) Verify(sd domain.SignedDecision) VerificationResult {
	return Verify(sd)
}

// ValidatePayload checks the fields the layout cannot represent.
func ValidatePayload(p domain.DecisionPayload) error {
	if p.AssetID == "" {
		return fmt.Errorf("%w: empty asset id", ErrInvalidPayload)
	}
	if len(p.AssetID) > domain.MaxAssetIDLength {
		return fmt.Errorf("%w: asset id longer than %d bytes", ErrInvalidPayload, domain.MaxAssetIDLength)
	}
	if strings.IndexByte(p.AssetID, 0) >= 0 {
		return fmt.Errorf("%w: asset id contains a NUL byte", ErrInvalidPayload)
	}
	if !p.Action.IsValid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidPayload, p.Action)
	}
	if p.RiskScore > 100 {
		return fmt.Errorf("%w: risk score %d > 100", ErrInvalidPayload, p.RiskScore)
	}
	if p.ConfidenceRatioBps > MaxBps {
		return fmt.Errorf("%w: confidence ratio %d bps > %d", ErrInvalidPayload, p.ConfidenceRatioBps, MaxBps)
	}
	if p.SizeMultiplierBps > MaxBps {
		return fmt.Errorf("%w: size multiplier %d bps > %d", ErrInvalidPayload, p.SizeMultiplierBps, MaxBps)
	}
	return nil
}
