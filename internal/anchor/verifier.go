package anchor

import (
	"crypto/subtle"
	"fmt"
	"time"
)

// Timestamp tolerance of update_risk_status relative to cluster time.
const (
	DefaultMaxPast   = 300 * time.Second
	DefaultMaxFuture = 60 * time.Second
)

// Verifier applies the trust anchor's acceptance checks to a transaction.
type Verifier struct {
	now       func() time.Time
	maxPast   int64
	maxFuture int64
}

// VerifierOption configures Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock sets the clock standing in for cluster time.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier with the program's tolerances.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		now:       time.Now,
		maxPast:   int64(DefaultMaxPast / time.Second),
		maxFuture: int64(DefaultMaxFuture / time.Second),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Now returns the verifier's notion of cluster time in unix seconds.
func (v *Verifier) Now() int64 {
	return v.now().Unix()
}

// VerifyPublish checks the update_risk_status instruction at index against
// cfg and the replay set. It does not mutate used.
func (v *Verifier) VerifyPublish(cfg Config, used *UsedDecisions, ixs []Instruction, index int) (UpdateRiskStatusArgs, error) {
	if index < 0 || index >= len(ixs) {
		return UpdateRiskStatusArgs{}, fmt.Errorf("instruction index %d out of range", index)
	}
	if !cfg.IsInitialized {
		return UpdateRiskStatusArgs{}, ErrNotInitialized
	}

	args, err := DecodeUpdateRiskStatus(ixs[index].Data)
	if err != nil {
		return args, err
	}

	if err := CheckBounds(args); err != nil {
		return args, err
	}

	now := v.Now()
	if args.Timestamp < now-v.maxPast || args.Timestamp > now+v.maxFuture {
		return args, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidTimestamp,
			args.Timestamp, now-v.maxPast, now+v.maxFuture)
	}

	if PublicKey(args.SignerPubkey) != cfg.TrustedSigner {
		return args, ErrInvalidSigner
	}

	if used != nil && used.IsUsed(args.DecisionHash) {
		return args, ErrDecisionAlreadyUsed
	}

	if err := VerifyEd25519Precedes(ixs, index, args.SignerPubkey, args.DecisionHash, args.Signature); err != nil {
		return args, err
	}
	return args, nil
}

// VerifyDecision mirrors the read-only verify_decision instruction: trusted
// signer, preceding ed25519 check and a decision no older than the past
// tolerance.
func (v *Verifier) VerifyDecision(cfg Config, ixs []Instruction, index int, args UpdateRiskStatusArgs) error {
	if !cfg.IsInitialized {
		return ErrNotInitialized
	}
	if PublicKey(args.SignerPubkey) != cfg.TrustedSigner {
		return ErrInvalidSigner
	}
	if err := VerifyEd25519Precedes(ixs, index, args.SignerPubkey, args.DecisionHash, args.Signature); err != nil {
		return err
	}
	if args.Timestamp < v.Now()-v.maxPast {
		return ErrDecisionExpired
	}
	return nil
}

// CheckBounds validates the field ranges of update_risk_status.
func CheckBounds(args UpdateRiskStatusArgs) error {
	if err := validateAssetID(args.AssetID); err != nil {
		return err
	}
	if args.RiskScore > 100 {
		return ErrInvalidRiskScore
	}
	if args.ConfidenceRatio > 10000 {
		return ErrInvalidConfidenceRatio
	}
	return nil
}

// VerifyEd25519Precedes requires the instruction right before index to be an
// ed25519 verification of (pubkey, message, signature).
func VerifyEd25519Precedes(ixs []Instruction, index int, pubkey, message [32]byte, signature [64]byte) error {
	if index <= 0 {
		return ErrMissingVerificationInstruction
	}
	prev := ixs[index-1]
	if prev.ProgramID != Ed25519ProgramID {
		return fmt.Errorf("%w: %w", ErrMissingVerificationInstruction, ErrInvalidEd25519Program)
	}

	entries, err := ParseEd25519Instruction(prev.Data)
	if err != nil {
		return err
	}

	signerSeen := false
	for _, e := range entries {
		pkOK := equal(e.PublicKey, pubkey[:])
		sigOK := equal(e.Signature, signature[:])
		msgOK := equal(e.Message, message[:])
		if pkOK && sigOK && msgOK {
			return nil
		}
		if pkOK {
			signerSeen = true
		}
	}

	if !signerSeen {
		return ErrInvalidSigner
	}
	// The signer's entry verified some other message.
	for _, e := range entries {
		if equal(e.PublicKey, pubkey[:]) && !equal(e.Message, message[:]) {
			return ErrMessageMismatch
		}
	}
	return ErrInvalidSignature
}

func equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
