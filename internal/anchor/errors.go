package anchor

import "errors"

// Program errors, named after the checks the trust anchor performs.
var (
	ErrAssetIDTooLong                 = errors.New("asset id exceeds 16 bytes")
	ErrAssetIDEmpty                   = errors.New("asset id cannot be empty")
	ErrInvalidRiskScore               = errors.New("risk score must be 0-100")
	ErrInvalidConfidenceRatio         = errors.New("confidence ratio must be 0-10000 basis points")
	ErrInvalidTimestamp               = errors.New("invalid timestamp")
	ErrNotInitialized                 = errors.New("not initialized")
	ErrUnauthorized                   = errors.New("unauthorized")
	ErrInvalidSigner                  = errors.New("invalid signer")
	ErrInvalidSignature               = errors.New("invalid ed25519 signature")
	ErrMissingVerificationInstruction = errors.New("missing ed25519 verification instruction")
	ErrInvalidEd25519Program          = errors.New("invalid ed25519 program")
	ErrInvalidEd25519Data             = errors.New("invalid ed25519 data")
	ErrSignatureOffsetOverflow        = errors.New("signature offset overflow")
	ErrPubkeyOffsetOverflow           = errors.New("pubkey offset overflow")
	ErrMessageOffsetOverflow          = errors.New("message offset overflow")
	ErrInvalidMessageSize             = errors.New("invalid message size")
	ErrMessageMismatch                = errors.New("message mismatch")
	ErrDecisionAlreadyUsed            = errors.New("decision already used")
	ErrDecisionHistoryFull            = errors.New("decision history full")
	ErrDecisionExpired                = errors.New("decision expired")
	ErrUnknownInstruction             = errors.New("unknown instruction")
	ErrInvalidAccountData             = errors.New("invalid account data")
)
