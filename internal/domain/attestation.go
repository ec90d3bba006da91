package domain

// DecisionPayload is the exact set of fields covered by a decision signature.
type DecisionPayload struct {
	AssetID            string
	Price              float64
	Confidence         float64
	ConfidenceRatioBps uint64 // confidence ratio in basis points, 0..10000
	RiskScore          uint8  // 0..100
	Action             RiskAction
	IsBlocked          bool
	SizeMultiplierBps  uint16 // size multiplier in basis points, 0..10000
	PublisherCount     uint8
	Timestamp          int64 // Unix seconds
	Nonce              uint64
}

// SignedDecision is a payload with its hash, signature and signer key.
type SignedDecision struct {
	Payload         DecisionPayload
	DecisionHash    [32]byte
	Signature       [64]byte
	SignerPublicKey [32]byte
}
