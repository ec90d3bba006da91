package domain

// DecisionRecord is a persisted signed decision.
// Corresponds to signed_decisions table in PostgreSQL.
type DecisionRecord struct {
	Signed         SignedDecision
	Source         SourceTag
	RiskScore      float64 // unrounded evaluator score
	SizeMultiplier float64
	Explanation    string
	CreatedAtMs    int64 // Unix timestamp in milliseconds
}

// AssetID returns the asset of the signed payload.
func (r *DecisionRecord) AssetID() string {
	return r.Signed.Payload.AssetID
}

// Timestamp returns the payload timestamp in Unix seconds.
func (r *DecisionRecord) Timestamp() int64 {
	return r.Signed.Payload.Timestamp
}

// NewDecisionRecord pairs a signed decision with the evaluator output it came from.
func NewDecisionRecord(d RiskDecision, sd SignedDecision, createdAtMs int64) *DecisionRecord {
	return &DecisionRecord{
		Signed:         sd,
		Source:         d.Source,
		RiskScore:      d.RiskScore,
		SizeMultiplier: d.SizeMultiplier,
		Explanation:    d.Explanation,
		CreatedAtMs:    createdAtMs,
	}
}
