package api

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"

	"cate-trust-layer/internal/anchor"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/history"
	"cate-trust-layer/internal/wire"
)

// SignRequest is the body of POST /v1/decisions/sign.
// Integer fields are signed so out-of-range input is reported, not wrapped.
type SignRequest struct {
	AssetID         string
	Price           float64
	Timestamp       int64
	ConfidenceRatio int64 // basis points
	RiskScore       int64
	IsBlocked       bool
	PublisherCount  int64
	Nonce           int64
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string
	Message string
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string
	Message string
	Details []FieldError
}

// VerifyResponse is the body of POST /v1/decisions/verify.
type VerifyResponse struct {
	Valid        bool
	Error        string
	DecisionHash string // 0x hex
	Signer       string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string
	Signer      string
	Circuit     string
	HistorySize int
	Version     string
}

// AssetCircuit is the per-asset part of CircuitResponse.
type AssetCircuit struct {
	AssetID             string
	Blocked             bool
	ConsecutiveFailures int
	HealthScore         float64
	LastValidData       int64
	LastFailureReason   string
}

// CircuitResponse is the body of the /v1/circuit endpoints.
type CircuitResponse struct {
	State           string
	FailureCount    int
	SuccessCount    int
	LastStateChange int64
	Reason          string
	Assets          []AssetCircuit
}

// EmergencyStopRequest is the body of POST /v1/circuit/emergency-stop.
type EmergencyStopRequest struct {
	Reason string
}

// FactorView is one evaluated risk factor.
type FactorView struct {
	Name      string
	Value     float64
	Threshold float64
	Impact    float64
	Triggered bool
	Severity  string
}

// DecisionView is a signed decision with the evaluator context it came from.
type DecisionView struct {
	Decision       wire.SignedDecision
	Source         string
	RiskScore      float64
	SizeMultiplier float64
	Explanation    string
	Factors        []FactorView
}

// HistoryResponse is the body of GET /v1/history.
type HistoryResponse struct {
	Count     int
	Decisions []DecisionView
}

// AnchorResponse is the body of GET /v1/anchor/{asset}.
type AnchorResponse struct {
	AssetID         string
	Address         string
	Bump            uint8
	RiskScore       uint8
	IsBlocked       bool
	ConfidenceRatio uint64
	PublisherCount  uint8
	Timestamp       int64
	LastUpdated     int64
	DecisionHash    string // 0x hex
	Signer          string
}

func newCircuitResponse(s domain.CircuitStatus, assets []domain.AssetCircuitStatus) CircuitResponse {
	out := CircuitResponse{
		State:           s.State.String(),
		FailureCount:    s.FailureCount,
		SuccessCount:    s.SuccessCount,
		LastStateChange: s.LastStateChange,
		Reason:          s.Reason,
		Assets:          make([]AssetCircuit, 0, len(assets)),
	}
	for _, a := range assets {
		out.Assets = append(out.Assets, AssetCircuit{
			AssetID:             a.AssetID,
			Blocked:             a.Blocked,
			ConsecutiveFailures: a.ConsecutiveFailures,
			HealthScore:         a.HealthScore,
			LastValidData:       a.LastValidData,
			LastFailureReason:   a.LastFailureReason,
		})
	}
	return out
}

func newDecisionView(e history.Entry) DecisionView {
	v := DecisionView{
		Decision:       wire.FromDomain(e.Signed),
		Source:         e.Decision.Source.String(),
		RiskScore:      e.Decision.RiskScore,
		SizeMultiplier: e.Decision.SizeMultiplier,
		Explanation:    e.Decision.Explanation,
		Factors:        make([]FactorView, 0, len(e.Decision.Factors)),
	}
	for _, f := range e.Decision.Factors {
		v.Factors = append(v.Factors, FactorView{
			Name:      f.Name,
			Value:     f.Value,
			Threshold: f.Threshold,
			Impact:    f.Impact,
			Triggered: f.Triggered,
			Severity:  f.Severity.String(),
		})
	}
	return v
}

// recordView renders a stored decision. Factors are not persisted.
func recordView(r *domain.DecisionRecord) DecisionView {
	return DecisionView{
		Decision:       wire.FromDomain(r.Signed),
		Source:         r.Source.String(),
		RiskScore:      r.RiskScore,
		SizeMultiplier: r.SizeMultiplier,
		Explanation:    r.Explanation,
		Factors:        []FactorView{},
	}
}

func newAnchorResponse(s anchor.AssetRiskStatus, addr anchor.PublicKey) AnchorResponse {
	return AnchorResponse{
		AssetID:         s.Asset(),
		Address:         addr.String(),
		Bump:            s.Bump,
		RiskScore:       s.RiskScore,
		IsBlocked:       s.IsBlocked,
		ConfidenceRatio: s.ConfidenceRatio,
		PublisherCount:  s.PublisherCount,
		Timestamp:       s.Timestamp,
		LastUpdated:     s.LastUpdated,
		DecisionHash:    hexutil.Encode(s.DecisionHash[:]),
		Signer:          base58.Encode(s.SignerPubkey[:]),
	}
}
