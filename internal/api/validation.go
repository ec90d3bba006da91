package api

import (
	"fmt"
	"math"
	"strings"
	"time"

	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/domain"
)

// Request limits.
const (
	DefaultTimestampWindow  = 300 * time.Second
	maxPublisherCount       = math.MaxUint8
	errCodeValidationFailed = "ValidationFailed"
)

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Fields[0].Field, e.Fields[0].Message)
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateSignRequest checks req against the clock now. All violations are
// reported together.
func ValidateSignRequest(req SignRequest, now time.Time, window time.Duration) error {
	ve := &ValidationError{}

	switch {
	case req.AssetID == "":
		ve.add("assetId", "must not be empty")
	case len(req.AssetID) > domain.MaxAssetIDLength:
		ve.add("assetId", "must be at most %d bytes, got %d", domain.MaxAssetIDLength, len(req.AssetID))
	case strings.IndexByte(req.AssetID, 0) >= 0:
		ve.add("assetId", "must not contain NUL bytes")
	}

	if math.IsNaN(req.Price) || math.IsInf(req.Price, 0) || req.Price <= 0 {
		ve.add("price", "must be positive")
	}

	if skew := now.Unix() - req.Timestamp; skew > int64(window/time.Second) || -skew > int64(window/time.Second) {
		ve.add("timestamp", "must be within %s of server time, skew %ds", window, skew)
	}

	if req.ConfidenceRatio < 0 || req.ConfidenceRatio > attestation.MaxBps {
		ve.add("confidenceRatio", "must be in [0, %d] basis points", attestation.MaxBps)
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		ve.add("riskScore", "must be in [0, 100]")
	}
	if req.PublisherCount < 0 || req.PublisherCount > maxPublisherCount {
		ve.add("publisherCount", "must be in [0, %d]", maxPublisherCount)
	}
	if req.Nonce < 0 {
		ve.add("nonce", "must not be negative")
	}

	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// PayloadFromRequest maps a validated request to a decision payload. A
// blocked request signs BLOCK with a zero multiplier, anything else ALLOW
// at full size.
func PayloadFromRequest(req SignRequest) domain.DecisionPayload {
	p := domain.DecisionPayload{
		AssetID:            req.AssetID,
		Price:              req.Price,
		Confidence:         attestation.BpsToConfidence(req.Price, uint64(req.ConfidenceRatio)),
		ConfidenceRatioBps: uint64(req.ConfidenceRatio),
		RiskScore:          uint8(req.RiskScore),
		Action:             domain.ActionAllow,
		IsBlocked:          req.IsBlocked,
		SizeMultiplierBps:  attestation.MaxBps,
		PublisherCount:     uint8(req.PublisherCount),
		Timestamp:          req.Timestamp,
		Nonce:              uint64(req.Nonce),
	}
	if req.IsBlocked {
		p.Action = domain.ActionBlock
		p.SizeMultiplierBps = 0
	}
	return p
}

// forceBlocked overrides p to BLOCK.
func forceBlocked(p domain.DecisionPayload) domain.DecisionPayload {
	p.Action = domain.ActionBlock
	p.IsBlocked = true
	p.SizeMultiplierBps = 0
	return p
}
