package attestation

import (
	"math"
	"testing"

	"cate-trust-layer/internal/domain"
)

func TestPercentToBps(t *testing.T) {
	tests := []struct {
		pct  float64
		want uint64
	}{
		{0, 0},
		{-1, 0},
		{math.NaN(), 0},
		{0.1, 10},
		{0.2, 20},
		{1.0, 100},
		{0.125, 13},
		{0.005, 1},
		{0.004, 0},
		{100, 10000},
		{250, 10000},
	}

	for _, tt := range tests {
		if got := PercentToBps(tt.pct); got != tt.want {
			t.Errorf("PercentToBps(%v) = %d, want %d", tt.pct, got, tt.want)
		}
	}
}

func TestFractionToBps(t *testing.T) {
	tests := []struct {
		f    float64
		want uint16
	}{
		{0, 0},
		{1, 10000},
		{1.5, 10000},
		{0.5, 5000},
		{0.12345, 1235},
		{0.1, 1000},
	}

	for _, tt := range tests {
		if got := FractionToBps(tt.f); got != tt.want {
			t.Errorf("FractionToBps(%v) = %d, want %d", tt.f, got, tt.want)
		}
	}
}

func TestBpsToConfidence(t *testing.T) {
	if got := BpsToConfidence(150, 10); math.Abs(got-0.15) > 1e-12 {
		t.Errorf("BpsToConfidence(150, 10) = %v, want 0.15", got)
	}
}

func TestNewPayload_Block(t *testing.T) {
	d := domain.RiskDecision{
		AssetID:   "ETH/USD",
		Action:    domain.ActionBlock,
		RiskScore: 140,
		Metrics:   domain.OracleMetrics{Price: 2000, Confidence: 100, ConfidenceRatio: 5, PublisherCount: 400},
	}

	p := NewPayload(d, 9)

	if !p.IsBlocked {
		t.Error("BLOCK must set IsBlocked")
	}
	if p.RiskScore != 100 {
		t.Errorf("RiskScore = %d, want clamped 100", p.RiskScore)
	}
	if p.PublisherCount != 255 {
		t.Errorf("PublisherCount = %d, want clamped 255", p.PublisherCount)
	}
	if p.SizeMultiplierBps != 0 {
		t.Errorf("SizeMultiplierBps = %d, want 0", p.SizeMultiplierBps)
	}
	if p.ConfidenceRatioBps != 500 {
		t.Errorf("ConfidenceRatioBps = %d, want 500", p.ConfidenceRatioBps)
	}
	if p.Nonce != 9 {
		t.Errorf("Nonce = %d, want 9", p.Nonce)
	}
}
