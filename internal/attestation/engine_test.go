package attestation

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/idhash"
)

func testKey(t *testing.T, seedByte byte) ed25519.PrivateKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	return ed25519.NewKeyFromSeed(seed)
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(testKey(t, 7), WithNonceSource(NewNonceSourceFrom(100)))
	require.NoError(t, err)
	return e
}

func samplePayload() domain.DecisionPayload {
	return domain.DecisionPayload{
		AssetID:            "SOL/USD",
		Price:              150.25,
		Confidence:         0.15,
		ConfidenceRatioBps: 10,
		RiskScore:          15,
		Action:             domain.ActionAllow,
		IsBlocked:          false,
		SizeMultiplierBps:  10000,
		PublisherCount:     12,
		Timestamp:          1_700_000_000,
		Nonce:              42,
	}
}

func TestNewEngine_RejectsShortKey(t *testing.T) {
	_, err := NewEngine(make([]byte, 32))
	assert.Error(t, err)
}

func TestEngine_SignVerifyRoundtrip(t *testing.T) {
	e := testEngine(t)

	sd, err := e.Sign(samplePayload())
	require.NoError(t, err)

	assert.Equal(t, e.PublicKey(), sd.SignerPublicKey)
	assert.Equal(t, idhash.ComputeDecisionHash(sd.Payload), sd.DecisionHash)
	assert.Equal(t, uint64(42), sd.Payload.Nonce, "explicit nonce kept")

	res := Verify(sd)
	assert.True(t, res.Valid)
	assert.NoError(t, res.Err)

	res = VerifyTrusted(sd, e.PublicKey())
	assert.True(t, res.Valid)
}

func TestEngine_SignFillsZeroNonce(t *testing.T) {
	e := testEngine(t)

	p := samplePayload()
	p.Nonce = 0

	first, err := e.Sign(p)
	require.NoError(t, err)
	second, err := e.Sign(p)
	require.NoError(t, err)

	assert.Equal(t, uint64(101), first.Payload.Nonce)
	assert.Equal(t, uint64(102), second.Payload.Nonce)
	assert.NotEqual(t, first.DecisionHash, second.DecisionHash, "fresh nonce must change the hash")
}

func TestEngine_SignIsDeterministic(t *testing.T) {
	e := testEngine(t)

	a, err := e.Sign(samplePayload())
	require.NoError(t, err)
	b, err := e.Sign(samplePayload())
	require.NoError(t, err)

	assert.Equal(t, a.DecisionHash, b.DecisionHash)
	assert.Equal(t, a.Signature, b.Signature)
}

func TestVerify_TamperedPayload(t *testing.T) {
	e := testEngine(t)
	sd, err := e.Sign(samplePayload())
	require.NoError(t, err)

	tampered := sd
	tampered.Payload.RiskScore = 90
	res := Verify(tampered)
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, ErrHashMismatch)

	tampered = sd
	tampered.Payload.IsBlocked = true
	assert.ErrorIs(t, Verify(tampered).Err, ErrHashMismatch)
}

func TestVerify_TamperedAssetID(t *testing.T) {
	e := testEngine(t)

	long := samplePayload()
	long.AssetID = "BTC/USD-PERPETUA"
	sdLong, err := e.Sign(long)
	require.NoError(t, err)

	short, err := e.Sign(samplePayload())
	require.NoError(t, err)

	cases := []struct {
		name   string
		signed domain.SignedDecision
		asset  string
	}{
		{"appended past layout width", sdLong, "BTC/USD-PERPETUAL"},
		{"trailing NUL at full width", sdLong, "BTC/USD-PERPETUA\x00"},
		{"trailing NUL", short, "SOL/USD\x00"},
		{"truncated", short, "SOL/US"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tampered := tc.signed
			tampered.Payload.AssetID = tc.asset
			res := Verify(tampered)
			assert.False(t, res.Valid)
			assert.ErrorIs(t, res.Err, ErrHashMismatch)
		})
	}

	assert.True(t, Verify(sdLong).Valid)
}

func TestSign_RejectsNULInAssetID(t *testing.T) {
	e := testEngine(t)
	p := samplePayload()
	p.AssetID = "SOL\x00USD"
	_, err := e.Sign(p)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestVerify_BadSignature(t *testing.T) {
	e := testEngine(t)
	sd, err := e.Sign(samplePayload())
	require.NoError(t, err)

	sd.Signature[0] ^= 0xFF
	res := Verify(sd)
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, ErrInvalidSignature)
}

func TestVerify_ForeignSignerKey(t *testing.T) {
	e := testEngine(t)
	other, err := NewEngine(testKey(t, 9))
	require.NoError(t, err)

	sd, err := e.Sign(samplePayload())
	require.NoError(t, err)

	// Swapping in another key breaks the signature check.
	sd.SignerPublicKey = other.PublicKey()
	assert.ErrorIs(t, Verify(sd).Err, ErrInvalidSignature)
}

func TestVerifyTrusted_UntrustedSigner(t *testing.T) {
	e := testEngine(t)
	other, err := NewEngine(testKey(t, 9))
	require.NoError(t, err)

	sd, err := other.Sign(samplePayload())
	require.NoError(t, err)

	assert.True(t, Verify(sd).Valid, "valid on its own")
	res := VerifyTrusted(sd, e.PublicKey())
	assert.False(t, res.Valid)
	assert.ErrorIs(t, res.Err, ErrInvalidSigner)
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.DecisionPayload)
	}{
		{"empty asset", func(p *domain.DecisionPayload) { p.AssetID = "" }},
		{"long asset", func(p *domain.DecisionPayload) { p.AssetID = "ABCDEFGHIJKLMNOPQ" }},
		{"bad action", func(p *domain.DecisionPayload) { p.Action = "HOLD" }},
		{"score over 100", func(p *domain.DecisionPayload) { p.RiskScore = 101 }},
		{"ratio over max", func(p *domain.DecisionPayload) { p.ConfidenceRatioBps = MaxBps + 1 }},
		{"multiplier over max", func(p *domain.DecisionPayload) { p.SizeMultiplierBps = MaxBps + 1 }},
	}

	e := testEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mutate(&p)
			_, err := e.Sign(p)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}

	p := samplePayload()
	p.AssetID = "ABCDEFGHIJKLMNOP"
	assert.NoError(t, ValidatePayload(p), "16 bytes is the limit")
}

func TestEngine_SignDecision(t *testing.T) {
	e := testEngine(t)

	d := domain.RiskDecision{
		AssetID:        "BTC/USD",
		Action:         domain.ActionScale,
		SizeMultiplier: 0.61234,
		RiskScore:      32.6,
		Timestamp:      1_700_000_100,
		Source:         domain.SourceLive,
		Metrics: domain.OracleMetrics{
			AssetID:         "BTC/USD",
			Price:           40000,
			Confidence:      200,
			ConfidenceRatio: 0.5,
			PublisherCount:  20,
		},
	}

	sd, err := e.SignDecision(d)
	require.NoError(t, err)

	p := sd.Payload
	assert.Equal(t, "BTC/USD", p.AssetID)
	assert.Equal(t, uint64(50), p.ConfidenceRatioBps)
	assert.Equal(t, uint8(33), p.RiskScore)
	assert.Equal(t, uint16(6123), p.SizeMultiplierBps)
	assert.Equal(t, uint8(20), p.PublisherCount)
	assert.False(t, p.IsBlocked)
	assert.NotZero(t, p.Nonce)
	assert.True(t, Verify(sd).Valid)
}

func TestEngine_Identity(t *testing.T) {
	e := testEngine(t)
	pub, err := ParsePublicKey(e.Identity())
	require.NoError(t, err)
	assert.Equal(t, e.PublicKey(), pub)
}
