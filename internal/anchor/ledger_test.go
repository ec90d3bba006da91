package anchor

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/domain"
)

const testNow = int64(1_700_000_000)

type ledgerFixture struct {
	ledger    *Ledger
	engine    *attestation.Engine
	authority PublicKey
}

func newFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42
	engine, err := attestation.NewEngine(ed25519.NewKeyFromSeed(seed), attestation.WithNonceSource(attestation.NewNonceSourceFrom(0)))
	require.NoError(t, err)

	authority := PublicKey{0xAA}
	verifier := NewVerifier(WithVerifierClock(func() time.Time { return time.Unix(testNow, 0) }))
	ledger, err := NewLedger(DefaultProgramID, authority, PublicKey(engine.PublicKey()), verifier)
	require.NoError(t, err)

	return &ledgerFixture{ledger: ledger, engine: engine, authority: authority}
}

func (f *ledgerFixture) sign(t *testing.T, asset string, ts int64, blocked bool) domain.SignedDecision {
	t.Helper()
	action := domain.ActionAllow
	if blocked {
		action = domain.ActionBlock
	}
	sd, err := f.engine.Sign(domain.DecisionPayload{
		AssetID:            asset,
		Price:              150,
		Confidence:         0.15,
		ConfidenceRatioBps: 10,
		RiskScore:          20,
		Action:             action,
		IsBlocked:          blocked,
		SizeMultiplierBps:  10000,
		PublisherCount:     8,
		Timestamp:          ts,
	})
	require.NoError(t, err)
	return sd
}

func (f *ledgerFixture) tx(t *testing.T, sd domain.SignedDecision) []Instruction {
	t.Helper()
	ixs, err := BuildPublishTransaction(DefaultProgramID, f.authority, sd)
	require.NoError(t, err)
	require.Len(t, ixs, 2)
	return ixs
}

func TestLedger_PublishAndQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sd := f.sign(t, "SOL/USD", testNow, true)
	require.NoError(t, f.ledger.Submit(ctx, f.authority, f.tx(t, sd)))

	status, addr, err := Query(ctx, f.ledger, DefaultProgramID, "SOL/USD")
	require.NoError(t, err)

	want, _, _ := AssetRiskAddress(DefaultProgramID, "SOL/USD")
	assert.Equal(t, want, addr)
	assert.Equal(t, "SOL/USD", status.Asset())
	assert.True(t, status.IsBlocked)
	assert.Equal(t, uint8(20), status.RiskScore)
	assert.Equal(t, uint64(10), status.ConfidenceRatio)
	assert.Equal(t, testNow, status.Timestamp)
	assert.Equal(t, testNow, status.LastUpdated)
	assert.Equal(t, sd.DecisionHash, status.DecisionHash)
	assert.Equal(t, sd.Signature, status.Signature)
	assert.Equal(t, 1, f.ledger.UsedCount())
	assert.Equal(t, []string{"SOL/USD"}, f.ledger.Assets())

	cfg, err := QueryConfig(ctx, f.ledger, DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, f.authority, cfg.Authority)
}

func TestLedger_QueryNotInitialized(t *testing.T) {
	f := newFixture(t)
	_, _, err := Query(context.Background(), f.ledger, DefaultProgramID, "DOGE/USD")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestLedger_RejectsReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sd := f.sign(t, "SOL/USD", testNow, false)
	require.NoError(t, f.ledger.Submit(ctx, f.authority, f.tx(t, sd)))
	assert.ErrorIs(t, f.ledger.Submit(ctx, f.authority, f.tx(t, sd)), ErrDecisionAlreadyUsed)
}

func TestLedger_RequiresPrecedingVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sd := f.sign(t, "SOL/USD", testNow, false)
	ixs := f.tx(t, sd)

	err := f.ledger.Submit(ctx, f.authority, ixs[1:])
	assert.ErrorIs(t, err, ErrMissingVerificationInstruction)

	// Publish before verify.
	err = f.ledger.Submit(ctx, f.authority, []Instruction{ixs[1], ixs[0]})
	assert.ErrorIs(t, err, ErrMissingVerificationInstruction)

	assert.Equal(t, 0, f.ledger.UsedCount(), "failed transactions leave no state")
}

func TestLedger_RejectsUntrustedSigner(t *testing.T) {
	f := newFixture(t)

	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	rogue, err := attestation.NewEngine(ed25519.NewKeyFromSeed(seed))
	require.NoError(t, err)

	sd, err := rogue.Sign(domain.DecisionPayload{AssetID: "SOL/USD", Action: domain.ActionAllow, Timestamp: testNow, Nonce: 1})
	require.NoError(t, err)

	err = f.ledger.Submit(context.Background(), f.authority, f.tx(t, sd))
	assert.ErrorIs(t, err, ErrInvalidSigner)
}

func TestLedger_RejectsForgedSignature(t *testing.T) {
	f := newFixture(t)
	sd := f.sign(t, "SOL/USD", testNow, false)
	sd.Signature[5] ^= 0x01

	err := f.ledger.Submit(context.Background(), f.authority, f.tx(t, sd))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestLedger_TimestampWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.sign(t, "SOL/USD", testNow-301, false)
	assert.ErrorIs(t, f.ledger.Submit(ctx, f.authority, f.tx(t, old)), ErrInvalidTimestamp)

	future := f.sign(t, "SOL/USD", testNow+61, false)
	assert.ErrorIs(t, f.ledger.Submit(ctx, f.authority, f.tx(t, future)), ErrInvalidTimestamp)

	edge := f.sign(t, "SOL/USD", testNow-300, false)
	assert.NoError(t, f.ledger.Submit(ctx, f.authority, f.tx(t, edge)))
}

func TestLedger_RequiresAuthority(t *testing.T) {
	f := newFixture(t)
	sd := f.sign(t, "SOL/USD", testNow, false)

	err := f.ledger.Submit(context.Background(), PublicKey{0xBB}, f.tx(t, sd))
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLedger_UpdateTrustedSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newSigner := PublicKey{0x55}

	assert.ErrorIs(t, f.ledger.UpdateTrustedSigner(ctx, PublicKey{0xBB}, newSigner), ErrUnauthorized)

	require.NoError(t, f.ledger.UpdateTrustedSigner(ctx, f.authority, newSigner))
	cfg := f.ledger.Config()
	assert.Equal(t, newSigner, cfg.TrustedSigner)
	assert.Equal(t, uint64(1), cfg.Nonce)

	sd := f.sign(t, "SOL/USD", testNow, false)
	assert.ErrorIs(t, f.ledger.Submit(ctx, f.authority, f.tx(t, sd)), ErrInvalidSigner)
}

func TestVerifier_MessageMismatch(t *testing.T) {
	f := newFixture(t)
	sd := f.sign(t, "SOL/USD", testNow, false)
	ixs := f.tx(t, sd)

	// Verification instruction carries the right key and signature but a
	// different message.
	other := sd.DecisionHash
	other[0] ^= 0xFF
	ixs[0] = NewEd25519Instruction(sd.SignerPublicKey, other[:], sd.Signature)

	v := NewVerifier(WithVerifierClock(func() time.Time { return time.Unix(testNow, 0) }))
	_, err := v.VerifyPublish(f.ledger.Config(), &UsedDecisions{MaxSize: 10}, ixs, 1)
	assert.ErrorIs(t, err, ErrMessageMismatch)
}

func TestVerifyEd25519Precedes_SignerEntryMismatch(t *testing.T) {
	f := newFixture(t)
	sd := f.sign(t, "SOL/USD", testNow, false)
	ixs := f.tx(t, sd)

	otherMsg := sd.DecisionHash
	otherMsg[3] ^= 0x10
	otherSig := sd.Signature
	otherSig[0] ^= 0x01

	// Trusted key present, message and signature both differ.
	ixs[0] = NewEd25519Instruction(sd.SignerPublicKey, otherMsg[:], otherSig)
	err := VerifyEd25519Precedes(ixs, 1, sd.SignerPublicKey, sd.DecisionHash, sd.Signature)
	assert.ErrorIs(t, err, ErrMessageMismatch)

	// Same message, different signature.
	ixs[0] = NewEd25519Instruction(sd.SignerPublicKey, sd.DecisionHash[:], otherSig)
	err = VerifyEd25519Precedes(ixs, 1, sd.SignerPublicKey, sd.DecisionHash, sd.Signature)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifier_Bounds(t *testing.T) {
	assert.ErrorIs(t, CheckBounds(UpdateRiskStatusArgs{AssetID: "A", RiskScore: 101}), ErrInvalidRiskScore)
	assert.ErrorIs(t, CheckBounds(UpdateRiskStatusArgs{AssetID: "A", ConfidenceRatio: 10001}), ErrInvalidConfidenceRatio)
	assert.ErrorIs(t, CheckBounds(UpdateRiskStatusArgs{}), ErrAssetIDEmpty)
	assert.ErrorIs(t, CheckBounds(UpdateRiskStatusArgs{AssetID: "ABCDEFGHIJKLMNOPQ"}), ErrAssetIDTooLong)
	assert.NoError(t, CheckBounds(UpdateRiskStatusArgs{AssetID: "ABCDEFGHIJKLMNOP", RiskScore: 100, ConfidenceRatio: 10000}))
}

func TestVerifier_VerifyDecisionExpired(t *testing.T) {
	f := newFixture(t)
	sd := f.sign(t, "SOL/USD", testNow-400, false)
	ixs := f.tx(t, sd)

	v := NewVerifier(WithVerifierClock(func() time.Time { return time.Unix(testNow, 0) }))
	err := v.VerifyDecision(f.ledger.Config(), ixs, 1, ArgsFromSigned(sd))
	assert.ErrorIs(t, err, ErrDecisionExpired)

	fresh := f.sign(t, "SOL/USD", testNow, false)
	assert.NoError(t, v.VerifyDecision(f.ledger.Config(), f.tx(t, fresh), 1, ArgsFromSigned(fresh)))
}
