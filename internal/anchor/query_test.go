package anchor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/anchor"
	"cate-trust-layer/internal/solana/stub"
)

type failingReader struct{}

func (failingReader) AccountData(context.Context, string) ([]byte, error) {
	return nil, errors.New("rpc down")
}

func TestQuery_OverRPC(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()

	addr, bump, err := anchor.AssetRiskAddress(anchor.DefaultProgramID, "SOL/USD")
	require.NoError(t, err)

	want := anchor.AssetRiskStatus{
		Bump:            bump,
		RiskScore:       42,
		IsBlocked:       true,
		LastUpdated:     1_700_000_010,
		Timestamp:       1_700_000_000,
		ConfidenceRatio: 125,
		PublisherCount:  7,
	}
	copy(want.AssetID[:], "SOL/USD")
	want.DecisionHash[0] = 0xab
	rpc.SetAccount(addr.String(), want.Encode())

	got, gotAddr, err := anchor.Query(ctx, rpc, anchor.DefaultProgramID, "SOL/USD")
	require.NoError(t, err)
	assert.Equal(t, addr, gotAddr)
	assert.Equal(t, want, got)
	assert.Equal(t, "SOL/USD", got.Asset())

	_, _, err = anchor.Query(ctx, rpc, anchor.DefaultProgramID, "BTC/USD")
	assert.ErrorIs(t, err, anchor.ErrNotInitialized)

	_, _, err = anchor.Query(ctx, failingReader{}, anchor.DefaultProgramID, "SOL/USD")
	assert.ErrorContains(t, err, "rpc down")

	rpc.SetAccount(addr.String(), []byte{1, 2, 3})
	_, _, err = anchor.Query(ctx, rpc, anchor.DefaultProgramID, "SOL/USD")
	assert.ErrorIs(t, err, anchor.ErrInvalidAccountData)
}

func TestQueryConfig_OverRPC(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()

	_, err := anchor.QueryConfig(ctx, rpc, anchor.DefaultProgramID)
	assert.ErrorIs(t, err, anchor.ErrNotInitialized)

	addr, bump, err := anchor.ConfigAddress(anchor.DefaultProgramID)
	require.NoError(t, err)
	want := anchor.Config{Bump: bump, IsInitialized: true, Nonce: 3}
	want.TrustedSigner[0] = 9
	rpc.SetAccount(addr.String(), want.Encode())

	got, err := anchor.QueryConfig(ctx, rpc, anchor.DefaultProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
