package anchor

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("global:update_risk_status"))
	got := InstructionDiscriminator(IxUpdateRiskStatus)
	assert.Equal(t, sum[:8], got[:])

	acct := sha256.Sum256([]byte("account:AssetRiskStatus"))
	gotAcct := AccountDiscriminator(AccountAssetRiskStatus)
	assert.Equal(t, acct[:8], gotAcct[:])
}

func TestNewEd25519Instruction_Layout(t *testing.T) {
	var pk [32]byte
	var sig [64]byte
	var msg [32]byte
	for i := range pk {
		pk[i] = 0xA0
	}
	for i := range sig {
		sig[i] = 0xB0
	}
	for i := range msg {
		msg[i] = 0xC0
	}

	ix := NewEd25519Instruction(pk, msg[:], sig)
	d := ix.Data

	assert.Equal(t, Ed25519ProgramID, ix.ProgramID)
	require.Len(t, d, 144)
	assert.Equal(t, byte(1), d[0])
	assert.Equal(t, byte(0), d[1])
	assert.Equal(t, uint16(48), binary.LittleEndian.Uint16(d[2:]))
	assert.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(d[4:]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(d[6:]))
	assert.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(d[8:]))
	assert.Equal(t, uint16(112), binary.LittleEndian.Uint16(d[10:]))
	assert.Equal(t, uint16(32), binary.LittleEndian.Uint16(d[12:]))
	assert.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(d[14:]))
	assert.Equal(t, pk[:], d[16:48])
	assert.Equal(t, sig[:], d[48:112])
	assert.Equal(t, msg[:], d[112:144])

	entries, err := ParseEd25519Instruction(d)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, pk[:], entries[0].PublicKey)
	assert.Equal(t, sig[:], entries[0].Signature)
	assert.Equal(t, msg[:], entries[0].Message)
}

func TestParseEd25519Instruction_Errors(t *testing.T) {
	var pk [32]byte
	var sig [64]byte
	valid := NewEd25519Instruction(pk, make([]byte, 32), sig).Data

	tests := []struct {
		name   string
		mutate func(d []byte) []byte
		want   error
	}{
		{"too short", func(d []byte) []byte { return d[:1] }, ErrInvalidEd25519Data},
		{"zero count", func(d []byte) []byte { d[0] = 0; return d }, ErrInvalidEd25519Data},
		{"padding", func(d []byte) []byte { d[1] = 1; return d }, ErrInvalidEd25519Data},
		{"sig overflow", func(d []byte) []byte { binary.LittleEndian.PutUint16(d[2:], 100); return d }, ErrSignatureOffsetOverflow},
		{"pubkey overflow", func(d []byte) []byte { binary.LittleEndian.PutUint16(d[6:], 130); return d }, ErrPubkeyOffsetOverflow},
		{"message size", func(d []byte) []byte { binary.LittleEndian.PutUint16(d[12:], 31); return d }, ErrInvalidMessageSize},
		{"message overflow", func(d []byte) []byte { binary.LittleEndian.PutUint16(d[10:], 120); return d }, ErrMessageOffsetOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := append([]byte(nil), valid...)
			_, err := ParseEd25519Instruction(tt.mutate(d))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateRiskStatusArgs_EncodeDecode(t *testing.T) {
	args := UpdateRiskStatusArgs{
		AssetID:         "SOL/USD",
		RiskScore:       25,
		IsBlocked:       true,
		ConfidenceRatio: 9500,
		PublisherCount:  5,
		Timestamp:       1_700_000_000,
	}
	args.DecisionHash[0] = 1
	args.Signature[63] = 2
	args.SignerPubkey[31] = 3

	data := args.Encode()
	require.Len(t, data, 8+4+7+1+1+8+1+8+32+64+32)
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, "SOL/USD", string(data[12:19]))

	decoded, err := DecodeUpdateRiskStatus(data)
	require.NoError(t, err)
	assert.Equal(t, args, decoded)

	_, err = DecodeUpdateRiskStatus(data[:40])
	assert.Error(t, err)

	other := append([]byte(nil), data...)
	other[0] ^= 0xFF
	_, err = DecodeUpdateRiskStatus(other)
	assert.ErrorIs(t, err, ErrUnknownInstruction)
}

func TestNewUpdateRiskStatusInstruction_Accounts(t *testing.T) {
	authority := PublicKey{9}
	ix, err := NewUpdateRiskStatusInstruction(DefaultProgramID, authority, UpdateRiskStatusArgs{AssetID: "ETH/USD"})
	require.NoError(t, err)

	cfg, _, _ := ConfigAddress(DefaultProgramID)
	used, _, _ := UsedDecisionsAddress(DefaultProgramID)
	asset, _, _ := AssetRiskAddress(DefaultProgramID, "ETH/USD")

	require.Len(t, ix.Accounts, 6)
	assert.Equal(t, cfg, ix.Accounts[0].PublicKey)
	assert.Equal(t, used, ix.Accounts[1].PublicKey)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.Equal(t, asset, ix.Accounts[2].PublicKey)
	assert.Equal(t, authority, ix.Accounts[3].PublicKey)
	assert.True(t, ix.Accounts[3].IsSigner)
	assert.Equal(t, SysvarInstructionsID, ix.Accounts[4].PublicKey)
	assert.Equal(t, SystemProgramID, ix.Accounts[5].PublicKey)

	_, err = NewUpdateRiskStatusInstruction(DefaultProgramID, authority, UpdateRiskStatusArgs{})
	assert.ErrorIs(t, err, ErrAssetIDEmpty)
}

func TestAccountCodecs(t *testing.T) {
	cfg := Config{Bump: 254, Authority: PublicKey{1}, IsInitialized: true, TrustedSigner: PublicKey{2}, Nonce: 7}
	gotCfg, err := DecodeConfig(cfg.Encode())
	require.NoError(t, err)
	assert.Equal(t, cfg, gotCfg)
	assert.Len(t, cfg.Encode(), 8+1+32+1+32+8)

	status := AssetRiskStatus{Bump: 253, RiskScore: 80, IsBlocked: true, LastUpdated: 10, Timestamp: 9, ConfidenceRatio: 400, PublisherCount: 3}
	copy(status.AssetID[:], "BTC/USD")
	data := status.Encode()
	assert.Len(t, data, 8+1+16+1+1+8+8+8+1+32+64+32)
	gotStatus, err := DecodeAssetRiskStatus(data)
	require.NoError(t, err)
	assert.Equal(t, status, gotStatus)
	assert.Equal(t, "BTC/USD", gotStatus.Asset())

	_, err = DecodeAssetRiskStatus(cfg.Encode())
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	used := UsedDecisions{Bump: 1, MaxSize: 1000, Decisions: []DecisionRecord{{Hash: [32]byte{1}, Timestamp: 5}}}
	gotUsed, err := DecodeUsedDecisions(used.Encode())
	require.NoError(t, err)
	assert.Equal(t, used, gotUsed)
}

func TestUsedDecisions_MarkUsed(t *testing.T) {
	u := UsedDecisions{MaxSize: 2}

	require.NoError(t, u.MarkUsed([32]byte{1}, 1000))
	require.NoError(t, u.MarkUsed([32]byte{2}, 1100))
	assert.True(t, u.IsUsed([32]byte{1}))
	assert.ErrorIs(t, u.MarkUsed([32]byte{3}, 1200), ErrDecisionHistoryFull)

	// An hour after the first record it is pruned and frees a slot.
	require.NoError(t, u.MarkUsed([32]byte{3}, 1000+UsedDecisionsRetentionSeconds))
	assert.False(t, u.IsUsed([32]byte{1}))
	assert.True(t, u.IsUsed([32]byte{2}))
	assert.True(t, u.IsUsed([32]byte{3}))
}
