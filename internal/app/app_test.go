package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/api"
	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/config"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage/memory"
)

func testApp(t *testing.T) (*App, string) {
	t.Helper()
	key, err := attestation.GenerateKeypair()
	require.NoError(t, err)
	engine, err := attestation.NewEngine(key)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:            "127.0.0.1:0",
			TimestampWindow: api.DefaultTimestampWindow,
			ShutdownTimeout: time.Second,
		},
		Signer:  config.SignerConfig{SecretKey: attestation.EncodeSecretKey(key)},
		Storage: config.StorageConfig{Decisions: config.DriverMemory, Metrics: config.DriverNone},
		History: config.HistoryConfig{Capacity: 16},
		Metrics: config.MetricsConfig{Namespace: "cate_app_test"},
	}
	return NewApp(cfg, zerolog.Nop()), engine.Identity()
}

func TestLoadSigner_SecretKeyWinsOverFile(t *testing.T) {
	a, identity := testApp(t)
	a.Config.Signer.KeypairPath = filepath.Join(t.TempDir(), "missing.json")

	engine, err := a.newEngine()
	require.NoError(t, err)
	assert.Equal(t, identity, engine.Identity())
}

func TestLoadSigner_NotConfigured(t *testing.T) {
	a, _ := testApp(t)
	a.Config.Signer = config.SignerConfig{}

	_, err := a.newEngine()
	assert.ErrorIs(t, err, ErrSignerNotConfigured)
}

func TestKeygen_WritesKeypairFile(t *testing.T) {
	a, _ := testApp(t)
	path := filepath.Join(t.TempDir(), "keys", "signer.json")

	var out bytes.Buffer
	require.NoError(t, a.Keygen(KeygenOptions{OutPath: path}, &out))
	assert.Contains(t, out.String(), "public key:")
	assert.NotContains(t, out.String(), "secret key:")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	a.Config.Signer = config.SignerConfig{KeypairPath: path}
	engine, err := a.newEngine()
	require.NoError(t, err)
	assert.Contains(t, out.String(), engine.Identity())

	err = a.Keygen(KeygenOptions{OutPath: path}, &out)
	assert.ErrorContains(t, err, "already exists")
	assert.NoError(t, a.Keygen(KeygenOptions{OutPath: path, Force: true}, &out))
}

func TestKeygen_PrintsSecretKey(t *testing.T) {
	a, _ := testApp(t)

	var out bytes.Buffer
	require.NoError(t, a.Keygen(KeygenOptions{}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	secret := strings.TrimSpace(strings.TrimPrefix(lines[1], "secret key:"))
	_, err := attestation.ParseSecretKey(secret)
	assert.NoError(t, err)
}

func TestSignThenVerify(t *testing.T) {
	a, identity := testApp(t)

	var signed bytes.Buffer
	require.NoError(t, a.Sign(api.SignRequest{
		AssetID:         "SOL/USD",
		Price:           142.5,
		ConfidenceRatio: 25,
		RiskScore:       12,
		PublisherCount:  9,
		Nonce:           77,
	}, &signed))

	var out bytes.Buffer
	require.NoError(t, a.Verify(bytes.NewReader(signed.Bytes()), VerifyOptions{Trusted: identity}, &out))
	assert.Contains(t, out.String(), "VALID: SOL/USD ALLOW")

	other, err := attestation.GenerateKeypair()
	require.NoError(t, err)
	otherEngine, err := attestation.NewEngine(other)
	require.NoError(t, err)

	out.Reset()
	err = a.Verify(bytes.NewReader(signed.Bytes()), VerifyOptions{Trusted: otherEngine.Identity()}, &out)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.Contains(t, out.String(), "INVALID")
}

func TestSign_RejectsInvalidRequest(t *testing.T) {
	a, _ := testApp(t)

	err := a.Sign(api.SignRequest{AssetID: "", Price: -1}, &bytes.Buffer{})
	var ve *api.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 2)
}

func TestVerify_Malformed(t *testing.T) {
	a, _ := testApp(t)
	err := a.Verify(strings.NewReader("{not json"), VerifyOptions{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestPDA(t *testing.T) {
	a, _ := testApp(t)

	var out bytes.Buffer
	require.NoError(t, a.PDA("SOL/USD", &out))
	s := out.String()
	assert.Contains(t, s, "config:")
	assert.Contains(t, s, "used_decisions:")
	assert.Contains(t, s, "asset_risk:")

	a.Config.Anchor.ProgramID = "not-base58-0OIl"
	assert.Error(t, a.PDA("", &out))

	a.Config.Anchor.ProgramID = ""
	assert.Error(t, a.PDA("ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFG", &out))
}

func seedRecords(t *testing.T, a *App, n int) []*domain.DecisionRecord {
	t.Helper()
	engine, err := a.newEngine()
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour).Unix()
	out := make([]*domain.DecisionRecord, 0, n)
	for i := 0; i < n; i++ {
		sd, err := engine.Sign(domain.DecisionPayload{
			AssetID:            "SOL/USD",
			Price:              100 + float64(i),
			Confidence:         0.1,
			ConfidenceRatioBps: 10,
			RiskScore:          uint8(i),
			Action:             domain.ActionAllow,
			SizeMultiplierBps:  attestation.MaxBps,
			PublisherCount:     5,
			Timestamp:          base + int64(i),
			Nonce:              uint64(i + 1),
		})
		require.NoError(t, err)
		out = append(out, &domain.DecisionRecord{
			Signed:         sd,
			Source:         domain.SourceLive,
			RiskScore:      float64(i),
			SizeMultiplier: 1,
			Explanation:    "all factors\nnominal",
			CreatedAtMs:    (base + int64(i)) * 1000,
		})
	}
	return out
}

func TestShowDecisions(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()
	store := memory.NewDecisionStore()
	for _, r := range seedRecords(t, a, 3) {
		require.NoError(t, store.Insert(ctx, r))
	}

	var out bytes.Buffer
	require.NoError(t, showDecisions(ctx, store, ShowOptions{Asset: "SOL/USD", Limit: 2}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Action")
	assert.Contains(t, lines[1], "102.0000")
	assert.Contains(t, lines[1], "all factors nominal")

	out.Reset()
	require.NoError(t, showDecisions(ctx, store, ShowOptions{Asset: "BTC/USD"}, &out))
	assert.Equal(t, "no decisions found\n", out.String())
}

func TestDownsampleRecords(t *testing.T) {
	a, _ := testApp(t)
	records := seedRecords(t, a, 10)

	got := downsampleRecords(records, 4)
	require.Len(t, got, 4)
	assert.Same(t, records[0], got[0])
	assert.Same(t, records[9], got[3])
	assert.Len(t, downsampleRecords(records, 20), 10)
}

func TestWriteDecisionsCSVAndPNG(t *testing.T) {
	a, _ := testApp(t)
	records := seedRecords(t, a, 5)
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "out", "decisions.csv")
	require.NoError(t, writeDecisionsCSV(csvPath, records))
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,asset_id,price"))
	assert.Contains(t, lines[1], "SOL/USD,100.000000,0.10")

	pngPath := filepath.Join(dir, "out", "decisions.png")
	require.NoError(t, writeDecisionsPNG(pngPath, "SOL/USD", records))
	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestExport_RequiresOutput(t *testing.T) {
	a, _ := testApp(t)
	err := a.Export(context.Background(), ExportOptions{Asset: "SOL/USD"})
	assert.ErrorContains(t, err, "--csv or --png")
}

func TestServe_StopsOnCancel(t *testing.T) {
	a, _ := testApp(t)
	reg := prometheus.NewRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := a.Serve(ctx, ServeOptions{NoIngest: true, Registerer: reg, Gatherer: reg})
	assert.NoError(t, err)
}

func TestServe_FeedsWithoutSources(t *testing.T) {
	a, _ := testApp(t)
	a.Config.Oracle.Feeds = []config.FeedConfig{{Asset: "SOL/USD", FeedID: "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"}}
	reg := prometheus.NewRegistry()

	err := a.Serve(context.Background(), ServeOptions{Registerer: reg, Gatherer: reg})
	assert.ErrorContains(t, err, "stream_url or http_url")
}
