package publish

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/mailru/easyjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cate-trust-layer/internal/attestation"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/wire"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	flushes  []time.Duration
	pubErr   error
	flushErr error
	drained  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) FlushTimeout(d time.Duration) error {
	f.flushes = append(f.flushes, d)
	return f.flushErr
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func signed(t *testing.T, asset string) domain.SignedDecision {
	t.Helper()
	engine, err := attestation.NewEngine(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)))
	require.NoError(t, err)
	sd, err := engine.Sign(domain.DecisionPayload{
		AssetID:   asset,
		Price:     100,
		Action:    domain.ActionAllow,
		Timestamp: 1700000000,
		Nonce:     7,
	})
	require.NoError(t, err)
	return sd
}

func TestNATSPublisher_PublishesOnAssetSubject(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "cate.decisions.", time.Second, zerolog.Nop())

	sd := signed(t, "SOL")
	require.NoError(t, p.Publish(context.Background(), sd))

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, "cate.decisions.SOL", fc.subjects[0])
	assert.Equal(t, []time.Duration{time.Second}, fc.flushes)

	var w wire.SignedDecision
	require.NoError(t, easyjson.Unmarshal(fc.payloads[0], &w))
	back, err := w.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, sd, back)
}

func TestNATSPublisher_SubjectSanitized(t *testing.T) {
	p := newNATSPublisher(&fakeConn{}, "", 0, zerolog.Nop())
	assert.Equal(t, "cate.decisions.BTC_USD", p.Subject("BTC.USD"))
	assert.Equal(t, "cate.decisions.a_b_", p.Subject("a*b>"))
	assert.Equal(t, "cate.decisions._", p.Subject(""))
}

func TestNATSPublisher_Errors(t *testing.T) {
	fc := &fakeConn{pubErr: errors.New("connection closed")}
	p := newNATSPublisher(fc, "", time.Second, zerolog.Nop())
	assert.Error(t, p.Publish(context.Background(), signed(t, "SOL")))

	fc = &fakeConn{flushErr: errors.New("timeout")}
	p = newNATSPublisher(fc, "", time.Second, zerolog.Nop())
	assert.Error(t, p.Publish(context.Background(), signed(t, "SOL")))
}

func TestNATSPublisher_ContextDeadlineBoundsFlush(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "", time.Minute, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Publish(ctx, signed(t, "SOL")))

	require.Len(t, fc.flushes, 1)
	assert.LessOrEqual(t, fc.flushes[0], 500*time.Millisecond)
}

func TestNATSPublisher_CloseDrains(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "", 0, zerolog.Nop())
	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), signed(t, "SOL")))
	assert.NoError(t, p.Close())
}
