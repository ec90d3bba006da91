package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/storage"
)

// DecisionStore implements storage.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *Pool
}

// NewDecisionStore creates a new DecisionStore.
func NewDecisionStore(pool *Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DecisionStore = (*DecisionStore)(nil)

const decisionColumns = `
	decision_hash, asset_id, price, confidence, confidence_ratio_bps,
	risk_score, action, is_blocked, size_multiplier_bps, publisher_count,
	timestamp, nonce, signature, signer_pubkey,
	source, score, size_multiplier, explanation, created_at_ms
`

// Insert adds a new record. Returns ErrDuplicateKey if the decision hash exists.
func (s *DecisionStore) Insert(ctx context.Context, r *domain.DecisionRecord) error {
	if r == nil || r.AssetID() == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO signed_decisions (` + decisionColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19
		)
	`

	p := r.Signed.Payload
	_, err := s.pool.Exec(ctx, query,
		r.Signed.DecisionHash[:], p.AssetID, p.Price, p.Confidence, int64(p.ConfidenceRatioBps),
		int16(p.RiskScore), string(p.Action), p.IsBlocked, int32(p.SizeMultiplierBps), int16(p.PublisherCount),
		p.Timestamp, int64(p.Nonce), r.Signed.Signature[:], r.Signed.SignerPublicKey[:],
		string(r.Source), r.RiskScore, r.SizeMultiplier, r.Explanation, r.CreatedAtMs,
	)
	return translateError("insert signed decision", err)
}

// GetByHash retrieves a record by decision hash. Returns ErrNotFound if not exists.
func (s *DecisionStore) GetByHash(ctx context.Context, hash [32]byte) (*domain.DecisionRecord, error) {
	query := `SELECT ` + decisionColumns + ` FROM signed_decisions WHERE decision_hash = $1`

	r, err := scanDecision(s.pool.QueryRow(ctx, query, hash[:]))
	if err != nil {
		return nil, translateError("get signed decision by hash", err)
	}
	return r, nil
}

// GetLatest retrieves the newest record for an asset. Returns ErrNotFound if none.
func (s *DecisionStore) GetLatest(ctx context.Context, assetID string) (*domain.DecisionRecord, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM signed_decisions
		WHERE asset_id = $1
		ORDER BY timestamp DESC, nonce DESC
		LIMIT 1
	`

	r, err := scanDecision(s.pool.QueryRow(ctx, query, assetID))
	if err != nil {
		return nil, translateError("get latest signed decision", err)
	}
	return r, nil
}

// ListByAsset retrieves up to limit newest records for an asset, newest first.
func (s *DecisionStore) ListByAsset(ctx context.Context, assetID string, limit int) ([]*domain.DecisionRecord, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM signed_decisions
		WHERE asset_id = $1
		ORDER BY timestamp DESC, nonce DESC
	`
	args := []any{assetID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signed decisions by asset: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// ListByTimeRange retrieves records within [start, end] (inclusive), ordered by timestamp ASC.
func (s *DecisionStore) ListByTimeRange(ctx context.Context, start, end int64) ([]*domain.DecisionRecord, error) {
	query := `
		SELECT ` + decisionColumns + `
		FROM signed_decisions
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, nonce ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("list signed decisions by time range: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// scanDecision scans a single row into DecisionRecord.
func scanDecision(row pgx.Row) (*domain.DecisionRecord, error) {
	var (
		r                       domain.DecisionRecord
		hash, signature, signer []byte
		ratioBps, nonce         int64
		riskScore, publishers   int16
		sizeBps                 int32
		action, source          string
	)
	p := &r.Signed.Payload

	err := row.Scan(
		&hash, &p.AssetID, &p.Price, &p.Confidence, &ratioBps,
		&riskScore, &action, &p.IsBlocked, &sizeBps, &publishers,
		&p.Timestamp, &nonce, &signature, &signer,
		&source, &r.RiskScore, &r.SizeMultiplier, &r.Explanation, &r.CreatedAtMs,
	)
	if err != nil {
		return nil, err
	}

	if len(hash) != 32 || len(signature) != 64 || len(signer) != 32 {
		return nil, fmt.Errorf("%w: malformed key material in row", storage.ErrInvalidInput)
	}
	copy(r.Signed.DecisionHash[:], hash)
	copy(r.Signed.Signature[:], signature)
	copy(r.Signed.SignerPublicKey[:], signer)

	p.ConfidenceRatioBps = uint64(ratioBps)
	p.RiskScore = uint8(riskScore)
	p.Action = domain.RiskAction(action)
	p.SizeMultiplierBps = uint16(sizeBps)
	p.PublisherCount = uint8(publishers)
	p.Nonce = uint64(nonce)
	r.Source = domain.SourceTag(source)

	return &r, nil
}

// scanDecisions scans multiple rows.
func scanDecisions(rows pgx.Rows) ([]*domain.DecisionRecord, error) {
	var records []*domain.DecisionRecord

	for rows.Next() {
		r, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signed decision row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signed decision rows: %w", err)
	}

	return records, nil
}
