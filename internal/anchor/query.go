package anchor

import (
	"context"
	"fmt"
)

// AccountReader fetches raw account data by base58 address. A missing
// account is reported as (nil, nil).
type AccountReader interface {
	AccountData(ctx context.Context, address string) ([]byte, error)
}

// Query reads the last published status of assetID.
func Query(ctx context.Context, r AccountReader, programID PublicKey, assetID string) (AssetRiskStatus, PublicKey, error) {
	addr, _, err := AssetRiskAddress(programID, assetID)
	if err != nil {
		return AssetRiskStatus{}, PublicKey{}, err
	}

	data, err := r.AccountData(ctx, addr.String())
	if err != nil {
		return AssetRiskStatus{}, addr, fmt.Errorf("read asset account %s: %w", addr, err)
	}
	if len(data) == 0 {
		return AssetRiskStatus{}, addr, fmt.Errorf("%w: asset %s", ErrNotInitialized, assetID)
	}

	status, err := DecodeAssetRiskStatus(data)
	if err != nil {
		return AssetRiskStatus{}, addr, err
	}
	return status, addr, nil
}

// QueryConfig reads the program config.
func QueryConfig(ctx context.Context, r AccountReader, programID PublicKey) (Config, error) {
	addr, _, err := ConfigAddress(programID)
	if err != nil {
		return Config{}, err
	}
	data, err := r.AccountData(ctx, addr.String())
	if err != nil {
		return Config{}, fmt.Errorf("read config account %s: %w", addr, err)
	}
	if len(data) == 0 {
		return Config{}, ErrNotInitialized
	}
	return DecodeConfig(data)
}
