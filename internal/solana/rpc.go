// Package solana is a minimal JSON-RPC client for reading trust anchor
// accounts from a Solana cluster.
package solana

import "context"

// RPCClient defines the Solana RPC calls used by the trust layer.
type RPCClient interface {
	// GetAccountInfo retrieves an account, or nil if it does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// AccountData returns decoded account data, or nil if absent.
	AccountData(ctx context.Context, address string) ([]byte, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetHealth checks node health.
	GetHealth(ctx context.Context) error
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)
