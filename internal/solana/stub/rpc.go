// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"cate-trust-layer/internal/solana"
)

// Owner is reported as the owner of every stored account.
const Owner = "77kRa7xJb2SQpPC1fdFGj8edzm5MJxhq2j54BxMWtPe6"

// RPCClient serves accounts from a map.
type RPCClient struct {
	mu       sync.RWMutex
	accounts map[string][]byte
	slot     int64
	health   error
	calls    int
}

// NewRPCClient creates an empty stub cluster.
func NewRPCClient() *RPCClient {
	return &RPCClient{accounts: make(map[string][]byte)}
}

var _ solana.RPCClient = (*RPCClient)(nil)

// GetAccountInfo returns the stored account, or nil if absent.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	data, ok := c.accounts[pubkey]
	if !ok {
		return nil, nil
	}
	return &solana.AccountInfo{
		Lamports: uint64(len(data)) * 6960,
		Owner:    Owner,
		Data:     append([]byte(nil), data...),
	}, nil
}

// AccountData returns the stored account data, or nil if absent.
func (c *RPCClient) AccountData(ctx context.Context, address string) ([]byte, error) {
	info, err := c.GetAccountInfo(ctx, address)
	if err != nil || info == nil {
		return nil, err
	}
	return info.Data, nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot, nil
}

// GetHealth returns the configured health error.
func (c *RPCClient) GetHealth(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// SetAccount stores account data under address.
func (c *RPCClient) SetAccount(address string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[address] = append([]byte(nil), data...)
}

// SetSlot sets the slot reported by GetSlot.
func (c *RPCClient) SetSlot(slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = slot
}

// SetHealth sets the error reported by GetHealth.
func (c *RPCClient) SetHealth(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.health = err
}

// Calls returns how many account reads were served.
func (c *RPCClient) Calls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls
}
