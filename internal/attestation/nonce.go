package attestation

import (
	"sync/atomic"
	"time"
)

// NonceSource hands out strictly increasing nonces, seeded from the wall
// clock so a restarted signer does not reuse earlier values.
type NonceSource struct {
	last atomic.Uint64
}

// NewNonceSource creates a nonce source seeded with the current time.
func NewNonceSource() *NonceSource {
	return NewNonceSourceFrom(uint64(time.Now().UnixNano()))
}

// NewNonceSourceFrom creates a nonce source whose first nonce is seed+1.
func NewNonceSourceFrom(seed uint64) *NonceSource {
	n := &NonceSource{}
	n.last.Store(seed)
	return n
}

// Next returns the next nonce.
func (n *NonceSource) Next() uint64 {
	return n.last.Add(1)
}
