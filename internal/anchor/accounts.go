package anchor

import (
	"bytes"
	"fmt"
)

// Account names, used for the 8-byte account discriminator.
const (
	AccountConfig          = "Config"
	AccountAssetRiskStatus = "AssetRiskStatus"
	AccountUsedDecisions   = "UsedDecisions"
)

// AccountDiscriminator returns sha256("account:<name>")[:8].
func AccountDiscriminator(name string) [8]byte {
	return Discriminator("account", name)
}

// Config is the global program configuration.
type Config struct {
	Bump          uint8
	Authority     PublicKey
	IsInitialized bool
	TrustedSigner PublicKey
	Nonce         uint64
}

// Encode returns the account data.
func (c Config) Encode() []byte {
	disc := AccountDiscriminator(AccountConfig)
	w := borshWriter{}
	w.bytes(disc[:])
	w.u8(c.Bump)
	w.bytes(c.Authority[:])
	w.bool(c.IsInitialized)
	w.bytes(c.TrustedSigner[:])
	w.u64(c.Nonce)
	return w.buf
}

// DecodeConfig parses Config account data.
func DecodeConfig(data []byte) (Config, error) {
	var c Config
	r, err := accountReader(data, AccountConfig)
	if err != nil {
		return c, err
	}
	c.Bump = r.u8()
	r.fixed(c.Authority[:])
	c.IsInitialized = r.bool()
	r.fixed(c.TrustedSigner[:])
	c.Nonce = r.u64()
	if r.err != nil {
		return c, fmt.Errorf("%w: %s: %v", ErrInvalidAccountData, AccountConfig, r.err)
	}
	return c, nil
}

// AssetRiskStatus is the last accepted decision of one asset.
type AssetRiskStatus struct {
	Bump            uint8
	AssetID         [16]byte
	RiskScore       uint8
	IsBlocked       bool
	LastUpdated     int64 // cluster time of the update
	Timestamp       int64 // decision timestamp
	ConfidenceRatio uint64
	PublisherCount  uint8
	DecisionHash    [32]byte
	Signature       [64]byte
	SignerPubkey    [32]byte
}

// Asset returns the asset id without zero padding.
func (s AssetRiskStatus) Asset() string {
	return string(bytes.TrimRight(s.AssetID[:], "\x00"))
}

// Encode returns the account data.
func (s AssetRiskStatus) Encode() []byte {
	disc := AccountDiscriminator(AccountAssetRiskStatus)
	w := borshWriter{}
	w.bytes(disc[:])
	w.u8(s.Bump)
	w.bytes(s.AssetID[:])
	w.u8(s.RiskScore)
	w.bool(s.IsBlocked)
	w.i64(s.LastUpdated)
	w.i64(s.Timestamp)
	w.u64(s.ConfidenceRatio)
	w.u8(s.PublisherCount)
	w.bytes(s.DecisionHash[:])
	w.bytes(s.Signature[:])
	w.bytes(s.SignerPubkey[:])
	return w.buf
}

// DecodeAssetRiskStatus parses AssetRiskStatus account data.
func DecodeAssetRiskStatus(data []byte) (AssetRiskStatus, error) {
	var s AssetRiskStatus
	r, err := accountReader(data, AccountAssetRiskStatus)
	if err != nil {
		return s, err
	}
	s.Bump = r.u8()
	r.fixed(s.AssetID[:])
	s.RiskScore = r.u8()
	s.IsBlocked = r.bool()
	s.LastUpdated = r.i64()
	s.Timestamp = r.i64()
	s.ConfidenceRatio = r.u64()
	s.PublisherCount = r.u8()
	r.fixed(s.DecisionHash[:])
	r.fixed(s.Signature[:])
	r.fixed(s.SignerPubkey[:])
	if r.err != nil {
		return s, fmt.Errorf("%w: %s: %v", ErrInvalidAccountData, AccountAssetRiskStatus, r.err)
	}
	return s, nil
}

// DecisionRecord is one entry of the replay set.
type DecisionRecord struct {
	Hash      [32]byte
	Timestamp int64
}

// Replay set limits.
const (
	DefaultUsedDecisionsCapacity  = 1000
	UsedDecisionsRetentionSeconds = 3600
)

// UsedDecisions is the program's replay set.
type UsedDecisions struct {
	Bump      uint8
	Decisions []DecisionRecord
	MaxSize   uint16
}

// IsUsed reports whether hash is in the set.
func (u *UsedDecisions) IsUsed(hash [32]byte) bool {
	for _, d := range u.Decisions {
		if d.Hash == hash {
			return true
		}
	}
	return false
}

// MarkUsed drops records older than the retention relative to timestamp and
// appends hash, failing when the set is still full.
func (u *UsedDecisions) MarkUsed(hash [32]byte, timestamp int64) error {
	kept := u.Decisions[:0]
	for _, d := range u.Decisions {
		if timestamp-d.Timestamp < UsedDecisionsRetentionSeconds {
			kept = append(kept, d)
		}
	}
	u.Decisions = kept

	if len(u.Decisions) >= int(u.MaxSize) {
		return ErrDecisionHistoryFull
	}
	u.Decisions = append(u.Decisions, DecisionRecord{Hash: hash, Timestamp: timestamp})
	return nil
}

// Encode returns the account data.
func (u UsedDecisions) Encode() []byte {
	disc := AccountDiscriminator(AccountUsedDecisions)
	w := borshWriter{}
	w.bytes(disc[:])
	w.u8(u.Bump)
	w.u32(uint32(len(u.Decisions)))
	for _, d := range u.Decisions {
		w.bytes(d.Hash[:])
		w.i64(d.Timestamp)
	}
	w.u16(u.MaxSize)
	return w.buf
}

// DecodeUsedDecisions parses UsedDecisions account data.
func DecodeUsedDecisions(data []byte) (UsedDecisions, error) {
	var u UsedDecisions
	r, err := accountReader(data, AccountUsedDecisions)
	if err != nil {
		return u, err
	}
	u.Bump = r.u8()
	n := r.u32()
	if r.err == nil && int(n) > len(r.buf)/40 {
		return u, fmt.Errorf("%w: %s: %d records", ErrInvalidAccountData, AccountUsedDecisions, n)
	}
	u.Decisions = make([]DecisionRecord, n)
	for i := range u.Decisions {
		r.fixed(u.Decisions[i].Hash[:])
		u.Decisions[i].Timestamp = r.i64()
	}
	u.MaxSize = r.u16()
	if r.err != nil {
		return u, fmt.Errorf("%w: %s: %v", ErrInvalidAccountData, AccountUsedDecisions, r.err)
	}
	return u, nil
}

func accountReader(data []byte, name string) (*borshReader, error) {
	disc := AccountDiscriminator(name)
	if len(data) < 8 || [8]byte(data[:8]) != disc {
		return nil, fmt.Errorf("%w: not a %s account", ErrInvalidAccountData, name)
	}
	return &borshReader{buf: data[8:]}, nil
}
