// Package idhash computes the canonical byte layout and hash of decisions.
package idhash

import (
	"crypto/sha512"
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"cate-trust-layer/internal/domain"
)

// LayoutVersion is the first byte of every encoded payload.
const LayoutVersion = 0x01

// LayoutSize is the encoded payload length in bytes.
//
//	off len field
//	0   1   layout version
//	1   16  asset_id, UTF-8, zero padded or truncated
//	17  8   price float64
//	25  8   confidence float64
//	33  8   confidence_ratio_bps u64
//	41  1   risk_score u8
//	42  1   action u8 (0 ALLOW, 1 SCALE, 2 BLOCK)
//	43  1   is_blocked u8
//	44  2   size_multiplier_bps u16
//	46  1   publisher_count u8
//	47  8   timestamp i64
//	55  8   nonce u64
//
// All integers and floats are little-endian.
const LayoutSize = 63

// EncodeDecision serializes p into the canonical layout.
func EncodeDecision(p domain.DecisionPayload) []byte {
	buf := make([]byte, LayoutSize)
	buf[0] = LayoutVersion
	copy(buf[1:1+domain.MaxAssetIDLength], p.AssetID)
	binary.LittleEndian.PutUint64(buf[17:25], math.Float64bits(p.Price))
	binary.LittleEndian.PutUint64(buf[25:33], math.Float64bits(p.Confidence))
	binary.LittleEndian.PutUint64(buf[33:41], p.ConfidenceRatioBps)
	buf[41] = p.RiskScore
	buf[42] = p.Action.Code()
	if p.IsBlocked {
		buf[43] = 1
	}
	binary.LittleEndian.PutUint16(buf[44:46], p.SizeMultiplierBps)
	buf[46] = p.PublisherCount
	binary.LittleEndian.PutUint64(buf[47:55], uint64(p.Timestamp))
	binary.LittleEndian.PutUint64(buf[55:63], p.Nonce)
	return buf
}

// ComputeDecisionHash computes the decision hash.
// Formula: SHA512(EncodeDecision(p))[0:32]
func ComputeDecisionHash(p domain.DecisionPayload) [32]byte {
	sum := sha512.Sum512(EncodeDecision(p))
	var out [32]byte
	copy(out[:], sum[:32])
	return out
}

// DecisionID returns the 0x-prefixed hex decision hash (66 characters).
// Used as the replay key of signed decisions.
func DecisionID(hash [32]byte) string {
	return hexutil.Encode(hash[:])
}

// ParseDecisionID decodes a 0x-prefixed hex decision id back into a hash.
func ParseDecisionID(id string) ([32]byte, bool) {
	var out [32]byte
	b, err := hexutil.Decode(id)
	if err != nil || len(b) != len(out) {
		return out, false
	}
	copy(out[:], b)
	return out, true
}
