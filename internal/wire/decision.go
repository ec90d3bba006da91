// Package wire holds the JSON representation of signed decisions shared by
// the HTTP API and the decision fan-out.
//
// Hash, signature and signer key are carried both as raw byte arrays (JSON
// number arrays) and as 0x-prefixed hex. The signer is also carried as a
// base58 identity. Decoding prefers the byte arrays and falls back to hex.
package wire

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"

	"cate-trust-layer/internal/domain"
)

// ErrMalformed is returned when a wire decision cannot be converted.
var ErrMalformed = errors.New("malformed decision")

// SignedDecision is the wire form of domain.SignedDecision.
type SignedDecision struct {
	AssetID            string
	Price              float64
	Confidence         float64
	ConfidenceRatioBps uint64
	RiskScore          uint8
	Action             string
	IsBlocked          bool
	SizeMultiplierBps  uint16
	PublisherCount     uint8
	Timestamp          int64
	Nonce              uint64

	DecisionHash    []byte
	Signature       []byte
	SignerPublicKey []byte

	DecisionHashHex string
	SignatureHex    string
	Signer          string // base58
}

// FromDomain converts a signed decision to its wire form.
func FromDomain(sd domain.SignedDecision) SignedDecision {
	p := sd.Payload
	return SignedDecision{
		AssetID:            p.AssetID,
		Price:              p.Price,
		Confidence:         p.Confidence,
		ConfidenceRatioBps: p.ConfidenceRatioBps,
		RiskScore:          p.RiskScore,
		Action:             p.Action.String(),
		IsBlocked:          p.IsBlocked,
		SizeMultiplierBps:  p.SizeMultiplierBps,
		PublisherCount:     p.PublisherCount,
		Timestamp:          p.Timestamp,
		Nonce:              p.Nonce,
		DecisionHash:       append([]byte(nil), sd.DecisionHash[:]...),
		Signature:          append([]byte(nil), sd.Signature[:]...),
		SignerPublicKey:    append([]byte(nil), sd.SignerPublicKey[:]...),
		DecisionHashHex:    hexutil.Encode(sd.DecisionHash[:]),
		SignatureHex:       hexutil.Encode(sd.Signature[:]),
		Signer:             base58.Encode(sd.SignerPublicKey[:]),
	}
}

// ToDomain converts the wire form back to a signed decision.
func (w SignedDecision) ToDomain() (domain.SignedDecision, error) {
	action := domain.RiskAction(w.Action)
	if !action.IsValid() {
		return domain.SignedDecision{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, w.Action)
	}

	sd := domain.SignedDecision{
		Payload: domain.DecisionPayload{
			AssetID:            w.AssetID,
			Price:              w.Price,
			Confidence:         w.Confidence,
			ConfidenceRatioBps: w.ConfidenceRatioBps,
			RiskScore:          w.RiskScore,
			Action:             action,
			IsBlocked:          w.IsBlocked,
			SizeMultiplierBps:  w.SizeMultiplierBps,
			PublisherCount:     w.PublisherCount,
			Timestamp:          w.Timestamp,
			Nonce:              w.Nonce,
		},
	}

	if err := fill(sd.DecisionHash[:], "decisionHash", w.DecisionHash, w.DecisionHashHex, hexutil.Decode); err != nil {
		return domain.SignedDecision{}, err
	}
	if err := fill(sd.Signature[:], "signature", w.Signature, w.SignatureHex, hexutil.Decode); err != nil {
		return domain.SignedDecision{}, err
	}
	if err := fill(sd.SignerPublicKey[:], "signerPublicKey", w.SignerPublicKey, w.Signer, base58.Decode); err != nil {
		return domain.SignedDecision{}, err
	}

	return sd, nil
}

// fill copies raw into dst, or decodes text when raw is empty.
func fill(dst []byte, field string, raw []byte, text string, decode func(string) ([]byte, error)) error {
	if len(raw) == 0 && text != "" {
		b, err := decode(text)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
		}
		raw = b
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrMalformed, field, len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
