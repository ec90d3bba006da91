package anchor

import (
	"crypto/sha256"
	"fmt"

	"cate-trust-layer/internal/domain"
)

// Instruction names of the trust anchor program.
const (
	IxUpdateRiskStatus    = "update_risk_status"
	IxUpdateTrustedSigner = "update_trusted_signer"
)

// Discriminator returns sha256("<namespace>:<name>")[:8].
func Discriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// InstructionDiscriminator is the Anchor discriminator of a global instruction.
func InstructionDiscriminator(name string) [8]byte {
	return Discriminator("global", name)
}

// UpdateRiskStatusArgs are the Borsh arguments of update_risk_status.
type UpdateRiskStatusArgs struct {
	AssetID         string
	RiskScore       uint8
	IsBlocked       bool
	ConfidenceRatio uint64 // basis points
	PublisherCount  uint8
	Timestamp       int64
	DecisionHash    [32]byte
	Signature       [64]byte
	SignerPubkey    [32]byte
}

// ArgsFromSigned maps a signed decision onto the instruction arguments.
func ArgsFromSigned(sd domain.SignedDecision) UpdateRiskStatusArgs {
	p := sd.Payload
	return UpdateRiskStatusArgs{
		AssetID:         p.AssetID,
		RiskScore:       p.RiskScore,
		IsBlocked:       p.IsBlocked,
		ConfidenceRatio: p.ConfidenceRatioBps,
		PublisherCount:  p.PublisherCount,
		Timestamp:       p.Timestamp,
		DecisionHash:    sd.DecisionHash,
		Signature:       sd.Signature,
		SignerPubkey:    sd.SignerPublicKey,
	}
}

// Encode returns discriminator || Borsh(args).
func (a UpdateRiskStatusArgs) Encode() []byte {
	disc := InstructionDiscriminator(IxUpdateRiskStatus)
	w := borshWriter{buf: make([]byte, 0, 8+4+len(a.AssetID)+1+1+8+1+8+32+64+32)}
	w.bytes(disc[:])
	w.string(a.AssetID)
	w.u8(a.RiskScore)
	w.bool(a.IsBlocked)
	w.u64(a.ConfidenceRatio)
	w.u8(a.PublisherCount)
	w.i64(a.Timestamp)
	w.bytes(a.DecisionHash[:])
	w.bytes(a.Signature[:])
	w.bytes(a.SignerPubkey[:])
	return w.buf
}

// DecodeUpdateRiskStatus parses instruction data produced by Encode.
func DecodeUpdateRiskStatus(data []byte) (UpdateRiskStatusArgs, error) {
	var a UpdateRiskStatusArgs
	disc := InstructionDiscriminator(IxUpdateRiskStatus)
	if len(data) < 8 || [8]byte(data[:8]) != disc {
		return a, ErrUnknownInstruction
	}

	r := borshReader{buf: data[8:]}
	a.AssetID = r.string()
	a.RiskScore = r.u8()
	a.IsBlocked = r.bool()
	a.ConfidenceRatio = r.u64()
	a.PublisherCount = r.u8()
	a.Timestamp = r.i64()
	r.fixed(a.DecisionHash[:])
	r.fixed(a.Signature[:])
	r.fixed(a.SignerPubkey[:])
	if r.err != nil {
		return a, fmt.Errorf("decode %s: %w", IxUpdateRiskStatus, r.err)
	}
	return a, nil
}

// NewUpdateRiskStatusInstruction builds the publish instruction. Accounts
// follow the program's context order.
func NewUpdateRiskStatusInstruction(programID, authority PublicKey, args UpdateRiskStatusArgs) (Instruction, error) {
	config, _, err := ConfigAddress(programID)
	if err != nil {
		return Instruction{}, err
	}
	used, _, err := UsedDecisionsAddress(programID)
	if err != nil {
		return Instruction{}, err
	}
	asset, _, err := AssetRiskAddress(programID, args.AssetID)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{PublicKey: config},
			{PublicKey: used, IsWritable: true},
			{PublicKey: asset, IsWritable: true},
			{PublicKey: authority, IsSigner: true, IsWritable: true},
			{PublicKey: SysvarInstructionsID},
			{PublicKey: SystemProgramID},
		},
		Data: args.Encode(),
	}, nil
}

// BuildPublishTransaction returns the ordered instructions that publish sd:
// the ed25519 verification of the decision hash immediately followed by
// update_risk_status.
func BuildPublishTransaction(programID, authority PublicKey, sd domain.SignedDecision) ([]Instruction, error) {
	publish, err := NewUpdateRiskStatusInstruction(programID, authority, ArgsFromSigned(sd))
	if err != nil {
		return nil, fmt.Errorf("build publish instruction: %w", err)
	}
	verify := NewEd25519Instruction(sd.SignerPublicKey, sd.DecisionHash[:], sd.Signature)
	return []Instruction{verify, publish}, nil
}

// NewUpdateTrustedSignerInstruction builds the authority-only signer rotation.
func NewUpdateTrustedSignerInstruction(programID, authority, newSigner PublicKey) (Instruction, error) {
	config, _, err := ConfigAddress(programID)
	if err != nil {
		return Instruction{}, err
	}
	disc := InstructionDiscriminator(IxUpdateTrustedSigner)
	w := borshWriter{}
	w.bytes(disc[:])
	w.bytes(newSigner[:])

	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{PublicKey: config, IsWritable: true},
			{PublicKey: authority, IsSigner: true, IsWritable: true},
		},
		Data: w.buf,
	}, nil
}

// DecodeUpdateTrustedSigner returns the new signer from instruction data.
func DecodeUpdateTrustedSigner(data []byte) (PublicKey, error) {
	var pk PublicKey
	disc := InstructionDiscriminator(IxUpdateTrustedSigner)
	if len(data) < 8 || [8]byte(data[:8]) != disc {
		return pk, ErrUnknownInstruction
	}
	r := borshReader{buf: data[8:]}
	r.fixed(pk[:])
	if r.err != nil {
		return pk, fmt.Errorf("decode %s: %w", IxUpdateTrustedSigner, r.err)
	}
	return pk, nil
}
