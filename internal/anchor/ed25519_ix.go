package anchor

import (
	"encoding/binary"
	"fmt"
)

// Ed25519 native program instruction layout.
const (
	ed25519HeaderLen     = 2
	ed25519OffsetsLen    = 14
	ed25519PubkeyOffset  = ed25519HeaderLen + ed25519OffsetsLen // 16
	ed25519SigOffset     = ed25519PubkeyOffset + 32             // 48
	ed25519MessageOffset = ed25519SigOffset + 64                // 112

	// CurrentInstruction marks data held by the ed25519 instruction itself.
	CurrentInstruction uint16 = 0xFFFF
)

// AccountMeta is one account reference of an instruction.
type AccountMeta struct {
	PublicKey  PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Ed25519SignatureOffsets locates one signature check inside the ed25519
// instruction data.
type Ed25519SignatureOffsets struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint16
	PublicKeyOffset           uint16
	PublicKeyInstructionIndex uint16
	MessageDataOffset         uint16
	MessageDataSize           uint16
	MessageInstructionIndex   uint16
}

// Ed25519Entry is a decoded signature check.
type Ed25519Entry struct {
	Offsets   Ed25519SignatureOffsets
	PublicKey []byte
	Signature []byte
	Message   []byte
}

// NewEd25519Instruction builds a single-signature ed25519 verify instruction
// whose data holds the public key, signature and message inline.
func NewEd25519Instruction(pubkey [32]byte, message []byte, signature [64]byte) Instruction {
	data := make([]byte, ed25519MessageOffset+len(message))
	data[0] = 1 // signature count
	data[1] = 0 // padding

	o := data[ed25519HeaderLen:]
	binary.LittleEndian.PutUint16(o[0:], ed25519SigOffset)
	binary.LittleEndian.PutUint16(o[2:], CurrentInstruction)
	binary.LittleEndian.PutUint16(o[4:], ed25519PubkeyOffset)
	binary.LittleEndian.PutUint16(o[6:], CurrentInstruction)
	binary.LittleEndian.PutUint16(o[8:], ed25519MessageOffset)
	binary.LittleEndian.PutUint16(o[10:], uint16(len(message)))
	binary.LittleEndian.PutUint16(o[12:], CurrentInstruction)

	copy(data[ed25519PubkeyOffset:], pubkey[:])
	copy(data[ed25519SigOffset:], signature[:])
	copy(data[ed25519MessageOffset:], message)

	return Instruction{ProgramID: Ed25519ProgramID, Data: data}
}

// ParseEd25519Instruction decodes every signature check in data, enforcing
// the header and bounds rules of the program.
func ParseEd25519Instruction(data []byte) ([]Ed25519Entry, error) {
	if len(data) < ed25519HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEd25519Data, len(data))
	}
	count := int(data[0])
	if count < 1 {
		return nil, fmt.Errorf("%w: no signatures", ErrInvalidEd25519Data)
	}
	if data[1] != 0 {
		return nil, fmt.Errorf("%w: non-zero padding", ErrInvalidEd25519Data)
	}
	if len(data) < ed25519HeaderLen+ed25519OffsetsLen*count {
		return nil, fmt.Errorf("%w: truncated offsets", ErrInvalidEd25519Data)
	}

	entries := make([]Ed25519Entry, 0, count)
	for i := 0; i < count; i++ {
		start := ed25519HeaderLen + ed25519OffsetsLen*i
		o := data[start : start+ed25519OffsetsLen]
		off := Ed25519SignatureOffsets{
			SignatureOffset:           binary.LittleEndian.Uint16(o[0:]),
			SignatureInstructionIndex: binary.LittleEndian.Uint16(o[2:]),
			PublicKeyOffset:           binary.LittleEndian.Uint16(o[4:]),
			PublicKeyInstructionIndex: binary.LittleEndian.Uint16(o[6:]),
			MessageDataOffset:         binary.LittleEndian.Uint16(o[8:]),
			MessageDataSize:           binary.LittleEndian.Uint16(o[10:]),
			MessageInstructionIndex:   binary.LittleEndian.Uint16(o[12:]),
		}

		sigEnd := int(off.SignatureOffset) + 64
		if sigEnd > len(data) {
			return nil, ErrSignatureOffsetOverflow
		}
		pkEnd := int(off.PublicKeyOffset) + 32
		if pkEnd > len(data) {
			return nil, ErrPubkeyOffsetOverflow
		}
		if off.MessageDataSize != 32 {
			return nil, ErrInvalidMessageSize
		}
		msgEnd := int(off.MessageDataOffset) + int(off.MessageDataSize)
		if msgEnd > len(data) {
			return nil, ErrMessageOffsetOverflow
		}

		entries = append(entries, Ed25519Entry{
			Offsets:   off,
			PublicKey: data[off.PublicKeyOffset:pkEnd],
			Signature: data[off.SignatureOffset:sigEnd],
			Message:   data[off.MessageDataOffset:msgEnd],
		})
	}
	return entries, nil
}
