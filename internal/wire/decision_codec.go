package wire

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

var (
	_ easyjson.Marshaler   = SignedDecision{}
	_ easyjson.Unmarshaler = (*SignedDecision)(nil)
)

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v SignedDecision) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"assetId":`)
	out.String(v.AssetID)
	out.RawString(`,"price":`)
	out.Float64(v.Price)
	out.RawString(`,"confidence":`)
	out.Float64(v.Confidence)
	out.RawString(`,"confidenceRatio":`)
	out.Uint64(v.ConfidenceRatioBps)
	out.RawString(`,"riskScore":`)
	out.Uint8(v.RiskScore)
	out.RawString(`,"action":`)
	out.String(v.Action)
	out.RawString(`,"isBlocked":`)
	out.Bool(v.IsBlocked)
	out.RawString(`,"sizeMultiplierBps":`)
	out.Uint16(v.SizeMultiplierBps)
	out.RawString(`,"publisherCount":`)
	out.Uint8(v.PublisherCount)
	out.RawString(`,"timestamp":`)
	out.Int64(v.Timestamp)
	out.RawString(`,"nonce":`)
	out.Uint64(v.Nonce)
	out.RawString(`,"decisionHash":`)
	WriteByteArray(out, v.DecisionHash)
	out.RawString(`,"signature":`)
	WriteByteArray(out, v.Signature)
	out.RawString(`,"signerPublicKey":`)
	WriteByteArray(out, v.SignerPublicKey)
	out.RawString(`,"decisionHashHex":`)
	out.String(v.DecisionHashHex)
	out.RawString(`,"signatureHex":`)
	out.String(v.SignatureHex)
	out.RawString(`,"signer":`)
	out.String(v.Signer)
	out.RawByte('}')
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *SignedDecision) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "assetId":
			v.AssetID = in.String()
		case "price":
			v.Price = in.Float64()
		case "confidence":
			v.Confidence = in.Float64()
		case "confidenceRatio":
			v.ConfidenceRatioBps = in.Uint64()
		case "riskScore":
			v.RiskScore = in.Uint8()
		case "action":
			v.Action = in.String()
		case "isBlocked":
			v.IsBlocked = in.Bool()
		case "sizeMultiplierBps":
			v.SizeMultiplierBps = in.Uint16()
		case "publisherCount":
			v.PublisherCount = in.Uint8()
		case "timestamp":
			v.Timestamp = in.Int64()
		case "nonce":
			v.Nonce = in.Uint64()
		case "decisionHash":
			v.DecisionHash = ReadByteArray(in)
		case "signature":
			v.Signature = ReadByteArray(in)
		case "signerPublicKey":
			v.SignerPublicKey = ReadByteArray(in)
		case "decisionHashHex":
			v.DecisionHashHex = in.String()
		case "signatureHex":
			v.SignatureHex = in.String()
		case "signer":
			v.Signer = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// MarshalJSON supports json.Marshaler interface
func (v SignedDecision) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// UnmarshalJSON supports json.Unmarshaler interface
func (v *SignedDecision) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	v.UnmarshalEasyJSON(&r)
	return r.Error()
}

// WriteByteArray writes b as a JSON array of numbers.
func WriteByteArray(out *jwriter.Writer, b []byte) {
	out.RawByte('[')
	for i, x := range b {
		if i > 0 {
			out.RawByte(',')
		}
		out.Uint8(x)
	}
	out.RawByte(']')
}

// ReadByteArray reads a JSON array of numbers in [0, 255].
func ReadByteArray(in *jlexer.Lexer) []byte {
	out := []byte{}
	in.Delim('[')
	for !in.IsDelim(']') {
		out = append(out, in.Uint8())
		in.WantComma()
	}
	in.Delim(']')
	return out
}
