package api

import (
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

var (
	_ easyjson.Unmarshaler = (*SignRequest)(nil)
	_ easyjson.Unmarshaler = (*EmergencyStopRequest)(nil)
	_ easyjson.Marshaler   = ErrorResponse{}
	_ easyjson.Marshaler   = VerifyResponse{}
	_ easyjson.Marshaler   = HealthResponse{}
	_ easyjson.Marshaler   = CircuitResponse{}
	_ easyjson.Marshaler   = DecisionView{}
	_ easyjson.Marshaler   = HistoryResponse{}
	_ easyjson.Marshaler   = AnchorResponse{}
)

// decodeObject walks a JSON object calling field for every non-null key.
func decodeObject(in *jlexer.Lexer, field func(key string)) {
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
		field(key)
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *SignRequest) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "assetId":
			v.AssetID = in.String()
		case "price":
			v.Price = in.Float64()
		case "timestamp":
			v.Timestamp = in.Int64()
		case "confidenceRatio":
			v.ConfidenceRatio = in.Int64()
		case "riskScore":
			v.RiskScore = in.Int64()
		case "isBlocked":
			v.IsBlocked = in.Bool()
		case "publisherCount":
			v.PublisherCount = in.Int64()
		case "nonce":
			v.Nonce = in.Int64()
		default:
			in.SkipRecursive()
		}
	})
}

// UnmarshalJSON supports json.Unmarshaler interface
func (v *SignRequest) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	v.UnmarshalEasyJSON(&r)
	return r.Error()
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *EmergencyStopRequest) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "reason":
			v.Reason = in.String()
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v ErrorResponse) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"error":`)
	out.String(v.Error)
	out.RawString(`,"message":`)
	out.String(v.Message)
	if len(v.Details) > 0 {
		out.RawString(`,"details":[`)
		for i, d := range v.Details {
			if i > 0 {
				out.RawByte(',')
			}
			out.RawString(`{"field":`)
			out.String(d.Field)
			out.RawString(`,"message":`)
			out.String(d.Message)
			out.RawByte('}')
		}
		out.RawByte(']')
	}
	out.RawByte('}')
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *ErrorResponse) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "error":
			v.Error = in.String()
		case "message":
			v.Message = in.String()
		case "details":
			in.Delim('[')
			for !in.IsDelim(']') {
				var d FieldError
				decodeObject(in, func(key string) {
					switch key {
					case "field":
						d.Field = in.String()
					case "message":
						d.Message = in.String()
					default:
						in.SkipRecursive()
					}
				})
				v.Details = append(v.Details, d)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v VerifyResponse) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"valid":`)
	out.Bool(v.Valid)
	if v.Error != "" {
		out.RawString(`,"error":`)
		out.String(v.Error)
	}
	out.RawString(`,"decisionHash":`)
	out.String(v.DecisionHash)
	out.RawString(`,"signer":`)
	out.String(v.Signer)
	out.RawByte('}')
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *VerifyResponse) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "valid":
			v.Valid = in.Bool()
		case "error":
			v.Error = in.String()
		case "decisionHash":
			v.DecisionHash = in.String()
		case "signer":
			v.Signer = in.String()
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v HealthResponse) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"status":`)
	out.String(v.Status)
	out.RawString(`,"signer":`)
	out.String(v.Signer)
	out.RawString(`,"circuit":`)
	out.String(v.Circuit)
	out.RawString(`,"historySize":`)
	out.Int(v.HistorySize)
	out.RawString(`,"version":`)
	out.String(v.Version)
	out.RawByte('}')
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *HealthResponse) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "status":
			v.Status = in.String()
		case "signer":
			v.Signer = in.String()
		case "circuit":
			v.Circuit = in.String()
		case "historySize":
			v.HistorySize = in.Int()
		case "version":
			v.Version = in.String()
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v CircuitResponse) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"state":`)
	out.String(v.State)
	out.RawString(`,"failureCount":`)
	out.Int(v.FailureCount)
	out.RawString(`,"successCount":`)
	out.Int(v.SuccessCount)
	out.RawString(`,"lastStateChange":`)
	out.Int64(v.LastStateChange)
	out.RawString(`,"reason":`)
	out.String(v.Reason)
	out.RawString(`,"assets":[`)
	for i, a := range v.Assets {
		if i > 0 {
			out.RawByte(',')
		}
		out.RawString(`{"assetId":`)
		out.String(a.AssetID)
		out.RawString(`,"blocked":`)
		out.Bool(a.Blocked)
		out.RawString(`,"consecutiveFailures":`)
		out.Int(a.ConsecutiveFailures)
		out.RawString(`,"healthScore":`)
		out.Float64(a.HealthScore)
		out.RawString(`,"lastValidData":`)
		out.Int64(a.LastValidData)
		out.RawString(`,"lastFailureReason":`)
		out.String(a.LastFailureReason)
		out.RawByte('}')
	}
	out.RawString(`]}`)
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *CircuitResponse) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "state":
			v.State = in.String()
		case "failureCount":
			v.FailureCount = in.Int()
		case "successCount":
			v.SuccessCount = in.Int()
		case "lastStateChange":
			v.LastStateChange = in.Int64()
		case "reason":
			v.Reason = in.String()
		case "assets":
			in.Delim('[')
			for !in.IsDelim(']') {
				var a AssetCircuit
				decodeObject(in, func(key string) {
					switch key {
					case "assetId":
						a.AssetID = in.String()
					case "blocked":
						a.Blocked = in.Bool()
					case "consecutiveFailures":
						a.ConsecutiveFailures = in.Int()
					case "healthScore":
						a.HealthScore = in.Float64()
					case "lastValidData":
						a.LastValidData = in.Int64()
					case "lastFailureReason":
						a.LastFailureReason = in.String()
					default:
						in.SkipRecursive()
					}
				})
				v.Assets = append(v.Assets, a)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v DecisionView) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"decision":`)
	v.Decision.MarshalEasyJSON(out)
	out.RawString(`,"source":`)
	out.String(v.Source)
	out.RawString(`,"riskScore":`)
	out.Float64(v.RiskScore)
	out.RawString(`,"sizeMultiplier":`)
	out.Float64(v.SizeMultiplier)
	out.RawString(`,"explanation":`)
	out.String(v.Explanation)
	out.RawString(`,"factors":[`)
	for i, f := range v.Factors {
		if i > 0 {
			out.RawByte(',')
		}
		out.RawString(`{"name":`)
		out.String(f.Name)
		out.RawString(`,"value":`)
		out.Float64(f.Value)
		out.RawString(`,"threshold":`)
		out.Float64(f.Threshold)
		out.RawString(`,"impact":`)
		out.Float64(f.Impact)
		out.RawString(`,"triggered":`)
		out.Bool(f.Triggered)
		out.RawString(`,"severity":`)
		out.String(f.Severity)
		out.RawByte('}')
	}
	out.RawString(`]}`)
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *DecisionView) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "decision":
			v.Decision.UnmarshalEasyJSON(in)
		case "source":
			v.Source = in.String()
		case "riskScore":
			v.RiskScore = in.Float64()
		case "sizeMultiplier":
			v.SizeMultiplier = in.Float64()
		case "explanation":
			v.Explanation = in.String()
		case "factors":
			in.Delim('[')
			for !in.IsDelim(']') {
				var f FactorView
				decodeObject(in, func(key string) {
					switch key {
					case "name":
						f.Name = in.String()
					case "value":
						f.Value = in.Float64()
					case "threshold":
						f.Threshold = in.Float64()
					case "impact":
						f.Impact = in.Float64()
					case "triggered":
						f.Triggered = in.Bool()
					case "severity":
						f.Severity = in.String()
					default:
						in.SkipRecursive()
					}
				})
				v.Factors = append(v.Factors, f)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v HistoryResponse) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"count":`)
	out.Int(v.Count)
	out.RawString(`,"decisions":[`)
	for i, d := range v.Decisions {
		if i > 0 {
			out.RawByte(',')
		}
		d.MarshalEasyJSON(out)
	}
	out.RawString(`]}`)
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *HistoryResponse) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "count":
			v.Count = in.Int()
		case "decisions":
			in.Delim('[')
			for !in.IsDelim(']') {
				var d DecisionView
				d.UnmarshalEasyJSON(in)
				v.Decisions = append(v.Decisions, d)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
	})
}

// MarshalEasyJSON supports easyjson.Marshaler interface
func (v AnchorResponse) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawString(`{"assetId":`)
	out.String(v.AssetID)
	out.RawString(`,"address":`)
	out.String(v.Address)
	out.RawString(`,"bump":`)
	out.Uint8(v.Bump)
	out.RawString(`,"riskScore":`)
	out.Uint8(v.RiskScore)
	out.RawString(`,"isBlocked":`)
	out.Bool(v.IsBlocked)
	out.RawString(`,"confidenceRatio":`)
	out.Uint64(v.ConfidenceRatio)
	out.RawString(`,"publisherCount":`)
	out.Uint8(v.PublisherCount)
	out.RawString(`,"timestamp":`)
	out.Int64(v.Timestamp)
	out.RawString(`,"lastUpdated":`)
	out.Int64(v.LastUpdated)
	out.RawString(`,"decisionHash":`)
	out.String(v.DecisionHash)
	out.RawString(`,"signer":`)
	out.String(v.Signer)
	out.RawByte('}')
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *AnchorResponse) UnmarshalEasyJSON(in *jlexer.Lexer) {
	decodeObject(in, func(key string) {
		switch key {
		case "assetId":
			v.AssetID = in.String()
		case "address":
			v.Address = in.String()
		case "bump":
			v.Bump = in.Uint8()
		case "riskScore":
			v.RiskScore = in.Uint8()
		case "isBlocked":
			v.IsBlocked = in.Bool()
		case "confidenceRatio":
			v.ConfidenceRatio = in.Uint64()
		case "publisherCount":
			v.PublisherCount = in.Uint8()
		case "timestamp":
			v.Timestamp = in.Int64()
		case "lastUpdated":
			v.LastUpdated = in.Int64()
		case "decisionHash":
			v.DecisionHash = in.String()
		case "signer":
			v.Signer = in.String()
		default:
			in.SkipRecursive()
		}
	})
}
