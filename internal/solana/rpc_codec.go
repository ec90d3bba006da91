package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

func encodeRequest(id uint64, method string, params func(*jwriter.Writer)) ([]byte, error) {
	w := jwriter.Writer{}
	w.RawString(`{"jsonrpc":"2.0","id":`)
	w.Uint64(id)
	w.RawString(`,"method":`)
	w.String(method)
	if params != nil {
		w.RawString(`,"params":[`)
		params(&w)
		w.RawByte(']')
	}
	w.RawByte('}')
	return w.BuildBytes()
}

type rpcResponse struct {
	id     uint64
	result []byte
	err    *RPCError
}

func decodeResponse(data []byte) (rpcResponse, error) {
	var resp rpcResponse
	in := jlexer.Lexer{Data: data}
	decodeObject(&in, func(key string) {
		switch key {
		case "id":
			resp.id = in.Uint64()
		case "result":
			resp.result = in.Raw()
		case "error":
			resp.err = &RPCError{}
			decodeObject(&in, func(key string) {
				switch key {
				case "code":
					resp.err.Code = in.Int()
				case "message":
					resp.err.Message = in.String()
				default:
					in.SkipRecursive()
				}
			})
		default:
			in.SkipRecursive()
		}
	})
	return resp, in.Error()
}

// decodeAccountInfoResult reads {"context":{..},"value":null|{..}}. Data
// arrives as ["<base64>", "base64"].
func decodeAccountInfoResult(in *jlexer.Lexer) (*AccountInfo, error) {
	var (
		info    *AccountInfo
		encoded string
		enc     string
	)
	decodeObject(in, func(key string) {
		if key != "value" {
			in.SkipRecursive()
			return
		}
		info = &AccountInfo{}
		decodeObject(in, func(key string) {
			switch key {
			case "lamports":
				info.Lamports = in.Uint64()
			case "owner":
				info.Owner = in.String()
			case "executable":
				info.Executable = in.Bool()
			case "rentEpoch":
				info.RentEpoch = in.Uint64()
			case "data":
				in.Delim('[')
				for i := 0; !in.IsDelim(']'); i++ {
					switch i {
					case 0:
						encoded = in.String()
					case 1:
						enc = in.String()
					default:
						in.SkipRecursive()
					}
					in.WantComma()
				}
				in.Delim(']')
			default:
				in.SkipRecursive()
			}
		})
	})
	if info == nil || in.Error() != nil {
		return nil, nil
	}
	if enc != "" && enc != "base64" {
		return nil, fmt.Errorf("unsupported account data encoding %q", enc)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	info.Data = data
	return info, nil
}

// decodeObject walks a JSON object, calling field for every non-null member.
// A null object is skipped.
func decodeObject(in *jlexer.Lexer, field func(key string)) {
	if in.IsNull() {
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
}
