package ingest

import (
	"encoding/json"

	"tracker/internal/feed"
	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Kind classifies a normalization outcome.
type Kind uint8

const (
	KindCanonical Kind = iota
	KindShapeMismatch
	KindDecodeError
	KindUnsupportedType
)

func (k Kind) String() string {
	switch k {
	case KindCanonical:
		return "canonical"
	case KindShapeMismatch:
		return "shape_mismatch"
	case KindDecodeError:
		return "decode_error"
	case KindUnsupportedType:
		return "unsupported_type"
	default:
		return "unknown"
	}
}

// Result is the outcome of Normalize. Record is set only for KindCanonical;
// Raw keeps the offending payload as text for every failure.
type Result struct {
	Kind   Kind
	Record feed.Record
	Raw    string
	Err    error
}

// OK reports whether the payload was normalized into a record.
func (r Result) OK() bool {
	return r.Kind == KindCanonical && r.Record != nil
}

// Normalize converts a TXS_DATA payload into a record. The feed sends either
// an object or an object serialized as a JSON string; both are accepted.
func Normalize(raw any) Result {
	switch v := raw.(type) {
	case map[string]any:
		if v == nil {
			return unsupported(raw)
		}
		return Result{Kind: KindCanonical, Record: feed.Record(v)}
	case feed.Record:
		if v == nil {
			return unsupported(raw)
		}
		return Result{Kind: KindCanonical, Record: v}
	case string:
		return decodeText(v)
	case json.RawMessage:
		return decodeText(string(v))
	case []byte:
		return decodeText(string(v))
	default:
		return unsupported(raw)
	}
}

func decodeText(text string) Result {
	var decoded any
	if err := feed.Codec.UnmarshalFromString(text, &decoded); err != nil {
		return Result{
			Kind: KindDecodeError,
			Raw:  text,
			Err:  errors.Wrap(exception.ErrNormalizeDecode, err.Error()),
		}
	}
	m, ok := decoded.(map[string]any)
	if !ok || m == nil {
		return Result{
			Kind: KindShapeMismatch,
			Raw:  text,
			Err:  errors.Wrapf(exception.ErrNormalizeShapeMismatch, "got %T", decoded),
		}
	}
	return Result{Kind: KindCanonical, Record: feed.Record(m)}
}

func unsupported(raw any) Result {
	return Result{
		Kind: KindUnsupportedType,
		Raw:  logs.Json(raw),
		Err:  errors.Wrapf(exception.ErrNormalizeUnsupportedType, "got %T", raw),
	}
}
