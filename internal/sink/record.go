package sink

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"

	"tracker/internal/feed"
	"tracker/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const (
	// Namespace is the fixed first segment of every object key.
	Namespace = "transactions"
	// KeyTimeLayout renders the block time inside the key.
	KeyTimeLayout = "2006-01-02_15-04-05"

	fieldTokenAddress  = "tokenAddress"
	fieldTo            = "to"
	fieldAddress       = "address"
	fieldBlockUnixTime = "blockUnixTime"
)

var (
	minUnix = decimal.NewFromInt(time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
	maxUnix = decimal.NewFromInt(time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).Unix())
)

var codec = sonic.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Entity resolves the entity of a record: tokenAddress first, then to.address.
func Entity(rec feed.Record) (string, error) {
	if v, ok := rec.String(fieldTokenAddress); ok {
		return v, nil
	}
	if to, ok := rec.Object(fieldTo); ok {
		if v, ok := to.String(fieldAddress); ok {
			return v, nil
		}
	}
	return "", exception.ErrSinkUnresolvedEntity
}

// Timestamp reads blockUnixTime as epoch seconds, floors it to the second and
// returns it in UTC. Strings and booleans are rejected.
func Timestamp(rec feed.Record) (time.Time, error) {
	raw, ok := rec[fieldBlockUnixTime]
	if !ok || raw == nil {
		return time.Time{}, errors.Wrap(exception.ErrSinkInvalidTimestamp, "missing blockUnixTime")
	}

	var (
		secs decimal.Decimal
		err  error
	)
	switch v := raw.(type) {
	case json.Number:
		secs, err = decimal.NewFromString(string(v))
	case float64:
		secs, err = fromFloat(v)
	case float32:
		secs, err = fromFloat(float64(v))
	case int:
		secs = decimal.NewFromInt(int64(v))
	case int8:
		secs = decimal.NewFromInt(int64(v))
	case int16:
		secs = decimal.NewFromInt(int64(v))
	case int32:
		secs = decimal.NewFromInt(int64(v))
	case int64:
		secs = decimal.NewFromInt(v)
	case uint:
		secs = decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0)
	case uint8:
		secs = decimal.NewFromInt(int64(v))
	case uint16:
		secs = decimal.NewFromInt(int64(v))
	case uint32:
		secs = decimal.NewFromInt(int64(v))
	case uint64:
		secs = decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
	default:
		return time.Time{}, errors.Wrapf(exception.ErrSinkInvalidTimestamp, "blockUnixTime type %T", raw)
	}
	if err != nil {
		return time.Time{}, errors.Wrapf(exception.ErrSinkInvalidTimestamp, "blockUnixTime %v: %s", raw, err.Error())
	}

	secs = secs.Floor()
	if secs.LessThan(minUnix) || secs.GreaterThan(maxUnix) {
		return time.Time{}, errors.Wrapf(exception.ErrSinkInvalidTimestamp, "blockUnixTime %v out of range", raw)
	}
	return time.Unix(secs.IntPart(), 0).UTC(), nil
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, errors.Errorf("not finite: %v", f)
	}
	return decimal.NewFromFloat(f), nil
}

// Key renders transactions/{entity}/{YYYY-MM-DD_HH-MM-SS}.json in UTC.
func Key(entity string, ts time.Time) string {
	return Namespace + "/" + entity + "/" + ts.UTC().Format(KeyTimeLayout) + ".json"
}

// Serialize renders rec as indented JSON with sorted keys. Values that cannot
// be encoded are replaced by their fmt.Sprint form.
func Serialize(rec feed.Record) ([]byte, error) {
	out, err := codec.MarshalIndent(coerce(map[string]any(rec)), "", "  ")
	if err != nil {
		return nil, errors.Wrap(exception.ErrSinkSerialize, err.Error())
	}
	return out, nil
}

func coerce(v any) any {
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprint(t)
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return fmt.Sprint(t)
		}
		return t
	case feed.Record:
		return coerce(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = coerce(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = coerce(item)
		}
		return out
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v)
	}
	if _, err := codec.Marshal(v); err != nil {
		return fmt.Sprint(v)
	}
	return v
}
