package ingest

import (
	"encoding/json"
	"errors"
	"testing"

	"tracker/internal/feed"
	"tracker/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMapping(t *testing.T) {
	in := map[string]any{"tokenAddress": "TOK1", "blockUnixTime": json.Number("1700000000")}
	res := Normalize(in)
	require.True(t, res.OK())
	assert.Equal(t, KindCanonical, res.Kind)
	assert.Equal(t, feed.Record(in), res.Record)
	assert.NoError(t, res.Err)
}

func TestNormalizeText(t *testing.T) {
	for _, raw := range []any{
		`{"tokenAddress":"TOK1","blockUnixTime":1700000000}`,
		[]byte(`{"tokenAddress":"TOK1","blockUnixTime":1700000000}`),
		json.RawMessage(`{"tokenAddress":"TOK1","blockUnixTime":1700000000}`),
	} {
		res := Normalize(raw)
		require.True(t, res.OK(), "%T", raw)
		assert.Equal(t, "TOK1", res.Record["tokenAddress"])
		assert.Equal(t, json.Number("1700000000"), res.Record["blockUnixTime"])
	}
}

func TestNormalizeShapeMismatch(t *testing.T) {
	for _, text := range []string{`[1,2,3]`, `"TOK1"`, `42`, `null`, `true`} {
		res := Normalize(text)
		assert.Equal(t, KindShapeMismatch, res.Kind, text)
		assert.False(t, res.OK())
		assert.Nil(t, res.Record)
		assert.Equal(t, text, res.Raw)
		assert.True(t, errors.Is(res.Err, exception.ErrNormalizeShapeMismatch), text)
	}
}

func TestNormalizeDecodeError(t *testing.T) {
	res := Normalize(`{"tokenAddress":`)
	assert.Equal(t, KindDecodeError, res.Kind)
	assert.Equal(t, `{"tokenAddress":`, res.Raw)
	assert.True(t, errors.Is(res.Err, exception.ErrNormalizeDecode))
}

func TestNormalizeUnsupported(t *testing.T) {
	var nilMap map[string]any
	for _, raw := range []any{nil, 42, 1.5, true, []any{"a"}, nilMap, struct{}{}} {
		res := Normalize(raw)
		assert.Equal(t, KindUnsupportedType, res.Kind, "%T", raw)
		assert.True(t, errors.Is(res.Err, exception.ErrNormalizeUnsupportedType))
		assert.NotEmpty(t, res.Raw, "%T", raw)
	}

	res := Normalize([]any{"MARKER"})
	assert.Contains(t, res.Raw, "MARKER")
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "canonical", KindCanonical.String())
	assert.Equal(t, "shape_mismatch", KindShapeMismatch.String())
	assert.Equal(t, "decode_error", KindDecodeError.String())
	assert.Equal(t, "unsupported_type", KindUnsupportedType.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
