package canonicalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_SortsKeysRecursively(t *testing.T) {
	input := map[string]any{
		"z": map[string]any{"y": "foo", "x": "bar"},
		"a": 1,
	}

	b, err := JCS(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"z":{"x":"bar","y":"foo"}}`, string(b))
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	b, err := JCS(map[string]string{"sig": "<Box> & <Text>"})
	require.NoError(t, err)
	assert.Equal(t, `{"sig":"<Box> & <Text>"}`, string(b))
}

func TestJCS_PreservesNumbers(t *testing.T) {
	b, err := JCS(map[string]any{"n": json.Number("0.975"), "i": 42})
	require.NoError(t, err)
	assert.Equal(t, `{"i":42,"n":0.975}`, string(b))
}

func TestJCS_ES6NumberForm(t *testing.T) {
	b, err := JCS(map[string]any{"w": json.Number("1.0"), "big": json.Number("1e21"), "neg": -0.5})
	require.NoError(t, err)
	assert.Equal(t, `{"big":1e+21,"neg":-0.5,"w":1}`, string(b))
}

func TestJCS_ArraysKeepOrder(t *testing.T) {
	b, err := JCS([]any{"b", "a", nil, true})
	require.NoError(t, err)
	assert.Equal(t, `["b","a",null,true]`, string(b))
}

func TestDigest_StructAndMapAgree(t *testing.T) {
	type lineage struct {
		StageID   string `json:"stage_id"`
		InputHash string `json:"input_hash"`
	}
	d1, err := Digest(lineage{StageID: "parse", InputHash: "sha256:aa"})
	require.NoError(t, err)
	d2, err := Digest(map[string]any{"input_hash": "sha256:aa", "stage_id": "parse"})
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.True(t, strings.HasPrefix(d1, DigestPrefix))
	assert.Len(t, strings.TrimPrefix(d1, DigestPrefix), 64)
}

func TestDigest_UnmarshalableValue(t *testing.T) {
	_, err := Digest(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jcs: marshal")
}
