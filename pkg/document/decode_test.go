package document

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "tier"],
  "properties": {
    "name": {"type": "string"},
    "tier": {"enum": ["low", "high"]},
    "count": {"type": "integer", "minimum": 0}
  }
}`

type widget struct {
	Name  string `json:"name"`
	Tier  string `json:"tier"`
	Count uint32 `json:"count,omitempty"`
}

func newWidgetSchema() *Schema {
	return NewSchema("widget", "widget.schema.json", []byte(widgetSchema))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{"valid", `{"name":"a","tier":"low","count":3}`, ""},
		{"malformed", `{"name":`, ErrCodeParse},
		{"trailing data", `{"name":"a","tier":"low"} {}`, ErrCodeParse},
		{"unknown field", `{"name":"a","tier":"low","extra":1}`, ErrCodeSchema},
		{"enum violation", `{"name":"a","tier":"medium"}`, ErrCodeSchema},
		{"missing required", `{"name":"a"}`, ErrCodeSchema},
		{"negative integer", `{"name":"a","tier":"low","count":-1}`, ErrCodeSchema},
	}

	s := newWidgetSchema()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w widget
			err := s.Decode([]byte(tt.input), &w)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, "a", w.Name)
				return
			}
			require.Error(t, err)
			assert.True(t, IsParse(err))
			assert.False(t, IsValidation(err))

			var de *Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.wantCode, de.Code)
			assert.Contains(t, err.Error(), "failed to parse widget JSON")
		})
	}
}

func TestDecode_BadSchemaIsParseError(t *testing.T) {
	s := NewSchema("broken", "broken.schema.json", []byte(`{"type": 12}`))
	var w widget
	err := s.Decode([]byte(`{}`), &w)
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestError_Rendering(t *testing.T) {
	err := Validationf("semantic contract", "duplicate clause_id '%s'", "SEM-001")
	assert.Equal(t, "semantic contract validation failed: duplicate clause_id 'SEM-001'", err.Error())
	assert.Equal(t, ErrCodeValidation, err.Code)

	wrapped := fmt.Errorf("load: %w", err)
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsParse(wrapped))
	assert.False(t, IsValidation(errors.New("plain")))
}

func TestDigest_IgnoresKeyOrder(t *testing.T) {
	d1, err := Digest(widget{Name: "a", Tier: "low"})
	require.NoError(t, err)
	d2, err := Digest(map[string]any{"tier": "low", "name": "a"})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
