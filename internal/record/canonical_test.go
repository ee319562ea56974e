package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"bool", true, "true"},
		{"empty refs", Refs{}, "[]"},
		{"refs keep order", Refs{"CTRL-002", "CTRL-001"}, `["CTRL-002","CTRL-001"]`},
		{"empty object", map[string]any{}, "{}"},
		{"string map", map[string]string{"b": "2", "a": "1"}, `{"a":"1","b":"2"}`},
		{"html not escaped", "<a&b>", `"<a&b>"`},
		{"control char", "a\x01b", `"a\u0001b"`},
		{"newline and quote", "a\n\"b\"", `"a\n\"b\""`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := map[string]any{
		"z": map[string]any{"b": 1, "a": 2},
		"a": []any{"x", 3},
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x",3],"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// UTF-16: 0xD800 (surrogate of U+10000) sorts before 0xE000.
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" + combining acute normalizes to the precomposed form.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(1.5)
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"k": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `object["k"]`)
}

func TestDatasetDigest_StableAndSensitive(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	risks := []Risk{{ID: "R1", Title: "Outage", ControlRefs: Refs{"CTRL-001"}, CreatedAt: created}}
	controls := []Control{{ID: "CTRL-001", Reference: "CTRL-001", RiskRefs: Refs{"R1"}}}

	d1, err := DatasetDigest(risks, controls)
	require.NoError(t, err)
	d2, err := DatasetDigest(CloneRisks(risks), CloneControls(controls))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	controls[0].RiskRefs = Refs{}
	d3, err := DatasetDigest(risks, controls)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
