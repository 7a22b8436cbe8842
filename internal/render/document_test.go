package render

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesNumberLiterals(t *testing.T) {
	doc, err := Parse([]byte(`{"young": 1.0E8, "nu": 0.25, "steps": 40}`))
	require.NoError(t, err)

	data, err := doc.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"nu\": 0.25,\n  \"steps\": 40,\n  \"young\": 1.0E8\n}\n", string(data))
}

func TestMarshalIsDeterministic(t *testing.T) {
	doc, err := Parse([]byte(`{"b": [1, 2, {"c": "x"}], "a": {"z": true, "y": null}}`))
	require.NoError(t, err)

	first, err := doc.Marshal()
	require.NoError(t, err)
	second, err := doc.Marshal()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseRejectsTrailingContent(t *testing.T) {
	_, err := Parse([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	doc, err := Parse([]byte(`{
		"functionals": [
			{"type": "target_match", "weight": 100.0},
			{"type": "smooth_layer_thickness", "weight": 1.0}
		],
		"boundary_conditions": {
			"pressure_boundary": [
				{"id": 1, "value": "0"},
				{"id": 2, "value": "-1200 * (t/4)"}
			]
		},
		"contact": {"dhat": 0.001}
	}`))
	require.NoError(t, err)

	value, err := doc.Get("contact.dhat")
	require.NoError(t, err)
	assert.Equal(t, json.Number("0.001"), value)

	value, err = doc.Get("functionals[type=smooth_layer_thickness].weight")
	require.NoError(t, err)
	assert.Equal(t, json.Number("1.0"), value)

	value, err = doc.Get("boundary_conditions.pressure_boundary[id=2].value")
	require.NoError(t, err)
	assert.Equal(t, "-1200 * (t/4)", value)

	value, err = doc.Get("functionals[0].type")
	require.NoError(t, err)
	assert.Equal(t, "target_match", value)
}

func TestGetErrors(t *testing.T) {
	doc, err := Parse([]byte(`{
		"functionals": [
			{"type": "x", "weight": 1.0},
			{"type": "x", "weight": 2.0}
		],
		"contact": {"dhat": 0.001}
	}`))
	require.NoError(t, err)

	_, err = doc.Get("functionals[type=x].weight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one")

	_, err = doc.Get("functionals[type=y].weight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches no element")

	_, err = doc.Get("functionals[7].weight")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = doc.Get("contact.missing")
	require.Error(t, err)

	_, err = doc.Get("contact.dhat.deeper")
	require.Error(t, err)
}

func TestParsePathErrors(t *testing.T) {
	for _, path := range []string{"", "a..b", "a.", ".a", "a[", "a[x]", "a[-1]", "a[0]b", "a[=v]"} {
		_, err := parsePath(path)
		assert.Errorf(t, err, "path %q", path)
	}
}

func TestSetRequiresExistingField(t *testing.T) {
	doc, err := Parse([]byte(`{"contact": {"dhat": 0.001}}`))
	require.NoError(t, err)

	require.NoError(t, doc.Set("contact.dhat", json.Number("0.01")))
	value, err := doc.Get("contact.dhat")
	require.NoError(t, err)
	assert.Equal(t, json.Number("0.01"), value)

	err = doc.Set("contact.dmin", json.Number("0.01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no field "dmin"`)
}

func TestSetArrayElement(t *testing.T) {
	doc, err := Parse([]byte(`{"tags": ["a", "b", "c"]}`))
	require.NoError(t, err)

	require.NoError(t, doc.Set("tags[1]", "z"))
	value, err := doc.Get("tags[1]")
	require.NoError(t, err)
	assert.Equal(t, "z", value)

	assert.Error(t, doc.Set("tags[3]", "w"))
}

func TestDeepCopyIsolation(t *testing.T) {
	doc, err := Parse([]byte(`{"contact": {"dhat": 0.001}, "tags": ["a"]}`))
	require.NoError(t, err)
	original, err := doc.Marshal()
	require.NoError(t, err)

	copied := doc.DeepCopy()
	require.NoError(t, copied.Set("contact.dhat", json.Number("9")))
	require.NoError(t, copied.Set("tags[0]", "b"))

	unchanged, err := doc.Marshal()
	require.NoError(t, err)
	assert.Equal(t, original, unchanged)
}
