package parameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPayload_KeySorted(t *testing.T) {
	root := MapValue(map[string]Value{
		"b": NumberValue(2),
		"a": NumberValue(1),
	})
	out, err := MarshalPayload(root)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, out)
}

func TestMergeAtPath_PlainDotted(t *testing.T) {
	root := MapValue(map[string]Value{})
	merged, err := MergeAtPath(root, "ems.interval", "", NumberValue(900))
	require.NoError(t, err)

	out, err := MarshalPayload(merged)
	require.NoError(t, err)
	assert.Equal(t, `{"ems":{"interval":900}}`, out)
}

func TestMergeAtPath_ArraySelector_CreatesElement(t *testing.T) {
	root := MapValue(map[string]Value{})
	merged, err := MergeAtPath(root, "devices.batteries[].min_soc_percentage", "lfp", NumberValue(10))
	require.NoError(t, err)

	batteries := merged.Map["devices"].Map["batteries"]
	require.Equal(t, KindList, batteries.Kind)
	require.Len(t, batteries.List, 1)
	assert.Equal(t, "lfp", batteries.List[0].Map["id"].Text)
	assert.Equal(t, 10.0, batteries.List[0].Map["min_soc_percentage"].Number)
}

func TestMergeAtPath_ArraySelector_UpdatesExistingElement(t *testing.T) {
	root := MapValue(map[string]Value{})
	first, err := MergeAtPath(root, "devices.batteries[].min_soc_percentage", "lfp", NumberValue(10))
	require.NoError(t, err)
	second, err := MergeAtPath(first, "devices.batteries[].max_soc_percentage", "lfp", NumberValue(95))
	require.NoError(t, err)

	batteries := second.Map["devices"].Map["batteries"]
	require.Len(t, batteries.List, 1)
	assert.Equal(t, 10.0, batteries.List[0].Map["min_soc_percentage"].Number)
	assert.Equal(t, 95.0, batteries.List[0].Map["max_soc_percentage"].Number)
}

func TestMergeAtPath_ArraySelector_RequiresSelector(t *testing.T) {
	root := MapValue(map[string]Value{})
	_, err := MergeAtPath(root, "devices.batteries[].min_soc_percentage", "", NumberValue(10))
	assert.Error(t, err)
}

func TestParseScalarValue(t *testing.T) {
	v, err := ParseScalarValue("900", "number")
	require.NoError(t, err)
	assert.Equal(t, 900.0, v.Number)

	v, err = ParseScalarValue("true", "bool")
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, err = ParseScalarValue(`["a","b"]`, "string_list")
	require.NoError(t, err)
	require.Len(t, v.List, 2)
	assert.Equal(t, "a", v.List[0].Text)

	v, err = ParseScalarValue("house_load_w, pv_power_w", "string_list")
	require.NoError(t, err)
	require.Len(t, v.List, 2)
	assert.Equal(t, "pv_power_w", v.List[1].Text)

	_, err = ParseScalarValue("not-a-number", "number")
	assert.Error(t, err)
}
