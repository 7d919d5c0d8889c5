package parameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_ListEntries_NotEmpty(t *testing.T) {
	c := NewCatalog()
	entries := c.ListEntries()
	assert.Len(t, entries, 19)
}

func TestCatalog_GetEntry_RequiresSelectorForDeviceArrays(t *testing.T) {
	c := NewCatalog()
	entry, ok := c.GetEntry("devices.batteries[].min_soc_percentage")
	require.True(t, ok)
	assert.True(t, entry.RequiresSelector)
	assert.Equal(t, "number", entry.ValueType)
	require.NotNil(t, entry.Minimum)
	assert.Equal(t, 0.0, *entry.Minimum)
}

func TestCatalog_GetEntry_Unknown(t *testing.T) {
	c := NewCatalog()
	_, ok := c.GetEntry("nonexistent.key")
	assert.False(t, ok)
}
