package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPVConfig(importValues []any) map[string]any {
	return map[string]any{
		"pvforecast": map[string]any{
			"provider":  "PVForecastAkkudoktor",
			"providers": []any{"PVForecastAkkudoktor", "PVForecastImport"},
			"provider_settings": map[string]any{
				"PVForecastImport": map[string]any{
					"import_json": map[string]any{
						"pvforecast_ac_power": importValues,
					},
				},
			},
		},
	}
}

func binaryProfile() []any {
	values := make([]any, 0, 48)
	for i := 0; i < 24; i++ {
		values = append(values, 0.0)
	}
	for i := 0; i < 24; i++ {
		values = append(values, 12000.0)
	}
	return values
}

func variedProfile() []any {
	values := make([]any, 0, 48)
	for i := 0; i < 48; i++ {
		values = append(values, float64((i%24)*250))
	}
	return values
}

func TestIsValidPVFallbackProvider_RejectsBinaryImportProfile(t *testing.T) {
	config := buildPVConfig(binaryProfile())
	valid, reason := IsValidPVFallbackProvider(config, "PVForecastImport")
	assert.False(t, valid)
	assert.Contains(t, reason, "too few unique values")
}

func TestAttemptPVImportFallback_RequiresUsableImportProfile(t *testing.T) {
	config := buildPVConfig(binaryProfile())
	var putCalls [][2]any
	result, err := AttemptPVImportFallback(config, "PVForecastImport", func(path string, value any) error {
		putCalls = append(putCalls, [2]any{path, value})
		return nil
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Contains(t, result.Note, "usable import data")
	assert.Empty(t, putCalls)
}

func TestFallbackProviderSwitch_IsRestoredAfterRefresh(t *testing.T) {
	config := buildPVConfig(variedProfile())
	result, err := AttemptPVImportFallback(config, "PVForecastImport", func(path string, value any) error {
		config["pvforecast"].(map[string]any)["provider"] = value
		return nil
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, "PVForecastImport", config["pvforecast"].(map[string]any)["provider"])

	restore, err := RestorePVProvider("PVForecastAkkudoktor", func(path string, value any) error {
		config["pvforecast"].(map[string]any)["provider"] = value
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "restored", restore.Status)
	assert.Equal(t, "PVForecastAkkudoktor", config["pvforecast"].(map[string]any)["provider"])
}
