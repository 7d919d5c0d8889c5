package ingest

import "strings"

// NormalizeInputKey lowercases, strips a leading slash, and prepends the
// canonical eos/input/ prefix when missing.
func NormalizeInputKey(inputKey string) string {
	key := strings.ToLower(strings.TrimSpace(inputKey))
	key = strings.TrimPrefix(key, "/")
	if strings.HasPrefix(key, "eos/input/") {
		return key
	}
	if strings.HasPrefix(key, "eos/") {
		return "eos/input/" + strings.TrimPrefix(key, "eos/")
	}
	return "eos/input/" + key
}

// IsParameterChannelPath reports whether input_key is an eos/param/* path,
// which is early-accepted without signal emission.
func IsParameterChannelPath(inputKey string) bool {
	return strings.HasPrefix(strings.TrimSpace(inputKey), paramChannelPrefix)
}
