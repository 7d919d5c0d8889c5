package output

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// RenderLoxone renders {signal_key}:{value} lines sorted by key, values
// formatted with up to three decimals, zero-stripped but always
// matching \d+\.\d+ (e.g. "2.5", "2.0"). Translated from
// eos_output_signals.py's _render_loxone_signal_payload /
// _format_numeric_value.
func RenderLoxone(signals map[string]*BundleItem) string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s:%s", k, formatNumericValue(signals[k].RequestedPowerKW)))
	}
	return strings.Join(lines, "\n")
}

func formatNumericValue(value *float64) string {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return "0.0"
	}
	compact := strings.TrimRight(strconv.FormatFloat(*value, 'f', 3, 64), "0")
	compact = strings.TrimRight(compact, ".")
	if !strings.Contains(compact, ".") {
		return compact + ".0"
	}
	return compact
}

// ExtractClientID prefers the first x-forwarded-for hop, falling back to
// the transport peer address.
func ExtractClientID(r *http.Request) string {
	if forwarded := r.Header.Get("x-forwarded-for"); strings.TrimSpace(forwarded) != "" {
		firstHop := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if firstHop != "" {
			return firstHop
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return ""
}
