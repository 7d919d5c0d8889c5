// Package payload implements the C1 payload parser: extracting scalar
// values and event timestamps out of heterogeneous inbound payloads by
// dotted JSON path, grounded on original_source's
// app/services/payload_parser.py.
package payload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/gojq"
	"go.uber.org/zap"
)

// Parser extracts values from raw payload text. It caches compiled gojq
// programs per dotted path so repeated ingests of the same mapping never
// recompile the query.
type Parser struct {
	logger  *zap.Logger
	queries sync.Map // map[string]*gojq.Code
}

// NewParser builds a Parser that logs structural failures at warning
// level but never returns an error to callers.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse resolves raw against an optional dotted path and returns the
// string form of the value plus whether anything was found. With no path,
// the raw payload is stripped and, if itself JSON, re-serialized with
// scalars stringified.
func (p *Parser) Parse(raw string, path string) (string, bool) {
	if path == "" {
		return p.parseScalar(raw)
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		p.logger.Warn("payload_path is set but payload is not valid JSON", zap.String("path", path))
		return "", false
	}

	value, ok := p.walk(decoded, path)
	if !ok {
		p.logger.Warn("payload_path not found", zap.String("path", path), zap.String("payload", raw))
		return "", false
	}
	return stringify(value)
}

// ParseEventTimestamp resolves an event timestamp out of raw via an
// optional dotted path, accepting ISO-8601, epoch seconds and epoch
// milliseconds (auto-detected by magnitude), falling back to fallback on
// any failure. The fallback (and the result) is always normalized to UTC.
func (p *Parser) ParseEventTimestamp(raw string, path string, fallback time.Time) time.Time {
	fallback = fallback.UTC()
	if path == "" {
		return fallback
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		p.logger.Warn("timestamp_path is set but payload is not valid JSON", zap.String("path", path))
		return fallback
	}

	value, ok := p.walk(decoded, path)
	if !ok {
		p.logger.Warn("timestamp_path not found", zap.String("path", path), zap.String("payload", raw))
		return fallback
	}

	parsed, ok := coerceTimestamp(value)
	if !ok {
		p.logger.Warn("timestamp_path value is not a valid datetime", zap.String("path", path))
		return fallback
	}
	return parsed
}

func (p *Parser) parseScalar(raw string) (string, bool) {
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return "", false
	}

	var decoded any
	if err := json.Unmarshal([]byte(stripped), &decoded); err != nil {
		return stripped, true
	}
	return stringify(decoded)
}

// walk evaluates a dotted path ("a.b.c") against decoded JSON using a
// cached compiled gojq program, matching the "missing key -> nothing,
// non-object mid-chain -> nothing" semantics of the original.
func (p *Parser) walk(decoded any, path string) (any, bool) {
	code, err := p.compiled(path)
	if err != nil {
		p.logger.Warn("failed to compile payload path", zap.String("path", path), zap.Error(err))
		return nil, false
	}

	iter := code.Run(decoded)
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if err, isErr := v.(error); isErr {
		_ = err
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

func (p *Parser) compiled(path string) (*gojq.Code, error) {
	if cached, ok := p.queries.Load(path); ok {
		return cached.(*gojq.Code), nil
	}

	jqPath := "." + strings.TrimPrefix(path, ".")
	query, err := gojq.Parse(jqPath)
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, err
	}
	p.queries.Store(path, code)
	return code, nil
}

func stringify(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	switch v := value.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(encoded), true
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

func coerceTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return epochToTime(v)
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false
		}
		if numeric, err := strconv.ParseFloat(raw, 64); err == nil {
			return epochToTime(numeric)
		}
		normalized := raw
		if strings.HasSuffix(normalized, "Z") {
			normalized = strings.TrimSuffix(normalized, "Z") + "+00:00"
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05"} {
			if parsed, err := time.Parse(layout, normalized); err == nil {
				return toUTC(parsed), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func epochToTime(value float64) (time.Time, bool) {
	seconds := value
	if math.Abs(value) > 1_000_000_000_000 {
		seconds = value / 1000.0
	}
	whole := math.Floor(seconds)
	frac := seconds - whole
	t := time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return t, true
}

func toUTC(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return t.UTC()
}
