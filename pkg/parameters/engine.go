package parameters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// Engine exposes the C5 operations over a Store.
type Engine struct {
	store *Store
}

// NewEngine builds an Engine.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Validate is pure: it sorts lists made only of strings and warns on
// negative numbers, returning the normalized payload alongside
// errors/warnings. Unit spellings are left as they are. It never touches
// the database.
func Validate(payload Value) ValidationResult {
	var errs, warnings []string
	normalized := normalizeValue(payload, &errs, &warnings)
	return ValidationResult{
		Valid:             len(errs) == 0,
		Errors:            errs,
		Warnings:          warnings,
		NormalizedPayload: normalized,
	}
}

func normalizeValue(v Value, errs, warnings *[]string) Value {
	switch v.Kind {
	case KindMap:
		out := make(map[string]Value, len(v.Map))
		for k, child := range v.Map {
			out[k] = normalizeValue(child, errs, warnings)
		}
		return MapValue(out)
	case KindList:
		// Canonicalize array ordering for plain scalar lists so the same
		// logical payload always serializes identically.
		if allScalarText(v.List) {
			sorted := append([]Value(nil), v.List...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].Text < sorted[j].Text })
			return ListValue(sorted)
		}
		out := make([]Value, len(v.List))
		for i, item := range v.List {
			out[i] = normalizeValue(item, errs, warnings)
		}
		return ListValue(out)
	case KindNumber:
		if v.Number < 0 {
			*warnings = append(*warnings, "negative numeric value encountered during normalization")
		}
		return v
	default:
		return v
	}
}

func allScalarText(items []Value) bool {
	for _, item := range items {
		if item.Kind != KindText {
			return false
		}
	}
	return len(items) > 0
}

// Apply validates revisionID's payload and, on success, marks it applied.
// It never alters the payload itself; a validation failure raises without
// mutating any state.
func (e *Engine) Apply(ctx context.Context, profileID, revisionID int64) (*Revision, error) {
	revision, err := e.store.GetRevisionByID(ctx, profileID, revisionID)
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal([]byte(revision.PayloadJSON), &decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "decode revision payload")
	}
	result := Validate(ValueFromJSON(decoded))
	if !result.Valid {
		return nil, apperrors.Validation(fmt.Sprintf("revision %d failed validation", revisionID)).
			WithDetailsf("errors=%v", result.Errors)
	}

	return e.store.MarkRevisionAsLastApplied(ctx, profileID, revisionID)
}
