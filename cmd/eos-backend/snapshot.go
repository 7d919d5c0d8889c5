package main

import (
	"context"
	"encoding/json"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
	"github.com/meintechblog/eos-backend/pkg/ingest"
	"github.com/meintechblog/eos-backend/pkg/orchestrator"
	"github.com/meintechblog/eos-backend/pkg/parameters"
	"github.com/meintechblog/eos-backend/pkg/signalstore"
)

// snapshotSources bundles the stores buildSnapshot reads from. A run's
// Snapshot is assembled fresh at trigger time so every run is reproducible
// from the artifacts it persists.
type snapshotSources struct {
	profiles       *parameters.Store
	surface        *parameters.Surface
	mappings       *ingest.Store
	signals        *signalstore.Store
	gridSignalKey  string
}

// buildSnapshot gathers the current parameter payload, any still-active
// HTTP overrides, the enabled input mapping table, and live grid power into
// one orchestrator.Snapshot. RuntimeConfig is always an empty map.
func buildSnapshot(ctx context.Context, src snapshotSources) (orchestrator.Snapshot, error) {
	profile, err := src.profiles.GetActiveProfile(ctx)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}

	var parameterPayload map[string]any
	applied, err := src.profiles.GetLastAppliedRevision(ctx, profile.ID)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}
	if applied != nil {
		if err := json.Unmarshal([]byte(applied.PayloadJSON), &parameterPayload); err != nil {
			return orchestrator.Snapshot{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "decode applied parameter payload")
		}
	} else {
		parameterPayload = map[string]any{}
	}

	overrides, err := src.surface.ActiveOverrides(ctx)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}

	mappingRows, err := src.mappings.ListEnabledMappings(ctx)
	if err != nil {
		return orchestrator.Snapshot{}, err
	}
	mappingsPayload := make(map[string]any, len(mappingRows))
	for _, m := range mappingRows {
		mappingsPayload[m.EosField] = map[string]any{
			"channel_id":       m.ChannelID,
			"input_key":        m.InputKey,
			"unit":             m.Unit,
			"value_multiplier": m.ValueMultiplier,
			"sign_convention":  string(m.SignConvention),
		}
	}

	liveState := map[string]any{}
	if src.gridSignalKey != "" {
		rows, err := src.signals.ListLatestByKeys(ctx, []string{src.gridSignalKey}, 1)
		if err != nil {
			return orchestrator.Snapshot{}, err
		}
		if len(rows) == 1 && rows[0].ValueNumber.Valid {
			liveState["grid_power_w"] = rows[0].ValueNumber.Float64
		}
	}

	return orchestrator.Snapshot{
		ParameterPayload: parameterPayload,
		HTTPOverrides:    overrides,
		Mappings:         mappingsPayload,
		LiveState:        liveState,
		RuntimeConfig:    map[string]any{},
	}, nil
}
