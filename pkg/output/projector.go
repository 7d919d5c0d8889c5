package output

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/meintechblog/eos-backend/internal/errors"
)

// RunLookup resolves which run a bundle is drawn from and its instructions.
type RunLookup interface {
	LatestSucceededRunID(ctx context.Context) (int64, bool, error)
	InstructionsForRun(ctx context.Context, runID int64) ([]Instruction, error)
}

// LiveStaleness reports whether the live signal backing signalKey is
// stale as of fetchedAt (feeds the "stale" overlay status).
type LiveStaleness interface {
	IsStale(ctx context.Context, signalKey string, fetchedAt time.Time) (bool, error)
}

// Projector resolves the latest output bundle for delivery to the
// central consumer.
type Projector struct {
	runs            RunLookup
	staleness       LiveStaleness
	store           *Store
	signalKeys      []string
	centralHTTPPath string
	logger          *zap.Logger
}

// NewProjector builds a Projector over the configured output signal keys.
func NewProjector(runs RunLookup, staleness LiveStaleness, store *Store, signalKeys []string, centralHTTPPath string, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{runs: runs, staleness: staleness, store: store, signalKeys: signalKeys, centralHTTPPath: centralHTTPPath, logger: logger.With(zap.String("component", "output_projector"))}
}

// Bundle resolves the output bundle for runID (0 meaning "use the latest
// succeeded run").
func (p *Projector) Bundle(ctx context.Context, runID int64, fetchedAt time.Time) (Bundle, error) {
	resolvedRunID := runID
	if resolvedRunID == 0 {
		latest, ok, err := p.runs.LatestSucceededRunID(ctx)
		if err != nil {
			return Bundle{}, err
		}
		if !ok {
			return p.emptyBundle(fetchedAt), nil
		}
		resolvedRunID = latest
	}

	instructions, err := p.runs.InstructionsForRun(ctx, resolvedRunID)
	if err != nil {
		return Bundle{}, err
	}
	reduced := ReduceInstructions(instructions, fetchedAt)

	signals := make(map[string]*BundleItem, len(p.signalKeys))
	for _, key := range p.signalKeys {
		instr, ok := reduced[key]
		if !ok {
			signals[key] = &BundleItem{SignalKey: key, Status: StatusMissing}
			continue
		}
		powerKW := instr.RequestedPowerKW
		effective := instr.ExecutionTime
		if effective == nil {
			effective = instr.StartsAt
		}
		status := StatusOK
		if instr.GuardApplied {
			status = StatusGuarded
		}
		if p.staleness != nil {
			stale, err := p.staleness.IsStale(ctx, key, fetchedAt)
			if err != nil {
				return Bundle{}, err
			}
			if stale {
				status = StatusStale
			}
		}
		signals[key] = &BundleItem{
			SignalKey:         key,
			RequestedPowerKW:  &powerKW,
			OperationMode:     instr.OperationMode,
			EffectiveAt:       effective,
			SourceInstruction: instr.ID,
			Status:            status,
		}
	}

	return Bundle{CentralHTTPPath: p.centralHTTPPath, RunID: resolvedRunID, FetchedAt: fetchedAt, Signals: signals}, nil
}

func (p *Projector) emptyBundle(fetchedAt time.Time) Bundle {
	signals := make(map[string]*BundleItem, len(p.signalKeys))
	for _, key := range p.signalKeys {
		signals[key] = &BundleItem{SignalKey: key, Status: StatusMissing}
	}
	return Bundle{CentralHTTPPath: p.centralHTTPPath, FetchedAt: fetchedAt, Signals: signals}
}

// RecordBundleFetch updates access-state for every signal in the bundle
// and merges the resulting fetch accounting back into each item.
func (p *Projector) RecordBundleFetch(ctx context.Context, bundle Bundle, client string) error {
	for key, item := range bundle.Signals {
		state, err := p.store.RecordFetch(ctx, key, client, bundle.FetchedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "record bundle fetch")
		}
		item.LastFetchTs = state.LastFetchTs
		if state.LastFetchClient != nil {
			item.LastFetchClient = *state.LastFetchClient
		}
		item.FetchCount = state.FetchCount
	}
	return nil
}
