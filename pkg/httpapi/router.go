package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/meintechblog/eos-backend/internal/config"
	"github.com/meintechblog/eos-backend/pkg/emr"
	"github.com/meintechblog/eos-backend/pkg/ingest"
	"github.com/meintechblog/eos-backend/pkg/metrics"
	"github.com/meintechblog/eos-backend/pkg/orchestrator"
	"github.com/meintechblog/eos-backend/pkg/output"
	"github.com/meintechblog/eos-backend/pkg/parameters"
	"github.com/meintechblog/eos-backend/pkg/signalstore"
)

// Deps bundles every domain dependency the router wires into handlers.
type Deps struct {
	Config          *config.Config
	Logger          *zap.Logger
	Metrics         *metrics.Registry
	Signals         *signalstore.Store
	EMR             *emr.Store
	IngestStore     *ingest.Store
	IngestPipeline  *ingest.Pipeline
	ParamSurface    *parameters.Surface
	FieldLayout     *parameters.FieldLayout
	OrchestratorRun *orchestrator.Store
	OutputStore     *output.Store
}

// NewRouter builds the chi router implementing the service's HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoverPanic(deps.Logger))
	r.Use(accessLog(deps.Logger))
	if deps.Metrics != nil {
		r.Use(instrument(deps.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.HTTP.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "eos-backend"})
	})

	data := &dataHandlers{store: deps.Signals, logger: deps.Logger}
	r.Route("/api/data", func(sr chi.Router) {
		sr.Get("/signals", data.listSignals)
		sr.Get("/latest", data.latest)
		sr.Get("/series", data.series)
		sr.Get("/retention/status", data.retentionStatus)
	})

	powerEmr := &powerEmrHandlers{store: deps.EMR, logger: deps.Logger}
	r.Route("/api/data/power", func(sr chi.Router) {
		sr.Get("/latest", powerEmr.powerLatest)
		sr.Get("/series", powerEmr.powerSeries)
	})
	r.Route("/api/data/emr", func(sr chi.Router) {
		sr.Get("/latest", powerEmr.emrLatest)
		sr.Get("/series", powerEmr.emrSeries)
	})

	projector := output.NewProjector(
		&orchestratorRunAdapter{store: deps.OrchestratorRun},
		nil,
		deps.OutputStore,
		deps.Config.Output.SignalKeys,
		deps.Config.Output.CentralHTTPPath,
		deps.Logger,
	)
	outputH := &outputHandlers{projector: projector, logger: deps.Logger}
	r.Get("/api/eos/output-signals", outputH.bundle)
	r.Get("/eos/get/outputs", outputH.externalBundle)

	input := &inputHandlers{channels: deps.IngestStore, pipeline: deps.IngestPipeline, logger: deps.Logger}
	r.Get("/eos/input/*", input.getPush)
	r.Post("/api/input/http/push", input.postPush)

	httpOverrideTTL := time.Duration(deps.Config.HTTPOverrideActiveSeconds) * time.Second
	setup := newSetupHandlers(deps.ParamSurface, deps.FieldLayout, httpOverrideTTL, deps.Logger)
	r.Post("/api/setup/fields", setup.batchWrite)
	r.Put("/eos/set/{field_id}", setup.externalSet)
	r.Get("/api/setup/layout", setup.layoutView)
	r.Get("/api/setup/readiness", setup.readiness)

	for _, route := range legacyGoneRoutes {
		handler := legacyGoneHandler(route.directive)
		for _, m := range route.methods {
			r.MethodFunc(m, route.pattern, handler)
		}
	}

	return r
}
