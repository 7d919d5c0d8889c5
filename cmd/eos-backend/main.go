// Command eos-backend runs the energy-optimization-system backend: the
// signal backbone, ingest pipeline, EMR integrator, parameter/setup
// surface, orchestrator, and output projection, wired behind one HTTP
// API and three background supervisors.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meintechblog/eos-backend/internal/appctx"
	"github.com/meintechblog/eos-backend/internal/config"
	"github.com/meintechblog/eos-backend/pkg/dbx"
	"github.com/meintechblog/eos-backend/pkg/emr"
	"github.com/meintechblog/eos-backend/pkg/httpapi"
	"github.com/meintechblog/eos-backend/pkg/ingest"
	"github.com/meintechblog/eos-backend/pkg/jobsup"
	"github.com/meintechblog/eos-backend/pkg/metrics"
	"github.com/meintechblog/eos-backend/pkg/orchestrator"
	"github.com/meintechblog/eos-backend/pkg/output"
	"github.com/meintechblog/eos-backend/pkg/parameters"
	"github.com/meintechblog/eos-backend/pkg/payload"
	"github.com/meintechblog/eos-backend/pkg/signalstore"
)

// eosClientTimeout, eosClientConsecutiveFailures, and eosClientOpenTimeout
// have no config.yaml knobs — the original's orchestrator client never
// exposed breaker tuning, so these mirror the defaults every sqlx pool /
// gobreaker pairing in the teacher's own services uses.
const (
	eosClientTimeout             = 30 * time.Second
	eosClientConsecutiveFailures = uint32(5)
	eosClientOpenTimeout         = 60 * time.Second
)

func main() {
	var configPath string
	var migrateOnly bool
	pflag.StringVar(&configPath, "config", "config/config.yaml", "path to the service's YAML config file")
	pflag.BoolVar(&migrateOnly, "migrate-only", false, "apply pending migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	logger := buildLogger(cfg.Logging)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	if err := dbx.Migrate(db.DB); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	if migrateOnly {
		logger.Info("migrate-only: migrations applied, exiting")
		return
	}

	appCtx := appctx.New(cfg, logger, db)
	appCtx.Logger.Info("database ready", zap.String("addr", cfg.Server.HTTPAddr))

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metricsRegistry := metrics.NewRegistry(reg)

	signals := signalstore.NewStore(db, logger)
	ingestStore := ingest.NewStore(db, logger)
	emrStore := emr.NewStore(db, logger)
	orchestratorStore := orchestrator.NewStore(db, logger)
	paramStore := parameters.NewStore(db, logger)
	setupStore := parameters.NewSetupStore(db, logger)
	outputStore := output.NewStore(db, logger)
	preferences := jobsup.NewPreferences(db, logger)

	fieldLayout, err := parameters.NewFieldLayout(cfg.SetupLayoutPath, true, logger)
	if err != nil {
		logger.Fatal("load setup field layout", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	overrideTracker := parameters.NewOverrideTracker(redisClient)
	surface := parameters.NewSurface(fieldLayout, setupStore, paramStore, overrideTracker)

	parser := payload.NewParser(logger)

	emrMappings := make([]emr.KeyMapping, 0, len(cfg.EMR.KeyMappings))
	for _, m := range cfg.EMR.KeyMappings {
		emrMappings = append(emrMappings, emr.KeyMapping{PowerKey: m.PowerKey, EmrKey: m.EmrKey})
	}
	emrIntegrator := emr.NewIntegrator(emr.Envelopes{
		PowerMaxW:   cfg.EMR.PowerMaxW,
		PVMaxW:      cfg.EMR.PVMaxW,
		HouseMaxW:   cfg.EMR.HouseMaxW,
		GridMaxW:    cfg.EMR.GridMaxW,
		BatteryMaxW: cfg.EMR.BatteryMaxW,
	}, cfg.EMR.DeltaMinSeconds, cfg.EMR.DeltaMaxSeconds, cfg.EMR.GridConflictThresholdW, logger)
	emrPipeline := emr.NewPipeline(emrStore, emrIntegrator, emrMappings, metricsRegistry, logger)

	ingestPipeline := ingest.NewPipeline(ingestStore, signals, parser, emrPipeline, metricsRegistry, logger)

	eosClient := orchestrator.NewEOSClient(cfg.EOS.BaseURL, eosClientTimeout, eosClientConsecutiveFailures, eosClientOpenTimeout, logger)
	engine := orchestrator.NewEngine(orchestratorStore, eosClient, orchestrator.NoGridChargeGuardSettings{
		Enabled:    cfg.EOS.NoGridChargeGuardEnabled,
		ThresholdW: cfg.EOS.NoGridChargeGuardThresholdW,
	}, metricsRegistry, logger)

	router := httpapi.NewRouter(httpapi.Deps{
		Config:          cfg,
		Logger:          logger,
		Metrics:         metricsRegistry,
		Signals:         signals,
		EMR:             emrStore,
		IngestStore:     ingestStore,
		IngestPipeline:  ingestPipeline,
		ParamSurface:    surface,
		FieldLayout:     fieldLayout,
		OrchestratorRun: orchestratorStore,
		OutputStore:     outputStore,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rollupSupervisor := jobsup.NewSupervisor("rollup", cfg.RollupJobInterval(), time.Second, func(tickCtx context.Context) error {
		snapshot, err := signals.RunRollupJob(tickCtx)
		if snapshot.FinishedAt.Valid {
			metricsRegistry.RollupJobDuration.Observe(snapshot.FinishedAt.Time.Sub(snapshot.StartedAt).Seconds())
		}
		metricsRegistry.RollupJobAffectedRows.Add(float64(snapshot.AffectedRows))
		return err
	}, logger)

	retentionSettings := signalstore.DefaultRetentionSettings()
	retentionSettings.RawMaxAge = time.Duration(cfg.Data.RawRetentionDays) * 24 * time.Hour
	retentionSettings.Rollup5mMaxAge = time.Duration(cfg.Data.Rollup5mRetentionDays) * 24 * time.Hour
	retentionSettings.Rollup1hMaxAge = time.Duration(cfg.Data.Rollup1hRetentionDays) * 24 * time.Hour
	retentionSettings.Rollup1dMaxAge = time.Duration(cfg.Data.Rollup1dRetentionDays) * 24 * time.Hour
	retentionSupervisor := jobsup.NewSupervisor("retention", cfg.RetentionJobInterval(), time.Second, func(tickCtx context.Context) error {
		snapshot, err := signals.RunRetentionJob(tickCtx, retentionSettings)
		if snapshot.FinishedAt.Valid {
			metricsRegistry.RetentionJobDuration.Observe(snapshot.FinishedAt.Time.Sub(snapshot.StartedAt).Seconds())
		}
		// retentionOnce reports one combined total across all tiers pruned in
		// this run; per-tier breakdown isn't in JobRunSnapshot, so the whole
		// run's rows are attributed to a single "all" label.
		metricsRegistry.RetentionRowsDeleted.WithLabelValues("all").Add(float64(snapshot.AffectedRows))
		return err
	}, logger)

	src := snapshotSources{
		profiles:      paramStore,
		surface:       surface,
		mappings:      ingestStore,
		signals:       signals,
		gridSignalKey: cfg.EOS.GridPowerSignalKey,
	}
	schedulerSupervisor := jobsup.NewSupervisor("aligned_scheduler", time.Duration(cfg.EOS.AlignedSchedulerBaseIntervalSecs)*time.Second, time.Second, func(tickCtx context.Context) error {
		if !cfg.EOS.AlignedSchedulerEnabled {
			return nil
		}
		enabled, err := preferences.GetBool(tickCtx, jobsup.PreferenceAutoRunPreset, true)
		if err != nil {
			return err
		}
		if !enabled {
			return nil
		}
		minutes := cfg.EOS.AlignedSchedulerMinutes
		delay := time.Duration(cfg.EOS.AlignedSchedulerDelaySeconds) * time.Second
		next := orchestrator.NextAlignedTrigger(time.Now(), minutes, delay)
		if time.Now().Before(next.Add(-time.Second)) {
			return nil
		}
		snapshot, err := buildSnapshot(tickCtx, src)
		if err != nil {
			return err
		}
		_, err = engine.TriggerAlignedRun(tickCtx, snapshot)
		return err
	}, logger)

	rollupSupervisor.Start(ctx)
	retentionSupervisor.Start(ctx)
	schedulerSupervisor.Start(ctx)

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	rollupSupervisor.Stop()
	retentionSupervisor.Stop()
	schedulerSupervisor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("redis client close", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
