package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"esg-go-api/internal/config"
	"esg-go-api/internal/emissions"
	"esg-go-api/internal/resilience"
	"esg-go-api/internal/services"
	"esg-go-api/internal/store"
	"esg-go-api/internal/targets"
	"esg-go-api/internal/units"
	"esg-go-api/pkg/prophet"
)

// pipelineEnv holds everything the commands share
type pipelineEnv struct {
	Pool       *pgxpool.Pool
	Prophet    *prophet.Client
	Cache      *services.CacheService
	MetricData *services.MetricDataService
	Forecaster *services.ForecastOrchestrator
	Progress   *services.TargetProgressService
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	pool, err := store.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}

	env := buildPipeline(cfg, store.NewPostgresStore(pool), services.NewCacheService(
		services.OpenFirestore(ctx, cfg.Cache.FirestoreProject),
		cfg.Cache.TTL(),
	))
	env.Pool = pool

	zap.L().Info("pipeline ready",
		zap.String("environment", cfg.Server.Environment),
		zap.Bool("forecast_service", env.Prophet != nil),
		zap.Bool("firestore_cache", cfg.Cache.FirestoreProject != ""),
	)
	return env, nil
}

func buildPipeline(c *config.Config, metricStore store.MetricStore, cache *services.CacheService) *pipelineEnv {
	env := &pipelineEnv{Cache: cache}

	var predictor services.Predictor
	if c.Forecast.ServiceURL != "" {
		env.Prophet = prophet.NewClient(c.Forecast.ServiceURL, c.Forecast.Timeout(), c.Forecast.RatePerSec)
		predictor = env.Prophet
	}

	reader := store.NewReader(metricStore, units.NewNormalizer(zap.L()), c.Store.PageSize)
	env.MetricData = services.NewMetricDataService(metricStore, reader, c.Cache.TTL())
	env.Forecaster = services.NewForecastOrchestrator(env.MetricData, predictor, cache, forecastPolicy(c.Forecast), c.Pipeline.HistoryYears)
	env.Progress = services.NewTargetProgressService(
		env.MetricData,
		env.Forecaster,
		emissions.NewConverter(factorTable(c.Emissions), zap.L()),
		targets.NewClassifier(thresholds(c.Trajectory)),
		services.PipelineOptions{
			MaxConcurrentMetrics: c.Pipeline.MaxConcurrentMetrics,
			HistoryYears:         c.Pipeline.HistoryYears,
		},
	)
	return env
}

func forecastPolicy(c config.ForecastConfig) resilience.Policy {
	p := resilience.DefaultPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMS > 0 {
		p.InitialBackoff = c.InitialBackoff()
	}
	if c.TimeoutSecs > 0 {
		p.Deadline = c.Timeout()
	}
	return p
}

func factorTable(c config.EmissionsConfig) emissions.FactorTable {
	return emissions.FactorTable{
		RenewableKgPerKWh: c.RenewableKgPerKWh,
		FossilKgPerKWh:    c.FossilKgPerKWh,
	}
}

func thresholds(c config.TrajectoryConfig) targets.Thresholds {
	return targets.Thresholds{
		OnTrackMax: c.AtRiskPct,
		AtRiskMax:  c.OffTrackPct,
	}
}

func (e *pipelineEnv) Close() {
	if e.MetricData != nil {
		e.MetricData.Close()
	}
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}
