package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"esg-go-api/internal/forecast"
	"esg-go-api/internal/models"
	"esg-go-api/internal/resilience"
	"esg-go-api/internal/store"
	"esg-go-api/pkg/prophet"
)

// ErrMetricNotFound is returned for a metric id missing from the catalog
var ErrMetricNotFound = eris.New("metric not found")

// Predictor is the external seasonal forecast service
type Predictor interface {
	Predict(ctx context.Context, req prophet.PredictRequest) (*prophet.PredictResponse, error)
}

// ForecastOrchestrator picks a forecast method per metric and runs it. The
// external service is an optional accelerator: without it, or when it fails,
// the local forecaster answers.
type ForecastOrchestrator struct {
	metricData   *MetricDataService
	predictor    Predictor
	cache        *CacheService
	policy       resilience.Policy
	historyYears int
	now          func() time.Time
}

// NewForecastOrchestrator creates an orchestrator. predictor and cache may
// be nil.
func NewForecastOrchestrator(metricData *MetricDataService, predictor Predictor, cache *CacheService, policy resilience.Policy, historyYears int) *ForecastOrchestrator {
	if historyYears <= 0 {
		historyYears = 3
	}
	return &ForecastOrchestrator{
		metricData:   metricData,
		predictor:    predictor,
		cache:        cache,
		policy:       policy,
		historyYears: historyYears,
		now:          time.Now,
	}
}

// ForecastInput is one series to project
type ForecastInput struct {
	OrganizationID string
	Entry          models.MetricCatalogEntry
	History        []models.MonthlyValue
	// Start is the first forecast month; zero means the month after history.
	Start   time.Time
	Horizon int
}

// Forecast projects one metric. Only cancellation of ctx is returned as an
// error; a failing external service degrades that metric to the linear
// run-rate.
func (o *ForecastOrchestrator) Forecast(ctx context.Context, in ForecastInput) (models.ForecastResult, error) {
	series := forecast.Series(in.History)
	if o.predictor == nil || len(series) < prophet.MinHistory || in.Horizon <= 0 {
		return forecast.Forecast(series, in.Start, in.Horizon), nil
	}

	res, err := o.external(ctx, in, series)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.ForecastResult{}, eris.Wrap(ctxErr, "services: forecast cancelled")
	}

	zap.L().Warn("external forecast failed, using linear run-rate",
		zap.String("organization_id", in.OrganizationID),
		zap.String("metric_id", in.Entry.ID),
		zap.Int("history_months", len(series)),
		zap.Error(err),
	)
	return forecast.LinearRunRate(series, in.Start, in.Horizon), nil
}

func (o *ForecastOrchestrator) external(ctx context.Context, in ForecastInput, series []models.MonthlyValue) (models.ForecastResult, error) {
	last := series[len(series)-1].Month
	first := last.AddDate(0, 1, 0)
	start := first
	if !in.Start.IsZero() && models.MonthStart(in.Start).After(last) {
		start = models.MonthStart(in.Start)
	}
	skip := forecast.MonthsBetween(first, start)

	req := prophet.PredictRequest{
		Domain:           domainFor(in.Entry.Family),
		OrganizationID:   in.OrganizationID,
		HistoricalData:   make([]prophet.HistoricalDataPoint, len(series)),
		MonthsToForecast: skip + in.Horizon,
	}
	for i, mv := range series {
		req.HistoricalData[i] = prophet.HistoricalDataPoint{
			Date:  mv.Month.Format(time.DateOnly),
			Value: mv.Value,
		}
	}

	cacheKey := generateCacheKey(req)
	if o.cache != nil {
		if cached, found := o.cache.GetForecast(ctx, cacheKey); found {
			return cached, nil
		}
	}

	policy := o.policy
	policy.OnRetry = resilience.LogRetry("forecast-service", zap.String("metric_id", in.Entry.ID))
	resp, err := resilience.Call(ctx, policy, func(ctx context.Context) (*prophet.PredictResponse, error) {
		return o.predictor.Predict(ctx, req)
	})
	if err != nil {
		return models.ForecastResult{}, &models.ForecastServiceUnavailableError{Err: err}
	}

	res, err := toForecastResult(resp, start, skip, in.Horizon)
	if err != nil {
		return models.ForecastResult{}, err
	}
	res.Trend = forecast.Trend(series)
	if res.ModelQuality.SampleSize == 0 {
		res.ModelQuality.SampleSize = len(series)
	}

	if o.cache != nil {
		if err := o.cache.SetForecast(ctx, cacheKey, res); err != nil {
			zap.L().Warn("failed to cache forecast", zap.String("metric_id", in.Entry.ID), zap.Error(err))
		}
	}
	return res, nil
}

// toForecastResult keeps the last horizon points of resp. Bounds are
// reordered around the point estimate and everything is clamped at zero.
func toForecastResult(resp *prophet.PredictResponse, start time.Time, skip, horizon int) (models.ForecastResult, error) {
	want := skip + horizon
	if len(resp.Forecasted) != want || len(resp.Confidence.Lower) != want || len(resp.Confidence.Upper) != want {
		return models.ForecastResult{}, &models.ForecastServiceUnavailableError{
			Err: eris.Errorf("services: forecast service returned %d points (%d lower, %d upper), want %d",
				len(resp.Forecasted), len(resp.Confidence.Lower), len(resp.Confidence.Upper), want),
		}
	}

	points := make([]models.ForecastPoint, horizon)
	for h := range points {
		i := skip + h
		est := math.Max(0, resp.Forecasted[i])
		lo := math.Min(resp.Confidence.Lower[i], resp.Confidence.Upper[i])
		hi := math.Max(resp.Confidence.Lower[i], resp.Confidence.Upper[i])
		month := start.AddDate(0, h, 0)
		points[h] = models.ForecastPoint{
			MonthKey:      models.MonthKey(month),
			Month:         month,
			PointEstimate: est,
			LowerBound:    math.Max(0, math.Min(lo, est)),
			UpperBound:    math.Max(hi, est),
			IsForecast:    true,
		}
	}

	return models.ForecastResult{
		Points:              points,
		SeasonalityDetected: resp.Metadata.Yearly != 0,
		ModelQuality: models.ModelQuality{
			SampleSize:     resp.Metadata.DataPoints,
			ResidualStdDev: resp.Metadata.HistoricalStd,
		},
		Method: models.MethodSeasonalDecomposition,
	}, nil
}

// MetricForecastRequest asks for a forecast of one metric's recent history
type MetricForecastRequest struct {
	OrganizationID string
	SiteID         string
	MetricID       string
	Months         int
}

// GenerateForecast reads a metric's recent history and projects the next
// req.Months months.
func (o *ForecastOrchestrator) GenerateForecast(ctx context.Context, req MetricForecastRequest) (*models.MetricForecastResponse, error) {
	entry, err := o.metricData.CatalogEntry(ctx, req.MetricID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, eris.Wrapf(ErrMetricNotFound, "services: metric %s", req.MetricID)
	}

	now := o.now().UTC()
	hist, err := o.metricData.History(ctx, req.OrganizationID, store.MetricFilter{
		SiteID:    req.SiteID,
		MetricIDs: []string{req.MetricID},
		StartDate: time.Date(now.Year()-o.historyYears, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   now,
	})
	if err != nil {
		return nil, err
	}
	if bad, ok := hist.Invalid[req.MetricID]; ok {
		return nil, bad
	}

	series := MonthlySeries(hist.ForMetric(req.MetricID))
	res, err := o.Forecast(ctx, ForecastInput{
		OrganizationID: req.OrganizationID,
		Entry:          *entry,
		History:        series,
		Start:          models.MonthStart(now).AddDate(0, 1, 0),
		Horizon:        req.Months,
	})
	if err != nil {
		return nil, err
	}

	return &models.MetricForecastResponse{
		MetricID:    entry.ID,
		Unit:        entry.Unit,
		History:     series,
		Forecast:    res,
		Method:      res.Method.Reported(),
		GeneratedAt: now,
	}, nil
}

// Helper functions

func domainFor(family models.UnitFamily) string {
	switch family {
	case models.FamilyEnergy:
		return "energy"
	case models.FamilyWater:
		return "water"
	case models.FamilyMass:
		return "waste"
	default:
		return "emissions"
	}
}

func generateCacheKey(req prophet.PredictRequest) string {
	body, _ := json.Marshal(req)
	return fmt.Sprintf("%x", md5.Sum(body))
}
