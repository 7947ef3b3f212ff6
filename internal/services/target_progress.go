package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"esg-go-api/internal/emissions"
	"esg-go-api/internal/models"
	"esg-go-api/internal/store"
	"esg-go-api/internal/targets"
)

// Soft-empty messages of the targets endpoint
const (
	MessageNoReductionRates = "No reduction targets are configured for the requested categories"
	MessageNoMetrics        = "No metrics with data were found for the requested categories"
)

// PipelineOptions tunes TargetProgressService
type PipelineOptions struct {
	MaxConcurrentMetrics int
	// HistoryYears of actuals before the evaluation year feed the forecaster.
	HistoryYears int
}

// TargetProgressService computes per-metric progress against category
// reduction targets.
type TargetProgressService struct {
	metricData *MetricDataService
	forecaster *ForecastOrchestrator
	converter  *emissions.Converter
	classifier *targets.Classifier
	opts       PipelineOptions
	now        func() time.Time
}

func NewTargetProgressService(
	metricData *MetricDataService,
	forecaster *ForecastOrchestrator,
	converter *emissions.Converter,
	classifier *targets.Classifier,
	opts PipelineOptions,
) *TargetProgressService {
	if opts.MaxConcurrentMetrics <= 0 {
		opts.MaxConcurrentMetrics = 8
	}
	if opts.HistoryYears <= 0 {
		opts.HistoryYears = 3
	}
	return &TargetProgressService{
		metricData: metricData,
		forecaster: forecaster,
		converter:  converter,
		classifier: classifier,
		opts:       opts,
		now:        time.Now,
	}
}

// ByCategory runs the pipeline for every metric of the requested categories.
// Metrics with invalid values are left out with a warning. Store failures and
// an expired ctx fail the whole request so no partial mix is returned.
func (s *TargetProgressService) ByCategory(ctx context.Context, req models.TargetsRequest) (*models.TargetsResponse, error) {
	if req.EvaluationYear == 0 {
		req.EvaluationYear = s.now().UTC().Year()
	}
	if err := (models.Target{BaselineYear: req.BaselineYear, TargetYear: req.TargetYear}).Validate(); err != nil {
		return nil, err
	}
	if len(req.Categories) == 0 {
		return nil, &models.InvalidValueError{Field: "categories", Reason: "at least one category is required"}
	}

	resp := &models.TargetsResponse{
		Data:     []models.ProgressResult{},
		Warnings: []string{},
		Metadata: models.TargetsMetadata{
			OrganizationID: req.OrganizationID,
			BaselineYear:   req.BaselineYear,
			TargetYear:     req.TargetYear,
			EvaluationYear: req.EvaluationYear,
			GeneratedAt:    s.now().UTC(),
		},
	}

	rates, err := s.metricData.ReductionRates(ctx, req.OrganizationID, req.Categories)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		resp.Message = MessageNoReductionRates
		return resp, nil
	}
	var categories []string
	for _, c := range req.Categories {
		if _, ok := rates[c]; ok {
			categories = append(categories, c)
		} else {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("category %q has no reduction rate configured", c))
		}
	}

	catalog, err := s.metricData.Catalog(ctx, req.OrganizationID, categories)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		resp.Message = MessageNoMetrics
		return resp, nil
	}

	metricIDs := make([]string, len(catalog))
	for i, e := range catalog {
		metricIDs[i] = e.ID
	}
	firstYear := min(req.BaselineYear, req.EvaluationYear-s.opts.HistoryYears)
	hist, err := s.metricData.History(ctx, req.OrganizationID, store.MetricFilter{
		SiteID:    req.SiteID,
		MetricIDs: metricIDs,
		StartDate: time.Date(firstYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(req.EvaluationYear, time.December, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}

	results := make([]*models.ProgressResult, len(catalog))
	var mu sync.Mutex
	warn := func(entry models.MetricCatalogEntry, err error) {
		zap.L().Warn("metric excluded from target progress",
			zap.String("organization_id", req.OrganizationID),
			zap.String("metric_id", entry.ID),
			zap.Error(err),
		)
		mu.Lock()
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("%s excluded: %v", entry.Name, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrentMetrics)
	for i, entry := range catalog {
		if bad, ok := hist.Invalid[entry.ID]; ok {
			warn(entry, bad)
			continue
		}
		g.Go(func() error {
			res, err := s.computeMetric(gctx, req, entry, rates[entry.Category], hist.ForMetric(entry.ID))
			if err != nil {
				if isMetricLevel(err) {
					warn(entry, err)
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "services: target progress")
	}

	for _, r := range results {
		if r != nil {
			resp.Data = append(resp.Data, *r)
		}
	}
	sort.Strings(resp.Warnings)
	if len(resp.Data) == 0 && resp.Message == "" {
		resp.Message = MessageNoMetrics
	}
	return resp, nil
}

// errNoBaseline excludes metrics without actuals in the baseline year
var errNoBaseline = eris.New("no data in baseline year")

func isMetricLevel(err error) bool {
	var ive *models.InvalidValueError
	return errors.As(err, &ive) || errors.Is(err, errNoBaseline)
}

type monthTotals struct {
	value     float64
	emissions float64
}

func (s *TargetProgressService) computeMetric(
	ctx context.Context,
	req models.TargetsRequest,
	entry models.MetricCatalogEntry,
	rate float64,
	records []models.MetricRecord,
) (*models.ProgressResult, error) {
	months := make(map[time.Time]*monthTotals)
	for _, r := range records {
		e, err := s.converter.ToEmissions(r.Value, entry, r.SourceBreakdown)
		if err != nil {
			return nil, err
		}
		m := models.MonthStart(r.PeriodStart)
		t, ok := months[m]
		if !ok {
			t = &monthTotals{}
			months[m] = t
		}
		t.value += r.Value
		t.emissions += e
	}

	res := &models.ProgressResult{
		MetricID:   entry.ID,
		MetricName: entry.Name,
		Category:   entry.Category,
		Scope:      entry.Scope,
		Unit:       entry.Unit,
	}

	hasBaseline := false
	for m, t := range months {
		if m.Year() == req.BaselineYear {
			hasBaseline = true
			res.BaselineValue += t.value
			res.BaselineEmissions += t.emissions
		}
		if m.Year() == req.EvaluationYear {
			res.MonthsWithData++
			res.CurrentValue += t.value
			res.CurrentEmissions += t.emissions
		}
	}
	if !hasBaseline {
		return nil, errNoBaseline
	}

	// Actuals up to the last observed month feed the forecaster; the rest
	// of the evaluation year is projected.
	series := MonthlySeries(records)
	last := series[len(series)-1].Month
	yearEnd := time.Date(req.EvaluationYear, time.December, 1, 0, 0, 0, 0, time.UTC)
	horizon := 0
	if last.Before(yearEnd) {
		horizon = (yearEnd.Year()-last.Year())*12 + int(yearEnd.Month()) - int(last.Month())
	}

	method := models.MethodLinearRunRate
	res.ProjectedAnnualValue = res.CurrentValue
	res.ProjectedAnnualEmissions = res.CurrentEmissions
	if horizon > 0 {
		fc, err := s.forecaster.Forecast(ctx, ForecastInput{
			OrganizationID: req.OrganizationID,
			Entry:          entry,
			History:        series,
			Horizon:        horizon,
		})
		if err != nil {
			return nil, err
		}
		method = fc.Method
		breakdown := LatestKnownBreakdown(records)
		for _, p := range fc.Points {
			if p.Month.Year() != req.EvaluationYear {
				continue
			}
			e, err := s.converter.ToEmissions(p.PointEstimate, entry, breakdown)
			if err != nil {
				return nil, err
			}
			res.ProjectedAnnualValue += p.PointEstimate
			res.ProjectedAnnualEmissions += e
		}
	}
	res.ForecastMethod = method.Reported()

	var err error
	if res.TargetEmissionsForYear, err = targets.ComputeTarget(res.BaselineEmissions, rate, req.BaselineYear, req.TargetYear, req.EvaluationYear); err != nil {
		return nil, err
	}
	if res.TargetEmissions, err = targets.ComputeTarget(res.BaselineEmissions, rate, req.BaselineYear, req.TargetYear, req.TargetYear); err != nil {
		return nil, err
	}
	if res.TargetValue, err = targets.ComputeTarget(res.BaselineValue, rate, req.BaselineYear, req.TargetYear, req.TargetYear); err != nil {
		return nil, err
	}

	c := s.classifier.Classify(res.ProjectedAnnualEmissions, res.TargetEmissionsForYear)
	res.Progress = models.Progress{
		ReductionNeededPercent:   targets.ReductionNeededPercent(res.BaselineEmissions, res.TargetEmissionsForYear),
		ReductionAchievedPercent: targets.ReductionAchievedPercent(res.BaselineEmissions, res.CurrentEmissions),
		TrajectoryStatus:         c.Status,
		ExceedancePercent:        c.ExceedancePercent,
	}
	return res, nil
}
