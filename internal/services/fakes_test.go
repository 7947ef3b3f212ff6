package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"esg-go-api/internal/models"
	"esg-go-api/internal/resilience"
	"esg-go-api/internal/store"
	"esg-go-api/internal/units"
	"esg-go-api/pkg/prophet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeStore serves raw rows page by page the way the hosted store does.
type fakeStore struct {
	rows     []store.RawMetricRow
	catalog  []models.MetricCatalogEntry
	rates    map[string]float64
	fetchErr error
	rateErr  error
	pages    int
}

func (f *fakeStore) FetchRawPage(_ context.Context, _ string, flt store.MetricFilter, limit, offset int) ([]store.RawMetricRow, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.pages++
	var matched []store.RawMetricRow
	for _, r := range f.rows {
		if len(flt.MetricIDs) > 0 && !slices.Contains(flt.MetricIDs, r.MetricID) {
			continue
		}
		if flt.SiteID != "" && r.SiteID != flt.SiteID {
			continue
		}
		if !flt.StartDate.IsZero() && r.PeriodStart.Before(flt.StartDate) {
			continue
		}
		if !flt.EndDate.IsZero() && r.PeriodStart.After(flt.EndDate) {
			continue
		}
		matched = append(matched, r)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}

func (f *fakeStore) ListCatalog(_ context.Context, _ string, categories []string) ([]models.MetricCatalogEntry, error) {
	var out []models.MetricCatalogEntry
	for _, e := range f.catalog {
		if slices.Contains(categories, e.Category) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCatalogEntry(_ context.Context, metricID string) (*models.MetricCatalogEntry, error) {
	for _, e := range f.catalog {
		if e.ID == metricID {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CategoryReductionRates(_ context.Context, _ string, categories []string) (map[string]float64, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	out := make(map[string]float64)
	for _, c := range categories {
		if r, ok := f.rates[c]; ok {
			out[c] = r
		}
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// addMonths appends one row per month starting at (year, month).
func (f *fakeStore) addMonths(metricID string, year int, month time.Month, values ...float64) {
	for i, v := range values {
		start := time.Date(year, month+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		f.rows = append(f.rows, store.RawMetricRow{
			ID:          fmt.Sprintf("%s-%d", metricID, len(f.rows)),
			MetricID:    metricID,
			PeriodStart: start,
			PeriodEnd:   models.MonthEnd(start),
			Value:       v,
			Unit:        "MWh",
			Family:      models.FamilyEnergy,
		})
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func electricity(id string) models.MetricCatalogEntry {
	return models.MetricCatalogEntry{
		ID:       id,
		Name:     "Grid electricity " + id,
		Category: "Electricity",
		Scope:    models.Scope2,
		Unit:     "MWh",
		Family:   models.FamilyEnergy,
	}
}

type fakePredictor struct {
	mu    sync.Mutex
	calls int
	fn    func(req prophet.PredictRequest) (*prophet.PredictResponse, error)
}

func (p *fakePredictor) Predict(_ context.Context, req prophet.PredictRequest) (*prophet.PredictResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(req)
}

func (p *fakePredictor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// flatPrediction answers every request with value per month and +/- spread.
func flatPrediction(value, spread float64) func(prophet.PredictRequest) (*prophet.PredictResponse, error) {
	return func(req prophet.PredictRequest) (*prophet.PredictResponse, error) {
		resp := &prophet.PredictResponse{Method: "prophet"}
		for i := 0; i < req.MonthsToForecast; i++ {
			resp.Forecasted = append(resp.Forecasted, value)
			resp.Confidence.Lower = append(resp.Confidence.Lower, value-spread)
			resp.Confidence.Upper = append(resp.Confidence.Upper, value+spread)
		}
		resp.Metadata.Yearly = 1.5
		resp.Metadata.DataPoints = len(req.HistoricalData)
		return resp, nil
	}
}

func testPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Deadline:       time.Second,
	}
}

func newMetricData(fs *fakeStore, pageSize int) *MetricDataService {
	reader := store.NewReader(fs, units.NewNormalizer(zap.NewNop()), pageSize)
	return NewMetricDataService(fs, reader, time.Minute)
}
