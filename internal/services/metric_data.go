package services

import (
	"context"
	"sort"
	"time"

	"esg-go-api/internal/models"
	"esg-go-api/internal/store"
)

// MetricDataService reads metric history and reference data from the store.
type MetricDataService struct {
	store        store.MetricStore
	reader       *store.Reader
	catalogCache *Cache[string, models.MetricCatalogEntry]
}

func NewMetricDataService(s store.MetricStore, reader *store.Reader, catalogTTL time.Duration) *MetricDataService {
	if catalogTTL <= 0 {
		catalogTTL = 10 * time.Minute
	}
	return &MetricDataService{
		store:        s,
		reader:       reader,
		catalogCache: NewCache[string, models.MetricCatalogEntry](catalogTTL),
	}
}

// History returns aggregated monthly records for the filter, every page read.
func (s *MetricDataService) History(ctx context.Context, orgID string, f store.MetricFilter) (*store.Monthly, error) {
	return s.reader.FetchMonthlyMetrics(ctx, orgID, f)
}

// Catalog lists catalog entries of the categories that have data for orgID.
func (s *MetricDataService) Catalog(ctx context.Context, orgID string, categories []string) ([]models.MetricCatalogEntry, error) {
	entries, err := s.store.ListCatalog(ctx, orgID, categories)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		s.catalogCache.Set(e.ID, e)
	}
	return entries, nil
}

// CatalogEntry returns one catalog entry, or nil when it does not exist.
func (s *MetricDataService) CatalogEntry(ctx context.Context, metricID string) (*models.MetricCatalogEntry, error) {
	if e, ok := s.catalogCache.Get(metricID); ok {
		return &e, nil
	}
	e, err := s.store.GetCatalogEntry(ctx, metricID)
	if err != nil || e == nil {
		return e, err
	}
	s.catalogCache.Set(metricID, *e)
	return e, nil
}

// ReductionRates returns the configured annual reduction rate per category.
func (s *MetricDataService) ReductionRates(ctx context.Context, orgID string, categories []string) (map[string]float64, error) {
	return s.store.CategoryReductionRates(ctx, orgID, categories)
}

// Ping checks the store
func (s *MetricDataService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close stops the catalog cache sweeper
func (s *MetricDataService) Close() {
	s.catalogCache.Close()
}

// MonthlySeries sums records across sites into one value per month, oldest
// first.
func MonthlySeries(records []models.MetricRecord) []models.MonthlyValue {
	byMonth := make(map[time.Time]float64)
	for _, r := range records {
		byMonth[models.MonthStart(r.PeriodStart)] += r.Value
	}
	out := make([]models.MonthlyValue, 0, len(byMonth))
	for m, v := range byMonth {
		out = append(out, models.MonthlyValue{Month: m, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// LatestKnownBreakdown returns the breakdown of the most recent record that
// has one, or Unknown.
func LatestKnownBreakdown(records []models.MetricRecord) models.SourceBreakdown {
	var latest *models.MetricRecord
	for i := range records {
		r := &records[i]
		if !r.SourceBreakdown.IsKnown() {
			continue
		}
		if latest == nil || r.PeriodStart.After(latest.PeriodStart) {
			latest = r
		}
	}
	if latest == nil {
		return models.UnknownBreakdown()
	}
	return latest.SourceBreakdown
}
