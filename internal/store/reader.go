package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"esg-go-api/internal/models"
	"esg-go-api/internal/units"
)

// Reader pages through raw metric rows and aggregates them per
// (metric, site, month) in canonical units.
type Reader struct {
	source     PageSource
	normalizer *units.Normalizer
	pageSize   int
}

// NewReader creates a Reader; pageSize <= 0 uses DefaultPageSize.
func NewReader(source PageSource, normalizer *units.Normalizer, pageSize int) *Reader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Reader{source: source, normalizer: normalizer, pageSize: pageSize}
}

// Monthly is the aggregated history of a read. Metrics with any invalid row
// are left out of Records and reported in Invalid.
type Monthly struct {
	Records []models.MetricRecord
	Invalid map[string]error
}

// ForMetric returns the records of one metric
func (m *Monthly) ForMetric(metricID string) []models.MetricRecord {
	var out []models.MetricRecord
	for _, r := range m.Records {
		if r.MetricID == metricID {
			out = append(out, r)
		}
	}
	return out
}

// FetchMonthlyMetrics reads every page of the filtered history. An empty
// range is not an error.
func (r *Reader) FetchMonthlyMetrics(ctx context.Context, orgID string, f MetricFilter) (*Monthly, error) {
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return nil, eris.Errorf("store: start date %s after end date %s",
			f.StartDate.Format(time.DateOnly), f.EndDate.Format(time.DateOnly))
	}

	var raw []RawMetricRow
	pages := 0
	for offset := 0; ; offset += r.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := r.source.FetchRawPage(ctx, orgID, f, r.pageSize, offset)
		if err != nil {
			return nil, err
		}
		pages++
		raw = append(raw, page...)
		if len(page) < r.pageSize {
			break
		}
	}

	zap.L().Debug("metric history read",
		zap.String("organization_id", orgID),
		zap.Int("rows", len(raw)),
		zap.Int("pages", pages),
	)
	return Aggregate(orgID, raw, r.normalizer), nil
}

type monthKey struct {
	metric string
	site   string
	month  time.Time
}

type monthAcc struct {
	value     float64
	unit      string
	allKnown  bool
	fractions map[models.Carrier]float64
}

// Aggregate normalizes raw rows and sums them per (metric, site, month).
func Aggregate(orgID string, rows []RawMetricRow, normalizer *units.Normalizer) *Monthly {
	out := &Monthly{Invalid: make(map[string]error)}
	acc := make(map[monthKey]*monthAcc)

	for _, row := range rows {
		value, err := normalizer.Normalize(row.Value, row.Unit, row.Family)
		if err != nil {
			if _, seen := out.Invalid[row.MetricID]; !seen {
				out.Invalid[row.MetricID] = eris.Wrapf(err, "store: row %s", row.ID)
			}
			continue
		}

		k := monthKey{metric: row.MetricID, site: row.SiteID, month: models.MonthStart(row.PeriodStart)}
		a, ok := acc[k]
		if !ok {
			unit := units.CanonicalUnit(row.Family)
			if unit == "" {
				unit = row.Unit
			}
			a = &monthAcc{unit: unit, allKnown: true, fractions: make(map[models.Carrier]float64)}
			acc[k] = a
		}
		a.value += value

		b := ParseBreakdown(row.Metadata)
		if !b.IsKnown() {
			a.allKnown = false
			continue
		}
		total := 0.0
		for _, f := range b.Fractions {
			total += f
		}
		if total <= 0 {
			a.allKnown = false
			continue
		}
		for c, f := range b.Fractions {
			a.fractions[c] += value * f / total
		}
	}

	for k, a := range acc {
		if _, bad := out.Invalid[k.metric]; bad {
			continue
		}
		breakdown := models.UnknownBreakdown()
		if a.allKnown && a.value > 0 {
			fractions := make(map[models.Carrier]float64, len(a.fractions))
			for c, v := range a.fractions {
				fractions[c] = v / a.value
			}
			breakdown = models.KnownBreakdown(fractions)
		}
		out.Records = append(out.Records, models.MetricRecord{
			OrganizationID:  orgID,
			SiteID:          k.site,
			MetricID:        k.metric,
			PeriodStart:     k.month,
			PeriodEnd:       models.MonthEnd(k.month),
			Value:           a.value,
			Unit:            a.unit,
			SourceBreakdown: breakdown,
		})
	}

	sort.Slice(out.Records, func(i, j int) bool {
		a, b := out.Records[i], out.Records[j]
		if a.MetricID != b.MetricID {
			return a.MetricID < b.MetricID
		}
		if a.SiteID != b.SiteID {
			return a.SiteID < b.SiteID
		}
		return a.PeriodStart.Before(b.PeriodStart)
	})
	return out
}

type rowMetadata struct {
	SourceBreakdown map[string]float64 `json:"source_breakdown"`
	GridMix         *struct {
		RenewablePercentage *float64 `json:"renewable_percentage"`
	} `json:"grid_mix"`
}

// ParseBreakdown reads the carrier mix from a row's metadata. Two shapes are
// accepted: {"source_breakdown": {carrier: fraction}} and
// {"grid_mix": {"renewable_percentage": p}}. Anything else is Unknown.
func ParseBreakdown(metadata []byte) models.SourceBreakdown {
	if len(metadata) == 0 {
		return models.UnknownBreakdown()
	}
	var md rowMetadata
	if err := json.Unmarshal(metadata, &md); err != nil {
		return models.UnknownBreakdown()
	}

	if len(md.SourceBreakdown) > 0 {
		fractions := make(map[models.Carrier]float64, len(md.SourceBreakdown))
		for k, v := range md.SourceBreakdown {
			if err := units.ValidateValue("fraction", v); err != nil {
				return models.UnknownBreakdown()
			}
			fractions[models.Carrier(k)] = v
		}
		return models.KnownBreakdown(fractions)
	}

	if md.GridMix != nil && md.GridMix.RenewablePercentage != nil {
		p := *md.GridMix.RenewablePercentage
		if p < 0 || p > 100 {
			return models.UnknownBreakdown()
		}
		return models.KnownBreakdown(map[models.Carrier]float64{
			models.CarrierRenewable: p / 100,
			models.CarrierFossil:    1 - p/100,
		})
	}
	return models.UnknownBreakdown()
}
