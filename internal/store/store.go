// Package store reads metric history, the metric catalog and category
// reduction targets from the relational metric store.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"esg-go-api/internal/models"
)

// DefaultPageSize matches the page limit enforced by the hosted store.
const DefaultPageSize = 1000

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// MetricFilter narrows a history read. Zero fields do not filter.
type MetricFilter struct {
	SiteID     string
	MetricIDs  []string
	Categories []string
	StartDate  time.Time
	EndDate    time.Time
}

// RawMetricRow is one ingested row before normalization and aggregation.
type RawMetricRow struct {
	ID          string
	MetricID    string
	SiteID      string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Value       float64
	Unit        string
	Family      models.UnitFamily
	Metadata    []byte
}

// PageSource returns one page of raw rows ordered by (period_start, id).
type PageSource interface {
	FetchRawPage(ctx context.Context, orgID string, f MetricFilter, limit, offset int) ([]RawMetricRow, error)
}

// MetricStore is everything the pipeline reads.
type MetricStore interface {
	PageSource
	ListCatalog(ctx context.Context, orgID string, categories []string) ([]models.MetricCatalogEntry, error)
	GetCatalogEntry(ctx context.Context, metricID string) (*models.MetricCatalogEntry, error)
	CategoryReductionRates(ctx context.Context, orgID string, categories []string) (map[string]float64, error)
	Ping(ctx context.Context) error
}
