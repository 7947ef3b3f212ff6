package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"esg-go-api/internal/models"
)

// PostgresStore implements MetricStore using pgx.
type PostgresStore struct {
	pool Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pgx pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "store: open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return pool, nil
}

// Ping checks connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return models.NewDataAccessError("ping", err)
	}
	return nil
}

// FetchRawPage returns one page of raw metric rows joined with the catalog
// unit family.
func (s *PostgresStore) FetchRawPage(ctx context.Context, orgID string, f MetricFilter, limit, offset int) ([]RawMetricRow, error) {
	query, args := buildRawQuery(orgID, f, limit, offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, models.NewDataAccessError("fetch metrics page", eris.Wrap(err, "store: query metrics_data"))
	}
	defer rows.Close()

	var out []RawMetricRow
	for rows.Next() {
		var r RawMetricRow
		var family string
		if err := rows.Scan(
			&r.ID, &r.MetricID, &r.SiteID, &r.PeriodStart, &r.PeriodEnd,
			&r.Value, &r.Unit, &family, &r.Metadata,
		); err != nil {
			return nil, models.NewDataAccessError("scan metrics row", eris.Wrap(err, "store: scan metrics_data"))
		}
		r.Family = models.UnitFamily(family)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewDataAccessError("iterate metrics rows", eris.Wrap(err, "store: rows"))
	}
	return out, nil
}

func buildRawQuery(orgID string, f MetricFilter, limit, offset int) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT md.id::text, md.metric_id::text, COALESCE(md.site_id::text, ''),
			md.period_start, COALESCE(md.period_end, md.period_start),
			md.value, COALESCE(md.unit, ''), mc.unit_family,
			COALESCE(md.metadata, '{}'::jsonb)
		FROM metrics_data md
		JOIN metrics_catalog mc ON mc.id = md.metric_id
		WHERE md.organization_id = $1`)
	args := []any{orgID}

	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, clause, len(args))
	}
	if !f.StartDate.IsZero() {
		add(" AND md.period_start >= $%d", f.StartDate)
	}
	if !f.EndDate.IsZero() {
		add(" AND md.period_start <= $%d", f.EndDate)
	}
	if f.SiteID != "" {
		add(" AND md.site_id = $%d", f.SiteID)
	}
	if len(f.MetricIDs) > 0 {
		add(" AND md.metric_id::text = ANY($%d)", f.MetricIDs)
	}
	if len(f.Categories) > 0 {
		add(" AND mc.category = ANY($%d)", f.Categories)
	}
	b.WriteString(" ORDER BY md.period_start, md.id")
	add(" LIMIT $%d", limit)
	add(" OFFSET $%d", offset)
	return b.String(), args
}

const catalogColumns = `mc.id::text, mc.name, mc.category, mc.scope, mc.unit, mc.unit_family,
	COALESCE(mc.water_type, ''), COALESCE(mc.emission_factor, 0)`

// ListCatalog returns catalog entries in the given categories that the
// organization has data for.
func (s *PostgresStore) ListCatalog(ctx context.Context, orgID string, categories []string) ([]models.MetricCatalogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+catalogColumns+`
		FROM metrics_catalog mc
		WHERE mc.category = ANY($2)
			AND EXISTS (
				SELECT 1 FROM metrics_data md
				WHERE md.metric_id = mc.id AND md.organization_id = $1
			)
		ORDER BY mc.category, mc.name`, orgID, categories)
	if err != nil {
		return nil, models.NewDataAccessError("list catalog", eris.Wrap(err, "store: query metrics_catalog"))
	}
	defer rows.Close()

	var out []models.MetricCatalogEntry
	for rows.Next() {
		e, err := scanCatalog(rows)
		if err != nil {
			return nil, models.NewDataAccessError("scan catalog", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewDataAccessError("iterate catalog", eris.Wrap(err, "store: rows"))
	}
	return out, nil
}

// GetCatalogEntry fetches one catalog entry; nil when it does not exist.
func (s *PostgresStore) GetCatalogEntry(ctx context.Context, metricID string) (*models.MetricCatalogEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+catalogColumns+` FROM metrics_catalog mc WHERE mc.id::text = $1`, metricID)
	e, err := scanCatalog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, models.NewDataAccessError("get catalog entry", err)
	}
	return e, nil
}

func scanCatalog(row pgx.Row) (*models.MetricCatalogEntry, error) {
	var e models.MetricCatalogEntry
	var scope, family, waterType string
	if err := row.Scan(&e.ID, &e.Name, &e.Category, &scope, &e.Unit, &family, &waterType, &e.EmissionFactor); err != nil {
		return nil, eris.Wrap(err, "store: scan catalog")
	}
	e.Scope = models.Scope(scope)
	e.Family = models.UnitFamily(family)
	e.WaterType = models.WaterType(waterType)
	return &e, nil
}

// CategoryReductionRates returns the active annual reduction rate per
// category. Categories without a configured rate are absent from the map.
func (s *PostgresStore) CategoryReductionRates(ctx context.Context, orgID string, categories []string) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, annual_reduction_rate
		FROM category_targets
		WHERE organization_id = $1 AND category = ANY($2) AND is_active
		ORDER BY category`, orgID, categories)
	if err != nil {
		return nil, models.NewDataAccessError("category reduction rates", eris.Wrap(err, "store: query category_targets"))
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var category string
		var rate float64
		if err := rows.Scan(&category, &rate); err != nil {
			return nil, models.NewDataAccessError("scan category target", eris.Wrap(err, "store: scan category_targets"))
		}
		out[category] = rate
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewDataAccessError("iterate category targets", eris.Wrap(err, "store: rows"))
	}
	return out, nil
}
