package models

import (
	"fmt"
	"time"
)

// UnitFamily groups units that convert into one canonical unit
type UnitFamily string

const (
	FamilyEnergy UnitFamily = "energy" // canonical MWh
	FamilyWater  UnitFamily = "water"  // canonical m3
	FamilyMass   UnitFamily = "mass"   // canonical kg
	FamilyOther  UnitFamily = "other"
)

// Scope is the GHG Protocol scope of a metric
type Scope string

const (
	Scope1 Scope = "scope_1"
	Scope2 Scope = "scope_2"
	Scope3 Scope = "scope_3"
)

// WaterType is resolved once at ingestion time and stored on the catalog entry.
type WaterType string

const (
	WaterWithdrawal WaterType = "withdrawal"
	WaterDischarge  WaterType = "discharge"
	WaterRecycled   WaterType = "recycled"
)

// BreakdownKind tags a SourceBreakdown
type BreakdownKind int

const (
	BreakdownUnknown BreakdownKind = iota
	BreakdownKnown
)

// Carrier names an energy carrier inside a source breakdown
type Carrier string

const (
	CarrierRenewable Carrier = "renewable"
	CarrierFossil    Carrier = "fossil"
)

// SourceBreakdown is either Known, with carrier fractions, or Unknown.
// Callers must switch on Kind; the zero value is Unknown.
type SourceBreakdown struct {
	Kind      BreakdownKind
	Fractions map[Carrier]float64
}

// UnknownBreakdown returns the Unknown variant
func UnknownBreakdown() SourceBreakdown {
	return SourceBreakdown{Kind: BreakdownUnknown}
}

// KnownBreakdown returns the Known variant with the given fractions
func KnownBreakdown(fractions map[Carrier]float64) SourceBreakdown {
	return SourceBreakdown{Kind: BreakdownKnown, Fractions: fractions}
}

// IsKnown reports whether carrier fractions are available
func (b SourceBreakdown) IsKnown() bool {
	return b.Kind == BreakdownKnown && len(b.Fractions) > 0
}

// MetricRecord is one observed or forecasted value for one
// (organization, site, metric, month).
type MetricRecord struct {
	OrganizationID  string          `json:"organizationId"`
	SiteID          string          `json:"siteId,omitempty"`
	MetricID        string          `json:"metricId"`
	PeriodStart     time.Time       `json:"periodStart"`
	PeriodEnd       time.Time       `json:"periodEnd"`
	Value           float64         `json:"value"`
	Unit            string          `json:"unit"`
	SourceBreakdown SourceBreakdown `json:"-"`
	IsForecast      bool            `json:"isForecast"`
}

// MonthKey formats the record's month as YYYY-MM
func (r MetricRecord) MonthKey() string {
	return MonthKey(r.PeriodStart)
}

// MetricCatalogEntry describes a trackable quantity
type MetricCatalogEntry struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Scope          Scope      `json:"scope"`
	Unit           string     `json:"unit"`
	Family         UnitFamily `json:"unitFamily"`
	WaterType      WaterType  `json:"waterType,omitempty"`
	EmissionFactor float64    `json:"emissionFactor"` // kgCO2e per canonical unit
}

// ForecastMethod identifies how a ForecastResult was produced
type ForecastMethod string

const (
	MethodSeasonalDecomposition ForecastMethod = "seasonal-decomposition"
	MethodLinearRunRate         ForecastMethod = "linear-run-rate"
)

// ForecastPoint is one month of a forecast horizon
type ForecastPoint struct {
	MonthKey      string    `json:"monthKey"`
	Month         time.Time `json:"month"`
	PointEstimate float64   `json:"pointEstimate"`
	LowerBound    float64   `json:"lowerBound"`
	UpperBound    float64   `json:"upperBound"`
	IsForecast    bool      `json:"isForecast"`
}

// ModelQuality summarizes the fit behind a forecast
type ModelQuality struct {
	RSquared       float64 `json:"rSquared"`
	SampleSize     int     `json:"sampleSize"`
	ResidualStdDev float64 `json:"residualStdDev"`
}

// ForecastResult is the output of a forecaster for one series
type ForecastResult struct {
	Points              []ForecastPoint `json:"points"`
	Trend               float64         `json:"trend"`
	SeasonalityDetected bool            `json:"seasonalityDetected"`
	ModelQuality        ModelQuality    `json:"modelQuality"`
	Method              ForecastMethod  `json:"method"`
}

// Total sums the point estimates
func (f ForecastResult) Total() float64 {
	total := 0.0
	for _, p := range f.Points {
		total += p.PointEstimate
	}
	return total
}

// MonthlyValue is one aggregated month of a series
type MonthlyValue struct {
	Month time.Time `json:"month"`
	Value float64   `json:"value"`
}

// Target is a reduction commitment
type Target struct {
	MetricID            string  `json:"metricId,omitempty"`
	Category            string  `json:"category"`
	BaselineYear        int     `json:"baselineYear"`
	TargetYear          int     `json:"targetYear"`
	BaselineValue       float64 `json:"baselineValue"`
	BaselineEmissions   float64 `json:"baselineEmissions"`
	AnnualReductionRate float64 `json:"annualReductionRate"`
}

// Validate checks targetYear > baselineYear and rate in [0, 1)
func (t Target) Validate() error {
	if t.TargetYear <= t.BaselineYear {
		return &InvalidValueError{Field: "targetYear", Value: float64(t.TargetYear), Reason: "must be after baseline year"}
	}
	if t.AnnualReductionRate < 0 || t.AnnualReductionRate >= 1 {
		return &InvalidValueError{Field: "annualReductionRate", Value: t.AnnualReductionRate, Reason: "must be in [0, 1)"}
	}
	return nil
}

// TrajectoryStatus classifies projected performance against a target
type TrajectoryStatus string

const (
	StatusOnTrack  TrajectoryStatus = "on-track"
	StatusAtRisk   TrajectoryStatus = "at-risk"
	StatusOffTrack TrajectoryStatus = "off-track"
)

// Progress is the nested progress block of a ProgressResult
type Progress struct {
	ReductionNeededPercent   float64          `json:"reductionNeededPercent"`
	ReductionAchievedPercent float64          `json:"reductionAchievedPercent"`
	TrajectoryStatus         TrajectoryStatus `json:"trajectoryStatus"`
	ExceedancePercent        float64          `json:"exceedancePercent"`
}

// Forecast methods as reported to dashboards
const (
	ForecastMethodEnterpriseML = "enterprise-ml"
	ForecastMethodSimpleLinear = "simple-linear"
)

// Reported maps a forecast method onto the label dashboards show.
func (m ForecastMethod) Reported() string {
	if m == MethodSeasonalDecomposition {
		return ForecastMethodEnterpriseML
	}
	return ForecastMethodSimpleLinear
}

// ProgressResult is the per-metric item of the targets-by-category response
type ProgressResult struct {
	MetricID                 string   `json:"metricId"`
	MetricName               string   `json:"metricName"`
	Category                 string   `json:"category"`
	Scope                    Scope    `json:"scope"`
	Unit                     string   `json:"unit"`
	BaselineValue            float64  `json:"baselineValue"`
	BaselineEmissions        float64  `json:"baselineEmissions"`
	TargetValue              float64  `json:"targetValue"`
	TargetEmissions          float64  `json:"targetEmissions"`
	TargetEmissionsForYear   float64  `json:"targetEmissionsForYear"`
	CurrentValue             float64  `json:"currentValue"`
	CurrentEmissions         float64  `json:"currentEmissions"`
	ProjectedAnnualValue     float64  `json:"projectedAnnualValue"`
	ProjectedAnnualEmissions float64  `json:"projectedAnnualEmissions"`
	MonthsWithData           int      `json:"monthsWithData"`
	ForecastMethod           string   `json:"forecastMethod"`
	Progress                 Progress `json:"progress"`
}

// TargetsRequest carries the parsed query of GET /v1/targets/by-category
type TargetsRequest struct {
	OrganizationID string
	SiteID         string
	Categories     []string
	BaselineYear   int
	TargetYear     int
	EvaluationYear int
}

// TargetsMetadata echoes the request parameters in the response
type TargetsMetadata struct {
	OrganizationID string    `json:"organizationId"`
	BaselineYear   int       `json:"baselineYear"`
	TargetYear     int       `json:"targetYear"`
	EvaluationYear int       `json:"evaluationYear"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// TargetsResponse is the envelope of GET /v1/targets/by-category
type TargetsResponse struct {
	Data     []ProgressResult `json:"data"`
	Message  string           `json:"message,omitempty"`
	Warnings []string         `json:"warnings"`
	Metadata TargetsMetadata  `json:"metadata"`
}

// MetricForecastResponse is returned by GET /v1/metrics/:metricId/forecast
type MetricForecastResponse struct {
	MetricID    string         `json:"metricId"`
	Unit        string         `json:"unit"`
	History     []MonthlyValue `json:"history"`
	Forecast    ForecastResult `json:"forecast"`
	Method      string         `json:"forecastMethod"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// MonthKey formats t as YYYY-MM
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// MonthStart truncates t to the first instant of its month in UTC
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of t's month
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}
