package forecast

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esg-go-api/internal/models"
)

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func series(start time.Time, values ...float64) []models.MonthlyValue {
	out := make([]models.MonthlyValue, len(values))
	for i, v := range values {
		out[i] = models.MonthlyValue{Month: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func seasonalSeries(start time.Time, months int) []models.MonthlyValue {
	vals := make([]float64, months)
	for i := range vals {
		m := start.AddDate(0, i, 0).Month()
		vals[i] = 200 + 0.5*float64(i) + 60*math.Cos(2*math.Pi*float64(m-1)/12)
	}
	return series(start, vals...)
}

func assertBoundsOrdered(t *testing.T, res models.ForecastResult) {
	t.Helper()
	for _, p := range res.Points {
		assert.LessOrEqual(t, p.LowerBound, p.PointEstimate, p.MonthKey)
		assert.LessOrEqual(t, p.PointEstimate, p.UpperBound, p.MonthKey)
		assert.True(t, p.IsForecast)
	}
}

func TestForecast_ShortHistoryUsesRunRate(t *testing.T) {
	hist := series(month(2025, time.January), 100, 110, 120, 130, 140)

	res := Forecast(hist, time.Time{}, 7)

	assert.Equal(t, models.MethodLinearRunRate, res.Method)
	require.Len(t, res.Points, 7)
	assert.Equal(t, "2025-06", res.Points[0].MonthKey)
	assert.Equal(t, "2025-12", res.Points[6].MonthKey)
	for _, p := range res.Points {
		assert.InDelta(t, 130, p.PointEstimate, 1e-9)
	}
	assertBoundsOrdered(t, res)
}

func TestForecast_PartialYearScenario(t *testing.T) {
	hist := series(month(2025, time.January), 120, 120, 120, 120, 120)

	res := Forecast(hist, month(2025, time.June), 7)

	assert.Equal(t, models.MethodLinearRunRate, res.Method)
	assert.InDelta(t, 1440, 600+res.Total(), 1e-9)
	for _, p := range res.Points {
		assert.Equal(t, p.PointEstimate, p.LowerBound)
		assert.Equal(t, p.PointEstimate, p.UpperBound)
	}
}

func TestForecast_SeasonalHistoryDetected(t *testing.T) {
	hist := seasonalSeries(month(2023, time.January), 24)

	res := Forecast(hist, time.Time{}, 12)

	assert.Equal(t, models.MethodSeasonalDecomposition, res.Method)
	assert.True(t, res.SeasonalityDetected)
	assert.Equal(t, 24, res.ModelQuality.SampleSize)
	assert.Greater(t, res.ModelQuality.RSquared, 0.9)
	require.Len(t, res.Points, 12)
	assert.Equal(t, "2025-01", res.Points[0].MonthKey)
	// January peaks and July troughs in the synthetic pattern.
	assert.Greater(t, res.Points[0].PointEstimate, res.Points[6].PointEstimate)
	assertBoundsOrdered(t, res)
}

func TestForecast_TwelveMonthsIsSeasonalMode(t *testing.T) {
	hist := seasonalSeries(month(2024, time.January), 12)

	res := Forecast(hist, time.Time{}, 3)

	assert.Equal(t, models.MethodSeasonalDecomposition, res.Method)
	assert.False(t, res.SeasonalityDetected)
	assertBoundsOrdered(t, res)
}

func TestForecast_FlatHistoryCollapsesBounds(t *testing.T) {
	vals := make([]float64, 24)
	for i := range vals {
		vals[i] = 100
	}
	res := Forecast(series(month(2023, time.January), vals...), time.Time{}, 6)

	assert.Equal(t, models.MethodSeasonalDecomposition, res.Method)
	assert.False(t, res.SeasonalityDetected)
	for _, p := range res.Points {
		assert.InDelta(t, 100, p.PointEstimate, 1e-9)
		assert.Equal(t, p.PointEstimate, p.LowerBound)
		assert.Equal(t, p.PointEstimate, p.UpperBound)
	}
}

func TestForecast_BoundsWidenWithDistance(t *testing.T) {
	hist := seasonalSeries(month(2022, time.January), 36)
	for i := range hist {
		if i%5 == 0 {
			hist[i].Value += 15
		}
	}

	res := Forecast(hist, time.Time{}, 6)

	require.Len(t, res.Points, 6)
	first := res.Points[0].UpperBound - res.Points[0].PointEstimate
	last := res.Points[5].UpperBound - res.Points[5].PointEstimate
	assert.Greater(t, first, 0.0)
	assert.Greater(t, last, first)
	assertBoundsOrdered(t, res)
}

func TestForecast_GapUsesTrailingRun(t *testing.T) {
	hist := append(series(month(2022, time.January), 50, 60, 70),
		series(month(2023, time.January), 100, 100, 100, 100)...)

	res := Forecast(hist, time.Time{}, 2)

	assert.Equal(t, models.MethodLinearRunRate, res.Method)
	assert.Equal(t, "2023-05", res.Points[0].MonthKey)
	assert.InDelta(t, 100, res.Points[0].PointEstimate, 1e-9)
}

func TestForecast_SingleMonthFallsBack(t *testing.T) {
	res := Forecast(series(month(2025, time.March), 80), time.Time{}, 2)

	assert.Equal(t, models.MethodLinearRunRate, res.Method)
	assert.Equal(t, 0.0, res.Trend)
	assert.InDelta(t, 160, res.Total(), 1e-9)
}

func TestForecast_EmptyHistory(t *testing.T) {
	res := Forecast(nil, month(2025, time.January), 12)

	assert.Equal(t, models.MethodLinearRunRate, res.Method)
	assert.Equal(t, 0, res.ModelQuality.SampleSize)
	require.Len(t, res.Points, 12)
	assert.Equal(t, "2025-01", res.Points[0].MonthKey)
	assert.Equal(t, 0.0, res.Total())
}

func TestForecast_StartAfterGap(t *testing.T) {
	hist := seasonalSeries(month(2022, time.January), 24)

	res := Forecast(hist, month(2024, time.April), 2)

	require.Len(t, res.Points, 2)
	assert.Equal(t, "2024-04", res.Points[0].MonthKey)
	assert.Equal(t, "2024-05", res.Points[1].MonthKey)
}

func TestForecast_ZeroHorizon(t *testing.T) {
	res := Forecast(seasonalSeries(month(2023, time.January), 24), time.Time{}, 0)

	assert.Empty(t, res.Points)
	assert.Equal(t, models.MethodSeasonalDecomposition, res.Method)
}

func TestForecast_DuplicateMonthsAreSummed(t *testing.T) {
	hist := []models.MonthlyValue{
		{Month: month(2025, time.January), Value: 40},
		{Month: month(2025, time.January).AddDate(0, 0, 14), Value: 60},
	}

	res := Forecast(hist, time.Time{}, 1)

	assert.InDelta(t, 100, res.Points[0].PointEstimate, 1e-9)
}

func TestSeasonal_InsufficientHistory(t *testing.T) {
	_, err := Seasonal(series(month(2025, time.January), 1, 2, 3), time.Time{}, 1)
	assert.ErrorIs(t, err, models.ErrInsufficientHistory)
}

func TestLinearFit(t *testing.T) {
	slope, intercept := linearFit([]float64{1, 3, 5, 7})
	assert.InDelta(t, 2, slope, 1e-12)
	assert.InDelta(t, 1, intercept, 1e-12)
}
