// Package forecast projects monthly consumption series.
//
// Series with at least MinSeasonalMonths contiguous months use an additive
// decomposition: a least-squares linear trend over the whole window plus one
// seasonal index per calendar month. Shorter series fall back to a linear
// run-rate, the mean of the last RunRateWindow months.
package forecast

import (
	"math"
	"sort"
	"time"

	"esg-go-api/internal/models"
)

const (
	// MinSeasonalMonths is the contiguous history needed for decomposition.
	MinSeasonalMonths = 12

	// RunRateWindow is the number of trailing months averaged by the fallback.
	RunRateWindow = 3

	// ConfidenceZ gives ~95% coverage for normally distributed residuals.
	ConfidenceZ = 1.96

	// SeasonalityThreshold is the share of detrended variance the seasonal
	// indices must explain before seasonality counts as detected.
	SeasonalityThreshold = 0.3

	// MinSeasonalityYears of data are needed to tell a seasonal pattern from noise.
	MinSeasonalityYears = 2

	flatTolerance = 1e-9
)

// Forecast projects horizon months starting at start. A zero start means the
// month after the last month of history; a start at or before the last month
// is moved to the month after it. Valid non-empty history never fails; empty
// history yields zero estimates with a SampleSize of 0.
func Forecast(history []models.MonthlyValue, start time.Time, horizon int) models.ForecastResult {
	series := prepare(history)
	if horizon < 0 {
		horizon = 0
	}

	if len(series) == 0 {
		return emptyResult(start, horizon)
	}

	last := series[len(series)-1].Month
	if start.IsZero() || !models.MonthStart(start).After(last) {
		start = last.AddDate(0, 1, 0)
	}
	start = models.MonthStart(start)

	res, err := Seasonal(series, start, horizon)
	if err == nil {
		return res
	}
	return LinearRunRate(series, start, horizon)
}

// Seasonal runs the additive decomposition over the trailing contiguous run
// of history. It returns models.ErrInsufficientHistory when that run is
// shorter than MinSeasonalMonths.
func Seasonal(history []models.MonthlyValue, start time.Time, horizon int) (models.ForecastResult, error) {
	series := trailingContiguous(prepare(history))
	n := len(series)
	if n < MinSeasonalMonths {
		return models.ForecastResult{}, models.ErrInsufficientHistory
	}

	ys := make([]float64, n)
	for i, mv := range series {
		ys[i] = mv.Value
	}
	slope, intercept := linearFit(ys)
	trend := func(t float64) float64 { return intercept + slope*t }

	// Mean deviation from trend per calendar month.
	var sums, counts [12]float64
	devs := make([]float64, n)
	for i, mv := range series {
		devs[i] = ys[i] - trend(float64(i))
		m := int(mv.Month.Month()) - 1
		sums[m] += devs[i]
		counts[m]++
	}
	var indices [12]float64
	var centre float64
	for m := range indices {
		if counts[m] > 0 {
			indices[m] = sums[m] / counts[m]
		}
		centre += indices[m]
	}
	centre /= 12
	for m := range indices {
		indices[m] -= centre
	}

	mean := meanOf(ys)
	var ssRes, ssTot, ssDev, ssSeason float64
	for i, mv := range series {
		s := indices[int(mv.Month.Month())-1]
		r := devs[i] - s
		ssRes += r * r
		ssTot += (ys[i] - mean) * (ys[i] - mean)
		ssDev += devs[i] * devs[i]
		ssSeason += s * s
	}

	sd := 0.0
	if n > 2 {
		sd = math.Sqrt(ssRes / float64(n-2))
	}
	if sd < flatTolerance*math.Max(1, math.Abs(mean)) {
		sd = 0
	}

	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	detected := false
	if n >= MinSeasonalityYears*12 && ssDev > 0 {
		detected = ssSeason/ssDev >= SeasonalityThreshold
	}

	last := series[n-1].Month
	offset := monthsBetween(last, start)
	if offset < 1 {
		offset = 1
	}

	points := make([]models.ForecastPoint, horizon)
	for h := 0; h < horizon; h++ {
		ahead := offset + h
		month := last.AddDate(0, ahead, 0)
		est := trend(float64(n-1+ahead)) + indices[int(month.Month())-1]
		points[h] = bounded(month, est, ConfidenceZ*sd*math.Sqrt(float64(ahead)))
	}

	return models.ForecastResult{
		Points:              points,
		Trend:               slope,
		SeasonalityDetected: detected,
		ModelQuality: models.ModelQuality{
			RSquared:       rSquared,
			SampleSize:     n,
			ResidualStdDev: sd,
		},
		Method: models.MethodSeasonalDecomposition,
	}, nil
}

// LinearRunRate projects the mean of the last RunRateWindow months flat over
// the horizon. Bounds come from the spread of that window.
func LinearRunRate(history []models.MonthlyValue, start time.Time, horizon int) models.ForecastResult {
	series := prepare(history)
	if horizon < 0 {
		horizon = 0
	}
	if len(series) == 0 {
		return emptyResult(start, horizon)
	}

	last := series[len(series)-1].Month
	if start.IsZero() || !models.MonthStart(start).After(last) {
		start = last.AddDate(0, 1, 0)
	}
	start = models.MonthStart(start)

	window := series
	if len(window) > RunRateWindow {
		window = window[len(window)-RunRateWindow:]
	}
	vals := make([]float64, len(window))
	for i, mv := range window {
		vals[i] = mv.Value
	}
	rate := meanOf(vals)
	sd := stdDev(vals)
	if sd < flatTolerance*math.Max(1, math.Abs(rate)) {
		sd = 0
	}

	ys := make([]float64, len(series))
	for i, mv := range series {
		ys[i] = mv.Value
	}
	slope := 0.0
	if len(ys) >= 2 {
		slope, _ = linearFit(ys)
	}

	points := make([]models.ForecastPoint, horizon)
	for h := 0; h < horizon; h++ {
		month := start.AddDate(0, h, 0)
		points[h] = bounded(month, rate, ConfidenceZ*sd*math.Sqrt(float64(h+1)))
	}

	return models.ForecastResult{
		Points: points,
		Trend:  slope,
		ModelQuality: models.ModelQuality{
			SampleSize:     len(series),
			ResidualStdDev: sd,
		},
		Method: models.MethodLinearRunRate,
	}
}

func emptyResult(start time.Time, horizon int) models.ForecastResult {
	points := make([]models.ForecastPoint, horizon)
	if !start.IsZero() {
		start = models.MonthStart(start)
	}
	for h := range points {
		month := start
		if !start.IsZero() {
			month = start.AddDate(0, h, 0)
		}
		points[h] = models.ForecastPoint{
			MonthKey:   models.MonthKey(month),
			Month:      month,
			IsForecast: true,
		}
	}
	return models.ForecastResult{
		Points: points,
		Method: models.MethodLinearRunRate,
	}
}

// bounded builds a forecast point with lower <= point <= upper; consumption
// never goes below zero.
func bounded(month time.Time, est, width float64) models.ForecastPoint {
	if math.IsNaN(est) || est < 0 {
		est = 0
	}
	if math.IsNaN(width) || width < 0 {
		width = 0
	}
	return models.ForecastPoint{
		MonthKey:      models.MonthKey(month),
		Month:         month,
		PointEstimate: est,
		LowerBound:    math.Max(0, est-width),
		UpperBound:    est + width,
		IsForecast:    true,
	}
}

// prepare normalizes months, sums duplicates and sorts chronologically.
func prepare(history []models.MonthlyValue) []models.MonthlyValue {
	byMonth := make(map[time.Time]float64, len(history))
	for _, mv := range history {
		byMonth[models.MonthStart(mv.Month)] += mv.Value
	}
	out := make([]models.MonthlyValue, 0, len(byMonth))
	for m, v := range byMonth {
		out = append(out, models.MonthlyValue{Month: m, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// Series returns history with duplicate months summed, oldest first.
func Series(history []models.MonthlyValue) []models.MonthlyValue {
	return prepare(history)
}

// Trend returns the least-squares slope of history per month.
func Trend(history []models.MonthlyValue) float64 {
	series := prepare(history)
	ys := make([]float64, len(series))
	for i, mv := range series {
		ys[i] = mv.Value
	}
	slope, _ := linearFit(ys)
	return slope
}

// MonthsBetween counts calendar months from a to b.
func MonthsBetween(a, b time.Time) int {
	return monthsBetween(a, b)
}

func trailingContiguous(series []models.MonthlyValue) []models.MonthlyValue {
	if len(series) == 0 {
		return series
	}
	i := len(series) - 1
	for i > 0 && monthsBetween(series[i-1].Month, series[i].Month) == 1 {
		i--
	}
	return series[i:]
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// linearFit returns the least-squares slope and intercept of ys against 0..n-1.
func linearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	meanT := (n - 1) / 2
	meanY := meanOf(ys)
	var num, den float64
	for i, y := range ys {
		dt := float64(i) - meanT
		num += dt * (y - meanY)
		den += dt * dt
	}
	if den == 0 {
		return 0, meanY
	}
	slope = num / den
	return slope, meanY - slope*meanT
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := meanOf(vals)
	ss := 0.0
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}
