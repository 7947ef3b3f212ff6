package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"esg-go-api/internal/config"
	"esg-go-api/internal/models"
	"esg-go-api/internal/services"
	"esg-go-api/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubStore struct{ pingErr error }

func (stubStore) FetchRawPage(context.Context, string, store.MetricFilter, int, int) ([]store.RawMetricRow, error) {
	return nil, nil
}

func (stubStore) ListCatalog(context.Context, string, []string) ([]models.MetricCatalogEntry, error) {
	return nil, nil
}

func (stubStore) GetCatalogEntry(context.Context, string) (*models.MetricCatalogEntry, error) {
	return nil, nil
}

func (stubStore) CategoryReductionRates(context.Context, string, []string) (map[string]float64, error) {
	return nil, nil
}

func (s stubStore) Ping(context.Context) error { return s.pingErr }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = "postgres://localhost/esg"
	c.Auth.JWTSecret = "secret"
	return c
}

func TestForecastPolicy(t *testing.T) {
	p := forecastPolicy(config.ForecastConfig{MaxAttempts: 4, InitialBackoffMS: 50, TimeoutSecs: 3})
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 3*time.Second, p.Deadline)

	def := forecastPolicy(config.ForecastConfig{})
	assert.Equal(t, 2, def.MaxAttempts)
	assert.Equal(t, 10*time.Second, def.Deadline)
}

func TestThresholdsAndFactors(t *testing.T) {
	th := thresholds(config.TrajectoryConfig{AtRiskPct: 0, OffTrackPct: 10})
	assert.Equal(t, 0.0, th.OnTrackMax)
	assert.Equal(t, 10.0, th.AtRiskMax)

	ft := factorTable(config.EmissionsConfig{RenewableKgPerKWh: 0.02, FossilKgPerKWh: 0.4})
	assert.Equal(t, 0.02, ft.RenewableKgPerKWh)
	assert.Equal(t, 0.4, ft.FossilKgPerKWh)
}

func TestBuildPipeline_PredictorOnlyWithURL(t *testing.T) {
	c := testConfig(t)

	env := buildPipeline(c, stubStore{}, services.NewCacheService(nil, time.Minute))
	defer env.Close()
	assert.Nil(t, env.Prophet)
	assert.NotNil(t, env.Progress)

	c.Forecast.ServiceURL = "http://forecast.local"
	env2 := buildPipeline(c, stubStore{}, services.NewCacheService(nil, time.Minute))
	defer env2.Close()
	assert.NotNil(t, env2.Prophet)
}

func get(t *testing.T, env *pipelineEnv, c *config.Config, path string) *http.Response {
	t.Helper()
	resp, err := newApp(c, env).Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp
}

func TestNewApp_Routes(t *testing.T) {
	c := testConfig(t)
	env := buildPipeline(c, stubStore{}, services.NewCacheService(nil, time.Minute))
	defer env.Close()

	assert.Equal(t, http.StatusOK, get(t, env, c, "/health").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, env, c, "/health/ready").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, env, c, "/v1/targets/by-category").StatusCode)

	c.Auth.Disabled = true
	assert.Equal(t, http.StatusBadRequest, get(t, env, c, "/v1/targets/by-category").StatusCode)
}

func TestNewApp_ReadyStoreDown(t *testing.T) {
	c := testConfig(t)
	env := buildPipeline(c, stubStore{pingErr: errors.New("down")}, services.NewCacheService(nil, time.Minute))
	defer env.Close()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, env, c, "/health/ready").StatusCode)
}

func TestProgressRequest(t *testing.T) {
	progressFlags.org = "3f1c2a9e-5b7d-4c1e-9a8f-0d2b6e4c7a10"
	progressFlags.categories = "Electricity, Natural Gas,"
	progressFlags.baselineYear = 2023
	progressFlags.targetYear = 2030
	progressFlags.evaluationYear = 2025
	t.Cleanup(func() { progressFlags = progressOptions{} })

	req, err := progressRequest()
	require.NoError(t, err)
	assert.Equal(t, []string{"Electricity", "Natural Gas"}, req.Categories)
	assert.Equal(t, 2025, req.EvaluationYear)

	progressFlags.targetYear = 2020
	_, err = progressRequest()
	assert.Error(t, err)

	progressFlags.targetYear = 2030
	progressFlags.org = "acme"
	_, err = progressRequest()
	assert.Error(t, err)
}
