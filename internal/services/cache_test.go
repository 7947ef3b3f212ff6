package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esg-go-api/internal/models"
)

func TestCache_GetSetExpiry(t *testing.T) {
	c := NewCache[string, int](time.Minute)
	defer c.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.sweep()
	assert.Equal(t, 0, c.Len())
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewCache[string, int](time.Minute)
	c.Close()
	c.Close()
}

func TestCacheService_InMemoryOnly(t *testing.T) {
	svc := NewCacheService(nil, time.Hour)
	defer svc.Close()

	ctx := context.Background()
	_, found := svc.GetForecast(ctx, "k")
	assert.False(t, found)

	res := models.ForecastResult{
		Points: []models.ForecastPoint{{MonthKey: "2025-07", PointEstimate: 10, LowerBound: 8, UpperBound: 12, IsForecast: true}},
		Method: models.MethodSeasonalDecomposition,
	}
	require.NoError(t, svc.SetForecast(ctx, "k", res))

	got, found := svc.GetForecast(ctx, "k")
	require.True(t, found)
	assert.Equal(t, res, got)
}

func TestOpenFirestore_EmptyProject(t *testing.T) {
	assert.Nil(t, OpenFirestore(context.Background(), ""))
}
