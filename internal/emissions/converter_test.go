package emissions

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"esg-go-api/internal/models"
)

var electricity = models.MetricCatalogEntry{
	ID:       "m-elec",
	Name:     "Grid electricity",
	Category: "Electricity",
	Scope:    models.Scope2,
	Unit:     "MWh",
	Family:   models.FamilyEnergy,
}

func TestToEmissions_KnownBreakdown(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())

	b := models.KnownBreakdown(map[models.Carrier]float64{
		models.CarrierRenewable: 0.6,
		models.CarrierFossil:    0.4,
	})
	got, err := c.ToEmissions(10, electricity, b)
	require.NoError(t, err)

	// 10 MWh = 10000 kWh * (0.6*0.02 + 0.4*0.4) kg / 1000
	assert.InDelta(t, 1.72, got, 1e-9)
}

func TestToEmissions_FractionsAreRescaled(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())

	b := models.KnownBreakdown(map[models.Carrier]float64{
		models.CarrierRenewable: 60,
		models.CarrierFossil:    40,
	})
	got, err := c.ToEmissions(10, electricity, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.72, got, 1e-9)
}

func TestToEmissions_UnknownBreakdownUsesGridAverage(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())

	got, err := c.ToEmissions(10, electricity, models.UnknownBreakdown())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got, 1e-9)
}

func TestToEmissions_UnknownBreakdownPrefersCatalogFactor(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())

	entry := electricity
	entry.EmissionFactor = 250 // kg per MWh
	got, err := c.ToEmissions(10, entry, models.UnknownBreakdown())
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-9)
}

func TestToEmissions_NonEnergyUsesCatalogFactor(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())

	water := models.MetricCatalogEntry{
		ID:             "m-water",
		Category:       "Water",
		Unit:           "m3",
		Family:         models.FamilyWater,
		WaterType:      models.WaterWithdrawal,
		EmissionFactor: 0.344,
	}
	got, err := c.ToEmissions(1000, water, models.KnownBreakdown(map[models.Carrier]float64{models.CarrierFossil: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.344, got, 1e-9)
}

func TestToEmissions_CarrierOverridesAndUnknownCarrier(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	table := DefaultFactorTable()
	table.Carriers = map[models.Carrier]float64{"natural_gas": 0.2}
	c := NewConverter(table, zap.New(core))

	b := models.KnownBreakdown(map[models.Carrier]float64{
		"natural_gas": 0.5,
		"peat":        0.5,
	})
	got, err := c.ToEmissions(1, electricity, b)
	require.NoError(t, err)

	// 1000 kWh * (0.5*0.2 + 0.5*0.4) / 1000
	assert.InDelta(t, 0.3, got, 1e-9)
	assert.Equal(t, 1, logs.FilterField(zap.String("carrier", "peat")).Len())
}

func TestToEmissions_NonNegative(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())

	for _, v := range []float64{0, 0.5, 1e6} {
		got, err := c.ToEmissions(v, electricity, models.UnknownBreakdown())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, 0.0)
	}
}

func TestToEmissions_InvalidInput(t *testing.T) {
	c := NewConverter(DefaultFactorTable(), zap.NewNop())
	var ive *models.InvalidValueError

	_, err := c.ToEmissions(math.NaN(), electricity, models.UnknownBreakdown())
	assert.True(t, errors.As(err, &ive))

	bad := electricity
	bad.EmissionFactor = -1
	_, err = c.ToEmissions(1, bad, models.UnknownBreakdown())
	assert.True(t, errors.As(err, &ive))

	_, err = c.ToEmissions(1, electricity, models.KnownBreakdown(map[models.Carrier]float64{models.CarrierFossil: -0.2}))
	assert.True(t, errors.As(err, &ive))
}
