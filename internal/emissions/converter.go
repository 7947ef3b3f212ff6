// Package emissions converts normalized consumption into tCO2e.
package emissions

import (
	"go.uber.org/zap"

	"esg-go-api/internal/models"
	"esg-go-api/internal/units"
)

// Default factors in kgCO2e per kWh
const (
	DefaultRenewableKgPerKWh = 0.02
	DefaultFossilKgPerKWh    = 0.4
)

const (
	kWhPerMWh  = 1000
	kgPerTonne = 1000
)

// FactorTable holds per-carrier emission factors in kgCO2e per kWh.
// Carriers overrides the renewable/fossil defaults for named carriers.
type FactorTable struct {
	RenewableKgPerKWh float64
	FossilKgPerKWh    float64
	Carriers          map[models.Carrier]float64
}

// DefaultFactorTable returns the grid-average defaults.
func DefaultFactorTable() FactorTable {
	return FactorTable{
		RenewableKgPerKWh: DefaultRenewableKgPerKWh,
		FossilKgPerKWh:    DefaultFossilKgPerKWh,
	}
}

// Converter applies a FactorTable and catalog emission factors.
type Converter struct {
	factors FactorTable
	logger  *zap.Logger
}

// NewConverter creates a Converter. A nil logger uses the global zap logger.
func NewConverter(factors FactorTable, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.L()
	}
	return &Converter{factors: factors, logger: logger.Named("emissions")}
}

// Factors returns the table in use
func (c *Converter) Factors() FactorTable {
	return c.factors
}

// ToEmissions converts value, already in the entry's canonical unit, into
// tCO2e.
//
// Energy metrics with a known breakdown use the fraction-weighted carrier
// factors. Energy metrics with an unknown breakdown use the catalog factor
// when it is set and the fossil grid average otherwise. Every other family
// uses the catalog factor.
func (c *Converter) ToEmissions(value float64, entry models.MetricCatalogEntry, breakdown models.SourceBreakdown) (float64, error) {
	if err := units.ValidateValue("value", value); err != nil {
		return 0, err
	}
	if err := units.ValidateValue("emissionFactor", entry.EmissionFactor); err != nil {
		return 0, err
	}

	if entry.Family != models.FamilyEnergy {
		return value * entry.EmissionFactor / kgPerTonne, nil
	}

	if breakdown.IsKnown() {
		factor, err := c.weightedFactor(entry, breakdown.Fractions)
		if err != nil {
			return 0, err
		}
		return value * kWhPerMWh * factor / kgPerTonne, nil
	}

	if entry.EmissionFactor > 0 {
		return value * entry.EmissionFactor / kgPerTonne, nil
	}
	return value * kWhPerMWh * c.factors.FossilKgPerKWh / kgPerTonne, nil
}

// weightedFactor returns kgCO2e/kWh for a carrier mix. Fractions are
// rescaled when they do not sum to 1.
func (c *Converter) weightedFactor(entry models.MetricCatalogEntry, fractions map[models.Carrier]float64) (float64, error) {
	var total, weighted float64
	for carrier, frac := range fractions {
		if err := units.ValidateValue("fraction", frac); err != nil {
			return 0, err
		}
		total += frac
		weighted += frac * c.carrierFactor(entry, carrier)
	}
	if total == 0 {
		return c.factors.FossilKgPerKWh, nil
	}
	return weighted / total, nil
}

func (c *Converter) carrierFactor(entry models.MetricCatalogEntry, carrier models.Carrier) float64 {
	if f, ok := c.factors.Carriers[carrier]; ok {
		return f
	}
	switch carrier {
	case models.CarrierRenewable:
		return c.factors.RenewableKgPerKWh
	case models.CarrierFossil:
		return c.factors.FossilKgPerKWh
	}
	c.logger.Warn("unknown energy carrier, using fossil factor",
		zap.String("carrier", string(carrier)),
		zap.String("metric_id", entry.ID),
	)
	return c.factors.FossilKgPerKWh
}
