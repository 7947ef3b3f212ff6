// Package units converts metric values into the canonical unit of their family.
package units

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"esg-go-api/internal/models"
)

// Canonical units per family
const (
	UnitMWh        = "MWh"
	UnitCubicMeter = "m3"
	UnitKilogram   = "kg"
)

// factors maps a family to lower-cased unit aliases and their multiplier into
// the family's canonical unit. "ml" follows the source data convention of
// megaliters, not milliliters.
var factors = map[models.UnitFamily]map[string]float64{
	models.FamilyEnergy: {
		"wh":  1e-6,
		"kwh": 1e-3,
		"mwh": 1,
		"gwh": 1e3,
	},
	models.FamilyWater: {
		"l":          1e-3,
		"liter":      1e-3,
		"liters":     1e-3,
		"litre":      1e-3,
		"litres":     1e-3,
		"m3":         1,
		"m³":         1,
		"ml":         1e3,
		"megaliter":  1e3,
		"megaliters": 1e3,
		"megalitre":  1e3,
		"megalitres": 1e3,
	},
	models.FamilyMass: {
		"g":      1e-3,
		"kg":     1,
		"t":      1e3,
		"tonne":  1e3,
		"tonnes": 1e3,
		"ton":    1e3,
		"tons":   1e3,
	},
}

// CanonicalUnit returns the canonical unit of family, or "" for families
// without a conversion table.
func CanonicalUnit(family models.UnitFamily) string {
	switch family {
	case models.FamilyEnergy:
		return UnitMWh
	case models.FamilyWater:
		return UnitCubicMeter
	case models.FamilyMass:
		return UnitKilogram
	default:
		return ""
	}
}

// Normalizer converts values into canonical units. Unknown units pass
// through unchanged and are logged at warn level.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer. A nil logger uses the global zap logger.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.L()
	}
	return &Normalizer{logger: logger.Named("units")}
}

// Normalize converts value from fromUnit into the canonical unit of family.
func (n *Normalizer) Normalize(value float64, fromUnit string, family models.UnitFamily) (float64, error) {
	if err := ValidateValue("value", value); err != nil {
		return 0, err
	}
	f, ok := n.factor(fromUnit, family)
	if !ok {
		return value, nil
	}
	return value * f, nil
}

// Convert converts value between two units of the same family.
func (n *Normalizer) Convert(value float64, fromUnit, toUnit string, family models.UnitFamily) (float64, error) {
	canonical, err := n.Normalize(value, fromUnit, family)
	if err != nil {
		return 0, err
	}
	f, ok := n.factor(toUnit, family)
	if !ok {
		return canonical, nil
	}
	return canonical / f, nil
}

// Known reports whether unit has a conversion within family
func Known(unit string, family models.UnitFamily) bool {
	table, ok := factors[family]
	if !ok {
		return false
	}
	_, ok = table[normalizeAlias(unit)]
	return ok
}

func (n *Normalizer) factor(unit string, family models.UnitFamily) (float64, bool) {
	if family == models.FamilyOther {
		return 1, true
	}
	table, ok := factors[family]
	if !ok {
		n.logger.Warn("unknown unit family, treating value as canonical",
			zap.String("family", string(family)),
			zap.String("unit", unit),
		)
		return 1, false
	}
	f, ok := table[normalizeAlias(unit)]
	if !ok {
		n.logger.Warn("unrecognized unit, treating value as canonical",
			zap.String("family", string(family)),
			zap.String("unit", unit),
			zap.String("canonical", CanonicalUnit(family)),
		)
		return 1, false
	}
	return f, true
}

func normalizeAlias(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.ReplaceAll(u, " ", "")
	return strings.TrimSuffix(u, ".")
}

// ValidateValue rejects negative, NaN and infinite numbers.
func ValidateValue(field string, v float64) error {
	switch {
	case math.IsNaN(v):
		return &models.InvalidValueError{Field: field, Value: v, Reason: "not a number"}
	case math.IsInf(v, 0):
		return &models.InvalidValueError{Field: field, Value: v, Reason: "not finite"}
	case v < 0:
		return &models.InvalidValueError{Field: field, Value: v, Reason: "negative"}
	}
	return nil
}
