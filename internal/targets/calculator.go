// Package targets interpolates reduction targets and classifies trajectories.
package targets

import (
	"esg-go-api/internal/models"
	"esg-go-api/internal/units"
)

// ComputeTarget returns the emissions allowed in evaluationYear under a
// linear reduction path: baseline * (1 - rate * years elapsed), clamped at 0.
// Years elapsed count from baselineYear and stop at targetYear.
func ComputeTarget(baselineEmissions, annualReductionRate float64, baselineYear, targetYear, evaluationYear int) (float64, error) {
	if err := units.ValidateValue("baselineEmissions", baselineEmissions); err != nil {
		return 0, err
	}
	t := models.Target{
		BaselineYear:        baselineYear,
		TargetYear:          targetYear,
		AnnualReductionRate: annualReductionRate,
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}

	year := evaluationYear
	if year > targetYear {
		year = targetYear
	}
	elapsed := year - baselineYear
	if elapsed < 0 {
		elapsed = 0
	}

	value := baselineEmissions * (1 - annualReductionRate*float64(elapsed))
	if value < 0 {
		return 0, nil
	}
	return value, nil
}

// ReductionNeededPercent is the cut from baseline the interpolated target asks for.
func ReductionNeededPercent(baselineEmissions, targetEmissionsForYear float64) float64 {
	if baselineEmissions == 0 {
		return 0
	}
	return (baselineEmissions - targetEmissionsForYear) / baselineEmissions * 100
}

// ReductionAchievedPercent is the cut from baseline observed so far; negative
// when emissions grew.
func ReductionAchievedPercent(baselineEmissions, currentEmissions float64) float64 {
	if baselineEmissions == 0 {
		return 0
	}
	return (baselineEmissions - currentEmissions) / baselineEmissions * 100
}
