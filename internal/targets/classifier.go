package targets

import "esg-go-api/internal/models"

// Default business thresholds on the exceedance percentage
const (
	DefaultOnTrackMaxExceedancePercent = 0.0
	DefaultAtRiskMaxExceedancePercent  = 10.0

	// ZeroTargetExceedancePercent is reported when any emissions remain
	// against a target of zero.
	ZeroTargetExceedancePercent = 100.0
)

// Thresholds bound the exceedance percentage of each status. At or below
// OnTrackMax is on-track, at or below AtRiskMax is at-risk, above is off-track.
type Thresholds struct {
	OnTrackMax float64
	AtRiskMax  float64
}

// DefaultThresholds returns 0% / 10%
func DefaultThresholds() Thresholds {
	return Thresholds{
		OnTrackMax: DefaultOnTrackMaxExceedancePercent,
		AtRiskMax:  DefaultAtRiskMaxExceedancePercent,
	}
}

// Classification is the classifier output
type Classification struct {
	Status            models.TrajectoryStatus
	ExceedancePercent float64
}

// Classifier assigns trajectory statuses
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a Classifier. AtRiskMax below OnTrackMax is raised
// to OnTrackMax so the at-risk band is never inverted.
func NewClassifier(th Thresholds) *Classifier {
	if th.AtRiskMax < th.OnTrackMax {
		th.AtRiskMax = th.OnTrackMax
	}
	return &Classifier{thresholds: th}
}

// Thresholds returns the configured thresholds
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify compares projected annual emissions against the interpolated target.
func (c *Classifier) Classify(projected, target float64) Classification {
	if target == 0 {
		if projected > 0 {
			return Classification{Status: models.StatusOffTrack, ExceedancePercent: ZeroTargetExceedancePercent}
		}
		return Classification{Status: models.StatusOnTrack}
	}

	exceedance := (projected - target) * 100 / target
	switch {
	case exceedance <= c.thresholds.OnTrackMax:
		return Classification{Status: models.StatusOnTrack, ExceedancePercent: exceedance}
	case exceedance <= c.thresholds.AtRiskMax:
		return Classification{Status: models.StatusAtRisk, ExceedancePercent: exceedance}
	default:
		return Classification{Status: models.StatusOffTrack, ExceedancePercent: exceedance}
	}
}
