package models

import "time"

// FeatureWeight is the learned weight override for one feature type. When no
// row exists for a type, scoring falls back to the type's default weight.
type FeatureWeight struct {
	Type      FeatureType `json:"feature_type"`
	Weight    float64     `json:"weight"` // 0.0-1.0
	UpdatedAt time.Time   `json:"updated_at,omitempty"`
}

// FeatureWeightStat aggregates review outcomes for one feature type: of the
// actioned suggestions where the feature was a major contributor, how many were
// accepted (or modified, which still confirms the relationship exists).
type FeatureWeightStat struct {
	Type     FeatureType `json:"feature_type"`
	Actioned int         `json:"actioned"`
	Accepted int         `json:"accepted"`
}

// AcceptRate returns the fraction of actioned suggestions that were accepted.
// A type with no actioned suggestions reports 0.5 so recalibration leaves its
// weight untouched.
func (s FeatureWeightStat) AcceptRate() float64 {
	if s.Actioned == 0 {
		return 0.5
	}
	return float64(s.Accepted) / float64(s.Actioned)
}

// Recalibration nudge size: each pass moves a weight by at most this much.
const recalibrationNudge = 0.05

// RecalibratedWeight moves current toward the direction the accept rate
// indicates: above 50% acceptance pushes the weight up, below pushes it down.
// The result is clamped to [0, 1].
func RecalibratedWeight(current, acceptRate float64) float64 {
	w := current + recalibrationNudge*(acceptRate-0.5)*2
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}
	return w
}

// WeightRecalibration records one recalibration pass for auditability.
type WeightRecalibration struct {
	ID            int64                   `json:"id,omitempty"`
	SagaID        int64                   `json:"saga_id"`
	FeedbackCount int                     `json:"feedback_count"`
	Adjustments   map[FeatureType]float64 `json:"adjustments,omitempty"` // new weight per type
	RanAt         time.Time               `json:"ran_at"`
}
