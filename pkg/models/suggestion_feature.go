package models

import (
	"math"
	"slices"
	"time"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
)

// ============================================================================
// Feature Types
// ============================================================================

// FeatureType identifies one evidence signal contributing to a suggestion.
type FeatureType string

const (
	FeatureTypeCoOccurrence        FeatureType = "co_occurrence"
	FeatureTypeSemanticSimilarity  FeatureType = "semantic_similarity"
	FeatureTypeTimelineProximity   FeatureType = "timeline_proximity"
	FeatureTypeSharedLocation      FeatureType = "shared_location"
	FeatureTypeSharedFaction       FeatureType = "shared_faction"
	FeatureTypeAttributeSimilarity FeatureType = "attribute_similarity"
	FeatureTypeNetworkCentrality   FeatureType = "network_centrality"
)

// ValidFeatureTypes contains all valid feature type values.
var ValidFeatureTypes = []FeatureType{
	FeatureTypeCoOccurrence,
	FeatureTypeSemanticSimilarity,
	FeatureTypeTimelineProximity,
	FeatureTypeSharedLocation,
	FeatureTypeSharedFaction,
	FeatureTypeAttributeSimilarity,
	FeatureTypeNetworkCentrality,
}

// IsValidFeatureType checks if the given type is valid.
func IsValidFeatureType(t FeatureType) bool {
	return slices.Contains(ValidFeatureTypes, t)
}

// FeatureTypeInfo carries the per-type metadata: a display label, a
// human-readable description, and the default weight applied when no learned
// weight override exists.
type FeatureTypeInfo struct {
	Label         string
	Description   string
	DefaultWeight float64
}

// featureTypeInfos maps each feature type to its metadata.
var featureTypeInfos = map[FeatureType]FeatureTypeInfo{
	FeatureTypeCoOccurrence: {
		Label:         "Co-occurrence",
		Description:   "How often the two entities appear together across saga content",
		DefaultWeight: 0.7,
	},
	FeatureTypeSemanticSimilarity: {
		Label:         "Semantic similarity",
		Description:   "Embedding similarity between the entities' descriptions",
		DefaultWeight: 0.8,
	},
	FeatureTypeTimelineProximity: {
		Label:         "Timeline proximity",
		Description:   "How close the entities sit on the saga timeline",
		DefaultWeight: 0.6,
	},
	FeatureTypeSharedLocation: {
		Label:         "Shared location",
		Description:   "Overlap between the locations the entities are tied to",
		DefaultWeight: 0.5,
	},
	FeatureTypeSharedFaction: {
		Label:         "Shared faction",
		Description:   "Membership overlap in factions, houses, or organizations",
		DefaultWeight: 0.65,
	},
	FeatureTypeAttributeSimilarity: {
		Label:         "Attribute similarity",
		Description:   "Similarity between the entities' structured attributes",
		DefaultWeight: 0.55,
	},
	FeatureTypeNetworkCentrality: {
		Label:         "Network centrality",
		Description:   "How central both entities are in the existing relationship graph",
		DefaultWeight: 0.4,
	},
}

// Info returns the metadata for this feature type.
// Unknown types get a zero-valued FeatureTypeInfo.
func (t FeatureType) Info() FeatureTypeInfo {
	return featureTypeInfos[t]
}

// DefaultWeight returns the default weight for this feature type.
func (t FeatureType) DefaultWeight() float64 {
	return featureTypeInfos[t].DefaultWeight
}

// ============================================================================
// Feature Strength Labels
// ============================================================================

// FeatureStrength is a categorical bucket for a feature's normalized value.
type FeatureStrength string

const (
	FeatureStrengthVeryStrong FeatureStrength = "very_strong"
	FeatureStrengthStrong     FeatureStrength = "strong"
	FeatureStrengthModerate   FeatureStrength = "moderate"
	FeatureStrengthWeak       FeatureStrength = "weak"
)

// ============================================================================
// Suggestion Feature
// ============================================================================

// SuggestionFeature is one normalized evidence signal for one candidate pair.
// It is a value type: the only mutation it supports is weight replacement via
// WithWeight, which produces a new instance.
type SuggestionFeature struct {
	ID           int64          `json:"id,omitempty"`
	SuggestionID int64          `json:"suggestion_id,omitempty"`
	Type         FeatureType    `json:"feature_type"`
	Value        float64        `json:"feature_value"` // normalized, 0.0-1.0
	Weight       float64        `json:"weight"`        // 0.0-1.0
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
}

// NewFeature creates a feature with an already-normalized value and an
// explicit weight. Both must be in [0, 1].
func NewFeature(t FeatureType, value, weight float64, metadata map[string]any) (SuggestionFeature, error) {
	if !IsValidFeatureType(t) {
		return SuggestionFeature{}, apperrors.NewValidationError("feature_type", "unknown feature type "+string(t))
	}
	if value < 0 || value > 1 || math.IsNaN(value) {
		return SuggestionFeature{}, apperrors.NewValidationError("feature_value", "must be between 0.0 and 1.0")
	}
	if weight < 0 || weight > 1 || math.IsNaN(weight) {
		return SuggestionFeature{}, apperrors.NewValidationError("weight", "must be between 0.0 and 1.0")
	}
	return SuggestionFeature{
		Type:     t,
		Value:    value,
		Weight:   weight,
		Metadata: metadata,
	}, nil
}

// NewNormalizedFeature creates a feature from a raw measurement by scaling it
// into [0, 1] over [min, max]. Raw values outside the range clamp to 0 or 1.
// The weight is the feature type's default; use WithWeight to apply a learned
// override.
func NewNormalizedFeature(t FeatureType, raw, min, max float64, metadata map[string]any) (SuggestionFeature, error) {
	if max <= min {
		return SuggestionFeature{}, apperrors.NewValidationError("feature_value", "normalization range is empty")
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return SuggestionFeature{}, apperrors.NewValidationError("feature_value", "raw measurement is not a number")
	}
	value := (raw - min) / (max - min)
	if value < 0 {
		value = 0
	} else if value > 1 {
		value = 1
	}
	return NewFeature(t, value, t.DefaultWeight(), metadata)
}

// WithWeight returns a copy of the feature with the weight replaced.
// Weights outside [0, 1] are clamped.
func (f SuggestionFeature) WithWeight(weight float64) SuggestionFeature {
	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}
	f.Weight = weight
	return f
}

// WeightedValue returns the feature's contribution before normalization by the
// total weight: value * weight.
func (f SuggestionFeature) WeightedValue() float64 {
	return f.Value * f.Weight
}

// Contribution returns this feature's share of the given total weighted sum as
// a percentage (0-100). A zero total yields 0.
func (f SuggestionFeature) Contribution(totalWeightedSum float64) float64 {
	if totalWeightedSum <= 0 {
		return 0
	}
	return f.WeightedValue() / totalWeightedSum * 100
}

// StrengthLabel buckets the normalized value:
// very_strong >= 0.8, strong >= 0.6, moderate >= 0.4, weak otherwise.
func (f SuggestionFeature) StrengthLabel() FeatureStrength {
	switch {
	case f.Value >= 0.8:
		return FeatureStrengthVeryStrong
	case f.Value >= 0.6:
		return FeatureStrengthStrong
	case f.Value >= 0.4:
		return FeatureStrengthModerate
	default:
		return FeatureStrengthWeak
	}
}
