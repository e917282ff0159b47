package services

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/repositories"
)

// neutralStrength is used when neither the provider nor the features commit to
// a strength.
const neutralStrength = 50

// dominantFeatureTypes maps each feature type to the relationship type it
// implies when it dominates the evidence and the provider offered no
// recommendation of its own.
var dominantFeatureTypes = map[models.FeatureType]string{
	models.FeatureTypeCoOccurrence:        "associate",
	models.FeatureTypeSemanticSimilarity:  "parallel",
	models.FeatureTypeTimelineProximity:   "contemporary",
	models.FeatureTypeSharedLocation:      "neighbor",
	models.FeatureTypeSharedFaction:       "comrade",
	models.FeatureTypeAttributeSimilarity: "counterpart",
	models.FeatureTypeNetworkCentrality:   "connector",
}

// RelationshipPredictionService turns extracted features into a persisted
// pending suggestion.
type RelationshipPredictionService interface {
	// GenerateSuggestion extracts evidence for the pair, scores it, and
	// persists the suggestion with its features. Returns nil when the pair
	// produced no usable evidence.
	GenerateSuggestion(ctx context.Context, pair models.EntityPair) (*models.RelationshipSuggestion, error)
}

type relationshipPredictionService struct {
	extraction     FeatureExtractionService
	suggestionRepo repositories.SuggestionRepository
	logger         *zap.Logger
}

// NewRelationshipPredictionService creates a new prediction service.
func NewRelationshipPredictionService(
	extraction FeatureExtractionService,
	suggestionRepo repositories.SuggestionRepository,
	logger *zap.Logger,
) RelationshipPredictionService {
	return &relationshipPredictionService{
		extraction:     extraction,
		suggestionRepo: suggestionRepo,
		logger:         logger.Named("relationship-prediction"),
	}
}

func (s *relationshipPredictionService) GenerateSuggestion(ctx context.Context, pair models.EntityPair) (*models.RelationshipSuggestion, error) {
	result, err := s.extraction.Extract(ctx, pair)
	if err != nil {
		return nil, err
	}
	if len(result.Features) == 0 {
		s.logger.Info("pair produced no usable evidence, skipping",
			zap.Int64("saga_id", pair.SagaID),
			zap.Int64("source_entity_id", pair.SourceID),
			zap.Int64("target_entity_id", pair.TargetID))
		return nil, nil
	}

	confidence := ConfidenceScore(result.Features)
	eval := result.Evaluation

	suggestedType, strength := s.recommendation(result)

	suggestion, err := models.NewRelationshipSuggestion(
		pair.SagaID, pair.SourceID, pair.TargetID,
		suggestedType, confidence, strength, eval.Method,
	)
	if err != nil {
		return nil, fmt.Errorf("suggestion failed validation: %w", err)
	}
	suggestion.Reasoning = eval.Reasoning
	suggestion.AIModel = eval.Model
	suggestion.Evidence = evidenceSummary(result.Features)

	if err := s.suggestionRepo.SaveWithFeatures(ctx, &suggestion, result.Features); err != nil {
		return nil, fmt.Errorf("failed to persist suggestion: %w", err)
	}

	s.logger.Info("generated relationship suggestion",
		zap.Int64("suggestion_id", suggestion.ID),
		zap.Int64("saga_id", pair.SagaID),
		zap.Int64("source_entity_id", pair.SourceID),
		zap.Int64("target_entity_id", pair.TargetID),
		zap.String("suggested_type", suggestedType),
		zap.Float64("confidence", confidence),
		zap.String("method", string(eval.Method)))

	return &suggestion, nil
}

// recommendation picks the suggested type and strength. The provider's own
// recommendation wins when the semantic channel corroborates it; a
// content-only evaluation falls back to the dominant feature.
func (s *relationshipPredictionService) recommendation(result *ExtractionResult) (string, int) {
	eval := result.Evaluation

	if eval.SuggestedType != "" && eval.Method != models.SuggestionMethodContent {
		strength := neutralStrength
		if eval.SuggestedStrength != nil && *eval.SuggestedStrength >= 0 && *eval.SuggestedStrength <= 100 {
			strength = *eval.SuggestedStrength
		}
		return eval.SuggestedType, strength
	}

	dominant := dominantFeature(result.Features)
	suggestedType, ok := dominantFeatureTypes[dominant.Type]
	if !ok {
		suggestedType = "associate"
	}
	if eval.SuggestedType != "" {
		// An uncorroborated provider recommendation still beats a guess from
		// the signal table.
		suggestedType = eval.SuggestedType
	}

	strength := neutralStrength
	if dominant.Value >= 0.6 {
		strength = int(math.Round(dominant.Value * 100))
	}
	return suggestedType, strength
}

// ConfidenceScore computes the weighted mean of the features scaled to 0-100:
// sum(value*weight) / sum(weight) * 100.
func ConfidenceScore(features []models.SuggestionFeature) float64 {
	var weightedSum, totalWeight float64
	for _, f := range features {
		weightedSum += f.WeightedValue()
		totalWeight += f.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	score := weightedSum / totalWeight * 100
	if score > 100 {
		score = 100
	} else if score < 0 {
		score = 0
	}
	return score
}

// dominantFeature returns the feature with the highest weighted value.
func dominantFeature(features []models.SuggestionFeature) models.SuggestionFeature {
	dominant := features[0]
	for _, f := range features[1:] {
		if f.WeightedValue() > dominant.WeightedValue() {
			dominant = f
		}
	}
	return dominant
}

// evidenceSummary flattens the features into the suggestion's evidence map for
// API consumers who do not fetch the feature rows.
func evidenceSummary(features []models.SuggestionFeature) map[string]any {
	var total float64
	for _, f := range features {
		total += f.WeightedValue()
	}

	summary := make(map[string]any, len(features))
	for _, f := range features {
		summary[string(f.Type)] = map[string]any{
			"value":        f.Value,
			"weight":       f.Weight,
			"contribution": f.Contribution(total),
			"strength":     string(f.StrengthLabel()),
		}
	}
	return summary
}
