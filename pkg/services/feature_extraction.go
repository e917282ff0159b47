package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/evidence"
	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/repositories"
	"github.com/sagacraft/saga-engine/pkg/retry"
)

// signalBounds defines the raw measurement range for one feature type.
// Raw values are normalized into [0,1] over this range, clamping outside it.
type signalBounds struct {
	Min float64
	Max float64
}

// normalizationBounds matches the measurement scales the evidence provider is
// prompted to use. A provider signal with no entry here is ignored.
var normalizationBounds = map[models.FeatureType]signalBounds{
	models.FeatureTypeCoOccurrence:        {Min: 0, Max: 30},
	models.FeatureTypeSemanticSimilarity:  {Min: 0, Max: 1},
	models.FeatureTypeTimelineProximity:   {Min: 0, Max: 100},
	models.FeatureTypeSharedLocation:      {Min: 0, Max: 10},
	models.FeatureTypeSharedFaction:       {Min: 0, Max: 5},
	models.FeatureTypeAttributeSimilarity: {Min: 0, Max: 1},
	models.FeatureTypeNetworkCentrality:   {Min: 0, Max: 50},
}

// ExtractionResult is the normalized evidence for one entity pair.
type ExtractionResult struct {
	Features []models.SuggestionFeature
	// Evaluation is the raw provider verdict the features were derived from,
	// kept for the prediction layer's type/strength recommendation.
	Evaluation *evidence.Evaluation
}

// FeatureExtractionService turns one provider evaluation of an entity pair
// into normalized, weighted suggestion features.
type FeatureExtractionService interface {
	// Extract evaluates the pair and returns its usable features. A partial
	// feature set is valid; an empty one means no suggestion should be made.
	Extract(ctx context.Context, pair models.EntityPair) (*ExtractionResult, error)
}

type featureExtractionService struct {
	entityRepo     repositories.EntityRepository
	suggestionRepo repositories.SuggestionRepository
	provider       evidence.Provider
	retryConfig    *retry.Config
	logger         *zap.Logger
}

// NewFeatureExtractionService creates a new feature extraction service.
func NewFeatureExtractionService(
	entityRepo repositories.EntityRepository,
	suggestionRepo repositories.SuggestionRepository,
	provider evidence.Provider,
	logger *zap.Logger,
) FeatureExtractionService {
	return &featureExtractionService{
		entityRepo:     entityRepo,
		suggestionRepo: suggestionRepo,
		provider:       provider,
		retryConfig:    retry.DefaultConfig(),
		logger:         logger.Named("feature-extraction"),
	}
}

func (s *featureExtractionService) Extract(ctx context.Context, pair models.EntityPair) (*ExtractionResult, error) {
	source, target, sagaCtx, err := s.loadPairContext(ctx, pair)
	if err != nil {
		return nil, err
	}

	// Provider errors carry their own retryability (evidence.Error), so only
	// transient failures burn retries.
	eval, err := retry.DoWithResultIfRetryable(ctx, s.retryConfig, func() (*evidence.Evaluation, error) {
		return s.provider.Evaluate(ctx, source, target, sagaCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("provider evaluation failed for pair (%d, %d): %w", pair.SourceID, pair.TargetID, err)
	}

	overrides, err := s.suggestionRepo.GetFeatureWeights(ctx, pair.SagaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load weight overrides: %w", err)
	}

	features := make([]models.SuggestionFeature, 0, len(eval.RawSignals))
	for featureType, raw := range eval.RawSignals {
		bounds, ok := normalizationBounds[featureType]
		if !ok {
			s.logger.Warn("provider returned unknown signal, dropping it",
				zap.String("feature_type", string(featureType)))
			continue
		}

		feature, err := models.NewNormalizedFeature(featureType, raw, bounds.Min, bounds.Max, map[string]any{
			"raw": raw,
			"min": bounds.Min,
			"max": bounds.Max,
		})
		if err != nil {
			s.logger.Warn("provider returned unusable signal, dropping it",
				zap.String("feature_type", string(featureType)),
				zap.Float64("raw", raw),
				zap.Error(err))
			continue
		}

		if override, ok := overrides[featureType]; ok {
			feature = feature.WithWeight(override)
		}
		features = append(features, feature)
	}

	s.logger.Debug("extracted pair features",
		zap.Int64("saga_id", pair.SagaID),
		zap.Int64("source_entity_id", pair.SourceID),
		zap.Int64("target_entity_id", pair.TargetID),
		zap.Int("features", len(features)),
		zap.String("method", string(eval.Method)))

	return &ExtractionResult{Features: features, Evaluation: eval}, nil
}

func (s *featureExtractionService) loadPairContext(ctx context.Context, pair models.EntityPair) (evidence.EntityRef, evidence.EntityRef, evidence.SagaContext, error) {
	var zero evidence.EntityRef

	saga, err := s.entityRepo.GetSaga(ctx, pair.SagaID)
	if err != nil {
		return zero, zero, evidence.SagaContext{}, fmt.Errorf("failed to load saga %d: %w", pair.SagaID, err)
	}
	sourceEntity, err := s.entityRepo.GetEntity(ctx, pair.SourceID)
	if err != nil {
		return zero, zero, evidence.SagaContext{}, fmt.Errorf("failed to load entity %d: %w", pair.SourceID, err)
	}
	targetEntity, err := s.entityRepo.GetEntity(ctx, pair.TargetID)
	if err != nil {
		return zero, zero, evidence.SagaContext{}, fmt.Errorf("failed to load entity %d: %w", pair.TargetID, err)
	}
	kindCounts, err := s.entityRepo.CountEntitiesByKind(ctx, pair.SagaID)
	if err != nil {
		return zero, zero, evidence.SagaContext{}, fmt.Errorf("failed to load entity kind counts: %w", err)
	}

	toRef := func(e *models.Entity) evidence.EntityRef {
		return evidence.EntityRef{ID: e.ID, Name: e.Name, Kind: e.Kind, Description: e.Description}
	}
	sagaCtx := evidence.SagaContext{
		SagaID:           saga.ID,
		Title:            saga.Title,
		Genre:            saga.Genre,
		EntityKindCounts: kindCounts,
	}
	return toRef(sourceEntity), toRef(targetEntity), sagaCtx, nil
}
