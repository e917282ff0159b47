package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sagacraft/saga-engine/pkg/evidence"
	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/repositories"
	"github.com/sagacraft/saga-engine/pkg/workerpool"
)

// ProcessorConfig tunes the background batch generator.
type ProcessorConfig struct {
	// MaxPairsPerBatch caps how many pairs one RunBatch tick evaluates.
	MaxPairsPerBatch int
	// StalePendingAfter is how old a pending suggestion must be before its
	// pair is re-evaluated.
	StalePendingAfter time.Duration
	// CallsPerMinute is the rolling-window provider call budget.
	CallsPerMinute int
	// RecalibrationThreshold is how many feedback decisions must accumulate
	// before weights are recalibrated.
	RecalibrationThreshold int
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxPairsPerBatch:       50,
		StalePendingAfter:      7 * 24 * time.Hour,
		CallsPerMinute:         30,
		RecalibrationThreshold: 10,
	}
}

// BatchResult summarizes one RunBatch tick.
type BatchResult struct {
	Generated       int  `json:"generated"`
	Skipped         int  `json:"skipped"`
	BudgetExhausted bool `json:"budget_exhausted"`
}

// BackgroundProcessor generates suggestions for unscored pairs in bounded,
// rate-limited batches. The scheduler that decides when to tick lives outside
// the engine; RunBatch is safe to call repeatedly.
type BackgroundProcessor interface {
	RunBatch(ctx context.Context, sagaID int64, maxPairs int) (*BatchResult, error)
}

type backgroundProcessor struct {
	config         ProcessorConfig
	suggestionRepo repositories.SuggestionRepository
	prediction     RelationshipPredictionService
	suggestions    SuggestionService
	pool           *workerpool.Pool
	limiter        *rate.Limiter
	breaker        *evidence.CircuitBreaker
	logger         *zap.Logger
}

// NewBackgroundProcessor creates a new background processor.
func NewBackgroundProcessor(
	config ProcessorConfig,
	suggestionRepo repositories.SuggestionRepository,
	prediction RelationshipPredictionService,
	suggestions SuggestionService,
	pool *workerpool.Pool,
	logger *zap.Logger,
) BackgroundProcessor {
	if config.MaxPairsPerBatch < 1 {
		config.MaxPairsPerBatch = 50
	}
	if config.CallsPerMinute < 1 {
		config.CallsPerMinute = 30
	}
	if config.RecalibrationThreshold < 1 {
		config.RecalibrationThreshold = 10
	}
	if config.StalePendingAfter <= 0 {
		config.StalePendingAfter = 7 * 24 * time.Hour
	}
	return &backgroundProcessor{
		config:         config,
		suggestionRepo: suggestionRepo,
		prediction:     prediction,
		suggestions:    suggestions,
		pool:           pool,
		limiter:        rate.NewLimiter(rate.Limit(float64(config.CallsPerMinute)/60.0), config.CallsPerMinute),
		breaker:        evidence.NewCircuitBreaker(evidence.DefaultCircuitBreakerConfig()),
		logger:         logger.Named("background-processor"),
	}
}

func (p *backgroundProcessor) RunBatch(ctx context.Context, sagaID int64, maxPairs int) (*BatchResult, error) {
	if maxPairs < 1 || maxPairs > p.config.MaxPairsPerBatch {
		maxPairs = p.config.MaxPairsPerBatch
	}

	pairs, err := p.suggestionRepo.FindUnscoredPairs(ctx, sagaID, p.config.StalePendingAfter, maxPairs)
	if err != nil {
		return nil, fmt.Errorf("failed to select pairs: %w", err)
	}
	if len(pairs) == 0 {
		p.logger.Debug("no unscored pairs", zap.Int64("saga_id", sagaID))
		// Still a tick: accumulated feedback may warrant recalibration.
		if err := p.maybeRecalibrate(ctx, sagaID); err != nil {
			p.logger.Warn("weight recalibration failed", zap.Int64("saga_id", sagaID), zap.Error(err))
		}
		return &BatchResult{}, nil
	}

	p.logger.Info("starting suggestion batch",
		zap.Int64("saga_id", sagaID),
		zap.Int("pairs", len(pairs)))

	var budgetExhausted atomic.Bool

	items := make([]workerpool.WorkItem[*models.RelationshipSuggestion], len(pairs))
	for i, pair := range pairs {
		items[i] = workerpool.WorkItem[*models.RelationshipSuggestion]{
			ID:      fmt.Sprintf("pair-%d-%d", pair.SourceID, pair.TargetID),
			Execute: p.pairWorker(pair, &budgetExhausted),
		}
	}

	results := workerpool.Process(ctx, p.pool, items, nil)

	batch := &BatchResult{BudgetExhausted: budgetExhausted.Load()}
	for _, r := range results {
		switch {
		case r.Err != nil:
			// Skip-and-continue: one bad pair never fails the batch.
			p.logger.Warn("pair evaluation skipped", zap.String("pair", r.ID), zap.Error(r.Err))
			batch.Skipped++
		case r.Result == nil:
			batch.Skipped++
		default:
			batch.Generated++
		}
	}

	p.logger.Info("suggestion batch finished",
		zap.Int64("saga_id", sagaID),
		zap.Int("generated", batch.Generated),
		zap.Int("skipped", batch.Skipped),
		zap.Bool("budget_exhausted", batch.BudgetExhausted))

	if err := p.maybeRecalibrate(ctx, sagaID); err != nil {
		// Recalibration is best-effort; the generated suggestions stand.
		p.logger.Warn("weight recalibration failed", zap.Int64("saga_id", sagaID), zap.Error(err))
	}

	return batch, nil
}

// pairWorker builds the worker-pool task for one pair: consult the call
// budget, consult the circuit breaker, generate, auto-accept when warranted.
func (p *backgroundProcessor) pairWorker(pair models.EntityPair, budgetExhausted *atomic.Bool) func(ctx context.Context) (*models.RelationshipSuggestion, error) {
	return func(ctx context.Context) (*models.RelationshipSuggestion, error) {
		if budgetExhausted.Load() {
			return nil, nil
		}
		if !p.limiter.Allow() {
			// Rolling-window budget spent; the rest of the batch stops
			// gracefully and the pairs stay unscored for the next tick.
			budgetExhausted.Store(true)
			return nil, nil
		}
		if allowed, err := p.breaker.Allow(); !allowed {
			return nil, err
		}

		suggestion, err := p.prediction.GenerateSuggestion(ctx, pair)
		if err != nil {
			p.breaker.RecordFailure()
			return nil, err
		}
		p.breaker.RecordSuccess()

		if suggestion != nil && suggestion.ShouldAutoAccept() {
			accepted, acceptErr := p.suggestions.Accept(ctx, suggestion.ID, SystemReviewerID)
			if acceptErr != nil {
				p.logger.Warn("auto-accept failed, suggestion stays pending",
					zap.Int64("suggestion_id", suggestion.ID),
					zap.Error(acceptErr))
				return suggestion, nil
			}
			p.logger.Info("suggestion auto-accepted",
				zap.Int64("suggestion_id", accepted.ID),
				zap.Float64("confidence", accepted.ConfidenceScore))
			return accepted, nil
		}

		return suggestion, nil
	}
}

// maybeRecalibrate adjusts per-type weights once enough feedback accumulated
// since the last recalibration.
func (p *backgroundProcessor) maybeRecalibrate(ctx context.Context, sagaID int64) error {
	lastRun, err := p.suggestionRepo.LatestRecalibrationAt(ctx, sagaID)
	if err != nil {
		return err
	}

	feedbackCount, err := p.suggestionRepo.CountFeedbackSince(ctx, sagaID, lastRun)
	if err != nil {
		return err
	}
	if feedbackCount < p.config.RecalibrationThreshold {
		return nil
	}

	stats, err := p.suggestionRepo.GetFeatureWeightStats(ctx, sagaID, lastRun)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return nil
	}

	current, err := p.suggestionRepo.GetFeatureWeights(ctx, sagaID)
	if err != nil {
		return err
	}

	adjustments := make(map[models.FeatureType]float64, len(stats))
	for _, stat := range stats {
		weight, ok := current[stat.Type]
		if !ok {
			weight = stat.Type.DefaultWeight()
		}
		adjustments[stat.Type] = models.RecalibratedWeight(weight, stat.AcceptRate())
	}

	if err := p.suggestionRepo.UpsertFeatureWeights(ctx, sagaID, adjustments); err != nil {
		return err
	}
	if err := p.suggestionRepo.RecordRecalibration(ctx, &models.WeightRecalibration{
		SagaID:        sagaID,
		FeedbackCount: feedbackCount,
		Adjustments:   adjustments,
	}); err != nil {
		return err
	}

	p.logger.Info("feature weights recalibrated",
		zap.Int64("saga_id", sagaID),
		zap.Int("feedback_count", feedbackCount),
		zap.Int("types_adjusted", len(adjustments)))

	return nil
}
