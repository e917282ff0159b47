package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
	"github.com/sagacraft/saga-engine/pkg/database"
	"github.com/sagacraft/saga-engine/pkg/models"
)

// SuggestionRepository provides data access for relationship suggestions and
// their features.
type SuggestionRepository interface {
	// FindPending returns pending suggestions for a saga, highest confidence
	// first. Callers ranking a review queue re-sort by PriorityScore.
	FindPending(ctx context.Context, sagaID int64) ([]*models.RelationshipSuggestion, error)
	GetByID(ctx context.Context, id int64) (*models.RelationshipSuggestion, error)
	FindBySagaAndPair(ctx context.Context, sagaID, sourceEntityID, targetEntityID int64) (*models.RelationshipSuggestion, error)

	// SaveWithFeatures persists a suggestion and its features in one
	// transaction. If a pending suggestion already exists for the same pair it
	// is superseded in place and its features replaced.
	SaveWithFeatures(ctx context.Context, suggestion *models.RelationshipSuggestion, features []models.SuggestionFeature) error
	GetFeatures(ctx context.Context, suggestionID int64) ([]models.SuggestionFeature, error)

	// UpdateStatus applies a reviewed transition. The update is conditioned on
	// status='pending': a row already actioned reports apperrors.ErrConflict,
	// a missing row apperrors.ErrNotFound.
	UpdateStatus(ctx context.Context, s *models.RelationshipSuggestion) error

	// LinkCreatedRelationship records the relationship row created from an
	// accepted or modified suggestion.
	LinkCreatedRelationship(ctx context.Context, suggestionID, relationshipID int64) error

	// FindUnscoredPairs returns entity pairs of the saga with no suggestion,
	// or whose pending suggestion is older than staleAfter.
	FindUnscoredPairs(ctx context.Context, sagaID int64, staleAfter time.Duration, limit int) ([]models.EntityPair, error)

	// CountFeedbackSince counts actioned suggestions since the given time.
	CountFeedbackSince(ctx context.Context, sagaID int64, since time.Time) (int, error)

	// GetFeatureWeightStats aggregates review outcomes per feature type over
	// actioned suggestions where the feature was a major contributor.
	GetFeatureWeightStats(ctx context.Context, sagaID int64, since time.Time) ([]models.FeatureWeightStat, error)

	GetFeatureWeights(ctx context.Context, sagaID int64) (map[models.FeatureType]float64, error)
	UpsertFeatureWeights(ctx context.Context, sagaID int64, weights map[models.FeatureType]float64) error

	LatestRecalibrationAt(ctx context.Context, sagaID int64) (time.Time, error)
	RecordRecalibration(ctx context.Context, rec *models.WeightRecalibration) error
}

type suggestionRepository struct {
	db *database.DB
}

// NewSuggestionRepository creates a new SuggestionRepository.
func NewSuggestionRepository(db *database.DB) SuggestionRepository {
	return &suggestionRepository{db: db}
}

var _ SuggestionRepository = (*suggestionRepository)(nil)

const suggestionColumns = `
	id, saga_id, source_entity_id, target_entity_id,
	suggested_type, confidence_score, strength, reasoning, evidence,
	suggestion_method, ai_model,
	status, user_action_type, user_feedback_text,
	accepted_at, rejected_at, actioned_by, created_relationship_id,
	created_at, updated_at`

func (r *suggestionRepository) FindPending(ctx context.Context, sagaID int64) ([]*models.RelationshipSuggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM saga_relationship_suggestions
		WHERE saga_id = $1 AND status = 'pending'
		ORDER BY confidence_score DESC, created_at ASC`

	rows, err := r.db.Query(ctx, query, sagaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending suggestions: %w", err)
	}
	defer rows.Close()

	return scanSuggestionRows(rows)
}

func (r *suggestionRepository) GetByID(ctx context.Context, id int64) (*models.RelationshipSuggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM saga_relationship_suggestions
		WHERE id = $1`

	s, err := scanSuggestionRow(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return s, err
}

func (r *suggestionRepository) FindBySagaAndPair(ctx context.Context, sagaID, sourceEntityID, targetEntityID int64) (*models.RelationshipSuggestion, error) {
	query := `
		SELECT ` + suggestionColumns + `
		FROM saga_relationship_suggestions
		WHERE saga_id = $1
		  AND source_entity_id = LEAST($2::bigint, $3::bigint)
		  AND target_entity_id = GREATEST($2::bigint, $3::bigint)
		ORDER BY created_at DESC
		LIMIT 1`

	s, err := scanSuggestionRow(r.db.QueryRow(ctx, query, sagaID, sourceEntityID, targetEntityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return s, err
}

func (r *suggestionRepository) SaveWithFeatures(ctx context.Context, suggestion *models.RelationshipSuggestion, features []models.SuggestionFeature) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	if suggestion.CreatedAt.IsZero() {
		suggestion.CreatedAt = now
	}
	suggestion.UpdatedAt = now

	// Supersede an existing pending suggestion for the same pair in place so
	// repeated batches never duplicate rows. Actioned suggestions are history
	// and stay untouched; a fresh row is inserted alongside them.
	var existingID int64
	err = tx.QueryRow(ctx, `
		SELECT id FROM saga_relationship_suggestions
		WHERE saga_id = $1 AND source_entity_id = $2 AND target_entity_id = $3
		  AND status = 'pending'
		FOR UPDATE`,
		suggestion.SagaID, suggestion.SourceEntityID, suggestion.TargetEntityID,
	).Scan(&existingID)

	switch {
	case err == nil:
		suggestion.ID = existingID
		_, err = tx.Exec(ctx, `
			UPDATE saga_relationship_suggestions
			SET suggested_type = $2, confidence_score = $3, strength = $4,
			    reasoning = $5, evidence = $6, suggestion_method = $7,
			    ai_model = $8, updated_at = $9
			WHERE id = $1`,
			existingID,
			suggestion.SuggestedType, suggestion.ConfidenceScore, suggestion.Strength,
			suggestion.Reasoning, suggestion.Evidence, suggestion.Method,
			suggestion.AIModel, suggestion.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to supersede pending suggestion: %w", err)
		}
		if _, err = tx.Exec(ctx, `DELETE FROM saga_suggestion_features WHERE suggestion_id = $1`, existingID); err != nil {
			return fmt.Errorf("failed to clear superseded features: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO saga_relationship_suggestions (
				saga_id, source_entity_id, target_entity_id,
				suggested_type, confidence_score, strength, reasoning, evidence,
				suggestion_method, ai_model, status, user_action_type,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id`,
			suggestion.SagaID, suggestion.SourceEntityID, suggestion.TargetEntityID,
			suggestion.SuggestedType, suggestion.ConfidenceScore, suggestion.Strength,
			suggestion.Reasoning, suggestion.Evidence,
			suggestion.Method, suggestion.AIModel, suggestion.Status, suggestion.UserActionType,
			suggestion.CreatedAt, suggestion.UpdatedAt,
		).Scan(&suggestion.ID)
		if err != nil {
			return fmt.Errorf("failed to insert suggestion: %w", err)
		}
	default:
		return fmt.Errorf("failed to look up existing suggestion: %w", err)
	}

	for i := range features {
		features[i].SuggestionID = suggestion.ID
		if features[i].CreatedAt.IsZero() {
			features[i].CreatedAt = now
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO saga_suggestion_features (
				suggestion_id, feature_type, feature_value, weight, metadata, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			features[i].SuggestionID, features[i].Type, features[i].Value,
			features[i].Weight, features[i].Metadata, features[i].CreatedAt,
		).Scan(&features[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert suggestion feature: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit suggestion save: %w", err)
	}
	return nil
}

func (r *suggestionRepository) GetFeatures(ctx context.Context, suggestionID int64) ([]models.SuggestionFeature, error) {
	query := `
		SELECT id, suggestion_id, feature_type, feature_value, weight, metadata, created_at
		FROM saga_suggestion_features
		WHERE suggestion_id = $1
		ORDER BY feature_value * weight DESC`

	rows, err := r.db.Query(ctx, query, suggestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestion features: %w", err)
	}
	defer rows.Close()

	var features []models.SuggestionFeature
	for rows.Next() {
		var f models.SuggestionFeature
		if err := rows.Scan(&f.ID, &f.SuggestionID, &f.Type, &f.Value, &f.Weight, &f.Metadata, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestion features: %w", err)
	}
	return features, nil
}

func (r *suggestionRepository) UpdateStatus(ctx context.Context, s *models.RelationshipSuggestion) error {
	s.UpdatedAt = time.Now()

	// Conditioned on status='pending' so two concurrent reviewers cannot both
	// action the same suggestion.
	result, err := r.db.Exec(ctx, `
		UPDATE saga_relationship_suggestions
		SET status = $2, user_action_type = $3, user_feedback_text = $4,
		    suggested_type = $5, strength = $6,
		    accepted_at = $7, rejected_at = $8, actioned_by = $9,
		    created_relationship_id = $10, updated_at = $11
		WHERE id = $1 AND status = 'pending'`,
		s.ID, s.Status, s.UserActionType, s.UserFeedbackText,
		s.SuggestedType, s.Strength,
		s.AcceptedAt, s.RejectedAt, s.ActionedBy,
		s.CreatedRelationshipID, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM saga_relationship_suggestions WHERE id = $1)`, s.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check suggestion existence: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrConflict
	}
	return nil
}

func (r *suggestionRepository) LinkCreatedRelationship(ctx context.Context, suggestionID, relationshipID int64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE saga_relationship_suggestions
		SET created_relationship_id = $2, updated_at = NOW()
		WHERE id = $1`,
		suggestionID, relationshipID,
	)
	if err != nil {
		return fmt.Errorf("failed to link created relationship: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *suggestionRepository) FindUnscoredPairs(ctx context.Context, sagaID int64, staleAfter time.Duration, limit int) ([]models.EntityPair, error) {
	// Every unordered entity pair of the saga that has no suggestion at all,
	// or whose only pending suggestion has gone stale. Actioned pairs are
	// settled and never re-proposed.
	query := `
		SELECT a.id, b.id
		FROM saga_entities a
		JOIN saga_entities b ON b.saga_id = a.saga_id AND b.id > a.id
		WHERE a.saga_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM saga_relationship_suggestions s
			WHERE s.saga_id = a.saga_id
			  AND s.source_entity_id = a.id AND s.target_entity_id = b.id
			  AND (s.status <> 'pending' OR s.updated_at > $2)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM saga_relationships r
			WHERE r.saga_id = a.saga_id
			  AND LEAST(r.source_entity_id, r.target_entity_id) = a.id
			  AND GREATEST(r.source_entity_id, r.target_entity_id) = b.id
		  )
		ORDER BY a.id, b.id
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, sagaID, time.Now().Add(-staleAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unscored pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.EntityPair
	for rows.Next() {
		p := models.EntityPair{SagaID: sagaID}
		if err := rows.Scan(&p.SourceID, &p.TargetID); err != nil {
			return nil, fmt.Errorf("failed to scan entity pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity pairs: %w", err)
	}
	return pairs, nil
}

func (r *suggestionRepository) CountFeedbackSince(ctx context.Context, sagaID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM saga_relationship_suggestions
		WHERE saga_id = $1 AND status <> 'pending' AND updated_at > $2`,
		sagaID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

func (r *suggestionRepository) GetFeatureWeightStats(ctx context.Context, sagaID int64, since time.Time) ([]models.FeatureWeightStat, error) {
	// A feature counts as a major contributor when its weighted value carries
	// at least a quarter of the suggestion's weighted sum. Modified counts as
	// accepted: the reviewer confirmed the relationship exists.
	query := `
		WITH totals AS (
			SELECT f.suggestion_id, SUM(f.feature_value * f.weight) AS total
			FROM saga_suggestion_features f
			GROUP BY f.suggestion_id
		)
		SELECT f.feature_type,
		       COUNT(*) AS actioned,
		       COUNT(*) FILTER (WHERE s.status IN ('accepted', 'modified')) AS accepted
		FROM saga_suggestion_features f
		JOIN saga_relationship_suggestions s ON s.id = f.suggestion_id
		JOIN totals t ON t.suggestion_id = f.suggestion_id
		WHERE s.saga_id = $1
		  AND s.status <> 'pending'
		  AND s.updated_at > $2
		  AND t.total > 0
		  AND f.feature_value * f.weight >= t.total * 0.25
		GROUP BY f.feature_type`

	rows, err := r.db.Query(ctx, query, sagaID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature weight stats: %w", err)
	}
	defer rows.Close()

	var stats []models.FeatureWeightStat
	for rows.Next() {
		var st models.FeatureWeightStat
		if err := rows.Scan(&st.Type, &st.Actioned, &st.Accepted); err != nil {
			return nil, fmt.Errorf("failed to scan feature weight stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature weight stats: %w", err)
	}
	return stats, nil
}

func (r *suggestionRepository) GetFeatureWeights(ctx context.Context, sagaID int64) (map[models.FeatureType]float64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT feature_type, weight
		FROM saga_feature_weights
		WHERE saga_id = $1`,
		sagaID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature weights: %w", err)
	}
	defer rows.Close()

	weights := make(map[models.FeatureType]float64)
	for rows.Next() {
		var t models.FeatureType
		var w float64
		if err := rows.Scan(&t, &w); err != nil {
			return nil, fmt.Errorf("failed to scan feature weight: %w", err)
		}
		weights[t] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature weights: %w", err)
	}
	return weights, nil
}

func (r *suggestionRepository) UpsertFeatureWeights(ctx context.Context, sagaID int64, weights map[models.FeatureType]float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	for t, w := range weights {
		_, err := tx.Exec(ctx, `
			INSERT INTO saga_feature_weights (saga_id, feature_type, weight, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (saga_id, feature_type)
			DO UPDATE SET weight = EXCLUDED.weight, updated_at = EXCLUDED.updated_at`,
			sagaID, t, w, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert weight for %s: %w", t, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit weight upsert: %w", err)
	}
	return nil
}

func (r *suggestionRepository) LatestRecalibrationAt(ctx context.Context, sagaID int64) (time.Time, error) {
	var ranAt *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT MAX(ran_at)
		FROM saga_weight_recalibrations
		WHERE saga_id = $1`,
		sagaID,
	).Scan(&ranAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest recalibration: %w", err)
	}
	if ranAt == nil {
		return time.Time{}, nil
	}
	return *ranAt, nil
}

func (r *suggestionRepository) RecordRecalibration(ctx context.Context, rec *models.WeightRecalibration) error {
	if rec.RanAt.IsZero() {
		rec.RanAt = time.Now()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO saga_weight_recalibrations (saga_id, feedback_count, adjustments, ran_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		rec.SagaID, rec.FeedbackCount, rec.Adjustments, rec.RanAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to record recalibration: %w", err)
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

func scanSuggestionRow(row pgx.Row) (*models.RelationshipSuggestion, error) {
	var s models.RelationshipSuggestion

	err := row.Scan(
		&s.ID, &s.SagaID, &s.SourceEntityID, &s.TargetEntityID,
		&s.SuggestedType, &s.ConfidenceScore, &s.Strength, &s.Reasoning, &s.Evidence,
		&s.Method, &s.AIModel,
		&s.Status, &s.UserActionType, &s.UserFeedbackText,
		&s.AcceptedAt, &s.RejectedAt, &s.ActionedBy, &s.CreatedRelationshipID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan suggestion: %w", err)
	}

	return &s, nil
}

func scanSuggestionRows(rows pgx.Rows) ([]*models.RelationshipSuggestion, error) {
	var suggestions []*models.RelationshipSuggestion

	for rows.Next() {
		s, err := scanSuggestionRow(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating suggestion rows: %w", err)
	}

	return suggestions, nil
}
