package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/repositories"
)

// SystemReviewerID is recorded as actioned_by when the engine itself accepts a
// suggestion (auto-accept), rather than a human reviewer.
var SystemReviewerID = uuid.Nil

// SuggestionService is the feedback entry point: listing the review queue and
// applying accept/reject/modify decisions.
type SuggestionService interface {
	// ListPending returns the saga's review queue ordered by priority score,
	// highest first.
	ListPending(ctx context.Context, sagaID int64) ([]*models.RelationshipSuggestion, error)
	GetWithFeatures(ctx context.Context, id int64) (*models.RelationshipSuggestion, []models.SuggestionFeature, error)

	// Accept confirms the suggestion and creates the relationship it proposed.
	Accept(ctx context.Context, id int64, actionedBy uuid.UUID) (*models.RelationshipSuggestion, error)
	// Reject declines the suggestion, optionally recording why.
	Reject(ctx context.Context, id int64, actionedBy uuid.UUID, feedbackText string) (*models.RelationshipSuggestion, error)
	// Modify confirms the relationship exists but with corrected type and
	// strength, and creates the relationship from the corrected values.
	Modify(ctx context.Context, id int64, actionedBy uuid.UUID, newType string, newStrength int, feedbackText string) (*models.RelationshipSuggestion, error)
}

type suggestionService struct {
	suggestionRepo repositories.SuggestionRepository
	entityRepo     repositories.EntityRepository
	logger         *zap.Logger
}

// NewSuggestionService creates a new suggestion service.
func NewSuggestionService(
	suggestionRepo repositories.SuggestionRepository,
	entityRepo repositories.EntityRepository,
	logger *zap.Logger,
) SuggestionService {
	return &suggestionService{
		suggestionRepo: suggestionRepo,
		entityRepo:     entityRepo,
		logger:         logger.Named("suggestion-service"),
	}
}

func (s *suggestionService) ListPending(ctx context.Context, sagaID int64) ([]*models.RelationshipSuggestion, error) {
	suggestions, err := s.suggestionRepo.FindPending(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].PriorityScore() > suggestions[j].PriorityScore()
	})
	return suggestions, nil
}

func (s *suggestionService) GetWithFeatures(ctx context.Context, id int64) (*models.RelationshipSuggestion, []models.SuggestionFeature, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	features, err := s.suggestionRepo.GetFeatures(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return suggestion, features, nil
}

func (s *suggestionService) Accept(ctx context.Context, id int64, actionedBy uuid.UUID) (*models.RelationshipSuggestion, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Transition validates the pending state; the status-conditioned update
	// below is the arbiter under concurrent reviewers.
	accepted, err := suggestion.Accept(actionedBy, 0)
	if err != nil {
		return nil, err
	}
	accepted.CreatedRelationshipID = nil
	if err := s.suggestionRepo.UpdateStatus(ctx, &accepted); err != nil {
		return nil, err
	}

	relationshipID, err := s.entityRepo.CreateRelationship(ctx, &models.Relationship{
		SagaID:           accepted.SagaID,
		SourceEntityID:   accepted.SourceEntityID,
		TargetEntityID:   accepted.TargetEntityID,
		RelationshipType: accepted.SuggestedType,
		Strength:         accepted.Strength,
		Description:      accepted.Reasoning,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion accepted but relationship creation failed: %w", err)
	}
	if err := s.suggestionRepo.LinkCreatedRelationship(ctx, accepted.ID, relationshipID); err != nil {
		return nil, err
	}
	accepted.CreatedRelationshipID = &relationshipID

	s.logger.Info("suggestion accepted",
		zap.Int64("suggestion_id", accepted.ID),
		zap.Int64("relationship_id", relationshipID),
		zap.String("actioned_by", actionedBy.String()))

	return &accepted, nil
}

func (s *suggestionService) Reject(ctx context.Context, id int64, actionedBy uuid.UUID, feedbackText string) (*models.RelationshipSuggestion, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rejected, err := suggestion.Reject(actionedBy, feedbackText)
	if err != nil {
		return nil, err
	}
	if err := s.suggestionRepo.UpdateStatus(ctx, &rejected); err != nil {
		return nil, err
	}

	s.logger.Info("suggestion rejected",
		zap.Int64("suggestion_id", rejected.ID),
		zap.String("actioned_by", actionedBy.String()))

	return &rejected, nil
}

func (s *suggestionService) Modify(ctx context.Context, id int64, actionedBy uuid.UUID, newType string, newStrength int, feedbackText string) (*models.RelationshipSuggestion, error) {
	suggestion, err := s.suggestionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	modified, err := suggestion.Modify(actionedBy, newType, newStrength, 0)
	if err != nil {
		return nil, err
	}
	modified.CreatedRelationshipID = nil
	if feedbackText != "" {
		modified.UserFeedbackText = &feedbackText
	}
	if err := s.suggestionRepo.UpdateStatus(ctx, &modified); err != nil {
		return nil, err
	}

	relationshipID, err := s.entityRepo.CreateRelationship(ctx, &models.Relationship{
		SagaID:           modified.SagaID,
		SourceEntityID:   modified.SourceEntityID,
		TargetEntityID:   modified.TargetEntityID,
		RelationshipType: newType,
		Strength:         newStrength,
		Description:      modified.Reasoning,
	})
	if err != nil {
		return nil, fmt.Errorf("suggestion modified but relationship creation failed: %w", err)
	}
	if err := s.suggestionRepo.LinkCreatedRelationship(ctx, modified.ID, relationshipID); err != nil {
		return nil, err
	}
	modified.CreatedRelationshipID = &relationshipID

	s.logger.Info("suggestion modified",
		zap.Int64("suggestion_id", modified.ID),
		zap.Int64("relationship_id", relationshipID),
		zap.String("new_type", newType),
		zap.Int("new_strength", newStrength),
		zap.String("actioned_by", actionedBy.String()))

	return &modified, nil
}
