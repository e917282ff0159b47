package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/services"
)

// stubSuggestionService is a canned-response implementation of
// services.SuggestionService for handler tests.
type stubSuggestionService struct {
	pending  []*models.RelationshipSuggestion
	features []models.SuggestionFeature

	listErr error
	getErr  error

	acceptErr error
	rejectErr error
	modifyErr error

	lastActionedBy uuid.UUID
	lastFeedback   string
	lastNewType    string
	lastStrength   int
}

func (s *stubSuggestionService) ListPending(ctx context.Context, sagaID int64) ([]*models.RelationshipSuggestion, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.pending, nil
}

func (s *stubSuggestionService) GetWithFeatures(ctx context.Context, id int64) (*models.RelationshipSuggestion, []models.SuggestionFeature, error) {
	if s.getErr != nil {
		return nil, nil, s.getErr
	}
	for _, p := range s.pending {
		if p.ID == id {
			return p, s.features, nil
		}
	}
	return nil, nil, apperrors.ErrNotFound
}

func (s *stubSuggestionService) Accept(ctx context.Context, id int64, actionedBy uuid.UUID) (*models.RelationshipSuggestion, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	s.lastActionedBy = actionedBy
	for _, p := range s.pending {
		if p.ID == id {
			accepted, err := p.Accept(actionedBy, 999)
			if err != nil {
				return nil, err
			}
			return &accepted, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *stubSuggestionService) Reject(ctx context.Context, id int64, actionedBy uuid.UUID, feedbackText string) (*models.RelationshipSuggestion, error) {
	if s.rejectErr != nil {
		return nil, s.rejectErr
	}
	s.lastActionedBy = actionedBy
	s.lastFeedback = feedbackText
	for _, p := range s.pending {
		if p.ID == id {
			rejected, err := p.Reject(actionedBy, feedbackText)
			if err != nil {
				return nil, err
			}
			return &rejected, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *stubSuggestionService) Modify(ctx context.Context, id int64, actionedBy uuid.UUID, newType string, newStrength int, feedbackText string) (*models.RelationshipSuggestion, error) {
	if s.modifyErr != nil {
		return nil, s.modifyErr
	}
	s.lastActionedBy = actionedBy
	s.lastNewType = newType
	s.lastStrength = newStrength
	s.lastFeedback = feedbackText
	for _, p := range s.pending {
		if p.ID == id {
			modified, err := p.Modify(actionedBy, newType, newStrength, 999)
			if err != nil {
				return nil, err
			}
			return &modified, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// stubProcessor is a canned-response implementation of
// services.BackgroundProcessor for handler tests.
type stubProcessor struct {
	result       *services.BatchResult
	err          error
	lastSagaID   int64
	lastMaxPairs int
}

func (p *stubProcessor) RunBatch(ctx context.Context, sagaID int64, maxPairs int) (*services.BatchResult, error) {
	p.lastSagaID = sagaID
	p.lastMaxPairs = maxPairs
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

// pendingSuggestion builds one pending suggestion for handler tests.
func pendingSuggestion(id int64, suggestedType string, confidence float64, strength int, method models.SuggestionMethod) *models.RelationshipSuggestion {
	return &models.RelationshipSuggestion{
		ID:              id,
		SagaID:          1,
		SourceEntityID:  10,
		TargetEntityID:  11,
		SuggestedType:   suggestedType,
		ConfidenceScore: confidence,
		Strength:        strength,
		Method:          method,
		Status:          models.SuggestionStatusPending,
		UserActionType:  models.UserActionNone,
	}
}
