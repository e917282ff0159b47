package models

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
)

// ============================================================================
// Suggestion Method
// ============================================================================

// SuggestionMethod identifies which evidence channel(s) produced a suggestion.
type SuggestionMethod string

const (
	// SuggestionMethodContent means the suggestion is purely signal-derived.
	SuggestionMethodContent SuggestionMethod = "content"
	// SuggestionMethodSemantic means the evidence provider supplied the
	// type/strength recommendation.
	SuggestionMethodSemantic SuggestionMethod = "semantic"
	// SuggestionMethodHybrid means content signals and a provider
	// recommendation corroborate each other.
	SuggestionMethodHybrid SuggestionMethod = "hybrid"
)

// ValidSuggestionMethods contains all valid method values.
var ValidSuggestionMethods = []SuggestionMethod{
	SuggestionMethodContent,
	SuggestionMethodSemantic,
	SuggestionMethodHybrid,
}

// IsValidSuggestionMethod checks if the given method is valid.
func IsValidSuggestionMethod(m SuggestionMethod) bool {
	return slices.Contains(ValidSuggestionMethods, m)
}

// ============================================================================
// Suggestion Status
// ============================================================================

// SuggestionStatus represents the review state of a suggestion.
// pending is the only non-terminal state.
type SuggestionStatus string

const (
	SuggestionStatusPending  SuggestionStatus = "pending"
	SuggestionStatusAccepted SuggestionStatus = "accepted"
	SuggestionStatusRejected SuggestionStatus = "rejected"
	SuggestionStatusModified SuggestionStatus = "modified"
)

// ValidSuggestionStatuses contains all valid status values.
var ValidSuggestionStatuses = []SuggestionStatus{
	SuggestionStatusPending,
	SuggestionStatusAccepted,
	SuggestionStatusRejected,
	SuggestionStatusModified,
}

// IsValidSuggestionStatus checks if the given status is valid.
func IsValidSuggestionStatus(s SuggestionStatus) bool {
	return slices.Contains(ValidSuggestionStatuses, s)
}

// ============================================================================
// User Action
// ============================================================================

// UserActionType represents the last human action taken on a suggestion.
type UserActionType string

const (
	UserActionNone   UserActionType = "none"
	UserActionAccept UserActionType = "accept"
	UserActionReject UserActionType = "reject"
	UserActionModify UserActionType = "modify"
)

// ValidUserActionTypes contains all valid user action values.
var ValidUserActionTypes = []UserActionType{
	UserActionNone,
	UserActionAccept,
	UserActionReject,
	UserActionModify,
}

// IsValidUserActionType checks if the given action is valid.
func IsValidUserActionType(a UserActionType) bool {
	return slices.Contains(ValidUserActionTypes, a)
}

// ============================================================================
// Confidence Levels
// ============================================================================

// ConfidenceLevel is a categorical bucket for a suggestion's confidence score.
type ConfidenceLevel string

const (
	ConfidenceLevelVeryHigh ConfidenceLevel = "very_high"
	ConfidenceLevelHigh     ConfidenceLevel = "high"
	ConfidenceLevelMedium   ConfidenceLevel = "medium"
	ConfidenceLevelLow      ConfidenceLevel = "low"
)

// ============================================================================
// Priority Heuristic Tuning
// ============================================================================

// Priority-score blend and bonuses. These rank the review queue; only the
// direction and the [0,100] clamp are contractual.
const (
	priorityConfidenceShare = 0.6
	priorityStrengthShare   = 0.4
	priorityHybridBonus     = 10.0
	priorityStrengthBonus   = 5.0
	priorityTypeBonus       = 5.0
	highStrengthThreshold   = 80
)

// highValueRelationshipTypes get a priority bonus so they surface first in the
// review queue.
var highValueRelationshipTypes = map[string]bool{
	"family": true,
	"mentor": true,
}

// Auto-accept policy thresholds.
const (
	autoAcceptConfidence = 95.0
)

// ============================================================================
// Relationship Suggestion
// ============================================================================

// RelationshipSuggestion is one candidate relationship between two saga
// entities awaiting human review. It is a value type: lifecycle transitions
// return a new instance and leave the receiver unchanged.
type RelationshipSuggestion struct {
	ID             int64 `json:"id,omitempty"`
	SagaID         int64 `json:"saga_id"`
	SourceEntityID int64 `json:"source_entity_id"`
	TargetEntityID int64 `json:"target_entity_id"`

	SuggestedType   string         `json:"suggested_type"`
	ConfidenceScore float64        `json:"confidence_score"` // 0-100
	Strength        int            `json:"strength"`         // 0-100
	Reasoning       string         `json:"reasoning,omitempty"`
	Evidence        map[string]any `json:"evidence,omitempty"`

	Method  SuggestionMethod `json:"suggestion_method"`
	AIModel string           `json:"ai_model,omitempty"`

	Status           SuggestionStatus `json:"status"`
	UserActionType   UserActionType   `json:"user_action_type"`
	UserFeedbackText *string          `json:"user_feedback_text,omitempty"`

	AcceptedAt            *time.Time `json:"accepted_at,omitempty"`
	RejectedAt            *time.Time `json:"rejected_at,omitempty"`
	ActionedBy            *uuid.UUID `json:"actioned_by,omitempty"`
	CreatedRelationshipID *int64     `json:"created_relationship_id,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// NewRelationshipSuggestion creates a pending suggestion, failing fast on
// out-of-range scores or a self-relationship.
func NewRelationshipSuggestion(
	sagaID, sourceEntityID, targetEntityID int64,
	suggestedType string,
	confidenceScore float64,
	strength int,
	method SuggestionMethod,
) (RelationshipSuggestion, error) {
	s := RelationshipSuggestion{
		SagaID:          sagaID,
		SourceEntityID:  sourceEntityID,
		TargetEntityID:  targetEntityID,
		SuggestedType:   suggestedType,
		ConfidenceScore: confidenceScore,
		Strength:        strength,
		Method:          method,
		Status:          SuggestionStatusPending,
		UserActionType:  UserActionNone,
	}
	if err := s.Validate(); err != nil {
		return RelationshipSuggestion{}, err
	}
	return s, nil
}

// Validate checks the construction-time invariants.
func (s *RelationshipSuggestion) Validate() error {
	if s.SourceEntityID == s.TargetEntityID {
		return apperrors.NewValidationError("target_entity_id", "an entity cannot relate to itself")
	}
	if s.ConfidenceScore < 0 || s.ConfidenceScore > 100 {
		return apperrors.NewValidationError("confidence_score", "must be between 0 and 100")
	}
	if s.Strength < 0 || s.Strength > 100 {
		return apperrors.NewValidationError("strength", "must be between 0 and 100")
	}
	if !IsValidSuggestionMethod(s.Method) {
		return apperrors.NewValidationError("suggestion_method", "unknown method "+string(s.Method))
	}
	return nil
}

// IsPending reports whether the suggestion still awaits review.
func (s RelationshipSuggestion) IsPending() bool {
	return s.Status == SuggestionStatusPending
}

// ConfidenceLevel buckets the confidence score:
// very_high >= 90, high >= 75, medium >= 60, low otherwise.
func (s RelationshipSuggestion) ConfidenceLevel() ConfidenceLevel {
	switch {
	case s.ConfidenceScore >= 90:
		return ConfidenceLevelVeryHigh
	case s.ConfidenceScore >= 75:
		return ConfidenceLevelHigh
	case s.ConfidenceScore >= 60:
		return ConfidenceLevelMedium
	default:
		return ConfidenceLevelLow
	}
}

// PriorityScore derives the review-queue ranking value from confidence,
// strength, method, and type. Clamped to [0, 100].
func (s RelationshipSuggestion) PriorityScore() float64 {
	score := priorityConfidenceShare*s.ConfidenceScore + priorityStrengthShare*float64(s.Strength)
	if s.Method == SuggestionMethodHybrid {
		score += priorityHybridBonus
	}
	if s.Strength >= highStrengthThreshold {
		score += priorityStrengthBonus
	}
	if highValueRelationshipTypes[s.SuggestedType] {
		score += priorityTypeBonus
	}
	if score > 100 {
		score = 100
	} else if score < 0 {
		score = 0
	}
	return score
}

// ShouldAutoAccept reports whether the suggestion may bypass human review.
// Requires both very high confidence and hybrid corroboration; single-channel
// suggestions always go through review.
func (s RelationshipSuggestion) ShouldAutoAccept() bool {
	return s.ConfidenceScore >= autoAcceptConfidence && s.Method == SuggestionMethodHybrid
}

// Accept returns a copy transitioned to accepted, recording the reviewer and
// the relationship created from this suggestion. The receiver is unchanged.
func (s RelationshipSuggestion) Accept(actionedBy uuid.UUID, createdRelationshipID int64) (RelationshipSuggestion, error) {
	if !s.IsPending() {
		return s, apperrors.ErrNotPending
	}
	now := time.Now()
	s.Status = SuggestionStatusAccepted
	s.UserActionType = UserActionAccept
	s.AcceptedAt = &now
	s.ActionedBy = &actionedBy
	s.CreatedRelationshipID = &createdRelationshipID
	s.UpdatedAt = now
	return s, nil
}

// Reject returns a copy transitioned to rejected, retaining any feedback text.
// The receiver is unchanged.
func (s RelationshipSuggestion) Reject(actionedBy uuid.UUID, feedbackText string) (RelationshipSuggestion, error) {
	if !s.IsPending() {
		return s, apperrors.ErrNotPending
	}
	now := time.Now()
	s.Status = SuggestionStatusRejected
	s.UserActionType = UserActionReject
	s.RejectedAt = &now
	s.ActionedBy = &actionedBy
	if feedbackText != "" {
		s.UserFeedbackText = &feedbackText
	}
	s.UpdatedAt = now
	return s, nil
}

// Modify returns a copy transitioned to modified with the reviewer's corrected
// type and strength, plus the relationship created from the corrected values.
// The receiver is unchanged.
func (s RelationshipSuggestion) Modify(actionedBy uuid.UUID, newType string, newStrength int, createdRelationshipID int64) (RelationshipSuggestion, error) {
	if !s.IsPending() {
		return s, apperrors.ErrNotPending
	}
	if newStrength < 0 || newStrength > 100 {
		return s, apperrors.NewValidationError("strength", "must be between 0 and 100")
	}
	if newType == "" {
		return s, apperrors.NewValidationError("suggested_type", "must not be empty")
	}
	now := time.Now()
	s.Status = SuggestionStatusModified
	s.UserActionType = UserActionModify
	s.SuggestedType = newType
	s.Strength = newStrength
	s.ActionedBy = &actionedBy
	s.CreatedRelationshipID = &createdRelationshipID
	s.UpdatedAt = now
	return s, nil
}
