package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
)

func newPendingSuggestion(t *testing.T) RelationshipSuggestion {
	t.Helper()
	s, err := NewRelationshipSuggestion(1, 10, 20, "ally", 82.5, 60, SuggestionMethodContent)
	require.NoError(t, err)
	return s
}

func TestNewRelationshipSuggestion_Validation(t *testing.T) {
	tests := []struct {
		name       string
		source     int64
		target     int64
		confidence float64
		strength   int
		method     SuggestionMethod
		wantErr    bool
	}{
		{"valid", 10, 20, 80, 50, SuggestionMethodContent, false},
		{"confidence at bounds", 10, 20, 100, 0, SuggestionMethodHybrid, false},
		{"self relationship", 10, 10, 80, 50, SuggestionMethodContent, true},
		{"confidence too high", 10, 20, 101, 50, SuggestionMethodContent, true},
		{"confidence negative", 10, 20, -1, 50, SuggestionMethodContent, true},
		{"strength too high", 10, 20, 80, 101, SuggestionMethodContent, true},
		{"strength negative", 10, 20, 80, -1, SuggestionMethodContent, true},
		{"unknown method", 10, 20, 80, 50, SuggestionMethod("oracle"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewRelationshipSuggestion(1, tt.source, tt.target, "ally", tt.confidence, tt.strength, tt.method)
			if tt.wantErr {
				assert.True(t, apperrors.IsValidation(err), "expected a validation error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, SuggestionStatusPending, s.Status)
			assert.Equal(t, UserActionNone, s.UserActionType)
		})
	}
}

func TestRelationshipSuggestion_ConfidenceLevel(t *testing.T) {
	tests := []struct {
		confidence float64
		want       ConfidenceLevel
	}{
		{92, ConfidenceLevelVeryHigh},
		{80, ConfidenceLevelHigh},
		{65, ConfidenceLevelMedium},
		{45, ConfidenceLevelLow},
	}

	for _, tt := range tests {
		s := RelationshipSuggestion{ConfidenceScore: tt.confidence}
		assert.Equal(t, tt.want, s.ConfidenceLevel(), "confidence %v", tt.confidence)
	}
}

func TestRelationshipSuggestion_PriorityScore(t *testing.T) {
	s, err := NewRelationshipSuggestion(1, 10, 20, "ally", 70, 85, SuggestionMethodHybrid)
	require.NoError(t, err)

	score := s.PriorityScore()
	assert.Greater(t, score, 70.0, "bonuses stack above the confidence input")
	assert.LessOrEqual(t, score, 100.0)

	// Same scores without hybrid corroboration rank strictly lower.
	content, err := NewRelationshipSuggestion(1, 10, 20, "ally", 70, 85, SuggestionMethodContent)
	require.NoError(t, err)
	assert.Less(t, content.PriorityScore(), score)

	// High-value relationship types get a bump.
	family, err := NewRelationshipSuggestion(1, 10, 20, "family", 70, 85, SuggestionMethodContent)
	require.NoError(t, err)
	assert.Greater(t, family.PriorityScore(), content.PriorityScore())

	// Clamped at 100 even with every bonus applied.
	maxed, err := NewRelationshipSuggestion(1, 10, 20, "family", 100, 100, SuggestionMethodHybrid)
	require.NoError(t, err)
	assert.Equal(t, 100.0, maxed.PriorityScore())
}

func TestRelationshipSuggestion_ShouldAutoAccept(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		method     SuggestionMethod
		want       bool
	}{
		{"hybrid above threshold", 96, SuggestionMethodHybrid, true},
		{"content above threshold", 96, SuggestionMethodContent, false},
		{"single channel high confidence", 90, SuggestionMethodContent, false},
		{"hybrid below threshold", 94, SuggestionMethodHybrid, false},
		{"semantic above threshold", 97, SuggestionMethodSemantic, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := RelationshipSuggestion{ConfidenceScore: tt.confidence, Method: tt.method}
			assert.Equal(t, tt.want, s.ShouldAutoAccept())
		})
	}
}

func TestRelationshipSuggestion_Accept(t *testing.T) {
	original := newPendingSuggestion(t)
	reviewer := uuid.New()

	accepted, err := original.Accept(reviewer, 555)
	require.NoError(t, err)

	assert.Equal(t, SuggestionStatusAccepted, accepted.Status)
	assert.Equal(t, UserActionAccept, accepted.UserActionType)
	require.NotNil(t, accepted.AcceptedAt)
	require.NotNil(t, accepted.ActionedBy)
	assert.Equal(t, reviewer, *accepted.ActionedBy)
	require.NotNil(t, accepted.CreatedRelationshipID)
	assert.Equal(t, int64(555), *accepted.CreatedRelationshipID)

	// The original instance is untouched.
	assert.Equal(t, SuggestionStatusPending, original.Status)
	assert.Nil(t, original.AcceptedAt)
	assert.Nil(t, original.ActionedBy)
}

func TestRelationshipSuggestion_Reject(t *testing.T) {
	original := newPendingSuggestion(t)
	reviewer := uuid.New()

	rejected, err := original.Reject(reviewer, "they never met")
	require.NoError(t, err)

	assert.Equal(t, SuggestionStatusRejected, rejected.Status)
	assert.Equal(t, UserActionReject, rejected.UserActionType)
	require.NotNil(t, rejected.RejectedAt)
	require.NotNil(t, rejected.UserFeedbackText)
	assert.Equal(t, "they never met", *rejected.UserFeedbackText)
	assert.Equal(t, SuggestionStatusPending, original.Status)

	// Empty feedback stays unset.
	silent, err := newPendingSuggestion(t).Reject(reviewer, "")
	require.NoError(t, err)
	assert.Nil(t, silent.UserFeedbackText)
}

func TestRelationshipSuggestion_Modify(t *testing.T) {
	original := newPendingSuggestion(t)
	reviewer := uuid.New()

	modified, err := original.Modify(reviewer, "mentor", 90, 777)
	require.NoError(t, err)

	assert.Equal(t, SuggestionStatusModified, modified.Status)
	assert.Equal(t, UserActionModify, modified.UserActionType)
	assert.Equal(t, "mentor", modified.SuggestedType)
	assert.Equal(t, 90, modified.Strength)
	require.NotNil(t, modified.CreatedRelationshipID)
	assert.Equal(t, int64(777), *modified.CreatedRelationshipID)

	assert.Equal(t, "ally", original.SuggestedType)
	assert.Equal(t, 60, original.Strength)

	_, err = original.Modify(reviewer, "", 90, 777)
	assert.True(t, apperrors.IsValidation(err))
	_, err = original.Modify(reviewer, "mentor", 150, 777)
	assert.True(t, apperrors.IsValidation(err))
}

func TestRelationshipSuggestion_TerminalStatesRejectTransitions(t *testing.T) {
	reviewer := uuid.New()
	pending := newPendingSuggestion(t)

	accepted, err := pending.Accept(reviewer, 1)
	require.NoError(t, err)

	_, err = accepted.Accept(reviewer, 2)
	assert.ErrorIs(t, err, apperrors.ErrNotPending)
	_, err = accepted.Reject(reviewer, "")
	assert.ErrorIs(t, err, apperrors.ErrNotPending)
	_, err = accepted.Modify(reviewer, "rival", 10, 3)
	assert.ErrorIs(t, err, apperrors.ErrNotPending)

	rejected, err := pending.Reject(reviewer, "no")
	require.NoError(t, err)
	_, err = rejected.Accept(reviewer, 4)
	assert.ErrorIs(t, err, apperrors.ErrNotPending)

	assert.True(t, pending.IsPending())
	assert.False(t, accepted.IsPending())
	assert.False(t, rejected.IsPending())
}
