package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
)

// Flat-record forms for suggestions and features. Storage rows and export
// payloads both move through these maps; enum values travel as their string
// tags, timestamps as RFC 3339 strings. Hydration validates field-by-field and
// returns a typed DecodeError for malformed rows.

// ============================================================================
// Record Encoding
// ============================================================================

// ToRecord flattens the suggestion into a key/value record.
// Unset optional fields are omitted.
func (s RelationshipSuggestion) ToRecord() map[string]any {
	rec := map[string]any{
		"saga_id":          s.SagaID,
		"source_entity_id": s.SourceEntityID,
		"target_entity_id": s.TargetEntityID,
		"suggested_type":   s.SuggestedType,
		"confidence_score": s.ConfidenceScore,
		"strength":         int64(s.Strength),
		"suggestion_method": string(s.Method),
		"status":            string(s.Status),
		"user_action_type":  string(s.UserActionType),
	}
	if s.ID != 0 {
		rec["id"] = s.ID
	}
	if s.Reasoning != "" {
		rec["reasoning"] = s.Reasoning
	}
	if len(s.Evidence) > 0 {
		rec["evidence"] = s.Evidence
	}
	if s.AIModel != "" {
		rec["ai_model"] = s.AIModel
	}
	if s.UserFeedbackText != nil {
		rec["user_feedback_text"] = *s.UserFeedbackText
	}
	if s.AcceptedAt != nil {
		rec["accepted_at"] = s.AcceptedAt.Format(time.RFC3339Nano)
	}
	if s.RejectedAt != nil {
		rec["rejected_at"] = s.RejectedAt.Format(time.RFC3339Nano)
	}
	if s.ActionedBy != nil {
		rec["actioned_by"] = s.ActionedBy.String()
	}
	if s.CreatedRelationshipID != nil {
		rec["created_relationship_id"] = *s.CreatedRelationshipID
	}
	if !s.CreatedAt.IsZero() {
		rec["created_at"] = s.CreatedAt.Format(time.RFC3339Nano)
	}
	if !s.UpdatedAt.IsZero() {
		rec["updated_at"] = s.UpdatedAt.Format(time.RFC3339Nano)
	}
	return rec
}

// ToRecord flattens the feature into a key/value record.
func (f SuggestionFeature) ToRecord() map[string]any {
	rec := map[string]any{
		"feature_type":  string(f.Type),
		"feature_value": f.Value,
		"weight":        f.Weight,
	}
	if f.ID != 0 {
		rec["id"] = f.ID
	}
	if f.SuggestionID != 0 {
		rec["suggestion_id"] = f.SuggestionID
	}
	if len(f.Metadata) > 0 {
		rec["metadata"] = f.Metadata
	}
	if !f.CreatedAt.IsZero() {
		rec["created_at"] = f.CreatedAt.Format(time.RFC3339Nano)
	}
	return rec
}

// ============================================================================
// Record Hydration
// ============================================================================

// SuggestionFromRecord hydrates a suggestion from its flat record form,
// validating and converting each field. The hydrated value is re-validated
// against the construction invariants.
func SuggestionFromRecord(rec map[string]any) (RelationshipSuggestion, error) {
	var s RelationshipSuggestion
	var err error

	if s.ID, err = recordOptionalInt(rec, "id"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.SagaID, err = recordInt(rec, "saga_id"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.SourceEntityID, err = recordInt(rec, "source_entity_id"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.TargetEntityID, err = recordInt(rec, "target_entity_id"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.SuggestedType, err = recordString(rec, "suggested_type"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.ConfidenceScore, err = recordFloat(rec, "confidence_score"); err != nil {
		return RelationshipSuggestion{}, err
	}
	strength, err := recordInt(rec, "strength")
	if err != nil {
		return RelationshipSuggestion{}, err
	}
	s.Strength = int(strength)

	method, err := recordString(rec, "suggestion_method")
	if err != nil {
		return RelationshipSuggestion{}, err
	}
	s.Method = SuggestionMethod(method)
	if !IsValidSuggestionMethod(s.Method) {
		return RelationshipSuggestion{}, apperrors.NewDecodeError("suggestion_method", "unknown method "+method)
	}

	status, err := recordString(rec, "status")
	if err != nil {
		return RelationshipSuggestion{}, err
	}
	s.Status = SuggestionStatus(status)
	if !IsValidSuggestionStatus(s.Status) {
		return RelationshipSuggestion{}, apperrors.NewDecodeError("status", "unknown status "+status)
	}

	action, err := recordString(rec, "user_action_type")
	if err != nil {
		return RelationshipSuggestion{}, err
	}
	s.UserActionType = UserActionType(action)
	if !IsValidUserActionType(s.UserActionType) {
		return RelationshipSuggestion{}, apperrors.NewDecodeError("user_action_type", "unknown action "+action)
	}

	if s.Reasoning, err = recordOptionalString(rec, "reasoning"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.AIModel, err = recordOptionalString(rec, "ai_model"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if raw, ok := rec["evidence"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return RelationshipSuggestion{}, apperrors.NewDecodeError("evidence", "expected a map")
		}
		s.Evidence = m
	}
	if feedback, ok := rec["user_feedback_text"]; ok {
		text, ok := feedback.(string)
		if !ok {
			return RelationshipSuggestion{}, apperrors.NewDecodeError("user_feedback_text", "expected a string")
		}
		s.UserFeedbackText = &text
	}
	if s.AcceptedAt, err = recordOptionalTime(rec, "accepted_at"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if s.RejectedAt, err = recordOptionalTime(rec, "rejected_at"); err != nil {
		return RelationshipSuggestion{}, err
	}
	if raw, ok := rec["actioned_by"]; ok {
		str, ok := raw.(string)
		if !ok {
			return RelationshipSuggestion{}, apperrors.NewDecodeError("actioned_by", "expected a string")
		}
		id, err := uuid.Parse(str)
		if err != nil {
			return RelationshipSuggestion{}, apperrors.NewDecodeError("actioned_by", "not a valid UUID")
		}
		s.ActionedBy = &id
	}
	if raw, ok := rec["created_relationship_id"]; ok {
		id, err := coerceInt(raw)
		if err != nil {
			return RelationshipSuggestion{}, apperrors.NewDecodeError("created_relationship_id", err.Error())
		}
		s.CreatedRelationshipID = &id
	}
	if createdAt, err := recordOptionalTime(rec, "created_at"); err != nil {
		return RelationshipSuggestion{}, err
	} else if createdAt != nil {
		s.CreatedAt = *createdAt
	}
	if updatedAt, err := recordOptionalTime(rec, "updated_at"); err != nil {
		return RelationshipSuggestion{}, err
	} else if updatedAt != nil {
		s.UpdatedAt = *updatedAt
	}

	if err := s.Validate(); err != nil {
		return RelationshipSuggestion{}, err
	}
	return s, nil
}

// FeatureFromRecord hydrates a feature from its flat record form.
func FeatureFromRecord(rec map[string]any) (SuggestionFeature, error) {
	typeTag, err := recordString(rec, "feature_type")
	if err != nil {
		return SuggestionFeature{}, err
	}
	value, err := recordFloat(rec, "feature_value")
	if err != nil {
		return SuggestionFeature{}, err
	}
	weight, err := recordFloat(rec, "weight")
	if err != nil {
		return SuggestionFeature{}, err
	}

	var metadata map[string]any
	if raw, ok := rec["metadata"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return SuggestionFeature{}, apperrors.NewDecodeError("metadata", "expected a map")
		}
		metadata = m
	}

	f, err := NewFeature(FeatureType(typeTag), value, weight, metadata)
	if err != nil {
		return SuggestionFeature{}, err
	}
	if f.ID, err = recordOptionalInt(rec, "id"); err != nil {
		return SuggestionFeature{}, err
	}
	if f.SuggestionID, err = recordOptionalInt(rec, "suggestion_id"); err != nil {
		return SuggestionFeature{}, err
	}
	if createdAt, err := recordOptionalTime(rec, "created_at"); err != nil {
		return SuggestionFeature{}, err
	} else if createdAt != nil {
		f.CreatedAt = *createdAt
	}
	return f, nil
}

// ============================================================================
// Field Conversion Helpers
// ============================================================================

func coerceInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		// JSON decoding yields float64 for all numbers.
		if v != float64(int64(v)) {
			return 0, apperrors.NewDecodeError("", "expected an integer")
		}
		return int64(v), nil
	default:
		return 0, apperrors.NewDecodeError("", "expected an integer")
	}
}

func recordInt(rec map[string]any, field string) (int64, error) {
	raw, ok := rec[field]
	if !ok {
		return 0, apperrors.NewDecodeError(field, "missing")
	}
	v, err := coerceInt(raw)
	if err != nil {
		return 0, apperrors.NewDecodeError(field, "expected an integer")
	}
	return v, nil
}

func recordOptionalInt(rec map[string]any, field string) (int64, error) {
	if _, ok := rec[field]; !ok {
		return 0, nil
	}
	return recordInt(rec, field)
}

func recordFloat(rec map[string]any, field string) (float64, error) {
	raw, ok := rec[field]
	if !ok {
		return 0, apperrors.NewDecodeError(field, "missing")
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, apperrors.NewDecodeError(field, "expected a number")
	}
}

func recordString(rec map[string]any, field string) (string, error) {
	raw, ok := rec[field]
	if !ok {
		return "", apperrors.NewDecodeError(field, "missing")
	}
	v, ok := raw.(string)
	if !ok {
		return "", apperrors.NewDecodeError(field, "expected a string")
	}
	return v, nil
}

func recordOptionalString(rec map[string]any, field string) (string, error) {
	if _, ok := rec[field]; !ok {
		return "", nil
	}
	return recordString(rec, field)
}

func recordOptionalTime(rec map[string]any, field string) (*time.Time, error) {
	raw, ok := rec[field]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return &v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, apperrors.NewDecodeError(field, "not an RFC 3339 timestamp")
		}
		return &t, nil
	default:
		return nil, apperrors.NewDecodeError(field, "expected a timestamp")
	}
}
