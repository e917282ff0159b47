package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
	"github.com/sagacraft/saga-engine/pkg/auth"
	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/services"
)

const handlerTestSecret = "handler-test-secret"

// newSuggestionMux wires the handler onto a mux behind a verifying auth
// middleware, the way main does.
func newSuggestionMux(t *testing.T, svc *stubSuggestionService, proc *stubProcessor) *http.ServeMux {
	t.Helper()
	handler := NewSuggestionHandler(svc, proc, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, auth.NewMiddleware(handlerTestSecret, true, zap.NewNop()))
	return mux
}

func reviewerToken(t *testing.T, reviewerID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": reviewerID.String()})
	signed, err := token.SignedString([]byte(handlerTestSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !envelope.Success {
		t.Error("expected success envelope")
	}
	return envelope.Data
}

func TestSuggestionHandler_List(t *testing.T) {
	svc := &stubSuggestionService{
		pending: []*models.RelationshipSuggestion{
			pendingSuggestion(1, "rival", 85, 70, models.SuggestionMethodHybrid),
			pendingSuggestion(2, "ally", 75, 40, models.SuggestionMethodContent),
		},
	}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/sagas/1/suggestions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	data := decodeEnvelope(t, rec)
	if got := data["total_count"].(float64); got != 2 {
		t.Errorf("expected total_count 2, got %v", got)
	}
	suggestions := data["suggestions"].([]any)
	first := suggestions[0].(map[string]any)
	if first["priority_score"].(float64) <= 0 {
		t.Error("expected derived priority_score on list items")
	}
	if first["confidence_level"].(string) == "" {
		t.Error("expected derived confidence_level on list items")
	}
}

func TestSuggestionHandler_List_InvalidSagaID(t *testing.T) {
	mux := newSuggestionMux(t, &stubSuggestionService{}, &stubProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/sagas/not-a-number/suggestions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSuggestionHandler_Get_NotFound(t *testing.T) {
	mux := newSuggestionMux(t, &stubSuggestionService{}, &stubProcessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/suggestions/42", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSuggestionHandler_Accept(t *testing.T) {
	reviewer := uuid.New()
	svc := &stubSuggestionService{
		pending: []*models.RelationshipSuggestion{
			pendingSuggestion(7, "ally", 80, 75, models.SuggestionMethodHybrid),
		},
	}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/7/accept", nil)
	req.Header.Set("Authorization", "Bearer "+reviewerToken(t, reviewer))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if svc.lastActionedBy != reviewer {
		t.Errorf("actioned_by = %s, want token subject %s", svc.lastActionedBy, reviewer)
	}

	data := decodeEnvelope(t, rec)
	if got := data["status"].(string); got != string(models.SuggestionStatusAccepted) {
		t.Errorf("expected accepted status, got %s", got)
	}
}

func TestSuggestionHandler_Accept_RequiresToken(t *testing.T) {
	svc := &stubSuggestionService{
		pending: []*models.RelationshipSuggestion{
			pendingSuggestion(7, "ally", 80, 75, models.SuggestionMethodHybrid),
		},
	}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/7/accept", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestSuggestionHandler_Accept_AlreadyActioned(t *testing.T) {
	svc := &stubSuggestionService{acceptErr: apperrors.ErrNotPending}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/7/accept", nil)
	req.Header.Set("Authorization", "Bearer "+reviewerToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestSuggestionHandler_Reject_KeepsFeedback(t *testing.T) {
	svc := &stubSuggestionService{
		pending: []*models.RelationshipSuggestion{
			pendingSuggestion(3, "rival", 60, 50, models.SuggestionMethodContent),
		},
	}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	body := strings.NewReader(`{"feedback_text": "they never met"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/3/reject", body)
	req.Header.Set("Authorization", "Bearer "+reviewerToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if svc.lastFeedback != "they never met" {
		t.Errorf("feedback_text = %q, want %q", svc.lastFeedback, "they never met")
	}
}

func TestSuggestionHandler_Modify(t *testing.T) {
	svc := &stubSuggestionService{
		pending: []*models.RelationshipSuggestion{
			pendingSuggestion(5, "ally", 70, 60, models.SuggestionMethodHybrid),
		},
	}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	body := strings.NewReader(`{"relationship_type": "mentor", "strength": 90}`)
	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/5/modify", body)
	req.Header.Set("Authorization", "Bearer "+reviewerToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if svc.lastNewType != "mentor" || svc.lastStrength != 90 {
		t.Errorf("modify forwarded %s/%d, want mentor/90", svc.lastNewType, svc.lastStrength)
	}

	data := decodeEnvelope(t, rec)
	if got := data["status"].(string); got != string(models.SuggestionStatusModified) {
		t.Errorf("expected modified status, got %s", got)
	}
}

func TestSuggestionHandler_Modify_InvalidStrength(t *testing.T) {
	svc := &stubSuggestionService{
		pending: []*models.RelationshipSuggestion{
			pendingSuggestion(5, "ally", 70, 60, models.SuggestionMethodHybrid),
		},
	}
	mux := newSuggestionMux(t, svc, &stubProcessor{})

	body := strings.NewReader(`{"relationship_type": "mentor", "strength": 150}`)
	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/5/modify", body)
	req.Header.Set("Authorization", "Bearer "+reviewerToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSuggestionHandler_Modify_MalformedBody(t *testing.T) {
	mux := newSuggestionMux(t, &stubSuggestionService{}, &stubProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/suggestions/5/modify", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+reviewerToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSuggestionHandler_Generate(t *testing.T) {
	proc := &stubProcessor{
		result: &services.BatchResult{Generated: 4, Skipped: 1},
	}
	mux := newSuggestionMux(t, &stubSuggestionService{}, proc)

	body := strings.NewReader(`{"max_pairs": 5}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sagas/9/suggestions/generate", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if proc.lastSagaID != 9 || proc.lastMaxPairs != 5 {
		t.Errorf("RunBatch called with saga %d maxPairs %d, want 9/5", proc.lastSagaID, proc.lastMaxPairs)
	}

	data := decodeEnvelope(t, rec)
	if got := data["generated"].(float64); got != 4 {
		t.Errorf("expected generated 4, got %v", got)
	}
}
