package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
	"github.com/sagacraft/saga-engine/pkg/auth"
	"github.com/sagacraft/saga-engine/pkg/models"
	"github.com/sagacraft/saga-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// SuggestionResponse is one suggestion in API form, with the derived review
// fields the queue UI sorts and badges by.
type SuggestionResponse struct {
	models.RelationshipSuggestion
	PriorityScore   float64                `json:"priority_score"`
	ConfidenceLevel models.ConfidenceLevel `json:"confidence_level"`
}

// SuggestionListResponse for GET /api/sagas/{sid}/suggestions
type SuggestionListResponse struct {
	Suggestions []SuggestionResponse `json:"suggestions"`
	TotalCount  int                  `json:"total_count"`
}

// SuggestionDetailResponse for GET /api/suggestions/{id}
type SuggestionDetailResponse struct {
	SuggestionResponse
	Features []models.SuggestionFeature `json:"features"`
}

// RejectRequest for POST /api/suggestions/{id}/reject
type RejectRequest struct {
	FeedbackText string `json:"feedback_text,omitempty"`
}

// ModifyRequest for POST /api/suggestions/{id}/modify
type ModifyRequest struct {
	RelationshipType string `json:"relationship_type"`
	Strength         int    `json:"strength"`
	FeedbackText     string `json:"feedback_text,omitempty"`
}

// GenerateRequest for POST /api/sagas/{sid}/suggestions/generate
type GenerateRequest struct {
	MaxPairs int `json:"max_pairs,omitempty"`
}

// ============================================================================
// Handler
// ============================================================================

// SuggestionHandler handles suggestion review HTTP requests: the pending
// queue, reviewer feedback, and batch generation triggers.
type SuggestionHandler struct {
	suggestionService services.SuggestionService
	processor         services.BackgroundProcessor
	logger            *zap.Logger
}

// NewSuggestionHandler creates a new suggestion handler.
func NewSuggestionHandler(
	suggestionService services.SuggestionService,
	processor services.BackgroundProcessor,
	logger *zap.Logger,
) *SuggestionHandler {
	return &SuggestionHandler{
		suggestionService: suggestionService,
		processor:         processor,
		logger:            logger,
	}
}

// RegisterRoutes registers the suggestion handler's routes on the given mux.
// Feedback routes run behind the auth middleware so the acting reviewer is
// known; reads and batch triggers do not need a reviewer identity.
func (h *SuggestionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/sagas/{sid}/suggestions", h.List)
	mux.HandleFunc("GET /api/suggestions/{id}", h.Get)

	mux.HandleFunc("POST /api/suggestions/{id}/accept", authMiddleware.RequireReviewer(h.Accept))
	mux.HandleFunc("POST /api/suggestions/{id}/reject", authMiddleware.RequireReviewer(h.Reject))
	mux.HandleFunc("POST /api/suggestions/{id}/modify", authMiddleware.RequireReviewer(h.Modify))

	mux.HandleFunc("POST /api/sagas/{sid}/suggestions/generate", h.Generate)
}

// List handles GET /api/sagas/{sid}/suggestions
// Returns the saga's pending suggestions ordered by priority, highest first.
func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	sagaID, ok := ParseSagaID(w, r, h.logger)
	if !ok {
		return
	}

	suggestions, err := h.suggestionService.ListPending(r.Context(), sagaID)
	if err != nil {
		h.logger.Error("Failed to list pending suggestions",
			zap.Int64("saga_id", sagaID),
			zap.Error(err))
		h.writeServiceError(w, "list_suggestions_failed", err)
		return
	}

	responses := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		responses = append(responses, toSuggestionResponse(s))
	}

	response := SuggestionListResponse{
		Suggestions: responses,
		TotalCount:  len(responses),
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/suggestions/{id}
// Returns one suggestion with its contributing features, strongest first.
func (h *SuggestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}

	suggestion, features, err := h.suggestionService.GetWithFeatures(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get_suggestion_failed", err)
		return
	}

	response := SuggestionDetailResponse{
		SuggestionResponse: toSuggestionResponse(suggestion),
		Features:           features,
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Accept handles POST /api/suggestions/{id}/accept
func (h *SuggestionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}
	reviewerID, ok := auth.ReviewerFromContext(r.Context())
	if !ok {
		h.unauthenticated(w)
		return
	}

	accepted, err := h.suggestionService.Accept(r.Context(), id, reviewerID)
	if err != nil {
		h.writeServiceError(w, "accept_suggestion_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toSuggestionResponse(accepted)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reject handles POST /api/suggestions/{id}/reject
func (h *SuggestionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}
	reviewerID, ok := auth.ReviewerFromContext(r.Context())
	if !ok {
		h.unauthenticated(w)
		return
	}

	// Body is optional; rejecting without a reason is allowed.
	var req RejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rejected, err := h.suggestionService.Reject(r.Context(), id, reviewerID, req.FeedbackText)
	if err != nil {
		h.writeServiceError(w, "reject_suggestion_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toSuggestionResponse(rejected)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Modify handles POST /api/suggestions/{id}/modify
func (h *SuggestionHandler) Modify(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseSuggestionID(w, r, h.logger)
	if !ok {
		return
	}
	reviewerID, ok := auth.ReviewerFromContext(r.Context())
	if !ok {
		h.unauthenticated(w)
		return
	}

	var req ModifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	modified, err := h.suggestionService.Modify(r.Context(), id, reviewerID, req.RelationshipType, req.Strength, req.FeedbackText)
	if err != nil {
		h.writeServiceError(w, "modify_suggestion_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toSuggestionResponse(modified)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Generate handles POST /api/sagas/{sid}/suggestions/generate
// Triggers one synchronous batch tick for the saga.
func (h *SuggestionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sagaID, ok := ParseSagaID(w, r, h.logger)
	if !ok {
		return
	}

	// Body is optional; without it the configured batch cap applies.
	var req GenerateRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.processor.RunBatch(r.Context(), sagaID, req.MaxPairs)
	if err != nil {
		h.logger.Error("Failed to run suggestion batch",
			zap.Int64("saga_id", sagaID),
			zap.Error(err))
		h.writeServiceError(w, "generate_suggestions_failed", err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ============================================================================
// Helper Functions
// ============================================================================

func toSuggestionResponse(s *models.RelationshipSuggestion) SuggestionResponse {
	return SuggestionResponse{
		RelationshipSuggestion: *s,
		PriorityScore:          s.PriorityScore(),
		ConfidenceLevel:        s.ConfidenceLevel(),
	}
}

// writeServiceError maps service errors onto HTTP statuses: unknown id → 404,
// already-actioned → 409, validation → 400, anything else → 500.
func (h *SuggestionHandler) writeServiceError(w http.ResponseWriter, errorCode string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrNotPending), errors.Is(err, apperrors.ErrConflict):
		status = http.StatusConflict
	case apperrors.IsValidation(err):
		status = http.StatusBadRequest
	}
	if werr := ErrorResponse(w, status, errorCode, err.Error()); werr != nil {
		h.logger.Error("Failed to write error response", zap.Error(werr))
	}
}

func (h *SuggestionHandler) unauthenticated(w http.ResponseWriter) {
	if err := ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Reviewer identity required"); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
