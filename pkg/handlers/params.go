package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// ParseSagaID extracts and validates the saga ID from the request path.
// Returns the parsed ID and true on success, or 0 and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseSagaID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "sid", "invalid_saga_id", "Invalid saga ID format", logger)
}

// ParseSuggestionID extracts and validates the suggestion ID from the request
// path. Returns the parsed ID and true on success, or 0 and false on error
// (after writing an error response).
// Expects path parameter: id
func ParseSuggestionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (int64, bool) {
	return parseID(w, r, "id", "invalid_suggestion_id", "Invalid suggestion ID format", logger)
}

// parseID is the internal helper that does the actual parsing work.
func parseID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	idStr := r.PathValue(pathParam)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}
