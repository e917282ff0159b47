package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Middleware resolves the acting reviewer for feedback endpoints from a bearer
// token. The token's subject claim is the reviewer's uuid.
type Middleware struct {
	signingSecret      []byte
	enableVerification bool
	logger             *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(signingSecret string, enableVerification bool, logger *zap.Logger) *Middleware {
	return &Middleware{
		signingSecret:      []byte(signingSecret),
		enableVerification: enableVerification,
		logger:             logger.Named("auth"),
	}
}

// RequireReviewer validates the bearer token and puts the reviewer id in the
// request context. With verification disabled (local development) the subject
// is taken from the token unverified, or defaults to the nil uuid when no
// token is sent.
func (m *Middleware) RequireReviewer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)

		if !m.enableVerification {
			reviewerID := uuid.Nil
			if tokenStr != "" {
				if id, err := m.subjectUnverified(tokenStr); err == nil {
					reviewerID = id
				}
			}
			next(w, r.WithContext(WithReviewer(r.Context(), reviewerID)))
			return
		}

		if tokenStr == "" {
			m.unauthorized(w, "Authentication required")
			return
		}

		reviewerID, err := m.subjectVerified(tokenStr)
		if err != nil {
			m.logger.Warn("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
			m.unauthorized(w, "Invalid token")
			return
		}

		next(w, r.WithContext(WithReviewer(r.Context(), reviewerID)))
	}
}

func (m *Middleware) subjectVerified(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.signingSecret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return subjectID(token)
}

func (m *Middleware) subjectUnverified(tokenStr string) (uuid.UUID, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return uuid.Nil, err
	}
	return subjectID(token)
}

func subjectID(token *jwt.Token) (uuid.UUID, error) {
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject is not a reviewer id: %w", err)
	}
	return id, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
