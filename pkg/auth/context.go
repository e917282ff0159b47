package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// ReviewerKey is the context key the middleware stores the acting reviewer id
// under.
const ReviewerKey contextKey = "reviewer_id"

// WithReviewer returns a context carrying the reviewer id.
func WithReviewer(ctx context.Context, reviewerID uuid.UUID) context.Context {
	return context.WithValue(ctx, ReviewerKey, reviewerID)
}

// ReviewerFromContext extracts the reviewer id set by the middleware.
func ReviewerFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ReviewerKey).(uuid.UUID)
	return id, ok
}
