// Package evidence defines the contract with the external AI evidence
// provider and its concrete implementations. The provider is a black-box
// scorer: given an entity pair and saga context it returns raw per-signal
// measurements plus an optional relationship recommendation.
package evidence

import (
	"context"

	"github.com/sagacraft/saga-engine/pkg/models"
)

// EntityRef carries the slice of entity identity the provider needs.
type EntityRef struct {
	ID          int64
	Name        string
	Kind        string // "character", "location", "faction", ...
	Description string
}

// SagaContext summarizes the saga the pair belongs to.
type SagaContext struct {
	SagaID int64
	Title  string
	Genre  string
	// EntityKindCounts maps entity kind to how many of them the saga has,
	// used to give the provider a sense of scale.
	EntityKindCounts map[string]int
}

// Evaluation is the provider's verdict for one entity pair.
type Evaluation struct {
	// RawSignals holds un-normalized per-signal measurements. Signals the
	// provider could not measure are simply absent; a partial map is valid.
	RawSignals map[models.FeatureType]float64

	// SuggestedType is the provider's relationship type recommendation,
	// empty when it has none.
	SuggestedType string

	// SuggestedStrength is the provider's strength recommendation (0-100),
	// nil when it has none.
	SuggestedStrength *int

	// Reasoning is the provider's human-readable explanation, empty when it
	// offered none.
	Reasoning string

	// Method reports which evidence channel(s) produced this evaluation.
	Method models.SuggestionMethod

	// Model identifies the provider model that produced the evaluation.
	Model string
}

// Embedder supplies the embedding channel for providers whose API has none of
// its own.
type Embedder interface {
	EmbedPair(ctx context.Context, source, target EntityRef) (float64, error)
}

// Provider is the external evidence provider contract. Evaluate must honor the
// context deadline and return a typed *Error on failure rather than panicking
// or blocking a whole batch.
type Provider interface {
	Evaluate(ctx context.Context, source, target EntityRef, saga SagaContext) (*Evaluation, error)

	// Model returns the identifier recorded as ai_model on suggestions.
	Model() string
}
