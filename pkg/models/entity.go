package models

import "time"

// Entity is the minimal view of a saga entity the suggestion engine needs:
// identity plus the descriptive text handed to the evidence provider.
type Entity struct {
	ID          int64     `json:"id"`
	SagaID      int64     `json:"saga_id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"` // character, location, faction, item, event
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Relationship is an established (reviewed) relationship between two entities.
// Rows are created when a suggestion is accepted or modified.
type Relationship struct {
	ID               int64     `json:"id"`
	SagaID           int64     `json:"saga_id"`
	SourceEntityID   int64     `json:"source_entity_id"`
	TargetEntityID   int64     `json:"target_entity_id"`
	RelationshipType string    `json:"relationship_type"`
	Strength         int       `json:"strength"` // 0-100
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// Saga summarizes a fictional universe for prompt context.
type Saga struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Genre     string    `json:"genre,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// EntityPair is one unordered candidate pair selected for evaluation.
// Source always carries the lower entity id so (a,b) and (b,a) collapse.
type EntityPair struct {
	SagaID   int64
	SourceID int64
	TargetID int64
}
