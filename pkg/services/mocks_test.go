package services

import (
	"context"
	"sync"
	"time"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
	"github.com/sagacraft/saga-engine/pkg/models"
)

// mockSuggestionRepo implements repositories.SuggestionRepository in memory.
type mockSuggestionRepo struct {
	mu sync.Mutex

	suggestions map[int64]*models.RelationshipSuggestion
	features    map[int64][]models.SuggestionFeature
	weights     map[models.FeatureType]float64
	nextID      int64

	unscoredPairs  []models.EntityPair
	feedbackCount  int
	stats          []models.FeatureWeightStat
	recalibrations []*models.WeightRecalibration

	saveErr    error
	getErr     error
	weightsErr error
}

func newMockSuggestionRepo() *mockSuggestionRepo {
	return &mockSuggestionRepo{
		suggestions: make(map[int64]*models.RelationshipSuggestion),
		features:    make(map[int64][]models.SuggestionFeature),
		weights:     make(map[models.FeatureType]float64),
	}
}

func (m *mockSuggestionRepo) FindPending(_ context.Context, sagaID int64) ([]*models.RelationshipSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.RelationshipSuggestion
	for _, s := range m.suggestions {
		if s.SagaID == sagaID && s.Status == models.SuggestionStatusPending {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockSuggestionRepo) GetByID(_ context.Context, id int64) (*models.RelationshipSuggestion, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suggestions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *mockSuggestionRepo) FindBySagaAndPair(_ context.Context, sagaID, sourceEntityID, targetEntityID int64) (*models.RelationshipSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := sourceEntityID, targetEntityID
	if lo > hi {
		lo, hi = hi, lo
	}
	for _, s := range m.suggestions {
		if s.SagaID == sagaID && s.SourceEntityID == lo && s.TargetEntityID == hi {
			c := *s
			return &c, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockSuggestionRepo) SaveWithFeatures(_ context.Context, suggestion *models.RelationshipSuggestion, features []models.SuggestionFeature) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.suggestions {
		if existing.SagaID == suggestion.SagaID &&
			existing.SourceEntityID == suggestion.SourceEntityID &&
			existing.TargetEntityID == suggestion.TargetEntityID &&
			existing.Status == models.SuggestionStatusPending {
			suggestion.ID = id
			c := *suggestion
			m.suggestions[id] = &c
			m.features[id] = append([]models.SuggestionFeature(nil), features...)
			return nil
		}
	}

	m.nextID++
	suggestion.ID = m.nextID
	suggestion.CreatedAt = time.Now()
	suggestion.UpdatedAt = suggestion.CreatedAt
	c := *suggestion
	m.suggestions[suggestion.ID] = &c
	m.features[suggestion.ID] = append([]models.SuggestionFeature(nil), features...)
	return nil
}

func (m *mockSuggestionRepo) GetFeatures(_ context.Context, suggestionID int64) ([]models.SuggestionFeature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SuggestionFeature(nil), m.features[suggestionID]...), nil
}

func (m *mockSuggestionRepo) UpdateStatus(_ context.Context, s *models.RelationshipSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.suggestions[s.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if stored.Status != models.SuggestionStatusPending {
		return apperrors.ErrConflict
	}
	c := *s
	m.suggestions[s.ID] = &c
	return nil
}

func (m *mockSuggestionRepo) LinkCreatedRelationship(_ context.Context, suggestionID, relationshipID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.suggestions[suggestionID]
	if !ok {
		return apperrors.ErrNotFound
	}
	stored.CreatedRelationshipID = &relationshipID
	return nil
}

func (m *mockSuggestionRepo) FindUnscoredPairs(_ context.Context, sagaID int64, _ time.Duration, limit int) ([]models.EntityPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pairs := m.unscoredPairs
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return append([]models.EntityPair(nil), pairs...), nil
}

func (m *mockSuggestionRepo) CountFeedbackSince(_ context.Context, _ int64, _ time.Time) (int, error) {
	return m.feedbackCount, nil
}

func (m *mockSuggestionRepo) GetFeatureWeightStats(_ context.Context, _ int64, _ time.Time) ([]models.FeatureWeightStat, error) {
	return append([]models.FeatureWeightStat(nil), m.stats...), nil
}

func (m *mockSuggestionRepo) GetFeatureWeights(_ context.Context, _ int64) (map[models.FeatureType]float64, error) {
	if m.weightsErr != nil {
		return nil, m.weightsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.FeatureType]float64, len(m.weights))
	for t, w := range m.weights {
		out[t] = w
	}
	return out, nil
}

func (m *mockSuggestionRepo) UpsertFeatureWeights(_ context.Context, _ int64, weights map[models.FeatureType]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, w := range weights {
		m.weights[t] = w
	}
	return nil
}

func (m *mockSuggestionRepo) LatestRecalibrationAt(_ context.Context, _ int64) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recalibrations) == 0 {
		return time.Time{}, nil
	}
	return m.recalibrations[len(m.recalibrations)-1].RanAt, nil
}

func (m *mockSuggestionRepo) RecordRecalibration(_ context.Context, rec *models.WeightRecalibration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.RanAt.IsZero() {
		rec.RanAt = time.Now()
	}
	rec.ID = int64(len(m.recalibrations) + 1)
	m.recalibrations = append(m.recalibrations, rec)
	return nil
}

// mockEntityRepo implements repositories.EntityRepository in memory.
type mockEntityRepo struct {
	mu sync.Mutex

	sagas         map[int64]*models.Saga
	entities      map[int64]*models.Entity
	relationships []*models.Relationship
	nextRelID     int64

	createRelErr error
}

func newMockEntityRepo() *mockEntityRepo {
	return &mockEntityRepo{
		sagas:    make(map[int64]*models.Saga),
		entities: make(map[int64]*models.Entity),
	}
}

func (m *mockEntityRepo) GetSaga(_ context.Context, sagaID int64) (*models.Saga, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sagas[sagaID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (m *mockEntityRepo) GetEntity(_ context.Context, id int64) (*models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return e, nil
}

func (m *mockEntityRepo) CountEntities(_ context.Context, sagaID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.entities {
		if e.SagaID == sagaID {
			count++
		}
	}
	return count, nil
}

func (m *mockEntityRepo) CountEntitiesByKind(_ context.Context, sagaID int64) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range m.entities {
		if e.SagaID == sagaID {
			counts[e.Kind]++
		}
	}
	return counts, nil
}

func (m *mockEntityRepo) CreateRelationship(_ context.Context, rel *models.Relationship) (int64, error) {
	if m.createRelErr != nil {
		return 0, m.createRelErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRelID++
	rel.ID = m.nextRelID
	rel.CreatedAt = time.Now()
	c := *rel
	m.relationships = append(m.relationships, &c)
	return rel.ID, nil
}

// seedPair loads a saga and two entities into the mock and returns the pair.
func seedPair(repo *mockEntityRepo) models.EntityPair {
	repo.sagas[1] = &models.Saga{ID: 1, Title: "The Ashen Crown", Genre: "fantasy"}
	repo.entities[10] = &models.Entity{ID: 10, SagaID: 1, Name: "Maren", Kind: "character", Description: "Exiled cartographer"}
	repo.entities[11] = &models.Entity{ID: 11, SagaID: 1, Name: "Tobin", Kind: "character", Description: "Harbor smuggler"}
	return models.EntityPair{SagaID: 1, SourceID: 10, TargetID: 11}
}
