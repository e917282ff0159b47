package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sagacraft/saga-engine/pkg/apperrors"
	"github.com/sagacraft/saga-engine/pkg/database"
	"github.com/sagacraft/saga-engine/pkg/models"
)

// EntityRepository provides the suggestion engine's view of saga entities and
// established relationships.
type EntityRepository interface {
	GetSaga(ctx context.Context, sagaID int64) (*models.Saga, error)
	GetEntity(ctx context.Context, id int64) (*models.Entity, error)
	CountEntities(ctx context.Context, sagaID int64) (int, error)
	// CountEntitiesByKind returns how many entities of each kind the saga has,
	// used for prompt context.
	CountEntitiesByKind(ctx context.Context, sagaID int64) (map[string]int, error)

	// CreateRelationship inserts an established relationship and returns its
	// id, for linking back from an accepted or modified suggestion.
	CreateRelationship(ctx context.Context, rel *models.Relationship) (int64, error)
}

type entityRepository struct {
	db *database.DB
}

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(db *database.DB) EntityRepository {
	return &entityRepository{db: db}
}

var _ EntityRepository = (*entityRepository)(nil)

func (r *entityRepository) GetSaga(ctx context.Context, sagaID int64) (*models.Saga, error) {
	var s models.Saga
	err := r.db.QueryRow(ctx, `
		SELECT id, title, genre, created_at
		FROM sagas
		WHERE id = $1`,
		sagaID,
	).Scan(&s.ID, &s.Title, &s.Genre, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get saga: %w", err)
	}
	return &s, nil
}

func (r *entityRepository) GetEntity(ctx context.Context, id int64) (*models.Entity, error) {
	var e models.Entity
	err := r.db.QueryRow(ctx, `
		SELECT id, saga_id, name, kind, COALESCE(description, ''), created_at
		FROM saga_entities
		WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.SagaID, &e.Name, &e.Kind, &e.Description, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &e, nil
}

func (r *entityRepository) CountEntities(ctx context.Context, sagaID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM saga_entities WHERE saga_id = $1`, sagaID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return count, nil
}

func (r *entityRepository) CountEntitiesByKind(ctx context.Context, sagaID int64) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT kind, COUNT(*)
		FROM saga_entities
		WHERE saga_id = $1
		GROUP BY kind`,
		sagaID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan entity kind count: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity kind counts: %w", err)
	}
	return counts, nil
}

func (r *entityRepository) CreateRelationship(ctx context.Context, rel *models.Relationship) (int64, error) {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO saga_relationships (
			saga_id, source_entity_id, target_entity_id,
			relationship_type, strength, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rel.SagaID, rel.SourceEntityID, rel.TargetEntityID,
		rel.RelationshipType, rel.Strength, rel.Description, rel.CreatedAt,
	).Scan(&rel.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to create relationship: %w", err)
	}
	return rel.ID, nil
}
