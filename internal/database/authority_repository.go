package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// AuthorityRepository handles authority data operations
type AuthorityRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewAuthorityRepository creates a new authority repository
func NewAuthorityRepository(db *sqlx.DB, logger *slog.Logger) *AuthorityRepository {
	return &AuthorityRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// GetByID retrieves an authority by ID
func (r *AuthorityRepository) GetByID(ctx context.Context, id string) (*Authority, error) {
	query := `
		SELECT id, name, email, active, created_at
		FROM authorities
		WHERE id = $1`

	var authority Authority
	err := r.db.GetContext(ctx, &authority, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("authority %s: %w", id, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get authority by ID", "authority_id", id, "error", err)
		return nil, fmt.Errorf("failed to get authority by ID: %w", err)
	}

	return &authority, nil
}

// ListActiveExcluding retrieves active authorities other than the given one,
// ordered by ID so fallback selection is deterministic. Pass nil to list all
// active authorities.
func (r *AuthorityRepository) ListActiveExcluding(ctx context.Context, excludeID *string) ([]*Authority, error) {
	query := `
		SELECT id, name, email, active, created_at
		FROM authorities
		WHERE active = true AND ($1::text IS NULL OR id != $1)
		ORDER BY id ASC`

	var authorities []*Authority
	err := r.db.SelectContext(ctx, &authorities, query, excludeID)
	if err != nil {
		r.logger.Error("Failed to list active authorities", "error", err)
		return nil, fmt.Errorf("failed to list active authorities: %w", err)
	}

	return authorities, nil
}
