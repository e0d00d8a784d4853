package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// HistoryRepository handles status history reads. Writes happen inside the
// escalation unit of work; see escalation_store.go.
type HistoryRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sqlx.DB, logger *slog.Logger) *HistoryRepository {
	return &HistoryRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// ListForComplaint retrieves the status history of a complaint, newest first.
func (r *HistoryRepository) ListForComplaint(ctx context.Context, complaintID string) ([]*StatusHistoryEntry, error) {
	query := `
		SELECT id, complaint_id, old_status, new_status, remarks, actor_id, created_at
		FROM status_history
		WHERE complaint_id = $1
		ORDER BY created_at DESC`

	var entries []*StatusHistoryEntry
	err := r.db.SelectContext(ctx, &entries, query, complaintID)
	if err != nil {
		r.logger.Error("Failed to list status history", "complaint_id", complaintID, "error", err)
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}

	return entries, nil
}
