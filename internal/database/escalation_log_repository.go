package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// EscalationLogRepository handles the escalation audit trail and its
// reporting aggregations.
type EscalationLogRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewEscalationLogRepository creates a new escalation log repository
func NewEscalationLogRepository(db *sqlx.DB, logger *slog.Logger) *EscalationLogRepository {
	return &EscalationLogRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// ListForComplaint retrieves escalation log entries for a complaint, newest first.
func (r *EscalationLogRepository) ListForComplaint(ctx context.Context, complaintID string) ([]*EscalationLogEntry, error) {
	query := `
		SELECT id, complaint_id, from_authority_id, to_authority_id, reason, created_at
		FROM escalation_logs
		WHERE complaint_id = $1
		ORDER BY created_at DESC`

	var entries []*EscalationLogEntry
	err := r.db.SelectContext(ctx, &entries, query, complaintID)
	if err != nil {
		r.logger.Error("Failed to list escalation logs", "complaint_id", complaintID, "error", err)
		return nil, fmt.Errorf("failed to list escalation logs: %w", err)
	}

	return entries, nil
}

// GetStats aggregates escalation counts by period, severity and category.
func (r *EscalationLogRepository) GetStats(ctx context.Context) (*EscalationStats, error) {
	stats := &EscalationStats{}

	periodQuery := `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW()))   AS today,
			COUNT(*) FILTER (WHERE created_at >= date_trunc('week', NOW()))  AS this_week,
			COUNT(*) FILTER (WHERE created_at >= date_trunc('month', NOW())) AS this_month,
			COUNT(*)                                                         AS total
		FROM escalation_logs`

	row := struct {
		Today     int `db:"today"`
		ThisWeek  int `db:"this_week"`
		ThisMonth int `db:"this_month"`
		Total     int `db:"total"`
	}{}
	if err := r.db.GetContext(ctx, &row, periodQuery); err != nil {
		r.logger.Error("Failed to aggregate escalation counts", "error", err)
		return nil, fmt.Errorf("failed to aggregate escalation counts: %w", err)
	}
	stats.Today = row.Today
	stats.ThisWeek = row.ThisWeek
	stats.ThisMonth = row.ThisMonth
	stats.Total = row.Total

	severityQuery := `
		SELECT c.severity, COUNT(*) AS count
		FROM escalation_logs el
		JOIN complaints c ON c.id = el.complaint_id
		GROUP BY c.severity
		ORDER BY c.severity`

	if err := r.db.SelectContext(ctx, &stats.BySeverity, severityQuery); err != nil {
		r.logger.Error("Failed to aggregate escalations by severity", "error", err)
		return nil, fmt.Errorf("failed to aggregate escalations by severity: %w", err)
	}

	categoryQuery := `
		SELECT c.category_id, cat.name AS category_name, COUNT(*) AS count
		FROM escalation_logs el
		JOIN complaints c ON c.id = el.complaint_id
		JOIN categories cat ON cat.id = c.category_id
		GROUP BY c.category_id, cat.name
		ORDER BY count DESC`

	if err := r.db.SelectContext(ctx, &stats.ByCategory, categoryQuery); err != nil {
		r.logger.Error("Failed to aggregate escalations by category", "error", err)
		return nil, fmt.Errorf("failed to aggregate escalations by category: %w", err)
	}

	return stats, nil
}
