package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// complaintContextColumns is the SELECT list shared by complaint queries that
// need the joined user/category/authority context.
const complaintContextColumns = `
	c.id, c.tracking_code, c.user_id, c.category_id, c.title, c.description,
	c.severity, c.status, c.latitude, c.longitude, c.assigned_authority_id,
	c.resolved_at, c.created_at, c.updated_at,
	u.name AS user_name, u.email AS user_email, u.phone AS user_phone,
	cat.name AS category_name, a.name AS authority_name`

const complaintContextJoins = `
	FROM complaints c
	JOIN users u ON u.id = c.user_id
	JOIN categories cat ON cat.id = c.category_id
	LEFT JOIN authorities a ON a.id = c.assigned_authority_id`

// ComplaintRepository handles complaint data operations
type ComplaintRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewComplaintRepository creates a new complaint repository
func NewComplaintRepository(db *sqlx.DB, logger *slog.Logger) *ComplaintRepository {
	return &ComplaintRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// GetByID retrieves a complaint with its joined context
func (r *ComplaintRepository) GetByID(ctx context.Context, id string) (*Complaint, error) {
	query := `SELECT` + complaintContextColumns + complaintContextJoins + `
		WHERE c.id = $1`

	var complaint Complaint
	err := r.db.GetContext(ctx, &complaint, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("complaint %s: %w", id, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get complaint by ID", "complaint_id", id, "error", err)
		return nil, fmt.Errorf("failed to get complaint by ID: %w", err)
	}

	return &complaint, nil
}

// GetByTrackingCode retrieves a complaint by its public tracking code
func (r *ComplaintRepository) GetByTrackingCode(ctx context.Context, code string) (*Complaint, error) {
	query := `SELECT` + complaintContextColumns + complaintContextJoins + `
		WHERE c.tracking_code = $1`

	var complaint Complaint
	err := r.db.GetContext(ctx, &complaint, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tracking code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get complaint by tracking code", "tracking_code", code, "error", err)
		return nil, fmt.Errorf("failed to get complaint by tracking code: %w", err)
	}

	return &complaint, nil
}

// ListEligible retrieves complaints that a sweep must evaluate: every
// complaint that is neither resolved nor already escalated and is at least
// minAge old. Fresh complaints never fire before any SLA plausibly applies.
func (r *ComplaintRepository) ListEligible(ctx context.Context, minAge time.Duration) ([]*Complaint, error) {
	query := `SELECT` + complaintContextColumns + complaintContextJoins + `
		WHERE c.status NOT IN ($1, $2)
		AND c.created_at <= $3
		ORDER BY c.created_at ASC`

	cutoff := time.Now().Add(-minAge)

	var complaints []*Complaint
	err := r.db.SelectContext(ctx, &complaints, query, StatusResolved, StatusEscalated, cutoff)
	if err != nil {
		r.logger.Error("Failed to list eligible complaints", "error", err)
		return nil, fmt.Errorf("failed to list eligible complaints: %w", err)
	}

	return complaints, nil
}

// CountOpenBySeverity counts unresolved complaints grouped by severity.
func (r *ComplaintRepository) CountOpenBySeverity(ctx context.Context) ([]SeverityCount, error) {
	query := `
		SELECT severity, COUNT(*) AS count
		FROM complaints
		WHERE status != $1
		GROUP BY severity`

	var counts []SeverityCount
	err := r.db.SelectContext(ctx, &counts, query, StatusResolved)
	if err != nil {
		r.logger.Error("Failed to count open complaints", "error", err)
		return nil, fmt.Errorf("failed to count open complaints: %w", err)
	}

	return counts, nil
}

// GetSLAComplianceReport aggregates resolved vs escalated counts and
// resolution times per severity over the given window.
func (r *ComplaintRepository) GetSLAComplianceReport(ctx context.Context, from, to time.Time) (*SLAComplianceReport, error) {
	query := `
		SELECT
			severity,
			COUNT(*) FILTER (WHERE status = $3) AS resolved_count,
			COUNT(*) FILTER (WHERE status = $4) AS escalated_count,
			AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600.0)
				FILTER (WHERE resolved_at IS NOT NULL) AS avg_resolution_hours,
			MAX(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600.0)
				FILTER (WHERE resolved_at IS NOT NULL) AS max_resolution_hours
		FROM complaints
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY severity
		ORDER BY severity`

	var entries []SLAComplianceEntry
	err := r.db.SelectContext(ctx, &entries, query, from, to, StatusResolved, StatusEscalated)
	if err != nil {
		r.logger.Error("Failed to build SLA compliance report", "error", err)
		return nil, fmt.Errorf("failed to build SLA compliance report: %w", err)
	}

	return &SLAComplianceReport{
		WindowStart: from,
		WindowEnd:   to,
		Entries:     entries,
	}, nil
}
