package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// RuleRepository handles escalation rule data operations
type RuleRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlx.DB, logger *slog.Logger) *RuleRepository {
	return &RuleRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// ListActive retrieves all active escalation rules. The schema guarantees at
// most one active rule per severity.
func (r *RuleRepository) ListActive(ctx context.Context) ([]*EscalationRule, error) {
	query := `
		SELECT id, severity, time_limit_hours, escalation_authority_id,
		       active, created_at, updated_at
		FROM escalation_rules
		WHERE active = true
		ORDER BY severity ASC`

	var rules []*EscalationRule
	err := r.db.SelectContext(ctx, &rules, query)
	if err != nil {
		r.logger.Error("Failed to list active escalation rules", "error", err)
		return nil, fmt.Errorf("failed to list active escalation rules: %w", err)
	}

	return rules, nil
}
