package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// EscalationTx is the set of writes available inside one escalation unit of
// work. All of them commit together or roll back together.
type EscalationTx interface {
	UpdateComplaintEscalated(ctx context.Context, complaintID, authorityID string) error
	AppendStatusHistory(ctx context.Context, entry *StatusHistoryEntry) error
	AppendEscalationLog(ctx context.Context, entry *EscalationLogEntry) error
	CreateNotification(ctx context.Context, notification *Notification) error
}

// TxRunner runs a function inside a single database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(EscalationTx) error) error
}

// EscalationStore implements TxRunner over sqlx transactions.
type EscalationStore struct {
	BaseRepository
	logger *slog.Logger
}

// NewEscalationStore creates a new escalation store
func NewEscalationStore(db *sqlx.DB, logger *slog.Logger) *EscalationStore {
	return &EscalationStore{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// RunInTx executes fn within a database transaction. Any error rolls the
// whole unit of work back.
func (s *EscalationStore) RunInTx(ctx context.Context, fn func(EscalationTx) error) error {
	return s.Transaction(ctx, func(tx *sqlx.Tx) error {
		return fn(&escalationTx{tx: tx})
	})
}

type escalationTx struct {
	tx *sqlx.Tx
}

// UpdateComplaintEscalated moves the complaint to the escalated status and
// reassigns it. The row lock it takes serializes concurrent escalations of
// the same complaint.
func (t *escalationTx) UpdateComplaintEscalated(ctx context.Context, complaintID, authorityID string) error {
	query := `
		UPDATE complaints
		SET status = $2, assigned_authority_id = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := t.tx.ExecContext(ctx, query, complaintID, StatusEscalated, authorityID)
	if err != nil {
		return fmt.Errorf("failed to update complaint: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("complaint %s: %w", complaintID, ErrNotFound)
	}

	return nil
}

// AppendStatusHistory appends a status transition record.
func (t *escalationTx) AppendStatusHistory(ctx context.Context, entry *StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO status_history (id, complaint_id, old_status, new_status, remarks, actor_id, created_at)
		VALUES (:id, :complaint_id, :old_status, :new_status, :remarks, :actor_id, :created_at)`

	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	return nil
}

// AppendEscalationLog appends an escalation audit record.
func (t *escalationTx) AppendEscalationLog(ctx context.Context, entry *EscalationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO escalation_logs (id, complaint_id, from_authority_id, to_authority_id, reason, created_at)
		VALUES (:id, :complaint_id, :from_authority_id, :to_authority_id, :reason, :created_at)`

	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to append escalation log: %w", err)
	}

	return nil
}

// CreateNotification inserts the user-facing notification row.
func (t *escalationTx) CreateNotification(ctx context.Context, notification *Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO notifications (id, user_id, complaint_id, title, message, type, is_read, created_at)
		VALUES (:id, :user_id, :complaint_id, :title, :message, :type, :is_read, :created_at)`

	if _, err := t.tx.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}
