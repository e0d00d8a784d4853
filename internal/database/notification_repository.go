package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// NotificationRepository handles user notification data operations
type NotificationRepository struct {
	BaseRepository
	logger *slog.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqlx.DB, logger *slog.Logger) *NotificationRepository {
	return &NotificationRepository{
		BaseRepository: BaseRepository{db: db},
		logger:         logger,
	}
}

// ListForUser retrieves a user's notifications, newest first. Clients poll
// this; there is no push channel.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	query := `
		SELECT id, user_id, complaint_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = false OR is_read = false)
		ORDER BY created_at DESC
		LIMIT $3`

	if limit <= 0 {
		limit = 50
	}

	var notifications []*Notification
	err := r.db.SelectContext(ctx, &notifications, query, userID, unreadOnly, limit)
	if err != nil {
		r.logger.Error("Failed to list notifications", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead flips the read flag on a notification.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE notifications SET is_read = true WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to mark notification read", "notification_id", id, "error", err)
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	return nil
}

// CleanupOld deletes notifications older than the retention window.
func (r *NotificationRepository) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE created_at < NOW() - ($1 * INTERVAL '1 day')`

	result, err := r.db.ExecContext(ctx, query, retentionDays)
	if err != nil {
		r.logger.Error("Failed to cleanup old notifications", "error", err)
		return 0, fmt.Errorf("failed to cleanup old notifications: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
