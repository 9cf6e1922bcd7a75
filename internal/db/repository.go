package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for notifications and their
// delivery attempts.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new notification repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

const notificationColumns = `
	id, user_id, title, content, notification_type, channel, status,
	reference_id, reference_type, sent_at, delivered_at, read_at,
	created_at, updated_at
`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Content,
		&n.Type,
		&n.Channel,
		&n.Status,
		&n.ReferenceID,
		&n.ReferenceType,
		&n.SentAt,
		&n.DeliveredAt,
		&n.ReadAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification inserts a new notification row.
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, title, content, notification_type, channel,
			status, reference_id, reference_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		n.ID,
		n.UserID,
		n.Title,
		n.Content,
		n.Type,
		n.Channel,
		n.Status,
		n.ReferenceID,
		n.ReferenceType,
	).Scan(&n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// GetNotification retrieves a notification by ID.
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return n, nil
}

// ListByUser retrieves a user's notifications newest-first, with optional
// status and channel filters applied independently.
func (r *Repository) ListByUser(
	ctx context.Context,
	userID int64,
	status *NotificationStatus,
	channel *Channel,
	limit int,
	offset int,
) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []any{userID}

	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if channel != nil {
		args = append(args, *channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// ListPendingByChannel retrieves the oldest pending notifications for a
// channel, creation order ascending, so reconciliation drains FIFO.
func (r *Repository) ListPendingByChannel(ctx context.Context, channel Channel, limit int) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1 AND channel = $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, StatusPending, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// ReclaimStale returns processing rows whose claim has gone quiet back to
// pending, so a worker that crashed mid-send cannot strand them forever.
// Returns how many rows were reclaimed.
func (r *Repository) ReclaimStale(ctx context.Context, channel Channel, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND channel = $3 AND updated_at < $4
	`

	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.Pool().Exec(ctx, query, StatusPending, StatusProcessing, channel, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale notifications: %w", err)
	}

	if n := result.RowsAffected(); n > 0 {
		r.logger.Warn("reclaimed stale processing notifications",
			zap.String("channel", string(channel)),
			zap.Int64("count", n),
		)
		return n, nil
	}
	return 0, nil
}

// ClaimPending atomically moves a notification from pending to processing.
// Returns false when the row is no longer pending, meaning another worker
// got there first.
func (r *Repository) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE notifications
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, StatusProcessing, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// UpdateDelivery persists the delivery-side mutable fields of a
// notification: status and the sent/delivered timestamps.
func (r *Repository) UpdateDelivery(ctx context.Context, n *Notification) error {
	query := `
		UPDATE notifications
		SET status = $1, sent_at = $2, delivered_at = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query, n.Status, n.SentAt, n.DeliveredAt, n.ID).Scan(&n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("notification %s: %w", n.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update notification delivery: %w", err)
	}

	return nil
}

// MarkRead stamps read_at on an in-app notification and moves a delivered
// row to read. The read_at guard keeps the first timestamp on repeat calls.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) error {
	query := `
		UPDATE notifications
		SET read_at = $1,
		    status = CASE WHEN status = $2 THEN $3 ELSE status END,
		    updated_at = NOW()
		WHERE id = $4 AND read_at IS NULL
	`

	result, err := r.db.Pool().Exec(ctx, query, readAt, StatusDelivered, StatusRead, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Already read; not an error, markAsRead is idempotent.
		return nil
	}

	return nil
}

// CountUnread counts delivered in-app notifications the user has not read.
func (r *Repository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE user_id = $1 AND channel = $2 AND status = $3 AND read_at IS NULL
	`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, userID, ChannelInApp, StatusDelivered).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}

	return count, nil
}

// DeleteNotification removes a notification and its delivery attempts.
func (r *Repository) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM notification_delivery_attempts WHERE notification_id = $1`, id); err != nil {
		return fmt.Errorf("delete delivery attempts: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("notification deleted", zap.String("notification_id", id.String()))
	return nil
}

// AppendAttempt records one delivery attempt. Attempt rows are never
// updated or deleted afterwards.
func (r *Repository) AppendAttempt(ctx context.Context, a *DeliveryAttempt) error {
	query := `
		INSERT INTO notification_delivery_attempts (
			id, notification_id, attempt_number, status, error_message, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(
		ctx,
		query,
		a.ID,
		a.NotificationID,
		a.AttemptNumber,
		a.Status,
		a.ErrorMessage,
		a.AttemptedAt,
	)
	if err != nil {
		r.logger.Error("failed to append delivery attempt",
			zap.Error(err),
			zap.String("notification_id", a.NotificationID.String()),
			zap.Int("attempt_number", a.AttemptNumber),
		)
		return fmt.Errorf("insert delivery attempt: %w", err)
	}

	return nil
}

// CountAttempts returns how many delivery attempts a notification has.
func (r *Repository) CountAttempts(ctx context.Context, notificationID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(
		ctx,
		`SELECT COUNT(*) FROM notification_delivery_attempts WHERE notification_id = $1`,
		notificationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count delivery attempts: %w", err)
	}

	return count, nil
}

// ListAttempts returns a notification's delivery attempts in attempt order.
func (r *Repository) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]*DeliveryAttempt, error) {
	query := `
		SELECT id, notification_id, attempt_number, status, error_message, attempted_at
		FROM notification_delivery_attempts
		WHERE notification_id = $1
		ORDER BY attempt_number ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, notificationID)
	if err != nil {
		return nil, fmt.Errorf("query delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*DeliveryAttempt
	for rows.Next() {
		var a DeliveryAttempt
		err := rows.Scan(&a.ID, &a.NotificationID, &a.AttemptNumber, &a.Status, &a.ErrorMessage, &a.AttemptedAt)
		if err != nil {
			return nil, fmt.Errorf("scan delivery attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return attempts, nil
}
