package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const preferenceColumns = `
	id, user_id, notification_type, email_enabled, push_enabled, in_app_enabled,
	created_at, updated_at
`

func scanPreference(row pgx.Row) (*UserNotificationPreference, error) {
	var p UserNotificationPreference
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Type,
		&p.EmailEnabled,
		&p.PushEnabled,
		&p.InAppEnabled,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPreference retrieves the preference row for (userID, type).
func (r *Repository) GetPreference(ctx context.Context, userID int64, t NotificationType) (*UserNotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + `
		FROM user_notification_preferences
		WHERE user_id = $1 AND notification_type = $2
	`

	p, err := scanPreference(r.db.Pool().QueryRow(ctx, query, userID, t))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("preference for user %d type %s: %w", userID, t, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query preference: %w", err)
	}

	return p, nil
}

// ListPreferences returns all preference rows for a user.
func (r *Repository) ListPreferences(ctx context.Context, userID int64) ([]*UserNotificationPreference, error) {
	query := `SELECT ` + preferenceColumns + `
		FROM user_notification_preferences
		WHERE user_id = $1
		ORDER BY notification_type ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var preferences []*UserNotificationPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		preferences = append(preferences, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return preferences, nil
}

// UpsertPreference creates or replaces the preference row keyed on
// (user_id, notification_type).
func (r *Repository) UpsertPreference(ctx context.Context, p *UserNotificationPreference) error {
	query := `
		INSERT INTO user_notification_preferences (
			id, user_id, notification_type, email_enabled, push_enabled, in_app_enabled
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, notification_type) DO UPDATE
		SET email_enabled = EXCLUDED.email_enabled,
		    push_enabled = EXCLUDED.push_enabled,
		    in_app_enabled = EXCLUDED.in_app_enabled,
		    updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		p.ID,
		p.UserID,
		p.Type,
		p.EmailEnabled,
		p.PushEnabled,
		p.InAppEnabled,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}

	return nil
}

// DeletePreference removes the preference row for (userID, type).
func (r *Repository) DeletePreference(ctx context.Context, userID int64, t NotificationType) error {
	result, err := r.db.Pool().Exec(
		ctx,
		`DELETE FROM user_notification_preferences WHERE user_id = $1 AND notification_type = $2`,
		userID, t,
	)
	if err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("preference for user %d type %s: %w", userID, t, ErrNotFound)
	}

	return nil
}
