package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const templateColumns = `
	id, template_key, title, content, description, channel, template_type,
	created_at, updated_at
`

func scanTemplate(row pgx.Row) (*NotificationTemplate, error) {
	var t NotificationTemplate
	err := row.Scan(
		&t.ID,
		&t.TemplateKey,
		&t.Title,
		&t.Content,
		&t.Description,
		&t.Channel,
		&t.Type,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTemplate inserts a new notification template. The template_key
// unique constraint surfaces as an error from here.
func (r *Repository) CreateTemplate(ctx context.Context, t *NotificationTemplate) error {
	query := `
		INSERT INTO notification_templates (
			id, template_key, title, content, description, channel, template_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		t.ID,
		t.TemplateKey,
		t.Title,
		t.Content,
		t.Description,
		t.Channel,
		t.Type,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}

	r.logger.Info("template created", zap.String("template_key", t.TemplateKey))
	return nil
}

// GetTemplateByKey retrieves a template by its unique key.
func (r *Repository) GetTemplateByKey(ctx context.Context, key string) (*NotificationTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates WHERE template_key = $1`

	t, err := scanTemplate(r.db.Pool().QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	return t, nil
}

// ListTemplates returns all templates, optionally filtered by channel.
func (r *Repository) ListTemplates(ctx context.Context, channel *Channel) ([]*NotificationTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates`
	args := []any{}
	if channel != nil {
		query += ` WHERE channel = $1`
		args = append(args, *channel)
	}
	query += ` ORDER BY template_key ASC`

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []*NotificationTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return templates, nil
}

// UpdateTemplate persists the mutable fields of a template.
func (r *Repository) UpdateTemplate(ctx context.Context, t *NotificationTemplate) error {
	query := `
		UPDATE notification_templates
		SET title = $1, content = $2, description = $3, updated_at = NOW()
		WHERE template_key = $4
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query, t.Title, t.Content, t.Description, t.TemplateKey).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("template %q: %w", t.TemplateKey, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}

	return nil
}

// DeleteTemplate removes a template by key. Already-rendered notifications
// keep their snapshot.
func (r *Repository) DeleteTemplate(ctx context.Context, key string) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM notification_templates WHERE template_key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("template %q: %w", key, ErrNotFound)
	}

	r.logger.Info("template deleted", zap.String("template_key", key))
	return nil
}
