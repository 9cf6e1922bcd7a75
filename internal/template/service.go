package template

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// maxPushContentLen bounds push template content; push payloads are
// truncated by gateways well before this anyway.
const maxPushContentLen = 200

// ContentError marks template content that fails the per-type validation
// rules. It is a caller error, never retried.
type ContentError struct {
	Reason string
}

func (e *ContentError) Error() string {
	return e.Reason
}

// ServiceStore is the repository surface the template service needs.
type ServiceStore interface {
	Store
	CreateTemplate(ctx context.Context, t *db.NotificationTemplate) error
	ListTemplates(ctx context.Context, channel *db.Channel) ([]*db.NotificationTemplate, error)
	UpdateTemplate(ctx context.Context, t *db.NotificationTemplate) error
	DeleteTemplate(ctx context.Context, key string) error
}

// Service manages notification templates independently of the
// notifications rendered from them.
type Service struct {
	store  ServiceStore
	logger *zap.Logger
}

// NewService creates a template management service.
func NewService(store ServiceStore, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateRequest carries the fields for a new template.
type CreateRequest struct {
	TemplateKey string          `json:"template_key"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Description *string         `json:"description,omitempty"`
	Channel     db.Channel      `json:"channel"`
	Type        db.TemplateType `json:"template_type"`
}

// UpdateRequest carries a partial template update; nil fields are left
// unchanged.
type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Create validates and stores a new template. A duplicate key is a
// validation error.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*db.NotificationTemplate, error) {
	if req.TemplateKey == "" {
		return nil, db.Validationf("template key is required")
	}
	if req.Title == "" || req.Content == "" {
		return nil, db.Validationf("template title and content are required")
	}
	if !req.Channel.Valid() {
		return nil, db.Validationf("unknown channel %q", req.Channel)
	}

	if _, err := s.store.GetTemplateByKey(ctx, req.TemplateKey); err == nil {
		return nil, db.Validationf("template with key %q already exists", req.TemplateKey)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("check template key: %w", err)
	}

	if err := validateContent(req.Content, req.Type); err != nil {
		return nil, err
	}

	tmpl := &db.NotificationTemplate{
		ID:          uuid.New(),
		TemplateKey: req.TemplateKey,
		Title:       req.Title,
		Content:     req.Content,
		Description: req.Description,
		Channel:     req.Channel,
		Type:        req.Type,
	}

	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	s.logger.Info("template created",
		zap.String("template_key", tmpl.TemplateKey),
		zap.String("channel", string(tmpl.Channel)),
	)
	return tmpl, nil
}

// Get returns a template by key.
func (s *Service) Get(ctx context.Context, key string) (*db.NotificationTemplate, error) {
	return s.store.GetTemplateByKey(ctx, key)
}

// List returns all templates, optionally filtered by channel.
func (s *Service) List(ctx context.Context, channel *db.Channel) ([]*db.NotificationTemplate, error) {
	return s.store.ListTemplates(ctx, channel)
}

// Update applies a partial update; updated content is re-validated
// against the template's existing type.
func (s *Service) Update(ctx context.Context, key string, req UpdateRequest) (*db.NotificationTemplate, error) {
	tmpl, err := s.store.GetTemplateByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		tmpl.Title = *req.Title
	}
	if req.Content != nil {
		if err := validateContent(*req.Content, tmpl.Type); err != nil {
			return nil, err
		}
		tmpl.Content = *req.Content
	}
	if req.Description != nil {
		tmpl.Description = req.Description
	}

	if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	s.logger.Info("template updated", zap.String("template_key", key))
	return tmpl, nil
}

// Delete removes a template by key.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.store.DeleteTemplate(ctx, key)
}

func validateContent(content string, t db.TemplateType) error {
	switch t {
	case db.TemplateHTML:
		if !strings.Contains(content, "<") {
			return &ContentError{Reason: "html template must contain html tags"}
		}
	case db.TemplateText:
		// no constraints on plain text
	case db.TemplatePush:
		if len(content) > maxPushContentLen {
			return &ContentError{Reason: fmt.Sprintf("push template content must not exceed %d characters", maxPushContentLen)}
		}
	default:
		return db.Validationf("unknown template type %q", t)
	}
	return nil
}
