// Package template resolves notification templates and renders their
// {{variable}} placeholders.
package template

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// Store is the template lookup the renderer needs.
type Store interface {
	GetTemplateByKey(ctx context.Context, key string) (*db.NotificationTemplate, error)
}

// Renderer produces a notification's title and content from a stored
// template and a variable map.
type Renderer struct {
	store  Store
	logger *zap.Logger
}

// NewRenderer creates a template renderer.
func NewRenderer(store Store, logger *zap.Logger) *Renderer {
	return &Renderer{store: store, logger: logger}
}

// Render resolves the template by key and substitutes variables into its
// title and content. Substitution is a single literal pass: every
// {{key}} occurrence is replaced by the supplied value, placeholders with
// no matching key stay verbatim, and no HTML escaping happens. A missing
// template surfaces as db.ErrNotFound.
func (r *Renderer) Render(ctx context.Context, key string, vars map[string]string) (string, string, error) {
	tmpl, err := r.store.GetTemplateByKey(ctx, key)
	if err != nil {
		return "", "", err
	}

	title := tmpl.Title
	content := tmpl.Content
	for name, value := range vars {
		placeholder := "{{" + name + "}}"
		title = strings.ReplaceAll(title, placeholder, value)
		content = strings.ReplaceAll(content, placeholder, value)
	}

	return title, content, nil
}
