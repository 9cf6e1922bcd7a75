package template

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

type fakeServiceStore struct {
	fakeTemplateStore
}

func (s *fakeServiceStore) CreateTemplate(ctx context.Context, t *db.NotificationTemplate) error {
	s.templates[t.TemplateKey] = t
	return nil
}

func (s *fakeServiceStore) ListTemplates(ctx context.Context, channel *db.Channel) ([]*db.NotificationTemplate, error) {
	var out []*db.NotificationTemplate
	for _, t := range s.templates {
		if channel == nil || t.Channel == *channel {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeServiceStore) UpdateTemplate(ctx context.Context, t *db.NotificationTemplate) error {
	if _, ok := s.templates[t.TemplateKey]; !ok {
		return db.ErrNotFound
	}
	s.templates[t.TemplateKey] = t
	return nil
}

func (s *fakeServiceStore) DeleteTemplate(ctx context.Context, key string) error {
	if _, ok := s.templates[key]; !ok {
		return db.ErrNotFound
	}
	delete(s.templates, key)
	return nil
}

func newServiceStore() *fakeServiceStore {
	return &fakeServiceStore{fakeTemplateStore{templates: make(map[string]*db.NotificationTemplate)}}
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(newServiceStore(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name    string
		req     CreateRequest
		wantErr string
	}{
		{
			name:    "missing_key",
			req:     CreateRequest{Title: "t", Content: "c", Channel: db.ChannelEmail, Type: db.TemplateText},
			wantErr: "key is required",
		},
		{
			name:    "missing_content",
			req:     CreateRequest{TemplateKey: "K", Title: "t", Channel: db.ChannelEmail, Type: db.TemplateText},
			wantErr: "title and content are required",
		},
		{
			name:    "bad_channel",
			req:     CreateRequest{TemplateKey: "K", Title: "t", Content: "c", Channel: "sms", Type: db.TemplateText},
			wantErr: "unknown channel",
		},
		{
			name:    "html_without_tags",
			req:     CreateRequest{TemplateKey: "K", Title: "t", Content: "plain", Channel: db.ChannelEmail, Type: db.TemplateHTML},
			wantErr: "html tags",
		},
		{
			name: "push_too_long",
			req: CreateRequest{
				TemplateKey: "K", Title: "t",
				Content: strings.Repeat("x", 201),
				Channel: db.ChannelPush, Type: db.TemplatePush,
			},
			wantErr: "200 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServiceCreateDuplicateKey(t *testing.T) {
	store := newServiceStore()
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	req := CreateRequest{
		TemplateKey: "WELCOME",
		Title:       "Welcome",
		Content:     "Hi {{name}}",
		Channel:     db.ChannelInApp,
		Type:        db.TemplateText,
	}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := svc.Create(ctx, req)
	var validationErr *db.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %v, want *db.ValidationError", err)
	}
}

func TestServiceCreatePushAtLimit(t *testing.T) {
	svc := NewService(newServiceStore(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateRequest{
		TemplateKey: "PUSH_OK",
		Title:       "t",
		Content:     strings.Repeat("x", 200),
		Channel:     db.ChannelPush,
		Type:        db.TemplatePush,
	})
	if err != nil {
		t.Fatalf("content of exactly 200 chars must pass: %v", err)
	}
}

func TestServiceUpdateRevalidatesContent(t *testing.T) {
	store := newServiceStore()
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateRequest{
		TemplateKey: "HTML",
		Title:       "t",
		Content:     "<p>ok</p>",
		Channel:     db.ChannelEmail,
		Type:        db.TemplateHTML,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	bad := "no tags here"
	_, err := svc.Update(ctx, "HTML", UpdateRequest{Content: &bad})
	var contentErr *ContentError
	if !errors.As(err, &contentErr) {
		t.Fatalf("error = %v, want *ContentError", err)
	}

	good := "<p>still html</p>"
	newTitle := "updated"
	tmpl, err := svc.Update(ctx, "HTML", UpdateRequest{Title: &newTitle, Content: &good})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if tmpl.Title != "updated" || tmpl.Content != good {
		t.Errorf("updated template = %+v", tmpl)
	}
}

func TestServiceUpdateMissingTemplate(t *testing.T) {
	svc := NewService(newServiceStore(), zap.NewNop())

	title := "t"
	_, err := svc.Update(context.Background(), "NOPE", UpdateRequest{Title: &title})
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestServiceListFiltersByChannel(t *testing.T) {
	store := newServiceStore()
	svc := NewService(store, zap.NewNop())
	ctx := context.Background()

	for _, req := range []CreateRequest{
		{TemplateKey: "A", Title: "t", Content: "c", Channel: db.ChannelEmail, Type: db.TemplateText},
		{TemplateKey: "B", Title: "t", Content: "c", Channel: db.ChannelPush, Type: db.TemplatePush},
	} {
		if _, err := svc.Create(ctx, req); err != nil {
			t.Fatalf("create %s failed: %v", req.TemplateKey, err)
		}
	}

	email := db.ChannelEmail
	got, err := svc.List(ctx, &email)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].TemplateKey != "A" {
		t.Errorf("filtered list = %+v", got)
	}
}
