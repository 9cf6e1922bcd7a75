package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// ServiceStore is the repository surface the preference service needs.
type ServiceStore interface {
	Store
	ListPreferences(ctx context.Context, userID int64) ([]*db.UserNotificationPreference, error)
	UpsertPreference(ctx context.Context, p *db.UserNotificationPreference) error
	DeletePreference(ctx context.Context, userID int64, t db.NotificationType) error
}

// Service manages user notification preferences.
type Service struct {
	store  ServiceStore
	logger *zap.Logger
}

// NewService creates a preference management service.
func NewService(store ServiceStore, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// UpsertRequest carries a full preference row to create or replace.
type UpsertRequest struct {
	UserID       int64               `json:"user_id"`
	Type         db.NotificationType `json:"notification_type"`
	EmailEnabled bool                `json:"email_enabled"`
	PushEnabled  bool                `json:"push_enabled"`
	InAppEnabled bool                `json:"in_app_enabled"`
}

// UpdateRequest carries a partial preference update; nil flags are left
// unchanged.
type UpdateRequest struct {
	EmailEnabled *bool `json:"email_enabled,omitempty"`
	PushEnabled  *bool `json:"push_enabled,omitempty"`
	InAppEnabled *bool `json:"in_app_enabled,omitempty"`
}

// List returns all stored preference rows for a user. Types without a row
// are implicitly all-enabled and contribute nothing here.
func (s *Service) List(ctx context.Context, userID int64) ([]*db.UserNotificationPreference, error) {
	return s.store.ListPreferences(ctx, userID)
}

// Get returns the stored preference row for (userID, type).
func (s *Service) Get(ctx context.Context, userID int64, t db.NotificationType) (*db.UserNotificationPreference, error) {
	return s.store.GetPreference(ctx, userID, t)
}

// Upsert creates or replaces the preference row.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (*db.UserNotificationPreference, error) {
	if !req.Type.Valid() {
		return nil, db.Validationf("unknown notification type %q", req.Type)
	}

	pref := &db.UserNotificationPreference{
		ID:           uuid.New(),
		UserID:       req.UserID,
		Type:         req.Type,
		EmailEnabled: req.EmailEnabled,
		PushEnabled:  req.PushEnabled,
		InAppEnabled: req.InAppEnabled,
	}

	if err := s.store.UpsertPreference(ctx, pref); err != nil {
		return nil, err
	}

	s.logger.Info("preference saved",
		zap.Int64("user_id", req.UserID),
		zap.String("notification_type", string(req.Type)),
	)
	return pref, nil
}

// Update applies a partial update, creating an all-enabled default row
// first when none exists.
func (s *Service) Update(ctx context.Context, userID int64, t db.NotificationType, req UpdateRequest) (*db.UserNotificationPreference, error) {
	if !t.Valid() {
		return nil, db.Validationf("unknown notification type %q", t)
	}

	pref, err := s.store.GetPreference(ctx, userID, t)
	if errors.Is(err, db.ErrNotFound) {
		pref = &db.UserNotificationPreference{
			ID:           uuid.New(),
			UserID:       userID,
			Type:         t,
			EmailEnabled: true,
			PushEnabled:  true,
			InAppEnabled: true,
		}
	} else if err != nil {
		return nil, fmt.Errorf("look up preference: %w", err)
	}

	if req.EmailEnabled != nil {
		pref.EmailEnabled = *req.EmailEnabled
	}
	if req.PushEnabled != nil {
		pref.PushEnabled = *req.PushEnabled
	}
	if req.InAppEnabled != nil {
		pref.InAppEnabled = *req.InAppEnabled
	}

	if err := s.store.UpsertPreference(ctx, pref); err != nil {
		return nil, err
	}

	return pref, nil
}

// Delete removes the preference row, restoring the implicit all-enabled
// default for that type.
func (s *Service) Delete(ctx context.Context, userID int64, t db.NotificationType) error {
	return s.store.DeletePreference(ctx, userID, t)
}

// InitializeDefaults writes an explicit all-enabled row for every
// notification type, used when a new user registers.
func (s *Service) InitializeDefaults(ctx context.Context, userID int64) ([]*db.UserNotificationPreference, error) {
	var created []*db.UserNotificationPreference
	for _, t := range db.NotificationTypes() {
		pref := &db.UserNotificationPreference{
			ID:           uuid.New(),
			UserID:       userID,
			Type:         t,
			EmailEnabled: true,
			PushEnabled:  true,
			InAppEnabled: true,
		}
		if err := s.store.UpsertPreference(ctx, pref); err != nil {
			return nil, fmt.Errorf("initialize preference for type %s: %w", t, err)
		}
		created = append(created, pref)
	}

	s.logger.Info("default preferences initialized", zap.Int64("user_id", userID))
	return created, nil
}
