// Package preference decides whether a user accepts a notification type on
// a given channel and manages the stored preference rows.
package preference

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// Store is the preference lookup the gate needs.
type Store interface {
	GetPreference(ctx context.Context, userID int64, t db.NotificationType) (*db.UserNotificationPreference, error)
}

// Gate answers the per-channel opt-in question for dispatch.
type Gate struct {
	store  Store
	logger *zap.Logger
}

// NewGate creates a preference gate.
func NewGate(store Store, logger *zap.Logger) *Gate {
	return &Gate{store: store, logger: logger}
}

// Enabled reports whether the user accepts this notification type on the
// channel. A user with no stored row accepts everything (fail-open
// default); a stored row answers with its per-channel flag.
func (g *Gate) Enabled(ctx context.Context, userID int64, t db.NotificationType, channel db.Channel) (bool, error) {
	pref, err := g.store.GetPreference(ctx, userID, t)
	if errors.Is(err, db.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up preference: %w", err)
	}

	return pref.ChannelEnabled(channel), nil
}
