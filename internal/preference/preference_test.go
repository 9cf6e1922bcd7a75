package preference

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

type prefKey struct {
	userID int64
	t      db.NotificationType
}

type fakePrefStore struct {
	prefs   map[prefKey]*db.UserNotificationPreference
	lookups int
	failure error
}

func newFakePrefStore() *fakePrefStore {
	return &fakePrefStore{prefs: make(map[prefKey]*db.UserNotificationPreference)}
}

func (s *fakePrefStore) GetPreference(ctx context.Context, userID int64, t db.NotificationType) (*db.UserNotificationPreference, error) {
	s.lookups++
	if s.failure != nil {
		return nil, s.failure
	}
	p, ok := s.prefs[prefKey{userID, t}]
	if !ok {
		return nil, fmt.Errorf("preference: %w", db.ErrNotFound)
	}
	return p, nil
}

func (s *fakePrefStore) ListPreferences(ctx context.Context, userID int64) ([]*db.UserNotificationPreference, error) {
	var out []*db.UserNotificationPreference
	for k, p := range s.prefs {
		if k.userID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePrefStore) UpsertPreference(ctx context.Context, p *db.UserNotificationPreference) error {
	s.prefs[prefKey{p.UserID, p.Type}] = p
	return nil
}

func (s *fakePrefStore) DeletePreference(ctx context.Context, userID int64, t db.NotificationType) error {
	key := prefKey{userID, t}
	if _, ok := s.prefs[key]; !ok {
		return db.ErrNotFound
	}
	delete(s.prefs, key)
	return nil
}

func storedPref(userID int64, t db.NotificationType, email, push, inApp bool) *db.UserNotificationPreference {
	return &db.UserNotificationPreference{
		ID:           uuid.New(),
		UserID:       userID,
		Type:         t,
		EmailEnabled: email,
		PushEnabled:  push,
		InAppEnabled: inApp,
	}
}

func TestGateDefaultsOpenWithoutRow(t *testing.T) {
	gate := NewGate(newFakePrefStore(), zap.NewNop())
	ctx := context.Background()

	for _, channel := range []db.Channel{db.ChannelEmail, db.ChannelPush, db.ChannelInApp} {
		enabled, err := gate.Enabled(ctx, 7, db.TypeEventReminder, channel)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", channel, err)
		}
		if !enabled {
			t.Errorf("%s: expected enabled by default", channel)
		}
	}
}

func TestGateHonorsStoredFlags(t *testing.T) {
	store := newFakePrefStore()
	pref := storedPref(7, db.TypeEventReminder, true, false, true)
	store.prefs[prefKey{7, db.TypeEventReminder}] = pref

	gate := NewGate(store, zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		channel db.Channel
		want    bool
	}{
		{db.ChannelEmail, true},
		{db.ChannelPush, false},
		{db.ChannelInApp, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			enabled, err := gate.Enabled(ctx, 7, db.TypeEventReminder, tt.channel)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enabled != tt.want {
				t.Errorf("enabled = %v, want %v", enabled, tt.want)
			}
		})
	}
}

func TestGateScopedToType(t *testing.T) {
	store := newFakePrefStore()
	store.prefs[prefKey{7, db.TypeEventReminder}] = storedPref(7, db.TypeEventReminder, false, false, false)

	gate := NewGate(store, zap.NewNop())

	// The stored row disables reminders; other types stay at the open
	// default.
	enabled, err := gate.Enabled(context.Background(), 7, db.TypeEventUpdate, db.ChannelEmail)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !enabled {
		t.Error("other types must not inherit the disabled row")
	}
}

func TestGatePropagatesLookupErrors(t *testing.T) {
	store := newFakePrefStore()
	store.failure = errors.New("connection reset")

	gate := NewGate(store, zap.NewNop())

	_, err := gate.Enabled(context.Background(), 7, db.TypeEventReminder, db.ChannelEmail)
	if err == nil {
		t.Fatal("expected lookup error to propagate, not fail open")
	}
}

func TestServiceUpdateCreatesDefaultRow(t *testing.T) {
	store := newFakePrefStore()
	svc := NewService(store, zap.NewNop())

	off := false
	pref, err := svc.Update(context.Background(), 7, db.TypeEventReminder, UpdateRequest{PushEnabled: &off})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pref.EmailEnabled || pref.PushEnabled || !pref.InAppEnabled {
		t.Errorf("pref = %+v, want all-enabled default with push off", pref)
	}
	if _, ok := store.prefs[prefKey{7, db.TypeEventReminder}]; !ok {
		t.Error("row not persisted")
	}
}

func TestServiceUpdatePartial(t *testing.T) {
	store := newFakePrefStore()
	store.prefs[prefKey{7, db.TypeVenueChange}] = storedPref(7, db.TypeVenueChange, false, true, true)
	svc := NewService(store, zap.NewNop())

	on := true
	pref, err := svc.Update(context.Background(), 7, db.TypeVenueChange, UpdateRequest{EmailEnabled: &on})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pref.EmailEnabled || !pref.PushEnabled || !pref.InAppEnabled {
		t.Errorf("pref = %+v, only email should have changed", pref)
	}
}

func TestServiceUpsertRejectsUnknownType(t *testing.T) {
	svc := NewService(newFakePrefStore(), zap.NewNop())

	_, err := svc.Upsert(context.Background(), UpsertRequest{UserID: 7, Type: "carrier_pigeon"})
	var validationErr *db.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error = %v, want *db.ValidationError", err)
	}
}

func TestServiceInitializeDefaults(t *testing.T) {
	store := newFakePrefStore()
	svc := NewService(store, zap.NewNop())

	created, err := svc.InitializeDefaults(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(created) != len(db.NotificationTypes()) {
		t.Fatalf("created %d rows, want %d", len(created), len(db.NotificationTypes()))
	}
	for _, p := range created {
		if !p.EmailEnabled || !p.PushEnabled || !p.InAppEnabled {
			t.Errorf("type %s not all-enabled: %+v", p.Type, p)
		}
	}
}
