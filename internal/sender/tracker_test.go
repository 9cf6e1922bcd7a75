package sender

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// fakeStore is an in-memory Store for tracker and sender tests.
type fakeStore struct {
	notifications map[uuid.UUID]*db.Notification
	attempts      map[uuid.UUID][]*db.DeliveryAttempt
	failClaim     bool
	updateCalls   int
}

func newFakeStore(notifs ...*db.Notification) *fakeStore {
	s := &fakeStore{
		notifications: make(map[uuid.UUID]*db.Notification),
		attempts:      make(map[uuid.UUID][]*db.DeliveryAttempt),
	}
	for _, n := range notifs {
		s.notifications[n.ID] = n
	}
	return s
}

func (s *fakeStore) ClaimPending(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.failClaim {
		return false, nil
	}
	n, ok := s.notifications[id]
	if !ok || n.Status != db.StatusPending {
		return false, nil
	}
	n.Status = db.StatusProcessing
	return true, nil
}

func (s *fakeStore) CountAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	return len(s.attempts[id]), nil
}

func (s *fakeStore) AppendAttempt(ctx context.Context, a *db.DeliveryAttempt) error {
	for _, existing := range s.attempts[a.NotificationID] {
		if existing.AttemptNumber == a.AttemptNumber {
			return fmt.Errorf("duplicate attempt number %d", a.AttemptNumber)
		}
	}
	s.attempts[a.NotificationID] = append(s.attempts[a.NotificationID], a)
	return nil
}

func (s *fakeStore) UpdateDelivery(ctx context.Context, n *db.Notification) error {
	s.updateCalls++
	stored, ok := s.notifications[n.ID]
	if !ok {
		return db.ErrNotFound
	}
	*stored = *n
	return nil
}

func pendingNotification(channel db.Channel) *db.Notification {
	return &db.Notification{
		ID:      uuid.New(),
		UserID:  42,
		Title:   "Event Reminder",
		Content: "Starts tomorrow",
		Type:    db.TypeEventReminder,
		Channel: channel,
		Status:  db.StatusPending,
	}
}

func TestTrackerRecordFailureRetriesThenExhausts(t *testing.T) {
	n := pendingNotification(db.ChannelEmail)
	store := newFakeStore(n)
	tracker := NewTracker(store, 3, zap.NewNop())
	ctx := context.Background()

	sendErr := errors.New("ses unavailable")

	for i := 1; i <= 3; i++ {
		n.Status = db.StatusProcessing
		exhausted, err := tracker.RecordFailure(ctx, n, sendErr)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if want := i == 3; exhausted != want {
			t.Fatalf("attempt %d: exhausted = %v, want %v", i, exhausted, want)
		}
	}

	if n.Status != db.StatusFailed {
		t.Errorf("status = %s, want %s", n.Status, db.StatusFailed)
	}

	attempts := store.attempts[n.ID]
	if len(attempts) != 3 {
		t.Fatalf("recorded %d attempts, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.AttemptNumber != i+1 {
			t.Errorf("attempt %d has number %d", i, a.AttemptNumber)
		}
		if a.Status != db.AttemptFailed {
			t.Errorf("attempt %d status = %s, want %s", i+1, a.Status, db.AttemptFailed)
		}
		if a.ErrorMessage == nil || *a.ErrorMessage != sendErr.Error() {
			t.Errorf("attempt %d missing error message", i+1)
		}
	}
}

func TestTrackerFailureBeforeExhaustionReturnsToPending(t *testing.T) {
	n := pendingNotification(db.ChannelPush)
	n.Status = db.StatusProcessing
	store := newFakeStore(n)
	tracker := NewTracker(store, 3, zap.NewNop())

	exhausted, err := tracker.RecordFailure(context.Background(), n, errors.New("sns timeout"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exhausted {
		t.Fatal("first failure should not exhaust a budget of 3")
	}
	if n.Status != db.StatusPending {
		t.Errorf("status = %s, want %s for retry", n.Status, db.StatusPending)
	}
}

func TestTrackerExhaustedIsIdempotent(t *testing.T) {
	n := pendingNotification(db.ChannelEmail)
	store := newFakeStore(n)
	tracker := NewTracker(store, 2, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n.Status = db.StatusProcessing
		if _, err := tracker.RecordFailure(ctx, n, errors.New("boom")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n.Status != db.StatusFailed {
		t.Fatalf("status = %s, want %s", n.Status, db.StatusFailed)
	}

	updatesBefore := store.updateCalls
	for i := 0; i < 3; i++ {
		exhausted, err := tracker.Exhausted(ctx, n)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !exhausted {
			t.Fatal("expected exhausted")
		}
	}

	if store.updateCalls != updatesBefore {
		t.Errorf("Exhausted on a failed row wrote %d extra updates", store.updateCalls-updatesBefore)
	}
	if len(store.attempts[n.ID]) != 2 {
		t.Errorf("attempt count = %d, want 2 (no new attempts after exhaustion)", len(store.attempts[n.ID]))
	}
}

func TestTrackerRecordSuccessSentVsDelivered(t *testing.T) {
	tests := []struct {
		name       string
		delivered  bool
		wantStatus db.NotificationStatus
	}{
		{"sent_only", false, db.StatusSent},
		{"delivered", true, db.StatusDelivered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := pendingNotification(db.ChannelInApp)
			n.Status = db.StatusProcessing
			store := newFakeStore(n)
			tracker := NewTracker(store, 3, zap.NewNop())

			if err := tracker.RecordSuccess(context.Background(), n, "", tt.delivered); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if n.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", n.Status, tt.wantStatus)
			}
			if n.SentAt == nil {
				t.Error("sent_at not set")
			}
			if tt.delivered && n.DeliveredAt == nil {
				t.Error("delivered_at not set")
			}
			if !tt.delivered && n.DeliveredAt != nil {
				t.Error("delivered_at set for sent-only success")
			}

			attempts := store.attempts[n.ID]
			if len(attempts) != 1 || attempts[0].Status != db.AttemptSuccess {
				t.Fatalf("expected one success attempt, got %+v", attempts)
			}
		})
	}
}

func TestTrackerClaimLost(t *testing.T) {
	n := pendingNotification(db.ChannelEmail)
	n.Status = db.StatusProcessing // already claimed elsewhere
	store := newFakeStore(n)
	tracker := NewTracker(store, 3, zap.NewNop())

	claimed, err := tracker.Claim(context.Background(), n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed {
		t.Fatal("claim should fail on a non-pending row")
	}
	if len(store.attempts[n.ID]) != 0 {
		t.Error("lost claim must not record an attempt")
	}
}

func TestTrackerAttemptTimestamps(t *testing.T) {
	n := pendingNotification(db.ChannelEmail)
	n.Status = db.StatusProcessing
	store := newFakeStore(n)
	tracker := NewTracker(store, 3, zap.NewNop())

	fixed := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	tracker.now = func() time.Time { return fixed }

	if err := tracker.RecordSuccess(context.Background(), n, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.attempts[n.ID][0].AttemptedAt; !got.Equal(fixed) {
		t.Errorf("attempted_at = %v, want %v", got, fixed)
	}
	if !n.SentAt.Equal(fixed) {
		t.Errorf("sent_at = %v, want %v", n.SentAt, fixed)
	}
}
