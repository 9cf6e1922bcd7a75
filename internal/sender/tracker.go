package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/metrics"
)

// Store is the persistence surface the attempt tracker needs.
type Store interface {
	ClaimPending(ctx context.Context, id uuid.UUID) (bool, error)
	CountAttempts(ctx context.Context, notificationID uuid.UUID) (int, error)
	AppendAttempt(ctx context.Context, a *db.DeliveryAttempt) error
	UpdateDelivery(ctx context.Context, n *db.Notification) error
}

// Tracker enforces the attempt budget and records every delivery attempt.
// All senders share one tracker so the max-attempts rule cannot drift
// between channels.
type Tracker struct {
	store       Store
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewTracker creates an attempt tracker. maxAttempts must be at least 1.
func NewTracker(store Store, maxAttempts int, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:       store,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Exhausted reports whether the notification has used up its attempt
// budget. When it has, the row is finalized as failed; calling this again
// on an already-failed row changes nothing.
func (t *Tracker) Exhausted(ctx context.Context, n *db.Notification) (bool, error) {
	count, err := t.store.CountAttempts(ctx, n.ID)
	if err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}
	if count < t.maxAttempts {
		return false, nil
	}

	if n.Status != db.StatusFailed {
		n.Status = db.StatusFailed
		if err := t.store.UpdateDelivery(ctx, n); err != nil {
			return true, fmt.Errorf("finalize failed notification: %w", err)
		}
		t.logger.Warn("notification attempts exhausted",
			zap.String("notification_id", n.ID.String()),
			zap.Int("attempts", count),
		)
	}
	return true, nil
}

// Claim moves the notification from pending to processing. A false return
// means another worker holds it and the caller must walk away.
func (t *Tracker) Claim(ctx context.Context, n *db.Notification) (bool, error) {
	claimed, err := t.store.ClaimPending(ctx, n.ID)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	if !claimed {
		t.logger.Debug("notification claimed elsewhere",
			zap.String("notification_id", n.ID.String()),
		)
		return false, nil
	}
	n.Status = db.StatusProcessing
	return true, nil
}

// RecordSuccess appends a successful attempt and moves the notification to
// sent, or to delivered when the channel confirms receipt immediately.
// note, when non-empty, is stored on the attempt row.
func (t *Tracker) RecordSuccess(ctx context.Context, n *db.Notification, note string, delivered bool) error {
	if err := t.appendAttempt(ctx, n.ID, db.AttemptSuccess, note); err != nil {
		return err
	}

	now := t.now()
	n.SentAt = &now
	if delivered {
		n.DeliveredAt = &now
		n.Status = db.StatusDelivered
	} else {
		n.Status = db.StatusSent
	}
	if err := t.store.UpdateDelivery(ctx, n); err != nil {
		return fmt.Errorf("record delivery success: %w", err)
	}
	metrics.RecordDeliveryAttempt(string(n.Channel), string(db.AttemptSuccess))

	t.logger.Info("notification delivered",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", string(n.Channel)),
		zap.String("status", string(n.Status)),
	)
	return nil
}

// RecordFailure appends a failed attempt. When the budget still has room
// the notification goes back to pending for the next sweep; otherwise it
// is finalized as failed. Returns whether the budget is now exhausted.
func (t *Tracker) RecordFailure(ctx context.Context, n *db.Notification, sendErr error) (bool, error) {
	count, err := t.store.CountAttempts(ctx, n.ID)
	if err != nil {
		return false, fmt.Errorf("count attempts: %w", err)
	}

	exhausted := count+1 >= t.maxAttempts
	if err := t.appendAttempt(ctx, n.ID, db.AttemptFailed, sendErr.Error()); err != nil {
		return exhausted, err
	}

	if exhausted {
		n.Status = db.StatusFailed
	} else {
		n.Status = db.StatusPending
	}
	if err := t.store.UpdateDelivery(ctx, n); err != nil {
		return exhausted, fmt.Errorf("record delivery failure: %w", err)
	}
	metrics.RecordDeliveryAttempt(string(n.Channel), string(db.AttemptFailed))

	t.logger.Warn("notification delivery failed",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", string(n.Channel)),
		zap.Int("attempt", count+1),
		zap.Bool("exhausted", exhausted),
		zap.Error(sendErr),
	)
	return exhausted, nil
}

func (t *Tracker) appendAttempt(ctx context.Context, notificationID uuid.UUID, status db.AttemptStatus, message string) error {
	count, err := t.store.CountAttempts(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}

	attempt := &db.DeliveryAttempt{
		ID:             uuid.New(),
		NotificationID: notificationID,
		AttemptNumber:  count + 1,
		Status:         status,
		AttemptedAt:    t.now(),
	}
	if message != "" {
		attempt.ErrorMessage = &message
	}
	if err := t.store.AppendAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}
