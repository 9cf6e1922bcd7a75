package sender

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// InAppSender delivers in-app notifications. There is no external
// transport: the stored row is the delivery, so success is immediate and
// the notification lands directly in delivered.
type InAppSender struct {
	tracker *Tracker
	logger  *zap.Logger
}

// NewInAppSender creates the in-app sender.
func NewInAppSender(tracker *Tracker, logger *zap.Logger) *InAppSender {
	return &InAppSender{tracker: tracker, logger: logger}
}

func (s *InAppSender) Channel() db.Channel { return db.ChannelInApp }

func (s *InAppSender) Send(ctx context.Context, n *db.Notification) (bool, error) {
	if n.Channel != db.ChannelInApp {
		return false, fmt.Errorf("in-app sender got channel %q", n.Channel)
	}

	exhausted, err := s.tracker.Exhausted(ctx, n)
	if err != nil {
		return false, err
	}
	if exhausted {
		return false, nil
	}

	claimed, err := s.tracker.Claim(ctx, n)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	if err := s.tracker.RecordSuccess(ctx, n, "", true); err != nil {
		return false, err
	}

	s.logger.Debug("in-app notification delivered",
		zap.String("notification_id", n.ID.String()),
		zap.Int64("user_id", n.UserID),
	)
	return true, nil
}
