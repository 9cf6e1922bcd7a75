package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// PushAPI is the slice of the SNS client the push sender uses.
type PushAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PushSender delivers push notifications via AWS SNS platform endpoints.
type PushSender struct {
	client  PushAPI
	users   UserDirectory
	tracker *Tracker
	timeout time.Duration
	logger  *zap.Logger
}

// NewPushSender creates an SNS-backed push sender.
func NewPushSender(client PushAPI, users UserDirectory, tracker *Tracker, timeout time.Duration, logger *zap.Logger) *PushSender {
	return &PushSender{
		client:  client,
		users:   users,
		tracker: tracker,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *PushSender) Channel() db.Channel { return db.ChannelPush }

func (s *PushSender) Send(ctx context.Context, n *db.Notification) (bool, error) {
	if n.Channel != db.ChannelPush {
		return false, fmt.Errorf("push sender got channel %q", n.Channel)
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

	user := s.users.UserByID(ctx, n.UserID)

	// No registered device is not a delivery failure: the notification is
	// marked sent so it never burns retry attempts waiting for a token.
	if user.PushToken == nil || *user.PushToken == "" {
		if err := s.tracker.RecordSuccess(ctx, n, "user has no push token", false); err != nil {
			return false, err
		}
		s.logger.Info("push skipped, no device token",
			zap.String("notification_id", n.ID.String()),
			zap.Int64("user_id", n.UserID),
		)
		return true, nil
	}

	input := &sns.PublishInput{
		TargetArn: aws.String(*user.PushToken),
		Subject:   aws.String(n.Title),
		Message:   aws.String(n.Content),
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.client.Publish(sendCtx, input)
	cancel()
	if err != nil {
		if _, recErr := s.tracker.RecordFailure(ctx, n, err); recErr != nil {
			return false, recErr
		}
		return false, &SendError{Channel: db.ChannelPush, Err: err}
	}

	if err := s.tracker.RecordSuccess(ctx, n, "", false); err != nil {
		return false, err
	}

	s.logger.Info("push sent",
		zap.String("notification_id", n.ID.String()),
		zap.Int64("user_id", n.UserID),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return true, nil
}
