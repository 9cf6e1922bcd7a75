package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/clients"
	"github.com/tharindu-dm/herald/internal/db"
)

// EmailAPI is the slice of the SES client the email sender uses.
type EmailAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// UserDirectory resolves recipients. Lookups never fail; unreachable
// directories yield placeholder users.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) *clients.User
}

// EmailSender delivers email notifications via AWS SES.
type EmailSender struct {
	client  EmailAPI
	users   UserDirectory
	tracker *Tracker
	from    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewEmailSender creates an SES-backed email sender. timeout bounds the
// SES call only, not the surrounding bookkeeping.
func NewEmailSender(client EmailAPI, users UserDirectory, tracker *Tracker, from string, timeout time.Duration, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		client:  client,
		users:   users,
		tracker: tracker,
		from:    from,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *EmailSender) Channel() db.Channel { return db.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, n *db.Notification) (bool, error) {
	if n.Channel != db.ChannelEmail {
		return false, fmt.Errorf("email sender got channel %q", n.Channel)
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

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{user.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(n.Title),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(n.Content),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.client.SendEmail(sendCtx, input)
	cancel()
	if err != nil {
		if _, recErr := s.tracker.RecordFailure(ctx, n, err); recErr != nil {
			return false, recErr
		}
		return false, &SendError{Channel: db.ChannelEmail, Err: err}
	}

	if err := s.tracker.RecordSuccess(ctx, n, "", false); err != nil {
		return false, err
	}

	s.logger.Info("email sent",
		zap.String("notification_id", n.ID.String()),
		zap.String("to", user.Email),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return true, nil
}
