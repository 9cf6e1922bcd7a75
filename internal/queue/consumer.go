package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/dispatch"
	"github.com/tharindu-dm/herald/internal/metrics"
	"github.com/tharindu-dm/herald/internal/template"
)

var errUnknownType = errors.New("unknown message type")

// Deduper decides whether a message id has been seen before.
type Deduper interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// Consumer long-polls SQS and routes envelopes into the dispatch
// pipeline. Transient handling failures release the dedup claim and leave
// the message on the queue so SQS redelivery can retry them; malformed or
// otherwise unprocessable messages are logged and deleted, since no
// number of redeliveries will fix them.
type Consumer struct {
	client   API
	queueURL string
	dedup    Deduper
	handler  Handler
	logger   *zap.Logger
}

// Handler processes the decoded envelope payloads.
type Handler struct {
	Dispatch dispatchFunc
	Batch    batchFunc
	Reminder reminderFunc
}

type (
	dispatchFunc func(ctx context.Context, req dispatch.Request) error
	batchFunc    func(ctx context.Context, req dispatch.BatchRequest) error
	reminderFunc func(ctx context.Context) error
)

// NewConsumer creates an SQS consumer using the default AWS credential
// chain.
func NewConsumer(ctx context.Context, cfg Config, dedup Deduper, handler Handler, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	logger.Info("sqs consumer initialized", zap.String("queue_url", cfg.QueueURL))
	return NewConsumerWithClient(sqs.NewFromConfig(awsCfg), cfg.QueueURL, dedup, handler, logger), nil
}

// NewConsumerWithClient creates a consumer over an existing SQS client.
func NewConsumerWithClient(client API, queueURL string, dedup Deduper, handler Handler, logger *zap.Logger) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		dedup:    dedup,
		handler:  handler,
		logger:   logger,
	}
}

// Run long-polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("queue consumer started")
	for {
		if err := c.Poll(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.logger.Info("queue consumer stopped")
				return
			}
			c.logger.Error("queue poll failed", zap.Error(err))
		}
	}
}

// Poll receives up to one batch of messages and processes them.
func (c *Consumer) Poll(ctx context.Context) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("sqs receive failed: %w", err)
	}

	for _, msg := range result.Messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.process(ctx, msg)
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg types.Message) {
	messageID := aws.ToString(msg.MessageId)

	fresh, err := c.dedup.Claim(ctx, messageID)
	if err != nil {
		c.logger.Error("dedup check failed, leaving message for redelivery",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return
	}
	if !fresh {
		// Already handled by another consumer; just take it off the queue.
		c.delete(ctx, msg)
		return
	}

	if err := c.handle(ctx, aws.ToString(msg.Body)); err != nil {
		if unprocessable(err) {
			// The claim stays so a duplicate copy is dropped too.
			c.logger.Error("dropping unprocessable message",
				zap.String("message_id", messageID),
				zap.Error(err),
			)
			c.delete(ctx, msg)
			return
		}
		c.logger.Error("message handling failed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		if relErr := c.dedup.Release(ctx, messageID); relErr != nil {
			c.logger.Error("dedup release failed",
				zap.String("message_id", messageID),
				zap.Error(relErr),
			)
		}
		return
	}

	c.delete(ctx, msg)
}

// unprocessable reports whether the failure is inherent to the message,
// so redelivering it can never succeed.
func unprocessable(err error) bool {
	var validationErr *db.ValidationError
	var contentErr *template.ContentError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.Is(err, errUnknownType) ||
		errors.Is(err, db.ErrNotFound) ||
		errors.As(err, &validationErr) ||
		errors.As(err, &contentErr) ||
		errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr)
}

func (c *Consumer) handle(ctx context.Context, body string) error {
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	err := c.route(ctx, env)
	if err != nil {
		metrics.RecordQueueMessage(env.Type, "error")
		return err
	}
	metrics.RecordQueueMessage(env.Type, "ok")
	return nil
}

func (c *Consumer) route(ctx context.Context, env Envelope) error {
	switch env.Type {
	case TypeNotification:
		var m DispatchMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return c.handler.Dispatch(ctx, m.Request)
	case TypeBatchNotification:
		var m BatchMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		return c.handler.Batch(ctx, m.BatchRequest)
	case TypeEventReminder:
		var m ReminderMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		c.logger.Info("reminder sweep triggered", zap.Int64("event_id", m.EventID))
		return c.handler.Reminder(ctx)
	default:
		return fmt.Errorf("%w %q", errUnknownType, env.Type)
	}
}

func (c *Consumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.Error("sqs delete failed",
			zap.String("message_id", aws.ToString(msg.MessageId)),
			zap.Error(err),
		)
	}
}
