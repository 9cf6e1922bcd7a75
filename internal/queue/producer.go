package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/dispatch"
)

// Producer publishes dispatch requests to SQS.
type Producer struct {
	client   API
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates an SQS producer using the default AWS credential
// chain.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	logger.Info("sqs producer initialized", zap.String("queue_url", cfg.QueueURL))
	return &Producer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// NewProducerWithClient creates a producer over an existing SQS client.
func NewProducerWithClient(client API, queueURL string, logger *zap.Logger) *Producer {
	return &Producer{client: client, queueURL: queueURL, logger: logger}
}

// PublishDispatch enqueues one single-user dispatch request.
func (p *Producer) PublishDispatch(ctx context.Context, req dispatch.Request) (string, error) {
	return p.publish(ctx, TypeNotification, DispatchMessage{Request: req})
}

// PublishBatch enqueues a multi-user fan-out request.
func (p *Producer) PublishBatch(ctx context.Context, req dispatch.BatchRequest) (string, error) {
	return p.publish(ctx, TypeBatchNotification, BatchMessage{BatchRequest: req})
}

// PublishReminder enqueues a reminder-sweep trigger.
func (p *Producer) PublishReminder(ctx context.Context, eventID int64) (string, error) {
	return p.publish(ctx, TypeEventReminder, ReminderMessage{EventID: eventID})
}

func (p *Producer) publish(ctx context.Context, msgType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	body, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	result, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		p.logger.Error("failed to publish queue message",
			zap.String("type", msgType),
			zap.Error(err),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("queue message published",
		zap.String("type", msgType),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return aws.ToString(result.MessageId), nil
}
