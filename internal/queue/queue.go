// Package queue moves dispatch requests over SQS. Producers wrap each
// request in a typed envelope; the consumer long-polls, deduplicates by
// message id, and routes envelopes to the dispatch pipeline.
package queue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/tharindu-dm/herald/internal/dispatch"
)

// Envelope message types.
const (
	TypeNotification      = "notification"
	TypeBatchNotification = "batch-notification"
	TypeEventReminder     = "event-reminder"
)

// Envelope wraps every queue message with its type so one queue can carry
// all three message kinds.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DispatchMessage asks for one notification to be created and sent.
type DispatchMessage struct {
	dispatch.Request
}

// BatchMessage asks for a fan-out to many users.
type BatchMessage struct {
	dispatch.BatchRequest
}

// ReminderMessage triggers a reminder sweep. EventID records which event
// prompted the trigger; the sweep itself always covers the full reminder
// horizon.
type ReminderMessage struct {
	EventID int64 `json:"event_id"`
}

// API is the slice of the SQS client the producer and consumer use.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Config holds SQS settings.
type Config struct {
	Region   string
	QueueURL string
}
