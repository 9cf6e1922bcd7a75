package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long processed-message markers are retained. SQS
// standard queues redeliver within minutes, so an hour of memory is
// plenty.
const DedupTTL = time.Hour

// Deduper remembers which queue messages have already been processed, so
// at-least-once delivery does not become at-least-twice dispatch.
type Deduper struct {
	client *Client
	logger *zap.Logger
}

// NewDeduper creates a message deduplication store.
func NewDeduper(client *Client, logger *zap.Logger) *Deduper {
	return &Deduper{client: client, logger: logger}
}

func dedupKey(messageID string) string {
	return "dedup:message:" + messageID
}

// Claim marks the message as processed. Returns false when another
// consumer already claimed it, in which case the message must be dropped.
func (d *Deduper) Claim(ctx context.Context, messageID string) (bool, error) {
	set, err := d.client.rdb.SetNX(ctx, dedupKey(messageID), "1", DedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		d.logger.Debug("duplicate message dropped", zap.String("message_id", messageID))
	}
	return set, nil
}

// Release forgets a claim so a failed message can be retried after its
// visibility timeout.
func (d *Deduper) Release(ctx context.Context, messageID string) error {
	if err := d.client.rdb.Del(ctx, dedupKey(messageID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
