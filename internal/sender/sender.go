// Package sender delivers notifications over their channel transport and
// keeps the attempt ledger honest while doing it. Each Sender owns one
// channel; the Mux picks the right one by the notification's channel.
package sender

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
)

// Sender delivers notifications on a single channel.
//
// Send returns true when a transport send succeeded (or was legitimately
// skipped, like a push with no device token) and the notification moved
// forward. It returns (false, nil) when nothing was done: the row was
// already claimed by another worker, or its attempts were exhausted and it
// was finalized as failed. A transport failure records the attempt and
// returns a *SendError.
type Sender interface {
	Channel() db.Channel
	Send(ctx context.Context, n *db.Notification) (bool, error)
}

// SendError wraps a transport failure with the channel it happened on.
type SendError struct {
	Channel db.Channel
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send on %s failed: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Mux routes notifications to the sender registered for their channel.
type Mux struct {
	senders map[db.Channel]Sender
	logger  *zap.Logger
}

// NewMux builds a router over the given senders. Later senders win when
// two claim the same channel.
func NewMux(logger *zap.Logger, senders ...Sender) *Mux {
	m := &Mux{
		senders: make(map[db.Channel]Sender, len(senders)),
		logger:  logger,
	}
	for _, s := range senders {
		m.senders[s.Channel()] = s
	}
	return m
}

// Send dispatches the notification through its channel's sender.
func (m *Mux) Send(ctx context.Context, n *db.Notification) (bool, error) {
	s, ok := m.senders[n.Channel]
	if !ok {
		return false, fmt.Errorf("no sender for channel %q", n.Channel)
	}

	m.logger.Debug("routing notification",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", string(n.Channel)),
	)
	return s.Send(ctx, n)
}

// Supports reports whether a sender is registered for the channel.
func (m *Mux) Supports(channel db.Channel) bool {
	_, ok := m.senders[channel]
	return ok
}
