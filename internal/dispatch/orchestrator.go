// Package dispatch is the notification engine's front door: it renders
// content, applies preference gating, fans a request out across channels,
// and drives the pending-sweep reconciliation.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/metrics"
	"github.com/tharindu-dm/herald/internal/preference"
	"github.com/tharindu-dm/herald/internal/template"
)

// Store is the notification persistence surface the orchestrator needs.
type Store interface {
	CreateNotification(ctx context.Context, n *db.Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*db.Notification, error)
	ListByUser(ctx context.Context, userID int64, status *db.NotificationStatus, channel *db.Channel, limit, offset int) ([]*db.Notification, error)
	ListPendingByChannel(ctx context.Context, channel db.Channel, limit int) ([]*db.Notification, error)
	ReclaimStale(ctx context.Context, channel db.Channel, olderThan time.Duration) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID, readAt time.Time) error
	CountUnread(ctx context.Context, userID int64) (int64, error)
	DeleteNotification(ctx context.Context, id uuid.UUID) error
	ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]*db.DeliveryAttempt, error)
}

// Sender is the channel-routing send surface, satisfied by sender.Mux.
type Sender interface {
	Send(ctx context.Context, n *db.Notification) (bool, error)
}

// Request asks for one notification fanned out to a user. Content comes
// either from a template (TemplateKey plus Variables) or directly from
// Title and Content.
type Request struct {
	UserID        int64               `json:"user_id"`
	Type          db.NotificationType `json:"notification_type"`
	Channels      []db.Channel        `json:"channels"`
	Title         string              `json:"title,omitempty"`
	Content       string              `json:"content,omitempty"`
	TemplateKey   string              `json:"template_key,omitempty"`
	Variables     map[string]string   `json:"variables,omitempty"`
	ReferenceID   *string             `json:"reference_id,omitempty"`
	ReferenceType *string             `json:"reference_type,omitempty"`
}

// BatchRequest fans the same notification out to many users.
type BatchRequest struct {
	UserIDs       []int64             `json:"user_ids"`
	Type          db.NotificationType `json:"notification_type"`
	Channels      []db.Channel        `json:"channels"`
	Title         string              `json:"title,omitempty"`
	Content       string              `json:"content,omitempty"`
	TemplateKey   string              `json:"template_key,omitempty"`
	Variables     map[string]string   `json:"variables,omitempty"`
	ReferenceID   *string             `json:"reference_id,omitempty"`
	ReferenceType *string             `json:"reference_type,omitempty"`
}

// Orchestrator coordinates rendering, gating, persistence and sending.
type Orchestrator struct {
	store     Store
	renderer  *template.Renderer
	gate      *preference.Gate
	sender    Sender
	batchSize int
	logger    *zap.Logger
}

// NewOrchestrator wires the dispatch pipeline. batchSize bounds both
// batch-creation chunks and pending-sweep reads.
func NewOrchestrator(
	store Store,
	renderer *template.Renderer,
	gate *preference.Gate,
	sender Sender,
	batchSize int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		renderer:  renderer,
		gate:      gate,
		sender:    sender,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (o *Orchestrator) validate(userID int64, t db.NotificationType, channels []db.Channel) error {
	if userID <= 0 {
		return db.Validationf("user_id is required")
	}
	return o.validateShape(t, channels)
}

// validateShape checks the parts of a request shared by every recipient.
func (o *Orchestrator) validateShape(t db.NotificationType, channels []db.Channel) error {
	if !t.Valid() {
		return db.Validationf("unknown notification type %q", t)
	}
	if len(channels) == 0 {
		return db.Validationf("at least one channel is required")
	}
	for _, c := range channels {
		if !c.Valid() {
			return db.Validationf("unknown channel %q", c)
		}
	}
	return nil
}

// resolveContent renders the template once per request, or falls back to
// the caller's literal title and content. The rendered snapshot is shared
// by every channel row.
func (o *Orchestrator) resolveContent(ctx context.Context, templateKey string, vars map[string]string, title, content string) (string, string, error) {
	if templateKey != "" {
		return o.renderer.Render(ctx, templateKey, vars)
	}
	if title == "" || content == "" {
		return "", "", db.Validationf("title and content are required when no template_key is given")
	}
	return title, content, nil
}

// Create renders the request once, then creates one pending notification
// per enabled channel and immediately tries a first delivery for each.
// Send failures are recorded on the attempt ledger and retried by the
// sweeps; they never fail the create itself.
func (o *Orchestrator) Create(ctx context.Context, req Request) ([]*db.Notification, error) {
	if err := o.validate(req.UserID, req.Type, req.Channels); err != nil {
		return nil, err
	}

	title, content, err := o.resolveContent(ctx, req.TemplateKey, req.Variables, req.Title, req.Content)
	if err != nil {
		return nil, err
	}

	var created []*db.Notification
	for _, channel := range req.Channels {
		enabled, err := o.gate.Enabled(ctx, req.UserID, req.Type, channel)
		if err != nil {
			return created, err
		}
		if !enabled {
			o.logger.Debug("channel disabled by preference",
				zap.Int64("user_id", req.UserID),
				zap.String("notification_type", string(req.Type)),
				zap.String("channel", string(channel)),
			)
			continue
		}

		n := &db.Notification{
			ID:            uuid.New(),
			UserID:        req.UserID,
			Title:         title,
			Content:       content,
			Type:          req.Type,
			Channel:       channel,
			Status:        db.StatusPending,
			ReferenceID:   req.ReferenceID,
			ReferenceType: req.ReferenceType,
		}
		if err := o.store.CreateNotification(ctx, n); err != nil {
			return created, fmt.Errorf("create %s notification: %w", channel, err)
		}
		created = append(created, n)
		metrics.RecordNotificationCreated(string(req.Type), string(channel))

		if _, err := o.sender.Send(ctx, n); err != nil {
			// Left pending with the failure on the ledger; a sweep picks
			// it back up.
			o.logger.Warn("initial delivery failed",
				zap.String("notification_id", n.ID.String()),
				zap.String("channel", string(channel)),
				zap.Error(err),
			)
		}
	}

	return created, nil
}

// CreateBatch fans the request out to every user, in chunks of the
// configured batch size. One user's failure is logged and skipped rather
// than aborting the rest. Returns how many notifications were created
// across all users and channels.
func (o *Orchestrator) CreateBatch(ctx context.Context, req BatchRequest) (int, error) {
	if len(req.UserIDs) == 0 {
		return 0, db.Validationf("user_ids is required")
	}
	if err := o.validateShape(req.Type, req.Channels); err != nil {
		return 0, err
	}

	createdTotal := 0
	for start := 0; start < len(req.UserIDs); start += o.batchSize {
		end := min(start+o.batchSize, len(req.UserIDs))

		for _, userID := range req.UserIDs[start:end] {
			created, err := o.Create(ctx, Request{
				UserID:        userID,
				Type:          req.Type,
				Channels:      req.Channels,
				Title:         req.Title,
				Content:       req.Content,
				TemplateKey:   req.TemplateKey,
				Variables:     req.Variables,
				ReferenceID:   req.ReferenceID,
				ReferenceType: req.ReferenceType,
			})
			if err != nil {
				o.logger.Error("batch item failed",
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
				continue
			}
			createdTotal += len(created)
		}
	}

	o.logger.Info("batch dispatched",
		zap.Int("requested", len(req.UserIDs)),
		zap.Int("created", createdTotal),
	)
	return createdTotal, nil
}

// Get returns one notification with its delivery attempts.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*db.Notification, []*db.DeliveryAttempt, error) {
	n, err := o.store.GetNotification(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	attempts, err := o.store.ListAttempts(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return n, attempts, nil
}

// List returns a user's notifications newest-first with optional status
// and channel filters.
func (o *Orchestrator) List(ctx context.Context, userID int64, status *db.NotificationStatus, channel *db.Channel, limit, offset int) ([]*db.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return o.store.ListByUser(ctx, userID, status, channel, limit, offset)
}

// MarkAsRead stamps an in-app notification as read on behalf of its
// owner. Repeat calls keep the first read timestamp; notifications on
// other channels and rows not yet delivered are left untouched.
func (o *Orchestrator) MarkAsRead(ctx context.Context, id uuid.UUID, userID int64) (*db.Notification, error) {
	n, err := o.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, db.Validationf("notification %s does not belong to user %d", id, userID)
	}

	if n.Channel == db.ChannelInApp && n.ReadAt == nil {
		now := time.Now()
		if err := o.store.MarkRead(ctx, id, now); err != nil {
			return nil, err
		}
		n.ReadAt = &now
		if n.Status == db.StatusDelivered {
			n.Status = db.StatusRead
		}
	}

	return n, nil
}

// UnreadCount returns how many delivered in-app notifications the user
// has not read.
func (o *Orchestrator) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return o.store.CountUnread(ctx, userID)
}

// Delete removes a notification owned by the user, along with its
// attempt history.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID, userID int64) error {
	n, err := o.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return db.Validationf("notification %s does not belong to user %d", id, userID)
	}
	return o.store.DeleteNotification(ctx, id)
}

// staleClaimAfter is how long a row may sit in processing before the
// sweep assumes its worker died and returns it to pending.
const staleClaimAfter = 5 * time.Minute

// ProcessPending sweeps one channel's pending backlog oldest-first and
// retries delivery. Rows stuck in processing past the stale horizon are
// reclaimed first so a crashed worker's claims rejoin the queue. Returns
// how many notifications a send was attempted for; individual failures
// are on the attempt ledger, not in the error.
func (o *Orchestrator) ProcessPending(ctx context.Context, channel db.Channel) (int, error) {
	if _, err := o.store.ReclaimStale(ctx, channel, staleClaimAfter); err != nil {
		return 0, fmt.Errorf("reclaim stale %s notifications: %w", channel, err)
	}

	pending, err := o.store.ListPendingByChannel(ctx, channel, o.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending %s notifications: %w", channel, err)
	}

	attempted := 0
	for _, n := range pending {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}

		attempted++
		if _, err := o.sender.Send(ctx, n); err != nil {
			o.logger.Warn("sweep delivery failed",
				zap.String("notification_id", n.ID.String()),
				zap.String("channel", string(channel)),
				zap.Error(err),
			)
		}
	}

	metrics.RecordSweepProcessed(string(channel), attempted)
	if attempted > 0 {
		o.logger.Info("pending sweep finished",
			zap.String("channel", string(channel)),
			zap.Int("attempted", attempted),
		)
	}
	return attempted, nil
}
