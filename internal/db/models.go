package db

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

// Valid reports whether c is a known delivery channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// NotificationType classifies what a notification is about.
type NotificationType string

const (
	TypeEventRegistration  NotificationType = "event_registration"
	TypeEventReminder      NotificationType = "event_reminder"
	TypeEventCancellation  NotificationType = "event_cancellation"
	TypeEventUpdate        NotificationType = "event_update"
	TypeVenueChange        NotificationType = "venue_change"
	TypeSystemAnnouncement NotificationType = "system_announcement"
)

// NotificationTypes lists every known notification type.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		TypeEventRegistration,
		TypeEventReminder,
		TypeEventCancellation,
		TypeEventUpdate,
		TypeVenueChange,
		TypeSystemAnnouncement,
	}
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// NotificationStatus tracks a notification through its delivery lifecycle.
//
//	pending -> processing -> sent (email/push) or delivered (in-app)
//	pending -> processing -> pending (failed attempt, retry-eligible)
//	pending -> processing -> failed (attempts exhausted, terminal)
//	delivered -> read (in-app only, terminal)
//
// processing is a transient claim marker: the conditional update into it is
// what keeps two overlapping sweeps from delivering the same row twice.
type NotificationStatus string

const (
	StatusPending    NotificationStatus = "pending"
	StatusProcessing NotificationStatus = "processing"
	StatusSent       NotificationStatus = "sent"
	StatusDelivered  NotificationStatus = "delivered"
	StatusFailed     NotificationStatus = "failed"
	StatusRead       NotificationStatus = "read"
)

// AttemptStatus is the outcome recorded for one delivery attempt. The
// tracker only ever writes success and failed; retry and in_progress are
// accepted on read for rows written by older ledgers.
type AttemptStatus string

const (
	AttemptSuccess    AttemptStatus = "success"
	AttemptFailed     AttemptStatus = "failed"
	AttemptRetry      AttemptStatus = "retry"
	AttemptInProgress AttemptStatus = "in_progress"
)

// TemplateType constrains how template content is validated.
type TemplateType string

const (
	TemplateHTML TemplateType = "html"
	TemplateText TemplateType = "text"
	TemplatePush TemplateType = "push"
)

// Notification is one message targeted at one user on one channel. Title and
// content are a rendered snapshot taken at creation time; later template
// edits never change them.
type Notification struct {
	ID            uuid.UUID          `json:"id"`
	UserID        int64              `json:"user_id"`
	Title         string             `json:"title"`
	Content       string             `json:"content"`
	Type          NotificationType   `json:"notification_type"`
	Channel       Channel            `json:"channel"`
	Status        NotificationStatus `json:"status"`
	ReferenceID   *string            `json:"reference_id,omitempty"`
	ReferenceType *string            `json:"reference_type,omitempty"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	ReadAt        *time.Time         `json:"read_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// DeliveryAttempt is one recorded try to deliver a notification. Rows are
// append-only; attempt numbers are 1-based and strictly increasing per
// notification.
type DeliveryAttempt struct {
	ID             uuid.UUID     `json:"id"`
	NotificationID uuid.UUID     `json:"notification_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
	AttemptedAt    time.Time     `json:"attempted_at"`
}

// NotificationTemplate is a named, parameterized title/content pair.
// Placeholders use the {{variable}} form.
type NotificationTemplate struct {
	ID          uuid.UUID    `json:"id"`
	TemplateKey string       `json:"template_key"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Description *string      `json:"description,omitempty"`
	Channel     Channel      `json:"channel"`
	Type        TemplateType `json:"template_type"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// UserNotificationPreference is a user's per-type opt-in state for each
// channel. Absence of a row means every channel is enabled.
type UserNotificationPreference struct {
	ID           uuid.UUID        `json:"id"`
	UserID       int64            `json:"user_id"`
	Type         NotificationType `json:"notification_type"`
	EmailEnabled bool             `json:"email_enabled"`
	PushEnabled  bool             `json:"push_enabled"`
	InAppEnabled bool             `json:"in_app_enabled"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// ChannelEnabled returns the stored flag for the given channel.
func (p *UserNotificationPreference) ChannelEnabled(channel Channel) bool {
	switch channel {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelInApp:
		return p.InAppEnabled
	}
	return false
}
