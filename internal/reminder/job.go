// Package reminder builds the daily event-reminder batch: find events
// starting on the reminder horizon, and notify everyone registered.
package reminder

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/clients"
	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/dispatch"
	"github.com/tharindu-dm/herald/internal/metrics"
)

// TemplateKey names the template every reminder renders with.
const TemplateKey = "EVENT_REMINDER_EMAIL"

// EventDirectory is the slice of the events service the job needs.
type EventDirectory interface {
	UpcomingEvents(ctx context.Context) []*clients.Event
	EventRegistrations(ctx context.Context, eventID int64) []int64
}

// Dispatcher fans a batch request out; satisfied by dispatch.Orchestrator.
type Dispatcher interface {
	CreateBatch(ctx context.Context, req dispatch.BatchRequest) (int, error)
}

// Job sends event reminders leadDays ahead of each event's start.
type Job struct {
	events     EventDirectory
	dispatcher Dispatcher
	leadDays   int
	logger     *zap.Logger
	now        func() time.Time
}

// NewJob creates the reminder job.
func NewJob(events EventDirectory, dispatcher Dispatcher, leadDays int, logger *zap.Logger) *Job {
	return &Job{
		events:     events,
		dispatcher: dispatcher,
		leadDays:   leadDays,
		logger:     logger,
		now:        time.Now,
	}
}

// Run fetches the upcoming events, keeps those starting exactly leadDays
// from today, and dispatches a reminder to every registered user over
// email, in-app and push. One event's failure does not stop the others.
// Returns how many notifications were dispatched.
func (j *Job) Run(ctx context.Context) (int, error) {
	events := j.events.UpcomingEvents(ctx)
	if len(events) == 0 {
		return 0, nil
	}

	target := j.now().AddDate(0, 0, j.leadDays)
	targetY, targetM, targetD := target.Date()

	dispatched := 0
	for _, event := range events {
		start, err := time.Parse(time.RFC3339, event.StartTime)
		if err != nil {
			j.logger.Warn("event has unparseable start time",
				zap.Int64("event_id", event.ID),
				zap.String("start_time", event.StartTime),
				zap.Error(err),
			)
			continue
		}

		y, m, d := start.Date()
		if y != targetY || m != targetM || d != targetD {
			continue
		}

		n, err := j.remindEvent(ctx, event, start)
		if err != nil {
			j.logger.Error("event reminder failed",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		dispatched += n
	}

	if dispatched > 0 {
		metrics.RecordRemindersDispatched(dispatched)
		j.logger.Info("event reminders dispatched", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

func (j *Job) remindEvent(ctx context.Context, event *clients.Event, start time.Time) (int, error) {
	userIDs := j.events.EventRegistrations(ctx, event.ID)
	if len(userIDs) == 0 {
		return 0, nil
	}

	location := event.Location
	if event.VenueName != nil && *event.VenueName != "" {
		location = *event.VenueName
	}

	refID := strconv.FormatInt(event.ID, 10)
	refType := "event"
	return j.dispatcher.CreateBatch(ctx, dispatch.BatchRequest{
		UserIDs:     userIDs,
		Type:        db.TypeEventReminder,
		Channels:    []db.Channel{db.ChannelEmail, db.ChannelInApp, db.ChannelPush},
		TemplateKey: TemplateKey,
		Variables: map[string]string{
			"eventName":     event.Title,
			"eventDate":     start.Format("Monday, January 2, 2006"),
			"eventTime":     start.Format("3:04 PM"),
			"eventLocation": location,
		},
		ReferenceID:   &refID,
		ReferenceType: &refType,
	})
}
