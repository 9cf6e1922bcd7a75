package reminder

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tharindu-dm/herald/internal/clients"
	"github.com/tharindu-dm/herald/internal/db"
	"github.com/tharindu-dm/herald/internal/dispatch"
)

type fakeEvents struct {
	events        []*clients.Event
	registrations map[int64][]int64
}

func (f *fakeEvents) UpcomingEvents(ctx context.Context) []*clients.Event {
	return f.events
}

func (f *fakeEvents) EventRegistrations(ctx context.Context, eventID int64) []int64 {
	return f.registrations[eventID]
}

type fakeDispatcher struct {
	batches []dispatch.BatchRequest
	err     error
}

func (f *fakeDispatcher) CreateBatch(ctx context.Context, req dispatch.BatchRequest) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, req)
	// One notification per user per channel, like the real orchestrator.
	return len(req.UserIDs) * len(req.Channels), nil
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 13, 8, 0, 0, 0, time.UTC)
}

func eventAt(id int64, start time.Time) *clients.Event {
	return &clients.Event{
		ID:        id,
		Title:     "Go Meetup",
		StartTime: start.Format(time.RFC3339),
		Location:  "Main Hall",
	}
}

func TestJobRemindsTomorrowsEvents(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)
	events := &fakeEvents{
		events: []*clients.Event{
			eventAt(1, tomorrow),
			eventAt(2, tomorrow.AddDate(0, 0, 1)), // too far out
			eventAt(3, fixedNow()),                // today, already past the horizon
		},
		registrations: map[int64][]int64{1: {10, 11, 12}, 2: {20}, 3: {30}},
	}
	d := &fakeDispatcher{}

	job := NewJob(events, d, 1, zap.NewNop())
	job.now = fixedNow

	count, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 9 {
		t.Errorf("dispatched = %d, want 9 (three users, three channels)", count)
	}

	if len(d.batches) != 1 {
		t.Fatalf("dispatched %d batches, want 1", len(d.batches))
	}
	batch := d.batches[0]
	if len(batch.UserIDs) != 3 {
		t.Errorf("user ids = %v", batch.UserIDs)
	}
	if batch.Type != db.TypeEventReminder {
		t.Errorf("type = %s", batch.Type)
	}
	if batch.TemplateKey != TemplateKey {
		t.Errorf("template key = %s", batch.TemplateKey)
	}
	if len(batch.Channels) != 3 {
		t.Errorf("channels = %v, want email, in_app and push", batch.Channels)
	}
}

func TestJobVariableFormatting(t *testing.T) {
	start := time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)
	venue := "Hall B"
	event := eventAt(1, start)
	event.VenueName = &venue

	events := &fakeEvents{
		events:        []*clients.Event{event},
		registrations: map[int64][]int64{1: {10}},
	}
	d := &fakeDispatcher{}

	job := NewJob(events, d, 1, zap.NewNop())
	job.now = fixedNow

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vars := d.batches[0].Variables
	want := map[string]string{
		"eventName":     "Go Meetup",
		"eventDate":     "Saturday, March 14, 2026",
		"eventTime":     "6:30 PM",
		"eventLocation": "Hall B",
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("vars[%s] = %q, want %q", k, vars[k], v)
		}
	}

	if d.batches[0].ReferenceID == nil || *d.batches[0].ReferenceID != "1" {
		t.Errorf("reference_id = %v", d.batches[0].ReferenceID)
	}
}

func TestJobFallsBackToLocation(t *testing.T) {
	start := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)
	events := &fakeEvents{
		events:        []*clients.Event{eventAt(1, start)},
		registrations: map[int64][]int64{1: {10}},
	}
	d := &fakeDispatcher{}

	job := NewJob(events, d, 1, zap.NewNop())
	job.now = fixedNow

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.batches[0].Variables["eventLocation"]; got != "Main Hall" {
		t.Errorf("eventLocation = %q, want the raw location", got)
	}
}

func TestJobSkipsEmptyAndBroken(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	broken := eventAt(2, tomorrow)
	broken.StartTime = "not-a-time"

	events := &fakeEvents{
		events: []*clients.Event{
			eventAt(1, tomorrow), // no registrations
			broken,
			eventAt(3, tomorrow),
		},
		registrations: map[int64][]int64{3: {30, 31}},
	}
	d := &fakeDispatcher{}

	job := NewJob(events, d, 1, zap.NewNop())
	job.now = fixedNow

	count, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 6 {
		t.Errorf("dispatched = %d, want 6 (two users, three channels)", count)
	}
	if len(d.batches) != 1 {
		t.Errorf("batches = %d, want 1 (empty and broken events skipped)", len(d.batches))
	}
}

func TestJobNoUpcomingEvents(t *testing.T) {
	job := NewJob(&fakeEvents{}, &fakeDispatcher{}, 1, zap.NewNop())
	job.now = fixedNow

	count, err := job.Run(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("run = %d, %v", count, err)
	}
}
