// Package clients holds the HTTP clients for the user and event
// directories. Both degrade to placeholder values when the remote service
// is unavailable: notification dispatch should keep moving and let the
// send attempt fail naturally rather than error out on a lookup.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// User is the directory's view of a recipient.
type User struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	PushToken *string `json:"push_token,omitempty"`
}

// Event is the directory's view of a scheduled event. StartTime and
// EndTime are RFC 3339 strings as served by the events service.
type Event struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Location    string  `json:"location"`
	VenueID     *int64  `json:"venue_id,omitempty"`
	VenueName   *string `json:"venue_name,omitempty"`
}

// Config holds the base URLs and request timeout for directory lookups.
type Config struct {
	UserServiceURL  string
	EventServiceURL string
	Timeout         time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// UserClient fetches users from the user service.
type UserClient struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

// NewUserClient creates a user directory client.
func NewUserClient(cfg Config, logger *zap.Logger) *UserClient {
	return &UserClient{
		base:   strings.TrimRight(cfg.UserServiceURL, "/"),
		client: newHTTPClient(cfg.Timeout),
		logger: logger,
	}
}

// placeholderUser stands in when the user service cannot answer. Email
// and push sends against it fail or skip naturally.
func placeholderUser(id int64) *User {
	return &User{
		ID:        id,
		Username:  "unknown_user",
		Email:     "unknown@example.com",
		FirstName: "Unknown",
		LastName:  "User",
	}
}

// UserByID fetches one user, falling back to a placeholder on any error.
func (c *UserClient) UserByID(ctx context.Context, id int64) *User {
	var user User
	err := c.getJSON(ctx, fmt.Sprintf("%s/api/users/%d", c.base, id), &user)
	if err != nil {
		c.logger.Warn("user lookup failed, using placeholder",
			zap.Int64("user_id", id),
			zap.Error(err),
		)
		return placeholderUser(id)
	}
	return &user
}

// UsersByIDs fetches a batch of users, falling back to placeholders on
// any error.
func (c *UserClient) UsersByIDs(ctx context.Context, ids []int64) []*User {
	params := make([]string, len(ids))
	for i, id := range ids {
		params[i] = strconv.FormatInt(id, 10)
	}

	var users []*User
	endpoint := fmt.Sprintf("%s/api/users/emails?ids=%s", c.base, url.QueryEscape(strings.Join(params, ",")))
	if err := c.getJSON(ctx, endpoint, &users); err != nil {
		c.logger.Warn("batch user lookup failed, using placeholders",
			zap.Int("count", len(ids)),
			zap.Error(err),
		)
		out := make([]*User, len(ids))
		for i, id := range ids {
			out[i] = placeholderUser(id)
		}
		return out
	}
	return users
}

func (c *UserClient) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// EventClient fetches events and their registrations from the events
// service.
type EventClient struct {
	base   string
	client *http.Client
	logger *zap.Logger
}

// NewEventClient creates an event directory client.
func NewEventClient(cfg Config, logger *zap.Logger) *EventClient {
	return &EventClient{
		base:   strings.TrimRight(cfg.EventServiceURL, "/"),
		client: newHTTPClient(cfg.Timeout),
		logger: logger,
	}
}

// EventByID fetches one event, falling back to a placeholder on any
// error.
func (c *EventClient) EventByID(ctx context.Context, id int64) *Event {
	var event Event
	err := c.getJSON(ctx, fmt.Sprintf("%s/api/events/%d", c.base, id), &event)
	if err != nil {
		c.logger.Warn("event lookup failed, using placeholder",
			zap.Int64("event_id", id),
			zap.Error(err),
		)
		return &Event{
			ID:          id,
			Title:       "Unknown Event",
			Description: "Event details unavailable",
			Location:    "Unknown",
		}
	}
	return &event
}

// UpcomingEvents fetches the upcoming-event horizon, falling back to an
// empty list on any error.
func (c *EventClient) UpcomingEvents(ctx context.Context) []*Event {
	var events []*Event
	if err := c.getJSON(ctx, c.base+"/api/events/upcoming", &events); err != nil {
		c.logger.Warn("upcoming events lookup failed, returning none", zap.Error(err))
		return nil
	}
	return events
}

// EventRegistrations fetches the user ids registered for an event,
// falling back to an empty list on any error.
func (c *EventClient) EventRegistrations(ctx context.Context, eventID int64) []int64 {
	var userIDs []int64
	endpoint := fmt.Sprintf("%s/api/events/%d/registrations", c.base, eventID)
	if err := c.getJSON(ctx, endpoint, &userIDs); err != nil {
		c.logger.Warn("event registrations lookup failed, returning none",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)
		return nil
	}
	return userIDs
}

func (c *EventClient) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
