package google

import (
	"context"

	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"google.golang.org/api/calendar/v3"
)

// CalendarClient is a Google Calendar API client bound to one calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
}

// NewCalendarClient creates a new Google Calendar client.
func NewCalendarClient(srv *calendar.Service, calendarID string) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID}
}

// ListEvents fetches every non-deleted event of the calendar, following pages.
func (c *CalendarClient) ListEvents(ctx context.Context) ([]*calendar.Event, error) {
	var events []*calendar.Event
	err := c.srv.Events.List(c.calendarID).
		ShowDeleted(false).
		MaxResults(2500).
		Pages(ctx, func(page *calendar.Events) error {
			events = append(events, page.Items...)
			return nil
		})
	if err != nil {
		return nil, syncerr.Classify("list events", err)
	}
	return events, nil
}

// CreateEvent inserts a new event.
func (c *CalendarClient) CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, syncerr.Classify("create event", err)
	}
	return created, nil
}

// UpdateEvent replaces an event with the given payload.
func (c *CalendarClient) UpdateEvent(ctx context.Context, eventID string, event *calendar.Event) (*calendar.Event, error) {
	updated, err := c.srv.Events.Update(c.calendarID, eventID, event).Context(ctx).Do()
	if err != nil {
		return nil, syncerr.Classify("update event", err)
	}
	return updated, nil
}

// DeleteEvent deletes an event from the calendar.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	if err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do(); err != nil {
		return syncerr.Classify("delete event", err)
	}
	return nil
}
