package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// NewService creates a Calendar service on an already authorized HTTP client.
func NewService(ctx context.Context, httpClient *http.Client) (*calendar.Service, error) {
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}
	return srv, nil
}

// ResolveCalendar finds a calendar by summary, falling back to an exact ID
// match. "primary" resolves to itself without a lookup.
func ResolveCalendar(ctx context.Context, srv *calendar.Service, calendarName string) (string, error) {
	if calendarName == "primary" {
		return calendarName, nil
	}

	var calendarID string
	err := srv.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if item.Summary == calendarName || item.Id == calendarName {
				calendarID = item.Id
				return errFound
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", syncerr.Classify("list calendars", err)
	}
	if calendarID == "" {
		return "", syncerr.Errorf(syncerr.KindConfig, "resolve calendar", "calendar '%s' not found", calendarName)
	}
	return calendarID, nil
}

var errFound = errors.New("found")
