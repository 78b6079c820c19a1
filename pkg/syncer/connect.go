package syncer

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/sheetsync/pkg/auth"
	"github.com/harrisonrobin/sheetsync/pkg/google"
	"github.com/harrisonrobin/sheetsync/pkg/retry"
	"github.com/harrisonrobin/sheetsync/pkg/sheets"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleConnector builds a Backend on Google Sheets and Google Calendar.
type GoogleConnector struct {
	Auth          *auth.Provider
	SpreadsheetID string
	Layout        sheets.Layout
	// LogSheet names the tab receiving the run log; empty disables it.
	LogSheet string
	Calendar string
}

// Connect implements Connector.
func (c *GoogleConnector) Connect(ctx context.Context, g *retry.Governor) (*Backend, error) {
	httpClient, err := c.Auth.Client(ctx)
	if err != nil {
		return nil, syncerr.New(syncerr.KindAuthorization, "authorize", err)
	}

	sheetsSrv, err := gsheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}
	calSrv, err := google.NewService(ctx, httpClient)
	if err != nil {
		return nil, err
	}

	calendarID, err := retry.Do(ctx, g, "resolve calendar", func(ctx context.Context) (string, error) {
		return google.ResolveCalendar(ctx, calSrv, c.Calendar)
	})
	if err != nil {
		return nil, err
	}

	rows := sheets.NewClient(sheetsSrv, c.SpreadsheetID)
	backend := &Backend{
		Rows:       rows,
		Layout:     c.Layout,
		Events:     google.NewCalendarClient(calSrv, calendarID),
		CalendarID: calendarID,
	}
	if c.LogSheet != "" {
		backend.Logs = &sheets.LogSink{Client: rows, Sheet: c.LogSheet}
	}
	return backend, nil
}
