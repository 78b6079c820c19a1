package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/model"
	"github.com/harrisonrobin/sheetsync/pkg/runlog"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"google.golang.org/api/sheets/v4"
)

// Layout locates the task table inside a spreadsheet.
type Layout struct {
	Sheet    string
	FirstRow int // 1-based row of the first task, below any header
}

// identityColumn is the ninth column, where identities live.
const identityColumn = "I"

// TaskRange is the A1 range covering every task row.
func (l Layout) TaskRange() string {
	return fmt.Sprintf("%s!A%d:%s", quoteSheet(l.Sheet), l.firstRow(), identityColumn)
}

// IdentityCell is the A1 cell holding the identity of the task at the given
// 0-based position in TaskRange.
func (l Layout) IdentityCell(row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(l.Sheet), identityColumn, l.firstRow()+row)
}

func (l Layout) firstRow() int {
	if l.FirstRow < 1 {
		return 1
	}
	return l.FirstRow
}

func quoteSheet(name string) string {
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z') {
			return "'" + name + "'"
		}
	}
	return name
}

// Client reads and writes cells of one spreadsheet.
type Client struct {
	srv           *sheets.Service
	spreadsheetID string
}

// NewClient creates a new Sheets client for the given spreadsheet.
func NewClient(srv *sheets.Service, spreadsheetID string) *Client {
	return &Client{srv: srv, spreadsheetID: spreadsheetID}
}

// ReadRange returns the rows of rng as displayed in the sheet.
func (c *Client) ReadRange(ctx context.Context, rng string) ([]model.RawRow, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, syncerr.Classify("read range "+rng, err)
	}

	rows := make([]model.RawRow, 0, len(resp.Values))
	for _, values := range resp.Values {
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprint(v)
		}
		rows = append(rows, model.RowFromCells(cells))
	}
	return rows, nil
}

// WriteCell stores value verbatim in a single cell.
func (c *Client) WriteCell(ctx context.Context, cell, value string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, cell, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return syncerr.Classify("write cell "+cell, err)
	}
	return nil
}

// AppendRows appends rows below the last used row of rng.
func (c *Client) AppendRows(ctx context.Context, rng string, rows [][]interface{}) error {
	vr := &sheets.ValueRange{Values: rows}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return syncerr.Classify("append rows "+rng, err)
	}
	return nil
}

// LogSink appends run log entries as [timestamp, message] rows.
type LogSink struct {
	Client *Client
	Sheet  string
}

// Append implements runlog.Sink.
func (s *LogSink) Append(ctx context.Context, entries []runlog.Entry) error {
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{e.Time.Format(time.RFC3339), e.Message})
	}
	return s.Client.AppendRows(ctx, quoteSheet(s.Sheet)+"!A:B", rows)
}
