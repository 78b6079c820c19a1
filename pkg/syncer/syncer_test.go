package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/index"
	"github.com/harrisonrobin/sheetsync/pkg/model"
	"github.com/harrisonrobin/sheetsync/pkg/retry"
	"github.com/harrisonrobin/sheetsync/pkg/runlog"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"google.golang.org/api/calendar/v3"
)

type memLayout struct{}

func (memLayout) TaskRange() string          { return "Tasks!A2:I" }
func (memLayout) IdentityCell(row int) string { return fmt.Sprintf("Tasks!I%d", row+2) }

// memSheet is an in-memory task table. Writes to cells outside column I are
// only recorded.
type memSheet struct {
	rows       [][]string
	cells      map[string]string
	reads      int
	beforeRead func(reads int, rows [][]string)
}

func (m *memSheet) ReadRange(context.Context, string) ([]model.RawRow, error) {
	m.reads++
	if m.beforeRead != nil {
		m.beforeRead(m.reads, m.rows)
	}
	out := make([]model.RawRow, len(m.rows))
	for i, r := range m.rows {
		out[i] = model.RowFromCells(r)
	}
	return out, nil
}

func (m *memSheet) WriteCell(_ context.Context, cell, value string) error {
	if m.cells == nil {
		m.cells = make(map[string]string)
	}
	m.cells[cell] = value
	if !strings.HasPrefix(cell, "Tasks!I") {
		return nil
	}
	var row int
	fmt.Sscanf(strings.TrimPrefix(cell, "Tasks!I"), "%d", &row)
	r := m.rows[row-2]
	for len(r) < model.Columns {
		r = append(r, "")
	}
	r[8] = value
	m.rows[row-2] = r
	return nil
}

type memCalendar struct {
	events []*calendar.Event
	nextID int
	writes int
	// rateLimited rejects every create as over quota.
	rateLimited bool
}

func (c *memCalendar) ListEvents(context.Context) ([]*calendar.Event, error) {
	return append([]*calendar.Event(nil), c.events...), nil
}

func (c *memCalendar) CreateEvent(_ context.Context, ev *calendar.Event) (*calendar.Event, error) {
	if c.rateLimited {
		return nil, syncerr.New(syncerr.KindRateLimited, "create event", errors.New("429 quota exceeded"))
	}
	c.writes++
	c.nextID++
	stored := *ev
	stored.Id = fmt.Sprintf("evt-%d", c.nextID)
	c.events = append(c.events, &stored)
	return &stored, nil
}

func (c *memCalendar) UpdateEvent(_ context.Context, id string, ev *calendar.Event) (*calendar.Event, error) {
	c.writes++
	for i, existing := range c.events {
		if existing.Id == id {
			stored := *ev
			stored.Id = id
			c.events[i] = &stored
			return &stored, nil
		}
	}
	return nil, fmt.Errorf("event %s not found", id)
}

func (c *memCalendar) DeleteEvent(_ context.Context, id string) error {
	c.writes++
	for i, existing := range c.events {
		if existing.Id == id {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("event %s not found", id)
}

type memSink struct {
	calls   int
	entries []runlog.Entry
}

func (s *memSink) Append(_ context.Context, entries []runlog.Entry) error {
	s.calls++
	s.entries = append(s.entries, entries...)
	return nil
}

type staticConnector struct {
	backend *Backend
	err     error
}

func (c *staticConnector) Connect(context.Context, *retry.Governor) (*Backend, error) {
	return c.backend, c.err
}

type fixture struct {
	sheet *memSheet
	cal   *memCalendar
	sink  *memSink
	out   *bytes.Buffer
	now   time.Time
}

func newFixture(rows ...[]string) *fixture {
	return &fixture{
		sheet: &memSheet{rows: rows},
		cal:   &memCalendar{},
		sink:  &memSink{},
		out:   &bytes.Buffer{},
		now:   time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC),
	}
}

func (f *fixture) syncer(t *testing.T, state *index.EventIndex) *Syncer {
	t.Helper()
	log, err := runlog.New(runlog.Options{Level: "debug", Out: f.out})
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	return &Syncer{
		Connector: &staticConnector{backend: &Backend{
			Rows:       f.sheet,
			Layout:     memLayout{},
			Events:     f.cal,
			Logs:       f.sink,
			CalendarID: "cal-1",
		}},
		Log:          log,
		Retry:        &retry.Governor{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
		Location:     time.UTC,
		LastSyncCell: "Tasks!K1",
		State:        state,
		Now:          func() time.Time { return f.now },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		},
	}
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(
		[]string{"", "Essay", "3/1/2025", "11:59:00 PM", "1 - Not Done"},
		[]string{"Math", "Quiz", "3/2/2025", "9:00 AM", "Done", "Easy", "Low", "", "q-1"},
	)
	state, err := index.Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}

	report, err := f.syncer(t, state).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Phase != PhaseDone || report.Tasks != 2 || report.Result.Created != 2 {
		t.Fatalf("unexpected report: %+v %+v", report, report.Result)
	}
	if got := f.sheet.cells["Tasks!I2"]; got != "id-1" {
		t.Errorf("expected the first row to get id-1, got %q", got)
	}
	if _, ok := f.sheet.cells["Tasks!I3"]; ok {
		t.Errorf("a row with an identity must not be rewritten")
	}
	if got := f.sheet.cells["Tasks!K1"]; got != "2025-03-01 08:30:00 UTC" {
		t.Errorf("unexpected last sync stamp %q", got)
	}
	if len(f.cal.events) != 2 || f.cal.events[1].Summary != "✓ Math: Quiz" {
		t.Errorf("unexpected calendar contents: %+v", f.cal.events)
	}

	if f.sink.calls != 1 {
		t.Errorf("expected one flush to the sink, got %d", f.sink.calls)
	}
	if last := f.sink.entries[len(f.sink.entries)-1].Message; !strings.HasPrefix(last, "sync complete") {
		t.Errorf("expected the summary last, got %q", last)
	}

	reopened, err := index.Open(state.Path)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 2 || reopened.Calendar != "cal-1" || !reopened.LastSync.Equal(f.now) {
		t.Errorf("unexpected local state: %+v", reopened)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture([]string{"", "Essay", "3/1/2025", "11:59:00 PM", "1 - Not Done"})

	if _, err := f.syncer(t, nil).Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	writes := f.cal.writes

	report, err := f.syncer(t, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if f.cal.writes != writes {
		t.Errorf("expected no calendar writes on the second run, got %d", f.cal.writes-writes)
	}
	if report.Result.Unchanged != 1 || report.Result.Changes() != 0 {
		t.Errorf("unexpected second result: %+v", report.Result)
	}
}

func TestRunAbortsOnConcurrentEdit(t *testing.T) {
	f := newFixture(
		[]string{"", "Essay", "3/1/2025", "11:59:00 PM", "1 - Not Done"},
	)
	f.sheet.beforeRead = func(reads int, rows [][]string) {
		if reads == 2 {
			rows[0][1] = "Essay draft"
		}
	}

	report, err := f.syncer(t, nil).Run(context.Background())
	if !errors.Is(err, syncerr.ErrConcurrentModification) {
		t.Fatalf("expected a concurrent modification error, got %v", err)
	}
	if report.Phase != PhaseAssign {
		t.Errorf("expected the run to stop in %s, got %s", PhaseAssign, report.Phase)
	}
	if !strings.HasPrefix(err.Error(), "assign identities: ") {
		t.Errorf("expected the error to name the phase, got %q", err)
	}
	if len(f.cal.events) != 0 || f.cal.writes != 0 {
		t.Errorf("calendar must not be touched after an abort")
	}
	if _, ok := f.sheet.cells["Tasks!K1"]; ok {
		t.Errorf("last sync must not be stamped after an abort")
	}
	if f.sink.calls != 1 {
		t.Errorf("expected the log to be flushed once, got %d", f.sink.calls)
	}
	found := false
	for _, e := range f.sink.entries {
		if strings.HasPrefix(e.Message, "sync failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the failure in the flushed log, got %+v", f.sink.entries)
	}
}

func TestRunAuthorizationFailure(t *testing.T) {
	f := newFixture()
	s := f.syncer(t, nil)
	s.Connector = &staticConnector{err: syncerr.New(syncerr.KindAuthorization, "authorize", errors.New("token expired"))}

	report, err := s.Run(context.Background())
	if !errors.Is(err, syncerr.ErrAuthorization) {
		t.Fatalf("expected an authorization error, got %v", err)
	}
	if syncerr.ExitCode(err) != 5 {
		t.Errorf("expected exit code 5, got %d", syncerr.ExitCode(err))
	}
	if report.Phase != PhaseAuthorize {
		t.Errorf("unexpected phase %s", report.Phase)
	}
	if f.sink.calls != 0 {
		t.Errorf("no sink is reachable before authorization")
	}
	if !strings.Contains(f.out.String(), "sync failed") {
		t.Errorf("expected the failure on the console, got %q", f.out.String())
	}
}

func TestRunBadDateStopsBeforeWrites(t *testing.T) {
	f := newFixture(
		[]string{"", "Essay", "3/1/2025", "11:59:00 PM", "1 - Not Done", "", "", "", "a"},
		[]string{"", "Lab", "someday", "", "1 - Not Done", "", "", "", "b"},
	)

	report, err := f.syncer(t, nil).Run(context.Background())
	if !errors.Is(err, syncerr.ErrDateParse) {
		t.Fatalf("expected a date parse error, got %v", err)
	}
	if report.Phase != PhaseReconcile {
		t.Errorf("unexpected phase %s", report.Phase)
	}
	if _, ok := f.sheet.cells["Tasks!K1"]; ok {
		t.Errorf("last sync must not be stamped after a failure")
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseList.String() != "list events" || Phase(42).String() != "phase(42)" {
		t.Errorf("unexpected phase names %q %q", PhaseList, Phase(42))
	}
}

func TestRunStopsWhenRetriesRunOut(t *testing.T) {
	f := newFixture([]string{"", "Essay", "3/1/2025", "11:59:00 PM", "1 - Not Done", "", "", "", "a"})
	f.cal.rateLimited = true

	report, err := f.syncer(t, nil).Run(context.Background())
	if !errors.Is(err, syncerr.ErrRetryExhausted) {
		t.Fatalf("expected RetryExhausted, got %v", err)
	}
	if code := syncerr.ExitCode(err); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if report.Phase != PhaseReconcile {
		t.Errorf("unexpected phase %s", report.Phase)
	}
	if _, ok := f.sheet.cells["Tasks!K1"]; ok {
		t.Errorf("last sync must not be stamped after a failure")
	}
	if f.sink.calls != 1 {
		t.Errorf("expected the log to be flushed once, got %d", f.sink.calls)
	}
}

func TestRunWithoutLogger(t *testing.T) {
	f := newFixture([]string{"", "Essay", "3/1/2025", "11:59:00 PM", "1 - Not Done", "", "", "", "a"})
	s := f.syncer(t, nil)
	s.Log = nil
	s.Retry = nil
	s.Connector = &staticConnector{err: syncerr.New(syncerr.KindAuthorization, "authorize", errors.New("no token"))}

	_, err := s.Run(context.Background())
	if !errors.Is(err, syncerr.ErrAuthorization) {
		t.Fatalf("expected an authorization error, got %v", err)
	}
	if s.Log == nil {
		t.Errorf("expected Run to install a default logger")
	}
}
