// Package syncer runs one complete sheet-to-calendar sync.
//
// A run moves through fixed phases: authorize, assign identities, list
// events, reconcile, finalize. The first error stops the run; it is logged
// once, tagged with the phase it happened in, and returned. The run log is
// flushed to the sheet exactly once at the end whatever the outcome.
package syncer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/identity"
	"github.com/harrisonrobin/sheetsync/pkg/index"
	"github.com/harrisonrobin/sheetsync/pkg/reconcile"
	"github.com/harrisonrobin/sheetsync/pkg/retry"
	"github.com/harrisonrobin/sheetsync/pkg/runlog"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
)

// Phase is a step of a sync run.
type Phase int

const (
	PhaseAuthorize Phase = iota
	PhaseAssign
	PhaseList
	PhaseReconcile
	PhaseFinalize
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthorize:
		return "authorize"
	case PhaseAssign:
		return "assign identities"
	case PhaseList:
		return "list events"
	case PhaseReconcile:
		return "reconcile"
	case PhaseFinalize:
		return "finalize"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Backend is everything a run talks to once authorized.
type Backend struct {
	Rows   identity.RowStore
	Layout identity.Layout
	Events reconcile.EventStore
	// Logs receives the run log. Optional.
	Logs runlog.Sink
	// CalendarID is recorded in the local state.
	CalendarID string
}

// Connector authorizes and builds the Backend.
type Connector interface {
	Connect(ctx context.Context, g *retry.Governor) (*Backend, error)
}

// Syncer runs syncs.
type Syncer struct {
	Connector Connector
	Log       *runlog.Logger
	Retry     *retry.Governor

	Location      *time.Location
	EventDuration time.Duration
	// LastSyncCell receives the finish time of each successful run. Optional.
	LastSyncCell string
	// State records the outcome locally. Optional.
	State *index.EventIndex

	Now   func() time.Time
	NewID func() string
}

// Report summarizes a run.
type Report struct {
	Phase  Phase
	Tasks  int
	Result *reconcile.Result
}

// Run performs one sync. It never panics; any failure is logged and returned.
// Without a Log, the run logs to stderr at info level.
func (s *Syncer) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{Phase: PhaseAuthorize}
	if s.Log == nil {
		if s.Log, err = runlog.New(runlog.Options{}); err != nil {
			return report, err
		}
	}
	var backend *Backend

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", report.Phase, err)
			s.Log.WithField("phase", report.Phase.String()).Errorf("sync failed: %v", err)
		}

		var sink runlog.Sink
		if backend != nil {
			sink = backend.Logs
		}
		if ferr := s.Log.Flush(context.WithoutCancel(ctx), sink); ferr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not flush sync log: %v\n", ferr)
		}
	}()

	g := s.governor()

	backend, err = s.Connector.Connect(ctx, g)
	if err != nil {
		return report, err
	}

	report.Phase = PhaseAssign
	assigner := &identity.Assigner{
		Rows:   backend.Rows,
		Layout: backend.Layout,
		Retry:  g,
		Log:    s.Log,
		NewID:  s.NewID,
	}
	tasks, err := assigner.Assign(ctx)
	if err != nil {
		return report, err
	}
	report.Tasks = len(tasks)

	report.Phase = PhaseList
	existing, err := retry.Do(ctx, g, "list events", func(ctx context.Context) ([]*calendar.Event, error) {
		return backend.Events.ListEvents(ctx)
	})
	if err != nil {
		return report, err
	}

	report.Phase = PhaseReconcile
	r := &reconcile.Reconciler{
		Events:   backend.Events,
		Retry:    g,
		Location: s.Location,
		Duration: s.EventDuration,
		Log:      s.Log,
	}
	report.Result, err = r.Reconcile(ctx, tasks, existing)
	if err != nil {
		return report, err
	}

	report.Phase = PhaseFinalize
	if err := s.finalize(ctx, g, backend, report.Result); err != nil {
		return report, err
	}

	report.Phase = PhaseDone
	s.Log.WithFields(logrus.Fields{
		"tasks":     report.Tasks,
		"created":   report.Result.Created,
		"updated":   report.Result.Updated,
		"deleted":   report.Result.Deleted,
		"unchanged": report.Result.Unchanged,
	}).Info("sync complete")
	return report, nil
}

func (s *Syncer) finalize(ctx context.Context, g *retry.Governor, backend *Backend, res *reconcile.Result) error {
	now := s.now()

	if s.LastSyncCell != "" {
		stamp := now.In(s.location()).Format("2006-01-02 15:04:05 MST")
		err := g.Execute(ctx, "write last sync", func(ctx context.Context) error {
			return backend.Rows.WriteCell(ctx, s.LastSyncCell, stamp)
		})
		if err != nil {
			return fmt.Errorf("failed to write last sync time: %w", err)
		}
	}

	if s.State != nil {
		s.State.Record(now, backend.CalendarID, res.EventIDs, res.Created, res.Updated, res.Deleted)
		if err := s.State.Save(); err != nil {
			s.Log.Warnf("could not save local state to %s: %v", s.State.Path, err)
		}
	}
	return nil
}

func (s *Syncer) governor() *retry.Governor {
	if s.Retry != nil {
		return s.Retry
	}
	return retry.New(retry.DefaultMaxAttempts, retry.DefaultBaseDelay, s.Log)
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Syncer) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}
