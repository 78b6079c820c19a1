// Package reconcile makes the calendar mirror the task list.
//
// Existing events are indexed by the task identity they carry. Each task is
// projected and then created, updated or left alone; whatever is still in the
// index afterwards belongs to no task and is deleted. Events without an
// identity are not ours and are never touched.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/model"
	"github.com/harrisonrobin/sheetsync/pkg/retry"
	"github.com/harrisonrobin/sheetsync/pkg/util"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
)

// EventStore is the calendar being kept in sync.
type EventStore interface {
	ListEvents(ctx context.Context) ([]*calendar.Event, error)
	CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, eventID string, event *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Result counts what a reconciliation did.
type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Deleted   int

	// EventIDs maps each task identity to its event ID.
	EventIDs map[string]string
}

// Changes is the number of remote writes performed.
func (r *Result) Changes() int {
	return r.Created + r.Updated + r.Deleted
}

// Reconciler applies the minimal set of event changes for a task list.
type Reconciler struct {
	Events   EventStore
	Retry    *retry.Governor
	Location *time.Location
	// Duration is the length given to every projected event.
	Duration time.Duration
	Log      logrus.FieldLogger
}

// syncIndex holds the existing events keyed by identity. order keeps listing
// order so deletes are deterministic.
type syncIndex struct {
	byID  map[string]*calendar.Event
	order []string
	// extra holds events whose identity was already taken by an earlier one.
	extra []*calendar.Event
}

func buildIndex(events []*calendar.Event) *syncIndex {
	idx := &syncIndex{byID: make(map[string]*calendar.Event)}
	for _, ev := range events {
		id, ok := util.EventIdentity(ev)
		if !ok {
			continue
		}
		if _, dup := idx.byID[id]; dup {
			idx.extra = append(idx.extra, ev)
			continue
		}
		idx.byID[id] = ev
		idx.order = append(idx.order, id)
	}
	return idx
}

// take removes and returns the event for id.
func (idx *syncIndex) take(id string) (*calendar.Event, bool) {
	ev, ok := idx.byID[id]
	if ok {
		delete(idx.byID, id)
	}
	return ev, ok
}

// orphans returns the events left after every task has been matched.
func (idx *syncIndex) orphans() []*calendar.Event {
	var out []*calendar.Event
	for _, id := range idx.order {
		if ev, ok := idx.byID[id]; ok {
			out = append(out, ev)
		}
	}
	return append(out, idx.extra...)
}

// Reconcile brings the calendar in line with tasks, given the events it
// currently holds. It stops at the first failed operation.
func (r *Reconciler) Reconcile(ctx context.Context, tasks []model.Task, existing []*calendar.Event) (*Result, error) {
	idx := buildIndex(existing)
	res := &Result{EventIDs: make(map[string]string, len(tasks))}
	log := r.logger()

	for i := range tasks {
		task := &tasks[i]
		target, err := util.ConvertTaskToCalendarEvent(task, r.Location, r.Duration)
		if err != nil {
			return res, err
		}

		current, found := idx.take(task.Identity)
		switch {
		case found && util.EventsEqual(current, target):
			res.Unchanged++
			res.EventIDs[task.Identity] = current.Id

		case found:
			updated, err := retry.Do(ctx, r.Retry, "update event", func(ctx context.Context) (*calendar.Event, error) {
				return r.Events.UpdateEvent(ctx, current.Id, target)
			})
			if err != nil {
				return res, fmt.Errorf("failed to update event for %q: %w", target.Summary, err)
			}
			res.Updated++
			res.EventIDs[task.Identity] = updated.Id
			log.WithField("summary", target.Summary).Info("updated event")
			if current.Description != target.Description {
				log.WithField("summary", target.Summary).Debugf("description changed:\n%s", descriptionDiff(current.Description, target.Description))
			}

		default:
			created, err := retry.Do(ctx, r.Retry, "create event", func(ctx context.Context) (*calendar.Event, error) {
				return r.Events.CreateEvent(ctx, target)
			})
			if err != nil {
				return res, fmt.Errorf("failed to create event for %q: %w", target.Summary, err)
			}
			res.Created++
			res.EventIDs[task.Identity] = created.Id
			log.WithField("summary", target.Summary).Info("created event")
		}
	}

	for _, ev := range idx.orphans() {
		err := r.Retry.Execute(ctx, "delete event", func(ctx context.Context) error {
			return r.Events.DeleteEvent(ctx, ev.Id)
		})
		if err != nil {
			return res, fmt.Errorf("failed to delete event %q: %w", ev.Summary, err)
		}
		res.Deleted++
		log.WithField("summary", ev.Summary).Info("deleted event")
	}
	return res, nil
}

func descriptionDiff(before, after string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "calendar",
		ToFile:   "sheet",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return text
}

func (r *Reconciler) logger() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}
