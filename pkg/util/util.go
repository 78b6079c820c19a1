package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/sheetsync/pkg/model"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"google.golang.org/api/calendar/v3"
)

// IdentityProperty is the private extended property holding the task identity.
const IdentityProperty = "task_id"

const completedPrefix = "✓"

// dueLayouts are tried in order against "<due date> <due time>".
var dueLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 3:04 PM",
}

// ParseDue resolves a task's due date and time to an instant in loc.
func ParseDue(task *model.Task, loc *time.Location) (time.Time, error) {
	if task.DueDate == model.Unknown || task.DueTime == model.Unknown {
		return time.Time{}, syncerr.Errorf(syncerr.KindDateParse, "parse due", "task %q has no due date or time", task.Name)
	}
	local := task.DueDate + " " + task.DueTime
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, local, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, syncerr.Errorf(syncerr.KindDateParse, "parse due", "task %q: unrecognized due date/time %q", task.Name, local)
}

// ConvertTaskToCalendarEvent projects a task onto the event that should
// represent it. The event lasts dur from the due instant.
func ConvertTaskToCalendarEvent(task *model.Task, loc *time.Location, dur time.Duration) (*calendar.Event, error) {
	if task == nil {
		return nil, fmt.Errorf("could not convert nil Task")
	}
	if loc == nil {
		loc = time.Local
	}

	start, err := ParseDue(task, loc)
	if err != nil {
		return nil, err
	}
	end := start.Add(dur)

	summary := fmt.Sprintf("%s: %s", task.Origin, task.Name)
	if task.Completed() {
		summary = fmt.Sprintf("%s %s", completedPrefix, summary)
	}

	var desc strings.Builder
	desc.WriteString(fmt.Sprintf("Difficulty: %s\n", task.Difficulty))
	desc.WriteString(fmt.Sprintf("Priority: %s\n", task.Priority))
	desc.WriteString(fmt.Sprintf("Notes: %s", task.Notes))

	return &calendar.Event{
		Summary:     summary,
		Description: desc.String(),
		Start:       eventDateTime(start, loc),
		End:         eventDateTime(end, loc),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				IdentityProperty: task.Identity,
			},
		},
	}, nil
}

func eventDateTime(t time.Time, loc *time.Location) *calendar.EventDateTime {
	edt := &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	// "Local" is not an IANA name the API accepts; the RFC3339 offset is enough.
	if name := loc.String(); name != "Local" {
		edt.TimeZone = name
	}
	return edt
}

// EventIdentity returns the task identity embedded in an event, if any.
func EventIdentity(event *calendar.Event) (string, bool) {
	if event == nil || event.ExtendedProperties == nil {
		return "", false
	}
	id, ok := event.ExtendedProperties.Private[IdentityProperty]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// EventsEqual reports whether an existing event already matches the projected
// one. Only summary, description and the start/end instants are compared;
// time zone labels and the identity are ignored. An existing event whose times
// cannot be read never matches.
func EventsEqual(existing, projected *calendar.Event) bool {
	if existing == nil || projected == nil {
		return existing == projected
	}
	if existing.Summary != projected.Summary || existing.Description != projected.Description {
		return false
	}
	return sameInstant(existing.Start, projected.Start) && sameInstant(existing.End, projected.End)
}

func sameInstant(a, b *calendar.EventDateTime) bool {
	ta, err := EventInstant(a)
	if err != nil {
		return false
	}
	tb, err := EventInstant(b)
	if err != nil {
		return false
	}
	return ta.Equal(tb)
}

// EventInstant resolves an EventDateTime to an absolute time. All-day dates
// resolve to midnight in the event's own time zone, or UTC without one.
func EventInstant(edt *calendar.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	if edt.DateTime != "" {
		return time.Parse(time.RFC3339, edt.DateTime)
	}
	if edt.Date != "" {
		loc := time.UTC
		if edt.TimeZone != "" {
			if l, err := time.LoadLocation(edt.TimeZone); err == nil {
				loc = l
			}
		}
		return time.ParseInLocation("2006-01-02", edt.Date, loc)
	}
	return time.Time{}, fmt.Errorf("event time has neither dateTime nor date")
}
