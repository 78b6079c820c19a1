// Package identity gives every task row a stable identity and writes new
// identities back to the sheet.
//
// Writes are guarded optimistically: right before each write the whole task
// range is read again and compared with the snapshot taken at the start of the
// run. If anyone else edited the table in between, the run stops with a
// concurrent modification error. Identities already written stay written.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harrisonrobin/sheetsync/pkg/model"
	"github.com/harrisonrobin/sheetsync/pkg/retry"
	"github.com/harrisonrobin/sheetsync/pkg/syncerr"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sirupsen/logrus"
)

// RowStore is the tabular store holding the tasks.
type RowStore interface {
	ReadRange(ctx context.Context, rng string) ([]model.RawRow, error)
	WriteCell(ctx context.Context, cell, value string) error
}

// Layout locates the task range and identity cells.
type Layout interface {
	TaskRange() string
	IdentityCell(row int) string
}

// Assigner normalizes task rows and backfills missing identities.
type Assigner struct {
	Rows   RowStore
	Layout Layout
	Retry  *retry.Governor
	Log    logrus.FieldLogger

	// NewID generates identities. Defaults to random UUIDs.
	NewID func() string
}

// Assign reads the task table and returns one Task per non-blank row, in
// sheet order, each with a unique identity.
func (a *Assigner) Assign(ctx context.Context) ([]model.Task, error) {
	rng := a.Layout.TaskRange()
	snapshot, err := a.read(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to read task rows: %w", err)
	}

	newID := a.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}

	var (
		tasks   []model.Task
		pending []int // indexes into tasks
		seen    = make(map[string]int)
	)
	for i, raw := range snapshot {
		if raw.Blank() {
			continue
		}
		task, generated := model.Normalize(raw, newID)
		task.Row = i
		if !generated {
			if first, dup := seen[task.Identity]; dup {
				a.logger().WithFields(logrus.Fields{
					"row":       a.Layout.IdentityCell(i),
					"first_row": a.Layout.IdentityCell(first),
				}).Warn("duplicate task identity, assigning a new one")
				task.Identity = newID()
				generated = true
			}
		}
		seen[task.Identity] = i
		if generated {
			pending = append(pending, len(tasks))
		}
		tasks = append(tasks, task)
	}

	for _, ti := range pending {
		task := tasks[ti]
		if err := a.checkUnchanged(ctx, rng, snapshot); err != nil {
			return nil, err
		}

		cell := a.Layout.IdentityCell(task.Row)
		err := a.Retry.Execute(ctx, "write identity", func(ctx context.Context) error {
			return a.Rows.WriteCell(ctx, cell, task.Identity)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to write identity for %q: %w", task.Name, err)
		}
		snapshot[task.Row].Identity = task.Identity
		a.logger().WithFields(logrus.Fields{"cell": cell, "name": task.Name}).Info("assigned task identity")
	}
	return tasks, nil
}

func (a *Assigner) read(ctx context.Context, rng string) ([]model.RawRow, error) {
	return retry.Do(ctx, a.Retry, "read task rows", func(ctx context.Context) ([]model.RawRow, error) {
		return a.Rows.ReadRange(ctx, rng)
	})
}

// checkUnchanged re-reads the range and fails if it no longer matches snapshot.
func (a *Assigner) checkUnchanged(ctx context.Context, rng string, snapshot []model.RawRow) error {
	current, err := a.read(ctx, rng)
	if err != nil {
		return fmt.Errorf("failed to re-read task rows: %w", err)
	}
	row, ok := firstDifference(snapshot, current)
	if ok {
		return nil
	}

	var before, after model.RawRow
	if row < len(snapshot) {
		before = snapshot[row]
	}
	if row < len(current) {
		after = current[row]
	}
	return syncerr.Errorf(syncerr.KindConcurrentModification, "check task rows",
		"row %s changed since the sync started\n%s", a.Layout.IdentityCell(row), rowDiff(before, after))
}

// firstDifference compares two reads of the range cell by cell. Trailing
// blank rows are not significant. It returns the first differing row, or
// ok=true when the reads match.
func firstDifference(a, b []model.RawRow) (int, bool) {
	a, b = trimBlank(a), trimBlank(b)
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var ra, rb model.RawRow
		if i < len(a) {
			ra = a[i]
		}
		if i < len(b) {
			rb = b[i]
		}
		if ra != rb {
			return i, false
		}
	}
	return 0, true
}

func trimBlank(rows []model.RawRow) []model.RawRow {
	end := len(rows)
	for end > 0 && rows[end-1] == (model.RawRow{}) {
		end--
	}
	return rows[:end]
}

func rowDiff(before, after model.RawRow) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(before.Cells(), "\n") + "\n"),
		B:        difflib.SplitLines(strings.Join(after.Cells(), "\n") + "\n"),
		FromFile: "snapshot",
		ToFile:   "current",
		Context:  0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

func (a *Assigner) logger() logrus.FieldLogger {
	if a.Log != nil {
		return a.Log
	}
	return logrus.StandardLogger()
}
