package model

import "strings"

// Unknown stands in for any empty task cell.
const Unknown = "Unknown"

// Columns is the number of positional columns in a task row.
const Columns = 9

// RawRow is one task row exactly as read from the sheet.
type RawRow struct {
	Origin     string
	Name       string
	DueDate    string
	DueTime    string
	Status     string
	Difficulty string
	Priority   string
	Notes      string
	Identity   string
}

// RowFromCells maps sheet cells to a RawRow. It is the only place that knows
// the column order; missing trailing cells read as empty.
func RowFromCells(cells []string) RawRow {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return RawRow{
		Origin:     cell(0),
		Name:       cell(1),
		DueDate:    cell(2),
		DueTime:    cell(3),
		Status:     cell(4),
		Difficulty: cell(5),
		Priority:   cell(6),
		Notes:      cell(7),
		Identity:   cell(8),
	}
}

// Cells returns the row in column order.
func (r RawRow) Cells() []string {
	return []string{r.Origin, r.Name, r.DueDate, r.DueTime, r.Status, r.Difficulty, r.Priority, r.Notes, r.Identity}
}

// Blank reports whether every cell is empty.
func (r RawRow) Blank() bool {
	for _, c := range r.Cells() {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Task is a normalized task row.
type Task struct {
	Origin     string
	Name       string
	DueDate    string
	DueTime    string
	Status     string
	Difficulty string
	Priority   string
	Notes      string
	Identity   string

	// Row is the 0-based position of the task within the task range.
	Row int
}

// Normalize fills empty cells with Unknown. A row without an identity gets one
// from newID; the returned bool reports that case.
func Normalize(raw RawRow, newID func() string) (Task, bool) {
	t := Task{
		Origin:     orUnknown(raw.Origin),
		Name:       orUnknown(raw.Name),
		DueDate:    orUnknown(raw.DueDate),
		DueTime:    orUnknown(raw.DueTime),
		Status:     orUnknown(raw.Status),
		Difficulty: orUnknown(raw.Difficulty),
		Priority:   orUnknown(raw.Priority),
		Notes:      orUnknown(raw.Notes),
		Identity:   strings.TrimSpace(raw.Identity),
	}
	if t.Identity != "" {
		return t, false
	}
	t.Identity = newID()
	return t, true
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

// Completed reports whether the status marks the task as done.
func (t *Task) Completed() bool {
	s := strings.ToLower(t.Status)
	if strings.Contains(s, "not done") || strings.Contains(s, "incomplete") {
		return false
	}
	return strings.Contains(s, "done") || strings.Contains(s, "complete")
}
