package pipeline

import (
	"strings"
	"time"

	"github.com/taskwatch/taskwatch/internal/kpi"
	"github.com/taskwatch/taskwatch/internal/taskapi"
)

// Fallback labels for absent upstream fields.
const (
	labelNoStatus    = "No status"
	labelNoPriority  = "No priority"
	labelUntitled    = "Untitled"
	labelUnassigned  = "Unassigned"
	labelNoSpace     = "No space"
	labelNoFolder    = "No folder"
	labelUnnamedList = "Unnamed list"
	labelSpaceLevel  = "Space level"
)

// Row is one flattened task enriched with its hierarchy and assignee
// metadata. The grouper works on rows, never on raw API payloads.
type Row struct {
	ID         string
	Name       string
	URL        string
	Status     string
	StatusType string
	Priority   string
	Assignees  []string

	SpaceID    string
	SpaceName  string
	FolderID   string
	FolderName string
	ListID     string
	ListName   string

	Closed  bool
	Overdue bool

	StatusAgeHours float64

	StatusChangedAt *time.Time
	UpdatedAt       *time.Time
	ReferenceAt     *time.Time
	CreatedAt       *time.Time
	DueAt           *time.Time
}

// RowFromTask flattens one API task into a Row. now anchors the overdue
// check and the status age.
func RowFromTask(t taskapi.Task, now time.Time) Row {
	closedAt := t.DateClosed.Time()
	dueAt := t.DueDate.Time()
	updatedAt := t.DateUpdated.Time()
	createdAt := t.DateCreated.Time()

	closed := kpi.IsClosed(t)

	referenceAt := closedAt
	if referenceAt == nil {
		referenceAt = dueAt
	}

	ageAnchor := updatedAt
	if ageAnchor == nil {
		ageAnchor = createdAt
	}
	var ageHours float64
	if !closed && ageAnchor != nil && ageAnchor.Before(now) {
		ageHours = now.Sub(*ageAnchor).Hours()
	}

	var assignees []string
	for _, a := range t.Assignees {
		if name := strings.TrimSpace(a.Username); name != "" {
			assignees = append(assignees, name)
		}
	}

	var priority string
	if t.Priority != nil {
		priority = t.Priority.Priority
	}

	row := Row{
		ID:             t.ID,
		Name:           t.Name,
		URL:            t.URL,
		Status:         t.Status.Status,
		StatusType:     t.Status.Type,
		Priority:       priority,
		Assignees:      assignees,
		Closed:         closed,
		Overdue:        !closed && dueAt != nil && dueAt.Before(now),
		StatusAgeHours: ageHours,
		UpdatedAt:      updatedAt,
		ReferenceAt:    referenceAt,
		CreatedAt:      createdAt,
		DueAt:          dueAt,
	}
	if t.Space != nil {
		row.SpaceID = t.Space.ID
		row.SpaceName = t.Space.Name
	}
	if t.Folder != nil {
		row.FolderID = t.Folder.ID
		row.FolderName = t.Folder.Name
	}
	if t.List != nil {
		row.ListID = t.List.ID
		row.ListName = t.List.Name
	}
	return row
}

// RowsFromTasks flattens a full task listing.
func RowsFromTasks(tasks []taskapi.Task, now time.Time) []Row {
	rows := make([]Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, RowFromTask(t, now))
	}
	return rows
}

// eventCandidates is the timestamp priority order used to place a row on
// the trend timeline: the most recent status transition wins, then the last
// update, then the row's reference timestamp, then creation.
var eventCandidates = []func(Row) *time.Time{
	func(r Row) *time.Time { return r.StatusChangedAt },
	func(r Row) *time.Time { return r.UpdatedAt },
	func(r Row) *time.Time { return r.ReferenceAt },
	func(r Row) *time.Time { return r.CreatedAt },
}

// EventTime returns the first candidate timestamp that is present, or nil
// when the row carries no usable timestamp at all.
func EventTime(r Row) *time.Time {
	for _, candidate := range eventCandidates {
		if at := candidate(r); at != nil {
			return at
		}
	}
	return nil
}

// Identity is the grouping key of a row: list when known, then folder, then
// space. The hierarchy string locates the group for display.
type Identity struct {
	ID        string
	Label     string
	Hierarchy string
}

// identify resolves the finest available grouping level for a row.
func identify(r Row) Identity {
	if r.ListID != "" || strings.TrimSpace(r.ListName) != "" {
		id := r.ListID
		if id == "" {
			id = slug(r.ListName, "unnamed-list")
		}
		return Identity{
			ID:        "list:" + id,
			Label:     labelOr(r.ListName, labelUnnamedList),
			Hierarchy: labelOr(r.SpaceName, labelNoSpace) + " / " + labelOr(r.FolderName, labelNoFolder),
		}
	}
	if r.FolderID != "" || strings.TrimSpace(r.FolderName) != "" {
		id := r.FolderID
		if id == "" {
			id = slug(r.FolderName, "unnamed-folder")
		}
		return Identity{
			ID:        "folder:" + id,
			Label:     labelOr(r.FolderName, "Unnamed folder"),
			Hierarchy: labelOr(r.SpaceName, labelNoSpace),
		}
	}
	id := r.SpaceID
	if id == "" {
		id = slug(r.SpaceName, "unnamed-space")
	}
	return Identity{
		ID:        "space:" + id,
		Label:     labelOr(r.SpaceName, "Unnamed space"),
		Hierarchy: labelSpaceLevel,
	}
}

func labelOr(s, fallback string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return fallback
}

// slug lowercases a label and collapses non-alphanumeric runs to hyphens,
// for use as a stable identifier when the upstream id is missing.
func slug(label, fallback string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}
