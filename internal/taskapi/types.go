package taskapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// EpochMillis is a millisecond-epoch timestamp as delivered by the upstream
// API. The API serializes these as strings ("1699999999999"), occasionally as
// bare numbers, and omits or nulls them when unset.
type EpochMillis string

// UnmarshalJSON accepts a quoted string, a bare number, or null.
func (m *EpochMillis) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*m = EpochMillis(v)
		return nil
	}
	*m = EpochMillis(s)
	return nil
}

// Time parses the timestamp. It returns nil for empty, non-numeric, or
// non-positive values — malformed upstream dates are treated as absent.
func (m EpochMillis) Time() *time.Time {
	s := strings.TrimSpace(string(m))
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

// Team is one workspace visible to a credential.
type Team struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Status is a task's workflow status.
type Status struct {
	Status string `json:"status"`
	Type   string `json:"type"` // "open" | "custom" | "closed" | ...
}

// Priority is a task's priority label. May be absent entirely.
type Priority struct {
	Priority string `json:"priority"`
}

// Assignee is one user assigned to a task.
type Assignee struct {
	ID       json.Number `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email,omitempty"`
}

// Container is a list, folder, or space reference on a task.
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Task is one task record as returned by the upstream API.
// All date fields are millisecond-epoch strings; use EpochMillis.Time.
type Task struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Status      Status      `json:"status"`
	Priority    *Priority   `json:"priority"`
	Assignees   []Assignee  `json:"assignees"`
	List        *Container  `json:"list"`
	Folder      *Container  `json:"folder"`
	Space       *Container  `json:"space"`
	DateCreated EpochMillis `json:"date_created"`
	StartDate   EpochMillis `json:"start_date"`
	DueDate     EpochMillis `json:"due_date"`
	DateClosed  EpochMillis `json:"date_closed"`
	DateUpdated EpochMillis `json:"date_updated"`
	URL         string      `json:"url"`
}

// taskPage is one page of the team task listing. The upstream signals the
// last page redundantly: an explicit flag, a total page count, or simply a
// short page.
type taskPage struct {
	Tasks    []Task `json:"tasks"`
	LastPage *bool  `json:"last_page"`
	Pages    *int   `json:"pages"`
}

type teamsResponse struct {
	Teams []Team `json:"teams"`
}
