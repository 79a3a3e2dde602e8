package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"
)

const assigneeHierarchy = "Assignee metrics"

// AssigneeBlock is one person's rollup across every group. A row with N
// assignees contributes to N blocks.
type AssigneeBlock struct {
	ID              string       `json:"id"`
	Hierarchy       string       `json:"hierarchy"`
	Assignee        string       `json:"assignee"`
	Total           int          `json:"total"`
	Open            int          `json:"open"`
	Closed          int          `json:"closed"`
	Overdue         int          `json:"overdue"`
	HighPriority    int          `json:"highPriority"`
	AvgStatusAge    float64      `json:"avgStatusAgeHours"`
	CompletionPct   float64      `json:"completionPct"`
	Trend           []TrendPoint `json:"trend"`
	StatusBreakdown []StagePoint `json:"statusBreakdown"`
	Tasks           []TaskItem   `json:"tasks"`
}

type assigneeAcc struct {
	name                         string
	total, open, closed, overdue int
	highPriority                 int
	ageSum                       float64
	ageSamples                   int

	statusOrder []string
	statuses    map[string]*StagePoint

	eventsByDay map[string]int
	tasks       []TaskItem
}

// BuildAssigneeBlocks fans rows out per assignee and sorts the blocks by
// overdue, open, and total descending, then name. windowDays is clamped to
// [7, 14].
func BuildAssigneeBlocks(rows []Row, windowDays int, now time.Time) []AssigneeBlock {
	if len(rows) == 0 {
		return nil
	}
	span := clampWindow(windowDays, minAssigneeWindowDays)

	var order []string
	accs := make(map[string]*assigneeAcc)

	for _, row := range rows {
		for _, name := range rowAssignees(row) {
			acc, ok := accs[name]
			if !ok {
				acc = &assigneeAcc{
					name:        name,
					statuses:    make(map[string]*StagePoint),
					eventsByDay: make(map[string]int),
				}
				accs[name] = acc
				order = append(order, name)
			}

			acc.total++
			if row.Closed {
				acc.closed++
			} else {
				acc.open++
			}
			if row.Overdue {
				acc.overdue++
			}
			if isHighPriority(row.Priority) {
				acc.highPriority++
			}
			if row.StatusAgeHours > 0 {
				acc.ageSum += row.StatusAgeHours
				acc.ageSamples++
			}

			statusKey := labelOr(row.Status, labelNoStatus)
			entry, ok := acc.statuses[statusKey]
			if !ok {
				entry = &StagePoint{Status: statusKey}
				acc.statuses[statusKey] = entry
				acc.statusOrder = append(acc.statusOrder, statusKey)
			}
			entry.Value++
			if row.Overdue {
				entry.Overdue++
			}

			acc.tasks = append(acc.tasks, taskItem(row, name))

			if at := EventTime(row); at != nil {
				acc.eventsByDay[dayKey(*at)]++
			}
		}
	}

	blocks := make([]AssigneeBlock, 0, len(order))
	for _, name := range order {
		acc := accs[name]

		breakdown := make([]StagePoint, 0, len(acc.statusOrder))
		for _, key := range acc.statusOrder {
			breakdown = append(breakdown, *acc.statuses[key])
		}
		sort.SliceStable(breakdown, func(i, j int) bool {
			if breakdown[i].Value != breakdown[j].Value {
				return breakdown[i].Value > breakdown[j].Value
			}
			return breakdown[i].Status < breakdown[j].Status
		})

		var avgAge float64
		if acc.ageSamples > 0 {
			avgAge = math.Round(acc.ageSum/float64(acc.ageSamples)*100) / 100
		}

		blocks = append(blocks, AssigneeBlock{
			ID:              "assignee:" + slug(acc.name, "unassigned"),
			Hierarchy:       assigneeHierarchy,
			Assignee:        acc.name,
			Total:           acc.total,
			Open:            acc.open,
			Closed:          acc.closed,
			Overdue:         acc.overdue,
			HighPriority:    acc.highPriority,
			AvgStatusAge:    avgAge,
			CompletionPct:   completionPct(acc.closed, acc.total),
			Trend:           buildTrend(acc.eventsByDay, span, now),
			StatusBreakdown: breakdown,
			Tasks:           acc.tasks,
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Overdue != blocks[j].Overdue {
			return blocks[i].Overdue > blocks[j].Overdue
		}
		if blocks[i].Open != blocks[j].Open {
			return blocks[i].Open > blocks[j].Open
		}
		if blocks[i].Total != blocks[j].Total {
			return blocks[i].Total > blocks[j].Total
		}
		return blocks[i].Assignee < blocks[j].Assignee
	})
	return blocks
}

// rowAssignees deduplicates a row's assignees, falling back to the
// unassigned bucket when none are named.
func rowAssignees(row Row) []string {
	seen := make(map[string]bool, len(row.Assignees))
	var names []string
	for _, name := range row.Assignees {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		names = append(names, trimmed)
	}
	if len(names) == 0 {
		return []string{labelUnassigned}
	}
	return names
}

// isHighPriority matches the urgent tiers across common label conventions.
func isHighPriority(priority string) bool {
	p := strings.ToLower(priority)
	for _, marker := range []string{"p0", "p1", "urg", "high", "alta"} {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}
