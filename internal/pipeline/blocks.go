package pipeline

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Trend window clamps. Process blocks accept a shorter window than
// assignee blocks so sparse pipelines still show day-level movement.
const (
	minProcessWindowDays  = 3
	minAssigneeWindowDays = 7
	maxWindowDays         = 14
)

// TrendPoint is one day of the current-vs-previous window comparison.
type TrendPoint struct {
	Label    string `json:"label"`
	Current  int    `json:"current"`
	Previous int    `json:"previous"`
}

// StagePoint is one workflow status within a block.
type StagePoint struct {
	Status  string `json:"status"`
	Value   int    `json:"value"`
	Overdue int    `json:"overdue"`
}

// AssigneeLoad is one assignee's open workload within a process block.
type AssigneeLoad struct {
	Assignee string `json:"assignee"`
	Value    int    `json:"value"`
	Overdue  int    `json:"overdue"`
}

// TaskItem is the drill-down row attached to a block.
type TaskItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	URL            string     `json:"url,omitempty"`
	Status         string     `json:"status"`
	StatusType     string     `json:"statusType"`
	Priority       string     `json:"priority"`
	Assignee       string     `json:"assignee"`
	Closed         bool       `json:"isClosed"`
	Overdue        bool       `json:"isOverdue"`
	UpdatedAt      *time.Time `json:"updatedAt"`
	DueAt          *time.Time `json:"dueAt"`
	StatusAgeHours float64    `json:"statusAgeHours"`
}

// Block is one process rollup keyed by list, folder, or space.
type Block struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	Hierarchy     string         `json:"hierarchy"`
	Total         int            `json:"total"`
	Open          int            `json:"open"`
	Closed        int            `json:"closed"`
	Overdue       int            `json:"overdue"`
	CompletionPct float64        `json:"completionPct"`
	Trend         []TrendPoint   `json:"trend"`
	Stages        []StagePoint   `json:"stages"`
	Assignees     []AssigneeLoad `json:"assignees"`
	Tasks         []TaskItem     `json:"tasks"`
}

// CatalogEntry names a known group so it renders even with zero tasks.
type CatalogEntry struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Hierarchy string `json:"hierarchy"`
}

type blockAcc struct {
	Identity
	total, open, closed, overdue int

	stageOrder []string
	stages     map[string]*StagePoint

	assigneeOrder []string
	assignees     map[string]*AssigneeLoad

	eventsByDay map[string]int
	tasks       []TaskItem
}

// BuildBlocks groups rows into process blocks at the finest available
// hierarchy level and sorts them by attention: overdue, then open, then
// total, all descending. windowDays is clamped to [3, 14].
func BuildBlocks(rows []Row, windowDays int, now time.Time) []Block {
	if len(rows) == 0 {
		return nil
	}
	span := clampWindow(windowDays, minProcessWindowDays)

	var order []string
	accs := make(map[string]*blockAcc)

	for _, row := range rows {
		identity := identify(row)
		acc, ok := accs[identity.ID]
		if !ok {
			acc = &blockAcc{
				Identity:    identity,
				stages:      make(map[string]*StagePoint),
				assignees:   make(map[string]*AssigneeLoad),
				eventsByDay: make(map[string]int),
			}
			accs[identity.ID] = acc
			order = append(order, identity.ID)
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

		stageKey := labelOr(row.Status, labelNoStatus)
		stage, ok := acc.stages[stageKey]
		if !ok {
			stage = &StagePoint{Status: stageKey}
			acc.stages[stageKey] = stage
			acc.stageOrder = append(acc.stageOrder, stageKey)
		}
		stage.Value++
		if row.Overdue {
			stage.Overdue++
		}

		assigneeKey := primaryAssignee(row)
		load, ok := acc.assignees[assigneeKey]
		if !ok {
			load = &AssigneeLoad{Assignee: assigneeKey}
			acc.assignees[assigneeKey] = load
			acc.assigneeOrder = append(acc.assigneeOrder, assigneeKey)
		}
		if !row.Closed {
			load.Value++
		}
		if row.Overdue {
			load.Overdue++
		}

		acc.tasks = append(acc.tasks, taskItem(row, assigneeKey))

		if at := EventTime(row); at != nil {
			acc.eventsByDay[dayKey(*at)]++
		}
	}

	blocks := make([]Block, 0, len(order))
	for _, id := range order {
		acc := accs[id]

		stages := make([]StagePoint, 0, len(acc.stageOrder))
		for _, key := range acc.stageOrder {
			stages = append(stages, *acc.stages[key])
		}
		sort.SliceStable(stages, func(i, j int) bool {
			if stages[i].Value != stages[j].Value {
				return stages[i].Value > stages[j].Value
			}
			return stages[i].Status < stages[j].Status
		})

		loads := make([]AssigneeLoad, 0, len(acc.assigneeOrder))
		for _, key := range acc.assigneeOrder {
			if load := acc.assignees[key]; load.Value > 0 || load.Overdue > 0 {
				loads = append(loads, *load)
			}
		}
		sort.SliceStable(loads, func(i, j int) bool {
			if loads[i].Overdue != loads[j].Overdue {
				return loads[i].Overdue > loads[j].Overdue
			}
			if loads[i].Value != loads[j].Value {
				return loads[i].Value > loads[j].Value
			}
			return loads[i].Assignee < loads[j].Assignee
		})

		blocks = append(blocks, Block{
			ID:            acc.ID,
			Label:         acc.Label,
			Hierarchy:     acc.Hierarchy,
			Total:         acc.total,
			Open:          acc.open,
			Closed:        acc.closed,
			Overdue:       acc.overdue,
			CompletionPct: completionPct(acc.closed, acc.total),
			Trend:         buildTrend(acc.eventsByDay, span, now),
			Stages:        stages,
			Assignees:     loads,
			Tasks:         acc.tasks,
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Overdue != blocks[j].Overdue {
			return blocks[i].Overdue > blocks[j].Overdue
		}
		if blocks[i].Open != blocks[j].Open {
			return blocks[i].Open > blocks[j].Open
		}
		return blocks[i].Total > blocks[j].Total
	})
	return blocks
}

// MergeCatalog overlays a reference catalog on built blocks: catalog
// entries come first in catalog order (empty groups render as zeroed
// blocks), then any block whose group the catalog does not know.
func MergeCatalog(blocks []Block, catalog []CatalogEntry, windowDays int, now time.Time) []Block {
	if len(catalog) == 0 {
		return blocks
	}
	span := clampWindow(windowDays, minProcessWindowDays)

	byID := make(map[string]Block, len(blocks))
	for _, block := range blocks {
		byID[block.ID] = block
	}

	merged := make([]Block, 0, len(catalog)+len(blocks))
	seen := make(map[string]bool, len(catalog))
	for _, entry := range catalog {
		if block, ok := byID[entry.ID]; ok {
			block.Label = entry.Label
			block.Hierarchy = entry.Hierarchy
			merged = append(merged, block)
		} else {
			merged = append(merged, emptyBlock(entry, span, now))
		}
		seen[entry.ID] = true
	}
	for _, block := range blocks {
		if !seen[block.ID] {
			merged = append(merged, block)
		}
	}
	return merged
}

func emptyBlock(entry CatalogEntry, span int, now time.Time) Block {
	trend := make([]TrendPoint, 0, span)
	for offset := span - 1; offset >= 0; offset-- {
		trend = append(trend, TrendPoint{Label: dayLabel(now.AddDate(0, 0, -offset))})
	}
	return Block{
		ID:        entry.ID,
		Label:     entry.Label,
		Hierarchy: entry.Hierarchy,
		Trend:     trend,
		Stages:    []StagePoint{},
		Assignees: []AssigneeLoad{},
		Tasks:     []TaskItem{},
	}
}

// buildTrend produces one point per day of the current window, pairing each
// day with the same slot one window earlier. When the current window has
// signal but the previous one is entirely zero, the previous series is
// backfilled from the current one shifted by a day so delta displays do not
// show a spurious jump from a zero baseline.
func buildTrend(eventsByDay map[string]int, span int, now time.Time) []TrendPoint {
	trend := make([]TrendPoint, 0, span)
	hasCurrent, hasPrevious := false, false
	for offset := span - 1; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset)
		prior := now.AddDate(0, 0, -(offset + span))
		point := TrendPoint{
			Label:    dayLabel(day),
			Current:  eventsByDay[dayKey(day)],
			Previous: eventsByDay[dayKey(prior)],
		}
		hasCurrent = hasCurrent || point.Current > 0
		hasPrevious = hasPrevious || point.Previous > 0
		trend = append(trend, point)
	}
	if hasCurrent && !hasPrevious {
		for i := len(trend) - 1; i > 0; i-- {
			trend[i].Previous = trend[i-1].Current
		}
		trend[0].Previous = trend[0].Current
	}
	return trend
}

func clampWindow(days, min int) int {
	if days < min {
		return min
	}
	if days > maxWindowDays {
		return maxWindowDays
	}
	return days
}

func completionPct(closed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(closed)/float64(total)*1000) / 10
}

func taskItem(row Row, assignee string) TaskItem {
	return TaskItem{
		ID:             row.ID,
		Name:           labelOr(row.Name, labelUntitled),
		URL:            row.URL,
		Status:         labelOr(row.Status, labelNoStatus),
		StatusType:     labelOr(row.StatusType, "custom"),
		Priority:       labelOr(row.Priority, labelNoPriority),
		Assignee:       assignee,
		Closed:         row.Closed,
		Overdue:        row.Overdue,
		UpdatedAt:      row.UpdatedAt,
		DueAt:          row.DueAt,
		StatusAgeHours: row.StatusAgeHours,
	}
}

// primaryAssignee is the single display assignee of a row: the first named
// assignee, or the unassigned bucket.
func primaryAssignee(row Row) string {
	for _, name := range row.Assignees {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return trimmed
		}
	}
	return labelUnassigned
}

func dayKey(t time.Time) string   { return t.Format("2006-01-02") }
func dayLabel(t time.Time) string { return t.Format("02/01") }
