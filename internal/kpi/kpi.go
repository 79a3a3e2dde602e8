package kpi

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/taskwatch/taskwatch/internal/taskapi"
)

// Caps on the grouped and highlight sections of a Result.
const (
	maxStatusEntries = 12
	maxListEntries   = 10
	maxHighlights    = 8
)

// throughputDays is the fixed width of the daily throughput series.
const throughputDays = 7

// DefaultNotStartedKeywords marks statuses whose tasks have not left the
// backlog. Workflows name these in English or Portuguese; the set is
// configuration, not a contract — override it per deployment when workflows
// use other labels.
var DefaultNotStartedKeywords = []string{
	"todo", "to do", "backlog", "open", "new", "queue",
	"pendente", "a fazer", "pending",
}

// Fallback labels for absent upstream fields.
const (
	labelUnknownStatus = "Unknown"
	labelNoList        = "No list"
	labelUntitled      = "Untitled"
)

// Options tunes the aggregation.
type Options struct {
	// NotStartedKeywords overrides DefaultNotStartedKeywords when non-empty.
	NotStartedKeywords []string
}

func (o Options) keywords() []string {
	if len(o.NotStartedKeywords) > 0 {
		return o.NotStartedKeywords
	}
	return DefaultNotStartedKeywords
}

// Totals is the headline counter block.
type Totals struct {
	TotalTasks     int `json:"totalTasks"`
	WIP            int `json:"wip"`
	Completed      int `json:"completed"`
	OverdueOpen    int `json:"overdueOpen"`
	ThroughputWeek int `json:"throughputWeek"`
}

// Metrics holds the scalar flow metrics. A nil value means "no data" — a
// zero would be a valid measurement and must not be conflated with absence.
type Metrics struct {
	LeadTimeAvgHours  *float64 `json:"leadTimeAvgHours"`
	CycleTimeAvgHours *float64 `json:"cycleTimeAvgHours"`
	SLACompliancePct  *float64 `json:"slaCompliancePct"`
}

// DayBucket is one calendar day of the throughput series.
type DayBucket struct {
	Date  string `json:"date"`  // YYYY-MM-DD, local day
	Label string `json:"label"` // DD/MM
	Count int    `json:"count"`
}

// NameCount is one entry of a frequency breakdown.
type NameCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// TaskPreview is the compact task representation used in highlight lists.
type TaskPreview struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	ListName string     `json:"listName"`
	DueDate  *time.Time `json:"dueDate"`
	ClosedAt *time.Time `json:"closedAt"`
	URL      string     `json:"url,omitempty"`
}

// Charts groups the series rendered by dashboards.
type Charts struct {
	ThroughputDaily []DayBucket `json:"throughputDaily"`
	StatusBreakdown []NameCount `json:"statusBreakdown"`
	WIPByList       []NameCount `json:"wipByList"`
}

// Highlights are the bounded attention lists.
type Highlights struct {
	OverdueTasks     []TaskPreview `json:"overdueTasks"`
	RecentDeliveries []TaskPreview `json:"recentDeliveries"`
}

// Result is one full aggregation run. It is recomputed on every call and
// never persisted.
type Result struct {
	Totals     Totals     `json:"totals"`
	Metrics    Metrics    `json:"metrics"`
	Charts     Charts     `json:"charts"`
	Highlights Highlights `json:"highlights"`
}

// IsClosed reports whether a task is finished: a closed status type, or any
// parseable close timestamp regardless of status.
func IsClosed(t taskapi.Task) bool {
	if strings.EqualFold(t.Status.Type, "closed") {
		return true
	}
	return t.DateClosed.Time() != nil
}

// IsInProgress reports whether an open task has left the not-started state.
// A task with no status name counts as in progress.
func IsInProgress(t taskapi.Task, notStarted []string) bool {
	if IsClosed(t) {
		return false
	}
	name := strings.ToLower(strings.TrimSpace(t.Status.Status))
	if name == "" {
		return true
	}
	for _, kw := range notStarted {
		if strings.Contains(name, kw) {
			return false
		}
	}
	return true
}

// Aggregate derives all dashboard KPIs from a flat task list. It is a pure
// function of its inputs: now fixes the day buckets and the overdue cutoff.
// Malformed task fields are treated as absent, never as errors.
func Aggregate(tasks []taskapi.Task, now time.Time, opts Options) *Result {
	keywords := opts.keywords()

	statusCounts := newCounter()
	wipByList := newCounter()

	var (
		completed  []taskapi.Task
		wip        int
		leadHours  []float64
		cycleHours []float64
		overdue    []TaskPreview
		recent     []TaskPreview

		slaEligible int
		slaOnTime   int
	)

	for _, task := range tasks {
		statusCounts.add(labelOr(task.Status.Status, labelUnknownStatus))

		createdAt := task.DateCreated.Time()
		startedAt := task.StartDate.Time()
		if startedAt == nil {
			startedAt = createdAt
		}
		closedAt := task.DateClosed.Time()
		dueDate := task.DueDate.Time()

		if IsClosed(task) && closedAt != nil {
			completed = append(completed, task)
			recent = append(recent, preview(task))
			if createdAt != nil && !closedAt.Before(*createdAt) {
				leadHours = append(leadHours, closedAt.Sub(*createdAt).Hours())
			}
			if startedAt != nil && !closedAt.Before(*startedAt) {
				cycleHours = append(cycleHours, closedAt.Sub(*startedAt).Hours())
			}
			if dueDate != nil {
				slaEligible++
				if !closedAt.After(*dueDate) {
					slaOnTime++
				}
			}
			continue
		}

		if dueDate != nil && dueDate.Before(now) {
			overdue = append(overdue, preview(task))
		}
		if IsInProgress(task, keywords) {
			wip++
			listName := labelNoList
			if task.List != nil && strings.TrimSpace(task.List.Name) != "" {
				listName = task.List.Name
			}
			wipByList.add(listName)
		}
	}

	buckets, index := dayBuckets(now)
	for _, task := range completed {
		closedAt := task.DateClosed.Time()
		if closedAt == nil {
			continue
		}
		if i, ok := index[dayKey(*closedAt)]; ok {
			buckets[i].Count++
		}
	}
	throughputWeek := 0
	for _, b := range buckets {
		throughputWeek += b.Count
	}

	var slaPct *float64
	if slaEligible > 0 {
		slaPct = round2(float64(slaOnTime) / float64(slaEligible) * 100)
	}

	sortPreviews(overdue, byDueAsc)
	sortPreviews(recent, byClosedDesc)

	return &Result{
		Totals: Totals{
			TotalTasks:     len(tasks),
			WIP:            wip,
			Completed:      len(completed),
			OverdueOpen:    len(overdue),
			ThroughputWeek: throughputWeek,
		},
		Metrics: Metrics{
			LeadTimeAvgHours:  mean(leadHours),
			CycleTimeAvgHours: mean(cycleHours),
			SLACompliancePct:  slaPct,
		},
		Charts: Charts{
			ThroughputDaily: buckets,
			StatusBreakdown: statusCounts.top(maxStatusEntries),
			WIPByList:       wipByList.top(maxListEntries),
		},
		Highlights: Highlights{
			OverdueTasks:     cap8(overdue),
			RecentDeliveries: cap8(recent),
		},
	}
}

// counter is a frequency map that remembers first-seen order so ties sort
// stably by input order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(name string) {
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// top returns up to n entries sorted by count descending.
func (c *counter) top(n int) []NameCount {
	out := make([]NameCount, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, NameCount{Name: name, Value: c.counts[name]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// dayBuckets builds the fixed 7-day zero-filled series ending today (local
// day boundaries) plus an index from day key to bucket position.
func dayBuckets(now time.Time) ([]DayBucket, map[string]int) {
	buckets := make([]DayBucket, 0, throughputDays)
	index := make(map[string]int, throughputDays)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for offset := throughputDays - 1; offset >= 0; offset-- {
		day := midnight.AddDate(0, 0, -offset)
		key := dayKey(day)
		index[key] = len(buckets)
		buckets = append(buckets, DayBucket{Date: key, Label: day.Format("02/01")})
	}
	return buckets, index
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func preview(t taskapi.Task) TaskPreview {
	listName := labelNoList
	if t.List != nil && strings.TrimSpace(t.List.Name) != "" {
		listName = t.List.Name
	}
	return TaskPreview{
		ID:       t.ID,
		Name:     labelOr(t.Name, labelUntitled),
		Status:   labelOr(t.Status.Status, labelUnknownStatus),
		ListName: listName,
		DueDate:  t.DueDate.Time(),
		ClosedAt: t.DateClosed.Time(),
		URL:      t.URL,
	}
}

func labelOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// mean returns the arithmetic mean rounded to 2 decimals, or nil for an
// empty sample.
func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return round2(sum / float64(len(values)))
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

type previewLess func(a, b TaskPreview) bool

// byDueAsc orders by due date ascending; missing due dates sort last.
func byDueAsc(a, b TaskPreview) bool {
	switch {
	case a.DueDate == nil:
		return false
	case b.DueDate == nil:
		return true
	default:
		return a.DueDate.Before(*b.DueDate)
	}
}

// byClosedDesc orders by close date descending; missing close dates sort last.
func byClosedDesc(a, b TaskPreview) bool {
	switch {
	case a.ClosedAt == nil:
		return false
	case b.ClosedAt == nil:
		return true
	default:
		return a.ClosedAt.After(*b.ClosedAt)
	}
}

func sortPreviews(list []TaskPreview, less previewLess) {
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
}

func cap8(list []TaskPreview) []TaskPreview {
	if len(list) > maxHighlights {
		return list[:maxHighlights]
	}
	return list
}
