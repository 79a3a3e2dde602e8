package kpi

import (
	"strconv"
	"testing"
	"time"

	"github.com/taskwatch/taskwatch/internal/taskapi"
)

var testNow = time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

func ms(t time.Time) taskapi.EpochMillis {
	return taskapi.EpochMillis(strconv.FormatInt(t.UnixMilli(), 10))
}

func openTask(id, status string) taskapi.Task {
	return taskapi.Task{
		ID:     id,
		Name:   "task " + id,
		Status: taskapi.Status{Status: status, Type: "custom"},
	}
}

func closedTask(id string, created, closed time.Time) taskapi.Task {
	return taskapi.Task{
		ID:          id,
		Name:        "task " + id,
		Status:      taskapi.Status{Status: "Done", Type: "closed"},
		DateCreated: ms(created),
		DateClosed:  ms(closed),
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	res := Aggregate(nil, testNow, Options{})

	if res.Totals.TotalTasks != 0 {
		t.Errorf("TotalTasks = %d, want 0", res.Totals.TotalTasks)
	}
	if len(res.Charts.ThroughputDaily) != 7 {
		t.Fatalf("ThroughputDaily has %d buckets, want 7", len(res.Charts.ThroughputDaily))
	}
	for i, b := range res.Charts.ThroughputDaily {
		if b.Count != 0 {
			t.Errorf("bucket[%d].Count = %d, want 0", i, b.Count)
		}
	}
	if res.Metrics.LeadTimeAvgHours != nil {
		t.Error("LeadTimeAvgHours: want nil for empty sample")
	}
	if res.Metrics.SLACompliancePct != nil {
		t.Error("SLACompliancePct: want nil with no eligible tasks")
	}
}

func TestAggregate_ClassificationPartition(t *testing.T) {
	tasks := []taskapi.Task{
		closedTask("c1", testNow.Add(-48*time.Hour), testNow.Add(-2*time.Hour)),
		closedTask("c2", testNow.Add(-72*time.Hour), testNow.Add(-24*time.Hour)),
		openTask("w1", "Doing"),
		openTask("w2", "In Review"),
		openTask("w3", ""), // no status name: counts as WIP
		openTask("b1", "Backlog"),
		openTask("b2", "A Fazer"),
		openTask("b3", "Pendente"),
	}

	res := Aggregate(tasks, testNow, Options{})

	if res.Totals.Completed != 2 {
		t.Errorf("Completed = %d, want 2", res.Totals.Completed)
	}
	if res.Totals.WIP != 3 {
		t.Errorf("WIP = %d, want 3", res.Totals.WIP)
	}
	otherOpen := res.Totals.TotalTasks - res.Totals.Completed - res.Totals.WIP
	if otherOpen != 3 {
		t.Errorf("backlog remainder = %d, want 3", otherOpen)
	}
}

func TestAggregate_CustomKeywords(t *testing.T) {
	tasks := []taskapi.Task{openTask("a", "Waiting Room"), openTask("b", "Doing")}
	res := Aggregate(tasks, testNow, Options{NotStartedKeywords: []string{"waiting"}})
	if res.Totals.WIP != 1 {
		t.Errorf("WIP = %d, want 1 (custom keyword excludes 'Waiting Room')", res.Totals.WIP)
	}
}

func TestAggregate_LeadTimeExact(t *testing.T) {
	created := testNow.Add(-36 * time.Hour)
	closed := testNow.Add(-12 * time.Hour)
	res := Aggregate([]taskapi.Task{closedTask("c", created, closed)}, testNow, Options{})

	if res.Metrics.LeadTimeAvgHours == nil {
		t.Fatal("LeadTimeAvgHours = nil, want 24")
	}
	if got := *res.Metrics.LeadTimeAvgHours; got != 24 {
		t.Errorf("LeadTimeAvgHours = %v, want 24", got)
	}
}

func TestAggregate_NegativeLeadTimeExcluded(t *testing.T) {
	// Close timestamp earlier than creation: excluded from the sample.
	res := Aggregate([]taskapi.Task{
		closedTask("bad", testNow, testNow.Add(-time.Hour)),
	}, testNow, Options{})

	if res.Metrics.LeadTimeAvgHours != nil {
		t.Errorf("LeadTimeAvgHours = %v, want nil (negative interval excluded)", *res.Metrics.LeadTimeAvgHours)
	}
	// The task still counts as completed.
	if res.Totals.Completed != 1 {
		t.Errorf("Completed = %d, want 1", res.Totals.Completed)
	}
}

func TestAggregate_CycleTimeFallsBackToCreation(t *testing.T) {
	created := testNow.Add(-10 * time.Hour)
	started := testNow.Add(-6 * time.Hour)
	closed := testNow.Add(-1 * time.Hour)

	withStart := closedTask("s", created, closed)
	withStart.StartDate = ms(started)
	withoutStart := closedTask("n", created, closed)

	res := Aggregate([]taskapi.Task{withStart, withoutStart}, testNow, Options{})
	if res.Metrics.CycleTimeAvgHours == nil {
		t.Fatal("CycleTimeAvgHours = nil")
	}
	// (5 + 9) / 2 = 7 hours.
	if got := *res.Metrics.CycleTimeAvgHours; got != 7 {
		t.Errorf("CycleTimeAvgHours = %v, want 7", got)
	}
}

func TestAggregate_SLACompliance(t *testing.T) {
	onTime := closedTask("ok", testNow.Add(-48*time.Hour), testNow.Add(-24*time.Hour))
	onTime.DueDate = ms(testNow.Add(-20 * time.Hour))
	late := closedTask("late", testNow.Add(-48*time.Hour), testNow.Add(-2*time.Hour))
	late.DueDate = ms(testNow.Add(-24 * time.Hour))
	noDue := closedTask("free", testNow.Add(-48*time.Hour), testNow.Add(-3*time.Hour))

	res := Aggregate([]taskapi.Task{onTime, late, noDue}, testNow, Options{})
	if res.Metrics.SLACompliancePct == nil {
		t.Fatal("SLACompliancePct = nil, want 50")
	}
	if got := *res.Metrics.SLACompliancePct; got != 50 {
		t.Errorf("SLACompliancePct = %v, want 50", got)
	}
}

func TestAggregate_SLARounding(t *testing.T) {
	mk := func(id string, met bool) taskapi.Task {
		task := closedTask(id, testNow.Add(-48*time.Hour), testNow.Add(-24*time.Hour))
		if met {
			task.DueDate = ms(testNow.Add(-20 * time.Hour))
		} else {
			task.DueDate = ms(testNow.Add(-47 * time.Hour))
		}
		return task
	}
	// 1 of 3 met: 33.333...% rounds to 33.33.
	res := Aggregate([]taskapi.Task{mk("a", true), mk("b", false), mk("c", false)}, testNow, Options{})
	if got := *res.Metrics.SLACompliancePct; got != 33.33 {
		t.Errorf("SLACompliancePct = %v, want 33.33", got)
	}
	// 2 of 3 met: 66.666...% rounds to 66.67, not truncated to 66.66.
	res = Aggregate([]taskapi.Task{mk("a", true), mk("b", true), mk("c", false)}, testNow, Options{})
	if got := *res.Metrics.SLACompliancePct; got != 66.67 {
		t.Errorf("SLACompliancePct = %v, want 66.67", got)
	}
}

func TestAggregate_ThroughputBuckets(t *testing.T) {
	tasks := []taskapi.Task{
		closedTask("today", testNow.Add(-90*time.Hour), testNow.Add(-time.Hour)),
		closedTask("today2", testNow.Add(-90*time.Hour), testNow.Add(-2*time.Hour)),
		closedTask("3daysago", testNow.Add(-200*time.Hour), testNow.AddDate(0, 0, -3)),
		closedTask("ancient", testNow.Add(-900*time.Hour), testNow.AddDate(0, 0, -30)),
	}
	res := Aggregate(tasks, testNow, Options{})

	buckets := res.Charts.ThroughputDaily
	if len(buckets) != 7 {
		t.Fatalf("got %d buckets, want 7", len(buckets))
	}
	if buckets[6].Count != 2 {
		t.Errorf("today bucket = %d, want 2", buckets[6].Count)
	}
	if buckets[3].Count != 1 {
		t.Errorf("3-days-ago bucket = %d, want 1", buckets[3].Count)
	}
	// A close outside the window contributes nothing, and the weekly total
	// is the sum of the visible buckets only.
	if res.Totals.ThroughputWeek != 3 {
		t.Errorf("ThroughputWeek = %d, want 3", res.Totals.ThroughputWeek)
	}
	if buckets[6].Label != testNow.Format("02/01") {
		t.Errorf("today label = %q, want %q", buckets[6].Label, testNow.Format("02/01"))
	}
}

func TestAggregate_OverdueScenario(t *testing.T) {
	// 10 open tasks: 5 overdue still in the backlog, 5 WIP with status "Doing".
	var tasks []taskapi.Task
	for i := 0; i < 5; i++ {
		task := openTask("od"+strconv.Itoa(i), "Backlog")
		task.DueDate = ms(testNow.Add(-time.Duration(i+1) * 24 * time.Hour))
		tasks = append(tasks, task)
	}
	for i := 0; i < 5; i++ {
		tasks = append(tasks, openTask("wip"+strconv.Itoa(i), "Doing"))
	}

	res := Aggregate(tasks, testNow, Options{})
	if res.Totals.WIP != 5 {
		t.Errorf("WIP = %d, want 5", res.Totals.WIP)
	}
	if res.Totals.OverdueOpen != 5 {
		t.Errorf("OverdueOpen = %d, want 5", res.Totals.OverdueOpen)
	}

	hl := res.Highlights.OverdueTasks
	if len(hl) > 8 {
		t.Fatalf("overdue highlights = %d entries, want <= 8", len(hl))
	}
	for i := 1; i < len(hl); i++ {
		if hl[i-1].DueDate != nil && hl[i].DueDate != nil && hl[i-1].DueDate.After(*hl[i].DueDate) {
			t.Errorf("overdue highlights not sorted ascending at %d", i)
		}
	}
}

func TestAggregate_HighlightCapsAndMissingDateOrder(t *testing.T) {
	var tasks []taskapi.Task
	for i := 0; i < 12; i++ {
		task := openTask("od"+strconv.Itoa(i), "Doing")
		task.DueDate = ms(testNow.Add(-time.Duration(12-i) * time.Hour))
		tasks = append(tasks, task)
	}
	// Closed tasks, one with an unparseable close date in the preview sort.
	for i := 0; i < 10; i++ {
		tasks = append(tasks, closedTask("c"+strconv.Itoa(i), testNow.Add(-100*time.Hour), testNow.Add(-time.Duration(i)*time.Hour)))
	}

	res := Aggregate(tasks, testNow, Options{})
	if len(res.Highlights.OverdueTasks) != 8 {
		t.Errorf("overdue highlights = %d, want capped 8", len(res.Highlights.OverdueTasks))
	}
	if len(res.Highlights.RecentDeliveries) != 8 {
		t.Errorf("recent deliveries = %d, want capped 8", len(res.Highlights.RecentDeliveries))
	}
	recent := res.Highlights.RecentDeliveries
	for i := 1; i < len(recent); i++ {
		if recent[i].ClosedAt != nil && recent[i-1].ClosedAt != nil && recent[i-1].ClosedAt.Before(*recent[i].ClosedAt) {
			t.Errorf("recent deliveries not sorted descending at %d", i)
		}
	}
}

func TestAggregate_BreakdownCapsAndOrder(t *testing.T) {
	var tasks []taskapi.Task
	for i := 0; i < 15; i++ {
		status := "Status " + strconv.Itoa(i)
		// Status 0 appears 3 times, others once.
		n := 1
		if i == 0 {
			n = 3
		}
		for j := 0; j < n; j++ {
			tasks = append(tasks, openTask("t"+strconv.Itoa(i)+"-"+strconv.Itoa(j), status))
		}
	}
	res := Aggregate(tasks, testNow, Options{})
	if len(res.Charts.StatusBreakdown) != 12 {
		t.Fatalf("StatusBreakdown = %d entries, want capped 12", len(res.Charts.StatusBreakdown))
	}
	if res.Charts.StatusBreakdown[0].Name != "Status 0" || res.Charts.StatusBreakdown[0].Value != 3 {
		t.Errorf("StatusBreakdown[0] = %+v, want {Status 0 3}", res.Charts.StatusBreakdown[0])
	}
}

func TestAggregate_MalformedDatesAbsorbed(t *testing.T) {
	task := taskapi.Task{
		ID:          "junk",
		Name:        "half-parsed",
		Status:      taskapi.Status{Status: "Doing", Type: "custom"},
		DateCreated: "not-a-date",
		DueDate:     "-42",
	}
	res := Aggregate([]taskapi.Task{task}, testNow, Options{})
	if res.Totals.TotalTasks != 1 || res.Totals.WIP != 1 {
		t.Errorf("totals = %+v, want total=1 wip=1", res.Totals)
	}
	if res.Totals.OverdueOpen != 0 {
		t.Errorf("OverdueOpen = %d, want 0 (unparseable due date is absent)", res.Totals.OverdueOpen)
	}
}

func TestIsClosed(t *testing.T) {
	byType := taskapi.Task{Status: taskapi.Status{Type: "closed"}}
	if !IsClosed(byType) {
		t.Error("status type closed: want IsClosed true")
	}
	byDate := taskapi.Task{Status: taskapi.Status{Type: "custom"}, DateClosed: ms(testNow)}
	if !IsClosed(byDate) {
		t.Error("close timestamp present: want IsClosed true")
	}
	open := taskapi.Task{Status: taskapi.Status{Type: "open"}}
	if IsClosed(open) {
		t.Error("open task: want IsClosed false")
	}
}
