package dashboard

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// kpiCSVHeader is the column order of the KPI export. It mirrors the
// KPIBlock field order exactly.
var kpiCSVHeader = []string{
	"totalTasks", "wip", "completed", "overdueOpen", "throughputWeek",
	"leadTimeAvgHours", "cycleTimeAvgHours", "slaCompliancePct",
}

// KPICSV renders a payload's KPI block as a two-line CSV document: header
// plus one value row. Null metrics become empty cells.
func KPICSV(p *Payload) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	row := []string{
		strconv.Itoa(p.KPIs.TotalTasks),
		strconv.Itoa(p.KPIs.WIP),
		strconv.Itoa(p.KPIs.Completed),
		strconv.Itoa(p.KPIs.OverdueOpen),
		strconv.Itoa(p.KPIs.ThroughputWeek),
		formatMetric(p.KPIs.LeadTimeAvgHours),
		formatMetric(p.KPIs.CycleTimeAvgHours),
		formatMetric(p.KPIs.SLACompliancePct),
	}
	if err := w.Write(kpiCSVHeader); err != nil {
		return "", fmt.Errorf("writing csv header: %w", err)
	}
	if err := w.Write(row); err != nil {
		return "", fmt.Errorf("writing csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}
	return buf.String(), nil
}

func formatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
