// Package kpi turns a raw task listing into dashboard KPIs: totals,
// lead/cycle-time and SLA metrics, a fixed 7-day throughput series, grouped
// breakdowns, and bounded highlight lists. Aggregation is a pure function of
// the task list and a caller-supplied clock; it performs no I/O.
package kpi
