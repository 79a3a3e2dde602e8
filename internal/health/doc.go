// Package health probes client integrations and keeps their health state
// current. The engine owns one probe cycle (counters, throttled alerts,
// auto-recovery); the monitor owns the background timers that feed clients
// into the engine in bounded batches.
package health
