// Package store persists the client fleet in SQLite. Health counters are
// mutated with single-statement increments so concurrent probes of the same
// client cannot race-lose an update.
package store
