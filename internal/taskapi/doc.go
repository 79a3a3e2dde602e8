// Package taskapi is the HTTP client for the upstream task-tracking API.
// It resolves workspaces for a credential and fetches complete task listings,
// paging until the upstream signals exhaustion.
package taskapi
