// Package api implements the HTTP REST API for taskwatch.
//
// New(store, dashboard, engine, dispatcher) returns an http.Handler that
// serves:
//
//	GET    /api/v1/health                      — fleet status counts
//	GET    /api/v1/clients                     — all clients with health snapshots
//	POST   /api/v1/clients                     — create a client (201)
//	GET    /api/v1/clients/{id}                — one client
//	PUT    /api/v1/clients/{id}                — update name/slug/token
//	DELETE /api/v1/clients/{id}                — remove a client (204)
//	PUT    /api/v1/clients/{id}/settings       — alert settings; validates channel+target
//	GET    /api/v1/clients/{id}/health         — derived health snapshot
//	POST   /api/v1/clients/{id}/health-check   — manual probe, auto-recovery disabled
//	POST   /api/v1/clients/{id}/recover        — workspace handshake + reconnect
//	POST   /api/v1/clients/{id}/connect        — alias of recover for first connection
//	POST   /api/v1/clients/{id}/alerts/test    — test dispatch on a channel
//	POST   /api/v1/clients/{id}/webhook/test   — alias of alerts/test
//	GET    /api/v1/clients/{id}/kpi            — KPI payload; ?format=csv, ?refresh=1
//	POST   /api/v1/clients/{id}/kpi/send       — push KPI digest over the alert channel
//	GET    /api/v1/clients/{id}/report         — process/assignee report; ?days=N
//	GET    /public/dashboard/{slug}            — KPI payload by public slug, no auth
//
// All endpoints respond with Content-Type: application/json (except the CSV
// export) and 405 for unsupported methods. Validation failures are 400 with
// a human-readable error; upstream fetch failures are 502. WithAPIKey wraps
// the handler with header-based auth, exempting /public/.
package api
