// Package dashboard turns one client's task listing into the payloads the
// dashboard UI and exports consume. It owns workspace resolution, the
// per-client payload cache, and the CSV flattening of the KPI block. The
// service doubles as the health engine's prober: a successful payload
// build is a healthy integration.
package dashboard
