package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taskwatch/taskwatch/internal/alert"
	"github.com/taskwatch/taskwatch/internal/dashboard"
	"github.com/taskwatch/taskwatch/internal/health"
	"github.com/taskwatch/taskwatch/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* and /public/* endpoints.
// It reads and mutates client records through the store and delegates
// probing, reporting, and alert delivery to the wired engines.
type Handler struct {
	store      *store.SQLiteStore
	dash       *dashboard.Service
	engine     *health.Engine
	dispatcher *alert.Dispatcher
	mux        *http.ServeMux
}

// New creates a Handler wired to the given collaborators and registers all
// routes.
func New(st *store.SQLiteStore, dash *dashboard.Service, engine *health.Engine, dispatcher *alert.Dispatcher) http.Handler {
	h := &Handler{store: st, dash: dash, engine: engine, dispatcher: dispatcher, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.serviceHealth)
	h.mux.HandleFunc("/api/v1/clients", h.clients)
	h.mux.HandleFunc("/api/v1/clients/", h.clientSubtree) // extracts {id}[/action]
	h.mux.HandleFunc("/public/dashboard/", h.publicDashboard)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// serviceHealth returns GET /api/v1/health — fleet status counts.
func (h *Handler) serviceHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	clients, err := h.store.ListClients(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ServiceHealthResponse{
		Status:      "ok",
		ClientCount: len(clients),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, c := range clients {
		switch c.Status {
		case store.StatusConnected:
			resp.Connected++
		case store.StatusOffline:
			resp.Offline++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// clients handles GET (list) and POST (create) on /api/v1/clients.
func (h *Handler) clients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		clients, err := h.store.ListClients(r.Context())
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]ClientResponse, 0, len(clients))
		for _, c := range clients {
			out = append(out, toClientResponse(c))
		}
		jsonResp(w, http.StatusOK, out)

	case http.MethodPost:
		var req CreateClientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := h.store.CreateClient(r.Context(), store.Client{
			Name:  req.Name,
			Token: req.Token,
			Slug:  req.Slug,
		})
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonResp(w, http.StatusCreated, toClientResponse(created))

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// clientSubtree dispatches /api/v1/clients/{id} and /api/v1/clients/{id}/{action}.
func (h *Handler) clientSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/clients/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		h.clients(w, r)
		return
	}

	c, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		h.clientErr(w, err)
		return
	}

	switch action {
	case "":
		h.clientByID(w, r, c)
	case "settings":
		h.updateSettings(w, r, c)
	case "health":
		h.clientHealth(w, r, c)
	case "health-check":
		h.healthCheck(w, r, c)
	case "recover", "connect":
		h.recover(w, r, c)
	case "alerts/test", "webhook/test":
		h.testAlert(w, r, c)
	case "kpi":
		h.kpi(w, r, c)
	case "kpi/send":
		h.kpiSend(w, r, c)
	case "report":
		h.report(w, r, c)
	default:
		jsonErr(w, http.StatusNotFound, "unknown client action")
	}
}

// clientByID handles GET, PUT, DELETE on /api/v1/clients/{id}.
func (h *Handler) clientByID(w http.ResponseWriter, r *http.Request, c store.Client) {
	switch r.Method {
	case http.MethodGet:
		jsonResp(w, http.StatusOK, toClientResponse(c))

	case http.MethodPut:
		var req UpdateClientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			jsonErr(w, http.StatusBadRequest, "client name must not be empty")
			return
		}
		c.Name = req.Name
		if req.Slug != "" {
			c.Slug = req.Slug
		}
		if req.Token != "" {
			c.Token = req.Token
			// A new credential invalidates everything derived from the old one.
			h.dash.Invalidate(c.ID)
		}
		if err := h.store.UpdateClient(r.Context(), c); err != nil {
			h.clientErr(w, err)
			return
		}
		updated, err := h.store.GetClient(r.Context(), c.ID)
		if err != nil {
			h.clientErr(w, err)
			return
		}
		jsonResp(w, http.StatusOK, toClientResponse(updated))

	case http.MethodDelete:
		if err := h.store.DeleteClient(r.Context(), c.ID); err != nil {
			h.clientErr(w, err)
			return
		}
		h.dash.Invalidate(c.ID)
		w.WriteHeader(http.StatusNoContent)

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// updateSettings handles PUT /api/v1/clients/{id}/settings. Enabling alerts
// requires a valid channel and target; validation failures are 400 and have
// no side effects.
func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodPut {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var settings store.AlertSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if settings.AlertEnabled {
		_, target, err := resolveAlertRoute(settings)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		// The resolved target is what the engine alerts to, so it is always
		// written back, including a webhook target backed by webhookUrl.
		settings.AlertTarget = &target
	}

	if err := h.store.UpdateAlertSettings(r.Context(), c.ID, settings); err != nil {
		h.clientErr(w, err)
		return
	}
	updated, err := h.store.GetClient(r.Context(), c.ID)
	if err != nil {
		h.clientErr(w, err)
		return
	}
	jsonResp(w, http.StatusOK, toClientResponse(updated))
}

// clientHealth returns GET /api/v1/clients/{id}/health — the derived
// health snapshot only.
func (h *Handler) clientHealth(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, health.ComputeSnapshot(c))
}

// healthCheck handles POST /api/v1/clients/{id}/health-check. Manual checks
// never auto-recover.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	result := h.engine.RunHealthCheck(r.Context(), c, false)
	jsonResp(w, http.StatusOK, result)
}

// recover handles POST /api/v1/clients/{id}/recover and /connect: both run
// the workspace handshake and mark the client Connected on success.
func (h *Handler) recover(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	result := h.engine.RunRecovery(r.Context(), c)
	jsonResp(w, http.StatusOK, result)
}

// testAlert handles POST /api/v1/clients/{id}/alerts/test. The body may
// override channel and target; otherwise the stored settings are used.
func (h *Handler) testAlert(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TestAlertRequest
	if r.Body != nil {
		// An empty body means "use stored settings".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ch, target, err := requestedRoute(c, req)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	msg := alert.Message{
		Subject: fmt.Sprintf("TaskWatch test alert - %s", c.Name),
		Body:    fmt.Sprintf("This is a test alert for %s. If you received it, this channel is working.", c.Name),
		Payload: map[string]any{
			"type":       "test_alert",
			"clientId":   c.ID,
			"clientName": c.Name,
		},
	}
	result, err := h.dispatcher.Dispatch(r.Context(), ch, target, msg)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, TestAlertResponse{Delivered: result.Delivered, Reason: result.Reason})
}

// kpiSend handles POST /api/v1/clients/{id}/kpi/send: it builds the KPI
// payload and pushes a text summary over the client's configured alert
// channel, or over the channel/target named in the body.
func (h *Handler) kpiSend(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TestAlertRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ch, target, err := requestedRoute(c, req)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := h.dash.BuildPayload(r.Context(), c, false)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}

	msg := alert.Message{
		Subject: fmt.Sprintf("TaskWatch KPI summary - %s", c.Name),
		Body:    kpiSummary(c.Name, payload),
		Payload: map[string]any{
			"type":       "kpi_summary",
			"clientId":   c.ID,
			"clientName": c.Name,
			"kpis":       payload.KPIs,
		},
	}
	result, err := h.dispatcher.Dispatch(r.Context(), ch, target, msg)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, TestAlertResponse{Delivered: result.Delivered, Reason: result.Reason})
}

// kpiSummary renders the scalar KPIs as a short plain-text digest.
func kpiSummary(name string, p *dashboard.Payload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "KPI summary for %s\n", name)
	fmt.Fprintf(&b, "Total tasks: %d\n", p.KPIs.TotalTasks)
	fmt.Fprintf(&b, "In progress: %d\n", p.KPIs.WIP)
	fmt.Fprintf(&b, "Completed: %d\n", p.KPIs.Completed)
	fmt.Fprintf(&b, "Overdue open: %d\n", p.KPIs.OverdueOpen)
	fmt.Fprintf(&b, "Closed this week: %d\n", p.KPIs.ThroughputWeek)
	if v := p.KPIs.LeadTimeAvgHours; v != nil {
		fmt.Fprintf(&b, "Avg lead time: %.2fh\n", *v)
	}
	if v := p.KPIs.CycleTimeAvgHours; v != nil {
		fmt.Fprintf(&b, "Avg cycle time: %.2fh\n", *v)
	}
	if v := p.KPIs.SLACompliancePct; v != nil {
		fmt.Fprintf(&b, "SLA compliance: %.2f%%\n", *v)
	}
	return b.String()
}

// kpi handles GET /api/v1/clients/{id}/kpi. ?format=csv flattens the kpis
// block to one CSV row; ?refresh=1 bypasses the payload cache.
func (h *Handler) kpi(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	force := r.URL.Query().Get("refresh") == "1"
	payload, err := h.dash.BuildPayload(r.Context(), c, force)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		out, err := dashboard.KPICSV(payload)
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-kpis.csv", c.Slug))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
		return
	}
	jsonResp(w, http.StatusOK, payload)
}

// report handles GET /api/v1/clients/{id}/report?days=N.
func (h *Handler) report(w http.ResponseWriter, r *http.Request, c store.Client) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = parsed
	}

	report, err := h.dash.BuildReport(r.Context(), c, days)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, report)
}

// publicDashboard returns GET /public/dashboard/{slug} — the KPI payload
// for one client, addressed by its public slug. Served without an API key.
func (h *Handler) publicDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/public/dashboard/")
	if slug == "" || strings.Contains(slug, "/") {
		jsonErr(w, http.StatusNotFound, "client not found")
		return
	}

	c, err := h.store.GetClientBySlug(r.Context(), slug)
	if err != nil {
		h.clientErr(w, err)
		return
	}
	payload, err := h.dash.BuildPayload(r.Context(), c, false)
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, payload)
}

// --- helpers ----------------------------------------------------------------

// resolveAlertRoute checks that a settings payload names a usable channel
// and target, returning both. For the webhook channel the dedicated webhook
// URL field backs an empty target.
func resolveAlertRoute(settings store.AlertSettings) (alert.Channel, string, error) {
	if settings.AlertChannel == nil || *settings.AlertChannel == "" {
		return "", "", fmt.Errorf("alert channel is required when alerts are enabled")
	}
	ch, ok := alert.ParseChannel(*settings.AlertChannel)
	if !ok {
		return "", "", fmt.Errorf("unsupported alert channel %q", *settings.AlertChannel)
	}

	target := ""
	if settings.AlertTarget != nil {
		target = *settings.AlertTarget
	}
	if target == "" && ch == alert.ChannelWebhook && settings.WebhookURL != nil {
		target = *settings.WebhookURL
	}

	target = alert.NormalizeTarget(ch, target)
	if err := alert.ValidateTarget(ch, target); err != nil {
		return "", "", err
	}
	return ch, target, nil
}

// requestedRoute resolves the channel and target for an on-demand dispatch.
// Body fields override the stored settings: a bare webhookUrl implies the
// webhook channel, and a channel without a target falls back to the stored
// target for it.
func requestedRoute(c store.Client, req TestAlertRequest) (alert.Channel, string, error) {
	chName := req.Channel
	target := req.Target
	if target == "" && req.WebhookURL != "" {
		target = req.WebhookURL
		if chName == "" {
			chName = string(alert.ChannelWebhook)
		}
	}

	if chName == "" {
		return resolveAlertRoute(store.AlertSettings{
			AlertEnabled: true,
			AlertChannel: c.AlertChannel,
			AlertTarget:  c.AlertTarget,
			WebhookURL:   c.WebhookURL,
		})
	}

	ch, ok := alert.ParseChannel(chName)
	if !ok {
		return "", "", fmt.Errorf("unsupported alert channel %q", chName)
	}
	if target == "" {
		if c.AlertTarget != nil {
			target = *c.AlertTarget
		}
		if target == "" && ch == alert.ChannelWebhook && c.WebhookURL != nil {
			target = *c.WebhookURL
		}
	}

	target = alert.NormalizeTarget(ch, target)
	if err := alert.ValidateTarget(ch, target); err != nil {
		return "", "", err
	}
	return ch, target, nil
}

func (h *Handler) clientErr(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "client not found")
		return
	}
	jsonErr(w, http.StatusInternalServerError, err.Error())
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
