package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taskwatch/taskwatch/internal/kpi"
	"github.com/taskwatch/taskwatch/internal/pipeline"
	"github.com/taskwatch/taskwatch/internal/store"
	"github.com/taskwatch/taskwatch/internal/taskapi"
)

// defaultReportDays is the reporting window when the caller does not ask
// for one.
const defaultReportDays = 7

// TaskSource is the upstream API surface the service consumes. Satisfied
// by *taskapi.Client.
type TaskSource interface {
	ResolveTeam(ctx context.Context, preferred string) ([]taskapi.Team, string, error)
	ListAllTasks(ctx context.Context, teamID string) ([]taskapi.Task, error)
}

// SourceFactory builds a TaskSource for one client's credential.
type SourceFactory func(token string) TaskSource

// Store is the slice of the client store the service writes back to.
type Store interface {
	SetTeam(ctx context.Context, id, teamID string) error
}

// ClientRef identifies the client a payload was built for.
type ClientRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	TeamID string `json:"teamId"`
}

// KPIBlock is the flattened scalar KPI set. CSV export emits exactly this
// block as one row.
type KPIBlock struct {
	TotalTasks        int      `json:"totalTasks"`
	WIP               int      `json:"wip"`
	Completed         int      `json:"completed"`
	OverdueOpen       int      `json:"overdueOpen"`
	ThroughputWeek    int      `json:"throughputWeek"`
	LeadTimeAvgHours  *float64 `json:"leadTimeAvgHours"`
	CycleTimeAvgHours *float64 `json:"cycleTimeAvgHours"`
	SLACompliancePct  *float64 `json:"slaCompliancePct"`
}

// Payload is the dashboard JSON shape.
type Payload struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Client      ClientRef      `json:"client"`
	KPIs        KPIBlock       `json:"kpis"`
	Highlights  kpi.Highlights `json:"highlights"`
	Charts      kpi.Charts     `json:"charts"`
}

// Report is the richer process/assignee view.
type Report struct {
	GeneratedAt time.Time                `json:"generatedAt"`
	Client      ClientRef                `json:"client"`
	PeriodDays  int                      `json:"periodDays"`
	Processes   []pipeline.Block         `json:"processes"`
	Assignees   []pipeline.AssigneeBlock `json:"assignees"`
}

// Service builds dashboard payloads and reports from the upstream task
// API, caching payloads per client.
type Service struct {
	store     Store
	newSource SourceFactory
	cache     *payloadCache

	mu      sync.Mutex
	kpiOpts kpi.Options
	catalog map[string][]pipeline.CatalogEntry // remembered groups per client

	now func() time.Time
}

// NewService creates a Service. cacheTTL bounds how long a built payload
// is served before a rebuild.
func NewService(st Store, newSource SourceFactory, cacheTTL time.Duration, kpiOpts kpi.Options) *Service {
	return &Service{
		store:     st,
		newSource: newSource,
		cache:     newPayloadCache(cacheTTL),
		kpiOpts:   kpiOpts,
		catalog:   make(map[string][]pipeline.CatalogEntry),
		now:       time.Now,
	}
}

// RunCacheEviction blocks, evicting stale cached payloads until ctx is
// cancelled.
func (s *Service) RunCacheEviction(ctx context.Context) { s.cache.Run(ctx) }

// Invalidate drops any cached payload for a client. Called after a client's
// credential or workspace changes.
func (s *Service) Invalidate(clientID string) { s.cache.invalidate(clientID) }

// SetKPIOptions swaps the aggregation options. Payloads built before the
// swap age out of the cache on their own TTL.
func (s *Service) SetKPIOptions(opts kpi.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kpiOpts = opts
}

func (s *Service) kpiOptions() kpi.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kpiOpts
}

// BuildPayload fetches the client's full task listing and aggregates it
// into the dashboard payload. A fresh cached payload is served unless force
// is set. The resolved workspace is persisted the first time it is learned.
func (s *Service) BuildPayload(ctx context.Context, c store.Client, force bool) (*Payload, error) {
	if !force {
		if cached, ok := s.cache.get(c.ID); ok {
			return cached, nil
		}
	}

	teamID, tasks, err := s.fetchTasks(ctx, c)
	if err != nil {
		return nil, err
	}

	result := kpi.Aggregate(tasks, s.now(), s.kpiOptions())
	payload := &Payload{
		GeneratedAt: s.now(),
		Client:      ClientRef{ID: c.ID, Name: c.Name, Slug: c.Slug, TeamID: teamID},
		KPIs: KPIBlock{
			TotalTasks:        result.Totals.TotalTasks,
			WIP:               result.Totals.WIP,
			Completed:         result.Totals.Completed,
			OverdueOpen:       result.Totals.OverdueOpen,
			ThroughputWeek:    result.Totals.ThroughputWeek,
			LeadTimeAvgHours:  result.Metrics.LeadTimeAvgHours,
			CycleTimeAvgHours: result.Metrics.CycleTimeAvgHours,
			SLACompliancePct:  result.Metrics.SLACompliancePct,
		},
		Highlights: result.Highlights,
		Charts:     result.Charts,
	}
	s.cache.put(c.ID, payload)
	return payload, nil
}

// BuildReport builds the process/assignee view over a trailing window.
// Groups seen in earlier reports are merged back in so a list that went
// quiet still renders as an empty block.
func (s *Service) BuildReport(ctx context.Context, c store.Client, periodDays int) (*Report, error) {
	if periodDays <= 0 {
		periodDays = defaultReportDays
	}

	teamID, tasks, err := s.fetchTasks(ctx, c)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows := pipeline.RowsFromTasks(tasks, now)
	blocks := pipeline.BuildBlocks(rows, periodDays, now)
	catalog := s.rememberGroups(c.ID, blocks)
	blocks = pipeline.MergeCatalog(blocks, catalog, periodDays, now)

	return &Report{
		GeneratedAt: now,
		Client:      ClientRef{ID: c.ID, Name: c.Name, Slug: c.Slug, TeamID: teamID},
		PeriodDays:  periodDays,
		Processes:   blocks,
		Assignees:   pipeline.BuildAssigneeBlocks(rows, periodDays, now),
	}, nil
}

// Probe runs one full dashboard build, bypassing the cache. Used as the
// health engine's probe action.
func (s *Service) Probe(ctx context.Context, c store.Client) error {
	_, err := s.BuildPayload(ctx, c, true)
	return err
}

// Handshake re-resolves the client's workspace against the upstream API.
func (s *Service) Handshake(ctx context.Context, c store.Client) (string, error) {
	preferred := ""
	if c.TeamID != nil {
		preferred = *c.TeamID
	}
	_, teamID, err := s.newSource(c.Token).ResolveTeam(ctx, preferred)
	if err != nil {
		return "", fmt.Errorf("workspace handshake: %w", err)
	}
	return teamID, nil
}

// fetchTasks resolves the client's workspace (persisting it when first
// learned) and lists every task in it.
func (s *Service) fetchTasks(ctx context.Context, c store.Client) (string, []taskapi.Task, error) {
	source := s.newSource(c.Token)

	var teamID string
	if c.TeamID != nil && *c.TeamID != "" {
		teamID = *c.TeamID
	} else {
		_, resolved, err := source.ResolveTeam(ctx, "")
		if err != nil {
			return "", nil, fmt.Errorf("workspace handshake: %w", err)
		}
		teamID = resolved
		if err := s.store.SetTeam(ctx, c.ID, teamID); err != nil {
			return "", nil, fmt.Errorf("persisting workspace: %w", err)
		}
	}

	tasks, err := source.ListAllTasks(ctx, teamID)
	if err != nil {
		return "", nil, fmt.Errorf("listing tasks: %w", err)
	}
	return teamID, tasks, nil
}

// rememberGroups unions newly seen groups into the client's catalog and
// returns the full catalog sorted by label for stable merge order.
func (s *Service) rememberGroups(clientID string, blocks []pipeline.Block) []pipeline.CatalogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := s.catalog[clientID]
	seen := make(map[string]bool, len(known))
	for _, entry := range known {
		seen[entry.ID] = true
	}
	for _, block := range blocks {
		if !seen[block.ID] {
			known = append(known, pipeline.CatalogEntry{
				ID:        block.ID,
				Label:     block.Label,
				Hierarchy: block.Hierarchy,
			})
			seen[block.ID] = true
		}
	}
	sort.SliceStable(known, func(i, j int) bool { return known[i].Label < known[j].Label })
	s.catalog[clientID] = known

	out := make([]pipeline.CatalogEntry, len(known))
	copy(out, known)
	return out
}
