package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"gate-sync-backend/config"
	"gate-sync-backend/internal/upstream"
)

// PollClient is the slice of the upstream API the poller needs.
type PollClient interface {
	GetDashboardSummary(ctx context.Context, siteID string) (upstream.DashboardSummary, error)
	GetActiveEntries(ctx context.Context, siteID, entryType string) ([]upstream.Entry, error)
	GetAllOccupancy(ctx context.Context) ([]upstream.OccupancySnapshot, error)
	ListJobSites(ctx context.Context) ([]upstream.JobSite, error)
}

// MirrorRecorder persists what each poll observed: site metadata and
// occupancy samples. Optional.
type MirrorRecorder interface {
	UpsertJobSites(ctx context.Context, sites []upstream.JobSite) error
	RecordOccupancy(ctx context.Context, at time.Time, snapshots []upstream.OccupancySnapshot) error
}

// AlertDispatcher receives capacity warnings. Optional.
type AlertDispatcher interface {
	Dispatch(siteID, category string, current, capacity int)
}

// Poller periodically refetches the authoritative view from the REST API and
// applies it to the reconciler. Stream hints paper over the gap between
// polls; the poll result always wins.
type Poller struct {
	cfg     config.SyncConfig
	client  PollClient
	rec     *Reconciler
	mirror  MirrorRecorder
	alerts  AlertDispatcher
	trigger chan struct{}

	mu          sync.Mutex
	lastRefresh time.Time
	warned      map[string]bool // siteID/category pairs already in warning
}

// NewPoller creates a poller. mirror and alerts may be nil.
func NewPoller(cfg config.SyncConfig, client PollClient, rec *Reconciler, mirror MirrorRecorder, alerts AlertDispatcher) *Poller {
	return &Poller{
		cfg:     cfg,
		client:  client,
		rec:     rec,
		mirror:  mirror,
		alerts:  alerts,
		trigger: make(chan struct{}, 1),
		warned:  make(map[string]bool),
	}
}

// Run polls on the configured interval until the context is cancelled. An
// initial refresh happens immediately.
func (p *Poller) Run(ctx context.Context) {
	log.Println("Starting sync poller...")
	p.RefreshOnce(ctx)

	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync poller shutting down.")
			return
		case <-timer.C:
			p.RefreshOnce(ctx)
			timer.Reset(p.cfg.PollInterval)
		case <-p.trigger:
			if p.isStale() {
				p.RefreshOnce(ctx)
			}
		}
	}
}

// Trigger requests an out-of-band refresh. It is ignored while the view is
// fresher than the staleness threshold.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// LastRefresh returns the completion time of the last successful cycle.
func (p *Poller) LastRefresh() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefresh
}

func (p *Poller) isStale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.lastRefresh) >= p.cfg.StalenessThreshold
}

// RefreshOnce performs a single refetch cycle. Individual fetch failures are
// logged and skipped; whatever succeeded is applied.
func (p *Poller) RefreshOnce(ctx context.Context) {
	now := time.Now().UTC()
	ok := false

	if p.mirror != nil {
		if sites, err := p.client.ListJobSites(ctx); err != nil {
			log.Printf("poller: job site fetch failed: %v", err)
		} else if err := p.mirror.UpsertJobSites(ctx, sites); err != nil {
			log.Printf("poller: failed to mirror job sites: %v", err)
		}
	}

	if summary, err := p.client.GetDashboardSummary(ctx, p.cfg.JobSiteID); err != nil {
		log.Printf("poller: dashboard summary fetch failed: %v", err)
	} else {
		p.rec.ApplySummary(summary)
		ok = true
	}

	if entries, err := p.client.GetActiveEntries(ctx, p.cfg.JobSiteID, ""); err != nil {
		log.Printf("poller: active entries fetch failed: %v", err)
	} else {
		p.rec.ApplyRoster(entries)
		ok = true
	}

	if snapshots, err := p.client.GetAllOccupancy(ctx); err != nil {
		log.Printf("poller: occupancy fetch failed: %v", err)
	} else {
		p.rec.ApplyOccupancy(snapshots)
		ok = true

		if p.mirror != nil {
			if err := p.mirror.RecordOccupancy(ctx, now, snapshots); err != nil {
				log.Printf("poller: failed to record occupancy samples: %v", err)
			}
		}
		p.dispatchWarnings(snapshots)
	}

	if ok {
		p.mu.Lock()
		p.lastRefresh = time.Now()
		p.mu.Unlock()
	}
}

// dispatchWarnings notifies on categories that newly crossed the warning
// threshold. Categories that drop back below it are re-armed.
func (p *Poller) dispatchWarnings(snapshots []upstream.OccupancySnapshot) {
	if p.alerts == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, snap := range snapshots {
		categories := []struct {
			name     string
			current  int
			capacity int
			flag     bool
		}{
			{"vehicles", snap.Counts.Vehicles, snap.Capacity.Vehicles, snap.Warnings.Vehicles},
			{"visitors", snap.Counts.Visitors, snap.Capacity.Visitors, snap.Warnings.Visitors},
			{"trucks", snap.Counts.Trucks, snap.Capacity.Trucks, snap.Warnings.Trucks},
		}
		for _, cat := range categories {
			key := snap.JobSiteID + "/" + cat.name
			warning := CapacityWarning(cat.current, cat.capacity, cat.flag)
			if warning && !p.warned[key] {
				p.alerts.Dispatch(snap.JobSiteID, cat.name, cat.current, cat.capacity)
			}
			p.warned[key] = warning
		}
	}
}
