package sync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gate-sync-backend/internal/stream"
	"gate-sync-backend/internal/upstream"
)

// Message types understood by the reconciler. Anything else is ignored and
// left to the poller to converge.
const (
	MsgOccupancyUpdate = "occupancy_update"
	MsgEntryCreated    = "entry:created"
	MsgEntryUpdated    = "entry:updated"
)

// warningThresholdPct marks a category as near capacity at 90% utilization.
const warningThresholdPct = 90

// SummaryFetcher refetches the dashboard summary after a mutating stream hint.
type SummaryFetcher interface {
	GetDashboardSummary(ctx context.Context, siteID string) (upstream.DashboardSummary, error)
}

// ActivityRecorder persists observed entry activity. Optional.
type ActivityRecorder interface {
	RecordSighting(ctx context.Context, phase string, entry upstream.Entry) error
}

// Reconciler interprets event-stream messages into deterministic updates of
// the locally held view: occupancy snapshots, the on-site roster for the
// watched job site, and the dashboard summary. The stream is treated as a
// low-latency hint; the poller remains authoritative and every mutating hint
// is paired with a debounced summary refetch.
type Reconciler struct {
	siteID   string
	fetcher  SummaryFetcher
	recorder ActivityRecorder
	debounce time.Duration

	mu           sync.Mutex
	occupancy    []upstream.OccupancySnapshot
	onSite       []upstream.Entry
	summary      upstream.DashboardSummary
	refetchTimer *time.Timer
	closed       bool
}

// NewReconciler creates a reconciler for the given job site. recorder may be
// nil when no local persistence is wanted.
func NewReconciler(siteID string, fetcher SummaryFetcher, recorder ActivityRecorder, debounce time.Duration) *Reconciler {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Reconciler{
		siteID:   siteID,
		fetcher:  fetcher,
		recorder: recorder,
		debounce: debounce,
	}
}

// HandleMessage is the stream handler. It never panics: undecodable payloads
// and unknown types are logged and skipped.
func (r *Reconciler) HandleMessage(msg stream.Message) {
	switch msg.Type {
	case MsgOccupancyUpdate:
		var snapshots []upstream.OccupancySnapshot
		if err := json.Unmarshal(msg.Data, &snapshots); err != nil {
			log.Printf("sync: ignoring malformed occupancy update: %v", err)
			return
		}
		r.ApplyOccupancy(snapshots)

	case MsgEntryCreated:
		var entry upstream.Entry
		if err := json.Unmarshal(msg.Data, &entry); err != nil {
			log.Printf("sync: ignoring malformed entry:created payload: %v", err)
			return
		}
		r.record("created", entry)
		r.applyEntryCreated(entry)

	case MsgEntryUpdated:
		var entry upstream.Entry
		if err := json.Unmarshal(msg.Data, &entry); err != nil {
			log.Printf("sync: ignoring malformed entry:updated payload: %v", err)
			return
		}
		r.record("updated", entry)
		r.applyEntryUpdated(entry)

	default:
		// Not understood; the next poll corrects the view.
	}
}

// applyEntryCreated prepends the entry to the roster unless it belongs to a
// different site, already exited, or is a duplicate delivery.
func (r *Reconciler) applyEntryCreated(entry upstream.Entry) {
	if entry.JobSiteID != r.siteID {
		return
	}

	r.mu.Lock()
	if entry.IsOnSite() && !r.containsLocked(entry.ID) {
		r.onSite = append([]upstream.Entry{entry}, r.onSite...)
	}
	r.mu.Unlock()

	r.scheduleSummaryRefetch()
}

// applyEntryUpdated removes the entry from the roster when the update carries
// an exit time. An update without one mutates nothing.
func (r *Reconciler) applyEntryUpdated(entry upstream.Entry) {
	if entry.IsOnSite() {
		return
	}

	r.mu.Lock()
	kept := r.onSite[:0]
	for _, e := range r.onSite {
		if e.ID != entry.ID {
			kept = append(kept, e)
		}
	}
	r.onSite = kept
	r.mu.Unlock()

	r.scheduleSummaryRefetch()
}

func (r *Reconciler) containsLocked(id string) bool {
	for _, e := range r.onSite {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (r *Reconciler) record(phase string, entry upstream.Entry) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.recorder.RecordSighting(ctx, phase, entry); err != nil {
		log.Printf("sync: failed to record %s sighting for entry %s: %v", phase, entry.ID, err)
	}
}

// scheduleSummaryRefetch arms (or re-arms) the debounced dashboard refetch.
func (r *Reconciler) scheduleSummaryRefetch() {
	if r.fetcher == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.refetchTimer != nil {
		r.refetchTimer.Stop()
	}
	r.refetchTimer = time.AfterFunc(r.debounce, r.refetchSummary)
}

func (r *Reconciler) refetchSummary() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := r.fetcher.GetDashboardSummary(ctx, r.siteID)
	if err != nil {
		log.Printf("sync: summary refetch failed: %v", err)
		return
	}
	r.ApplySummary(summary)
}

// ApplyOccupancy replaces the occupancy snapshot list wholesale; the server
// is authoritative.
func (r *Reconciler) ApplyOccupancy(snapshots []upstream.OccupancySnapshot) {
	r.mu.Lock()
	r.occupancy = snapshots
	r.mu.Unlock()
}

// ApplyRoster replaces the on-site roster with the polled authoritative list.
func (r *Reconciler) ApplyRoster(entries []upstream.Entry) {
	r.mu.Lock()
	r.onSite = entries
	r.mu.Unlock()
}

// ApplySummary replaces the dashboard summary.
func (r *Reconciler) ApplySummary(summary upstream.DashboardSummary) {
	r.mu.Lock()
	r.summary = summary
	r.mu.Unlock()
}

// Occupancy returns a copy of the current occupancy snapshot list.
func (r *Reconciler) Occupancy() []upstream.OccupancySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]upstream.OccupancySnapshot, len(r.occupancy))
	copy(out, r.occupancy)
	return out
}

// OnSite returns a copy of the current on-site roster.
func (r *Reconciler) OnSite() []upstream.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]upstream.Entry, len(r.onSite))
	copy(out, r.onSite)
	return out
}

// Summary returns the current dashboard summary.
func (r *Reconciler) Summary() upstream.DashboardSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Close cancels any pending refetch timer. No callbacks fire afterwards.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.refetchTimer != nil {
		r.refetchTimer.Stop()
		r.refetchTimer = nil
	}
}

// CapacityPercent computes utilization as a percentage, clamped to 100. A
// zero or negative capacity always yields 0.
func CapacityPercent(current, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	pct := float64(current) / float64(capacity) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// CapacityWarning reports whether a category is near capacity: either the
// server flagged it, or utilization reached the warning threshold.
func CapacityWarning(current, capacity int, serverFlag bool) bool {
	if serverFlag {
		return true
	}
	if capacity <= 0 {
		return false
	}
	return current*100 >= capacity*warningThresholdPct
}
