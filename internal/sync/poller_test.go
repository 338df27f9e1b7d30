package sync

import (
	"context"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-sync-backend/config"
	"gate-sync-backend/internal/upstream"
)

// fakePollClient serves canned poll responses.
type fakePollClient struct {
	summary   upstream.DashboardSummary
	entries   []upstream.Entry
	snapshots []upstream.OccupancySnapshot
	sites     []upstream.JobSite
}

func (f *fakePollClient) GetDashboardSummary(ctx context.Context, siteID string) (upstream.DashboardSummary, error) {
	return f.summary, nil
}

func (f *fakePollClient) GetActiveEntries(ctx context.Context, siteID, entryType string) ([]upstream.Entry, error) {
	return f.entries, nil
}

func (f *fakePollClient) GetAllOccupancy(ctx context.Context) ([]upstream.OccupancySnapshot, error) {
	return f.snapshots, nil
}

func (f *fakePollClient) ListJobSites(ctx context.Context) ([]upstream.JobSite, error) {
	return f.sites, nil
}

// fakeMirror records what the poller persisted.
type fakeMirror struct {
	mu       stdsync.Mutex
	sites    []upstream.JobSite
	samples  []upstream.OccupancySnapshot
	sampleAt time.Time
}

func (f *fakeMirror) UpsertJobSites(ctx context.Context, sites []upstream.JobSite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sites = sites
	return nil
}

func (f *fakeMirror) RecordOccupancy(ctx context.Context, at time.Time, snapshots []upstream.OccupancySnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleAt = at
	f.samples = snapshots
	return nil
}

// fakeAlerts collects dispatched warnings.
type fakeAlerts struct {
	mu     stdsync.Mutex
	events []string
}

func (f *fakeAlerts) Dispatch(siteID, category string, current, capacity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, siteID+"/"+category)
}

func (f *fakeAlerts) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		JobSiteID:          "s1",
		PollInterval:       time.Hour,
		StalenessThreshold: 10 * time.Second,
	}
}

func TestRefreshOnceAppliesAuthoritativeView(t *testing.T) {
	client := &fakePollClient{
		summary: upstream.DashboardSummary{JobSiteID: "s1", TodayEntries: 3},
		entries: []upstream.Entry{onSiteEntry("e1", "s1")},
		snapshots: []upstream.OccupancySnapshot{
			{JobSiteID: "s1", Counts: upstream.CategoryCounts{Vehicles: 2}},
		},
		sites: []upstream.JobSite{{ID: "s1", Name: "North Gate"}},
	}
	mirror := &fakeMirror{}
	rec := NewReconciler("s1", nil, nil, time.Millisecond)
	defer rec.Close()

	// Stream hint gets superseded by the poll result.
	rec.ApplyRoster([]upstream.Entry{onSiteEntry("stale", "s1")})

	p := NewPoller(testSyncConfig(), client, rec, mirror, nil)
	p.RefreshOnce(context.Background())

	assert.Equal(t, 3, rec.Summary().TodayEntries)
	require.Len(t, rec.OnSite(), 1)
	assert.Equal(t, "e1", rec.OnSite()[0].ID)
	require.Len(t, rec.Occupancy(), 1)

	assert.Equal(t, "North Gate", mirror.sites[0].Name)
	assert.Len(t, mirror.samples, 1)
	assert.False(t, mirror.sampleAt.IsZero())
	assert.False(t, p.LastRefresh().IsZero())
}

func TestManualTriggerHonoursStaleness(t *testing.T) {
	client := &fakePollClient{}
	rec := NewReconciler("s1", nil, nil, time.Millisecond)
	defer rec.Close()

	p := NewPoller(testSyncConfig(), client, rec, nil, nil)

	// Fresh view: a manual trigger is not considered necessary.
	p.RefreshOnce(context.Background())
	assert.False(t, p.isStale())

	// Age the view past the threshold.
	p.mu.Lock()
	p.lastRefresh = time.Now().Add(-time.Minute)
	p.mu.Unlock()
	assert.True(t, p.isStale())
}

func TestWarningDispatchedOncePerCrossing(t *testing.T) {
	warnSnap := upstream.OccupancySnapshot{
		JobSiteID: "s1",
		Counts:    upstream.CategoryCounts{Vehicles: 9},
		Capacity:  upstream.CategoryCounts{Vehicles: 10, Visitors: 5, Trucks: 5},
	}
	calmSnap := warnSnap
	calmSnap.Counts.Vehicles = 4

	client := &fakePollClient{snapshots: []upstream.OccupancySnapshot{warnSnap}}
	alerts := &fakeAlerts{}
	rec := NewReconciler("s1", nil, nil, time.Millisecond)
	defer rec.Close()

	p := NewPoller(testSyncConfig(), client, rec, nil, alerts)

	p.RefreshOnce(context.Background())
	assert.Equal(t, []string{"s1/vehicles"}, alerts.dispatched())

	// Still in warning: no repeat.
	p.RefreshOnce(context.Background())
	assert.Equal(t, []string{"s1/vehicles"}, alerts.dispatched())

	// Drops below, then crosses again: re-armed.
	client.snapshots = []upstream.OccupancySnapshot{calmSnap}
	p.RefreshOnce(context.Background())
	client.snapshots = []upstream.OccupancySnapshot{warnSnap}
	p.RefreshOnce(context.Background())
	assert.Equal(t, []string{"s1/vehicles", "s1/vehicles"}, alerts.dispatched())
}
