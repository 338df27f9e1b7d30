package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gate-sync-backend/config"
	"gate-sync-backend/internal/model"
	"gate-sync-backend/internal/stream"
	"gate-sync-backend/internal/sync"
	"gate-sync-backend/internal/upstream"
)

// fakeStore serves canned history data to the handlers.
type fakeStore struct {
	sightings []model.EntrySighting
	samples   []model.OccupancySample

	gotSiteID string
	gotLimit  int
	gotFrom   time.Time
	gotTo     time.Time
}

func (f *fakeStore) DB() *gorm.DB { return nil }

func (f *fakeStore) UpsertJobSites(ctx context.Context, sites []upstream.JobSite) error { return nil }

func (f *fakeStore) RecordOccupancy(ctx context.Context, at time.Time, snapshots []upstream.OccupancySnapshot) error {
	return nil
}

func (f *fakeStore) RecordSighting(ctx context.Context, phase string, entry upstream.Entry) error {
	return nil
}

func (f *fakeStore) RecentSightings(ctx context.Context, siteID string, limit int) ([]model.EntrySighting, error) {
	f.gotSiteID = siteID
	f.gotLimit = limit
	return f.sightings, nil
}

func (f *fakeStore) OccupancyHistory(ctx context.Context, siteID string, from, to time.Time) ([]model.OccupancySample, error) {
	f.gotSiteID = siteID
	f.gotFrom = from
	f.gotTo = to
	return f.samples, nil
}

func newTestHandler(t *testing.T, s *fakeStore) (*Handler, *sync.Reconciler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := sync.NewReconciler("s1", nil, nil, time.Millisecond)
	t.Cleanup(rec.Close)

	poller := sync.NewPoller(config.SyncConfig{
		JobSiteID:          "s1",
		PollInterval:       time.Hour,
		StalenessThreshold: 10 * time.Second,
	}, nil, rec, nil, nil)

	sc := stream.NewClient(stream.Options{Token: "t"})
	return NewHandler(s, rec, poller, sc, nil, "s1"), rec
}

func performRequest(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestGetOccupancy(t *testing.T) {
	h, rec := newTestHandler(t, &fakeStore{})
	rec.ApplyOccupancy([]upstream.OccupancySnapshot{
		{
			JobSiteID: "s1",
			Counts:    upstream.CategoryCounts{Vehicles: 9, Visitors: 1},
			Capacity:  upstream.CategoryCounts{Vehicles: 10, Visitors: 5},
			Warnings:  upstream.CategoryFlags{Trucks: true},
		},
	})

	r := gin.New()
	r.GET("/api/occupancy", h.GetOccupancy)
	w := performRequest(r, http.MethodGet, "/api/occupancy")

	require.Equal(t, http.StatusOK, w.Code)

	var got []occupancyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].JobSiteID)
	assert.Equal(t, 90.0, got[0].Vehicles.Percent)
	assert.True(t, got[0].Vehicles.Warning, "90% must carry the warning flag")
	assert.Equal(t, 20.0, got[0].Visitors.Percent)
	assert.False(t, got[0].Visitors.Warning)
	assert.True(t, got[0].Trucks.Warning, "server-side flag must be honoured even at zero count")
	assert.Equal(t, 0.0, got[0].Trucks.Percent, "zero capacity must not divide")
}

func TestGetOnSite(t *testing.T) {
	h, rec := newTestHandler(t, &fakeStore{})
	rec.ApplyRoster([]upstream.Entry{
		{ID: "e1", EntryType: upstream.EntryTypeVehicle, JobSiteID: "s1", EntryTime: time.Now()},
		{ID: "e2", EntryType: upstream.EntryTypeTruck, JobSiteID: "s1", EntryTime: time.Now()},
	})

	r := gin.New()
	r.GET("/api/sites/:site_id/onsite", h.GetOnSite)

	t.Run("unknown site is a 404", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/sites/other/onsite")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "not watched")
	})

	t.Run("full roster", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/sites/s1/onsite")
		require.Equal(t, http.StatusOK, w.Code)

		var got []upstream.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 2)
	})

	t.Run("filtered by entry type", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/sites/s1/onsite?entry_type=truck")
		require.Equal(t, http.StatusOK, w.Code)

		var got []upstream.Entry
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "e2", got[0].ID)
	})
}

func TestGetDashboard(t *testing.T) {
	h, rec := newTestHandler(t, &fakeStore{})
	rec.ApplySummary(upstream.DashboardSummary{JobSiteID: "s1", TodayEntries: 4})

	r := gin.New()
	r.GET("/api/dashboard", h.GetDashboard)
	w := performRequest(r, http.MethodGet, "/api/dashboard")

	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Summary     upstream.DashboardSummary `json:"summary"`
		LastRefresh *string                   `json:"last_refresh"`
		Stream      map[string]any            `json:"stream"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 4, got.Summary.TodayEntries)
	assert.Nil(t, got.LastRefresh, "no poll yet, last_refresh must be null")
	assert.Equal(t, "idle", got.Stream["state"])
	assert.Equal(t, false, got.Stream["connected"])
}

func TestTriggerRefresh(t *testing.T) {
	h, _ := newTestHandler(t, &fakeStore{})

	r := gin.New()
	r.POST("/api/refresh", h.TriggerRefresh)

	w := performRequest(r, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)

	// Repeated triggers must not block even with nobody draining them.
	w = performRequest(r, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestGetRecentActivity(t *testing.T) {
	s := &fakeStore{sightings: []model.EntrySighting{{EntryID: "e1", Phase: "entry"}}}
	h, _ := newTestHandler(t, s)

	r := gin.New()
	r.GET("/api/history/entries", h.GetRecentActivity)

	t.Run("default limit", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/history/entries?job_site_id=s1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 50, s.gotLimit)
		assert.Equal(t, "s1", s.gotSiteID)
	})

	t.Run("explicit limit", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/history/entries?limit=10")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 10, s.gotLimit)
	})

	for _, bad := range []string{"0", "-5", "501", "ten"} {
		t.Run("rejects limit "+bad, func(t *testing.T) {
			w := performRequest(r, http.MethodGet, "/api/history/entries?limit="+bad)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetOccupancyHistory(t *testing.T) {
	s := &fakeStore{samples: []model.OccupancySample{{JobSiteID: "s1", Vehicles: 3}}}
	h, _ := newTestHandler(t, s)

	r := gin.New()
	r.GET("/api/history/occupancy", h.GetOccupancyHistory)

	t.Run("requires job_site_id", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/history/occupancy")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed timestamps", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/api/history/occupancy?job_site_id=s1&from=yesterday")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "RFC3339")
	})

	t.Run("passes the window through", func(t *testing.T) {
		w := performRequest(r, http.MethodGet,
			"/api/history/occupancy?job_site_id=s1&from=2026-08-30T00:00:00Z&to=2026-08-30T12:00:00Z")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "s1", s.gotSiteID)
		assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), s.gotFrom)
		assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), s.gotTo)
	})
}

func TestPutSubscriptionRejectsEmptyBody(t *testing.T) {
	h, _ := newTestHandler(t, &fakeStore{})

	r := gin.New()
	r.PUT("/api/subscriptions", h.PutSubscription)

	w := performRequest(r, http.MethodPut, "/api/subscriptions")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}
