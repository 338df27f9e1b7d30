package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gate-sync-backend/internal/sync"
	"gate-sync-backend/internal/upstream"
)

// categoryStatus is the per-category utilization view.
type categoryStatus struct {
	Current  int     `json:"current"`
	Capacity int     `json:"capacity"`
	Percent  float64 `json:"percent"`
	Warning  bool    `json:"warning"`
}

// occupancyResponse is the per-site occupancy report.
type occupancyResponse struct {
	JobSiteID string         `json:"job_site_id"`
	Vehicles  categoryStatus `json:"vehicles"`
	Visitors  categoryStatus `json:"visitors"`
	Trucks    categoryStatus `json:"trucks"`
}

// GetOccupancy handles GET /api/occupancy: the current occupancy snapshot
// for all sites, with utilization percentages and warning flags.
func (h *Handler) GetOccupancy(c *gin.Context) {
	snapshots := h.reconciler.Occupancy()

	responses := make([]occupancyResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		responses = append(responses, occupancyResponse{
			JobSiteID: snap.JobSiteID,
			Vehicles:  newCategoryStatus(snap.Counts.Vehicles, snap.Capacity.Vehicles, snap.Warnings.Vehicles),
			Visitors:  newCategoryStatus(snap.Counts.Visitors, snap.Capacity.Visitors, snap.Warnings.Visitors),
			Trucks:    newCategoryStatus(snap.Counts.Trucks, snap.Capacity.Trucks, snap.Warnings.Trucks),
		})
	}
	c.JSON(http.StatusOK, responses)
}

func newCategoryStatus(current, capacity int, serverFlag bool) categoryStatus {
	return categoryStatus{
		Current:  current,
		Capacity: capacity,
		Percent:  sync.CapacityPercent(current, capacity),
		Warning:  sync.CapacityWarning(current, capacity, serverFlag),
	}
}

// GetOnSite handles GET /api/sites/:site_id/onsite: the live roster for the
// watched job site.
func (h *Handler) GetOnSite(c *gin.Context) {
	siteID := c.Param("site_id")
	if siteID != h.siteID {
		c.JSON(http.StatusNotFound, gin.H{"error": "site is not watched by this instance"})
		return
	}

	entryType := c.Query("entry_type")
	roster := h.reconciler.OnSite()
	if entryType != "" {
		filtered := make([]upstream.Entry, 0, len(roster))
		for _, e := range roster {
			if e.EntryType == entryType {
				filtered = append(filtered, e)
			}
		}
		roster = filtered
	}
	c.JSON(http.StatusOK, roster)
}
