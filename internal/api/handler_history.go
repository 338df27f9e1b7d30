package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GetRecentActivity handles GET /api/history/entries: the latest recorded
// entry sightings, newest first.
func (h *Handler) GetRecentActivity(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	sightings, err := h.store.RecentSightings(c.Request.Context(), c.Query("job_site_id"), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve activity"})
		return
	}
	c.JSON(http.StatusOK, sightings)
}

// GetOccupancyHistory handles GET /api/history/occupancy: occupancy samples
// for one site within an optional RFC3339 time window.
func (h *Handler) GetOccupancyHistory(c *gin.Context) {
	siteID := c.Query("job_site_id")
	if siteID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "job_site_id is required"})
		return
	}

	var from, to time.Time
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp format. Use RFC3339."})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp format. Use RFC3339."})
			return
		}
	}

	samples, err := h.store.OccupancyHistory(c.Request.Context(), siteID, from, to)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve occupancy history"})
		return
	}
	c.JSON(http.StatusOK, samples)
}
