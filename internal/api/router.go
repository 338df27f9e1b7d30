package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"gate-sync-backend/config"
	"gate-sync-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router serving the mirrored
// view.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.Default()

	limit := rate.Limit(10)
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, 5, cfg.RequestIPHeader)

	cacheTTL := 5 * time.Second
	if cfg.CacheTTLSeconds > 0 {
		cacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Live mirrored view
		api.GET("/occupancy", h.GetOccupancy)
		api.GET("/sites/:site_id/onsite", h.GetOnSite)
		api.GET("/dashboard", h.GetDashboard)
		api.GET("/stream", h.GetStreamStatus)
		api.POST("/refresh", h.TriggerRefresh)

		// Persisted history (cacheable)
		api.GET("/history/entries", caching, h.GetRecentActivity)
		api.GET("/history/occupancy", caching, h.GetOccupancyHistory)

		// Capacity alert subscriptions
		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
