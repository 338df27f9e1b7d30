package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"gate-sync-backend/internal/store"
	"gate-sync-backend/internal/stream"
	"gate-sync-backend/internal/sync"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	reconciler *sync.Reconciler
	poller     *sync.Poller
	stream     *stream.Client
	webpush    *webpush.Options
	siteID     string
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, rec *sync.Reconciler, poller *sync.Poller, sc *stream.Client, webpushOptions *webpush.Options, siteID string) *Handler {
	return &Handler{
		store:      s,
		reconciler: rec,
		poller:     poller,
		stream:     sc,
		webpush:    webpushOptions,
		siteID:     siteID,
	}
}
