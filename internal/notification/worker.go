package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"gate-sync-backend/internal/model"
)

// Event is one capacity warning to fan out to subscribers of a job site.
type Event struct {
	JobSiteID string
	Category  string
	Current   int
	Capacity  int
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending capacity alerts.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Alert worker %d started", id)
	for {
		select {
		case event := <-wp.jobs:
			log.Printf("Alert worker %d processing %s/%s", id, event.JobSiteID, event.Category)
			wp.sendAlertsForSite(ctx, event)
		case <-ctx.Done():
			log.Printf("Alert worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a capacity warning. The queue is drop-on-full: alerts are
// advisory and the next poll re-raises a still-active warning.
func (wp *WorkerPool) Dispatch(siteID, category string, current, capacity int) {
	select {
	case wp.jobs <- Event{JobSiteID: siteID, Category: category, Current: current, Capacity: capacity}:
	default:
		log.Printf("Alert queue full, dropping warning for %s/%s", siteID, category)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

// sendAlertsForSite fetches subscriptions watching the site and notifies them.
func (wp *WorkerPool) sendAlertsForSite(ctx context.Context, event Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_site_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.job_site_id = ?", event.JobSiteID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for site %s: %v", event.JobSiteID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	log.Printf("Sending %d alerts for site %s", len(subscriptions), event.JobSiteID)

	siteLabel := event.JobSiteID
	var site model.JobSite
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&site, "id = ?", event.JobSiteID).Error; err != nil {
		log.Printf("Error fetching job site %s: %v", event.JobSiteID, err)
	} else if site.Name != "" {
		siteLabel = site.Name
	}

	message := fmt.Sprintf("%s: %s at %d/%d capacity", siteLabel, event.Category, event.Current, event.Capacity)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending alert to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == 410 {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
