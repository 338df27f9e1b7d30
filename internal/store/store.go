package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-sync-backend/internal/model"
	"gate-sync-backend/internal/parse"
	"gate-sync-backend/internal/upstream"
)

// Store defines the persistence operations for the local mirror.
type Store interface {
	DB() *gorm.DB
	UpsertJobSites(ctx context.Context, sites []upstream.JobSite) error
	RecordOccupancy(ctx context.Context, at time.Time, snapshots []upstream.OccupancySnapshot) error
	RecordSighting(ctx context.Context, phase string, entry upstream.Entry) error
	RecentSightings(ctx context.Context, siteID string, limit int) ([]model.EntrySighting, error)
	OccupancyHistory(ctx context.Context, siteID string, from, to time.Time) ([]model.OccupancySample, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for handlers that query directly.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertJobSites mirrors the upstream job-site metadata locally.
func (s *gormStore) UpsertJobSites(ctx context.Context, sites []upstream.JobSite) error {
	if len(sites) == 0 {
		return nil
	}

	rows := make([]model.JobSite, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, model.JobSite{
			ID:         site.ID,
			Name:       site.Name,
			Address:    site.Address,
			IsActive:   site.IsActive,
			VehicleCap: site.Capacity.Vehicles,
			VisitorCap: site.Capacity.Visitors,
			TruckCap:   site.Capacity.Trucks,
		})
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "address", "is_active", "vehicle_cap", "visitor_cap", "truck_cap", "updated_at",
		}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("batch upsert job sites failed: %w", err)
	}
	return nil
}

// RecordOccupancy appends one occupancy sample per site.
func (s *gormStore) RecordOccupancy(ctx context.Context, at time.Time, snapshots []upstream.OccupancySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	samples := make([]model.OccupancySample, 0, len(snapshots))
	for _, snap := range snapshots {
		samples = append(samples, model.OccupancySample{
			JobSiteID:  snap.JobSiteID,
			CapturedAt: at,
			Vehicles:   snap.Counts.Vehicles,
			Visitors:   snap.Counts.Visitors,
			Trucks:     snap.Counts.Trucks,
			VehicleCap: snap.Capacity.Vehicles,
			VisitorCap: snap.Capacity.Visitors,
			TruckCap:   snap.Capacity.Trucks,
		})
	}

	if err := s.db.WithContext(ctx).Create(&samples).Error; err != nil {
		return fmt.Errorf("failed to record occupancy samples: %w", err)
	}
	return nil
}

// RecordSighting stores one observed entry event. Duplicate deliveries of the
// same (entry, phase) pair are silently collapsed.
func (s *gormStore) RecordSighting(ctx context.Context, phase string, entry upstream.Entry) error {
	sighting := model.EntrySighting{
		EntryID:    entry.ID,
		Phase:      phase,
		EntryType:  entry.EntryType,
		JobSiteID:  entry.JobSiteID,
		Label:      parse.EntryLabel(entry.EntryType, entry.EntryData),
		EntryTime:  entry.EntryTime,
		ExitTime:   entry.ExitTime,
		ObservedAt: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_id"}, {Name: "phase"}},
		DoNothing: true,
	}).Create(&sighting).Error; err != nil {
		return fmt.Errorf("failed to record sighting for entry %s: %w", entry.ID, err)
	}
	return nil
}

// RecentSightings returns the latest observed activity for a site, newest
// first.
func (s *gormStore) RecentSightings(ctx context.Context, siteID string, limit int) ([]model.EntrySighting, error) {
	if limit <= 0 {
		limit = 50
	}

	var sightings []model.EntrySighting
	q := s.db.WithContext(ctx).Order("observed_at DESC").Limit(limit)
	if siteID != "" {
		q = q.Where("job_site_id = ?", siteID)
	}
	if err := q.Find(&sightings).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent sightings: %w", err)
	}
	return sightings, nil
}

// OccupancyHistory returns samples for a site within [from, to], oldest
// first.
func (s *gormStore) OccupancyHistory(ctx context.Context, siteID string, from, to time.Time) ([]model.OccupancySample, error) {
	var samples []model.OccupancySample
	q := s.db.WithContext(ctx).
		Where("job_site_id = ?", siteID).
		Order("captured_at ASC")
	if !from.IsZero() {
		q = q.Where("captured_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("captured_at <= ?", to)
	}
	if err := q.Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("failed to query occupancy history: %w", err)
	}
	return samples, nil
}
