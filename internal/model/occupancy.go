package model

import "time"

// OccupancySample is one per-site occupancy observation captured on a poll
// cycle, kept as a history for trend views.
type OccupancySample struct {
	ID         int64     `gorm:"autoIncrement;primaryKey"`
	JobSiteID  string    `gorm:"size:64;not null;index:idx_sample_site_time"`
	CapturedAt time.Time `gorm:"not null;index:idx_sample_site_time"`
	Vehicles   int       `gorm:"not null"`
	Visitors   int       `gorm:"not null"`
	Trucks     int       `gorm:"not null"`
	VehicleCap int       `gorm:"not null"`
	VisitorCap int       `gorm:"not null"`
	TruckCap   int       `gorm:"not null"`
}
