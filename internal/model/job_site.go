package model

import "time"

// JobSite is the local mirror of a managed site and its capacities.
type JobSite struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:256;not null"`
	Address     string `gorm:"size:512"`
	IsActive    bool   `gorm:"not null"`
	VehicleCap  int    `gorm:"not null"`
	VisitorCap  int    `gorm:"not null"`
	TruckCap    int    `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Sightings []EntrySighting `gorm:"foreignKey:JobSiteID"`
}
