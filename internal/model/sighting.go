package model

import "time"

// EntrySighting records one observed entry event (a gate check-in or
// check-out), whether it arrived over the event stream or via a poll. The
// (entry_id, phase) pair is unique so duplicate stream deliveries collapse.
type EntrySighting struct {
	ID         int64      `gorm:"autoIncrement;primaryKey"`
	EntryID    string     `gorm:"size:64;not null;uniqueIndex:idx_sighting_entry_phase"`
	Phase      string     `gorm:"size:16;not null;uniqueIndex:idx_sighting_entry_phase"`
	EntryType  string     `gorm:"size:16;not null"`
	JobSiteID  string     `gorm:"size:64;not null;index"`
	Label      string     `gorm:"size:128"`
	EntryTime  time.Time  `gorm:"not null"`
	ExitTime   *time.Time
	ObservedAt time.Time `gorm:"not null;index"`
}
