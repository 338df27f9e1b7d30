package upstream

import "time"

// Entry categories recognized by the gate-management server.
const (
	EntryTypeVehicle = "vehicle"
	EntryTypeVisitor = "visitor"
	EntryTypeTruck   = "truck"
)

// Entry is a gate entry record as returned by the server.
type Entry struct {
	ID        string         `json:"id"`
	EntryType string         `json:"entry_type"`
	JobSiteID string         `json:"job_site_id"`
	EntryTime time.Time      `json:"entry_time"`
	ExitTime  *time.Time     `json:"exit_time"`
	EntryData map[string]any `json:"entry_data,omitempty"`
}

// IsOnSite reports whether the entry has not been checked out yet.
func (e Entry) IsOnSite() bool {
	return e.ExitTime == nil
}

// CategoryCounts holds per-category vehicle/visitor/truck tallies.
type CategoryCounts struct {
	Vehicles int `json:"vehicles"`
	Visitors int `json:"visitors"`
	Trucks   int `json:"trucks"`
}

// CategoryFlags holds per-category boolean markers.
type CategoryFlags struct {
	Vehicles bool `json:"vehicles"`
	Visitors bool `json:"visitors"`
	Trucks   bool `json:"trucks"`
}

// OccupancySnapshot is the per-site occupancy report pushed by the server.
type OccupancySnapshot struct {
	JobSiteID string         `json:"job_site_id"`
	Counts    CategoryCounts `json:"counts"`
	Capacity  CategoryCounts `json:"capacity"`
	Warnings  CategoryFlags  `json:"warnings"`
}

// DashboardSummary aggregates the counters shown on the site dashboard.
type DashboardSummary struct {
	JobSiteID    string         `json:"job_site_id"`
	OnSite       CategoryCounts `json:"on_site"`
	TodayEntries int            `json:"today_entries"`
	TodayExits   int            `json:"today_exits"`
	ActiveAlerts int            `json:"active_alerts"`
}

// JobSite is a managed site with configured capacities.
type JobSite struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Address  string         `json:"address,omitempty"`
	IsActive bool           `json:"is_active"`
	Capacity CategoryCounts `json:"capacity"`
}

// User is an account on the gate-management server.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// CustomField is a configurable per-(site, entry type) entry form field.
type CustomField struct {
	ID           string         `json:"id"`
	JobSiteID    string         `json:"job_site_id"`
	EntryType    string         `json:"entry_type"`
	FieldKey     string         `json:"field_key"`
	FieldLabel   string         `json:"field_label"`
	FieldType    string         `json:"field_type"`
	IsRequired   bool           `json:"is_required"`
	IsActive     bool           `json:"is_active"`
	Options      []string       `json:"options,omitempty"`
	Validation   map[string]any `json:"validation,omitempty"`
	DisplayOrder int            `json:"display_order"`
}

// Alert is a server-side alert record.
type Alert struct {
	ID             string    `json:"id"`
	JobSiteID      string    `json:"job_site_id"`
	AlertType      string    `json:"alert_type"`
	Severity       string    `json:"severity"`
	Message        string    `json:"message"`
	IsAcknowledged bool      `json:"is_acknowledged"`
	CreatedAt      time.Time `json:"created_at"`
}

// Photo describes an image attached to an entry.
type Photo struct {
	ID          string `json:"id"`
	EntryID     string `json:"entry_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// ExitRequest is the payload for processing an entry exit.
type ExitRequest struct {
	EntryID        string `json:"entry_id"`
	Override       bool   `json:"override,omitempty"`
	OverrideReason string `json:"override_reason,omitempty"`
	TrailerNumber  string `json:"trailer_number,omitempty"`
}

// SearchParams filters the entries search endpoint.
type SearchParams struct {
	JobSiteID string
	EntryType string
	Query     string
	From      *time.Time
	To        *time.Time
	OnSite    *bool
	Limit     int
	Offset    int
}

// AlertFilters filters the alerts listing.
type AlertFilters struct {
	JobSiteID    string
	AlertType    string
	Acknowledged *bool
	Limit        int
}
