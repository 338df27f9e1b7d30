package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gate-sync-backend/config"
)

// envelope is the uniform response wrapper used by every REST endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client is a typed client for the gate-management REST API. All responses
// arrive in the {success, data, error} envelope; a non-success response or a
// missing data payload surfaces as a descriptive error.
type Client struct {
	baseURL string
	token   string
	headers map[string]string
	http    *http.Client
}

// NewClient builds a REST client from the upstream configuration.
func NewClient(cfg config.UpstreamConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AuthToken,
		headers: cfg.Headers,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do executes one API call and decodes the envelope data into out (when out
// is non-nil).
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to unmarshal api response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return fmt.Errorf("api call %s failed: %s", req.URL.Path, msg)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("api call %s succeeded but returned no data", req.URL.Path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data for %s: %w", req.URL.Path, err)
	}
	return nil
}

// --- Entries ---

// CreateEntry logs a new gate entry.
func (c *Client) CreateEntry(ctx context.Context, entry Entry) (Entry, error) {
	var created Entry
	err := c.do(ctx, http.MethodPost, "/api/entries", entry, &created)
	return created, err
}

// SearchEntries queries historical entries.
func (c *Client) SearchEntries(ctx context.Context, params SearchParams) ([]Entry, error) {
	q := url.Values{}
	if params.JobSiteID != "" {
		q.Set("job_site_id", params.JobSiteID)
	}
	if params.EntryType != "" {
		q.Set("entry_type", params.EntryType)
	}
	if params.Query != "" {
		q.Set("q", params.Query)
	}
	if params.From != nil {
		q.Set("from", params.From.Format(time.RFC3339))
	}
	if params.To != nil {
		q.Set("to", params.To.Format(time.RFC3339))
	}
	if params.OnSite != nil {
		q.Set("on_site", strconv.FormatBool(*params.OnSite))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	var entries []Entry
	err := c.do(ctx, http.MethodGet, "/api/entries/search?"+q.Encode(), nil, &entries)
	return entries, err
}

// UpdateEntry applies a partial update to an entry.
func (c *Client) UpdateEntry(ctx context.Context, id string, patch map[string]any) (Entry, error) {
	var updated Entry
	err := c.do(ctx, http.MethodPut, "/api/entries/"+id, patch, &updated)
	return updated, err
}

// DeleteEntry removes an entry record.
func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/entries/"+id, nil, nil)
}

// GetActiveEntries lists on-site entries for a site, optionally filtered by
// entry type.
func (c *Client) GetActiveEntries(ctx context.Context, siteID, entryType string) ([]Entry, error) {
	q := url.Values{}
	q.Set("job_site_id", siteID)
	if entryType != "" {
		q.Set("entry_type", entryType)
	}
	var entries []Entry
	err := c.do(ctx, http.MethodGet, "/api/entries/active?"+q.Encode(), nil, &entries)
	return entries, err
}

// ProcessExit checks an entry out through the gate.
func (c *Client) ProcessExit(ctx context.Context, req ExitRequest) (Entry, error) {
	var updated Entry
	err := c.do(ctx, http.MethodPost, "/api/entries/exit", req, &updated)
	return updated, err
}

// CreateManualExit records an exit for an entry that was never logged in.
func (c *Client) CreateManualExit(ctx context.Context, data map[string]any) (Entry, error) {
	var created Entry
	err := c.do(ctx, http.MethodPost, "/api/entries/manual-exit", data, &created)
	return created, err
}

// --- Job Sites ---

func (c *Client) ListJobSites(ctx context.Context) ([]JobSite, error) {
	var sites []JobSite
	err := c.do(ctx, http.MethodGet, "/api/job-sites", nil, &sites)
	return sites, err
}

func (c *Client) GetJobSite(ctx context.Context, id string) (JobSite, error) {
	var site JobSite
	err := c.do(ctx, http.MethodGet, "/api/job-sites/"+id, nil, &site)
	return site, err
}

func (c *Client) CreateJobSite(ctx context.Context, site JobSite) (JobSite, error) {
	var created JobSite
	err := c.do(ctx, http.MethodPost, "/api/job-sites", site, &created)
	return created, err
}

func (c *Client) UpdateJobSite(ctx context.Context, id string, patch map[string]any) (JobSite, error) {
	var updated JobSite
	err := c.do(ctx, http.MethodPut, "/api/job-sites/"+id, patch, &updated)
	return updated, err
}

func (c *Client) ActivateJobSite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/job-sites/"+id+"/activate", nil, nil)
}

func (c *Client) DeactivateJobSite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/job-sites/"+id+"/deactivate", nil, nil)
}

func (c *Client) DeleteJobSite(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/job-sites/"+id, nil, nil)
}

// --- Users ---

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (c *Client) CreateUser(ctx context.Context, user User) (User, error) {
	var created User
	err := c.do(ctx, http.MethodPost, "/api/users", user, &created)
	return created, err
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch map[string]any) (User, error) {
	var updated User
	err := c.do(ctx, http.MethodPut, "/api/users/"+id, patch, &updated)
	return updated, err
}

func (c *Client) ActivateUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/users/"+id+"/activate", nil, nil)
}

func (c *Client) DeactivateUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/users/"+id+"/deactivate", nil, nil)
}

func (c *Client) ResetPassword(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/users/"+id+"/reset-password", nil, nil)
}

func (c *Client) ChangePassword(ctx context.Context, id, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	return c.do(ctx, http.MethodPost, "/api/users/"+id+"/change-password", body, nil)
}

// --- Custom Fields ---

func (c *Client) ListCustomFields(ctx context.Context, siteID, entryType string) ([]CustomField, error) {
	q := url.Values{}
	q.Set("job_site_id", siteID)
	q.Set("entry_type", entryType)
	var fields []CustomField
	err := c.do(ctx, http.MethodGet, "/api/custom-fields?"+q.Encode(), nil, &fields)
	return fields, err
}

func (c *Client) CreateCustomField(ctx context.Context, field CustomField) (CustomField, error) {
	var created CustomField
	err := c.do(ctx, http.MethodPost, "/api/custom-fields", field, &created)
	return created, err
}

func (c *Client) UpdateCustomField(ctx context.Context, id string, patch map[string]any) (CustomField, error) {
	var updated CustomField
	err := c.do(ctx, http.MethodPut, "/api/custom-fields/"+id, patch, &updated)
	return updated, err
}

func (c *Client) DeleteCustomField(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/custom-fields/"+id, nil, nil)
}

// ReorderCustomFields replaces the display order for a (site, entry type)
// field set with the given sequence of field keys.
func (c *Client) ReorderCustomFields(ctx context.Context, siteID, entryType string, fieldKeys []string) error {
	body := map[string]any{
		"job_site_id": siteID,
		"entry_type":  entryType,
		"field_keys":  fieldKeys,
	}
	return c.do(ctx, http.MethodPost, "/api/custom-fields/reorder", body, nil)
}

// --- Alerts ---

func (c *Client) ListAlerts(ctx context.Context, filters AlertFilters) ([]Alert, error) {
	q := url.Values{}
	if filters.JobSiteID != "" {
		q.Set("job_site_id", filters.JobSiteID)
	}
	if filters.AlertType != "" {
		q.Set("alert_type", filters.AlertType)
	}
	if filters.Acknowledged != nil {
		q.Set("acknowledged", strconv.FormatBool(*filters.Acknowledged))
	}
	if filters.Limit > 0 {
		q.Set("limit", strconv.Itoa(filters.Limit))
	}
	var alerts []Alert
	err := c.do(ctx, http.MethodGet, "/api/alerts?"+q.Encode(), nil, &alerts)
	return alerts, err
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/alerts/"+id+"/acknowledge", nil, nil)
}

func (c *Client) CreateAlert(ctx context.Context, alert Alert) (Alert, error) {
	var created Alert
	err := c.do(ctx, http.MethodPost, "/api/alerts", alert, &created)
	return created, err
}

// TriggerAlertChecks asks the server to re-evaluate its alert rules.
func (c *Client) TriggerAlertChecks(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/alerts/trigger-checks", nil, nil)
}

// --- Photos ---

// UploadPhoto attaches an image to an entry via a multipart upload.
func (c *Client) UploadPhoto(ctx context.Context, entryID, filename string, r io.Reader) (Photo, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("entry_id", entryID); err != nil {
		return Photo{}, fmt.Errorf("failed to build multipart body: %w", err)
	}
	part, err := mw.CreateFormFile("photo", filename)
	if err != nil {
		return Photo{}, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Photo{}, fmt.Errorf("failed to read photo data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Photo{}, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/photos", &buf)
	if err != nil {
		return Photo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var photo Photo
	err = c.send(req, &photo)
	return photo, err
}

func (c *Client) ListPhotosByEntry(ctx context.Context, entryID string) ([]Photo, error) {
	var photos []Photo
	err := c.do(ctx, http.MethodGet, "/api/photos?entry_id="+url.QueryEscape(entryID), nil, &photos)
	return photos, err
}

func (c *Client) DeletePhoto(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/photos/"+id, nil, nil)
}

// PhotoURL returns the full-size image URL for a photo.
func (c *Client) PhotoURL(id string) string {
	return c.baseURL + "/api/photos/" + id + "/full"
}

// ThumbnailURL returns the thumbnail image URL for a photo.
func (c *Client) ThumbnailURL(id string) string {
	return c.baseURL + "/api/photos/" + id + "/thumbnail"
}

// --- Dashboard & Occupancy ---

func (c *Client) GetDashboardSummary(ctx context.Context, siteID string) (DashboardSummary, error) {
	var summary DashboardSummary
	err := c.do(ctx, http.MethodGet, "/api/dashboard/summary?job_site_id="+url.QueryEscape(siteID), nil, &summary)
	return summary, err
}

func (c *Client) GetRecentEntries(ctx context.Context, siteID string, limit, offset int) ([]Entry, error) {
	q := url.Values{}
	q.Set("job_site_id", siteID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var entries []Entry
	err := c.do(ctx, http.MethodGet, "/api/dashboard/recent-entries?"+q.Encode(), nil, &entries)
	return entries, err
}

func (c *Client) GetAllOccupancy(ctx context.Context) ([]OccupancySnapshot, error) {
	var snapshots []OccupancySnapshot
	err := c.do(ctx, http.MethodGet, "/api/occupancy", nil, &snapshots)
	return snapshots, err
}
