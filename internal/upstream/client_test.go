package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gate-sync-backend/config"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(config.UpstreamConfig{
		BaseURL:        srv.URL,
		AuthToken:      "token-1",
		Headers:        map[string]string{"X-Site-Scope": "all"},
		TimeoutSeconds: 5,
	})
}

func TestGetActiveEntriesDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/entries/active", r.URL.Path)
		assert.Equal(t, "s1", r.URL.Query().Get("job_site_id"))
		assert.Equal(t, "truck", r.URL.Query().Get("entry_type"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "all", r.Header.Get("X-Site-Scope"))

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]any{
				{"id": "e1", "entry_type": "truck", "job_site_id": "s1", "entry_time": "2026-08-30T08:00:00Z", "exit_time": nil},
			},
		})
	}))
	defer srv.Close()

	entries, err := newTestClient(srv).GetActiveEntries(context.Background(), "s1", "truck")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ID)
	assert.True(t, entries[0].IsOnSite())
}

func TestEnvelopeFailurePropagatesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"message": "job site not found"},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetJobSite(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job site not found")
}

func TestEnvelopeSuccessWithoutDataIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetDashboardSummary(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned no data")
}

func TestProcessExitPostsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/entries/exit", r.URL.Path)

		var req ExitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "e1", req.EntryID)
		assert.True(t, req.Override)
		assert.Equal(t, "gate jam", req.OverrideReason)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": "e1", "entry_type": "truck", "job_site_id": "s1", "entry_time": "2026-08-30T08:00:00Z", "exit_time": "2026-08-30T17:00:00Z"},
		})
	}))
	defer srv.Close()

	entry, err := newTestClient(srv).ProcessExit(context.Background(), ExitRequest{
		EntryID:        "e1",
		Override:       true,
		OverrideReason: "gate jam",
	})
	require.NoError(t, err)
	assert.False(t, entry.IsOnSite())
}

func TestUploadPhotoMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/photos", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "e1", r.FormValue("entry_id"))

		file, header, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "cab.jpg", header.Filename)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "jpegbytes", string(content))

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": "p1", "entry_id": "e1", "filename": "cab.jpg"},
		})
	}))
	defer srv.Close()

	photo, err := newTestClient(srv).UploadPhoto(context.Background(), "e1", "cab.jpg", strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "p1", photo.ID)
}

func TestPhotoURLConstruction(t *testing.T) {
	c := NewClient(config.UpstreamConfig{BaseURL: "https://gate.example.com/", TimeoutSeconds: 5})
	assert.Equal(t, "https://gate.example.com/api/photos/p1/full", c.PhotoURL("p1"))
	assert.Equal(t, "https://gate.example.com/api/photos/p1/thumbnail", c.ThumbnailURL("p1"))
}

func TestReorderCustomFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/custom-fields/reorder", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body["job_site_id"])
		assert.Equal(t, "vehicle", body["entry_type"])
		assert.Equal(t, []any{"plate", "driver"}, body["field_keys"])

		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	err := newTestClient(srv).ReorderCustomFields(context.Background(), "s1", "vehicle", []string{"plate", "driver"})
	require.NoError(t, err)
}
