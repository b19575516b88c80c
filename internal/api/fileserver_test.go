package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeArtifactMP4(t *testing.T) {
	ts := newTestServer(t)
	ts.commit(t, "vid1", "Clip_1080p.mp4", "merged-bytes")

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/vid1/Clip_1080p.mp4", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "12", rec.Header().Get("Content-Length"))
	assert.Equal(t, `inline; filename="Clip_1080p.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "merged-bytes", rec.Body.String())
}

func TestServeArtifactMP3(t *testing.T) {
	ts := newTestServer(t)
	ts.commit(t, "vid1", "Clip_140.mp3", "audio")

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/vid1/Clip_140.mp3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
}

func TestServeArtifactUnsupportedExtension(t *testing.T) {
	ts := newTestServer(t)
	ts.commit(t, "vid1", "Clip.mkv", "bytes")

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/vid1/Clip.mkv", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeArtifactNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/vid1/Missing.mp4", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeArtifactEncodedTraversal(t *testing.T) {
	ts := newTestServer(t)
	ts.commit(t, "vid1", "Clip_1080p.mp4", "merged-bytes")

	for _, target := range []string{
		"/api/files/%2e%2e/Clip_1080p.mp4",
		"/api/files/vid1/%2e%2e.mp4",
		"/api/files/%252e%252e/Clip_1080p.mp4",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusOK, rec.Code, target)
	}
}

func TestCleanPathComponent(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "Clip_1080p.mp4", "Clip_1080p.mp4", false},
		{"encoded space", "My%20Clip.mp4", "My Clip.mp4", false},
		{"dot", ".", "", true},
		{"dotdot", "..", "", true},
		{"encoded dotdot", "%2e%2e", "", true},
		{"double encoded dotdot", "%252e%252e", "", true},
		{"forward slash", "a/b", "", true},
		{"encoded slash", "a%2fb", "", true},
		{"backslash", `a\b`, "", true},
		{"null byte", "a%00b", "", true},
		{"control char", "a%0ab", "", true},
		{"empty", "", "", true},
		{"unicode is normalized", "Tokyó.mp4", "Tokyó.mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanPathComponent(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
