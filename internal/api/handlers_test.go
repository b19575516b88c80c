package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytdlder/ytdlder/internal/errs"
	"github.com/ytdlder/ytdlder/internal/pipeline"
	"github.com/ytdlder/ytdlder/internal/progress"
	"github.com/ytdlder/ytdlder/internal/provider"
	"github.com/ytdlder/ytdlder/internal/store"
)

type fakeRunner struct {
	lastReq pipeline.Request
	res     *pipeline.Result
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeClient struct {
	info *provider.VideoInfo
	err  error
}

func (f *fakeClient) Video(context.Context, string) (*provider.VideoInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

func (f *fakeClient) Stream(context.Context, *provider.VideoInfo, *provider.MediaFormat) (io.ReadCloser, int64, error) {
	return nil, 0, errs.E(errs.Internal, "not implemented in fake", nil)
}

type testServer struct {
	runner  *fakeRunner
	client  *fakeClient
	store   *store.DiskStore
	hub     *progress.Hub
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	disk, err := store.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	ts := &testServer{
		runner: &fakeRunner{res: &pipeline.Result{
			URL:      "http://localhost:8080/api/files/vid1/Clip_1080p.mp4",
			Filename: "Clip_1080p.mp4",
		}},
		client: &fakeClient{},
		store:  disk,
		hub:    progress.NewHub(),
	}
	ts.handler = NewServer(ts.client, ts.runner, ts.store, ts.hub).Router()
	return ts
}

func (ts *testServer) commit(t *testing.T, assetID, filename, content string) {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, ts.store.Commit(store.Key{AssetID: assetID, Filename: filename}, tmp))
}

func TestDownloadSuccess(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/download?assetId=vid1&formatTag=137&correlationId=c1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vid1", ts.runner.lastReq.AssetID)
	assert.Equal(t, "137", ts.runner.lastReq.FormatTag)
	assert.Equal(t, "c1", ts.runner.lastReq.CorrelationID)

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "Clip_1080p.mp4", res.Filename)
	assert.Contains(t, res.URL, "/api/files/vid1/")
}

func TestDownloadMissingParams(t *testing.T) {
	ts := newTestServer(t)

	for _, target := range []string{
		"/api/download",
		"/api/download?assetId=vid1",
		"/api/download?formatTag=137",
	} {
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDownloadGeneratesCorrelationID(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/download?assetId=vid1&formatTag=137", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, ts.runner.lastReq.CorrelationID)
}

func TestDownloadErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		want int
	}{
		{errs.Validation, http.StatusBadRequest},
		{errs.NotFound, http.StatusNotFound},
		{errs.Forbidden, http.StatusForbidden},
		{errs.UpstreamFetch, http.StatusBadGateway},
		{errs.Processing, http.StatusInternalServerError},
		{errs.Storage, http.StatusInternalServerError},
		{errs.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ts := newTestServer(t)
			ts.runner.err = errs.E(tt.kind, "boom", nil)

			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
				"/api/download?assetId=vid1&formatTag=137", nil))

			assert.Equal(t, tt.want, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, string(tt.kind), body["kind"])
		})
	}
}

func TestVideoInfoSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.client.info = &provider.VideoInfo{
		ID:        "dQw4w9WgXcQ",
		Title:     "Clip",
		Author:    "Someone",
		Thumbnail: "https://i.example.com/t.jpg",
		Duration:  3*time.Minute + 32*time.Second,
		Formats: []provider.MediaFormat{
			{Tag: "137", Container: "mp4", HasVideo: true, QualityLabel: "1080p", FPS: 30, ContentLength: 9000, Codecs: "avc1.640028"},
			{Tag: "399", Container: "mp4", HasVideo: true, QualityLabel: "1080p", FPS: 30, ContentLength: 8000},
			{Tag: "248", Container: "webm", HasVideo: true, QualityLabel: "1080p"},
			{Tag: "22", Container: "mp4", HasVideo: true, HasAudio: true, QualityLabel: "720p", FPS: 30, ContentLength: 7000},
			{Tag: "140", Container: "mp4", HasAudio: true, Bitrate: 128000, ContentLength: 2000, Codecs: "mp4a.40.2"},
		},
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/video-info",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)))

	require.Equal(t, http.StatusOK, rec.Code)

	var res videoInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	assert.Equal(t, "dQw4w9WgXcQ", res.VideoDetails.AssetID)
	assert.Equal(t, "Clip", res.VideoDetails.Title)
	assert.Equal(t, 212, res.VideoDetails.DurationSeconds)

	// One mp4 per quality label (best kept), webm excluded, audio last.
	require.Len(t, res.Formats, 3)
	assert.Equal(t, "137", res.Formats[0].Tag)
	assert.Equal(t, "video", res.Formats[0].Type)
	assert.Equal(t, "22", res.Formats[1].Tag)
	assert.Equal(t, "140", res.Formats[2].Tag)
	assert.Equal(t, "audio", res.Formats[2].Type)
}

func TestVideoInfoInvalidBody(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/video-info",
		strings.NewReader("not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoInfoInvalidURL(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/video-info",
		strings.NewReader(`{"url":"https://example.com/not-a-video"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoInfoProviderRestriction(t *testing.T) {
	ts := newTestServer(t)
	ts.client.err = errs.E(errs.Forbidden, "sign in to confirm your age", nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/video-info",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
