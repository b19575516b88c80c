package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ytdlder/ytdlder/internal/formats"
	"github.com/ytdlder/ytdlder/internal/pipeline"
	"github.com/ytdlder/ytdlder/internal/provider"
)

// handleDownload runs the pipeline synchronously and responds with the
// published artifact location. Progress is delivered out of band over the
// websocket feed keyed by correlationId.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assetID := q.Get("assetId")
	formatTag := q.Get("formatTag")
	correlationID := q.Get("correlationId")

	if assetID == "" {
		writeValidationError(w, "assetId is required")
		return
	}
	if formatTag == "" {
		writeValidationError(w, "formatTag is required")
		return
	}
	// A missing correlation id only means nobody can subscribe to progress.
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	res, err := s.runner.Run(r.Context(), pipeline.Request{
		AssetID:       assetID,
		FormatTag:     formatTag,
		CorrelationID: correlationID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type videoInfoRequest struct {
	URL string `json:"url"`
}

type videoDetails struct {
	AssetID         string `json:"assetId"`
	Title           string `json:"title"`
	Author          string `json:"author,omitempty"`
	Thumbnail       string `json:"thumbnail,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type formatEntry struct {
	Tag     string `json:"tag"`
	Quality string `json:"quality,omitempty"`
	Type    string `json:"type"`
	Codecs  string `json:"codecs,omitempty"`
	Bitrate int    `json:"bitrate,omitempty"`
	Size    int64  `json:"size,omitempty"`
	FPS     int    `json:"fps,omitempty"`
}

type videoInfoResponse struct {
	VideoDetails videoDetails  `json:"videoDetails"`
	Formats      []formatEntry `json:"formats"`
}

// handleVideoInfo resolves metadata for a video URL and returns the
// downloadable renditions: mp4 video formats best-first, one per quality
// label, plus the best standalone audio.
func (s *Server) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	var req videoInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "request body must be JSON with a url field")
		return
	}

	assetID, err := provider.ValidateURL(req.URL)
	if err != nil {
		writeErr(w, err)
		return
	}

	info, err := s.provider.Video(r.Context(), assetID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, videoInfoResponse{
		VideoDetails: videoDetails{
			AssetID:         info.ID,
			Title:           info.Title,
			Author:          info.Author,
			Thumbnail:       info.Thumbnail,
			DurationSeconds: int(info.Duration.Seconds()),
		},
		Formats: presentFormats(info.Formats),
	})
}

// presentFormats reduces the raw format list to the offering: mp4 video
// sorted best-first and deduplicated per quality label, then the best
// standalone audio appended.
func presentFormats(list []provider.MediaFormat) []formatEntry {
	var video []provider.MediaFormat
	for _, f := range list {
		if f.HasVideo && f.Container == "mp4" {
			video = append(video, f)
		}
	}
	formats.SortByQuality(video)

	out := make([]formatEntry, 0, len(video)+1)
	seen := make(map[string]bool)
	for i := range video {
		f := &video[i]
		if f.QualityLabel != "" && seen[f.QualityLabel] {
			continue
		}
		seen[f.QualityLabel] = true
		out = append(out, formatEntry{
			Tag:     f.Tag,
			Quality: f.QualityLabel,
			Type:    "video",
			Codecs:  f.Codecs,
			Bitrate: f.Bitrate,
			Size:    f.ContentLength,
			FPS:     f.FPS,
		})
	}

	if audio := formats.BestAudio(list); audio != nil {
		out = append(out, formatEntry{
			Tag:     audio.Tag,
			Type:    "audio",
			Codecs:  audio.Codecs,
			Bitrate: audio.Bitrate,
			Size:    audio.ContentLength,
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
