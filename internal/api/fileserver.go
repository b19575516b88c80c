package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/ytdlder/ytdlder/internal/log"
	"github.com/ytdlder/ytdlder/internal/metrics"
	"github.com/ytdlder/ytdlder/internal/store"
)

// maxDecodePasses bounds repeated percent-decoding so nested encodings
// (%252e%252e) cannot smuggle traversal sequences past a single decode.
const maxDecodePasses = 3

// handleFile streams a committed artifact. The served name decides the
// content type; anything but .mp4 and .mp3 is rejected.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	assetID, err := cleanPathComponent(chi.URLParam(r, "assetID"))
	if err != nil {
		metrics.FileRequestsTotal.WithLabelValues("invalid").Inc()
		writeValidationError(w, "invalid asset id")
		return
	}
	filename, err := cleanPathComponent(chi.URLParam(r, "filename"))
	if err != nil {
		metrics.FileRequestsTotal.WithLabelValues("invalid").Inc()
		writeValidationError(w, "invalid filename")
		return
	}

	contentType, ok := artifactContentType(filename)
	if !ok {
		metrics.FileRequestsTotal.WithLabelValues("invalid").Inc()
		writeValidationError(w, "unsupported file extension")
		return
	}

	rc, info, err := s.store.Open(store.Key{AssetID: assetID, Filename: filename})
	if err != nil {
		if os.IsNotExist(err) {
			metrics.FileRequestsTotal.WithLabelValues("not_found").Inc()
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "artifact not found"})
			return
		}
		metrics.FileRequestsTotal.WithLabelValues("error").Inc()
		writeErr(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; only log the broken transfer.
		logger := log.WithComponentFromContext(r.Context(), "fileserver")
		logger.Warn().Err(err).
			Str("asset_id", assetID).Str("filename", filename).Msg("artifact transfer aborted")
		return
	}
	metrics.FileRequestsTotal.WithLabelValues("ok").Inc()
}

func artifactContentType(filename string) (string, bool) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".mp4":
		return "video/mp4", true
	case ".mp3":
		return "audio/mpeg", true
	default:
		return "", false
	}
}

// cleanPathComponent fully decodes a route parameter and rejects anything
// that could leave the artifact directory: traversal dots, separators,
// control bytes, or names that refuse to reach a decode fixpoint.
func cleanPathComponent(raw string) (string, error) {
	decoded := raw
	for i := 0; i < maxDecodePasses; i++ {
		next, err := url.PathUnescape(decoded)
		if err != nil {
			return "", fmt.Errorf("undecodable path component")
		}
		if next == decoded {
			break
		}
		decoded = next
	}
	if next, err := url.PathUnescape(decoded); err != nil || next != decoded {
		return "", fmt.Errorf("path component does not reach a decode fixpoint")
	}

	// Normalize so visually equivalent unicode cannot alias another name.
	decoded = norm.NFC.String(decoded)

	if decoded == "" || decoded == "." || decoded == ".." {
		return "", fmt.Errorf("empty or traversal path component")
	}
	if strings.ContainsAny(decoded, "/\\") || strings.ContainsRune(decoded, 0) {
		return "", fmt.Errorf("path component contains forbidden characters")
	}
	for _, r := range decoded {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("path component contains control characters")
		}
	}
	return decoded, nil
}
