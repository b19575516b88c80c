// Package stage manages per-asset staging directories for in-flight fetch
// and merge outputs. Artifacts are scoped by a per-request suffix so
// concurrent requests against the same asset never collide, and cleanup by
// suffix is safe to run on every exit path.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ytdlder/ytdlder/internal/log"
)

// Kind tags a staging artifact by the elementary stream it holds.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	// KindMerged is the merge stage's temp output before store commit.
	KindMerged Kind = "merged"
)

// Store hands out staging paths under a fixed root.
type Store struct {
	root string
}

// NewStore creates a staging store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the staging root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the staging directory for an asset, creating it if necessary.
// This is the only shared mutation between concurrent requests for the same
// asset, so it happens before any per-request goroutines start.
func (s *Store) Dir(assetID string) (string, error) {
	if err := validComponent(assetID); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, assetID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// ArtifactPath returns the path for one artifact of a request. The file is
// not created; ffmpeg and the fetch stage write it.
func (s *Store) ArtifactPath(assetID, suffix string, kind Kind, ext string) (string, error) {
	dir, err := s.Dir(assetID)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.%s", suffix, kind, ext)
	return filepath.Join(dir, name), nil
}

// Cleanup removes every staging artifact carrying the request's suffix.
// It is best-effort and safe to call when nothing was ever written; the
// asset directory itself is removed once empty.
func (s *Store) Cleanup(assetID, suffix string) {
	logger := log.WithComponent("stage")
	if validComponent(assetID) != nil || suffix == "" {
		return
	}
	dir := filepath.Join(s.root, assetID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), suffix+"_") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to remove staging artifact")
		}
	}
	// Ignore the error: the directory stays when other requests still stage here.
	_ = os.Remove(dir)
}

// Leftovers lists staging artifacts still present for a request suffix.
func (s *Store) Leftovers(assetID, suffix string) []string {
	dir := filepath.Join(s.root, assetID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), suffix+"_") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out
}

// validComponent rejects path components that could escape the root.
func validComponent(c string) error {
	if c == "" || c == "." || c == ".." {
		return fmt.Errorf("invalid path component %q", c)
	}
	if strings.ContainsAny(c, `/\`) {
		return fmt.Errorf("path component %q contains a separator", c)
	}
	return nil
}
