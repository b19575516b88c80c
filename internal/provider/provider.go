// Package provider abstracts the source of media metadata and elementary
// stream bytes. The pipeline depends only on the Client interface; the
// concrete YouTube implementation lives in youtube.go.
package provider

import (
	"context"
	"io"
	"time"
)

// MediaFormat describes one rendition of a source asset. It is immutable and
// sourced once per request from the provider.
type MediaFormat struct {
	// Tag is the opaque identifier selecting this rendition (the itag for
	// YouTube sources).
	Tag           string
	Container     string // "mp4", "webm", ...
	HasVideo      bool
	HasAudio      bool
	QualityLabel  string // "1080p", "720p60", ... empty for audio-only
	Bitrate       int
	ContentLength int64
	FPS           int
	Codecs        string
}

// AudioOnly reports whether the format carries audio without video.
func (f *MediaFormat) AudioOnly() bool { return f.HasAudio && !f.HasVideo }

// VideoInfo is the provider's metadata for a single asset.
type VideoInfo struct {
	ID        string
	Title     string
	Author    string
	Thumbnail string
	Duration  time.Duration
	Formats   []MediaFormat

	src any // provider-private handle reused by Stream
}

// Client fetches metadata and elementary stream bytes for assets.
type Client interface {
	// Video resolves metadata and the full format list for an asset ID.
	Video(ctx context.Context, assetID string) (*VideoInfo, error)

	// Stream opens the byte stream for one format of a previously resolved
	// asset. The returned size may be zero when the provider does not know
	// the content length up front.
	Stream(ctx context.Context, info *VideoInfo, f *MediaFormat) (io.ReadCloser, int64, error)
}
