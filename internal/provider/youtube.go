package provider

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/ytdlder/ytdlder/internal/errs"
)

// YouTube implements Client on top of github.com/kkdai/youtube/v2.
type YouTube struct {
	client youtube.Client
}

// NewYouTube constructs a YouTube provider. httpClient may be nil.
func NewYouTube(httpClient *http.Client) *YouTube {
	return &YouTube{client: youtube.Client{HTTPClient: httpClient}}
}

// ValidateURL reports whether raw looks like a resolvable YouTube URL or
// video ID, returning the extracted video ID.
func ValidateURL(raw string) (string, error) {
	id, err := youtube.ExtractVideoID(raw)
	if err != nil {
		return "", errs.E(errs.Validation, "invalid video URL", err)
	}
	return id, nil
}

func (y *YouTube) Video(ctx context.Context, assetID string) (*VideoInfo, error) {
	v, err := y.client.GetVideoContext(ctx, assetID)
	if err != nil {
		return nil, classifyVideoErr(err)
	}

	info := &VideoInfo{
		ID:       v.ID,
		Title:    v.Title,
		Author:   v.Author,
		Duration: v.Duration,
		Formats:  make([]MediaFormat, 0, len(v.Formats)),
		src:      v,
	}
	if n := len(v.Thumbnails); n > 0 {
		info.Thumbnail = v.Thumbnails[n-1].URL
	}
	for i := range v.Formats {
		info.Formats = append(info.Formats, convertFormat(&v.Formats[i]))
	}
	return info, nil
}

func (y *YouTube) Stream(ctx context.Context, info *VideoInfo, f *MediaFormat) (io.ReadCloser, int64, error) {
	v, ok := info.src.(*youtube.Video)
	if !ok {
		return nil, 0, errs.E(errs.UpstreamFetch, "video info lacks a provider handle", nil)
	}

	itag, err := strconv.Atoi(f.Tag)
	if err != nil {
		return nil, 0, errs.Ef(errs.Validation, err, "malformed format tag %q", f.Tag)
	}
	matches := v.Formats.Itag(itag)
	if len(matches) == 0 {
		return nil, 0, errs.Ef(errs.NotFound, nil, "format %s no longer offered by source", f.Tag)
	}
	yf := &matches[0]

	rc, size, err := y.client.GetStreamContext(ctx, v, yf)
	if err != nil {
		return nil, 0, errs.E(errs.UpstreamFetch, "open source stream", err)
	}
	return rc, size, nil
}

// convertFormat maps the provider format onto the pipeline's model.
func convertFormat(f *youtube.Format) MediaFormat {
	mediaType, params, err := mime.ParseMediaType(f.MimeType)
	if err != nil {
		mediaType = f.MimeType
	}
	container := ""
	if idx := strings.IndexByte(mediaType, '/'); idx >= 0 {
		container = mediaType[idx+1:]
	}

	return MediaFormat{
		Tag:           strconv.Itoa(f.ItagNo),
		Container:     container,
		HasVideo:      strings.HasPrefix(mediaType, "video/"),
		HasAudio:      f.AudioChannels > 0 || strings.HasPrefix(mediaType, "audio/"),
		QualityLabel:  f.QualityLabel,
		Bitrate:       f.Bitrate,
		ContentLength: f.ContentLength,
		FPS:           f.FPS,
		Codecs:        params["codecs"],
	}
}

// classifyVideoErr assigns an error kind from the provider's structured
// errors. The playability status field is the contract here, not the text.
func classifyVideoErr(err error) error {
	var playability *youtube.ErrPlayabiltyStatus
	if errors.As(err, &playability) {
		switch playability.Status {
		case "LOGIN_REQUIRED":
			return errs.E(errs.Forbidden, "source requires sign-in", err)
		default:
			return errs.E(errs.NotFound, "video unavailable", err)
		}
	}
	switch {
	case errors.Is(err, youtube.ErrVideoIDMinLength),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID):
		return errs.E(errs.Validation, "invalid video ID", err)
	case errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return errs.E(errs.Forbidden, "video not playable", err)
	}
	return errs.E(errs.Internal, "resolve video info", err)
}
