// Package pipeline implements the download-merge-publish orchestrator. One
// Run executes the staged sequence select → cache check → fetch → merge →
// optional durable upload, publishing a progress event at every transition
// and cleaning staging artifacts on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ytdlder/ytdlder/internal/errs"
	"github.com/ytdlder/ytdlder/internal/ffmpeg"
	"github.com/ytdlder/ytdlder/internal/formats"
	"github.com/ytdlder/ytdlder/internal/log"
	"github.com/ytdlder/ytdlder/internal/metrics"
	"github.com/ytdlder/ytdlder/internal/progress"
	"github.com/ytdlder/ytdlder/internal/provider"
	"github.com/ytdlder/ytdlder/internal/stage"
	"github.com/ytdlder/ytdlder/internal/store"
)

// Transcoder is the external mux/transcode capability.
type Transcoder interface {
	Mux(ctx context.Context, spec ffmpeg.MuxSpec) error
	TranscodeAudio(ctx context.Context, spec ffmpeg.AudioSpec) error
}

// Uploader relocates a committed artifact to durable storage.
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) (string, error)
}

// Options tunes one Pipeline instance.
type Options struct {
	// PublicBaseURL prefixes locally served artifact URLs,
	// e.g. "http://localhost:8080".
	PublicBaseURL string
	// MaxConcurrentMerges bounds simultaneous ffmpeg child processes.
	MaxConcurrentMerges int64
	FetchTimeout        time.Duration
	MergeTimeout        time.Duration
	UploadTimeout       time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxConcurrentMerges <= 0 {
		out.MaxConcurrentMerges = 2
	}
	if out.FetchTimeout <= 0 {
		out.FetchTimeout = 10 * time.Minute
	}
	if out.MergeTimeout <= 0 {
		out.MergeTimeout = 10 * time.Minute
	}
	if out.UploadTimeout <= 0 {
		out.UploadTimeout = 5 * time.Minute
	}
	return out
}

// Request identifies one download.
type Request struct {
	AssetID   string
	FormatTag string
	// CorrelationID routes progress events; it never participates in cache
	// identity.
	CorrelationID string
}

// Result is the published artifact location.
type Result struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Pipeline wires the stages together.
type Pipeline struct {
	provider   provider.Client
	store      store.Store
	stage      *stage.Store
	transcoder Transcoder
	uploader   Uploader // nil disables the durable upload stage
	hub        *progress.Hub
	sem        *semaphore.Weighted
	opts       Options
}

// New assembles a Pipeline. uploader may be nil when durable storage is
// disabled.
func New(p provider.Client, st store.Store, stg *stage.Store, tc Transcoder, up Uploader, hub *progress.Hub, opts Options) *Pipeline {
	o := opts.withDefaults()
	return &Pipeline{
		provider:   p,
		store:      st,
		stage:      stg,
		transcoder: tc,
		uploader:   up,
		hub:        hub,
		sem:        semaphore.NewWeighted(o.MaxConcurrentMerges),
		opts:       o,
	}
}

var _ Transcoder = (*ffmpeg.Runner)(nil)

// Run executes the pipeline for one request. Every exit path emits a
// terminal progress event and removes this request's staging artifacts; the
// merged artifact survives locally unless a durable upload succeeded.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	ctx = log.ContextWithCorrelationID(ctx, req.CorrelationID)
	logger := log.WithComponentFromContext(ctx, "pipeline")

	res, err := p.run(ctx, req, logger)
	if err != nil {
		kind := errs.KindOf(err)
		metrics.PipelineRunsTotal.WithLabelValues(string(kind)).Inc()
		logger.Error().Err(err).Str("asset_id", req.AssetID).Str("format_tag", req.FormatTag).Msg("pipeline failed")
		p.hub.Publish(req.CorrelationID, progress.Event{
			Message: "Download failed",
			Error:   err.Error(),
			Final:   true,
		})
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, logger zerolog.Logger) (*Result, error) {
	emit := func(msg string) {
		p.hub.Publish(req.CorrelationID, progress.Event{Message: msg})
	}

	// Selecting.
	emit("Fetching video info")
	selectStart := time.Now()
	info, err := p.provider.Video(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	sel, err := formats.Select(info.Formats, req.FormatTag)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("selecting").Observe(time.Since(selectStart).Seconds())

	filename := formats.ArtifactName(info.Title, sel)
	key := store.Key{AssetID: req.AssetID, Filename: filename}
	publicURL := fmt.Sprintf("%s/api/files/%s/%s", p.opts.PublicBaseURL, req.AssetID, filename)

	// CacheCheck: the deterministic artifact path is the idempotency key.
	exists, err := p.store.Exists(key)
	if err != nil {
		logger.Warn().Err(err).Msg("artifact existence check failed, treating as miss")
	}
	if exists {
		logger.Info().Str("filename", filename).Msg("artifact already published, skipping pipeline")
		metrics.PipelineRunsTotal.WithLabelValues("cache_hit").Inc()
		p.hub.Publish(req.CorrelationID, progress.Event{
			Message:  "Already available",
			URL:      publicURL,
			Filename: filename,
			Final:    true,
		})
		return &Result{URL: publicURL, Filename: filename}, nil
	}

	// Staging artifacts carry a per-run suffix; cleanup runs on every exit.
	suffix := uuid.NewString()
	defer p.stage.Cleanup(req.AssetID, suffix)

	// Fetching.
	fetchStart := time.Now()
	videoPath, audioPath, err := p.fetchStreams(ctx, req, info, sel, suffix, emit)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("fetching").Observe(time.Since(fetchStart).Seconds())

	// Merging.
	mergeStart := time.Now()
	if err := p.merge(ctx, req, sel, key, suffix, videoPath, audioPath, emit); err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("merging").Observe(time.Since(mergeStart).Seconds())

	// Uploading (policy-gated).
	if p.uploader != nil {
		emit("Uploading to storage")
		uploadStart := time.Now()
		durableURL, err := p.publishDurable(ctx, key)
		if err != nil {
			// The local artifact is retained so the request is not lost.
			return nil, err
		}
		publicURL = durableURL
		metrics.StageDuration.WithLabelValues("uploading").Observe(time.Since(uploadStart).Seconds())
	}

	// Done.
	metrics.PipelineRunsTotal.WithLabelValues("done").Inc()
	logger.Info().Str("filename", filename).Str("url", publicURL).Msg("download published")
	p.hub.Publish(req.CorrelationID, progress.Event{
		Message:  "Done",
		URL:      publicURL,
		Filename: filename,
		Final:    true,
	})
	return &Result{URL: publicURL, Filename: filename}, nil
}

// fetchStreams retrieves the required elementary streams into staging.
// Video and audio are fetched concurrently; the staging directory was
// created before the goroutines start.
func (p *Pipeline) fetchStreams(ctx context.Context, req Request, info *provider.VideoInfo, sel *formats.Selection, suffix string, emit func(string)) (videoPath, audioPath string, err error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(fetchCtx)

	if sel.AudioOnly() {
		emit("Downloading audio stream")
		audioPath, err = p.stage.ArtifactPath(req.AssetID, suffix, stage.KindAudio, containerExt(&sel.Requested))
		if err != nil {
			return "", "", errs.E(errs.UpstreamFetch, "prepare staging", err)
		}
		requested := sel.Requested
		g.Go(func() error { return p.fetchOne(gctx, info, &requested, audioPath) })
	} else {
		emit("Downloading video stream")
		videoPath, err = p.stage.ArtifactPath(req.AssetID, suffix, stage.KindVideo, containerExt(&sel.Requested))
		if err != nil {
			return "", "", errs.E(errs.UpstreamFetch, "prepare staging", err)
		}
		requested := sel.Requested
		g.Go(func() error { return p.fetchOne(gctx, info, &requested, videoPath) })

		if sel.Audio != nil {
			emit("Downloading audio stream")
			audioPath, err = p.stage.ArtifactPath(req.AssetID, suffix, stage.KindAudio, containerExt(sel.Audio))
			if err != nil {
				return "", "", errs.E(errs.UpstreamFetch, "prepare staging", err)
			}
			audio := *sel.Audio
			g.Go(func() error { return p.fetchOne(gctx, info, &audio, audioPath) })
		}
	}

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return videoPath, audioPath, nil
}

// fetchOne streams one format into a staging artifact.
func (p *Pipeline) fetchOne(ctx context.Context, info *provider.VideoInfo, f *provider.MediaFormat, dest string) error {
	rc, _, err := p.provider.Stream(ctx, info, f)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dest) // #nosec G304 -- staging path built by stage.Store
	if err != nil {
		return errs.E(errs.UpstreamFetch, "create staging artifact", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return errs.Ef(errs.UpstreamFetch, err, "stream format %s", f.Tag)
	}
	if err := out.Close(); err != nil {
		return errs.E(errs.UpstreamFetch, "finish staging artifact", err)
	}
	return nil
}

// merge produces the final artifact and commits it under key. Self-contained
// video skips ffmpeg entirely: the fetched artifact is promoted as-is.
func (p *Pipeline) merge(ctx context.Context, req Request, sel *formats.Selection, key store.Key, suffix, videoPath, audioPath string, emit func(string)) error {
	if sel.SelfContained() {
		emit("Finalizing download")
		return p.store.Commit(key, videoPath)
	}

	mergeCtx, cancel := context.WithTimeout(ctx, p.opts.MergeTimeout)
	defer cancel()

	// Bound concurrent external processes.
	if err := p.sem.Acquire(mergeCtx, 1); err != nil {
		return errs.E(errs.Processing, "wait for transcode slot", err)
	}
	defer p.sem.Release(1)

	outExt := "mp3"
	if !sel.AudioOnly() {
		outExt = containerExt(&sel.Requested)
	}
	mergedPath, err := p.stage.ArtifactPath(req.AssetID, suffix, stage.KindMerged, outExt)
	if err != nil {
		return errs.E(errs.Processing, "prepare merge output", err)
	}

	if sel.AudioOnly() {
		emit("Transcoding audio")
		err = p.transcoder.TranscodeAudio(mergeCtx, ffmpeg.AudioSpec{
			InputPath: audioPath,
			OutPath:   mergedPath,
		})
	} else {
		emit("Merging streams")
		err = p.transcoder.Mux(mergeCtx, ffmpeg.MuxSpec{
			VideoPath: videoPath,
			AudioPath: audioPath,
			OutPath:   mergedPath,
		})
	}
	if err != nil {
		return err
	}
	return p.store.Commit(key, mergedPath)
}

// publishDurable uploads the committed artifact and removes the local copy
// once the durable location is confirmed.
func (p *Pipeline) publishDurable(ctx context.Context, key store.Key) (string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, p.opts.UploadTimeout)
	defer cancel()

	localPath, err := p.store.Path(key)
	if err != nil {
		return "", errs.E(errs.Storage, "resolve artifact path", err)
	}

	durableURL, err := p.uploader.Upload(uploadCtx, key.AssetID+"/"+key.Filename, localPath)
	if err != nil {
		return "", err
	}

	if err := p.store.Remove(key); err != nil {
		// The durable copy exists; a stale local file is only a disk leak.
		logger := log.WithComponentFromContext(ctx, "pipeline")
		logger.Warn().Err(err).
			Str("asset_id", key.AssetID).Str("filename", key.Filename).
			Msg("failed to remove local artifact after upload")
	}
	return durableURL, nil
}

func containerExt(f *provider.MediaFormat) string {
	if f.Container == "" {
		return "mp4"
	}
	return f.Container
}
