// Package metrics provides Prometheus metrics for the ytdlder pipeline.
// Labels stay low-cardinality: no asset, request or correlation ids.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRunsTotal counts finished pipeline runs by result
	// (done, cache_hit, or the error kind).
	PipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdlder_pipeline_runs_total",
		Help: "Total number of finished download pipeline runs, by result.",
	}, []string{"result"})

	// StageDuration observes wall-clock time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytdlder_pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})

	// FFmpegRunsTotal counts external ffmpeg invocations by kind and result.
	FFmpegRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdlder_ffmpeg_runs_total",
		Help: "Total number of ffmpeg invocations, by kind (mux/audio) and result.",
	}, []string{"kind", "result"})

	// UploadAttemptsTotal counts durable upload attempts by result.
	UploadAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdlder_upload_attempts_total",
		Help: "Total number of durable storage upload attempts, by result.",
	}, []string{"result"})

	// ProgressDroppedTotal counts progress events published without a
	// subscriber or onto a full subscriber channel.
	ProgressDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdlder_progress_dropped_total",
		Help: "Total number of dropped progress events.",
	})

	// FileRequestsTotal counts artifact file requests by outcome.
	FileRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytdlder_file_requests_total",
		Help: "Total number of artifact file requests, by outcome.",
	}, []string{"outcome"})
)
