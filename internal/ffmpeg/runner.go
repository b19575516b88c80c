// Package ffmpeg wraps the external ffmpeg binary behind the pipeline's
// transcode capability. The process exit status is the contract: a run only
// succeeds when ffmpeg exits zero and the output artifact exists.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/ytdlder/ytdlder/internal/errs"
	"github.com/ytdlder/ytdlder/internal/log"
	"github.com/ytdlder/ytdlder/internal/metrics"
	"github.com/ytdlder/ytdlder/internal/procgroup"
)

const stderrTail = 12

// Runner invokes the ffmpeg binary once per operation.
type Runner struct {
	BinPath     string
	KillTimeout time.Duration
}

// NewRunner creates a Runner. An empty binPath falls back to "ffmpeg" on PATH.
func NewRunner(binPath string, killTimeout time.Duration) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	return &Runner{BinPath: binPath, KillTimeout: killTimeout}
}

// Mux merges the staged video and audio streams into spec.OutPath.
func (r *Runner) Mux(ctx context.Context, spec MuxSpec) error {
	args, err := BuildMuxArgs(spec)
	if err != nil {
		return errs.E(errs.Processing, "build mux arguments", err)
	}
	return r.run(ctx, "mux", args, spec.OutPath)
}

// TranscodeAudio re-encodes the staged audio stream into spec.OutPath.
func (r *Runner) TranscodeAudio(ctx context.Context, spec AudioSpec) error {
	args, err := BuildAudioArgs(spec)
	if err != nil {
		return errs.E(errs.Processing, "build transcode arguments", err)
	}
	return r.run(ctx, "audio", args, spec.OutPath)
}

func (r *Runner) run(ctx context.Context, kind string, args []string, outPath string) error {
	logger := log.WithComponentFromContext(ctx, "ffmpeg")

	ring := newLineRing(256)
	cmd := exec.CommandContext(ctx, r.BinPath, args...) // #nosec G204 -- args are built internally
	cmd.Stderr = ring
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		return procgroup.Kill(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.KillTimeout

	start := time.Now()
	logger.Info().Str("kind", kind).Str("command", cmd.String()).Msg("starting ffmpeg")

	err := cmd.Run()
	if err != nil {
		// Make sure nothing from the group survives a failed run.
		_ = procgroup.Kill(cmd, syscall.SIGKILL)

		metrics.FFmpegRunsTotal.WithLabelValues(kind, "error").Inc()
		tail := ring.LastN(stderrTail)
		logger.Error().
			Str("kind", kind).
			Int("exit_code", exitCode(err)).
			Strs("stderr", tail).
			Dur("elapsed", time.Since(start)).
			Msg("ffmpeg failed")

		if ctx.Err() != nil {
			return errs.E(errs.Processing, "ffmpeg interrupted", ctx.Err())
		}
		return errs.Ef(errs.Processing, err, "ffmpeg %s failed (exit %d): %s",
			kind, exitCode(err), strings.Join(tail, " | "))
	}

	// Exit zero alone is not proof of success; the artifact must be there.
	info, statErr := os.Stat(outPath)
	if statErr != nil || info.Size() == 0 {
		metrics.FFmpegRunsTotal.WithLabelValues(kind, "missing_output").Inc()
		return errs.Ef(errs.Processing, statErr, "ffmpeg %s produced no output at %s", kind, outPath)
	}

	metrics.FFmpegRunsTotal.WithLabelValues(kind, "ok").Inc()
	logger.Info().
		Str("kind", kind).
		Int64("output_bytes", info.Size()).
		Dur("elapsed", time.Since(start)).
		Msg("ffmpeg finished")
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Probe reports whether the configured binary can be invoked at all. Used by
// startup validation so a missing ffmpeg surfaces before the first request.
func (r *Runner) Probe(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.BinPath, "-version") // #nosec G204
	if out, err := cmd.Output(); err != nil {
		return fmt.Errorf("ffmpeg probe (%s): %w", r.BinPath, err)
	} else if len(out) == 0 {
		return fmt.Errorf("ffmpeg probe (%s): empty version output", r.BinPath)
	}
	return nil
}
