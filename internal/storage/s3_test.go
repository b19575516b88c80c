package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytdlder/ytdlder/internal/errs"
)

type fakePutter struct {
	calls    int
	failures int // fail the first n calls
	keys     []string
	bodies   []int64
}

func (f *fakePutter) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	f.keys = append(f.keys, *input.Key)
	if input.ContentLength != nil {
		f.bodies = append(f.bodies, *input.ContentLength)
	}
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	return &s3.PutObjectOutput{}, nil
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Clip_1080p.mp4")
	require.NoError(t, os.WriteFile(path, []byte("merged"), 0o600))
	return path
}

func newTestPublisher(client ObjectPutter, attempts int) (*Publisher, *[]time.Duration) {
	p := NewWithClient(client, Options{
		Bucket:        "ytdlder",
		PublicBaseURL: "https://cdn.example.com/ytdlder",
		Attempts:      attempts,
		BaseDelay:     100 * time.Millisecond,
	})
	var delays []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return p, &delays
}

func TestUploadFirstAttemptSucceeds(t *testing.T) {
	putter := &fakePutter{}
	p, delays := newTestPublisher(putter, 3)

	url, err := p.Upload(context.Background(), "vid1/Clip_1080p.mp4", writeArtifact(t))
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/ytdlder/vid1/Clip_1080p.mp4", url)
	assert.Equal(t, 1, putter.calls)
	assert.Empty(t, *delays)
	assert.Equal(t, []int64{int64(len("merged"))}, putter.bodies)
}

func TestUploadRecoversAfterTransientFailure(t *testing.T) {
	putter := &fakePutter{failures: 1}
	p, delays := newTestPublisher(putter, 3)

	_, err := p.Upload(context.Background(), "vid1/a.mp4", writeArtifact(t))
	require.NoError(t, err)
	assert.Equal(t, 2, putter.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, *delays)
}

// Exhausted retries must use exactly the configured number of attempts with
// strictly increasing delays, surface a storage-kind error, and leave the
// local artifact in place.
func TestUploadExhaustsRetries(t *testing.T) {
	putter := &fakePutter{failures: 99}
	p, delays := newTestPublisher(putter, 3)

	artifact := writeArtifact(t)
	_, err := p.Upload(context.Background(), "vid1/a.mp4", artifact)
	require.Error(t, err)

	assert.Equal(t, errs.Storage, errs.KindOf(err))
	assert.Equal(t, 3, putter.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
	assert.FileExists(t, artifact, "failed upload must not delete the local artifact")
}

func TestUploadAbortsWhenContextCancelled(t *testing.T) {
	putter := &fakePutter{failures: 99}
	p, _ := newTestPublisher(putter, 3)
	p.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Upload(ctx, "vid1/a.mp4", writeArtifact(t))
	require.Error(t, err)
	assert.Equal(t, errs.Storage, errs.KindOf(err))
	assert.Equal(t, 1, putter.calls, "no retry after cancellation")
}

func TestUploadMissingLocalFile(t *testing.T) {
	putter := &fakePutter{}
	p, _ := newTestPublisher(putter, 3)

	_, err := p.Upload(context.Background(), "vid1/a.mp4", filepath.Join(t.TempDir(), "gone.mp4"))
	require.Error(t, err)
	assert.Equal(t, errs.Storage, errs.KindOf(err))
	assert.Zero(t, putter.calls, "open fails before the client is reached")
}

func TestPublicURLFallsBackToEndpoint(t *testing.T) {
	p := NewWithClient(&fakePutter{}, Options{
		Bucket:   "ytdlder",
		Endpoint: "https://minio.local:9000/",
	})
	url, err := p.Upload(context.Background(), "vid1/a.mp4", writeArtifact(t))
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local:9000/ytdlder/vid1/a.mp4", url)
}
