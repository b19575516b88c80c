// Package storage relocates merged artifacts to S3-compatible durable
// storage. Uploads retry a fixed number of times with linearly increasing
// backoff; exhaustion surfaces a storage-kind error and leaves the local
// artifact untouched for the caller to keep.
package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ytdlder/ytdlder/internal/errs"
	"github.com/ytdlder/ytdlder/internal/log"
	"github.com/ytdlder/ytdlder/internal/metrics"
)

// ObjectPutter is the slice of the S3 client the publisher needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the publisher.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // S3-compatible endpoint; empty for AWS proper
	AccessKey string
	SecretKey string
	// PublicBaseURL is the externally reachable prefix results are served
	// from; empty falls back to {endpoint}/{bucket}.
	PublicBaseURL string

	Attempts  int           // upload attempts, default 3
	BaseDelay time.Duration // backoff unit, delay = attempt × BaseDelay
}

// Publisher uploads artifacts with retry.
type Publisher struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	attempts  int
	baseDelay time.Duration

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Publisher with a real S3 client.
func New(ctx context.Context, opts Options) (*Publisher, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage bucket must not be empty")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return NewWithClient(client, opts), nil
}

// NewWithClient builds a Publisher around an existing client. Tests inject
// fakes here.
func NewWithClient(client ObjectPutter, opts Options) *Publisher {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	publicURL := strings.TrimSuffix(opts.PublicBaseURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimSuffix(opts.Endpoint, "/") + "/" + opts.Bucket
	}
	return &Publisher{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: publicURL,
		attempts:  attempts,
		baseDelay: baseDelay,
		sleep:     sleepCtx,
	}
}

// Upload puts the local artifact under key and returns its durable URL.
// The key is the deterministic artifact identity, so repeated uploads
// overwrite the same object.
func (p *Publisher) Upload(ctx context.Context, key, localPath string) (string, error) {
	logger := log.WithComponentFromContext(ctx, "storage")

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, time.Duration(attempt-1)*p.baseDelay); err != nil {
				return "", errs.E(errs.Storage, "upload aborted", err)
			}
		}

		err := p.putOnce(ctx, key, localPath)
		if err == nil {
			metrics.UploadAttemptsTotal.WithLabelValues("ok").Inc()
			logger.Info().Str("key", key).Int("attempt", attempt).Msg("artifact uploaded")
			return p.publicURL + "/" + key, nil
		}

		metrics.UploadAttemptsTotal.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Str("key", key).Int("attempt", attempt).Msg("upload attempt failed")
		lastErr = err
	}

	return "", errs.Ef(errs.Storage, lastErr, "upload of %s failed after %d attempts", key, p.attempts)
}

func (p *Publisher) putOnce(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath) // #nosec G304 -- path comes from the artifact store
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err = p.client.PutObject(ctx, input)
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
