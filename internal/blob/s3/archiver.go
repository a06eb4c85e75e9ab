// Package s3blob archives cold cache snapshots to S3-compatible object
// storage (AWS S3, MinIO, R2).
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/perplexfi/perplex-go/internal/cache"
	"github.com/perplexfi/perplex-go/internal/domain"
)

// ClientConfig holds the configuration for connecting to an S3-compatible
// object store.
type ClientConfig struct {
	// Endpoint is the S3-compatible endpoint URL. Leave empty for standard
	// AWS S3.
	Endpoint string

	// Region is the AWS region or equivalent for the provider.
	Region string

	// Bucket is the bucket holding archived snapshots.
	Bucket string

	// AccessKey and SecretKey authenticate against the provider.
	AccessKey string
	SecretKey string

	// ForcePathStyle forces path-style addressing (bucket in path rather
	// than subdomain). Required by MinIO and many S3-compatible providers.
	ForcePathStyle bool
}

// Archiver stores directory snapshots as timestamped JSON objects under a
// namespace prefix, plus a "latest" alias per namespace for cheap restores.
type Archiver struct {
	s3     *s3.Client
	bucket string
}

// New creates an Archiver from the given configuration.
func New(ctx context.Context, cfg ClientConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Health performs a HeadBucket call to verify connectivity and permissions.
func (a *Archiver) Health(ctx context.Context) error {
	_, err := a.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", a.bucket, err)
	}
	return nil
}

// PutSnapshot archives a snapshot under the namespace and returns the object
// key. The same bytes are also written to the namespace's "latest" alias.
func (a *Archiver) PutSnapshot(ctx context.Context, namespace string, snap cache.Snapshot) (string, error) {
	data, err := cache.EncodeSnapshot(snap)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/%s.json", namespace, time.Now().UTC().Format("20060102T150405Z"))
	for _, k := range []string{key, latestKey(namespace)} {
		_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(k),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return "", fmt.Errorf("s3blob: put snapshot %s: %w", k, err)
		}
	}
	return key, nil
}

// GetSnapshot fetches an archived snapshot by object key.
func (a *Archiver) GetSnapshot(ctx context.Context, key string) (cache.Snapshot, error) {
	out, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return cache.Snapshot{}, fmt.Errorf("s3blob: snapshot %s: %w", key, domain.ErrNotFound)
		}
		return cache.Snapshot{}, fmt.Errorf("s3blob: get snapshot %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("s3blob: read snapshot %s: %w", key, err)
	}

	snap, err := cache.DecodeSnapshot(data)
	if err != nil {
		return cache.Snapshot{}, fmt.Errorf("s3blob: decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// GetLatestSnapshot fetches the namespace's most recently archived snapshot.
func (a *Archiver) GetLatestSnapshot(ctx context.Context, namespace string) (cache.Snapshot, error) {
	return a.GetSnapshot(ctx, latestKey(namespace))
}

func latestKey(namespace string) string {
	return fmt.Sprintf("snapshots/%s/latest.json", namespace)
}

// normaliseEndpoint ensures the endpoint has a scheme, defaulting to https.
func normaliseEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
