// Package uploader persists generated subgraph batches to object storage
// for the downstream graph-merger to pick up.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/fohlab/grapl/pkg/graph"
	"github.com/fohlab/grapl/services/sysmon-generator/internal/config"
)

// Uploader writes one JSON object per non-empty batch. Safe for concurrent
// use.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger

	batchesUploaded atomic.Uint64
	bytesUploaded   atomic.Uint64
}

// New creates an Uploader targeting the configured subgraph bucket.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.SubgraphBucket,
		prefix: cfg.SubgraphPrefix,
		logger: logger.With("component", "uploader"),
	}, nil
}

// Upload persists one batch. It satisfies the generator's Sink contract;
// an empty batch is a valid outcome and produces no object.
func (u *Uploader) Upload(ctx context.Context, batch *graph.Batch) error {
	if len(batch.Subgraphs) == 0 {
		u.logger.Debug("skipping upload of empty batch")
		return nil
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	key := u.objectKey(time.Now().UTC())
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", u.bucket, key, err)
	}

	u.batchesUploaded.Add(1)
	u.bytesUploaded.Add(uint64(len(body)))
	u.logger.Info("uploaded subgraph batch",
		"key", key,
		"subgraphs", len(batch.Subgraphs),
		"bytes", len(body),
	)
	return nil
}

// objectKey builds a day-partitioned, collision-free object key.
func (u *Uploader) objectKey(now time.Time) string {
	return fmt.Sprintf("%s/%s/%d-%s.json",
		u.prefix,
		now.Format("2006/01/02"),
		now.UnixNano(),
		uuid.NewString(),
	)
}

// Stats returns uploader counters.
func (u *Uploader) Stats() map[string]uint64 {
	return map[string]uint64{
		"batches_uploaded": u.batchesUploaded.Load(),
		"bytes_uploaded":   u.bytesUploaded.Load(),
	}
}
