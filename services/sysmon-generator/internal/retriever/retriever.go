// Package retriever fetches raw Sysmon log payloads from object storage
// and decompresses them. Log shippers write zstd-compressed objects;
// uncompressed objects pass through untouched.
package retriever

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"github.com/fohlab/grapl/services/sysmon-generator/internal/config"
)

// zstd frame magic, little-endian.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Retriever downloads and decodes one object per call. Safe for
// concurrent use.
type Retriever struct {
	client  *s3.Client
	decoder *zstd.Decoder
	logger  *slog.Logger

	objectsFetched atomic.Uint64
	bytesFetched   atomic.Uint64
}

// New creates a Retriever against the configured S3 endpoint.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Retriever, error) {
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
		// S3-compatible storage (MinIO, etc.)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		})
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Retriever{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		decoder: decoder,
		logger:  logger.With("component", "retriever"),
	}, nil
}

// Fetch downloads bucket/key and returns the decompressed payload.
func (r *Retriever) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}

	r.objectsFetched.Add(1)
	r.bytesFetched.Add(uint64(len(raw)))

	if !bytes.HasPrefix(raw, zstdMagic) {
		return raw, nil
	}

	payload, err := r.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress s3://%s/%s: %w", bucket, key, err)
	}
	return payload, nil
}

// Stats returns retriever counters.
func (r *Retriever) Stats() map[string]uint64 {
	return map[string]uint64{
		"objects_fetched": r.objectsFetched.Load(),
		"bytes_fetched":   r.bytesFetched.Load(),
	}
}
