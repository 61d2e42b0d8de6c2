package cloud

import (
	"context"
	"encoding/hex"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/models"
)

// DecodeKey turns a fingerprint object key of the form
// <sitesChecksum>/<hex(url)> back into the sequencing file URL.
// Folder placeholders decode to the empty string.
func DecodeKey(sitesChecksum, key string) (string, error) {
	prefix := sitesChecksum + "/"
	if !strings.HasPrefix(key, prefix) {
		return "", fmt.Errorf("key %q is not under %q", key, prefix)
	}
	raw, err := hex.DecodeString(strings.TrimSuffix(key[len(prefix):], "/"))
	if err != nil {
		return "", fmt.Errorf("decode key %q: %w", key, err)
	}
	return string(raw), nil
}

// S3Client is the subset of the S3 API used to list fingerprints.
type S3Client interface {
	s3.ListObjectsV2APIClient
}

// S3Enumerator lists the fingerprints for one sites checksum in an S3 bucket.
type S3Enumerator struct {
	client        S3Client
	bucket        string
	sitesChecksum string
	metrics       *metrics.Collector
	logger        *slog.Logger
}

// NewS3Enumerator creates an enumerator. metrics may be nil.
func NewS3Enumerator(client S3Client, bucket, sitesChecksum string, m *metrics.Collector, logger *slog.Logger) *S3Enumerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Enumerator{client: client, bucket: bucket, sitesChecksum: sitesChecksum, metrics: m, logger: logger}
}

// All yields every fingerprint, following continuation tokens. Each call
// starts a fresh listing. Iteration stops after the first error.
func (e *S3Enumerator) All(ctx context.Context) iter.Seq2[models.Fingerprint, error] {
	return func(yield func(models.Fingerprint, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(e.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(e.bucket),
			Prefix: aws.String(e.sitesChecksum + "/"),
		})

		for paginator.HasMorePages() {
			start := time.Now()
			page, err := paginator.NextPage(ctx)
			e.metrics.Since(metrics.OpList, start, err)
			if err != nil {
				yield(models.Fingerprint{}, fmt.Errorf("list s3://%s/%s: %w", e.bucket, e.sitesChecksum, err))
				return
			}
			for _, obj := range page.Contents {
				fp, ok := decodeObject(e.logger, e.sitesChecksum, aws.ToString(obj.Key), aws.ToTime(obj.LastModified))
				if !ok {
					continue
				}
				if !yield(fp, nil) {
					return
				}
			}
		}
	}
}

// MinioLister is the subset of the MinIO client used to list fingerprints.
type MinioLister interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// NewMinioClient connects to an S3-compatible endpoint with static credentials.
func NewMinioClient(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// MinioEnumerator lists fingerprints from an S3-compatible store such as a
// local MinIO used for testing the pipeline end to end.
type MinioEnumerator struct {
	client        MinioLister
	bucket        string
	sitesChecksum string
	metrics       *metrics.Collector
	logger        *slog.Logger
}

// NewMinioEnumerator creates an enumerator. metrics may be nil.
func NewMinioEnumerator(client MinioLister, bucket, sitesChecksum string, m *metrics.Collector, logger *slog.Logger) *MinioEnumerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MinioEnumerator{client: client, bucket: bucket, sitesChecksum: sitesChecksum, metrics: m, logger: logger}
}

// All yields every fingerprint. Iteration stops after the first error.
func (e *MinioEnumerator) All(ctx context.Context) iter.Seq2[models.Fingerprint, error] {
	return func(yield func(models.Fingerprint, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		// Cancelling stops the listing goroutine when the caller breaks early.
		defer cancel()

		start := time.Now()
		var listErr error
		defer func() { e.metrics.Since(metrics.OpList, start, listErr) }()

		for obj := range e.client.ListObjects(ctx, e.bucket, minio.ListObjectsOptions{
			Prefix:    e.sitesChecksum + "/",
			Recursive: true,
		}) {
			if obj.Err != nil {
				listErr = obj.Err
				yield(models.Fingerprint{}, fmt.Errorf("list %s/%s: %w", e.bucket, e.sitesChecksum, obj.Err))
				return
			}
			fp, ok := decodeObject(e.logger, e.sitesChecksum, obj.Key, obj.LastModified)
			if !ok {
				continue
			}
			if !yield(fp, nil) {
				return
			}
		}
	}
}

func decodeObject(logger *slog.Logger, sitesChecksum, key string, modified time.Time) (models.Fingerprint, bool) {
	url, err := DecodeKey(sitesChecksum, key)
	if err != nil {
		logger.Warn("skipping fingerprint object", "key", key, "error", err)
		return models.Fingerprint{}, false
	}
	if url == "" {
		return models.Fingerprint{}, false
	}
	return models.Fingerprint{Key: key, URL: url, LastModified: modified}, true
}
