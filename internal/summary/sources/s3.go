package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/i474232898/monthly-weather-stats/internal/resilience"
)

// ErrObjectNotFound is returned when the bucket has no object under the key.
var ErrObjectNotFound = errors.New("object not found")

// S3API is the subset of *s3.Client used here.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client loads the default AWS configuration. A non-empty endpoint
// points the client at an S3-compatible service with path-style addressing.
// A positive timeout bounds each HTTP round trip.
func NewS3Client(ctx context.Context, region, endpoint string, timeout time.Duration) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Store reads summary objects from, and writes job output to, one bucket.
type S3Store struct {
	client S3API
	bucket string
	policy *resilience.Policy
}

func NewS3Store(client S3API, bucket string, backoff resilience.BackoffConfig) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		policy: resilience.NewPolicy("s3:"+bucket, backoff),
	}
}

// WithBucket returns a store for another bucket sharing the client and breaker.
func (s *S3Store) WithBucket(bucket string) *S3Store {
	return &S3Store{client: s.client, bucket: bucket, policy: s.policy}
}

// Fetch returns the full body of the object stored under key.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	body, err := s.OpenObject(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// OpenObject streams an object from any bucket reachable with the client.
func (s *S3Store) OpenObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (*s3.GetObjectOutput, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return nil, resilience.Permanent(ErrObjectNotFound)
			}
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Put uploads body under key and returns the run ID stored in its metadata.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	runID := uuid.NewString()
	_, err := resilience.Do(ctx, s.policy, func(ctx context.Context) (*s3.PutObjectOutput, error) {
		return s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
			Metadata:    map[string]string{"run-id": runID},
		})
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return runID, nil
}
