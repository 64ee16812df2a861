package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"screenshot-capturer/internal/retry"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Storage struct {
	client *s3.Client
	config S3Config
}

type S3Config struct {
	Bucket string
	// Prefix is prepended to every key.
	Prefix string
	// EndpointURL overrides the S3 endpoint, e.g. for MinIO. Falls back to
	// S3_ENDPOINT_URL.
	EndpointURL string
	// RetryOn lists the retry conditions understood by retry.ParsePolicy.
	// Empty means retry.DefaultPolicy.
	RetryOn string
}

func NewS3Storage(ctx context.Context, s S3Config) (Storage, error) {
	if s.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	policy := retry.DefaultPolicy()
	if s.RetryOn != "" {
		p, err := retry.ParsePolicy(s.RetryOn)
		if err != nil {
			return nil, fmt.Errorf("invalid S3 retry policy: %w", err)
		}
		policy = p
	}

	optsFunc := []func(*config.LoadOptions) error{
		config.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: &retry.Transport{
				Base:            http.DefaultTransport,
				Backoff:         retry.Exponential(50*time.Millisecond, 2*time.Second, 3, nil),
				Policy:          policy,
				MaxRetryAfter:   5 * time.Second,
				MaxBufferedBody: 64 << 20,
			},
		}),
		// Retries happen in the transport, where the body can be rewound.
		config.WithRetryMaxAttempts(1),
	}

	s3EndpointUrl := s.EndpointURL
	if s3EndpointUrl == "" {
		s3EndpointUrl = os.Getenv("S3_ENDPOINT_URL")
	}
	if s3EndpointUrl != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               s3EndpointUrl,
				HostnameImmutable: true,
			}, nil
		})
		optsFunc = append(optsFunc, config.WithEndpointResolverWithOptions(resolver))
	}

	c, err := config.LoadDefaultConfig(ctx, optsFunc...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(c, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &s3Storage{
		client: s3Client,
		config: s,
	}, nil
}

func (s *s3Storage) key(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.config.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

func (s *s3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	contentType := http.DetectContentType(data)
	key = s.key(key)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, key), nil
}

func (s *s3Storage) Get(ctx context.Context, url string) ([]byte, error) {
	key := strings.TrimPrefix(url, fmt.Sprintf("s3://%s/", s.config.Bucket))

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	var buffer bytes.Buffer
	_, err = buffer.ReadFrom(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}

	return buffer.Bytes(), nil
}
