package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/goliatone/go-escrow-pipeline/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultRegion   = "us-east-1"
	defaultTimeout  = 30 * time.Second
	maxDownloadSize = 64 << 20
)

// ObjectAPI is the subset of the S3 client the storage service calls.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// PublicURL is the base of the URLs returned by Upload. It defaults to
	// Endpoint.
	PublicURL string
}

type Option func(*S3Storage)

func WithObjectAPI(api ObjectAPI) Option {
	return func(s *S3Storage) {
		if api != nil {
			s.objects = api
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *S3Storage) {
		if client != nil {
			s.http = client
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *S3Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type S3Storage struct {
	objects ObjectAPI
	http    *http.Client
	logger  core.Logger

	bucket    string
	publicURL string
}

// New loads the AWS configuration with static credentials and builds an S3
// client against the configured endpoint.
func New(ctx context.Context, cfg Config, opts ...Option) (*S3Storage, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	publicURL := strings.TrimSpace(cfg.PublicURL)
	if publicURL == "" {
		publicURL = strings.TrimSpace(cfg.Endpoint)
	}
	if publicURL == "" {
		return nil, fmt.Errorf("storage: endpoint or public url is required")
	}

	s := &S3Storage{
		http:      &http.Client{Timeout: defaultTimeout},
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		_, s.logger = glog.Resolve("pipeline.storage", nil, nil)
	}
	if s.objects == nil {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.objects = client
	}
	return s, nil
}

func newS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *S3Storage) Upload(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", core.BadInputError("storage: object key is required", nil)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.objects.PutObject(ctx, input); err != nil {
		return "", core.ExternalError(err, core.PipelineErrorDeliveryFailed, "storage: put object", map[string]any{
			"bucket": s.bucket,
			"key":    key,
		})
	}
	url := s.ObjectURL(key)
	s.logger.Debug("object uploaded", "url", url, "size", len(content))
	return url, nil
}

func (s *S3Storage) Download(ctx context.Context, url string) ([]byte, error) {
	if key, ok := s.KeyFromURL(url); ok {
		return s.getObject(ctx, key)
	}
	return s.fetch(ctx, url)
}

// ObjectURL is the URL Upload returns for key.
func (s *S3Storage) ObjectURL(key string) string {
	return s.publicURL + "/" + s.bucket + "/" + strings.TrimPrefix(key, "/")
}

// KeyFromURL reports the object key when url points into the service bucket.
func (s *S3Storage) KeyFromURL(url string) (string, bool) {
	prefix := s.publicURL + "/" + s.bucket + "/"
	trimmed := strings.TrimSpace(url)
	if !strings.HasPrefix(trimmed, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(trimmed, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}

func (s *S3Storage) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, core.MissingDataError("storage: object not found", map[string]any{
				"bucket": s.bucket,
				"key":    key,
			})
		}
		return nil, core.ExternalError(err, core.PipelineErrorDeliveryFailed, "storage: get object", map[string]any{
			"bucket": s.bucket,
			"key":    key,
		})
	}
	defer out.Body.Close()
	content, err := io.ReadAll(io.LimitReader(out.Body, maxDownloadSize))
	if err != nil {
		return nil, core.ExternalError(err, core.PipelineErrorDeliveryFailed, "storage: read object", map[string]any{
			"key": key,
		})
	}
	return content, nil
}

func (s *S3Storage) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.BadInputError(fmt.Sprintf("storage: invalid url: %v", err), map[string]any{"url": url})
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, core.ExternalError(err, core.PipelineErrorDeliveryFailed, "storage: fetch", map[string]any{"url": url})
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, core.MissingDataError("storage: file not found", map[string]any{"url": url})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.ExternalError(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			core.PipelineErrorDeliveryFailed,
			"storage: fetch",
			map[string]any{"url": url, "status_code": resp.StatusCode},
		)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, core.ExternalError(err, core.PipelineErrorDeliveryFailed, "storage: read body", map[string]any{"url": url})
	}
	return content, nil
}

var _ core.StorageService = (*S3Storage)(nil)
