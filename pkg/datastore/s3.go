package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/habitkit/habitkit/pkg/datasync"
)

// S3Client defines the S3 operations used by S3Store.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config contains configuration for the S3 backend.
type S3Config struct {
	Bucket      string `env:"SYNC_S3_BUCKET"`
	Region      string `env:"SYNC_S3_REGION"`
	AccessKeyID string `env:"SYNC_S3_ACCESS_KEY_ID"`
	SecretKey   string `env:"SYNC_S3_SECRET_KEY"`

	// Endpoint overrides the AWS endpoint for S3-compatible services.
	Endpoint       string `env:"SYNC_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"SYNC_S3_FORCE_PATH_STYLE"`

	// KeyPrefix namespaces aggregate objects within the bucket.
	KeyPrefix string `env:"SYNC_S3_KEY_PREFIX" envDefault:"habits"`
}

// S3Store keeps one JSON object per user in an S3 bucket. It is safe for
// concurrent use.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// S3Option configures S3Store construction.
type S3Option func(*s3Options)

type s3Options struct {
	s3Client   S3Client
	httpClient *http.Client
}

// WithS3Client sets a pre-configured S3 client, mostly for tests.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) {
		o.s3Client = client
	}
}

// WithS3HTTPClient sets a custom HTTP client for S3 requests.
func WithS3HTTPClient(client *http.Client) S3Option {
	return func(o *s3Options) {
		o.httpClient = client
	}
}

// NewS3Store creates an S3-backed cloud store.
func NewS3Store(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	options := &s3Options{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.s3Client
	if client == nil {
		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}
		if options.httpClient != nil {
			awsOptions = append(awsOptions, config.WithHTTPClient(options.httpClient))
		}

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
		}

		client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
	}, nil
}

func (s *S3Store) key(userID uuid.UUID) string {
	if s.prefix == "" {
		return userID.String() + ".json"
	}
	return s.prefix + "/" + userID.String() + ".json"
}

func (s *S3Store) Upload(ctx context.Context, userID uuid.UUID, agg datasync.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to encode aggregate: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(userID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return classifyS3Error(err, "upload aggregate")
	}
	return nil
}

func (s *S3Store) Download(ctx context.Context, userID uuid.UUID) (datasync.Aggregate, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(userID)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return datasync.Aggregate{}, false, nil
		}
		return datasync.Aggregate{}, false, classifyS3Error(err, "download aggregate")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return datasync.Aggregate{}, false, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	var agg datasync.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return datasync.Aggregate{}, false, fmt.Errorf("failed to parse aggregate: %w", err)
	}
	return agg, true, nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

func classifyS3Error(err error, operation string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied":
			return fmt.Errorf("%w: %s", ErrAccessDenied, operation)
		case "SlowDown", "ServiceUnavailable":
			return fmt.Errorf("%w: %s", ErrServiceUnavailable, operation)
		}
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}
