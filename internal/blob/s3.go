package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of the S3 API used by S3Store.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // for S3-compatible services
	PathStyle bool   // MinIO and friends
}

// S3Store keeps blobs as objects under bucket/prefix.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// S3Option configures NewS3Store.
type S3Option func(*s3Options)

type s3Options struct {
	client S3Client
}

// WithS3Client uses a pre-built client instead of loading AWS config.
func WithS3Client(c S3Client) S3Option {
	return func(o *s3Options) {
		o.client = c
	}
}

// NewS3Store builds a store from cfg. Credentials fall back to the default
// AWS chain when AccessKey/SecretKey are empty.
func NewS3Store(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	options := &s3Options{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.client
	if client == nil {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
		}
		if cfg.AccessKey != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("s3: load aws config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Store) key(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return clean, nil
	}
	return s.prefix + "/" + clean, nil
}

// Read fetches the object for name.
func (s *S3Store) Read(ctx context.Context, name string) ([]byte, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err, name)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", name, err)
	}
	return data, nil
}

// Write uploads data as a single PutObject, which S3 applies atomically.
func (s *S3Store) Write(ctx context.Context, name string, data []byte) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return classifyS3Error(err, name)
	}
	return nil
}

func classifyS3Error(err error, name string) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("s3: %s: %s: %w", name, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("s3: %s: %w", name, err)
}
