package supabase

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
)

// ErrObjectTooLarge is returned by Get when the object exceeds maxBytes.
var ErrObjectTooLarge = errors.New("storage object exceeds size limit")

// ErrObjectNotFound is returned by Get for a missing key.
var ErrObjectNotFound = errors.New("storage object not found")

// StorageConfig points at the project's S3-compatible storage endpoint,
// e.g. https://<ref>.supabase.co/storage/v1/s3
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != ""
}

// StorageClient wraps an S3 client bound to the image bucket.
type StorageClient struct {
	s3     *s3.Client
	bucket string
}

// NewStorageClient creates the S3 client. Supabase storage, like Wasabi,
// only supports path-style addressing.
func NewStorageClient(ctx context.Context, cfg StorageConfig) (*StorageClient, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
		o.UsePathStyle = true
	})

	return &StorageClient{s3: client, bucket: cfg.Bucket}, nil
}

// Bucket is the default bucket uploads go to.
func (s *StorageClient) Bucket() string {
	return s.bucket
}

// Get downloads key from the image bucket. Other buckets are never read
// here: the service keys bypass row-level security.
func (s *StorageClient) Get(ctx context.Context, key string, maxBytes int64) ([]byte, string, error) {
	bucket := s.bucket

	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > maxBytes {
		return nil, "", ErrObjectTooLarge
	}

	reader := io.Reader(out.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(out.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, "", ErrObjectTooLarge
	}

	return data, aws.ToString(out.ContentType), nil
}

// Put uploads body to key in the default bucket, overwriting any existing object.
func (s *StorageClient) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Ping checks bucket access by listing at most one key.
func (s *StorageClient) Ping(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to access bucket %s: %w", s.bucket, err)
	}
	return nil
}
