package tilecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend stores tile blobs as objects in an S3-compatible bucket,
// keyed by "<prefix>/<kind>/<z>/<x>/<y>". Grounded on the teacher pack's
// mumuon-tile-service S3Client (config.LoadDefaultConfig, custom
// endpoint resolver for S3-compatible services, s3.NewFromConfig with
// path-style addressing), trimmed to the Get/Put/Close shape this cache
// needs instead of that service's bulk directory uploader.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures an S3-compatible endpoint (AWS S3, Cloudflare R2,
// MinIO, ...).
type S3Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // non-empty to target a non-AWS S3-compatible endpoint
}

// NewS3Backend builds an S3Backend from cfg, loading credentials from the
// standard AWS credential chain (environment, shared config, IAM role).
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested for service %q", service)
			})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (b *S3Backend) key(kind Kind, z, x, y int) string {
	if b.prefix == "" {
		return fmt.Sprintf("%s/%d/%d/%d", kind, z, x, y)
	}
	return fmt.Sprintf("%s/%s/%d/%d/%d", b.prefix, kind, z, x, y)
}

// Get fetches a tile object, returning (nil, false, nil) when it does
// not exist.
func (b *S3Backend) Get(ctx context.Context, kind Kind, z, x, y int) ([]byte, bool, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(kind, z, x, y)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get tile object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read tile object body: %w", err)
	}
	return data, true, nil
}

// Put uploads a tile object, overwriting any existing object at the
// same key.
func (b *S3Backend) Put(ctx context.Context, kind Kind, z, x, y int, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(kind, z, x, y)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to put tile object: %w", err)
	}
	return nil
}

// Close is a no-op: the S3 client holds no resources that need releasing.
func (b *S3Backend) Close() error {
	return nil
}
