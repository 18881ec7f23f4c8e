// Package s3 implements the storage backend against Amazon S3 or any
// S3-compatible store (MinIO, Localstack, Garage).
//
// Objects are addressed by their canonical bucket/object pair. Custom
// metadata (the serialized ACL policy among it) rides in x-amz-meta-*
// headers; replacing it uses a same-key CopyObject with the REPLACE
// metadata directive, since S3 has no standalone metadata write.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/domain"
	"github.com/tribuna-digital/tribuna-storage/internal/storage"
)

// Config holds S3 backend settings.
type Config struct {
	// Endpoint is the S3 endpoint URL. Empty means AWS.
	Endpoint string

	// Region is the AWS region.
	Region string

	// AccessKeyID and SecretAccessKey are static credentials. When empty,
	// the default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing (required by MinIO and
	// most self-hosted stores).
	UsePathStyle bool
}

// Backend implements storage.Backend on top of the AWS SDK v2 S3 client.
// Safe for concurrent use.
type Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	logger  zerolog.Logger
}

// New creates an S3 backend from the given configuration.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		logger:  logger.With().Str("backend", "s3").Logger(),
	}, nil
}

// NewFromClient wraps an existing S3 client. Used by tests and tooling that
// manage their own client configuration.
func NewFromClient(client *s3.Client, logger zerolog.Logger) *Backend {
	return &Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		logger:  logger.With().Str("backend", "s3").Logger(),
	}
}

// Exists checks whether the object exists via HeadObject.
func (b *Backend) Exists(ctx context.Context, ref domain.ObjectRef) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Name),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", ref, err)
	}
	return true, nil
}

// Stat returns the object's metadata via HeadObject.
func (b *Backend) Stat(ctx context.Context, ref domain.ObjectRef) (*storage.ObjectStat, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Name),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("stat %s: %w", ref, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}

	metadata := make(map[string]string, len(out.Metadata))
	for k, v := range out.Metadata {
		metadata[strings.ToLower(k)] = v
	}

	stat := &storage.ObjectStat{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
		Metadata:    metadata,
	}
	if out.LastModified != nil {
		stat.LastModified = *out.LastModified
	}
	return stat, nil
}

// Open returns a reader over the object's bytes. The reader is backed by the
// GetObject response body and respects ctx cancellation.
func (b *Backend) Open(ctx context.Context, ref domain.ObjectRef) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Name),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("open %s: %w", ref, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	return out.Body, nil
}

// SetMetadata replaces the object's custom metadata wholesale using a
// same-key copy with the REPLACE directive. Content type is preserved.
func (b *Backend) SetMetadata(ctx context.Context, ref domain.ObjectRef, metadata map[string]string) error {
	head, err := b.Stat(ctx, ref)
	if err != nil {
		return err
	}

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(ref.Bucket),
		Key:               aws.String(ref.Name),
		CopySource:        aws.String(ref.Bucket + "/" + ref.Name),
		Metadata:          metadata,
		MetadataDirective: types.MetadataDirectiveReplace,
	}
	if head.ContentType != "" {
		input.ContentType = aws.String(head.ContentType)
	}

	if _, err := b.client.CopyObject(ctx, input); err != nil {
		if isNotFoundErr(err) {
			return fmt.Errorf("set metadata %s: %w", ref, storage.ErrNotFound)
		}
		return fmt.Errorf("set metadata %s: %w", ref, err)
	}

	b.logger.Debug().
		Str("object", ref.String()).
		Int("metadata_keys", len(metadata)).
		Msg("replaced object metadata")
	return nil
}

// PresignPut mints a signed URL for a direct client PUT.
func (b *Backend) PresignPut(ctx context.Context, ref domain.ObjectRef, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Name),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}

	b.logger.Debug().
		Str("object", ref.String()).
		Dur("ttl", ttl).
		Msg("presigned PUT URL")
	return req.URL, nil
}

// isNotFoundErr reports whether an S3 error indicates a missing object.
// HeadObject returns a bare 404 without the NoSuchKey code, so the HTTP
// status is checked as well.
func isNotFoundErr(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey"
	}
	return false
}
