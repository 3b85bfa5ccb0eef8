// Package s3dest provides an S3-backed implementation of the
// destination client consumed by the sync engine.
//
// Destination paths map to object keys by stripping the leading slash.
// The content fingerprint is stored as object metadata at upload time
// so later metadata queries can compare content without downloading.
// Uploads use a conditional put and fail rather than silently
// overwriting when another writer wins the key.
package s3dest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gabriel-vasile/mimetype"

	syncerrors "github.com/shelfsync/shelfsync/errors"
	"github.com/shelfsync/shelfsync/internal/contenthash"
	"github.com/shelfsync/shelfsync/internal/validation"
	"github.com/shelfsync/shelfsync/synctypes"
)

// fingerprintKey is the object metadata key the content fingerprint is
// stored under. S3 exposes it as x-amz-meta-content-fingerprint.
const fingerprintKey = "content-fingerprint"

// ClientConfig holds construction options for the S3 destination client.
type ClientConfig struct {
	// Region is the AWS region; empty uses the credential chain default
	Region string

	// Timeout bounds individual S3 calls; zero means no client timeout
	Timeout time.Duration

	// API overrides the underlying S3 client, for tests
	API S3API
}

// Option configures a ClientConfig.
type Option func(*ClientConfig)

// WithRegion sets the AWS region for S3 operations.
func WithRegion(region string) Option {
	return func(c *ClientConfig) {
		c.Region = region
	}
}

// WithTimeout bounds each S3 call with an HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithAPI injects a custom S3 API implementation.
func WithAPI(api S3API) Option {
	return func(c *ClientConfig) {
		c.API = api
	}
}

// Client implements synctypes.Destination against one S3 bucket.
// It is safe for concurrent use.
type Client struct {
	api    S3API
	bucket string
}

// New creates an S3 destination client for bucket using the default
// AWS credential chain.
func New(ctx context.Context, bucket string, opts ...Option) (*Client, error) {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return nil, syncerrors.NewError("s3dest.new", err)
	}

	cfg := &ClientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.API != nil {
		return &Client{api: cfg.API, bucket: bucket}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, syncerrors.NewError("s3dest.new", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}

	var s3Opts []func(*s3.Options)
	if cfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return &Client{
		api:    s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: bucket,
	}, nil
}

// key maps a destination path to an S3 object key.
func key(path string) string {
	return strings.TrimPrefix(path, "/")
}

// EnsureFolder implements synctypes.Destination. S3 has no real
// folders; every key prefix implicitly exists, so this always succeeds.
func (c *Client) EnsureFolder(_ context.Context, _ string) error {
	return nil
}

// GetMetadata implements synctypes.Destination. A missing key is not an
// error: the returned metadata has Exists set to false.
func (c *Client) GetMetadata(ctx context.Context, path string) (*synctypes.EntryMetadata, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return &synctypes.EntryMetadata{Exists: false, Path: path}, nil
		}
		return nil, syncerrors.NewError("get_metadata", err).WithPath(path)
	}

	meta := &synctypes.EntryMetadata{
		Exists: true,
		Path:   path,
	}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
		meta.SizeKnown = true
	}
	if fp, ok := out.Metadata[fingerprintKey]; ok {
		meta.ContentHash = fp
	}
	return meta, nil
}

// UploadFile implements synctypes.Destination. The local file's content
// fingerprint is computed and stored as object metadata, and the put is
// conditional on the key not existing so a concurrent writer surfaces
// as a conflict instead of a silent overwrite.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := validation.ValidateDestPath(remotePath); err != nil {
		return syncerrors.NewError("upload", err).WithPath(remotePath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return syncerrors.NewError("upload", err).WithPath(remotePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return syncerrors.NewError("upload", err).WithPath(remotePath)
	}

	fingerprint, err := contenthash.Sum(f)
	if err != nil {
		return syncerrors.NewError("upload", err).WithPath(remotePath)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return syncerrors.NewError("upload", err).WithPath(remotePath)
	}

	contentType := "application/octet-stream"
	if mt, detectErr := mimetype.DetectFile(localPath); detectErr == nil {
		contentType = mt.String()
	}

	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key(remotePath)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
		IfNoneMatch:   aws.String("*"),
		Metadata: map[string]string{
			fingerprintKey: fingerprint,
		},
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: %s", syncerrors.ErrConflict, remotePath)
		}
		return syncerrors.NewError("upload", err).WithPath(remotePath)
	}
	return nil
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// isPreconditionFailed reports whether err is the conditional-put
// rejection returned when the key already exists.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
