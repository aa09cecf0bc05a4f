// internal/dataset/source.go
package dataset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Source opens raw dataset files by uri
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// FileSource reads local paths and file:// uris.
// When Root is set, only files beneath it can be opened.
type FileSource struct {
	Root string
}

// Open opens a local file. Relative paths resolve against the working directory.
func (s FileSource) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	p := strings.TrimPrefix(uri, "file://")
	if s.Root == "" {
		f, err := os.Open(p) // #nosec G304 -- operator supplied dataset path
		if err != nil {
			return nil, fmt.Errorf("dataset: open %s: %w", p, err)
		}
		return f, nil
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, fmt.Errorf("dataset: resolve root %s: %w", s.Root, err)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("dataset: resolve %s: %w", p, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}

	// OpenInRoot also refuses symlinks that leave root
	f, err := os.OpenInRoot(root, rel)
	if err != nil {
		if strings.Contains(err.Error(), "path escapes from parent") {
			return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, p)
		}
		return nil, fmt.Errorf("dataset: open %s: %w", p, err)
	}
	return f, nil
}

// S3Config configures the object storage source
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// S3Source reads s3://bucket/key uris
type S3Source struct {
	client *s3.Client
	logger *zap.Logger
}

// NewS3Source builds an S3 client from the default credential chain,
// overridden by static keys and a custom endpoint when set.
func NewS3Source(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dataset: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Source{client: client, logger: logger}, nil
}

// Open streams an object body
func (s *S3Source) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: get object %s: %w", uri, err)
	}

	s.logger.Debug("opened dataset object",
		zap.String("bucket", bucket),
		zap.String("key", key))

	return result.Body, nil
}

// ParseS3URI splits s3://bucket/key
func ParseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSource, uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSource, uri)
	}
	return u.Host, key, nil
}

// Router dispatches by uri scheme
type Router struct {
	Local Source
	S3    Source
}

// Open opens uri with the matching source
func (r *Router) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if strings.HasPrefix(uri, "s3://") {
		if r.S3 == nil {
			return nil, fmt.Errorf("%w: s3 source not configured", ErrUnknownSource)
		}
		return r.S3.Open(ctx, uri)
	}
	if strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file://") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, uri)
	}
	local := r.Local
	if local == nil {
		local = FileSource{}
	}
	return local.Open(ctx, uri)
}
