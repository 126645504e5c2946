package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloadPrefix is the URL path under which DirSink files are served
const DownloadPrefix = "/downloads/"

// DirSink writes exports into a local directory
type DirSink struct {
	dir string
}

// NewDirSink creates the directory if needed
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// Dir returns the directory files are written to
func (s *DirSink) Dir() string {
	return s.dir
}

// Put writes data to dir/name
func (s *DirSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid export file name %q", name)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0640); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return DownloadPrefix + name, nil
}

// S3Config locates the bucket exports are uploaded to
type S3Config struct {
	Bucket        string
	Prefix        string
	Region        string
	PublicBaseURL string
}

type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads exports to an S3 bucket
type S3Sink struct {
	client        s3Putter
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewS3Sink loads AWS credentials from the default chain
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Sink(s3.NewFromConfig(awsCfg), cfg), nil
}

func newS3Sink(client s3Putter, cfg S3Config) *S3Sink {
	return &S3Sink{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

// Put uploads data under prefix+name. The URL is public when a base URL is configured.
func (s *S3Sink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := s.prefix + name
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("S3 PutObject %s/%s: %w", s.bucket, key, err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
