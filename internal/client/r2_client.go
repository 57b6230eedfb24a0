package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/loopyluu007/anime-ai/internal/config"
)

// MediaMirror re-hosts provider media under our own storage
type MediaMirror interface {
	Mirror(ctx context.Context, sourceURL, key string) (string, error)
}

// putObjectAPI is the slice of the S3 client the mirror needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// defaultMaxObjectBytes caps a mirrored object when r2.max_object_mb is unset.
const defaultMaxObjectBytes = 512 << 20

// ErrObjectTooLarge is returned when provider media exceeds the mirror limit.
var ErrObjectTooLarge = errors.New("media exceeds mirror size limit")

// R2Client implements MediaMirror for Cloudflare R2
type R2Client struct {
	s3Client   putObjectAPI
	httpClient *http.Client
	bucketName string
	publicURL  string
	maxBytes   int64
}

// NewR2Client creates a new R2 storage client. Incomplete credentials give a
// client whose IsConfigured reports false.
func NewR2Client(cfg *config.R2Config) (*R2Client, error) {
	maxBytes := int64(cfg.MaxObjectMB) << 20
	if maxBytes <= 0 {
		maxBytes = defaultMaxObjectBytes
	}
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return &R2Client{maxBytes: maxBytes}, nil
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: endpoint,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(r2Resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &R2Client{
		s3Client:   s3.NewFromConfig(awsCfg),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		bucketName: cfg.BucketName,
		publicURL:  cfg.PublicURL,
		maxBytes:   maxBytes,
	}, nil
}

// Upload stores size bytes of body under key and returns the public URL
func (c *R2Client) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return c.GetPublicURL(key), nil
}

// Mirror copies sourceURL under key. The extension of the source path is
// appended to key when key has none. Bodies with a known length are streamed
// straight into the upload; others are buffered up to the size limit.
func (c *R2Client) Mirror(ctx context.Context, sourceURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s returned status %d", sourceURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	ext := path.Ext(req.URL.Path)
	if path.Ext(key) == "" {
		key += ext
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	limit := c.limit()
	if resp.ContentLength > limit {
		return "", fmt.Errorf("%s is %d bytes: %w", sourceURL, resp.ContentLength, ErrObjectTooLarge)
	}
	if resp.ContentLength >= 0 {
		return c.Upload(ctx, key, io.LimitReader(resp.Body, resp.ContentLength), resp.ContentLength, contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", sourceURL, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%s: %w", sourceURL, ErrObjectTooLarge)
	}

	return c.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (c *R2Client) limit() int64 {
	if c.maxBytes > 0 {
		return c.maxBytes
	}
	return defaultMaxObjectBytes
}

// GetPublicURL returns the public CDN URL for a key
func (c *R2Client) GetPublicURL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(c.publicURL, "/"), key)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", c.bucketName, key)
}

// IsConfigured reports whether credentials and a bucket were supplied
func (c *R2Client) IsConfigured() bool {
	return c.s3Client != nil && c.bucketName != ""
}
