package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/loopyluu007/anime-ai/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestR2Mirror(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer src.Close()

	put := &fakePutter{}
	c := &R2Client{s3Client: put, httpClient: src.Client(), bucketName: "media", publicURL: "https://cdn.example.com/"}

	url, err := c.Mirror(context.Background(), src.URL+"/files/vid.mp4", "tasks/t1/video")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/tasks/t1/video.mp4", url)
	assert.Equal(t, "media", aws.ToString(put.input.Bucket))
	assert.Equal(t, "tasks/t1/video.mp4", aws.ToString(put.input.Key))
	assert.Equal(t, "video/mp4", aws.ToString(put.input.ContentType))
	assert.Equal(t, "mp4-bytes", string(put.body))
	assert.Equal(t, int64(len("mp4-bytes")), aws.ToInt64(put.input.ContentLength))
}

func TestR2MirrorSizeLimit(t *testing.T) {
	big := strings.Repeat("x", 64)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("chunked") == "1" {
			// Flushing before the body forces chunked encoding, so no length is known.
			w.(http.Flusher).Flush()
		}
		_, _ = w.Write([]byte(big))
	}))
	defer src.Close()

	for name, query := range map[string]string{"declared length": "", "chunked": "?chunked=1"} {
		t.Run(name, func(t *testing.T) {
			put := &fakePutter{}
			c := &R2Client{s3Client: put, httpClient: src.Client(), bucketName: "media", maxBytes: 16}

			_, err := c.Mirror(context.Background(), src.URL+"/big.bin"+query, "k")
			assert.ErrorIs(t, err, ErrObjectTooLarge)
			assert.Nil(t, put.input)
		})
	}
}

func TestR2MirrorChunkedWithinLimit(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer src.Close()

	put := &fakePutter{}
	c := &R2Client{s3Client: put, httpClient: src.Client(), bucketName: "media", maxBytes: 1 << 10}

	_, err := c.Mirror(context.Background(), src.URL+"/img.png", "k")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(put.body))
	assert.Equal(t, int64(9), aws.ToInt64(put.input.ContentLength))
	assert.Equal(t, "k.png", aws.ToString(put.input.Key))
}

func TestNewR2ClientIncompleteConfig(t *testing.T) {
	c, err := NewR2Client(&config.R2Config{AccountID: "acct", AccessKeyID: "id"})
	require.NoError(t, err)
	assert.False(t, c.IsConfigured())

	c, err = NewR2Client(&config.R2Config{AccountID: "acct", AccessKeyID: "id", SecretAccessKey: "s", BucketName: "media"})
	require.NoError(t, err)
	assert.True(t, c.IsConfigured())
}

func TestR2MirrorSourceError(t *testing.T) {
	src := httptest.NewServer(http.NotFoundHandler())
	defer src.Close()

	put := &fakePutter{}
	c := &R2Client{s3Client: put, httpClient: src.Client(), bucketName: "media"}

	_, err := c.Mirror(context.Background(), src.URL+"/gone.png", "k")
	assert.Error(t, err)
	assert.Nil(t, put.input)
}

func TestR2PublicURLFallback(t *testing.T) {
	c := &R2Client{bucketName: "media"}
	assert.Equal(t, "https://media.r2.cloudflarestorage.com/a/b.png", c.GetPublicURL("a/b.png"))
}
