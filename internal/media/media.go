package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	// DefaultMaxBytes caps a single upload.
	DefaultMaxBytes = 10 << 20

	sniffLen = 512
)

var (
	ErrDisabled        = errors.New("media uploads are not configured")
	ErrTooLarge        = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported media type")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

// putter is the slice of the S3 client the uploader needs.
type putter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds S3-compatible storage configuration. PublicURL is the base
// the posting service will fetch objects from; when empty the path-style
// endpoint URL is used.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	PublicURL string
	Prefix    string
	MaxBytes  int64
}

// Uploader stores media files in a bucket and returns the URL to attach to
// a post.
type Uploader struct {
	cfg    Config
	client putter
	newKey func() string
	logger *slog.Logger
}

// New returns an uploader. It is disabled unless a bucket and credentials
// are configured.
func New(cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "media"
	}
	u := &Uploader{
		cfg:    cfg,
		newKey: func() string { return uuid.NewString() },
		logger: logger.With("component", "media"),
	}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		u.client = newS3Client(cfg)
	}
	return u
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (u *Uploader) Enabled() bool {
	return u != nil && u.client != nil
}

// MaxBytes is the largest accepted upload.
func (u *Uploader) MaxBytes() int64 {
	return u.cfg.MaxBytes
}

// Upload stores body under a fresh key and returns its public URL. The
// media type is sniffed from the content, not taken from the client.
func (u *Uploader) Upload(ctx context.Context, body io.Reader, size int64) (string, error) {
	if !u.Enabled() {
		return "", ErrDisabled
	}
	if size > u.cfg.MaxBytes {
		return "", ErrTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	ext, ok := allowedTypes[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
	// Signing over plain HTTP needs a seekable body, which multipart files are.
	if rs, ok := body.(io.ReadSeeker); ok {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("rewind upload: %w", err)
		}
	} else {
		body = io.MultiReader(bytes.NewReader(head), body)
	}

	key := path.Join(u.cfg.Prefix, u.newKey()+ext)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(mediaType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	url := u.objectURL(key)
	u.logger.Info("media uploaded", "key", key, "bytes", size, "content_type", mediaType)
	return url, nil
}

func (u *Uploader) objectURL(key string) string {
	if u.cfg.PublicURL != "" {
		return strings.TrimRight(u.cfg.PublicURL, "/") + "/" + key
	}
	endpoint := u.cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", u.cfg.Region)
	}
	return strings.TrimRight(endpoint, "/") + "/" + u.cfg.Bucket + "/" + key
}
