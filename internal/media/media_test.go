package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	bucket  string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.types[*input.Key] = *input.ContentType
	m.bucket = *input.Bucket
	return &s3.PutObjectOutput{}, nil
}

func testUploader(cfg Config, client putter) *Uploader {
	u := New(cfg, nil)
	u.client = client
	u.newKey = func() string { return "fixed" }
	return u
}

func TestEnabled(t *testing.T) {
	if New(Config{}, nil).Enabled() {
		t.Error("uploader without bucket should be disabled")
	}
	if New(Config{Bucket: "b", AccessKey: "k"}, nil).Enabled() {
		t.Error("uploader without secret key should be disabled")
	}
	if !New(Config{Bucket: "b", AccessKey: "k", SecretKey: "s", Region: "us-east-1"}, nil).Enabled() {
		t.Error("configured uploader should be enabled")
	}
}

const (
	pngData  = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	jpegData = "\xff\xd8\xff\xe0\x00\x10JFIF\x00"
	gifData  = "GIF89a\x01\x00\x01\x00"
)

func TestUploadDisabled(t *testing.T) {
	u := New(Config{}, nil)
	_, err := u.Upload(context.Background(), strings.NewReader(pngData), int64(len(pngData)))
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestUploadStoresObject(t *testing.T) {
	mock := newMockS3()
	u := testUploader(Config{Bucket: "posts", PublicURL: "https://cdn.example.com/"}, mock)

	url, err := u.Upload(context.Background(), strings.NewReader(pngData), int64(len(pngData)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://cdn.example.com/media/fixed.png" {
		t.Errorf("url = %q", url)
	}
	if got := string(mock.objects["media/fixed.png"]); got != pngData {
		t.Errorf("stored %d bytes, want the whole file", len(got))
	}
	if mock.types["media/fixed.png"] != "image/png" {
		t.Errorf("content type = %q", mock.types["media/fixed.png"])
	}
	if mock.bucket != "posts" {
		t.Errorf("bucket = %q", mock.bucket)
	}
}

func TestUploadPathStyleURL(t *testing.T) {
	u := testUploader(Config{Bucket: "posts", Endpoint: "http://localhost:9000/", Prefix: "up"}, newMockS3())
	url, err := u.Upload(context.Background(), strings.NewReader(jpegData), int64(len(jpegData)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "http://localhost:9000/posts/up/fixed.jpg" {
		t.Errorf("url = %q", url)
	}
}

func TestUploadSniffsNonSeekableBody(t *testing.T) {
	mock := newMockS3()
	u := testUploader(Config{Bucket: "posts"}, mock)

	body := struct{ io.Reader }{strings.NewReader(gifData)}
	if _, err := u.Upload(context.Background(), body, int64(len(gifData))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := string(mock.objects["media/fixed.gif"]); got != gifData {
		t.Errorf("stored %q, want the whole file", got)
	}
	if mock.types["media/fixed.gif"] != "image/gif" {
		t.Errorf("content type = %q", mock.types["media/fixed.gif"])
	}
}

func TestUploadRejects(t *testing.T) {
	mock := newMockS3()
	u := testUploader(Config{Bucket: "posts", MaxBytes: 64}, mock)

	tests := []struct {
		name string
		body string
		want error
	}{
		{"oversize", strings.Repeat("x", 65), ErrTooLarge},
		{"pdf", "%PDF-1.7\n", ErrUnsupportedType},
		{"html", "<html><script>alert(1)</script></html>", ErrUnsupportedType},
		{"empty", "", ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(context.Background(), strings.NewReader(tt.body), int64(len(tt.body)))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(mock.objects) != 0 {
		t.Errorf("rejected uploads stored %d objects", len(mock.objects))
	}
}

func TestUploadPutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	u := testUploader(Config{Bucket: "posts"}, mock)

	_, err := u.Upload(context.Background(), strings.NewReader(gifData), int64(len(gifData)))
	if err == nil || !strings.Contains(err.Error(), "bucket gone") {
		t.Errorf("err = %v, want wrapped put error", err)
	}
}
