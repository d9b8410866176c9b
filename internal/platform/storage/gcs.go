package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/pitta999/orderportal/internal/repositories"
)

// Error classifies blob store failures for the service layer.
type Error struct {
	op          string
	err         error
	notFound    bool
	unavailable bool
}

func (e *Error) Error() string       { return fmt.Sprintf("storage.%s: %v", e.op, e.err) }
func (e *Error) Unwrap() error       { return e.err }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return false }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e := &Error{op: op, err: err}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		e.notFound = true
		return e
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			e.notFound = true
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			e.unavailable = true
		}
	}
	return e
}

// GCSBlobStore stores blobs in a single Cloud Storage bucket.
type GCSBlobStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	now        func() time.Time
}

var _ repositories.BlobStore = (*GCSBlobStore)(nil)

// NewGCSBlobStore binds the store to bucketName.
func NewGCSBlobStore(client *storage.Client, bucketName string) (*GCSBlobStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucketName = strings.TrimSpace(bucketName)
	if bucketName == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &GCSBlobStore{bucket: client.Bucket(bucketName), bucketName: bucketName, now: time.Now}, nil
}

// Upload streams body into path. Existing objects are overwritten. A body that fails
// mid-stream leaves no object behind: the writer is cancelled, never closed.
func (s *GCSBlobStore) Upload(ctx context.Context, path string, contentType string, body io.Reader) (repositories.BlobObject, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := s.bucket.Object(path).NewWriter(wctx)
	writer.ContentType = contentType
	size, err := io.Copy(writer, body)
	if err != nil {
		cancel()
		return repositories.BlobObject{}, wrapError("upload", err)
	}
	if err := writer.Close(); err != nil {
		return repositories.BlobObject{}, wrapError("upload", err)
	}
	created := s.now()
	if attrs := writer.Attrs(); attrs != nil && !attrs.Created.IsZero() {
		created = attrs.Created
	}
	return repositories.BlobObject{
		Path:      path,
		URL:       s.objectURL(path),
		Size:      size,
		CreatedAt: created,
	}, nil
}

// Delete removes the object at path.
func (s *GCSBlobStore) Delete(ctx context.Context, path string) error {
	return wrapError("delete", s.bucket.Object(path).Delete(ctx))
}

// List returns every object under prefix.
func (s *GCSBlobStore) List(ctx context.Context, prefix string) ([]repositories.BlobObject, error) {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var out []repositories.BlobObject
	for {
		attrs, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapError("list", err)
		}
		out = append(out, repositories.BlobObject{
			Path:      attrs.Name,
			URL:       s.objectURL(attrs.Name),
			Size:      attrs.Size,
			CreatedAt: attrs.Created,
		})
	}
	return out, nil
}

// SignedURL issues a V4 GET URL valid for ttl.
func (s *GCSBlobStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	signed, err := s.bucket.SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: s.now().Add(ttl),
	})
	if err != nil {
		return "", wrapError("signed_url", err)
	}
	return signed, nil
}

func (s *GCSBlobStore) objectURL(path string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucketName, path)
}

// Ping reads the bucket attributes; used by readiness probes.
func (s *GCSBlobStore) Ping(ctx context.Context) error {
	_, err := s.bucket.Attrs(ctx)
	return wrapError("ping", err)
}
