package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	metricScope         = "github.com/pitta999/orderportal/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the local fallback has the secret.
var ErrSecretNotFound = errors.New("secrets: secret not found")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager. Values are cached
// for the process lifetime. In the local environment a dotenv style file is consulted
// when Secret Manager cannot serve the request.
type Fetcher struct {
	client    secretManagerClient
	projectID string
	local     bool
	logger    *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]string

	latency metric.Float64Histogram
}

// Option customises Fetcher construction.
type Option func(*Fetcher)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithLocalFallback enables the local fallback file.
func WithLocalFallback(path string) Option {
	return func(f *Fetcher) {
		f.local = true
		if strings.TrimSpace(path) != "" {
			f.fallbackPath = path
		}
	}
}

// WithSecretManagerClient injects a preconfigured client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// NewFetcher constructs a Fetcher for projectID.
func NewFetcher(ctx context.Context, projectID string, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		projectID:    strings.TrimSpace(projectID),
		logger:       zap.NewNop(),
		fallbackPath: defaultFallbackPath,
		cache:        make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.projectID == "" {
		return nil, errors.New("secrets: project id is required")
	}
	if f.client == nil {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			if !f.local {
				return nil, fmt.Errorf("secrets: create client: %w", err)
			}
			f.logger.Warn("secret manager unavailable, using local fallback only", zap.Error(err))
		} else {
			f.client = client
		}
	}

	latency, err := otel.Meter(metricScope).Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of Secret Manager accesses"))
	if err == nil {
		f.latency = latency
	}
	return f, nil
}

// ResolveSecret implements config.SecretResolver. ref has the form
// secret://NAME or secret://NAME/VERSION.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, version, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := name + "#" + version

	f.mu.Lock()
	if value, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return value, nil
	}
	f.mu.Unlock()

	value, err := f.fetchRemote(ctx, name, version)
	if err != nil {
		fallback, ok := f.lookupFallback(name)
		if !ok {
			return "", err
		}
		f.logger.Info("secret resolved from local fallback", zap.String("secret", name))
		value = fallback
	}

	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
	return value, nil
}

// Close releases the Secret Manager client.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

func (f *Fetcher) fetchRemote(ctx context.Context, name, version string) (string, error) {
	if f.client == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version),
	})
	if f.latency != nil {
		f.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.Bool("success", err == nil)))
	}
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("secrets: access %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(name string) (string, bool) {
	if !f.local {
		return "", false
	}
	f.fallbackOnce.Do(func() {
		values, err := godotenv.Read(f.fallbackPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("read local secrets file", zap.String("path", f.fallbackPath), zap.Error(err))
		}
		f.fallback = values
	})
	value, ok := f.fallback[name]
	return value, ok
}

func parseReference(ref string) (string, string, error) {
	trimmed := strings.TrimSpace(ref)
	rest, ok := strings.CutPrefix(trimmed, "secret://")
	if !ok {
		return "", "", fmt.Errorf("secrets: unsupported reference %q", ref)
	}
	name, version, _ := strings.Cut(rest, "/")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("secrets: reference %q has no secret name", ref)
	}
	if version = strings.TrimSpace(version); version == "" {
		version = "latest"
	}
	return name, version, nil
}
