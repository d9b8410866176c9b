package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 30 * time.Second
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultSignedURLTTL        = 10 * time.Minute
	defaultMaxUploadBytes      = 10 << 20
	defaultUploadRateLimit     = 20
	defaultUploadRateWindow    = time.Minute
	defaultCurrency            = "usd"
	defaultOrderEventsTopic    = "order-events"
	defaultReconcileInterval   = time.Hour
	defaultReconcileGrace      = time.Hour
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyCleanup  = 15 * time.Minute
	defaultIdempotencyBatch    = 200
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	PSP         PSPConfig
	PubSub      PubSubConfig
	Security    SecurityConfig
	Jobs        JobsConfig
	Idempotency IdempotencyConfig
	Shipping    ShippingConfig
	Supplier    SupplierConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig configures the remittance evidence bucket.
type StorageConfig struct {
	RemittanceBucket string
	SignedURLTTL     time.Duration
	MaxUploadBytes   int64
	// UploadRateLimit caps remittance uploads per customer within UploadRateWindow.
	// Zero disables throttling.
	UploadRateLimit  int
	UploadRateWindow time.Duration
}

// PSPConfig collects hosted checkout settings.
type PSPConfig struct {
	StripeAPIKey string
	SuccessURL   string
	CancelURL    string
	Currency     string
}

// PubSubConfig controls order event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal job routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// JobsConfig controls the remittance reconciliation job.
type JobsConfig struct {
	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// IdempotencyConfig controls the Idempotency-Key replay guard on order creation.
type IdempotencyConfig struct {
	TTL              time.Duration
	KeyRequired      bool
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ShippingConfig holds the CFR estimate stand-in rate.
type ShippingConfig struct {
	CFRRatePerKg decimal.Decimal
}

// SupplierConfig describes the selling company printed on invoices.
type SupplierConfig struct {
	CompanyName        string
	AddressLine1       string
	AddressLine2       string
	City               string
	PostalCode         string
	Country            string
	Email              string
	Phone              string
	VATNumber          string
	RegistrationNumber string
	BankName           string
	BankAccount        string
	SwiftCode          string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration from defaults, .env overrides,
// environment variables and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	var invalid []string

	cfrRate, err := decimalWithDefault(lookup, "API_SHIPPING_CFR_RATE_PER_KG", decimal.Zero)
	if err != nil {
		invalid = append(invalid, "Shipping.CFRRatePerKg")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			RemittanceBucket: stringWithDefault(lookup, "API_STORAGE_REMITTANCE_BUCKET", ""),
			SignedURLTTL:     durationWithDefault(lookup, "API_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			MaxUploadBytes:   int64(intWithDefault(lookup, "API_STORAGE_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
			UploadRateLimit:  intWithDefault(lookup, "API_STORAGE_UPLOAD_RATE_LIMIT", defaultUploadRateLimit),
			UploadRateWindow: durationWithDefault(lookup, "API_STORAGE_UPLOAD_RATE_WINDOW", defaultUploadRateWindow),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			SuccessURL:   stringWithDefault(lookup, "API_PSP_SUCCESS_URL", ""),
			CancelURL:    stringWithDefault(lookup, "API_PSP_CANCEL_URL", ""),
			Currency:     strings.ToLower(stringWithDefault(lookup, "API_PSP_CURRENCY", defaultCurrency)),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Jobs: JobsConfig{
			ReconcileInterval: durationWithDefault(lookup, "API_JOBS_RECONCILE_INTERVAL", defaultReconcileInterval),
			ReconcileGrace:    durationWithDefault(lookup, "API_JOBS_RECONCILE_GRACE", defaultReconcileGrace),
		},
		Idempotency: IdempotencyConfig{
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			KeyRequired:      boolWithDefault(lookup, "API_IDEMPOTENCY_KEY_REQUIRED", false),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH_SIZE", defaultIdempotencyBatch),
		},
		Shipping: ShippingConfig{
			CFRRatePerKg: cfrRate,
		},
		Supplier: SupplierConfig{
			CompanyName:        stringWithDefault(lookup, "API_SUPPLIER_COMPANY_NAME", ""),
			AddressLine1:       stringWithDefault(lookup, "API_SUPPLIER_ADDRESS_LINE1", ""),
			AddressLine2:       stringWithDefault(lookup, "API_SUPPLIER_ADDRESS_LINE2", ""),
			City:               stringWithDefault(lookup, "API_SUPPLIER_CITY", ""),
			PostalCode:         stringWithDefault(lookup, "API_SUPPLIER_POSTAL_CODE", ""),
			Country:            stringWithDefault(lookup, "API_SUPPLIER_COUNTRY", ""),
			Email:              stringWithDefault(lookup, "API_SUPPLIER_EMAIL", ""),
			Phone:              stringWithDefault(lookup, "API_SUPPLIER_PHONE", ""),
			VATNumber:          stringWithDefault(lookup, "API_SUPPLIER_VAT_NUMBER", ""),
			RegistrationNumber: stringWithDefault(lookup, "API_SUPPLIER_REGISTRATION_NUMBER", ""),
			BankName:           stringWithDefault(lookup, "API_SUPPLIER_BANK_NAME", ""),
			BankAccount:        stringWithDefault(lookup, "API_SUPPLIER_BANK_ACCOUNT", ""),
			SwiftCode:          stringWithDefault(lookup, "API_SUPPLIER_SWIFT_CODE", ""),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolved, err := resolveSecret(ctx, cfg.PSP.StripeAPIKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.PSP.StripeAPIKey = resolved

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Storage.RemittanceBucket == "" {
		missing = append(missing, "Storage.RemittanceBucket")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		missing = append(missing, "Storage.MaxUploadBytes")
	}
	if cfg.Jobs.ReconcileGrace <= 0 {
		missing = append(missing, "Jobs.ReconcileGrace")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Shipping.CFRRatePerKg.IsNegative() {
		missing = append(missing, "Shipping.CFRRatePerKg")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func decimalWithDefault(lookup func(string) (string, bool), key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return decimal.NewFromString(strings.TrimSpace(value))
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
