package auth

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/httpx"
	"github.com/pitta999/orderportal/internal/platform/requestctx"
)

const (
	defaultRoleLevelClaim = "roleLevel"
	defaultVerifyTimeout  = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns Firebase bearer tokens into principals.
type Authenticator struct {
	verifier   TokenVerifier
	levelClaim string
	timeout    time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleLevelClaim overrides the custom claim carrying the numeric role level.
func WithRoleLevelClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.levelClaim = claim
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:   verifier,
		levelClaim: defaultRoleLevelClaim,
		timeout:    defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequirePrincipal verifies the bearer token, rejects principals below minLevel and
// stores the principal on the request context.
func (a *Authenticator) RequirePrincipal(minLevel domain.RoleLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, tokenStr)
			cancel()
			if err != nil {
				if firebaseauth.IsIDTokenExpired(err) {
					respondAuthError(ctx, w, http.StatusUnauthorized, "token_expired", "id token expired")
					return
				}
				respondAuthError(ctx, w, http.StatusUnauthorized, "invalid_token", "id token verification failed")
				return
			}

			principal := domain.Principal{
				ID:        token.UID,
				Email:     claimAsString(token.Claims, "email"),
				RoleLevel: roleLevelFromClaims(token.Claims, a.levelClaim),
			}
			if principal.RoleLevel < minLevel {
				respondAuthError(ctx, w, http.StatusForbidden, "insufficient_role", "principal does not have the required role level")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithPrincipal(ctx, principal)))
		})
	}
}

// roleLevelFromClaims reads the numeric role level. Missing or malformed claims fall
// back to the customer level.
func roleLevelFromClaims(claims map[string]any, key string) domain.RoleLevel {
	var level int64
	switch v := claims[key].(type) {
	case float64:
		if v == math.Trunc(v) {
			level = int64(v)
		}
	case int:
		level = int64(v)
	case int64:
		level = v
	case string:
		level, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}
	if level < int64(domain.RoleLevelCustomer) || level > int64(domain.RoleLevelSuperAdmin) {
		return domain.RoleLevelCustomer
	}
	return domain.RoleLevel(level)
}

func claimAsString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
