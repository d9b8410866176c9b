package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/pitta999/orderportal/internal/domain"
	"github.com/pitta999/orderportal/internal/platform/requestctx"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequirePrincipalStoresPrincipal(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{
		UID:    "cust-42",
		Claims: map[string]any{"email": "buyer@example.com", "roleLevel": float64(1)},
	}}

	var got domain.Principal
	handler := NewAuthenticator(verifier).RequirePrincipal(domain.RoleLevelCustomer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Principal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("expected token to be forwarded, got %q", verifier.received)
	}
	if got.ID != "cust-42" || got.Email != "buyer@example.com" || got.RoleLevel != domain.RoleLevelCustomer {
		t.Fatalf("unexpected principal %+v", got)
	}
}

func TestRequirePrincipalRejectsLowRoleLevel(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "cust-1", Claims: map[string]any{}}}
	handler := NewAuthenticator(verifier).RequirePrincipal(domain.RoleLevelAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequirePrincipalRejectsMissingOrInvalidToken(t *testing.T) {
	verifier := &stubTokenVerifier{err: errors.New("bad signature")}
	handler := NewAuthenticator(verifier).RequirePrincipal(domain.RoleLevelCustomer)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestRoleLevelFromClaims(t *testing.T) {
	cases := []struct {
		value any
		want  domain.RoleLevel
	}{
		{value: float64(2), want: domain.RoleLevelAdmin},
		{value: "3", want: domain.RoleLevelSuperAdmin},
		{value: float64(9), want: domain.RoleLevelCustomer},
		{value: float64(2.5), want: domain.RoleLevelCustomer},
		{value: nil, want: domain.RoleLevelCustomer},
	}
	for _, tc := range cases {
		if got := roleLevelFromClaims(map[string]any{"roleLevel": tc.value}, "roleLevel"); got != tc.want {
			t.Errorf("roleLevel %v: expected %d, got %d", tc.value, tc.want, got)
		}
	}
}
