package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nabil-haroun/bookably/libs/auth"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims auth.Claims) string {
	t.Helper()
	if claims.Exp == 0 {
		claims.Exp = time.Now().Add(time.Hour).Unix()
	}
	if claims.Iat == 0 {
		claims.Iat = time.Now().Unix()
	}
	token, err := auth.SignHS256(claims, testSecret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}
	return token
}

func TestRequire_PopulatesActor(t *testing.T) {
	v := NewVerifier(testSecret, nil)

	var got Actor
	handler := v.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token := signToken(t, auth.Claims{
		Sub: "user-1", BusinessID: "biz", Role: RoleStaff, StaffID: "staff-a",
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	want := Actor{Sub: "user-1", BusinessID: "biz", Role: RoleStaff, StaffID: "staff-a"}
	if got != want {
		t.Fatalf("actor = %+v, want %+v", got, want)
	}
}

func TestRequire_Rejections(t *testing.T) {
	v := NewVerifier(testSecret, nil)
	handler := v.Require(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler reached with invalid credentials")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + func() string {
			tok, _ := auth.SignHS256(auth.Claims{
				Sub: "u", BusinessID: "biz", Role: RoleAdmin,
				Exp: time.Now().Add(time.Hour).Unix(),
			}, "other-secret")
			return tok
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestRequire_ExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret, nil)
	handler := v.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached with expired token")
	}))

	token := signToken(t, auth.Claims{
		Sub: "u", BusinessID: "biz", Role: RoleAdmin,
		Exp: time.Now().Add(-time.Minute).Unix(),
		Iat: time.Now().Add(-time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestRequire_MissingBusinessScope(t *testing.T) {
	v := NewVerifier(testSecret, nil)
	handler := v.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler reached without business scope")
	}))

	token := signToken(t, auth.Claims{Sub: "u", Role: RoleAdmin})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRole(inner, RoleAdmin, RoleStaff)

	cases := []struct {
		role string
		want int
	}{
		{RoleAdmin, http.StatusNoContent},
		{RoleStaff, http.StatusNoContent},
		{RoleClient, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), Actor{Sub: "u", BusinessID: "biz", Role: tc.role}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("role %s: status = %d, want %d", tc.role, rr.Code, tc.want)
		}
	}

	// No actor in context at all.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing actor: status = %d, want 401", rr.Code)
	}
}
