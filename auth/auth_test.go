package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hazyhaar/clippy/kit"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestGenerateValidate(t *testing.T) {
	tok, err := GenerateToken(testSecret, &Claims{UserID: "u1", Email: "a@b.c"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "u1" || c.Email != "a@b.c" || c.Subject != "u1" {
		t.Fatalf("claims = %+v", c)
	}
}

func TestGenerateToken_WeakSecret(t *testing.T) {
	_, err := GenerateToken([]byte("short"), &Claims{UserID: "u1"}, time.Hour)
	if !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	tok, err := GenerateToken(testSecret, &Claims{UserID: "u1"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(testSecret, tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tok, _ := GenerateToken(testSecret, &Claims{UserID: "u1"}, time.Hour)
	other := []byte("ffffffffffffffffffffffffffffffff")
	if _, err := ValidateToken(other, tok); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
}

func TestValidateToken_RejectsNone(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(testSecret, s); err == nil {
		t.Fatal("alg=none accepted")
	}
}

func TestDeriveSecret(t *testing.T) {
	if DeriveSecret("") != nil {
		t.Fatal("empty passphrase should give nil")
	}
	if err := ValidateSecret(DeriveSecret("x")); err != nil {
		t.Fatalf("derived secret too short: %v", err)
	}
}

func TestMiddleware_Bearer(t *testing.T) {
	tok, _ := GenerateToken(testSecret, &Claims{UserID: "u9"}, time.Hour)

	var gotUser string
	h := Middleware(testSecret)(Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = kit.GetUserID(r.Context())
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || gotUser != "u9" {
		t.Fatalf("code=%d user=%q", rec.Code, gotUser)
	}
}

func TestMiddleware_InvalidClearsCookie(t *testing.T) {
	h := Middleware(testSecret)(Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("cookie not cleared: %q", rec.Header().Get("Set-Cookie"))
	}
}
