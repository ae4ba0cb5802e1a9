package util

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTRoundTrip(t *testing.T) {
	tok, err := GenerateJWT("ops@example.com", "admin", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseJWT(tok, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ops@example.com" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseJWTRejectsWrongSecretAndExpired(t *testing.T) {
	tok, _ := GenerateJWT("ops", "admin", "s3cret", time.Hour)
	if _, err := ParseJWT(tok, "other"); err == nil {
		t.Fatalf("expected wrong secret rejected")
	}
	expired, _ := GenerateJWT("ops", "admin", "s3cret", -time.Minute)
	if _, err := ParseJWT(expired, "s3cret"); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestParseJWTRequiresRole(t *testing.T) {
	tok, _ := GenerateJWT("ops", "", "s3cret", time.Hour)
	if _, err := ParseJWT(tok, "s3cret"); !errors.Is(err, jwt.ErrTokenMalformed) {
		t.Fatalf("expected malformed error for missing role, got %v", err)
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := ExtractToken(r); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := ExtractToken(r); got != "" {
		t.Fatalf("expected empty token for basic auth, got %q", got)
	}
}
