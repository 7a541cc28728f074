package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gamehub/backend/internal/config"
	"gamehub/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthMiddleware(), func(c *gin.Context) {
		userID, _ := c.Get("userID")
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return r
}

func TestParseTokenRoundTrip(t *testing.T) {
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}

	token, err := jwt.GenerateToken(42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	userID, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	config.AppConfig = &config.Config{JWTSecret: "first-secret"}
	token, err := jwt.GenerateToken(42)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	config.AppConfig = &config.Config{JWTSecret: "second-secret"}
	if _, err := ParseToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/public", OptionalAuthMiddleware(), func(c *gin.Context) {
		userID, ok := c.Get("userID")
		c.JSON(http.StatusOK, gin.H{"authed": ok, "user_id": userID})
	})

	token, err := jwt.GenerateToken(7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name   string
		header string
		authed bool
	}{
		{"valid token", "Bearer " + token, true},
		{"missing header", "", false},
		{"garbage token", "Bearer not-a-token", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", tc.name, w.Code)
		}
		authed := strings.Contains(w.Body.String(), `"authed":true`)
		if authed != tc.authed {
			t.Errorf("%s: expected authed=%v, body %s", tc.name, tc.authed, w.Body.String())
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}
	r := setupRouter()

	token, err := jwt.GenerateToken(7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: expected status %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}
