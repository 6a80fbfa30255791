package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"gameqc/services"
)

type stubTokens map[string]string

func (s stubTokens) ParseToken(token string) (*services.Claims, error) {
	userID, ok := s[token]
	if !ok {
		return nil, services.ErrInvalidToken
	}
	return &services.Claims{Role: "qc", RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}, nil
}

type stubPerms map[string]bool

func (s stubPerms) HasPermission(_ context.Context, actorID, perm string) (bool, error) {
	if actorID == "broken" {
		return false, errors.New("db down")
	}
	return s[actorID+"/"+perm], nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	r.GET("/x", handlers...)
	return r
}

func serve(r *gin.Engine, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	am := NewAuthMiddleware(nil, stubTokens{"good": "u1", "broken-user": "broken"}, stubPerms{})
	r := newRouter(am.RequireAuth())

	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{name: "bearer header", target: "/x", header: "Bearer good", status: http.StatusOK, body: "u1"},
		{name: "lowercase scheme", target: "/x", header: "bearer good", status: http.StatusOK, body: "u1"},
		{name: "query token", target: "/x?token=good", status: http.StatusOK, body: "u1"},
		{name: "missing", target: "/x", status: http.StatusUnauthorized},
		{name: "unknown token", target: "/x", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.target, tt.header)
			if rec.Code != tt.status {
				t.Fatalf("status: want=%d got=%d", tt.status, rec.Code)
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("body: want=%q got=%q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	am := NewAuthMiddleware(nil, stubTokens{"qc": "u1", "dev": "u2", "broken": "broken"}, stubPerms{"u1/games:review": true})
	r := newRouter(am.RequireAuth(), am.RequirePermission("games:review"))

	for token, want := range map[string]int{
		"qc":     http.StatusOK,
		"dev":    http.StatusForbidden,
		"broken": http.StatusInternalServerError,
	} {
		if got := serve(r, "/x", "Bearer "+token).Code; got != want {
			t.Fatalf("%s: want=%d got=%d", token, want, got)
		}
	}
}

func TestRequireHarnessToken(t *testing.T) {
	r := newRouter(RequireHarnessToken("secret"))
	if got := serve(r, "/x?token=secret", "").Code; got != http.StatusOK {
		t.Fatalf("valid token: want=200 got=%d", got)
	}
	if got := serve(r, "/x", "Bearer wrong").Code; got != http.StatusUnauthorized {
		t.Fatalf("wrong token: want=401 got=%d", got)
	}
	if got := serve(newRouter(RequireHarnessToken("")), "/x", "").Code; got != http.StatusUnauthorized {
		t.Fatalf("unset token must reject: got=%d", got)
	}
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.OPTIONS("/api/auth/login", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: got=%q", got)
	}
}
