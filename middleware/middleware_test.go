package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gandorini/S-T-Station/config"
	"github.com/Gandorini/S-T-Station/pkg/logger"
	"github.com/gin-gonic/gin"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		fromCtx, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c), "ctx": fromCtx})
	})

	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{"generated", "", false},
		{"kept", "upload-7f3a.2", true},
		{"too long", strings.Repeat("a", 65), false},
		{"unsafe characters", "id\nforged=1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if got == "" {
				t.Fatal("Expected X-Request-ID header to be set")
			}
			if tt.wantKeep && got != tt.header {
				t.Errorf("Expected request ID '%s', got '%s'", tt.header, got)
			}
			if !tt.wantKeep && got == tt.header {
				t.Errorf("Expected a generated request ID, got '%s'", got)
			}

			var body map[string]string
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["request_id"] != got || body["ctx"] != got {
				t.Errorf("Expected gin and request contexts to carry '%s', got %v", got, body)
			}
		})
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if id := GetRequestID(c); id != "" {
		t.Errorf("Expected empty string, got '%s'", id)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := captureLogs(t)

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery())
	router.POST("/api/validate-sheet", func(c *gin.Context) {
		panic("nil document")
	})
	router.GET("/partial", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	req := httptest.NewRequest("POST", "/api/validate-sheet", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if body["request_id"] != "req-42" {
		t.Errorf("Expected request_id 'req-42', got '%s'", body["request_id"])
	}
	out := logs.String()
	if !strings.Contains(out, "panic recovered") || !strings.Contains(out, "request_id=req-42") {
		t.Errorf("Expected panic logged with request id, got %s", out)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/partial", nil))
	if w.Body.String() != "partial" {
		t.Errorf("Expected the written body to be left alone, got %q", w.Body.String())
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := captureLogs(t)
	auth := config.AuthConfig{JWTSecret: "test-secret", TokenExpireHours: 1}

	router := gin.New()
	router.Use(RequestID())
	router.Use(RequestLogger())
	router.GET("/api/music-sheets/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.GET("/api/music-sheets/me", AuthMiddleware(NewTokenVerifier(&auth)), func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{})
	})
	router.POST("/api/validate-sheet", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
	})
	router.POST("/api/validate-deep", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service not configured"})
	})

	token, _, _ := GenerateToken("user-9", &auth)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		contains []string
	}{
		{"route template", "GET", "/api/music-sheets/12", "", []string{"level=INFO", "route=/api/music-sheets/:id", "path=/api/music-sheets/12"}},
		{"user from context", "GET", "/api/music-sheets/me", token, []string{"user_id=user-9", "status=200"}},
		{"client error", "POST", "/api/validate-sheet", "", []string{"level=WARN", "status=400"}},
		{"server error", "POST", "/api/validate-deep", "", []string{"level=ERROR", "status=503"}},
		{"unmatched", "GET", "/nowhere", "", []string{"route=unmatched", "status=404"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.Reset()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			router.ServeHTTP(httptest.NewRecorder(), req)

			out := logs.String()
			if !strings.Contains(out, "request completed") {
				t.Fatalf("Expected access log line, got %s", out)
			}
			if !strings.Contains(out, "request_id=") {
				t.Error("Expected request_id in access log")
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("Expected %q in log, got %s", want, out)
				}
			}
		})
	}
}
