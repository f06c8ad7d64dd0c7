package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/conduit-lang/taskprovider/internal/web/auth"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("test response"))
}

func TestChainOrder(t *testing.T) {
	var called []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = append(called, name+"-before")
				next.ServeHTTP(w, r)
				called = append(called, name+"-after")
			})
		}
	}

	chain := NewChain(mark("m1")).Use(mark("m2"))
	handler := chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = append(called, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	expected := []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}
	if strings.Join(called, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected order %v, got %v", expected, called)
	}
}

func TestChainAppendDoesNotMutate(t *testing.T) {
	noop := func(next http.Handler) http.Handler { return next }
	base := NewChain(noop)
	extended := base.Append(noop, noop)

	if base.Len() != 1 {
		t.Errorf("Expected base chain to keep 1 middleware, got %d", base.Len())
	}
	if extended.Len() != 3 {
		t.Errorf("Expected extended chain to have 3 middlewares, got %d", extended.Len())
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("Expected a generated request ID in context")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Expected header %q to echo %q, got %q", RequestIDHeader, seen, rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestIDPropagated(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "abc-123" {
		t.Errorf("Expected request ID abc-123, got %s", seen)
	}
}

func TestLoggingWritesEntry(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := NewChain(RequestID(), Logging(zap.New(core))).Then(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(RequestIDHeader, "test-request-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["request_id"] != "test-request-id" {
		t.Errorf("Expected request ID test-request-id, got %v", fields["request_id"])
	}
	if fields["path"] != "/tasks" {
		t.Errorf("Expected path /tasks, got %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("Expected status 200, got %v", fields["status"])
	}
	if fields["bytes"] != int64(13) {
		t.Errorf("Expected 13 bytes, got %v", fields["bytes"])
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("Expected info level, got %v", entries[0].Level)
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusCreated, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusInternalServerError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		handler := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if logs.Len() != 1 || logs.All()[0].Level != tt.level {
			t.Errorf("Status %d: expected one entry at %v", tt.status, tt.level)
		}
	}
}

func TestLoggingSkipPaths(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Logging(zap.New(core), "/healthz")(http.HandlerFunc(ok))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if logs.Len() != 0 {
		t.Errorf("Expected no log entries for skipped path, got %d", logs.Len())
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Expected JSON body: %v", err)
	}
	if body["code"] != "internal_error" {
		t.Errorf("Expected code internal_error, got %v", body["code"])
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("Expected panic to be logged")
	}
}

func TestRequireToken(t *testing.T) {
	service := auth.NewTokenService("secret", time.Hour)
	writeToken, err := service.Issue("cli", auth.ScopeWrite)
	if err != nil {
		t.Fatal(err)
	}
	readToken, err := service.Issue("viewer")
	if err != nil {
		t.Fatal(err)
	}

	var subject string
	handler := RequireToken(service)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := auth.ClaimsFrom(r.Context()); ok {
			subject = claims.Subject
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		method string
		header string
		status int
	}{
		{"read without token", http.MethodGet, "", http.StatusOK},
		{"write without token", http.MethodPost, "", http.StatusUnauthorized},
		{"malformed header", http.MethodPost, "Token abc", http.StatusUnauthorized},
		{"invalid token", http.MethodDelete, "Bearer nope", http.StatusUnauthorized},
		{"missing scope", http.MethodPut, "Bearer " + readToken, http.StatusForbidden},
		{"valid token", http.MethodPatch, "Bearer " + writeToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}

	if subject != "cli" {
		t.Errorf("Expected claims in context for subject cli, got %q", subject)
	}
}

func TestRequireTokenDisabled(t *testing.T) {
	handler := RequireToken(nil)(http.HandlerFunc(ok))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tasks", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 with auth disabled, got %d", rec.Code)
	}
}
