package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetRole(r.Context())))
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

// ─── Teacher Auth ───

func TestRequireTeacher(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	valid, err := auth.GenerateTeacherToken()
	if err != nil {
		t.Fatalf("GenerateTeacherToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong secret", "Bearer " + signed(t, "other", jwt.MapClaims{"role": RoleTeacher, "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired", "Bearer " + signed(t, "test-secret", jwt.MapClaims{"role": RoleTeacher, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"student role", "Bearer " + signed(t, "test-secret", jwt.MapClaims{"role": "student", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/default/polls", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			auth.RequireTeacher(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if tc.code != "" {
				if got := errorCode(t, rr); got != tc.code {
					t.Errorf("expected code %q, got %q", tc.code, got)
				}
			} else if rr.Body.String() != RoleTeacher {
				t.Errorf("expected role in context, got %q", rr.Body.String())
			}
		})
	}
}

// ─── Request ID & CORS ───

func TestRequestID(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Request-ID")))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rr.Header().Get("X-Request-ID")
	if generated == "" || rr.Body.String() != generated {
		t.Fatalf("expected generated id on request and response, got %q / %q", rr.Body.String(), generated)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "abc-123" {
		t.Errorf("expected caller's id to be echoed, got %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestCORS(t *testing.T) {
	h := CORS("http://localhost:3000/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
			t.Errorf("expected origin to be allowed, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
		}
		if rr.Code != http.StatusTeapot {
			t.Errorf("expected request to reach handler, got %d", rr.Code)
		}
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.example")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Errorf("expected no CORS header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Errorf("expected 204 for preflight, got %d", rr.Code)
		}
	})
}

// ─── Rate Limiter ───

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	rl.mu.Lock()
	rl.now = func() time.Time { return now }
	rl.mu.Unlock()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/teacher", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := hit("10.0.0.1:5000"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := hit("10.0.0.1:5001")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for third request from same IP, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if got := errorCode(t, rr); got != "RATE_LIMITED" {
		t.Errorf("expected RATE_LIMITED, got %q", got)
	}

	if rr := hit("10.0.0.2:5000"); rr.Code != http.StatusOK {
		t.Errorf("other clients are limited separately, got %d", rr.Code)
	}

	now = now.Add(time.Minute)
	if rr := hit("10.0.0.1:5000"); rr.Code != http.StatusOK {
		t.Errorf("expected a new window to reset the count, got %d", rr.Code)
	}
}
