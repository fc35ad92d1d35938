package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"imgopt.local/gee"
	"imgopt.local/internal/platform/auth"
)

type countingLimiter struct {
	limit int
	seen  map[string]int
	err   error
}

func (c *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, time.Duration, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	c.seen[key]++
	if c.seen[key] > limit {
		return false, 1500 * time.Millisecond, nil
	}
	return true, 0, nil
}

func newLimitedEngine(l Allower) *gee.Engine {
	r := gee.New()
	r.GET("/t", RateLimit(l, "render", 2, time.Minute), func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})
	return r
}

func doGet(r http.Handler, remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	l := &countingLimiter{seen: map[string]int{}}
	r := newLimitedEngine(l)

	h := map[string]string{"CF-Connecting-IP": "203.0.113.10"}
	for i := 0; i < 2; i++ {
		if got := doGet(r, "127.0.0.1:1234", h).Code; got != http.StatusOK {
			t.Fatalf("request %d: got %d", i+1, got)
		}
	}
	rec := doGet(r, "127.0.0.1:1234", h)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: got %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After: got %q, want %q", got, "2")
	}
	if l.seen["rl:render:203.0.113.10"] != 3 {
		t.Fatalf("key counts: %v", l.seen)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := newLimitedEngine(&countingLimiter{err: errors.New("redis down")})
	if got := doGet(r, "198.51.100.1:1", nil).Code; got != http.StatusOK {
		t.Fatalf("got %d, want 200", got)
	}
	if got := doGet(newLimitedEngine(nil), "198.51.100.1:1", nil).Code; got != http.StatusOK {
		t.Fatalf("nil limiter: got %d, want 200", got)
	}
}

func TestClientIPTrustsOnlyProxies(t *testing.T) {
	cases := []struct {
		remote  string
		headers map[string]string
		want    string
	}{
		{"203.0.113.7:55", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.7"},
		{"127.0.0.1:55", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "1.2.3.4"},
		{"10.1.2.3:55", map[string]string{"X-Real-IP": "5.6.7.8"}, "5.6.7.8"},
		{"192.168.1.1:55", map[string]string{"CF-Connecting-IP": "9.9.9.9", "X-Forwarded-For": "1.1.1.1"}, "9.9.9.9"},
		{"172.20.0.2:55", map[string]string{"X-Forwarded-For": "not-an-ip"}, "172.20.0.2"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		for k, v := range tc.headers {
			req.Header.Set(k, v)
		}
		if got := ClientIP(req); got != tc.want {
			t.Errorf("ClientIP(%s, %v) = %q, want %q", tc.remote, tc.headers, got, tc.want)
		}
	}
}

func TestRequireRole(t *testing.T) {
	ts, err := auth.NewHS256Service("secret", "imgopt", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	adminToken, _, _ := ts.Sign("admin", auth.RoleAdmin)
	viewerToken, _, _ := ts.Sign("bob", "viewer")

	r := gee.New()
	r.POST("/clear", RequireRole(ts, auth.RoleAdmin), func(ctx *gee.Context) {
		id, _ := auth.GetIdentity(ctx.Req.Context())
		ctx.String(http.StatusOK, "%s", id.Subject)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewerToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/clear", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, rec.Code, tc.want)
		}
		if tc.want == http.StatusOK && rec.Body.String() != "admin" {
			t.Errorf("%s: body %q", tc.name, rec.Body.String())
		}
	}
}
