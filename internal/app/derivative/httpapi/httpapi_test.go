package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgopt.local/gee"
	"imgopt.local/internal/app/derivative"
	"imgopt.local/internal/app/derivative/cache"
	"imgopt.local/internal/platform/auth"
)

type testServer struct {
	engine *gee.Engine
	root   string
	deps   Deps
}

func writePNG(t *testing.T, name string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "img", "src", "photo.png"), 800, 600)
	writePNG(t, filepath.Join(root, "img", "p", "4", "2", "42.png"), 400, 400)

	index := cache.NewDerivativeIndex(1000, 0.01)
	resizer, err := derivative.NewResizer(derivative.Options{Root: root, Index: index})
	if err != nil {
		t.Fatal(err)
	}
	ts, err := auth.NewHS256Service("secret", "imgopt", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}

	d := Deps{
		Resizer:        resizer,
		Renderer:       derivative.NewRenderer(resizer, derivative.FolderResolver{Root: root, Ext: "png"}),
		Index:          index,
		Tokens:         ts,
		Admin:          Admin{Username: "admin", PasswordHash: hash},
		DefaultQuality: 80,
	}
	r := gee.New()
	RegisterAPIRoutes(r.Group("/api/v1"), d)
	RegisterPublicRoutes(r, d)
	return &testServer{engine: r, root: root, deps: d}
}

func (s *testServer) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeWidget(t *testing.T, rec *httptest.ResponseRecorder) derivative.Widget {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var w derivative.Widget
	if err := json.Unmarshal(rec.Body.Bytes(), &w); err != nil {
		t.Fatalf("decode widget: %v", err)
	}
	return w
}

func TestRenderByPathWithBreakpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/images/render?image_path=/img/src/photo.png&width=400&height=300&image_name=Summer%20Sale&breakpoints=200,800,abc,400&class=hero&alt=Sale", nil, "")
	w := decodeWidget(t, rec)

	if w.Image == nil {
		t.Fatal("primary image missing")
	}
	if w.Image.Path != "img/web/summer-sale-400x300-80.png" {
		t.Fatalf("primary path: %q", w.Image.Path)
	}
	if w.Class != "hero" || w.Alt != "Sale" {
		t.Fatalf("class/alt: %q %q", w.Class, w.Alt)
	}
	wantWidths := []int{800, 400, 200}
	if len(w.Sources) != len(wantWidths) {
		t.Fatalf("sources: %+v", w.Sources)
	}
	for i, src := range w.Sources {
		if src.Width != wantWidths[i] {
			t.Fatalf("source %d width %d, want %d", i, src.Width, wantWidths[i])
		}
		if src.Image.Height > 300 {
			t.Fatalf("source %d height %d exceeds 300", i, src.Image.Height)
		}
	}
}

func TestRenderByID(t *testing.T) {
	s := newTestServer(t)

	w := decodeWidget(t, s.do(t, http.MethodGet, "/api/v1/images/render?id_image=42&width=100&image_name=cup", nil, ""))
	if w.Image == nil || w.Image.Path != "img/web/42-cup-100x100-80.png" {
		t.Fatalf("image: %+v", w.Image)
	}
}

func TestRenderMissingSourceDegrades(t *testing.T) {
	s := newTestServer(t)

	w := decodeWidget(t, s.do(t, http.MethodGet, "/api/v1/images/render?id_image=999&width=100", nil, ""))
	if w.Image != nil || len(w.Sources) != 0 {
		t.Fatalf("expected empty widget, got %+v", w)
	}
}

func TestRenderValidatesQuery(t *testing.T) {
	s := newTestServer(t)

	for _, q := range []string{
		"",
		"id_image=abc",
		"id_image=-1",
		"image_path=a.png&width=x",
		"image_path=a.png&height=-5",
		"image_path=a.png&quality=101",
	} {
		rec := s.do(t, http.MethodGet, "/api/v1/images/render?"+q, nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%q: got %d, want 400", q, rec.Code)
		}
	}
}

func TestServeGeneratedFile(t *testing.T) {
	s := newTestServer(t)

	w := decodeWidget(t, s.do(t, http.MethodGet, "/api/v1/images/render?image_path=img/src/photo.png&width=200", nil, ""))
	rec := s.do(t, http.MethodGet, "/"+w.Image.Path, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type: %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "immutable") {
		t.Fatalf("Cache-Control: %q", rec.Header().Get("Cache-Control"))
	}
	cfg, err := png.DecodeConfig(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 200 || cfg.Height != 150 {
		t.Fatalf("served %dx%d, want 200x150", cfg.Width, cfg.Height)
	}
}

func TestServeRejectsUnknownAndTempFiles(t *testing.T) {
	s := newTestServer(t)

	// 磁盘上存在但从没经过索引的文件，也按不存在处理
	cacheRoot := s.deps.Resizer.CacheRoot()
	if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"stray-1x1-80.png", ".stray-1x1-80.png.123.tmp"} {
		if err := os.WriteFile(filepath.Join(cacheRoot, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	for _, p := range []string{
		"/img/web/stray-1x1-80.png",
		"/img/web/.stray-1x1-80.png.123.tmp",
		"/img/web/never-made-10x10-80.png",
	} {
		if rec := s.do(t, http.MethodGet, p, nil, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", p, rec.Code)
		}
	}
}

func TestAdminLoginAndClearCache(t *testing.T) {
	s := newTestServer(t)

	decodeWidget(t, s.do(t, http.MethodGet, "/api/v1/images/render?image_path=img/src/photo.png&width=100&breakpoints=50", nil, ""))

	if rec := s.do(t, http.MethodPost, "/api/v1/admin/cache/clear", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("clear without token: got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/admin/login", LoginRequest{Username: "admin", Password: "nope"}, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/admin/login", LoginRequest{Username: "admin", Password: "s3cret"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var login LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("login body: %s (%v)", rec.Body.String(), err)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/admin/cache/clear", nil, login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: %d %s", rec.Code, rec.Body.String())
	}
	var notice Notice
	if err := json.Unmarshal(rec.Body.Bytes(), &notice); err != nil {
		t.Fatal(err)
	}
	if notice.Type != "success" || notice.Removed != 2 {
		t.Fatalf("notice: %+v", notice)
	}
	entries, err := os.ReadDir(s.deps.Resizer.CacheRoot())
	if err != nil {
		t.Fatalf("cache root should survive clear: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cache root not empty: %v", entries)
	}
}
