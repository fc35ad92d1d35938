package gee

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParamsAndWildcard(t *testing.T) {
	engine := New()
	var gotID, gotFile, gotPattern string
	engine.GET("/p/:id", func(ctx *Context) {
		gotID = ctx.Param("id")
	})
	engine.GET("/img/web/*filepath", func(ctx *Context) {
		gotFile = ctx.Param("filepath")
		gotPattern = ctx.RoutePattern
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/p/42", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/img/web/a/b-10x10-80.jpg", nil))

	if gotID != "42" {
		t.Fatalf("id: got %q", gotID)
	}
	if gotFile != "a/b-10x10-80.jpg" {
		t.Fatalf("filepath: got %q", gotFile)
	}
	if gotPattern != "/img/web/*filepath" {
		t.Fatalf("pattern: got %q", gotPattern)
	}
}

func TestGroupPrefixAndMiddleware(t *testing.T) {
	engine := New()
	var hits []string
	api := engine.Group("/api/v1")
	api.Use(func(ctx *Context) { hits = append(hits, "api"); ctx.Next() })
	api.GET("/ping", func(ctx *Context) { ctx.String(http.StatusOK, "pong") })
	engine.GET("/healthz", func(ctx *Context) { ctx.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Fatalf("ping: %d %q", w.Code, w.Body.String())
	}
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if len(hits) != 1 {
		t.Fatalf("group middleware ran %d times, want 1", len(hits))
	}
}

func TestNotFound(t *testing.T) {
	engine := New()
	engine.GET("/exists", func(ctx *Context) { ctx.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/not-exists", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestCustomNoRoute(t *testing.T) {
	engine := New()
	engine.NoRoute(func(ctx *Context) {
		ctx.JSON(http.StatusNotFound, H{"error": "page not found"})
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/not-exists", nil))

	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "page not found") {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestMethodNotAllowedWithAllowHeader(t *testing.T) {
	engine := New()
	engine.GET("/test", func(ctx *Context) { ctx.String(http.StatusOK, "ok") })
	engine.POST("/test", func(ctx *Context) { ctx.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/test", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected %d, got %d", http.StatusMethodNotAllowed, w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != "GET,POST" {
		t.Fatalf("Allow: got %q", allow)
	}
}

func TestNotFoundGoesThroughMiddleware(t *testing.T) {
	executed := false
	engine := New()
	engine.Use(func(ctx *Context) { executed = true; ctx.Next() })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/not-exists", nil))

	if !executed {
		t.Fatal("middleware should run for 404")
	}
}

func TestResponseWriterRecordsStatusAndSize(t *testing.T) {
	engine := New()
	var status, size int
	engine.Use(func(ctx *Context) {
		ctx.Next()
		status = ctx.Writer.Status()
		size = ctx.Writer.Size()
	})
	engine.GET("/test", func(ctx *Context) { ctx.String(http.StatusCreated, "hello") })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

	if status != http.StatusCreated || size != 5 {
		t.Fatalf("got status=%d size=%d", status, size)
	}
}

func TestResponseWriterWriteHeaderOnce(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.Status() != http.StatusCreated || w.Code != http.StatusCreated {
		t.Fatalf("got %d / %d", rw.Status(), w.Code)
	}
}

func TestRecoveryReturns500(t *testing.T) {
	engine := New()
	engine.Use(Recovery())
	engine.GET("/panic", func(ctx *Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Internal Server Error") {
		t.Fatalf("body: %q", w.Body.String())
	}
}

func TestRecoveryKeepsWrittenResponse(t *testing.T) {
	engine := New()
	engine.Use(Recovery())
	engine.GET("/panic", func(ctx *Context) {
		ctx.String(http.StatusOK, "partial")
		panic("after write")
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRecoveryRepanicsAbortHandler(t *testing.T) {
	engine := New()
	engine.Use(Recovery())
	engine.GET("/abort", func(ctx *Context) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("recovered %v, want http.ErrAbortHandler", r)
		}
	}()
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	t.Fatal("ServeHTTP should have panicked")
}
