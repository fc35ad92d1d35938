package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imgopt.local/internal/platform/config"
)

// New 创建对外服务
func New(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.Addr, handler)
}

// NewAdmin 创建管理端口服务（/metrics /readyz /version pprof），推荐只监听 127.0.0.1
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	return newServer(cfg, cfg.AdminAddr, handler)
}

func newServer(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

func RunWithGracefulShutdown(srv *http.Server, shutdownTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunWithGracefulShutdownContext(srv, shutdownTimeout, ctx)
}

// RunWithGracefulShutdownContext 阻塞运行 srv，stopCtx 结束后在 shutdownTimeout 内优雅关闭
func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stopCtx.Done():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
