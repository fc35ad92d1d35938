package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"imgopt.local/gee"
	"imgopt.local/gee/middleware"
	"imgopt.local/internal/app/derivative"
	dcache "imgopt.local/internal/app/derivative/cache"
	"imgopt.local/internal/app/derivative/httpapi"
	"imgopt.local/internal/app/derivative/repo"
	"imgopt.local/internal/app/derivative/stats"
	"imgopt.local/internal/platform/auth"
	platformcache "imgopt.local/internal/platform/cache"
	"imgopt.local/internal/platform/config"
	"imgopt.local/internal/platform/db"
	"imgopt.local/internal/platform/httpmiddleware"
	"imgopt.local/internal/platform/httpserver"
	"imgopt.local/internal/platform/metrics"
	"imgopt.local/internal/platform/migrate"
	"imgopt.local/internal/platform/ratelimit"
	"imgopt.local/internal/platform/trace"
	"imgopt.local/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	} else {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	}
	slog.SetDefault(slog.New(h).With("service", cfg.ServiceName))

	//DB：可选，没配置时按目录布局解析图片 id
	var dbPool *pgxpool.Pool
	if cfg.DBDSN != "" {
		pool, err := openDB(cfg)
		if err != nil {
			log.Fatal(err)
		}
		dbPool = pool
		defer dbPool.Close()
	} else {
		slog.Warn("DB_DSN not set, image ids resolved from folder layout")
	}

	//Redis 限流器：连不上时不限流
	var limiter httpmiddleware.Allower
	if cfg.RateLimitEnabled {
		redisClient, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("redis unavailable, rate limit disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			defer redisClient.Close()
			limiter = ratelimit.NewLimiter(redisClient)
		}
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	//源图尺寸缓存
	dims, err := dcache.NewDimsCache(cfg.ImageDimsCacheItems)
	if err != nil {
		log.Fatal(err)
	}
	defer dims.Close()
	//衍生图索引，1% 误判率
	index := dcache.NewDerivativeIndex(cfg.ImageBloomItems, 0.01)

	//生成事件（根据配置选择 Channel 或 Kafka）
	var sink stats.Sink = stats.LogSink{}
	if dbPool != nil {
		sink = stats.NewPGSink(dbPool)
	}
	var collector stats.Collector
	var kafkaConsumer *stats.KafkaConsumer
	var channelConsumer *stats.Consumer
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集生成事件", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, sink)
	} else {
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = stats.NewConsumer(sink, channelCollector)
	}

	resizer, err := derivative.NewResizer(derivative.Options{
		Root:       cfg.ImageRoot,
		CacheDir:   cfg.ImageCacheDir,
		StrictKeys: cfg.ImageStrictKeys,
		Dims:       dims,
		Index:      index,
		Collector:  collector,
	})
	if err != nil {
		log.Fatal(err)
	}
	seeded, err := index.Seed(resizer.Root(), resizer.CacheDir())
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("derivative index seeded", "root", resizer.Root(), "cache_dir", resizer.CacheDir(), "files", seeded, "approx_count", index.Count())

	var resolver derivative.SourceResolver = derivative.FolderResolver{Root: resizer.Root()}
	if dbPool != nil {
		resolver = repo.NewImagesRepo(dbPool, resizer.Root())
	}

	// JWT
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.AdminPasswordHash == "" {
		slog.Warn("ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown := trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := gee.New()
	r.Use(gee.Recovery(), middleware.ReqID(), middleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	deps := httpapi.Deps{
		Resizer:        resizer,
		Renderer:       derivative.NewRenderer(resizer, resolver),
		Index:          index,
		Tokens:         ts,
		Admin:          httpapi.Admin{Username: cfg.AdminUsername, PasswordHash: cfg.AdminPasswordHash},
		Limiter:        limiter,
		RenderLimit:    cfg.RenderRateLimit,
		DefaultQuality: cfg.ImageDefaultQuality,
	}
	httpapi.RegisterAPIRoutes(r.Group("/api/v1"), deps)
	httpapi.RegisterPublicRoutes(r, deps)

	r.GET("/healthz", func(ctx *gee.Context) {
		ctx.String(http.StatusOK, "ok")
	})

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 缓存目录可写、数据库可用才算就绪
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := os.MkdirAll(resizer.CacheRoot(), 0o755); err != nil {
			http.Error(w, "cache dir unavailable", http.StatusServiceUnavailable)
			return
		}
		if dbPool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := dbPool.Ping(ctx); err != nil {
				http.Error(w, "DB Ping Err", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	slog.Info("server started", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr, "version", version)

	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()

	err = <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}

// openDB 连接数据库并执行迁移
func openDB(cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	res, err := migrate.Up(ctx, pool, migrate.Options{Dir: cfg.MigrationsDir, FS: migrations.FS})
	if err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("数据库连接成功", "migrations_applied", res.AppliedFiles)
	return pool, nil
}
