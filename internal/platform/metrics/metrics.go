package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（用 pattern，例如 /img/web/*filepath；不要用真实 path，否则会产生无限 label）
	// - status：HTTP 状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPInflightRequests：当前正在处理中的请求数（Gauge）。
	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// DerivativeOperations：Resize 调用结果。
	// result：hit（缓存文件已存在）/ miss（本次编码写出）/ error
	DerivativeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivative_operations_total",
			Help: "Derivative resize calls by result.",
		},
		[]string{"result"},
	)

	// DerivativeEncodeDuration：缓存未命中时 解码+缩放+编码+落盘 的耗时。
	DerivativeEncodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "derivative_encode_duration_seconds",
			Help:    "Time spent producing a derivative on cache miss.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	// DerivativeLookups：内存层查询结果。
	// layer：dims（源图尺寸缓存）/ bloom（衍生图索引）
	DerivativeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivative_lookup_total",
			Help: "In-memory derivative lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)

	// CacheClears：清缓存操作，result：success / error
	CacheClears = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivative_cache_clear_total",
			Help: "Cache clear operations by result.",
		},
		[]string{"result"},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			DerivativeOperations,
			DerivativeEncodeDuration,
			DerivativeLookups,
			CacheClears,
		)
	})
}
