package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr              string
	IdleTimeout       time.Duration // 连接处理完一个请求后等待 IdleTimeout 后依旧没有请求，就会关闭此空闲连接
	ShutdownTimeout   time.Duration // 关闭服务的最长等待时间，超过后强制断开连接
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // 首次生成大图可能较慢，不要设太小

	// 日志配置信息
	LogLevel    slog.Level
	LogFormat   string
	ServiceName string

	PprofEnabled bool
	AdminAddr    string

	// JWT：只用于保护管理接口（清缓存）
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	// 管理员账号，密码为 bcrypt 哈希（go run ./cmd/tools/hashpass <password>）
	AdminUsername     string
	AdminPasswordHash string

	OtlpGrpcEndpoint string
	OtlpServiceName  string
	TracingEnabled   bool

	// 为空时不连数据库：图片 id 按目录布局解析，生成事件不落库
	DBDSN         string
	MigrationsDir string

	//Kafka
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	//Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RateLimit
	RateLimitEnabled bool
	RenderRateLimit  int // 每个 IP 每分钟的 render 次数

	// Images
	ImageRoot           string // 源图和缓存目录的根
	ImageCacheDir       string // 相对 ImageRoot
	ImageDefaultQuality int
	ImageStrictKeys     bool
	ImageDimsCacheItems int64
	ImageBloomItems     uint
}

func Load() Config {
	cfg := Config{
		Addr:              ":9999",
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,

		LogLevel:    slog.LevelInfo,
		LogFormat:   "json",
		ServiceName: "imgopt",

		PprofEnabled: false,
		AdminAddr:    "127.0.0.1:6060",

		JWTTTL:    12 * time.Hour,
		JWTSecret: "123456",
		JWTIssuer: "imgopt",

		AdminUsername: "admin",

		OtlpGrpcEndpoint: "127.0.0.1:4317",
		OtlpServiceName:  "imgopt",
		TracingEnabled:   true,

		KafkaEnabled: false,
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "derivative-events",

		RedisAddr: "localhost:6379",

		RateLimitEnabled: true,
		RenderRateLimit:  300,

		ImageRoot:           ".",
		ImageCacheDir:       "img/web",
		ImageDefaultQuality: 100,
		ImageStrictKeys:     false,
		ImageDimsCacheItems: 100000,
		ImageBloomItems:     1_000_000,
	}

	_ = godotenv.Load(".env")

	lookupString("ADDR", &cfg.Addr)
	lookupDuration("IDLE_TIMEOUT", &cfg.IdleTimeout)
	lookupDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	lookupDuration("READ_HEADER_TIMEOUT", &cfg.ReadHeaderTimeout)
	lookupDuration("READ_TIMEOUT", &cfg.ReadTimeout)
	lookupDuration("WRITE_TIMEOUT", &cfg.WriteTimeout)

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = parseLevel(v)
	}
	lookupString("LOG_FORMAT", &cfg.LogFormat)
	lookupString("SERVICE_NAME", &cfg.ServiceName)

	lookupBool("PPROF_ENABLED", &cfg.PprofEnabled)
	lookupString("ADMIN_ADDR", &cfg.AdminAddr)

	lookupString("JWT_SECRET", &cfg.JWTSecret)
	lookupString("JWT_ISSUER", &cfg.JWTIssuer)
	lookupDuration("JWT_TTL", &cfg.JWTTTL)
	lookupString("ADMIN_USERNAME", &cfg.AdminUsername)
	lookupString("ADMIN_PASSWORD_HASH", &cfg.AdminPasswordHash)

	lookupString("OTLP_GRPC_ENDPOINT", &cfg.OtlpGrpcEndpoint)
	lookupString("OTLP_SERVICE_NAME", &cfg.OtlpServiceName)
	lookupBool("TRACING_ENABLED", &cfg.TracingEnabled)

	lookupString("DB_DSN", &cfg.DBDSN)
	lookupString("MIGRATIONS_DIR", &cfg.MigrationsDir)

	// Kafka
	lookupBool("KAFKA_ENABLED", &cfg.KafkaEnabled)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	lookupString("KAFKA_TOPIC", &cfg.KafkaTopic)

	// Redis
	lookupString("REDIS_ADDR", &cfg.RedisAddr)
	lookupString("REDIS_PASSWORD", &cfg.RedisPassword)
	if v, ok := os.LookupEnv("REDIS_DB"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}

	// RateLimit
	lookupBool("RATELIMIT_ENABLED", &cfg.RateLimitEnabled)
	if v, ok := os.LookupEnv("RENDER_RATE_LIMIT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RenderRateLimit = n
		}
	}

	// Images
	lookupString("IMAGE_ROOT", &cfg.ImageRoot)
	lookupString("IMAGE_CACHE_DIR", &cfg.ImageCacheDir)
	if v, ok := os.LookupEnv("IMAGE_DEFAULT_QUALITY"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 100 {
			cfg.ImageDefaultQuality = n
		}
	}
	lookupBool("IMAGE_STRICT_KEYS", &cfg.ImageStrictKeys)
	if v, ok := os.LookupEnv("IMAGE_DIMS_CACHE_ITEMS"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.ImageDimsCacheItems = n
		}
	}
	if v, ok := os.LookupEnv("IMAGE_BLOOM_ITEMS"); ok && v != "" {
		if n, err := strconv.ParseUint(v, 10, 0); err == nil && n > 0 {
			cfg.ImageBloomItems = uint(n)
		}
	}

	return cfg
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// 空字符串视为未设置，保留默认值
func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

// 解析失败时保留默认值
func lookupDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
