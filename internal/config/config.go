// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, persistence, object storage, the processing queue, the audio
// analyzer, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Storage backends.
const (
	StorageGCS         = "gcs"
	StorageGCSEmulator = "gcs_emulator"
	StorageMemory      = "memory"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Analyzer backends.
const (
	AnalyzerWAV    = "wav"
	AnalyzerFFmpeg = "ffmpeg"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-callrec-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects and locates the relational store.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// StorageConfig configures the object store gateway and presigned URLs.
type StorageConfig struct {
	Backend         string // gcs|gcs_emulator|memory
	Bucket          string
	ProjectID       string // used when the bucket must be created
	EmulatorHost    string // STORAGE_EMULATOR_HOST
	CredentialsFile string
	CredentialsJSON string

	PresignTTL     time.Duration // lifetime of issued read URLs
	RefreshMargin  time.Duration // refresh URLs expiring within this window
	MaxUploadBytes int64
}

// QueueConfig configures task delivery and the retry policy.
type QueueConfig struct {
	Backend     string // memory|redis
	RedisAddr   string
	Name        string
	Concurrency int
	MaxRetries  int
	Backoff     time.Duration
	PollTimeout time.Duration
}

// AnalyzerConfig configures the audio analyzer backend.
type AnalyzerConfig struct {
	Backend            string // wav|ffmpeg
	FFprobeBin         string
	FFmpegBin          string
	SilenceMinDuration time.Duration
	SilenceThreshold   float64 // dBFS, negative
	ScratchDir         string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s; uploads can be slow
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int    // bytes
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	Database DatabaseConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Analyzer AnalyzerConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 20*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
			Path:   getenv("DB_PATH", "callrec.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		Storage: StorageConfig{
			Backend:         strings.ToLower(getenv("STORAGE_BACKEND", "")),
			Bucket:          getenv("STORAGE_BUCKET", "call-recordings"),
			ProjectID:       getenv("STORAGE_PROJECT_ID", ""),
			EmulatorHost:    strings.TrimRight(strings.TrimSpace(getenv("STORAGE_EMULATOR_HOST", "")), "/"),
			CredentialsFile: getenv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			CredentialsJSON: getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
			PresignTTL:      getdur("PRESIGN_TTL", time.Hour),
			RefreshMargin:   getdur("PRESIGN_REFRESH_MARGIN", time.Minute),
			MaxUploadBytes:  int64(getint("MAX_UPLOAD_BYTES", 64<<20)),
		},

		Queue: QueueConfig{
			Backend:     strings.ToLower(getenv("QUEUE_BACKEND", QueueMemory)),
			RedisAddr:   getenv("REDIS_ADDR", "localhost:6379"),
			Name:        getenv("QUEUE_NAME", "callrec:recordings"),
			Concurrency: getint("WORKER_CONCURRENCY", 4),
			MaxRetries:  getint("TASK_MAX_RETRIES", 3),
			Backoff:     getdur("TASK_RETRY_BACKOFF", 5*time.Second),
			PollTimeout: getdur("QUEUE_POLL_TIMEOUT", 2*time.Second),
		},

		Analyzer: AnalyzerConfig{
			Backend:            strings.ToLower(getenv("ANALYZER_BACKEND", AnalyzerWAV)),
			FFprobeBin:         getenv("FFPROBE_BIN", "ffprobe"),
			FFmpegBin:          getenv("FFMPEG_BIN", "ffmpeg"),
			SilenceMinDuration: getdur("SILENCE_MIN_DURATION", time.Second),
			SilenceThreshold:   getfloat("SILENCE_THRESHOLD_DBFS", -40),
			ScratchDir:         getenv("SCRATCH_DIR", os.TempDir()),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-callrec-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Storage.Backend == "" {
		// An emulator host without an explicit backend selects the emulator.
		if cfg.Storage.EmulatorHost != "" {
			cfg.Storage.Backend = StorageGCSEmulator
		} else {
			cfg.Storage.Backend = StorageGCS
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}

	switch cfg.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	switch cfg.Storage.Backend {
	case StorageGCS, StorageMemory:
	case StorageGCSEmulator:
		u, err := url.Parse(cfg.Storage.EmulatorHost)
		if cfg.Storage.EmulatorHost == "" || err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("STORAGE_EMULATOR_HOST must be an absolute URL like http://fake-gcs:4443")
		}
	default:
		return errors.New("STORAGE_BACKEND must be one of: gcs, gcs_emulator, memory")
	}
	if strings.TrimSpace(cfg.Storage.Bucket) == "" {
		return errors.New("STORAGE_BUCKET must not be empty")
	}
	if cfg.Storage.PresignTTL <= 0 {
		return errors.New("PRESIGN_TTL must be > 0")
	}
	if cfg.Storage.RefreshMargin < 0 || cfg.Storage.RefreshMargin >= cfg.Storage.PresignTTL {
		return errors.New("PRESIGN_REFRESH_MARGIN must be >= 0 and shorter than PRESIGN_TTL")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}

	switch cfg.Queue.Backend {
	case QueueMemory:
	case QueueRedis:
		if strings.TrimSpace(cfg.Queue.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required when QUEUE_BACKEND=redis")
		}
	default:
		return errors.New("QUEUE_BACKEND must be one of: memory, redis")
	}
	if strings.TrimSpace(cfg.Queue.Name) == "" {
		return errors.New("QUEUE_NAME must not be empty")
	}
	if cfg.Queue.Concurrency < 1 {
		return errors.New("WORKER_CONCURRENCY must be >= 1")
	}
	if cfg.Queue.MaxRetries < 0 {
		return errors.New("TASK_MAX_RETRIES must be >= 0")
	}
	if cfg.Queue.Backoff < 0 {
		return errors.New("TASK_RETRY_BACKOFF must be >= 0")
	}
	if cfg.Queue.PollTimeout <= 0 {
		return errors.New("QUEUE_POLL_TIMEOUT must be > 0")
	}

	switch cfg.Analyzer.Backend {
	case AnalyzerWAV, AnalyzerFFmpeg:
	default:
		return errors.New("ANALYZER_BACKEND must be one of: wav, ffmpeg")
	}
	if cfg.Analyzer.SilenceMinDuration <= 0 {
		return errors.New("SILENCE_MIN_DURATION must be > 0")
	}
	if cfg.Analyzer.SilenceThreshold >= 0 {
		return errors.New("SILENCE_THRESHOLD_DBFS must be negative")
	}
	if strings.TrimSpace(cfg.Analyzer.ScratchDir) == "" {
		return errors.New("SCRATCH_DIR must not be empty")
	}

	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (cfg Config) Addr() string { return ":" + strings.TrimPrefix(cfg.Port, ":") }

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
