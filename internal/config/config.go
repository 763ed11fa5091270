package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevAuthSecret signs tokens when AUTH_HMAC_SECRET is unset. Validate rejects
// it in production.
const DevAuthSecret = "supersecret-dev-key"

var ErrInsecureSecret = errors.New("AUTH_HMAC_SECRET must be set in production")

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

type Config struct {
	Environment Environment
	HTTPAddr    string

	LogLevel string
	LogFile  string // optional rotated JSON log

	DBDriver string
	DBDSN    string

	AuthSecret   string
	AuthTokenTTL time.Duration
	CookieSecure bool

	// Collaborator endpoints. Empty means "use the in-process implementation".
	TestAPIURL   string
	TestAPIToken string // bearer sent to TEST_API_URL
	ScoreAPIURL  string
	IdentityURL  string

	// Optional client-credentials grant for SCORE_API_URL.
	ScoreAPITokenURL     string
	ScoreAPIClientID     string
	ScoreAPIClientSecret string
	UpstreamTimeout      time.Duration

	TestsDir      string // *.json definitions imported at startup
	AdminEmail    string
	AdminPassword string
	// Seeds a service-role account whose login token other instances use as
	// TEST_API_TOKEN.
	ServiceEmail    string
	ServicePassword string

	TestCacheTTL time.Duration
	RedisURL     string

	MediaDriver    string // fs|minio
	MediaDir       string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	EventsPublisher string // none|gochannel|kafka
	KafkaBrokers    []string
	EventsTopic     string

	GradingOrderedMatching bool
	GradingFillBandGap     bool
	BandScaleListening     string
	BandScaleReading       string

	CORSOrigins      []string
	ScoreRateLimit   int // requests per minute per IP
	LoginRateLimit   int
	SessionTickRate  time.Duration
	SessionRetention time.Duration // how long graded sessions stay readable
}

// FromEnv reads configuration from the process environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func FromEnv() Config {
	_ = godotenv.Load()

	env := Environment(envOr("ENVIRONMENT", string(EnvDevelopment)))
	return Config{
		Environment: env,
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),

		LogLevel: envOr("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    os.Getenv("DB_DSN"),

		AuthSecret:   envOr("AUTH_HMAC_SECRET", DevAuthSecret),
		AuthTokenTTL: envDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		CookieSecure: envBool("COOKIE_SECURE", env == EnvProduction),

		TestAPIURL:   strings.TrimSuffix(os.Getenv("TEST_API_URL"), "/"),
		TestAPIToken: os.Getenv("TEST_API_TOKEN"),
		ScoreAPIURL:  os.Getenv("SCORE_API_URL"),
		IdentityURL:  strings.TrimSuffix(os.Getenv("IDENTITY_URL"), "/"),

		ScoreAPITokenURL:     os.Getenv("SCORE_API_TOKEN_URL"),
		ScoreAPIClientID:     os.Getenv("SCORE_API_CLIENT_ID"),
		ScoreAPIClientSecret: os.Getenv("SCORE_API_CLIENT_SECRET"),
		UpstreamTimeout:      envDuration("UPSTREAM_TIMEOUT", 10*time.Second),

		TestsDir:      os.Getenv("TESTS_DIR"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		ServiceEmail:    os.Getenv("SERVICE_EMAIL"),
		ServicePassword: os.Getenv("SERVICE_PASSWORD"),

		TestCacheTTL: envDuration("TEST_CACHE_TTL", 10*time.Minute),
		RedisURL:     os.Getenv("REDIS_URL"),

		MediaDriver:    envOr("MEDIA_DRIVER", "fs"),
		MediaDir:       envOr("MEDIA_DIR", "./data/media"),
		MinioEndpoint:  envOr("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    envOr("MINIO_BUCKET", "ielts-media"),
		MinioUseSSL:    envBool("MINIO_USE_SSL", false),

		EventsPublisher: envOr("EVENTS_PUBLISHER", "gochannel"),
		KafkaBrokers:    csvOr("KAFKA_BROKERS", "localhost:9092"),
		EventsTopic:     envOr("EVENTS_TOPIC", "ielts.sessions"),

		GradingOrderedMatching: envBool("GRADING_ORDERED_MATCHING", false),
		GradingFillBandGap:     envBool("GRADING_FILL_BAND_GAP", false),
		BandScaleListening:     envOr("BAND_SCALE_LISTENING", "ielts.legacy"),
		BandScaleReading:       envOr("BAND_SCALE_READING", "ielts.legacy"),

		CORSOrigins:      csvOr("CORS_ORIGINS", "http://localhost:3000"),
		ScoreRateLimit:   envInt("SCORE_RATE_LIMIT", 30),
		LoginRateLimit:   envInt("LOGIN_RATE_LIMIT", 10),
		SessionTickRate:  envDuration("SESSION_TICK", time.Second),
		SessionRetention: envDuration("SESSION_RETENTION", 30*time.Minute),
	}
}

// Validate reports settings that must not reach a production process.
func (c Config) Validate() error {
	if c.IsProduction() && c.AuthSecret == DevAuthSecret {
		return ErrInsecureSecret
	}
	return nil
}

func (c Config) IsProduction() bool { return c.Environment == EnvProduction }

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
func envDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(k))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
