package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is the placeholder HMAC secret. It is accepted only in
// development.
const DefaultJWTSecret = "change-me-in-production"

// ErrDefaultJWTSecret is returned by Load outside development when the HMAC
// secret was left at its placeholder.
var ErrDefaultJWTSecret = errors.New("JWT_SECRET must be set outside development")

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	Queue     QueueConfig
	Store     StoreConfig
	Text      TextConfig
	GLM       GLMConfig
	Gemini    GeminiConfig
	Image     ImageConfig
	Video     VideoConfig
	R2        R2Config
	WebSocket WebSocketConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

// RateLimitConfig gates task creation endpoints
type RateLimitConfig struct {
	Enabled       bool
	Requests      int
	WindowSeconds int
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// QueueConfig selects how dispatch is scheduled: "asynq" or "local"
type QueueConfig struct {
	Backend     string
	Concurrency int
	MaxRetry    int
}

// StoreConfig selects the task store: "memory", "redis" or "postgres"
type StoreConfig struct {
	Backend     string
	DatabaseURL string
}

// TextConfig selects the script provider: "glm" or "gemini"
type TextConfig struct {
	Provider string
}

type GLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type ImageConfig struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds
}

type VideoConfig struct {
	APIKey              string
	BaseURL             string
	Timeout             int // seconds
	MaxWaitSeconds      int
	PollIntervalSeconds int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	MaxObjectMB     int
}

type WebSocketConfig struct {
	SendBuffer          int
	PingIntervalSeconds int
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	for _, key := range []string{
		"REDIS_PASSWORD",
		"JWT_SECRET",
		"DATABASE_URL",
		"GLM_API_KEY",
		"GEMINI_API_KEY",
		"IMAGE_API_KEY",
		"VIDEO_API_KEY",
		"R2_ACCOUNT_ID",
		"R2_ACCESS_KEY_ID",
		"R2_SECRET_ACCESS_KEY",
		"ZITADEL_CLIENT_ID",
	} {
		readSecret(key)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	bindings := map[string]string{
		"server.port":                 "SERVER_PORT",
		"server.env":                  "SERVER_ENV",
		"server.log_level":            "LOG_LEVEL",
		"server.api_domain":           "API_DOMAIN",
		"redis.addr":                  "REDIS_ADDR",
		"redis.password":              "REDIS_PASSWORD",
		"redis.db":                    "REDIS_DB",
		"jwt.secret":                  "JWT_SECRET",
		"zitadel.domain":              "ZITADEL_DOMAIN",
		"zitadel.client_id":           "ZITADEL_CLIENT_ID",
		"zitadel.issuer":              "ZITADEL_ISSUER",
		"gateway.enabled":             "GATEWAY_ENABLED",
		"ratelimit.enabled":           "RATE_LIMIT_ENABLED",
		"ratelimit.requests":          "RATE_LIMIT_REQUESTS",
		"ratelimit.window_seconds":    "RATE_LIMIT_WINDOW",
		"queue.backend":               "QUEUE_BACKEND",
		"queue.concurrency":           "QUEUE_CONCURRENCY",
		"queue.max_retry":             "QUEUE_MAX_RETRY",
		"store.backend":               "STORE_BACKEND",
		"store.database_url":          "DATABASE_URL",
		"text.provider":               "TEXT_PROVIDER",
		"glm.api_key":                 "GLM_API_KEY",
		"glm.base_url":                "GLM_BASE_URL",
		"glm.model":                   "GLM_MODEL",
		"glm.timeout":                 "GLM_TIMEOUT",
		"gemini.api_key":              "GEMINI_API_KEY",
		"gemini.model":                "GEMINI_MODEL",
		"gemini.base_url":             "GEMINI_BASE_URL",
		"gemini.timeout":              "GEMINI_TIMEOUT",
		"image.api_key":               "IMAGE_API_KEY",
		"image.base_url":              "IMAGE_BASE_URL",
		"image.timeout":               "IMAGE_TIMEOUT",
		"video.api_key":               "VIDEO_API_KEY",
		"video.base_url":              "VIDEO_BASE_URL",
		"video.timeout":               "VIDEO_TIMEOUT",
		"video.max_wait_seconds":      "VIDEO_MAX_WAIT",
		"video.poll_interval_seconds": "VIDEO_POLL_INTERVAL",
		"r2.account_id":               "R2_ACCOUNT_ID",
		"r2.access_key_id":            "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":        "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":              "R2_BUCKET_NAME",
		"r2.public_url":               "R2_PUBLIC_URL",
		"r2.max_object_mb":            "R2_MAX_OBJECT_MB",
		"websocket.send_buffer":       "WS_SEND_BUFFER",
		"websocket.ping_interval":     "WS_PING_INTERVAL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", DefaultJWTSecret)
	v.SetDefault("gateway.enabled", false)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window_seconds", 60)

	v.SetDefault("queue.backend", "local")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.max_retry", 0)
	v.SetDefault("store.backend", "memory")

	// Provider defaults
	v.SetDefault("text.provider", "glm")
	v.SetDefault("glm.base_url", "https://open.bigmodel.cn/api/paas/v4")
	v.SetDefault("glm.model", "glm-4")
	v.SetDefault("glm.timeout", 60)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", 60)
	v.SetDefault("image.base_url", "https://api.ourzhishi.top")
	v.SetDefault("image.timeout", 120)
	v.SetDefault("video.base_url", "https://api.ourzhishi.top")
	v.SetDefault("video.timeout", 300)
	v.SetDefault("video.max_wait_seconds", 300)
	v.SetDefault("video.poll_interval_seconds", 5)

	v.SetDefault("r2.max_object_mb", 512)

	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.ping_interval", 30)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("ratelimit.enabled"),
			Requests:      v.GetInt("ratelimit.requests"),
			WindowSeconds: v.GetInt("ratelimit.window_seconds"),
		},
		Queue: QueueConfig{
			Backend:     v.GetString("queue.backend"),
			Concurrency: v.GetInt("queue.concurrency"),
			MaxRetry:    v.GetInt("queue.max_retry"),
		},
		Store: StoreConfig{
			Backend:     v.GetString("store.backend"),
			DatabaseURL: v.GetString("store.database_url"),
		},
		Text: TextConfig{
			Provider: v.GetString("text.provider"),
		},
		GLM: GLMConfig{
			APIKey:  v.GetString("glm.api_key"),
			BaseURL: v.GetString("glm.base_url"),
			Model:   v.GetString("glm.model"),
			Timeout: v.GetInt("glm.timeout"),
		},
		Gemini: GeminiConfig{
			APIKey:  v.GetString("gemini.api_key"),
			BaseURL: v.GetString("gemini.base_url"),
			Model:   v.GetString("gemini.model"),
			Timeout: v.GetInt("gemini.timeout"),
		},
		Image: ImageConfig{
			APIKey:  v.GetString("image.api_key"),
			BaseURL: v.GetString("image.base_url"),
			Timeout: v.GetInt("image.timeout"),
		},
		Video: VideoConfig{
			APIKey:              v.GetString("video.api_key"),
			BaseURL:             v.GetString("video.base_url"),
			Timeout:             v.GetInt("video.timeout"),
			MaxWaitSeconds:      v.GetInt("video.max_wait_seconds"),
			PollIntervalSeconds: v.GetInt("video.poll_interval_seconds"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			MaxObjectMB:     v.GetInt("r2.max_object_mb"),
		},
		WebSocket: WebSocketConfig{
			SendBuffer:          v.GetInt("websocket.send_buffer"),
			PingIntervalSeconds: v.GetInt("websocket.ping_interval"),
		},
	}

	if cfg.Server.Env != "development" && cfg.JWT.Secret == DefaultJWTSecret {
		return nil, ErrDefaultJWTSecret
	}

	return cfg, nil
}
