package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the LMS API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	FileStoreBackend    string
	FileStoreDir        string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	UploadMaxBytes      int64

	DockerHost       string
	ExecutionTimeout time.Duration
	CodeRunMemoryMB  int
	CodeRunCPUShares int

	QuizSessionTTL time.Duration
	IdempotencyTTL time.Duration

	SubmitRateLimit       int
	SubmitRateLimitWindow time.Duration

	OpenAIAPIKey string
	OpenAIModel  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LMS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "LMS API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("filestore.backend", "local")
	v.SetDefault("filestore.dir", "./uploads")
	v.SetDefault("cloudinary.folder", "lms/submissions")
	v.SetDefault("upload_max_bytes", int64(10<<20))
	v.SetDefault("execution_timeout_ms", 30000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("quiz_session_ttl", "4h")
	v.SetDefault("idempotency_ttl", "24h")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("submit_rate_limit", 30)
	v.SetDefault("submit_rate_limit_window", "1m")

	quizTTL, err := time.ParseDuration(v.GetString("quiz_session_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid quiz session ttl: %w", err)
	}

	idemTTL, err := time.ParseDuration(v.GetString("idempotency_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid idempotency ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("submit_rate_limit_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid submit rate limit window: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		JWTSecret:             v.GetString("jwt.secret"),
		FileStoreBackend:      strings.ToLower(v.GetString("filestore.backend")),
		FileStoreDir:          v.GetString("filestore.dir"),
		CloudinaryCloudName:   v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:      v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:   v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:      v.GetString("cloudinary.folder"),
		UploadMaxBytes:        v.GetInt64("upload_max_bytes"),
		DockerHost:            v.GetString("docker_host"),
		ExecutionTimeout:      time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:       v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:      v.GetInt("code_run_cpu_shares"),
		QuizSessionTTL:        quizTTL,
		IdempotencyTTL:        idemTTL,
		SubmitRateLimit:       v.GetInt("submit_rate_limit"),
		SubmitRateLimitWindow: rateWindow,
		OpenAIAPIKey:          v.GetString("openai_api_key"),
		OpenAIModel:           v.GetString("openai.model"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 10 << 20
	}

	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}

	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}
